package nn

// TopClassIndices returns the indices of the k highest scores.
// This is a partial selection: every one of the k highest scores is present in
// the result, but their order relative to each other is unspecified. Callers
// that need a ranked list must sort the result themselves.
func TopClassIndices(scores []float32, k int) []int {
	n := len(scores)
	if k > n {
		k = n
	}
	if k <= 0 {
		return nil
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	lo := 0
	hi := n - 1
	for lo < hi {
		p := partitionDesc(scores, idx, lo, hi)
		if p == k-1 {
			break
		} else if p < k-1 {
			lo = p + 1
		} else {
			hi = p - 1
		}
	}
	return idx[:k]
}

// Partition idx[lo:hi+1] so that indices of scores greater than the pivot come
// first. Returns the final position of the pivot.
func partitionDesc(scores []float32, idx []int, lo, hi int) int {
	mid := (lo + hi) / 2
	idx[mid], idx[hi] = idx[hi], idx[mid]
	pivot := scores[idx[hi]]
	i := lo
	for j := lo; j < hi; j++ {
		if scores[idx[j]] > pivot {
			idx[i], idx[j] = idx[j], idx[i]
			i++
		}
	}
	idx[i], idx[hi] = idx[hi], idx[i]
	return i
}

// TopDetections caps a detection list at k entries.
// Detectors emit objects in their own descending-score order, and we preserve
// that ordering rather than re-ranking.
func TopDetections(objects []ObjectDetection, k int) []ObjectDetection {
	if k < 0 {
		k = 0
	}
	if len(objects) > k {
		objects = objects[:k]
	}
	return objects
}
