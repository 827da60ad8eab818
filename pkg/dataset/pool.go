package dataset

import (
	"sync"

	"github.com/edgetune/edgetune/pkg/gen"
)

// waveOutcome is the result-or-error of one task in a wave. A failed video
// never aborts its wave; the coordinator logs it and moves on.
type waveOutcome struct {
	result *VideoResult
	err    error
}

// runWave executes each task on a pool of 'workers' goroutines and returns
// the outcomes in submission order, regardless of completion order. It blocks
// until the whole wave is finished.
func runWave(tasks []VideoTask, workers int, run func(VideoTask) (*VideoResult, error)) []waveOutcome {
	workers = gen.Min(workers, len(tasks))
	outcomes := make([]waveOutcome, len(tasks))
	next := make(chan int, len(tasks))
	for i := range tasks {
		next <- i
	}
	close(next)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range next {
				result, err := run(tasks[i])
				outcomes[i] = waveOutcome{result: result, err: err}
			}
		}()
	}
	wg.Wait()
	return outcomes
}
