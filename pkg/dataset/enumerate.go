package dataset

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/cyclopcam/logs"
)

// Video extensions we process by default (lowercase, with leading dot)
var DefaultExtensions = []string{".mkv", ".mp4", ".webm"}

// Enumerate lists candidate video files.
// If root is a single file, the result is just that file. Otherwise we walk
// the tree, keep files whose extension is in exts, and order them by
// last-modified time ascending. No matching files is not an error: the
// result is simply empty.
func Enumerate(root string, exts []string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{root}, nil
	}

	extSet := map[string]bool{}
	for _, e := range exts {
		extSet[strings.ToLower(e)] = true
	}

	type fileMtime struct {
		path  string
		mtime time.Time
	}
	var files []fileMtime
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !extSet[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		files = append(files, fileMtime{path: path, mtime: fi.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(files, func(a, b int) bool {
		return files[a].mtime.Before(files[b].mtime)
	})
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}

// FastSample deduplicates the enumeration to one video per (camera, date,
// hour) bucket, keeping the earliest-enumerated file in each bucket. Files
// whose names don't parse are kept as-is, with a warning.
func FastSample(log logs.Log, videos []string) []string {
	seen := map[string]bool{}
	kept := make([]string, 0, len(videos))
	for _, v := range videos {
		meta, err := ParseVideoPath(v)
		if err != nil {
			log.Warnf("Keeping unparseable clip name %v: %v", filepath.Base(v), err)
			kept = append(kept, v)
			continue
		}
		key := meta.BucketKey()
		if seen[key] {
			continue
		}
		seen[key] = true
		kept = append(kept, v)
	}
	return kept
}
