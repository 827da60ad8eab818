package tfrecord

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
)

// A LabelMap assigns integer ids to class names. Ids are 1-based, matching
// the object detection label map convention where 0 is reserved for
// background.
type LabelMap map[string]int

// LabelMapFromClasses builds a label map assigning 1-based ids in list order.
func LabelMapFromClasses(classes []string) LabelMap {
	m := LabelMap{}
	for i, c := range classes {
		m[c] = i + 1
	}
	return m
}

var (
	labelMapItem = regexp.MustCompile(`item\s*\{[^}]*\}`)
	labelMapID   = regexp.MustCompile(`\bid\s*:\s*(\d+)`)
	labelMapName = regexp.MustCompile(`\bname\s*:\s*['"]([^'"]+)['"]`)
)

// ReadLabelMap parses a pbtxt label map file of the form
//
//	item {
//	  id: 1
//	  name: 'person'
//	}
func ReadLabelMap(path string) (LabelMap, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := LabelMap{}
	for _, item := range labelMapItem.FindAllString(string(raw), -1) {
		idMatch := labelMapID.FindStringSubmatch(item)
		nameMatch := labelMapName.FindStringSubmatch(item)
		if idMatch == nil || nameMatch == nil {
			return nil, fmt.Errorf("label map %v has an item without id or name", path)
		}
		id, err := strconv.Atoi(idMatch[1])
		if err != nil {
			return nil, fmt.Errorf("invalid id %q in label map %v", idMatch[1], path)
		}
		m[nameMatch[1]] = id
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("no items found in label map %v", path)
	}
	return m, nil
}
