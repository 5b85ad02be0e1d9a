package annotations

import (
	"sort"

	"github.com/pkg/errors"
)

// Background is the name of the class at index 0 of every ClassMap.
const Background = "background"

// ClassMap ties class names to the integer labels used in targets. Index 0 is
// always Background.
type ClassMap struct {
	names []string
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewClassMap builds a class map with Background at index 0 followed by classes
// in the given order. Duplicate names keep their first index.
func NewClassMap(classes []string) *ClassMap {
	m := &ClassMap{
		names:     make([]string, 0, len(classes)+1),
		nameToIdx: make(map[string]int, len(classes)+1),
	}
	m.add(Background)
	for _, c := range classes {
		m.add(c)
	}
	return m
}

// NewSortedClassMap is NewClassMap over the sorted, de-duplicated classes.
func NewSortedClassMap(classes []string) *ClassMap {
	set := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if c != Background {
			set[c] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(set))
	for c := range set {
		sorted = append(sorted, c)
	}
	sort.Strings(sorted)
	return NewClassMap(sorted)
}

func (m *ClassMap) add(name string) {
	if _, ok := m.nameToIdx[name]; ok {
		return
	}
	m.nameToIdx[name] = len(m.names)
	m.names = append(m.names, name)
}

// Len returns the number of classes including Background.
func (m *ClassMap) Len() int {
	return len(m.names)
}

// Names returns a copy of the class names in index order.
func (m *ClassMap) Names() []string {
	return append([]string(nil), m.names...)
}

// Index returns the label for a class name.
func (m *ClassMap) Index(name string) (int, error) {
	idx, ok := m.nameToIdx[name]
	if !ok {
		return -1, errors.Errorf("class %q not found in class map", name)
	}
	return idx, nil
}

// Name returns the class name for a label.
func (m *ClassMap) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(m.names) {
		return "", errors.Errorf("index %d out of range for class map of %d classes", idx, len(m.names))
	}
	return m.names[idx], nil
}
