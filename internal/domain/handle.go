package domain

import (
	"sort"
	"strings"
)

// HandleSet is a set of GitHub logins. Logins are case-insensitive, so
// entries are keyed by their lowercase form and keep the first spelling seen.
type HandleSet map[string]string

// NewHandleSet creates a set holding the given handles
func NewHandleSet(handles ...string) HandleSet {
	s := make(HandleSet, len(handles))
	for _, h := range handles {
		s.Add(h)
	}
	return s
}

// Add inserts a handle. Empty handles are ignored.
func (s HandleSet) Add(handle string) {
	if handle == "" {
		return
	}
	key := strings.ToLower(handle)
	if _, ok := s[key]; !ok {
		s[key] = handle
	}
}

// Has reports whether the handle is in the set
func (s HandleSet) Has(handle string) bool {
	_, ok := s[strings.ToLower(handle)]
	return ok
}

// Union adds every handle of other to s
func (s HandleSet) Union(other HandleSet) {
	for key, h := range other {
		if _, ok := s[key]; !ok {
			s[key] = h
		}
	}
}

// Difference returns the handles in s that are not in other
func (s HandleSet) Difference(other HandleSet) HandleSet {
	out := make(HandleSet)
	for key, h := range s {
		if _, ok := other[key]; !ok {
			out[key] = h
		}
	}
	return out
}

// Sorted returns the handles ordered by their lowercase form
func (s HandleSet) Sorted() []string {
	keys := make([]string, 0, len(s))
	for key := range s {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	handles := make([]string, len(keys))
	for i, key := range keys {
		handles[i] = s[key]
	}
	return handles
}
