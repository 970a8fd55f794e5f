// Package store implements the in-memory file collection shared by every
// pipeline plugin, and the lookup and write helpers plugins use on it.
package store

import (
	"sort"
	"sync"
)

// DefaultMode is the mode given to records created by a plugin.
const DefaultMode = "0644"

// File is a file record: a byte buffer plus arbitrary metadata.
// A record is not modified once it has been put in a Store: writers build a
// new record and replace the key, so snapshots keep seeing the old value.
type File struct {
	Contents []byte
	Mode     string
	Metadata map[string]any
}

// Meta returns the metadata value stored under key.
func (f *File) Meta(key string) (any, bool) {
	if f == nil || f.Metadata == nil {
		return nil, false
	}
	v, ok := f.Metadata[key]
	return v, ok
}

// IsFile reports whether f is a file record, i.e. carries a byte buffer.
func IsFile(f *File) bool {
	return f != nil && f.Contents != nil
}

// Store maps virtual filenames to records. Every operation is atomic;
// enumeration follows insertion order.
type Store struct {
	mu    sync.RWMutex
	files map[string]*File
	order []string
}

// New returns an empty store.
func New() *Store {
	return &Store{files: make(map[string]*File)}
}

// FromMap builds a store from m, keys sorted.
func FromMap(m map[string]*File) *Store {
	s := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Set(k, m[k])
	}
	return s
}

// Get returns the record stored under name.
func (s *Store) Get(name string) (*File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[name]
	return f, ok
}

// Set inserts or replaces the record stored under name.
func (s *Store) Set(name string, f *File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		s.order = append(s.order, name)
	}
	s.files[name] = f
}

// Delete removes name. It reports whether the key was present.
func (s *Store) Delete(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.files[name]; !ok {
		return false
	}
	delete(s.files, name)
	for i, k := range s.order {
		if k == name {
			s.order = append(s.order[:i:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Keys returns the filenames in insertion order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Snapshot freezes the current content. Records are shared, not copied.
func (s *Store) Snapshot() Files {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m := make(map[string]*File, len(s.files))
	for k, v := range s.files {
		m[k] = v
	}
	return Files{files: m, order: append([]string(nil), s.order...)}
}

// Files is an immutable view of a Store at one point in time.
type Files struct {
	files map[string]*File
	order []string
}

// Get returns the record stored under name.
func (fs Files) Get(name string) (*File, bool) {
	f, ok := fs.files[name]
	return f, ok
}

// Keys returns the filenames in insertion order.
func (fs Files) Keys() []string {
	return append([]string(nil), fs.order...)
}

// Len returns the number of entries.
func (fs Files) Len() int {
	return len(fs.files)
}

// Filter returns the entries for which keep returns true.
func (fs Files) Filter(keep func(name string, f *File) bool) Files {
	out := Files{files: make(map[string]*File)}
	for _, k := range fs.order {
		if f := fs.files[k]; keep(k, f) {
			out.files[k] = f
			out.order = append(out.order, k)
		}
	}
	return out
}

// Lookup is the read side shared by Store and Files.
type Lookup interface {
	Get(name string) (*File, bool)
	Keys() []string
}

var (
	_ Lookup = (*Store)(nil)
	_ Lookup = Files{}
)
