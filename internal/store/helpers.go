package store

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// PathResolver is the part of a pipeline the helpers need to normalize names
// against its source and destination roots.
type PathResolver interface {
	Source() string
	Destination() string
	Path(elem ...string) string
}

// MatchFilenames applies patterns in order: a plain pattern appends the
// names it matches that are not already selected, a pattern starting with
// "!" removes the selected names it matches.
func MatchFilenames(names []string, patterns []string) ([]string, error) {
	var selected []string
	seen := map[string]bool{}

	for _, pattern := range patterns {
		negate := strings.HasPrefix(pattern, "!")
		if negate {
			pattern = pattern[1:]
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, errors.Errorf("invalid glob pattern %q", pattern)
		}

		if negate {
			kept := selected[:0:0]
			for _, name := range selected {
				if MatchPattern(pattern, name) {
					delete(seen, name)
					continue
				}
				kept = append(kept, name)
			}
			selected = kept
			continue
		}

		for _, name := range names {
			if !seen[name] && MatchPattern(pattern, name) {
				seen[name] = true
				selected = append(selected, name)
			}
		}
	}

	return selected, nil
}

// MatchPattern reports whether name matches a single glob pattern.
// Invalid patterns match nothing. A name segment starting with a dot only
// matches a pattern segment that starts with a dot too, so wildcards never
// select hidden files or directories.
func MatchPattern(pattern, name string) bool {
	name = filepath.ToSlash(name)
	if !dotsAllowed(pattern, name) {
		return false
	}
	ok, err := doublestar.Match(pattern, name)
	return err == nil && ok
}

func dotsAllowed(pattern, name string) bool {
	var dotted []string
	for _, seg := range strings.Split(pattern, "/") {
		if strings.HasPrefix(seg, ".") {
			dotted = append(dotted, seg)
		}
	}
	for _, seg := range strings.Split(name, "/") {
		if !strings.HasPrefix(seg, ".") {
			continue
		}
		allowed := false
		for _, d := range dotted {
			if ok, err := doublestar.Match(d, seg); err == nil && ok {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}
	return true
}

// MatchAny reports whether name is selected by patterns (negation aware).
func MatchAny(name string, patterns []string) (bool, error) {
	matched, err := MatchFilenames([]string{name}, patterns)
	if err != nil {
		return false, err
	}
	return len(matched) > 0, nil
}

// Find looks name up in files: the exact key first, then keys that resolve to
// the same path under the pipeline source root, then under its destination
// root. Without a resolver, paths are compared after filepath.Clean.
func Find(files Lookup, name string, p PathResolver) (string, *File, bool) {
	if f, ok := files.Get(name); ok {
		return name, f, true
	}

	var normalizers []func(string) string
	if p != nil {
		for _, base := range []string{p.Source(), p.Destination()} {
			base := base
			normalizers = append(normalizers, func(s string) string { return p.Path(base, s) })
		}
	} else {
		normalizers = append(normalizers, filepath.Clean)
	}

	keys := files.Keys()
	for _, normalize := range normalizers {
		want := normalize(name)
		for _, key := range keys {
			if normalize(key) != want {
				continue
			}
			if f, ok := files.Get(key); ok {
				return key, f, true
			}
		}
	}

	return "", nil, false
}

// WriteOptions controls how Write builds the new record.
type WriteOptions struct {
	// Original is the record whose mode and metadata carry over. Its keys win
	// over Extra.
	Original *File
	// Extra metadata merged first.
	Extra map[string]any
	// Resolver enables path-normalized key lookup.
	Resolver PathResolver
}

// Write stores contents under name, or under the existing key name resolves
// to, and returns the new record.
func Write(s *Store, name string, contents []byte, opts WriteOptions) *File {
	f := &File{
		Mode:     DefaultMode,
		Metadata: map[string]any{},
	}
	for k, v := range opts.Extra {
		f.Metadata[k] = v
	}
	if opts.Original != nil {
		if opts.Original.Mode != "" {
			f.Mode = opts.Original.Mode
		}
		for k, v := range opts.Original.Metadata {
			f.Metadata[k] = v
		}
	}
	if contents == nil {
		contents = []byte{}
	}
	f.Contents = contents

	if key, _, ok := Find(s, name, opts.Resolver); ok {
		name = key
	}
	s.Set(name, f)
	return f
}
