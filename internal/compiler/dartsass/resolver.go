package dartsass

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/bep/godartsass/v2"
	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/compiler"
)

const (
	fileScheme   = "file://"
	inlineScheme = "sasspipe-inline:"
)

var sassExtensions = []string{".scss", ".sass", ".css"}

// resolver chains the configured importers with a file importer and records
// every file it hands to the compiler.
type resolver struct {
	entry        string
	importers    []compiler.Importer
	includePaths []string

	mu       sync.Mutex
	included []string
	seen     map[string]bool
	inline   map[string]compiler.Import
}

func newResolver(opts *compiler.Options) *resolver {
	return &resolver{
		entry:        opts.File,
		importers:    opts.Importers,
		includePaths: opts.IncludePaths,
		seen:         map[string]bool{},
		inline:       map[string]compiler.Import{},
	}
}

func (r *resolver) record(path string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.seen[path] && path != r.entry {
		r.seen[path] = true
		r.included = append(r.included, path)
	}
	return fileScheme + filepath.ToSlash(path)
}

func (r *resolver) includedFiles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.included...)
}

// CanonicalizeURL implements godartsass.ImportResolver. The protocol does not
// tell which file contains the import, so importers always get the entry
// file as prev and relative lookups start from its directory.
func (r *resolver) CanonicalizeURL(url string) (string, error) {
	if strings.HasPrefix(url, fileScheme) {
		p := filepath.FromSlash(strings.TrimPrefix(url, fileScheme))
		if found := resolveFile(p); found != "" {
			return r.record(found), nil
		}
		return "", nil
	}

	for _, importer := range r.importers {
		imp, err := importer(url, r.entry)
		if err != nil {
			return "", errors.Wrapf(err, "importer for %q", url)
		}
		if imp == nil {
			continue
		}
		if imp.File != "" {
			p := imp.File
			if !filepath.IsAbs(p) {
				p = filepath.Join(filepath.Dir(r.entry), p)
			}
			if found := resolveFile(p); found != "" {
				return r.record(found), nil
			}
			return "", errors.Errorf("importer resolved %q to missing file %s", url, imp.File)
		}
		key := inlineScheme + url
		r.mu.Lock()
		r.inline[key] = *imp
		r.mu.Unlock()
		return key, nil
	}

	bases := append([]string{filepath.Dir(r.entry)}, r.includePaths...)
	for _, base := range bases {
		if found := resolveFile(filepath.Join(base, filepath.FromSlash(url))); found != "" {
			return r.record(found), nil
		}
	}

	return "", nil
}

// Load implements godartsass.ImportResolver.
func (r *resolver) Load(canonicalizedURL string) (godartsass.Import, error) {
	if strings.HasPrefix(canonicalizedURL, inlineScheme) {
		r.mu.Lock()
		imp, ok := r.inline[canonicalizedURL]
		r.mu.Unlock()
		if !ok {
			return godartsass.Import{}, errors.Errorf("unknown import %s", canonicalizedURL)
		}
		syntax := godartsass.SourceSyntaxSCSS
		if imp.IndentedSyntax {
			syntax = godartsass.SourceSyntaxSASS
		}
		return godartsass.Import{Content: imp.Contents, SourceSyntax: syntax}, nil
	}

	p := filepath.FromSlash(strings.TrimPrefix(canonicalizedURL, fileScheme))
	content, err := os.ReadFile(p)
	if err != nil {
		return godartsass.Import{}, errors.Wrapf(err, "read %s", p)
	}
	return godartsass.Import{Content: string(content), SourceSyntax: syntaxOf(p)}, nil
}

func syntaxOf(path string) godartsass.SourceSyntax {
	switch filepath.Ext(path) {
	case ".sass":
		return godartsass.SourceSyntaxSASS
	case ".css":
		return godartsass.SourceSyntaxCSS
	default:
		return godartsass.SourceSyntaxSCSS
	}
}

// resolveFile applies the Sass lookup rules to p: exact file, partial with
// a leading underscore, implicit extensions, then index files.
func resolveFile(p string) string {
	dir, base := filepath.Split(p)

	var candidates []string
	if ext := filepath.Ext(base); ext != "" && slices.Contains(sassExtensions, ext) {
		candidates = append(candidates, p, filepath.Join(dir, "_"+base))
	} else {
		for _, ext := range sassExtensions {
			candidates = append(candidates, p+ext, filepath.Join(dir, "_"+base+ext))
		}
		for _, ext := range sassExtensions {
			candidates = append(candidates, filepath.Join(p, "_index"+ext), filepath.Join(p, "index"+ext))
		}
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.Mode().IsRegular() {
			return c
		}
	}
	return ""
}
