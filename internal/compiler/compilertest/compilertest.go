// Package compilertest provides a deterministic in-memory compiler. It
// inlines @import and @use targets and copies every other line, which is
// enough to exercise dependency tracking, importers, custom functions and
// source maps without a Sass runtime.
package compilertest

import (
	"context"
	"encoding/base64"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/helpers"
	"github.com/toastate/sasspipe/internal/store"
)

// ErrTooDeep is returned for import chains deeper than maxDepth.
var ErrTooDeep = errors.New("reached max import depth, import loop?")

const maxDepth = 5

var importRegexp = regexp.MustCompile(`^\s*@(?:import|use)\s+["']?([^"';]+)["']?\s*;?\s*$`)

// Reader returns the contents of an absolute path.
type Reader func(path string) (string, bool)

// Compiler is the in-memory compiler. It is safe for concurrent use.
type Compiler struct {
	read Reader

	mu    sync.Mutex
	calls map[string]*compiler.Options
}

// New returns a compiler reading imports through read.
func New(read Reader) *Compiler {
	return &Compiler{read: read, calls: map[string]*compiler.Options{}}
}

// FromStore reads imports from a frozen store, relative to srcBase.
func FromStore(files store.Lookup, srcBase string) *Compiler {
	return New(func(path string) (string, bool) {
		rel, err := filepath.Rel(srcBase, path)
		if err != nil {
			return "", false
		}
		f, ok := files.Get(rel)
		if !ok || !store.IsFile(f) {
			return "", false
		}
		return string(f.Contents), true
	})
}

// Options returns the options of the last compilation of file.
func (c *Compiler) Options(file string) (*compiler.Options, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.calls[file]
	return o, ok
}

// Calls returns how many distinct files were compiled.
func (c *Compiler) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

type run struct {
	c        *Compiler
	ctx      context.Context
	opts     *compiler.Options
	included []string
	seen     map[string]bool
}

// Compile implements compiler.Compiler.
func (c *Compiler) Compile(ctx context.Context, opts *compiler.Options) (*compiler.Result, error) {
	c.mu.Lock()
	c.calls[opts.File] = opts
	c.mu.Unlock()

	r := &run{c: c, ctx: ctx, opts: opts, seen: map[string]bool{opts.File: true}}
	body, err := r.expand(opts.Data, opts.File, 0)
	if err != nil {
		return nil, err
	}

	body, err = r.applyFunctions(body)
	if err != nil {
		return nil, err
	}

	css := strings.TrimSpace(body)
	if opts.OutputStyle == compiler.OutputStyleCompressed {
		css = strings.Join(strings.Fields(css), " ")
	}

	res := &compiler.Result{CSS: []byte(css), IncludedFiles: r.included}
	if opts.WantsSourceMap() {
		res.Map = r.sourceMap()
		if !opts.OmitSourceMapURL {
			url := opts.MappingURL()
			if opts.SourceMapEmbed {
				url = "data:application/json;base64," + base64.StdEncoding.EncodeToString(res.Map)
			}
			res.CSS = []byte(css + "\n\n/*# sourceMappingURL=" + url + " */")
		}
	}
	return res, nil
}

func (r *run) expand(data, file string, depth int) (string, error) {
	if depth > maxDepth {
		return "", errors.Wrap(ErrTooDeep, file)
	}

	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n") {
		m := importRegexp.FindStringSubmatch(line)
		if m == nil {
			out = append(out, line)
			continue
		}

		content, path, err := r.resolve(strings.TrimSpace(m[1]), file)
		if err != nil {
			return "", err
		}
		from := file
		if path != "" {
			if !r.seen[path] {
				r.seen[path] = true
				r.included = append(r.included, path)
			}
			from = path
		}
		nested, err := r.expand(content, from, depth+1)
		if err != nil {
			return "", err
		}
		out = append(out, strings.TrimRight(nested, "\n"))
	}
	return strings.Join(out, "\n"), nil
}

func (r *run) resolve(url, prev string) (string, string, error) {
	for _, importer := range r.opts.Importers {
		imp, err := importer(url, prev)
		if err != nil {
			return "", "", err
		}
		if imp == nil {
			continue
		}
		if imp.File == "" {
			return imp.Contents, "", nil
		}
		p := imp.File
		if !filepath.IsAbs(p) {
			p = filepath.Join(filepath.Dir(prev), p)
		}
		if content, found, ok := r.lookup(p); ok {
			return content, found, nil
		}
		return "", "", errors.Errorf("importer resolved %q to missing file %s", url, imp.File)
	}

	bases := append([]string{filepath.Dir(prev)}, r.opts.IncludePaths...)
	for _, base := range bases {
		if content, found, ok := r.lookup(filepath.Join(base, filepath.FromSlash(url))); ok {
			return content, found, nil
		}
	}
	return "", "", errors.Errorf("%s: can't find stylesheet to import: %q", prev, url)
}

func (r *run) lookup(p string) (string, string, bool) {
	dir, base := filepath.Split(p)
	var candidates []string
	switch filepath.Ext(base) {
	case ".scss", ".sass", ".css":
		candidates = []string{p, filepath.Join(dir, "_"+base)}
	default:
		for _, ext := range []string{".scss", ".sass", ".css"} {
			candidates = append(candidates, p+ext, filepath.Join(dir, "_"+base+ext))
		}
	}
	for _, c := range candidates {
		if content, ok := r.c.read(c); ok {
			return content, c, true
		}
	}
	return "", "", false
}

func (r *run) applyFunctions(body string) (string, error) {
	for _, fn := range r.opts.Functions {
		name := fn.Signature
		if i := strings.Index(name, "("); i >= 0 {
			name = name[:i]
		}
		re, err := regexp.Compile(regexp.QuoteMeta(strings.TrimSpace(name)) + `\(([^)]*)\)`)
		if err != nil {
			return "", err
		}

		var callErr error
		body = re.ReplaceAllStringFunc(body, func(call string) string {
			argText := re.FindStringSubmatch(call)[1]
			var args []string
			for _, a := range strings.Split(argText, ",") {
				if a = strings.TrimSpace(a); a != "" {
					args = append(args, a)
				}
			}
			v, err := fn.Func(r.ctx, args)
			if err != nil && callErr == nil {
				callErr = errors.Wrapf(err, "function %s", fn.Signature)
			}
			return v
		})
		if callErr != nil {
			return "", callErr
		}
	}
	return body, nil
}

func (r *run) sourceMap() []byte {
	mapDir := filepath.Dir(r.opts.MapFile())
	rel := func(p string) string {
		s, err := filepath.Rel(mapDir, p)
		if err != nil {
			return filepath.ToSlash(p)
		}
		return filepath.ToSlash(s)
	}

	sources := []string{rel(r.opts.File)}
	for _, p := range r.included {
		sources = append(sources, rel(p))
	}
	m := map[string]any{
		"version":  3,
		"file":     rel(r.opts.OutFile),
		"sources":  sources,
		"names":    []string{},
		"mappings": "",
	}
	if r.opts.SourceMapContents {
		contents := []string{r.opts.Data}
		for _, p := range r.included {
			c, _ := r.c.read(p)
			contents = append(contents, c)
		}
		m["sourcesContent"] = contents
	}
	b, _ := helpers.MarshalJSON(m)
	return b
}
