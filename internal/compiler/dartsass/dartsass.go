// Package dartsass implements compiler.Compiler on top of the embedded Dart
// Sass protocol.
package dartsass

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bep/godartsass/v2"
	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/helpers"
	"github.com/toastate/sasspipe/internal/tlogger"
)

// ErrFunctionsUnsupported is returned when custom functions are configured:
// the embedded protocol client exposes no host function hook.
var ErrFunctionsUnsupported = errors.New("custom sass functions are not supported by the dart sass compiler")

// Config configures the transpiler process.
type Config struct {
	// Binary is the dart-sass executable. Empty means "sass" from PATH.
	Binary string
	// Timeout bounds a single compilation.
	Timeout time.Duration
}

// Compiler compiles through a lazily started dart-sass process. It is safe
// for concurrent use.
type Compiler struct {
	cfg Config

	mu         sync.Mutex
	transpiler *godartsass.Transpiler
}

// New returns a Compiler. The dart-sass process starts on first use.
func New(cfg Config) *Compiler {
	return &Compiler{cfg: cfg}
}

func (c *Compiler) start() (*godartsass.Transpiler, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transpiler != nil {
		return c.transpiler, nil
	}

	t, err := godartsass.Start(godartsass.Options{
		DartSassEmbeddedFilename: c.cfg.Binary,
		Timeout:                  c.cfg.Timeout,
	})
	if err != nil {
		return nil, errors.Wrap(err, "start dart sass")
	}
	tlogger.Debug("compiler", "dartsass", "msg", "transpiler started")
	c.transpiler = t
	return t, nil
}

// Close stops the dart-sass process if it was started.
func (c *Compiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transpiler == nil {
		return nil
	}
	err := c.transpiler.Close()
	c.transpiler = nil
	return err
}

// Compile implements compiler.Compiler.
func (c *Compiler) Compile(ctx context.Context, opts *compiler.Options) (*compiler.Result, error) {
	if len(opts.Functions) > 0 {
		return nil, ErrFunctionsUnsupported
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t, err := c.start()
	if err != nil {
		return nil, err
	}

	resolver := newResolver(opts)

	syntax := godartsass.SourceSyntaxSCSS
	if opts.IndentedSyntax {
		syntax = godartsass.SourceSyntaxSASS
	}
	style := godartsass.OutputStyleExpanded
	if opts.OutputStyle == compiler.OutputStyleCompressed {
		style = godartsass.OutputStyleCompressed
	}

	res, err := t.Execute(godartsass.Args{
		Source:                  opts.Data,
		URL:                     "file://" + filepath.ToSlash(opts.File),
		OutputStyle:             style,
		SourceSyntax:            syntax,
		IncludePaths:            opts.IncludePaths,
		ImportResolver:          resolver,
		EnableSourceMap:         opts.WantsSourceMap(),
		SourceMapIncludeSources: opts.SourceMapContents,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "compile %s", opts.File)
	}

	out := &compiler.Result{
		CSS:           []byte(res.CSS),
		IncludedFiles: resolver.includedFiles(),
	}

	if opts.WantsSourceMap() && res.SourceMap != "" {
		m, err := relocateMap(res.SourceMap, opts)
		if err != nil {
			return nil, err
		}
		out.Map = m
		out.CSS = appendMappingURL(out.CSS, m, opts)
	}

	return out, nil
}

// relocateMap rewrites file and sources relative to the map location, the
// way the CSS consumer resolves them.
func relocateMap(raw string, opts *compiler.Options) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errors.Wrap(err, "decode source map")
	}

	mapDir := filepath.Dir(opts.MapFile())
	if opts.SourceMapEmbed {
		mapDir = filepath.Dir(opts.OutFile)
	}
	rel := func(p string) string {
		p = strings.TrimPrefix(p, "file://")
		r, err := filepath.Rel(mapDir, filepath.FromSlash(p))
		if err != nil {
			return p
		}
		return filepath.ToSlash(r)
	}

	m["file"] = rel(opts.OutFile)
	if sources, ok := m["sources"].([]any); ok {
		for i, s := range sources {
			if str, ok := s.(string); ok && strings.HasPrefix(str, "file://") {
				sources[i] = rel(str)
			}
		}
	}

	return helpers.MarshalJSON(m)
}

func appendMappingURL(css, m []byte, opts *compiler.Options) []byte {
	if opts.OmitSourceMapURL {
		return css
	}
	url := opts.MappingURL()
	if opts.SourceMapEmbed {
		url = "data:application/json;base64," + base64.StdEncoding.EncodeToString(m)
	}
	out := strings.TrimRight(string(css), "\n")
	return []byte(out + "\n\n/*# sourceMappingURL=" + url + " */")
}
