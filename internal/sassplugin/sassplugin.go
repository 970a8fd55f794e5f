// Package sassplugin is the pipeline stage compiling Sass sources into CSS.
package sassplugin

import (
	"context"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/compiler"
	"github.com/toastate/sasspipe/internal/compiler/dartsass"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/options"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/store"
	"github.com/toastate/sasspipe/internal/tlogger"
	"golang.org/x/sync/errgroup"
)

// Errors failing an invocation. They are checked before the file compiles.
var (
	ErrSourceMapOutsideDestination = errors.New("The filepath of the SASS sourceMap option is invalid." +
		" If you specify a string for the sourceMap option, you must specify a path in the destination directory.")
	ErrDuplicateSourceMap = errors.New("Duplicate string value SASS sourceMap option are forbidden." +
		" The Source Map filepath must be defined for each file to be processed." +
		" You need to define the sourceMap option with a different value for each file.")
	ErrDestinationCollision = errors.New("several files are renamed to the same destination")
)

// Dependencies maps the source-relative name of every file a compiled file
// was built from to its record. A nil record means the file was not in the
// store.
type Dependencies map[string]*store.File

// Plugin compiles the matched files of a store.
type Plugin struct {
	input    options.Input
	compiler compiler.Compiler
	registry *loader.Registry

	once     sync.Once
	dartsass *dartsass.Compiler
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithCompiler replaces the default Dart Sass compiler.
func WithCompiler(c compiler.Compiler) Option {
	return func(pl *Plugin) { pl.compiler = c }
}

// WithRegistry resolves module references in reg instead of loader.Default.
func WithRegistry(reg *loader.Registry) Option {
	return func(pl *Plugin) { pl.registry = reg }
}

// New returns the plugin for input. A nil input means the defaults.
func New(input options.Input, opts ...Option) *Plugin {
	pl := &Plugin{input: input, registry: loader.Default}
	for _, opt := range opts {
		opt(pl)
	}
	return pl
}

func (pl *Plugin) getCompiler() compiler.Compiler {
	if pl.compiler != nil {
		return pl.compiler
	}
	pl.once.Do(func() {
		pl.dartsass = dartsass.New(dartsass.Config{})
	})
	return pl.dartsass
}

// Close stops the default compiler if the plugin started it.
func (pl *Plugin) Close() error {
	if pl.dartsass == nil {
		return nil
	}
	return pl.dartsass.Close()
}

// claims is a set of absolute paths taken during one invocation.
type claims struct {
	mu    sync.Mutex
	paths map[string]bool
}

func newClaims() *claims {
	return &claims{paths: map[string]bool{}}
}

// claim records path and reports whether it was free.
func (c *claims) claim(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paths[path] {
		return false
	}
	c.paths[path] = true
	return true
}

// isPathInside reports whether child is strictly below parent.
func isPathInside(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

type run struct {
	pl       *Plugin
	files    *store.Store
	snapshot store.Files
	p        pipeline.Context
	opts     *options.PluginOptions

	srcBase  string
	destBase string

	sourceMaps   *claims
	destinations *claims
}

// Run implements pipeline.Plugin.
func (pl *Plugin) Run(ctx context.Context, files *store.Store, p pipeline.Context) error {
	opts, err := options.Normalize(ctx, pl.registry, files, p, pl.input)
	if err != nil {
		return err
	}

	snapshot := files.Snapshot()
	valid := snapshot.Filter(func(_ string, f *store.File) bool { return store.IsFile(f) })
	matched, err := store.MatchFilenames(valid.Keys(), opts.Pattern)
	if err != nil {
		return err
	}

	tlogger.Debug("plugin", "sass", "msg", "process files", "count", len(matched), "files", strings.Join(matched, ","))

	r := &run{
		pl:           pl,
		files:        files,
		snapshot:     snapshot,
		p:            p,
		opts:         opts,
		srcBase:      p.Path(p.Source()),
		destBase:     p.Path(p.Destination()),
		sourceMaps:   newClaims(),
		destinations: newClaims(),
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, filename := range matched {
		filename := filename
		file, _ := valid.Get(filename)
		g.Go(func() error {
			if err := r.processFile(gctx, filename, file); err != nil {
				return errors.WithMessagef(err, "sass: %s", filename)
			}
			return nil
		})
	}
	return g.Wait()
}

func (r *run) processFile(ctx context.Context, filename string, file *store.File) error {
	srcPath := filepath.Join(r.srcBase, filename)

	renamed, err := r.opts.Renamer(ctx, filename)
	if err != nil {
		return errors.WithMessage(err, "renamer")
	}
	destPath := filepath.Join(r.destBase, renamed)
	if filepath.IsAbs(renamed) {
		destPath = filepath.Clean(renamed)
	}

	copts, err := options.CompilerOptions(ctx, r.pl.registry, r.opts, &options.FileContext{
		Filename:                filename,
		File:                    file,
		SourceFileFullpath:      srcPath,
		DestinationFileFullpath: destPath,
		Pipeline:                r.p,
		Files:                   r.snapshot,
		PluginOptions:           r.opts,
	}, r.destBase)
	if err != nil {
		return err
	}

	if copts.SourceMapPath != "" {
		if !isPathInside(copts.SourceMapPath, r.destBase) {
			return ErrSourceMapOutsideDestination
		}
		if !r.sourceMaps.claim(copts.SourceMapPath) {
			return errors.Wrap(ErrDuplicateSourceMap, copts.SourceMapPath)
		}
	}
	if !r.destinations.claim(destPath) {
		return errors.Wrap(ErrDestinationCollision, destPath)
	}

	res, err := r.pl.getCompiler().Compile(ctx, copts)
	if err != nil {
		return err
	}

	var extra map[string]any
	if r.opts.DependenciesKey != "" {
		extra = map[string]any{r.opts.DependenciesKey: r.dependencies(filename, file, res.IncludedFiles)}
	}

	newFilename, err := filepath.Rel(r.destBase, destPath)
	if err != nil {
		return errors.Wrap(err, "destination filename")
	}

	original := file
	if _, existing, ok := store.Find(r.files, newFilename, r.p); ok && store.IsFile(existing) {
		original = existing
	}
	store.Write(r.files, newFilename, res.CSS, store.WriteOptions{
		Original: original,
		Extra:    extra,
		Resolver: r.p,
	})
	cssKey, _, _ := store.Find(r.files, newFilename, r.p)

	if filename != newFilename {
		tlogger.Debug("plugin", "sass", "msg", "done process", "file", filename, "renamed", newFilename)
		if filename != cssKey {
			r.files.Delete(filename)
			tlogger.Debug("plugin", "sass", "msg", "file deleted", "file", filename)
		}
	} else {
		tlogger.Debug("plugin", "sass", "msg", "done process", "file", filename)
	}

	for _, included := range res.IncludedFiles {
		rel, err := filepath.Rel(r.srcBase, included)
		if err != nil {
			continue
		}
		key, _, ok := store.Find(r.files, rel, r.p)
		if !ok || key == cssKey {
			continue
		}
		if r.files.Delete(key) {
			tlogger.Debug("plugin", "sass", "msg", "included file deleted", "file", key)
		}
	}

	if res.Map != nil && !copts.SourceMapEmbed {
		mapFilename := newFilename + ".map"
		if copts.SourceMapPath != "" {
			if mapFilename, err = filepath.Rel(r.destBase, copts.SourceMapPath); err != nil {
				return errors.Wrap(err, "source map filename")
			}
		}
		store.Write(r.files, mapFilename, res.Map, store.WriteOptions{
			Extra:    extra,
			Resolver: r.p,
		})
		tlogger.Debug("plugin", "sass", "msg", "generate source map", "file", mapFilename)
	}

	return nil
}

// dependencies builds the record of file and everything it included from
// the snapshot taken before the invocation wrote anything.
func (r *run) dependencies(filename string, file *store.File, included []string) Dependencies {
	deps := Dependencies{filename: file}
	for _, path := range included {
		rel, err := filepath.Rel(r.srcBase, path)
		if err != nil {
			rel = path
		}
		_, f, ok := store.Find(r.snapshot, rel, r.p)
		if !ok {
			f = nil
		}
		deps[rel] = f
	}
	return deps
}
