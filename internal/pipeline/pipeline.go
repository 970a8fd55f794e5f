// Package pipeline reads a source tree into a store, runs plugins over it in
// order and writes the result to the destination tree.
package pipeline

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/store"
	"github.com/toastate/sasspipe/internal/tlogger"
)

// Context is what a plugin sees of the pipeline running it.
type Context interface {
	// Source returns the configured source root, possibly relative.
	Source() string
	// Destination returns the configured destination root, possibly relative.
	Destination() string
	// Path resolves elem against the pipeline root into a clean absolute path.
	Path(elem ...string) string
}

// Plugin is one pipeline stage.
type Plugin interface {
	Run(ctx context.Context, files *store.Store, p Context) error
}

// PluginFunc adapts a function to the Plugin interface.
type PluginFunc func(ctx context.Context, files *store.Store, p Context) error

// Run calls f.
func (f PluginFunc) Run(ctx context.Context, files *store.Store, p Context) error {
	return f(ctx, files, p)
}

// Pipeline holds the roots and the ordered plugin list.
type Pipeline struct {
	root        string
	source      string
	destination string

	// Clean removes the destination before writing.
	Clean bool
	// Ignore lists glob patterns, relative to the source root, skipped by Read.
	Ignore []string

	plugins []Plugin
}

// New returns a pipeline rooted at root with the "src" and "build" defaults.
func New(root string) *Pipeline {
	if root == "" {
		root = "."
	}
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return &Pipeline{
		root:        root,
		source:      "src",
		destination: "build",
		Clean:       true,
	}
}

// Root returns the absolute pipeline root.
func (p *Pipeline) Root() string { return p.root }

// Source implements Context.
func (p *Pipeline) Source() string { return p.source }

// SetSource sets the source root.
func (p *Pipeline) SetSource(dir string) *Pipeline {
	p.source = dir
	return p
}

// Destination implements Context.
func (p *Pipeline) Destination() string { return p.destination }

// SetDestination sets the destination root.
func (p *Pipeline) SetDestination(dir string) *Pipeline {
	p.destination = dir
	return p
}

// Path implements Context: elements are applied left to right from the root,
// an absolute element restarting the resolution.
func (p *Pipeline) Path(elem ...string) string {
	out := p.root
	for _, e := range elem {
		if e == "" {
			continue
		}
		if filepath.IsAbs(e) {
			out = e
			continue
		}
		out = filepath.Join(out, e)
	}
	return filepath.Clean(out)
}

// Use appends plugins.
func (p *Pipeline) Use(plugins ...Plugin) *Pipeline {
	p.plugins = append(p.plugins, plugins...)
	return p
}

func (p *Pipeline) ignored(rel string) bool {
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if len(part) > 0 && part[0] == '.' {
			return true
		}
	}
	for _, pattern := range p.Ignore {
		if store.MatchPattern(pattern, rel) {
			return true
		}
	}
	return false
}

// Read loads every regular file under the source root. Dot files and ignored
// paths are skipped; partials are kept so plugins can resolve them.
func (p *Pipeline) Read(ctx context.Context) (*store.Store, error) {
	srcDir := p.Path(p.source)
	if _, err := os.Stat(srcDir); os.IsNotExist(err) {
		tlogger.Error("msg", "Src folder not found", "path", srcDir, "err", err)
		return nil, errors.New("src folder not found")
	}

	files := store.New()
	err := filepath.WalkDir(srcDir, func(absolutepath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		path, err := filepath.Rel(srcDir, absolutepath)
		if err != nil {
			tlogger.Error("msg", "Failed to get relative path", "path", absolutepath, "err", err)
			return err
		}
		if path == "." {
			return nil
		}
		if p.ignored(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		contents, err := os.ReadFile(absolutepath)
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		files.Set(path, &store.File{
			Contents: contents,
			Mode:     "0" + strconv.FormatUint(uint64(info.Mode().Perm()), 8),
			Metadata: map[string]any{},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return files, nil
}

// Run passes files through every plugin in order, stopping at the first
// failure.
func (p *Pipeline) Run(ctx context.Context, files *store.Store) error {
	for i, plugin := range p.plugins {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := plugin.Run(ctx, files, p); err != nil {
			return errors.WithMessagef(err, "plugin %d", i)
		}
	}
	return nil
}

func removeAll(dir string) error {
	err := os.RemoveAll(dir)
	for i := 0; err != nil && i < 2; i++ {
		<-time.After(time.Millisecond * 20)
		err = os.RemoveAll(dir)
	}
	return err
}

// Write writes every file record of files under the destination root.
func (p *Pipeline) Write(ctx context.Context, files *store.Store) error {
	buildDir := p.Path(p.destination)

	if p.Clean {
		if err := removeAll(buildDir); err != nil {
			tlogger.Error("msg", "Failed to remove build folder", "path", buildDir, "err", err)
			return err
		}
	}
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		tlogger.Error("msg", "Failed to create build folder", "path", buildDir, "err", err)
		return err
	}

	for _, name := range files.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, ok := files.Get(name)
		if !ok || !store.IsFile(f) {
			continue
		}

		mode, err := parseMode(f.Mode)
		if err != nil {
			return errors.Wrapf(err, "mode of %s", name)
		}

		target := p.Path(buildDir, name)
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(target, f.Contents, mode); err != nil {
			tlogger.Error("msg", "Failed to write file", "path", target, "err", err)
			return err
		}
	}
	return nil
}

func parseMode(s string) (fs.FileMode, error) {
	if s == "" {
		s = store.DefaultMode
	}
	m, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return 0, err
	}
	return fs.FileMode(m), nil
}

// Build reads, processes and writes the tree.
func (p *Pipeline) Build(ctx context.Context) (*store.Store, error) {
	srcDir := p.Path(p.source)
	tlogger.Info("msg", "Building started", "path", srcDir)

	files, err := p.Read(ctx)
	if err != nil {
		return nil, err
	}
	if err := p.Run(ctx, files); err != nil {
		tlogger.Error("msg", "Error processing files", "path", srcDir, "err", err)
		return nil, err
	}
	if err := p.Write(ctx, files); err != nil {
		return nil, err
	}

	tlogger.Info("msg", "Building finished", "path", srcDir, "files", files.Len())
	return files, nil
}
