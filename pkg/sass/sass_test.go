package sass_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toastate/sasspipe/internal/compiler/compilertest"
	"github.com/toastate/sasspipe/internal/loader"
	"github.com/toastate/sasspipe/internal/tlogger"
	"github.com/toastate/sasspipe/pkg/sass"
)

func TestMain(m *testing.M) {
	tlogger.SetOutput(io.Discard, "none")
	os.Exit(m.Run())
}

func readDisk(path string) (string, bool) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return string(b), true
}

func TestPipelineBuild(t *testing.T) {
	root := t.TempDir()
	for name, contents := range map[string]string{
		"src/main.scss":     "@import 'base';\na { b: c; }\n",
		"src/_base.scss":    "body { x: y; }\n",
		"src/img/logo.txt":  "logo",
		"src/pages/p.scss":  "p { q: r; }\n",
		"src/pages/_x.scss": "unused { }\n",
	} {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	}

	plugin := sass.New(&sass.Config{
		SassOptions:     &sass.SassOptions{SourceMap: sass.SourceMapFlag(true)},
		DependenciesKey: "deps",
	}, sass.WithCompiler(compilertest.New(readDisk)), sass.WithRegistry(loader.NewRegistry()))
	defer plugin.Close()

	files, err := sass.NewPipeline(root).Use(plugin).Build(context.Background())
	require.NoError(t, err)

	f, ok := files.Get("main.css")
	require.True(t, ok)
	deps, ok := f.Metadata["deps"].(sass.Dependencies)
	require.True(t, ok)
	assert.Contains(t, deps, "main.scss")
	assert.Contains(t, deps, "_base.scss")

	css, err := os.ReadFile(filepath.Join(root, "build", "main.css"))
	require.NoError(t, err)
	assert.Contains(t, string(css), "body { x: y; }\na { b: c; }")
	assert.Contains(t, string(css), "/*# sourceMappingURL=main.css.map */")

	assert.FileExists(t, filepath.Join(root, "build", "main.css.map"))
	assert.FileExists(t, filepath.Join(root, "build", "pages", "p.css"))
	assert.FileExists(t, filepath.Join(root, "build", "img", "logo.txt"))
	assert.FileExists(t, filepath.Join(root, "build", "pages", "_x.scss"))
	assert.NoFileExists(t, filepath.Join(root, "build", "main.scss"))
	assert.NoFileExists(t, filepath.Join(root, "build", "_base.scss"))
}
