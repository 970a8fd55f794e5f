package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toastate/sasspipe/internal/server"
	"github.com/toastate/sasspipe/internal/tlogger"
)

func TestMain(m *testing.M) {
	tlogger.SetOutput(io.Discard, "none")
	os.Exit(m.Run())
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}

func TestServer_Handler(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "css", "main.css"), "a{color:red}")
	writeFile(t, filepath.Join(dir, "about.html"), "about")
	writeFile(t, filepath.Join(dir, "docs", "index.html"), "docs")
	writeFile(t, filepath.Join(dir, "404.html"), "missing")

	tests := []struct {
		name        string
		override404 string
		path        string
		status      int
		body        string
		ctype       string
	}{
		{"file", "", "/css/main.css", http.StatusOK, "a{color:red}", "text/css; charset=utf-8"},
		{"html sibling", "", "/about", http.StatusOK, "about", "text/html; charset=utf-8"},
		{"index", "", "/docs/", http.StatusOK, "docs", "text/html; charset=utf-8"},
		{"not found", "", "/nope", http.StatusNotFound, "404 page not found", ""},
		{"override 404", "404.html", "/nope", http.StatusOK, "missing", "text/html; charset=utf-8"},
		{"missing override", "/gone.html", "/nope", http.StatusNotFound, "404 page not found", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := server.New(server.Config{BuildDir: dir, Override404: tt.override404}, nil).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.body, rec.Body.String())
			if tt.ctype != "" {
				assert.Equal(t, tt.ctype, rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestRebuild(t *testing.T) {
	dir := t.TempDir()

	var builds atomic.Int32
	stop, err := server.Rebuild(context.Background(), dir, 20*time.Millisecond, server.BuildFunc(func(context.Context) error {
		builds.Add(1)
		return nil
	}))
	require.NoError(t, err)
	defer stop()

	writeFile(t, filepath.Join(dir, "a.scss"), "a")

	assert.Eventually(t, func() bool { return builds.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
}
