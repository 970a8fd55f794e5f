// Package server serves the build directory and rebuilds it on change.
package server

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/toastate/sasspipe/internal/tlogger"
	"github.com/toastate/sasspipe/internal/watcher"
)

// Builder produces the served tree.
type Builder interface {
	Build(ctx context.Context) error
}

// BuildFunc adapts a function to Builder.
type BuildFunc func(ctx context.Context) error

// Build calls f.
func (f BuildFunc) Build(ctx context.Context) error { return f(ctx) }

// Config configures a Server.
type Config struct {
	SourceDir   string
	BuildDir    string
	Port        int
	Override404 string
	Debounce    time.Duration
}

type Server struct {
	cfg     Config
	builder Builder
}

// New returns a server for cfg. A nil builder serves BuildDir as is.
func New(cfg Config, builder Builder) *Server {
	return &Server{cfg: cfg, builder: builder}
}

// Handler returns the router serving the build directory.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(s.fileServer(s.cfg.BuildDir, s.cfg.Override404))
	return r
}

// Start builds, keeps rebuilding on source changes and serves until ctx
// ends.
func (s *Server) Start(ctx context.Context) error {
	if s.builder != nil {
		if err := s.builder.Build(ctx); err != nil {
			return err
		}
		stop, err := Rebuild(ctx, s.cfg.SourceDir, s.cfg.Debounce, s.builder)
		if err != nil {
			return err
		}
		defer stop()
	}

	srv := &http.Server{Addr: ":" + strconv.Itoa(s.cfg.Port), Handler: s.Handler()}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	// We use println here so the address can be copied or opened directly from the terminal
	fmt.Println("Listening on http://localhost:" + strconv.Itoa(s.cfg.Port))

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Rebuild runs b after every batch of changes under dir. Build failures are
// logged and watching goes on. The returned func stops watching.
func Rebuild(ctx context.Context, dir string, debounce time.Duration, b Builder) (func(), error) {
	w, err := watcher.New(dir, debounce)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for batch := range w.Changes(ctx) {
			tlogger.Debug("msg", "Rebuilding", "changes", len(batch))
			if err := b.Build(ctx); err != nil {
				tlogger.Error("msg", "Rebuild failed", "err", err)
			}
		}
	}()

	return func() {
		cancel()
		w.Close()
		<-done
	}, nil
}

func internalError(w http.ResponseWriter, msg string) {
	w.WriteHeader(http.StatusInternalServerError)
	w.Write([]byte("Internal error: " + msg))
}

// resolve maps a url path to a file of dir, trying the ".html" sibling and
// the "index.html" child.
func resolve(dir, upath string) (string, bool, error) {
	const indexPage = "index.html"

	fullName := filepath.Join(dir, filepath.FromSlash(path.Clean(upath)))
	for _, candidate := range []string{fullName, fullName + ".html", filepath.Join(fullName, indexPage)} {
		info, err := os.Stat(candidate)
		if err != nil {
			if !os.IsNotExist(err) {
				return "", false, err
			}
			continue
		}
		if !info.IsDir() {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

func (s *Server) fileServer(dir string, override404 string) func(http.ResponseWriter, *http.Request) {
	if override404 != "" && !strings.HasPrefix(override404, "/") {
		override404 = "/" + override404
	}

	return func(w http.ResponseWriter, r *http.Request) {
		upath := r.URL.Path
		if !strings.HasPrefix(upath, "/") {
			upath = "/" + upath
		}

		fullName, valid, err := resolve(dir, upath)
		if err != nil {
			internalError(w, "can't open file: "+err.Error())
			return
		}
		if !valid && override404 != "" && upath != override404 {
			fullName, valid, err = resolve(dir, override404)
			if err != nil {
				internalError(w, "can't open file: "+err.Error())
				return
			}
		}
		if !valid {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("404 page not found"))
			return
		}

		content, err := os.Open(fullName)
		if err != nil {
			internalError(w, "can't open file")
			return
		}
		defer content.Close()

		ctype := mime.TypeByExtension(filepath.Ext(fullName))
		if ctype == "" {
			// read a chunk to decide between utf-8 text and binary
			var buf [512]byte
			n, _ := io.ReadFull(content, buf[:])
			ctype = http.DetectContentType(buf[:n])
			if _, err := content.Seek(0, io.SeekStart); err != nil {
				internalError(w, "can't seek file: "+err.Error())
				return
			}
		}
		w.Header().Set("Content-Type", ctype)
		if _, err := io.Copy(w, content); err != nil {
			tlogger.Warn("msg", "Could not send file", "path", fullName, "err", err)
		}
	}
}
