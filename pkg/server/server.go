package server

import (
	"context"
	"net/http"

	"github.com/toastate/sasspipe/internal/server"
)

type (
	Config    = server.Config
	Builder   = server.Builder
	BuildFunc = server.BuildFunc
)

type Server interface {
	Start(ctx context.Context) error
	Handler() http.Handler
}

// NewServer serves cfg.BuildDir, rebuilding it with b when b is not nil.
func NewServer(cfg Config, b Builder) Server {
	return server.New(cfg, b)
}
