package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/toastate/sasspipe/internal/minifier"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/sassplugin"
	"github.com/toastate/sasspipe/internal/server"
	"github.com/toastate/sasspipe/internal/tlogger"
	"github.com/toastate/sasspipe/pkg/config"
)

var CLI struct {
	Build CommandBuild `cmd:"" aliases:"b" help:"Compiles the project."`
	Watch CommandWatch `cmd:"" aliases:"w" help:"Compiles the project and recompiles on change."`
	Serve CommandServe `cmd:"" aliases:"s" help:"Run a live dev server."`

	ConfigFile string `short:"c" help:"configuration file path (optional)"`
}

type CommandBuild struct {
	SrcDir   string `help:"Source directory." type:"existingdir"`
	BuildDir string `help:"Build output."`
	Minify   bool   `help:"Minify the compiled CSS."`

	Verbose int `short:"v" help:"Print verbose output." type:"counter"`
}

type CommandWatch struct {
	SrcDir   string `help:"Source directory." type:"existingdir"`
	BuildDir string `help:"Build output."`
	Minify   bool   `help:"Minify the compiled CSS."`

	Verbose int `short:"v" help:"Print verbose output." type:"counter"`
}

type CommandServe struct {
	SrcDir   string `help:"Source directory." type:"existingdir"`
	BuildDir string `help:"Build output."`
	Minify   bool   `help:"Minify the compiled CSS."`
	NoBuild  bool   `help:"Don't run build."`

	Port int `short:"p" help:"Listener port"`

	Verbose int `short:"v" help:"Print verbose output." type:"counter"`
}

func main() {
	ctx := kong.Parse(&CLI, kong.UsageOnError())

	err := config.Init(CLI.ConfigFile)
	if err != nil {
		log.Fatal(err)
	}

	err = ctx.Run(ctx)
	if err != nil {
		tlogger.Error("err", err)
		os.Exit(1)
	}
}

func applyVerbose(v int) {
	switch v {
	case 0:
		tlogger.ApplyLogLevel("info")
	case 1:
		tlogger.ApplyLogLevel("debug")
	default:
		tlogger.ApplyLogLevel("all")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

type project struct {
	pipeline *pipeline.Pipeline
	sass     *sassplugin.Plugin
}

func newProject(srcDir, buildDir string, minify bool) (*project, error) {
	cfg := config.Config
	if srcDir == "" {
		srcDir = cfg.SrcDir
	}
	if buildDir == "" {
		buildDir = cfg.BuildDir
	}

	input, err := cfg.SassInput()
	if err != nil {
		return nil, err
	}

	pr := &project{
		pipeline: pipeline.New(".").SetSource(srcDir).SetDestination(buildDir),
		sass:     sassplugin.New(input),
	}
	pr.pipeline.Clean = cfg.Clean
	pr.pipeline.Ignore = cfg.Ignore
	pr.pipeline.Use(pr.sass)
	if minify || cfg.Minify {
		pr.pipeline.Use(minifier.New())
	}
	return pr, nil
}

func (pr *project) Build(ctx context.Context) error {
	_, err := pr.pipeline.Build(ctx)
	return err
}

func (pr *project) Close() {
	if err := pr.sass.Close(); err != nil {
		tlogger.Warn("msg", "Could not stop the sass compiler", "err", err)
	}
}

func (r *CommandBuild) Run(ctx *kong.Context) error {
	applyVerbose(r.Verbose)

	pr, err := newProject(r.SrcDir, r.BuildDir, r.Minify)
	if err != nil {
		return err
	}
	defer pr.Close()

	sctx, cancel := signalContext()
	defer cancel()
	return pr.Build(sctx)
}

func (r *CommandWatch) Run(ctx *kong.Context) error {
	applyVerbose(r.Verbose)

	pr, err := newProject(r.SrcDir, r.BuildDir, r.Minify)
	if err != nil {
		return err
	}
	defer pr.Close()

	sctx, cancel := signalContext()
	defer cancel()

	if err := pr.Build(sctx); err != nil {
		tlogger.Error("msg", "Initial build failed", "err", err)
	}

	stop, err := server.Rebuild(sctx, pr.pipeline.Path(pr.pipeline.Source()), config.Config.ServeConfig.Debounce, pr)
	if err != nil {
		return err
	}
	defer stop()

	tlogger.Info("msg", "Watching", "path", pr.pipeline.Path(pr.pipeline.Source()))
	<-sctx.Done()
	return nil
}

func (r *CommandServe) Run(ctx *kong.Context) error {
	applyVerbose(r.Verbose)

	if r.Port <= 0 {
		r.Port = config.Config.ServeConfig.Port
	}

	pr, err := newProject(r.SrcDir, r.BuildDir, r.Minify)
	if err != nil {
		return err
	}
	defer pr.Close()

	var builder server.Builder
	if !r.NoBuild {
		builder = pr
	}

	serv := server.New(server.Config{
		SourceDir:   pr.pipeline.Path(pr.pipeline.Source()),
		BuildDir:    pr.pipeline.Path(pr.pipeline.Destination()),
		Port:        r.Port,
		Override404: config.Config.ServeConfig.Redirect404,
		Debounce:    config.Config.ServeConfig.Debounce,
	}, builder)

	sctx, cancel := signalContext()
	defer cancel()
	return serv.Start(sctx)
}
