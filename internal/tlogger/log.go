package tlogger

import (
	"io"
	"os"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

var (
	mu sync.RWMutex

	// base is the unfiltered logfmt logger, kept so the level can be reapplied
	base log.Logger
	hlog log.Logger

	levelApplied bool
)

func init() {
	setOutput(os.Stderr)
	hlog = level.NewFilter(base, level.AllowInfo())
}

func setOutput(w io.Writer) {
	base = log.With(log.NewLogfmtLogger(log.NewSyncWriter(w)), "ts", log.DefaultTimestampUTC, "caller", log.Caller(6))
}

func filterFor(lvl string) level.Option {
	switch lvl {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	case "none":
		return level.AllowNone()
	case "all":
		return level.AllowAll()
	default:
		return level.AllowInfo()
	}
}

// ApplyLogLevel applies the min logging level. Only the first call has an effect,
// so the CLI can set it once before any subcommand logs.
func ApplyLogLevel(lvl string) {
	mu.Lock()
	defer mu.Unlock()
	if levelApplied {
		return
	}
	levelApplied = true
	hlog = level.NewFilter(base, filterFor(lvl))
}

// SetOutput redirects log output and resets the level to lvl.
// Tests use it to capture or silence entries.
func SetOutput(w io.Writer, lvl string) {
	mu.Lock()
	defer mu.Unlock()
	setOutput(w)
	hlog = level.NewFilter(base, filterFor(lvl))
}

func current() log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return hlog
}

// Debug add a log entry w/ Debug level
func Debug(keyvals ...interface{}) {
	level.Debug(current()).Log(keyvals...)
}

// Info add a log entry w/ Info level
func Info(keyvals ...interface{}) {
	level.Info(current()).Log(keyvals...)
}

// Warn add a log entry w/ Warn level
func Warn(keyvals ...interface{}) {
	level.Warn(current()).Log(keyvals...)
}

// Error add a log entry w/ Error level
func Error(keyvals ...interface{}) {
	level.Error(current()).Log(keyvals...)
}

// FatalIf prints a fatal Error level and exits if err != nil
func FatalIf(err error) {
	if err == nil {
		return
	}
	level.Error(current()).Log("err", err)
	os.Exit(1)
}
