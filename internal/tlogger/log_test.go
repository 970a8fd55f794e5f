package tlogger_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/toastate/sasspipe/internal/tlogger"
)

func TestCallerIsCallSite(t *testing.T) {
	var buf bytes.Buffer
	tlogger.SetOutput(&buf, "debug")
	defer tlogger.SetOutput(io.Discard, "none")

	tlogger.Debug("msg", "debug entry")
	tlogger.Info("msg", "info entry")
	tlogger.Error("msg", "error entry")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 3)
	for _, line := range lines {
		assert.Contains(t, string(line), "caller=log_test.go:")
		assert.NotContains(t, string(line), "caller=log.go:")
	}
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	tlogger.SetOutput(&buf, "warn")
	defer tlogger.SetOutput(io.Discard, "none")

	tlogger.Debug("msg", "hidden")
	tlogger.Info("msg", "hidden")
	tlogger.Warn("msg", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "level=warn")
	assert.Contains(t, buf.String(), `msg=shown`)
}
