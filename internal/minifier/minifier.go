// Package minifier is a pipeline stage minifying compiled assets in place.
package minifier

import (
	"bytes"
	"context"
	"path"
	"regexp"

	"github.com/pkg/errors"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/html"
	"github.com/tdewolff/minify/v2/js"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/store"
	"github.com/toastate/sasspipe/internal/tlogger"
)

// DefaultPattern selects the stylesheets written by the sass stage.
var DefaultPattern = []string{"**/*.css"}

var mediatypes = map[string]string{
	".css":  "text/css",
	".html": "text/html",
	".htm":  "text/html",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
}

var sourceMappingURL = regexp.MustCompile(`\s*/\*# sourceMappingURL=[^*]*\*/\s*$`)

// Plugin minifies the files matching Pattern.
type Plugin struct {
	Pattern []string

	m *minify.M
}

// New returns a minifier for pattern, DefaultPattern when empty.
func New(pattern ...string) *Plugin {
	if len(pattern) == 0 {
		pattern = DefaultPattern
	}

	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add("text/html", &html.Minifier{
		KeepDocumentTags: true,
		KeepEndTags:      true,
	})
	m.AddFuncRegexp(regexp.MustCompile("^(application|text)/(x-)?(java|ecma)script$"), js.Minify)

	return &Plugin{Pattern: pattern, m: m}
}

// Bytes minifies b as the media type of filename. Unknown extensions are
// returned unchanged.
func (pl *Plugin) Bytes(filename string, b []byte) ([]byte, error) {
	mediatype, ok := mediatypes[path.Ext(filename)]
	if !ok {
		return b, nil
	}

	// the minifier drops comments, the source-map link is put back after it
	var trailer []byte
	if mediatype == "text/css" {
		if loc := sourceMappingURL.FindIndex(b); loc != nil {
			trailer = append([]byte("\n"), bytes.TrimSpace(b[loc[0]:loc[1]])...)
			b = b[:loc[0]]
		}
	}

	out, err := pl.m.Bytes(mediatype, b)
	if err != nil {
		return nil, err
	}
	return append(out, trailer...), nil
}

// Run implements pipeline.Plugin.
func (pl *Plugin) Run(ctx context.Context, files *store.Store, _ pipeline.Context) error {
	snapshot := files.Snapshot().Filter(func(_ string, f *store.File) bool { return store.IsFile(f) })
	matched, err := store.MatchFilenames(snapshot.Keys(), pl.Pattern)
	if err != nil {
		return err
	}

	for _, name := range matched {
		if err := ctx.Err(); err != nil {
			return err
		}
		f, _ := snapshot.Get(name)
		out, err := pl.Bytes(name, f.Contents)
		if err != nil {
			return errors.Wrapf(err, "minify %s", name)
		}
		tlogger.Debug("plugin", "minify", "file", name, "before", len(f.Contents), "after", len(out))
		f.Contents = out
	}
	return nil
}
