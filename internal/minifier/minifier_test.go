package minifier_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/toastate/sasspipe/internal/minifier"
	"github.com/toastate/sasspipe/internal/pipeline"
	"github.com/toastate/sasspipe/internal/store"
)

func TestPlugin_Run(t *testing.T) {
	files := store.New()
	files.Set("a.css", &store.File{Contents: []byte("a {\n  color: red;\n}\n")})
	files.Set("b.css", &store.File{Contents: []byte("b {\n  color: red;\n}\n\n/*# sourceMappingURL=b.css.map */")})
	files.Set("b.css.map", &store.File{Contents: []byte(`{"version": 3}`)})
	files.Set("c.scss", &store.File{Contents: []byte("c {\n  color: red;\n}\n")})

	require.NoError(t, minifier.New().Run(context.Background(), files, pipeline.New("/project")))

	tests := map[string]string{
		"a.css":     "a{color:red}",
		"b.css":     "b{color:red}\n/*# sourceMappingURL=b.css.map */",
		"b.css.map": `{"version": 3}`,
		"c.scss":    "c {\n  color: red;\n}\n",
	}
	for name, want := range tests {
		f, ok := files.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want, string(f.Contents), name)
	}
}

func TestPlugin_Bytes(t *testing.T) {
	m := minifier.New()

	out, err := m.Bytes("x.txt", []byte("  keep  "))
	require.NoError(t, err)
	assert.Equal(t, "  keep  ", string(out))

	out, err = m.Bytes("x.js", []byte("var a = 1;\n\n"))
	require.NoError(t, err)
	assert.NotContains(t, string(out), "\n\n")
}
