package corpus

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadText_PlainNormalizesLineEndings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("one\r\ntwo\rthree\n"), 0o644))

	text, err := LoadText(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", text)
}

func TestLoadText_HTML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.html")
	src := `<html><head><style>p{}</style><script>var x;</script></head>
<body><h1>Chapter One</h1><p>The   first  paragraph.</p><p>Second<br>line</p></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	text, err := LoadText(path)
	require.NoError(t, err)
	assert.Contains(t, text, "Chapter One")
	assert.Contains(t, text, "The first paragraph.")
	assert.Contains(t, text, "Second\nline")
	assert.NotContains(t, text, "var x")
	assert.NotContains(t, text, "p{}")
}

func TestLoadText_Missing(t *testing.T) {
	_, err := LoadText(filepath.Join(t.TempDir(), "nope.md"))
	assert.Error(t, err)
}
