package web

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Render(t *testing.T) {
	index, err := ParseIndex()
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, index.Render(&sb, Page{
		Title:        "Relay <dev>",
		Models:       []string{"deepseek-r1:1.5b", "llama3"},
		DefaultModel: "llama3",
	}))
	html := sb.String()

	assert.Contains(t, html, "<title>Relay &lt;dev&gt;</title>")
	assert.Contains(t, html, `<option value="deepseek-r1:1.5b">deepseek-r1:1.5b</option>`)
	assert.Contains(t, html, `<option value="llama3" selected>llama3</option>`)
	assert.Equal(t, 1, strings.Count(html, " selected>llama3"))
}

func TestStatic_Embedded(t *testing.T) {
	fsys, err := Static("")
	require.NoError(t, err)

	for _, name := range []string{"js/app.js", "css/style.css"} {
		data, err := fs.ReadFile(fsys, name)
		require.NoError(t, err, name)
		assert.NotEmpty(t, data)
	}
}

func TestStatic_Directory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "custom.js"), []byte("// dev"), 0o644))

	fsys, err := Static(dir)
	require.NoError(t, err)
	data, err := fs.ReadFile(fsys, "custom.js")
	require.NoError(t, err)
	assert.Equal(t, "// dev", string(data))

	_, err = fs.ReadFile(fsys, "js/app.js")
	assert.Error(t, err)
}

func TestStatic_InvalidDirectory(t *testing.T) {
	_, err := Static(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = Static(file)
	assert.Error(t, err)
}
