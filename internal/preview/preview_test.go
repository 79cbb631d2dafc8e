package preview_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/markis/gpt-markup-preview/internal/preview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prompt = "Style this:\n\n```html\n<div class=\"container\">\n  <p class=\"text\">Hello</p>\n</div>\n```\n\n```html\n<p>second</p>\n```\n"

func Test_preview_001(t *testing.T) {
	// Code blocks are returned in order with their language
	assert := assert.New(t)
	blocks := preview.ExtractCodeBlocks("text\n\n```CSS\na {}\n```\n\n    indented\n\n```\nplain\n```\n")
	assert.Equal([]preview.CodeBlock{
		{Language: "css", Code: "a {}\n"},
		{Language: "", Code: "plain\n"},
	}, blocks)
}

func Test_preview_002(t *testing.T) {
	// All css blocks go in the head, the first html block of the prompt is the body
	assert := assert.New(t)
	output := "Here you go:\n\n```css\n.container { color: red; }\n```\n\n```js\nalert(1)\n```\n\n```css\n.text { font-size: 3em; }\n```\n"

	doc, err := preview.Build(prompt, output)
	require.NoError(t, err)
	assert.Contains(doc, "<style>.container { color: red; }\n</style>")
	assert.Contains(doc, "<style>.text { font-size: 3em; }\n</style>")
	assert.Less(strings.Index(doc, ".container {"), strings.Index(doc, ".text {"))
	assert.Contains(doc, `<p class="text">Hello</p>`)
	assert.NotContains(doc, "second")
	assert.NotContains(doc, "alert")
}

func Test_preview_003(t *testing.T) {
	// A prompt without html has nothing to preview
	_, err := preview.Build("no code here", "```css\na{}\n```")
	assert.ErrorIs(t, err, preview.ErrNoTemplate)
}

func Test_preview_004(t *testing.T) {
	// The document is written to disk
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "preview.html")
	abs, err := preview.Write(path, "<html></html>")
	require.NoError(t, err)
	assert.Equal(path, abs)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal("<html></html>", string(data))
}
