// Package preview assembles an HTML page from the code blocks of a prompt
// and of the model's answer. Model output is trusted and inserted verbatim.
package preview

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// ErrNoTemplate is returned when the prompt has no html code block.
var ErrNoTemplate = errors.New("input html not found")

// CodeBlock is a top-level fenced code block.
type CodeBlock struct {
	Language string
	Code     string
}

var page = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html>
  <head>
    <style>
      html, body {
        margin: 0;
      }
      body {
        transform: scale(1);
      }
    </style>
    {{- range .Styles}}
    <style>{{.}}</style>
    {{- end}}
  </head>
  <body>
{{.Body}}
  </body>
</html>
`))

// ExtractCodeBlocks returns the top-level fenced code blocks of source in
// document order.
func ExtractCodeBlocks(source string) []CodeBlock {
	src := []byte(source)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var blocks []CodeBlock
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		fenced, ok := n.(*ast.FencedCodeBlock)
		if !ok {
			continue
		}
		var code strings.Builder
		lines := fenced.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			code.Write(seg.Value(src))
		}
		blocks = append(blocks, CodeBlock{
			Language: strings.ToLower(string(fenced.Language(src))),
			Code:     code.String(),
		})
	}
	return blocks
}

// Build returns the preview document. The body is the first html block of
// prompt; every css block of output becomes a style element, in order.
func Build(prompt, output string) (string, error) {
	var body string
	found := false
	for _, block := range ExtractCodeBlocks(prompt) {
		if block.Language == "html" {
			body, found = block.Code, true
			break
		}
	}
	if !found {
		return "", ErrNoTemplate
	}

	var styles []string
	for _, block := range ExtractCodeBlocks(output) {
		if block.Language == "css" {
			styles = append(styles, block.Code)
		}
	}

	var doc strings.Builder
	if err := page.Execute(&doc, struct {
		Styles []string
		Body   string
	}{styles, body}); err != nil {
		return "", fmt.Errorf("failed to build preview: %w", err)
	}
	return doc.String(), nil
}

// Write stores doc at path and returns the absolute path.
func Write(path, doc string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve preview path: %w", err)
	}
	if err := os.WriteFile(abs, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	return abs, nil
}
