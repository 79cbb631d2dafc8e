package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"
)

const fence = "```"

// TerminalRenderer prints the accumulated output of a run section by section
// as it grows. Sections end at a blank line outside a fenced code block.
type TerminalRenderer struct {
	out       io.Writer
	markdown  *glamour.TermRenderer
	plainText bool

	mu      sync.Mutex
	printed int
	err     error
}

// NewTerminalRenderer returns a renderer writing to out. An empty theme picks
// a style from the terminal.
func NewTerminalRenderer(out io.Writer, usePlainText bool, wrap int, theme string) (*TerminalRenderer, error) {
	var md *glamour.TermRenderer
	if !usePlainText {
		style := glamour.WithAutoStyle()
		if theme != "" {
			style = markdown.WithTheme(theme)
		}
		var err error
		md, err = glamour.NewTermRenderer(
			markdown.WithWrap(wrap),
			style,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
	}

	return &TerminalRenderer{
		out:       out,
		markdown:  md,
		plainText: usePlainText,
	}, nil
}

// Update receives the full output so far and prints any newly completed
// sections. It matches the accumulator observer signature; the first
// render error is kept and returned by Finish.
func (t *TerminalRenderer) Update(output string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil || len(output) < t.printed {
		return
	}

	content := output[t.printed:]
	if idx := findMarkdownBreakPoint(content); idx > 0 {
		if err := t.renderContent(content[:idx]); err != nil {
			t.err = err
			return
		}
		t.printed += idx
	}
}

// Finish prints whatever has not been printed yet.
func (t *TerminalRenderer) Finish(output string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}

	if len(output) > t.printed {
		if err := t.renderContent(output[t.printed:]); err != nil {
			return err
		}
		t.printed = len(output)
	}

	fmt.Fprintln(t.out)
	return nil
}

// Reset prepares the renderer for a new run.
func (t *TerminalRenderer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.printed = 0
	t.err = nil
}

func (t *TerminalRenderer) renderContent(content string) error {
	if t.plainText {
		fmt.Fprint(t.out, content)
		return nil
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if strings.HasPrefix(content, "#") {
		fmt.Fprintln(t.out)
	}

	mdContent, err := t.markdown.Render(content)
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	fmt.Fprintln(t.out, strings.TrimSpace(mdContent))
	return nil
}

// findMarkdownBreakPoint returns the offset just past the last blank line
// that is not inside an open code fence, or -1.
func findMarkdownBreakPoint(content string) int {
	const marker string = "\n\n"
	end := len(content)
	for end > 0 {
		idx := strings.LastIndex(content[:end], marker)
		if idx < 0 {
			return -1
		}
		if strings.Count(content[:idx], fence)%2 == 0 {
			return idx + len(marker)
		}
		end = idx
	}
	return -1
}
