// Package render converts agent reply text into display markup.
package render

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer turns raw reply text into display markup.
type Renderer interface {
	Render(text string) (string, error)
}

// Plain is a passthrough renderer. Useful for tests and non-TTY output.
type Plain struct{}

func (Plain) Render(text string) (string, error) {
	return text, nil
}

// Markdown renders reply text as styled terminal output using glamour.
type Markdown struct {
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a Markdown renderer wrapped to width. A non-positive
// width falls back to 80 columns.
func NewMarkdown(width int) (*Markdown, error) {
	if width <= 0 {
		width = 80
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	return &Markdown{renderer: r}, nil
}

// Render converts markdown to styled output. Falls back to the input text if
// rendering fails, so a renderer failure never loses the reply.
func (m *Markdown) Render(text string) (string, error) {
	if m == nil || m.renderer == nil {
		return text, nil
	}
	rendered, err := m.renderer.Render(text)
	if err != nil {
		return text, nil
	}
	return strings.TrimSuffix(rendered, "\n"), nil
}
