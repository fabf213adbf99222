package report

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
)

// defaultWrap is the terminal word-wrap width for rendered Markdown.
const defaultWrap = 100

// RenderTerminal renders rr's Markdown form for a terminal. A width of 0
// uses the default wrap.
func RenderTerminal(w io.Writer, rr *RunReport, width int) error {
	if width <= 0 {
		width = defaultWrap
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("report: creating terminal renderer: %w", err)
	}

	out, err := r.Render(string(RenderMarkdown(rr)))
	if err != nil {
		return fmt.Errorf("report: rendering markdown: %w", err)
	}

	_, err = io.WriteString(w, out)

	return err
}
