package output

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"

	"github.com/dshills/prgate/internal/review"
)

// PrettyWriter renders the comment body for the terminal.
type PrettyWriter struct {
	// WordWrap defaults to 100 columns.
	WordWrap int
}

func (p *PrettyWriter) Write(w io.Writer, res *review.Result) error {
	wrap := p.WordWrap
	if wrap <= 0 {
		wrap = 100
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wrap),
		glamour.WithEmoji(),
	)
	if err != nil {
		return fmt.Errorf("creating markdown renderer: %w", err)
	}
	out, err := renderer.Render(CommentBody(res))
	if err != nil {
		return fmt.Errorf("rendering markdown: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
