package review

import (
	"fmt"
	"strings"

	"github.com/bluekeyes/go-gitdiff/gitdiff"
)

// Hunk summarises one fragment of a file patch.
type Hunk struct {
	OldStart int64
	OldLines int64
	NewStart int64
	NewLines int64
	Added    int
	Deleted  int
	Comment  string
}

// Header renders the hunk in unified-diff header form.
func (h Hunk) Header() string {
	header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldLines, h.NewStart, h.NewLines)
	if h.Comment != "" {
		header += " " + h.Comment
	}
	return header
}

// ParseHunks parses a per-file patch as returned by the GitHub files API,
// which carries fragments without file headers.
func ParseHunks(path, patch string) ([]Hunk, error) {
	if strings.TrimSpace(patch) == "" {
		return nil, nil
	}
	if !strings.HasSuffix(patch, "\n") {
		patch += "\n"
	}
	raw := fmt.Sprintf("--- a/%s\n+++ b/%s\n%s", path, path, patch)
	files, _, err := gitdiff.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing patch for %s: %w", path, err)
	}

	var hunks []Hunk
	for _, f := range files {
		for _, frag := range f.TextFragments {
			h := Hunk{
				OldStart: frag.OldPosition,
				OldLines: frag.OldLines,
				NewStart: frag.NewPosition,
				NewLines: frag.NewLines,
				Comment:  frag.Comment,
			}
			for _, line := range frag.Lines {
				switch line.Op {
				case gitdiff.OpAdd:
					h.Added++
				case gitdiff.OpDelete:
					h.Deleted++
				}
			}
			hunks = append(hunks, h)
		}
	}
	return hunks, nil
}

func hunkOutline(hunks []Hunk) string {
	var b strings.Builder
	for _, h := range hunks {
		fmt.Fprintf(&b, "- %s (+%d/-%d)\n", h.Header(), h.Added, h.Deleted)
	}
	return b.String()
}
