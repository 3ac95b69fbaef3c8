package output

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/dshills/prgate/internal/review"
)

// Formats lists the accepted output formats.
var Formats = []string{"markdown", "json", "text", "pretty"}

// Writer writes a review result in a specific format.
type Writer interface {
	Write(w io.Writer, res *review.Result) error
}

// GetWriter returns a writer for the specified format. color enables ANSI
// colour in the text format.
func GetWriter(format string, color bool) (Writer, error) {
	switch format {
	case "markdown", "md":
		return &MarkdownWriter{}, nil
	case "json":
		return &JSONWriter{}, nil
	case "text":
		return &TextWriter{Color: color}, nil
	case "pretty":
		return &PrettyWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the result to the specified output (file path or stdout).
// Colour is used only when writing to a terminal.
func WriteReport(res *review.Result, format, outPath string) error {
	var w io.Writer
	color := false
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	} else {
		w = os.Stdout
		color = isatty.IsTerminal(os.Stdout.Fd())
	}

	writer, err := GetWriter(format, color)
	if err != nil {
		return err
	}
	return writer.Write(w, res)
}
