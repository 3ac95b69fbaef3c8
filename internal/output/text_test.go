package output

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextWriter_Plain(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TextWriter{}).Write(&buf, sampleResult()))
	out := buf.String()

	assert.Contains(t, out, "prgate review of acme/api#7: Add login")
	assert.Contains(t, out, "Decision: REQUEST_CHANGES")
	assert.Contains(t, out, "Risk:     HIGH 8/10 [critical_file_modified]")
	assert.Contains(t, out, "blocking      auth/login.go")
	assert.Contains(t, out, "[!!] bug: Possible nil dereference")
	assert.Contains(t, out, "1 analysis steps failed:")
	assert.Contains(t, out, "[transport] risk acme/api#7: timeout")
	assert.Contains(t, out, "using parallel strategy")
	assert.NotContains(t, out, "\x1b[")
}

func TestTextWriter_Color(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&TextWriter{Color: true}).Write(&buf, sampleResult()))
	assert.Contains(t, buf.String(), "\x1b[")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestTextWriter_PropagatesWriteError(t *testing.T) {
	err := (&TextWriter{}).Write(failingWriter{}, sampleResult())
	assert.EqualError(t, err, "disk full")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapText("short", 10))
	lines := wrapText(strings.Repeat("word ", 20), 22)
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), 22)
	}
	assert.Len(t, lines, 5)
}
