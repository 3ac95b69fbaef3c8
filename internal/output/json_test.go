package output

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&JSONWriter{}).Write(&buf, sampleResult()))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "REQUEST_CHANGES", decoded["decision"])
	assert.Equal(t, "01HZXAMPLE", decoded["runId"])
	assert.Len(t, decoded["fileReviews"], 2)
	assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
}

func TestGetWriter(t *testing.T) {
	for _, f := range Formats {
		w, err := GetWriter(f, false)
		require.NoError(t, err, f)
		assert.NotNil(t, w)
	}
	_, err := GetWriter("sarif", false)
	assert.ErrorContains(t, err, "unsupported output format")
}
