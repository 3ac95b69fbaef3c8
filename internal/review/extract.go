package review

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	jsonFence = "```json"
	fence     = "```"
)

// Extraction describes where a payload was found in analyzer text.
type Extraction struct {
	Payload string
	// Fenced is true when the payload came from a fenced block.
	Fenced bool
	// Degraded is true when an opening fence had no closing fence and the
	// payload ran to the end of the text.
	Degraded bool
}

// Locate finds the structured payload inside text. After an opening
// "```json" marker the payload runs up to the last "```" in the remaining
// text, so fences quoted inside the payload do not cut it short. A response
// that begins with a bare fence such as "```js" is handled the same way.
// Without any marker the whole trimmed text is the payload. The payload is
// always whitespace-trimmed, which JSON decoding ignores anyway.
func Locate(text string) Extraction {
	if i := strings.Index(text, jsonFence); i >= 0 {
		return closeFence(text[i+len(jsonFence):])
	}
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, fence) {
		rest := trimmed[len(fence):]
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && !strings.ContainsAny(rest[:nl], "{[") {
			rest = rest[nl+1:]
		}
		return closeFence(rest)
	}
	return Extraction{Payload: trimmed}
}

func closeFence(rest string) Extraction {
	if j := strings.LastIndex(rest, fence); j >= 0 {
		return Extraction{Payload: strings.TrimSpace(rest[:j]), Fenced: true}
	}
	return Extraction{Payload: strings.TrimSpace(rest), Fenced: true, Degraded: true}
}

// ExtractInto locates the payload in text and decodes it into v. Decode
// failures are returned as *ParseError.
func ExtractInto(text string, v any) (Extraction, error) {
	ext := Locate(text)
	if ext.Payload == "" {
		return ext, &ParseError{Err: errors.New("empty payload")}
	}
	if err := json.Unmarshal([]byte(ext.Payload), v); err != nil {
		return ext, &ParseError{Snippet: truncate(ext.Payload, snippetLen), Err: err}
	}
	return ext, nil
}

// Extract decodes the payload in text into a generic object.
func Extract(text string) (map[string]any, error) {
	var m map[string]any
	if _, err := ExtractInto(text, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, &ParseError{Snippet: truncate(Locate(text).Payload, snippetLen), Err: errors.New("payload is null")}
	}
	return m, nil
}
