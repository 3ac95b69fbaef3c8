package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateHookScript(t *testing.T) {
	script := generateHookScript("origin/main", "text", true)

	assert.True(t, strings.HasPrefix(script, hookMarkerStart))
	assert.True(t, strings.HasSuffix(script, hookMarkerEnd+"\n"))
	assert.Contains(t, script, "prgate review local --base origin/main --format text\n")
	assert.Contains(t, script, "PRGATE_EXIT=$?")
	assert.Contains(t, script, "push blocked\"\n  exit 1\n")
	assert.Contains(t, script, "allowing push")
}

func TestGenerateHookScript_NonBlocking(t *testing.T) {
	script := generateHookScript("develop", "markdown", false)

	assert.Contains(t, script, "--base develop --format markdown")
	assert.NotContains(t, script, "exit 1")
	assert.Contains(t, script, "review requested changes")
}

func TestReplaceHookSection_NoExisting(t *testing.T) {
	existing := "#!/bin/sh\nsome-other-hook\n"
	result := replaceHookSection(existing, generateHookScript("main", "text", true))

	assert.True(t, strings.HasPrefix(result, existing))
	assert.Contains(t, result, hookMarkerStart)
}

func TestReplaceHookSection_ExistingSection(t *testing.T) {
	existing := "#!/bin/sh\nbefore\n" + generateHookScript("main", "text", true) + "after\n"
	result := replaceHookSection(existing, generateHookScript("release", "json", true))

	assert.Contains(t, result, "before\n")
	assert.Contains(t, result, "after\n")
	assert.Contains(t, result, "--base release --format json")
	assert.NotContains(t, result, "--base main")
	assert.Equal(t, 1, strings.Count(result, hookMarkerStart))
}

func TestReplaceHookSection_NoTrailingNewline(t *testing.T) {
	result := replaceHookSection("#!/bin/sh\nsome-hook", generateHookScript("main", "text", true))
	assert.Contains(t, result, "some-hook\n"+hookMarkerStart)
}

func TestRemoveHookSection(t *testing.T) {
	existing := "#!/bin/sh\nbefore\n" + generateHookScript("main", "text", true) + "after\n"
	assert.Equal(t, "#!/bin/sh\nbefore\nafter\n", removeHookSection(existing))

	untouched := "#!/bin/sh\nsome-hook\n"
	assert.Equal(t, untouched, removeHookSection(untouched))
}
