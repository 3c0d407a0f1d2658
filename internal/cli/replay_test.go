package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayPlain(t *testing.T) {
	t.Parallel()

	out, err := runCmd(t, "replay", "--plain", "--speed", "1000", "--max-delay", "1ms",
		writeJSONL(t, sampleEvents()))
	require.NoError(t, err)

	assert.Contains(t, out, "log 1/4")
	assert.Contains(t, out, "log 4/4")
	assert.Contains(t, out, "queries 1/1")
	assert.Contains(t, out, "\n"+sampleFinal+"\n")
	assert.Contains(t, out, "replayed in")
}

func TestReplayPlainRange(t *testing.T) {
	t.Parallel()

	out, err := runCmd(t, "replay", "--plain", "--speed", "1000", "--max-delay", "1ms",
		"--start", "2", "--end", "3", writeJSONL(t, sampleEvents()))
	require.NoError(t, err)

	assert.NotContains(t, out, "log 1/4")
	assert.Contains(t, out, "log 3/4")
	assert.NotContains(t, out, "log 4/4")
	// the editor is seeded with the document recorded before --start
	assert.Contains(t, out, "\n"+sampleFinal+"\n")
	assert.Equal(t, 1, strings.Count(out, "suggestion-get"))
}

func TestReplayRejectsBadSpeed(t *testing.T) {
	t.Parallel()

	_, err := runCmd(t, "replay", "--plain", "--speed", "0", writeJSONL(t, sampleEvents()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "speed-up")
}
