package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coauthor/internal/config"
	"coauthor/internal/event"
	"coauthor/internal/store"
)

const sampleFinal = "Once upon a time there was"

// sampleEvents is a short session: the prompt, one typed phrase and a
// suggestion round that ends with the dropdown open.
func sampleEvents() []event.Event {
	sugg := []event.Suggestion{
		{Index: 0, Original: " a fox.", Trimmed: "a fox."},
		{Index: 1, Original: " a king.", Trimmed: "a king."},
	}
	ins := event.InsertAt(16, " there was")
	return []event.Event{
		{Kind: event.SystemInitialize, Source: event.SourceAPI, Timestamp: 1000, Cursor: 16,
			Snapshot: event.Snapshot{Document: "Once upon a time"}},
		{Kind: event.TextInsert, Source: event.SourceUser, Timestamp: 1500, Cursor: 26, TextDelta: &ins},
		{Kind: event.SuggestionGet, Source: event.SourceUser, Timestamp: 2000, Cursor: 26},
		{Kind: event.SuggestionOpen, Source: event.SourceAPI, Timestamp: 2600, Cursor: 26,
			Snapshot: event.Snapshot{Suggestions: sugg, OriginalSuggestions: sugg}},
	}
}

// writeJSONL writes events one per line and returns the file path.
func writeJSONL(t *testing.T, events []event.Event) string {
	t.Helper()

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		require.NoError(t, enc.Encode(e))
	}
	path := filepath.Join(t.TempDir(), "session.jsonl")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// seedDB creates a SQLite database holding one session with events.
func seedDB(t *testing.T, sessionID string, events []event.Event) string {
	t.Helper()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "coauthor.db")
	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.CreateSession(ctx, store.Session{
		ID:               sessionID,
		AccessCode:       "story",
		VerificationCode: sessionID,
		StartedAt:        time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		Config:           config.AccessCode{Code: "story", Domain: "story"},
	}))
	require.NoError(t, s.SaveLog(ctx, sessionID, events))
	return path
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := NewRootCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
