package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"coauthor/internal/event"
	"coauthor/internal/replay"
)

func instant(context.Context, time.Duration) error { return nil }

func sampleLog() []event.Event {
	ins := event.InsertAt(4, " upon")
	list := []event.Suggestion{{Index: 0, Original: " a time", Trimmed: "a time", Probability: 0.9}}
	return []event.Event{
		{Kind: event.SystemInitialize, Source: event.SourceAPI, Timestamp: 0, Cursor: 4, Snapshot: event.Snapshot{Document: "Once"}},
		{Kind: event.TextInsert, Source: event.SourceUser, Timestamp: 1000, Cursor: 9, TextDelta: &ins},
		{Kind: event.SuggestionGet, Source: event.SourceUser, Timestamp: 1500, Cursor: 9},
		{Kind: event.SuggestionOpen, Source: event.SourceAPI, Timestamp: 3000, Cursor: 9, Snapshot: event.Snapshot{Suggestions: list}},
	}
}

func collect(t *testing.T, frames <-chan Frame, done <-chan error) []Frame {
	t.Helper()
	var out []Frame
	for f := range frames {
		out = append(out, f)
	}
	if err := <-done; err != nil {
		t.Fatalf("replay: %v", err)
	}
	return out
}

func TestPlayPublishesFrames(t *testing.T) {
	t.Parallel()

	opts := replay.DefaultOptions()
	opts.Sleep = instant
	frames, done, err := Play(context.Background(), sampleLog(), 0, 0, opts)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	got := collect(t, frames, done)

	if len(got) != 4 {
		t.Fatalf("got %d frames, want 4", len(got))
	}
	if got[1].Text != "Once upon" || got[1].Selection.Index != 9 {
		t.Errorf("frame 1 = %q@%d, want %q@9", got[1].Text, got[1].Selection.Index, "Once upon")
	}
	if !got[2].Dropdown.Loading {
		t.Error("frame 2: want loading")
	}
	last := got[3]
	if !last.Dropdown.Visible || last.Dropdown.Loading || len(last.Dropdown.Items) != 1 {
		t.Errorf("frame 3 dropdown = %+v", last.Dropdown)
	}
	if last.Progress.Queries != 1 || last.Progress.TotalQueries != 1 {
		t.Errorf("queries = %d/%d, want 1/1", last.Progress.Queries, last.Progress.TotalQueries)
	}
}

func TestPlayFramesAreSnapshots(t *testing.T) {
	t.Parallel()

	opts := replay.DefaultOptions()
	opts.Sleep = instant
	events := append(sampleLog(), event.Event{Kind: event.SuggestionClose, Source: event.SourceUser, Timestamp: 3100})
	frames, done, err := Play(context.Background(), events, 0, 0, opts)
	if err != nil {
		t.Fatalf("Play: %v", err)
	}
	got := collect(t, frames, done)

	if !got[3].Dropdown.Visible {
		t.Error("frame 3 changed after a later close")
	}
	if got[4].Dropdown.Visible {
		t.Error("frame 4: want closed")
	}
}

func TestPlayInvalidSpeed(t *testing.T) {
	t.Parallel()

	if _, _, err := Play(context.Background(), sampleLog(), 0, 0, replay.Options{SpeedUp: 0}); !errors.Is(err, replay.ErrInvalidSpeed) {
		t.Errorf("got %v, want ErrInvalidSpeed", err)
	}
}

func TestModelUpdate(t *testing.T) {
	t.Parallel()

	frames := make(chan Frame)
	done := make(chan error, 1)
	cancelled := false
	m := NewModel(Config{SessionID: "s1", SpeedUp: 5}, frames, done, func() { cancelled = true })

	if !strings.Contains(m.View(), "Waiting for the first event") {
		t.Error("initial view should be waiting")
	}

	next, cmd := m.Update(frameMsg(Frame{
		Text:      "Once upon",
		Selection: event.Range{Index: 9},
		Progress:  replay.Progress{Index: 1, Count: 4, Event: event.Event{Kind: event.TextInsert}},
	}))
	if cmd == nil {
		t.Error("frame should schedule the next wait")
	}
	m = next.(Model)
	view := m.View()
	if !strings.Contains(view, "Once upon") {
		t.Errorf("view missing document:\n%s", view)
	}
	if !strings.Contains(view, "log 2/4") {
		t.Errorf("view missing progress:\n%s", view)
	}

	next, _ = m.Update(doneMsg{err: context.Canceled})
	m = next.(Model)
	if !strings.Contains(m.View(), "Replay finished") {
		t.Error("cancelled replay should render as finished, not failed")
	}

	next, _ = m.Update(doneMsg{err: errors.New("boom")})
	if !strings.Contains(next.(Model).View(), "Replay failed: boom") {
		t.Error("failure not shown")
	}

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if !cancelled {
		t.Error("quit should cancel the replay")
	}
	if cmd == nil {
		t.Error("quit should return tea.Quit")
	}
}

func TestWaitForFrameDone(t *testing.T) {
	t.Parallel()

	frames := make(chan Frame)
	done := make(chan error, 1)
	close(frames)
	done <- nil

	msg := waitForFrame(frames, done)()
	if _, ok := msg.(doneMsg); !ok {
		t.Errorf("got %T, want doneMsg", msg)
	}
}

func TestRenderDocument(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		sel  event.Range
	}{
		{"middle", "Once upon", event.Range{Index: 4}},
		{"end", "Once upon", event.Range{Index: 9}},
		{"selection", "Once upon", event.Range{Index: 0, Length: 4}},
		{"out of range", "Once", event.Range{Index: 40, Length: 3}},
		{"newline", "a\nb", event.Range{Index: 1}},
	}
	for _, tt := range tests {
		got := RenderDocument(tt.text, tt.sel)
		for _, part := range strings.Split(tt.text, "\n") {
			if !strings.Contains(got, strings.TrimSpace(part)[:1]) {
				t.Errorf("%s: rendered %q lost text %q", tt.name, got, part)
			}
		}
	}
}

func TestProgressLine(t *testing.T) {
	t.Parallel()

	p := replay.Progress{
		Index: 9, Count: 20,
		Elapsed: 75 * time.Second, TotalTime: 10 * time.Minute,
		Queries: 1, TotalQueries: 3,
		Selections: 0, TotalSelections: 2,
	}
	want := "log 10/20  time 01:15/10:00  queries 1/3  selections 0/2"
	if got := ProgressLine(p); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
