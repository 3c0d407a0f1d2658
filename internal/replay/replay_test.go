package replay

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coauthor/internal/dropdown"
	"coauthor/internal/editor"
	"coauthor/internal/event"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return nil
}

func delta(d event.Delta) *event.Delta { return &d }

// sampleLog is a short session: the prompt, typing, a query, a selection.
func sampleLog() []event.Event {
	suggestions := []event.Suggestion{
		{Index: 0, Original: " a king", Trimmed: "a king", Probability: 0.7},
		{Index: 1, Original: " a fox", Trimmed: "a fox", Probability: 0.4},
	}
	return []event.Event{
		{Kind: event.SystemInitialize, Source: event.SourceAPI, Timestamp: 0, Cursor: 4, Snapshot: event.Snapshot{Document: "Once", ControlParams: event.ControlParams{N: 5}}},
		{Kind: event.TextInsert, Source: event.SourceUser, Timestamp: 1000, Cursor: 9, TextDelta: delta(event.InsertAt(4, " upon"))},
		{Kind: event.SuggestionGet, Source: event.SourceUser, Timestamp: 1100, Cursor: 9},
		{Kind: event.SuggestionOpen, Source: event.SourceAPI, Timestamp: 5000, Cursor: 9, Snapshot: event.Snapshot{Suggestions: suggestions}},
		{Kind: event.SuggestionDown, Source: event.SourceUser, Timestamp: 5200, Cursor: 9, DropdownIndex: 1},
		{Kind: event.SuggestionSelect, Source: event.SourceUser, Timestamp: 5300, Cursor: 9, DropdownIndex: 1},
		{Kind: event.SuggestionClose, Source: event.SourceAPI, Timestamp: 5300, Cursor: 9},
		{Kind: event.TextInsert, Source: event.SourceAPI, Timestamp: 5301, Cursor: 15, TextDelta: delta(event.InsertAt(9, " a fox"))},
		{Kind: event.CursorBackward, Source: event.SourceUser, Timestamp: 7000, Cursor: 2, CursorRange: &event.Range{Index: 2}},
	}
}

func newScheduler(t *testing.T, opts Options) (*Scheduler, *editor.Buffer, *dropdown.Display) {
	t.Helper()
	ed := editor.NewBuffer("")
	view := dropdown.NewDisplay()
	s, err := New(ed, view, opts)
	require.NoError(t, err)
	return s, ed, view
}

func TestRunDelays(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	s, _, _ := newScheduler(t, Options{SpeedUp: 5, MaxDelay: time.Second, Sleep: rec.sleep})

	events := []event.Event{
		{Kind: event.SystemInitialize, Source: event.SourceAPI, Timestamp: 0},
		{Kind: event.CursorForward, Source: event.SourceUser, Timestamp: 1000},
		{Kind: event.SuggestionGet, Source: event.SourceUser, Timestamp: 1100},
		{Kind: event.SuggestionFail, Source: event.SourceAPI, Timestamp: 5000},
		{Kind: event.CursorBackward, Source: event.SourceUser, Timestamp: 5200},
		{Kind: event.CursorForward, Source: event.SourceUser, Timestamp: 20000},
	}
	require.NoError(t, s.Run(context.Background(), events))

	assert.Equal(t, []time.Duration{
		200 * time.Millisecond, // 1000ms / 5
		20 * time.Millisecond,  // 100ms / 5
		780 * time.Millisecond, // 3900ms / 5
		// no pause after a failed query
		time.Second, // 14800ms / 5, capped
	}, rec.delays)
}

func TestRunSkipsNonPositiveGaps(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	s, _, _ := newScheduler(t, Options{SpeedUp: 1, MaxDelay: time.Second, Sleep: rec.sleep})

	require.NoError(t, s.Run(context.Background(), []event.Event{
		{Kind: event.SystemInitialize, Source: event.SourceAPI, Timestamp: 500},
		{Kind: event.CursorForward, Source: event.SourceUser, Timestamp: 500},
		{Kind: event.CursorForward, Source: event.SourceUser, Timestamp: 400},
	}))
	assert.Empty(t, rec.delays)
}

func TestRunTinySpeedUpIsCapped(t *testing.T) {
	t.Parallel()

	rec := &sleepRecorder{}
	s, _, _ := newScheduler(t, Options{SpeedUp: 1e-9, MaxDelay: time.Second, Sleep: rec.sleep})

	events := []event.Event{
		{Kind: event.SystemInitialize, Source: event.SourceAPI, Timestamp: 0},
		{Kind: event.CursorForward, Source: event.SourceUser, Timestamp: 20000},
	}
	require.NoError(t, s.Run(context.Background(), events))

	// 20s / 1e-9 is far beyond the range of time.Duration
	assert.Equal(t, []time.Duration{time.Second}, rec.delays)
}

func TestRunIsDeterministicAcrossSpeeds(t *testing.T) {
	t.Parallel()

	type final struct {
		text   string
		sel    event.Range
		items  int
		clicks int
	}
	var results []final
	for _, speed := range []float64{0.5, 1, 5, 1000} {
		rec := &sleepRecorder{}
		s, ed, view := newScheduler(t, Options{SpeedUp: speed, MaxDelay: time.Second, Sleep: rec.sleep})
		require.NoError(t, s.Run(context.Background(), sampleLog()))
		results = append(results, final{ed.Text(), ed.Selection(), len(view.Items), view.Clicks})
	}

	want := final{text: "Once upon a fox", sel: event.Range{Index: 2}, items: 2, clicks: 1}
	for i, got := range results {
		assert.Equal(t, want, got, "run %d", i)
	}
}

func TestRunDrivesView(t *testing.T) {
	t.Parallel()

	events := sampleLog()[:5]
	var states []bool
	opts := DefaultOptions()
	opts.Sleep = (&sleepRecorder{}).sleep
	ed := editor.NewBuffer("")
	view := dropdown.NewDisplay()
	opts.OnStep = func(p Progress) { states = append(states, view.Loading) }
	s, err := New(ed, view, opts)
	require.NoError(t, err)

	require.NoError(t, s.Run(context.Background(), events))
	assert.Equal(t, []bool{false, false, true, false, false}, states, "loading between get and open")
	assert.True(t, view.Visible)
	assert.Equal(t, 1, view.Highlighted)
}

func TestRunSkipsInvalidEvents(t *testing.T) {
	t.Parallel()

	var steps []Progress
	s, ed, _ := newScheduler(t, Options{
		SpeedUp: 5,
		Sleep:   (&sleepRecorder{}).sleep,
		OnStep:  func(p Progress) { steps = append(steps, p) },
	})

	require.NoError(t, s.Run(context.Background(), []event.Event{
		{Kind: event.SystemInitialize, Source: event.SourceAPI, Snapshot: event.Snapshot{Document: "ab"}},
		{Kind: "teleport", Source: event.SourceUser},
		{Kind: event.TextInsert, Source: event.SourceUser},
		{Kind: event.SuggestionOpen, Source: event.SourceAPI},
		{Kind: event.TextInsert, Source: event.SourceUser, Cursor: 3, TextDelta: delta(event.InsertAt(2, "c"))},
	}))

	assert.Equal(t, "abc", ed.Text())
	require.Len(t, steps, 5)
	assert.False(t, steps[0].Skipped)
	assert.True(t, steps[1].Skipped)
	assert.True(t, steps[2].Skipped)
	assert.True(t, steps[3].Skipped)
	assert.False(t, steps[4].Skipped)
}

func TestRunProgress(t *testing.T) {
	t.Parallel()

	var last Progress
	s, _, _ := newScheduler(t, Options{
		SpeedUp: 5,
		Sleep:   (&sleepRecorder{}).sleep,
		OnStep:  func(p Progress) { last = p },
	})
	require.NoError(t, s.Run(context.Background(), sampleLog()))

	assert.Equal(t, 8, last.Index)
	assert.Equal(t, 9, last.Count)
	assert.Equal(t, 7*time.Second, last.Elapsed)
	assert.Equal(t, 7*time.Second, last.TotalTime)
	assert.Equal(t, 1, last.Queries)
	assert.Equal(t, 1, last.TotalQueries)
	assert.Equal(t, 1, last.Selections)
	assert.Equal(t, 1, last.TotalSelections)
}

func TestRunRangeSeedsEditor(t *testing.T) {
	t.Parallel()

	var first Progress
	seen := false
	s, ed, _ := newScheduler(t, Options{
		SpeedUp: 5,
		Sleep:   (&sleepRecorder{}).sleep,
		OnStep: func(p Progress) {
			if !seen {
				first, seen = p, true
			}
		},
	})
	events := sampleLog()

	require.NoError(t, s.RunRange(context.Background(), events, 2, 3))
	assert.Equal(t, "Once upon", ed.Text())
	assert.Equal(t, 9, ed.Selection().Index)
	assert.Equal(t, 2, first.Index)

	require.NoError(t, s.RunRange(context.Background(), events, 7, 0))
	assert.Equal(t, "Once upon a fox", ed.Text())
}

func TestRunNotReentrant(t *testing.T) {
	t.Parallel()

	entered := make(chan struct{})
	release := make(chan struct{})
	s, _, _ := newScheduler(t, Options{
		SpeedUp:  1,
		MaxDelay: time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			close(entered)
			<-release
			return nil
		},
	})

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), sampleLog()[:2]) }()
	<-entered

	assert.ErrorIs(t, s.Run(context.Background(), sampleLog()), ErrReplayInProgress)
	close(release)
	require.NoError(t, <-done)

	rec := &sleepRecorder{}
	s.opts.Sleep = rec.sleep
	assert.NoError(t, s.Run(context.Background(), sampleLog()[:2]), "runs again once finished")
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	steps := 0
	s, _, _ := newScheduler(t, Options{
		SpeedUp:  1,
		MaxDelay: time.Second,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
		OnStep: func(Progress) { steps++ },
	})

	err := s.Run(ctx, sampleLog())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, steps)
}

func TestNewRejectsInvalidSpeed(t *testing.T) {
	t.Parallel()

	for _, speed := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		_, err := New(editor.NewBuffer(""), dropdown.NewDisplay(), Options{SpeedUp: speed})
		assert.ErrorIs(t, err, ErrInvalidSpeed, "speed %v", speed)
	}
}

func TestFinal(t *testing.T) {
	t.Parallel()

	text, cursor := Final(sampleLog())
	assert.Equal(t, "Once upon a fox", text)
	assert.Equal(t, 2, cursor)

	text, cursor = Final(nil)
	assert.Empty(t, text)
	assert.Zero(t, cursor)
}
