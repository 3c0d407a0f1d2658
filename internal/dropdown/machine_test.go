package dropdown

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coauthor/internal/editor"
	"coauthor/internal/event"
)

type recorded struct {
	kind   event.Kind
	source event.Source
	event  event.Event
}

type recorder struct {
	events []recorded
}

func (r *recorder) Record(kind event.Kind, src event.Source, opts ...event.Option) {
	var e event.Event
	for _, opt := range opts {
		opt(&e)
	}
	r.events = append(r.events, recorded{kind: kind, source: src, event: e})
}

func (r *recorder) kinds() []event.Kind {
	out := make([]event.Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func staticProvider(items ...event.Suggestion) Provider {
	return ProviderFunc(func(context.Context, Request) (Response, error) {
		return Response{Suggestions: items, Original: items}, nil
	})
}

type fixture struct {
	m    *Machine
	ed   *editor.Buffer
	view *Display
	rec  *recorder
}

func newFixture(p Provider, persistent bool) *fixture {
	f := &fixture{
		ed:   editor.NewBuffer("Once upon a time"),
		view: NewDisplay(),
		rec:  &recorder{},
	}
	f.m = New(Config{
		Provider:   p,
		View:       f.view,
		Editor:     f.ed,
		Recorder:   f.rec,
		Sort:       true,
		Persistent: persistent,
	})
	return f
}

func TestQuerySortsStably(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(
		event.Suggestion{Original: " low", Probability: 0.2},
		event.Suggestion{Original: " first tie", Probability: 0.9},
		event.Suggestion{Original: " second tie", Probability: 0.9},
		event.Suggestion{Original: " lowest", Probability: 0.1},
	), false)

	require.NoError(t, f.m.Query(context.Background(), Request{}))

	items := f.m.Items()
	require.Len(t, items, 4)
	assert.Equal(t, " first tie", items[0].Original)
	assert.Equal(t, " second tie", items[1].Original)
	assert.Equal(t, " low", items[2].Original)
	assert.Equal(t, " lowest", items[3].Original)
	for i, s := range items {
		assert.Equal(t, i, s.Index, "presented items are renumbered")
	}
	assert.Equal(t, "first tie", items[0].Trimmed)

	assert.Equal(t, Open, f.m.State())
	assert.True(t, f.view.Visible)
	assert.Equal(t, 0, f.view.Highlighted)
	assert.Equal(t, []event.Kind{event.SuggestionGet, event.SuggestionOpen}, f.rec.kinds())
	assert.Equal(t, event.SourceUser, f.rec.events[0].source)
	assert.Equal(t, event.SourceAPI, f.rec.events[1].source)
	assert.Len(t, f.rec.events[1].event.Suggestions, 4)
	assert.Len(t, f.rec.events[1].event.OriginalSuggestions, 4)
}

func TestQueryMovesCursorToEnd(t *testing.T) {
	t.Parallel()

	var gotDoc string
	f := newFixture(ProviderFunc(func(_ context.Context, req Request) (Response, error) {
		gotDoc = req.Document
		return Response{Suggestions: []event.Suggestion{{Original: " x"}}}, nil
	}), false)

	require.NoError(t, f.m.Query(context.Background(), Request{SessionID: "s1"}))
	assert.Equal(t, f.ed.Len(), f.ed.Selection().Index)
	assert.Equal(t, "Once upon a time", gotDoc)
	assert.False(t, f.view.Loading)
}

func TestQuerySuppressesEmptyAfterTrim(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(
		event.Suggestion{Original: "   ", Probability: 0.9},
		event.Suggestion{Original: " kept", Probability: 0.5},
		event.Suggestion{Original: "\n", Probability: 0.4},
	), false)

	require.NoError(t, f.m.Query(context.Background(), Request{}))
	items := f.m.Items()
	require.Len(t, items, 1)
	assert.Equal(t, " kept", items[0].Original)
}

func TestQueryAllEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(ProviderFunc(func(context.Context, Request) (Response, error) {
		return Response{
			Suggestions: []event.Suggestion{{Original: "  "}},
			Original:    []event.Suggestion{{Original: "  "}, {Original: " dup"}},
			Counts:      Counts{Duplicate: 1},
		}, nil
	}), false)

	err := f.m.Query(context.Background(), Request{})
	var eerr *EmptyError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, Counts{Empty: 1, Duplicate: 1}, eerr.Counts)
	assert.Equal(t, Closed, f.m.State())
	assert.False(t, f.view.Visible)

	require.Equal(t, []event.Kind{event.SuggestionGet, event.SuggestionFail}, f.rec.kinds())
	fail := f.rec.events[1]
	assert.Equal(t, event.SourceAPI, fail.source)
	assert.Len(t, fail.event.OriginalSuggestions, 2)
	assert.Empty(t, fail.event.Suggestions)
	assert.Contains(t, fail.event.Message, "could not think of suggestions (1)")
	assert.Contains(t, fail.event.Message, "same suggestions as before (1)")

	assert.ErrorIs(t, f.m.Reopen(), ErrNothingFetched)
}

func TestQueryProviderError(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream timeout")
	f := newFixture(ProviderFunc(func(context.Context, Request) (Response, error) {
		return Response{}, boom
	}), false)

	err := f.m.Query(context.Background(), Request{})
	var perr *ProviderError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "Could not get suggestions. Press tab key to try again!", UserMessage(err))
	assert.Equal(t, Closed, f.m.State())
	assert.False(t, f.view.Loading)
	assert.False(t, f.m.Pending())
}

func TestQueryInFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(ProviderFunc(func(context.Context, Request) (Response, error) {
		close(started)
		<-release
		return Response{Suggestions: []event.Suggestion{{Original: " a"}}}, nil
	}), false)

	done := make(chan error, 1)
	go func() { done <- f.m.Query(context.Background(), Request{}) }()
	<-started

	assert.True(t, f.m.Pending())
	assert.ErrorIs(t, f.m.Query(context.Background(), Request{}), ErrQueryInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, f.m.Pending())
}

func TestQueryWhileOpenClosesFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(event.Suggestion{Original: " a"}), false)
	require.NoError(t, f.m.Query(context.Background(), Request{}))
	require.NoError(t, f.m.Query(context.Background(), Request{}))

	assert.Equal(t, []event.Kind{
		event.SuggestionGet, event.SuggestionOpen,
		event.SuggestionGet, event.SuggestionClose, event.SuggestionOpen,
	}, f.rec.kinds())
	assert.Equal(t, event.SourceAPI, f.rec.events[3].source)
}

func TestNavigationWraps(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(
		event.Suggestion{Original: " a", Probability: 0.3},
		event.Suggestion{Original: " b", Probability: 0.2},
		event.Suggestion{Original: " c", Probability: 0.1},
	), false)
	require.NoError(t, f.m.Query(context.Background(), Request{}))

	require.NoError(t, f.m.Prev())
	assert.Equal(t, 2, f.m.Index(), "up from the first item wraps to the last")
	assert.Equal(t, 2, f.view.Highlighted)

	require.NoError(t, f.m.Next())
	assert.Equal(t, 0, f.m.Index(), "down from the last item wraps to the first")

	require.NoError(t, f.m.Next())
	assert.Equal(t, 1, f.m.Index())

	last := f.rec.events[len(f.rec.events)-1]
	assert.Equal(t, event.SuggestionDown, last.kind)
	assert.Equal(t, 1, last.event.DropdownIndex)
}

func TestHoverKeepsKeyboardIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(
		event.Suggestion{Original: " a", Probability: 0.3},
		event.Suggestion{Original: " b", Probability: 0.2},
	), false)
	require.NoError(t, f.m.Query(context.Background(), Request{}))
	require.NoError(t, f.m.Hover(1))

	assert.Equal(t, 0, f.m.Index())
	assert.Equal(t, 1, f.m.HoverIndex())
	last := f.rec.events[len(f.rec.events)-1]
	assert.Equal(t, event.SuggestionHover, last.kind)
	assert.Equal(t, 1, last.event.HoverIndex)
}

func TestNoopWhenClosedOrEmpty(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(), false)
	assert.NoError(t, f.m.Next())
	assert.NoError(t, f.m.Prev())
	assert.NoError(t, f.m.Hover(0))
	assert.NoError(t, f.m.Select(0))
	assert.NoError(t, f.m.Confirm())
	assert.NoError(t, f.m.Close(event.SourceUser))
	assert.Empty(t, f.rec.events)
	assert.Equal(t, "Once upon a time", f.ed.Text())
}

func TestSelectAppendsOriginalAndCloses(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(
		event.Suggestion{Original: " there was a fox", Probability: 0.4},
		event.Suggestion{Original: " there lived a king", Probability: 0.7},
	), false)
	require.NoError(t, f.m.Query(context.Background(), Request{}))

	items := f.m.Items()
	require.Len(t, items, 2)
	assert.Equal(t, 0.7, items[0].Probability)
	assert.Equal(t, 0.4, items[1].Probability)

	require.NoError(t, f.m.Select(0))
	assert.Equal(t, "Once upon a time there lived a king", f.ed.Text())
	assert.Equal(t, f.ed.Len(), f.ed.Selection().Index)
	assert.Equal(t, Closed, f.m.State())
	assert.False(t, f.view.Visible)
	assert.Equal(t, 1, f.view.Clicks)
	assert.Empty(t, f.m.Items())

	kinds := f.rec.kinds()
	assert.Equal(t, []event.Kind{event.SuggestionSelect, event.SuggestionClose}, kinds[len(kinds)-2:])
	assert.Equal(t, event.SourceUser, f.rec.events[len(kinds)-2].source)
	assert.Equal(t, event.SourceAPI, f.rec.events[len(kinds)-1].source)

	assert.ErrorIs(t, f.m.Reopen(), ErrAlreadyConsumed)
	assert.Contains(t, UserMessage(ErrAlreadyConsumed), "You can only reopen suggestions")
}

func TestConfirmUsesKeyboardIndex(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(
		event.Suggestion{Original: " a", Probability: 0.3},
		event.Suggestion{Original: " b", Probability: 0.2},
	), false)
	require.NoError(t, f.m.Query(context.Background(), Request{}))
	require.NoError(t, f.m.Next())
	require.NoError(t, f.m.Confirm())
	assert.Equal(t, "Once upon a time b", f.ed.Text())
}

func TestReopenPersistentList(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(
		event.Suggestion{Original: " a", Probability: 0.3},
		event.Suggestion{Original: " b", Probability: 0.2},
	), true)
	require.NoError(t, f.m.Query(context.Background(), Request{}))
	require.NoError(t, f.m.Select(1))
	require.NoError(t, f.m.Reopen())

	assert.Equal(t, OpenReopened, f.m.State())
	assert.True(t, f.view.Reopened)
	assert.Equal(t, 0, f.view.Highlighted)
	assert.Len(t, f.view.Items, 2)
	assert.Equal(t, event.SuggestionReopen, f.rec.events[len(f.rec.events)-1].kind)
}

func TestCloseRecordsSource(t *testing.T) {
	t.Parallel()

	f := newFixture(staticProvider(event.Suggestion{Original: " a"}), false)
	require.NoError(t, f.m.Query(context.Background(), Request{}))
	require.NoError(t, f.m.Close(event.SourceUser))
	require.NoError(t, f.m.Close(event.SourceUser))

	kinds := f.rec.kinds()
	assert.Equal(t, event.SuggestionClose, kinds[len(kinds)-1])
	assert.Equal(t, 1, countKind(kinds, event.SuggestionClose), "closing twice records once")
	assert.Equal(t, event.SourceUser, f.rec.events[len(kinds)-1].source)

	require.NoError(t, f.m.Reopen(), "closing without selecting keeps the list")
}

func countKind(kinds []event.Kind, k event.Kind) int {
	n := 0
	for _, got := range kinds {
		if got == k {
			n++
		}
	}
	return n
}
