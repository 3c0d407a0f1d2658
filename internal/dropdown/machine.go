// Package dropdown implements the suggestion dropdown state machine: fetching
// candidates, keyboard and pointer navigation, selection and reopening.
package dropdown

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"

	"coauthor/internal/editor"
	"coauthor/internal/event"
)

// State is the dropdown visibility state.
type State int

const (
	Closed State = iota
	Open
	OpenReopened
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case OpenReopened:
		return "open-reopened"
	}
	return "unknown"
}

// Config wires a Machine to its collaborators.
type Config struct {
	Provider Provider
	View     View
	Editor   editor.Editor
	Recorder event.Recorder

	// Sort orders candidates by descending probability, keeping provider
	// order among ties.
	Sort bool
	// Persistent keeps the list after a selection so it can be reopened.
	Persistent bool

	Logger *slog.Logger
}

// Machine is the dropdown state machine. Except for the in-flight guard on
// Query it is not safe for concurrent use.
type Machine struct {
	cfg Config

	state    State
	items    []event.Suggestion
	original []event.Suggestion
	index    int
	hover    int
	fetched  bool
	pending  atomic.Bool
}

// New returns a closed machine with an empty list.
func New(cfg Config) *Machine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Machine{cfg: cfg, hover: -1}
}

func (m *Machine) State() State { return m.state }

// IsOpen reports whether the dropdown is visible.
func (m *Machine) IsOpen() bool { return m.state != Closed }

// Items returns the presented candidates.
func (m *Machine) Items() []event.Suggestion { return slices.Clone(m.items) }

// Index returns the keyboard-highlighted position.
func (m *Machine) Index() int { return m.index }

// HoverIndex returns the pointer-hovered position, or -1.
func (m *Machine) HoverIndex() int { return m.hover }

// Pending reports whether a provider call is outstanding.
func (m *Machine) Pending() bool { return m.pending.Load() }

// Query fetches new candidates for the document. It returns
// ErrQueryInFlight while a previous call is outstanding, a *ProviderError if
// the provider fails, and an *EmptyError if nothing can be presented.
func (m *Machine) Query(ctx context.Context, req Request) error {
	if !m.pending.CompareAndSwap(false, true) {
		return ErrQueryInFlight
	}
	defer m.pending.Store(false)

	m.record(event.SuggestionGet, event.SourceUser)
	if m.IsOpen() {
		m.close(event.SourceAPI)
	}
	m.cursorToEnd()
	m.cfg.View.ShowLoading()

	req.Document = m.cfg.Editor.Text()
	req.Suggestions = slices.Clone(m.original)
	resp, err := m.cfg.Provider.Suggest(ctx, req)
	m.cfg.View.HideLoading()
	if err != nil {
		m.cfg.Logger.Warn("suggestion provider failed", "err", err)
		return &ProviderError{Err: err}
	}

	items, empty := present(resp.Suggestions, m.cfg.Sort)
	if len(items) == 0 {
		counts := resp.Counts
		counts.Empty += empty
		m.items, m.original = nil, nil
		m.fetched = false
		eerr := &EmptyError{Counts: counts}
		m.record(event.SuggestionFail, event.SourceAPI,
			event.WithOriginal(resp.Original),
			event.WithMessage(UserMessage(eerr)))
		return eerr
	}

	m.items = items
	m.original = slices.Clone(resp.Original)
	m.fetched = true
	m.show(false)
	m.record(event.SuggestionOpen, event.SourceAPI,
		event.WithSuggestions(m.items, m.original))
	return nil
}

// present drops candidates that are empty once trimmed, optionally sorts
// the rest, and renumbers them by display position. It returns the number
// of candidates dropped.
func present(in []event.Suggestion, sortByProb bool) ([]event.Suggestion, int) {
	out := make([]event.Suggestion, 0, len(in))
	for _, s := range in {
		if s.Trimmed == "" {
			s.Trimmed = strings.TrimSpace(s.Original)
		}
		if strings.TrimSpace(s.Trimmed) == "" {
			continue
		}
		out = append(out, s)
	}
	if sortByProb {
		slices.SortStableFunc(out, func(a, b event.Suggestion) int {
			return cmp.Compare(b.Probability, a.Probability)
		})
	}
	for i := range out {
		out[i].Index = i
	}
	return out, len(in) - len(out)
}

// Next highlights the following item, wrapping to the first.
func (m *Machine) Next() error {
	if !m.navigable() {
		return nil
	}
	m.index = (m.index + 1) % len(m.items)
	m.cfg.View.Highlight(m.index)
	m.record(event.SuggestionDown, event.SourceUser)
	return nil
}

// Prev highlights the preceding item, wrapping to the last.
func (m *Machine) Prev() error {
	if !m.navigable() {
		return nil
	}
	n := len(m.items)
	m.index = (m.index - 1 + n) % n
	m.cfg.View.Highlight(m.index)
	m.record(event.SuggestionUp, event.SourceUser)
	return nil
}

// Hover records the pointer resting on item i. The keyboard index is not
// changed.
func (m *Machine) Hover(i int) error {
	if !m.navigable() {
		return nil
	}
	m.hover = clampIndex(i, len(m.items))
	m.cfg.View.Highlight(m.hover)
	m.record(event.SuggestionHover, event.SourceUser)
	return nil
}

// Confirm selects the keyboard-highlighted item.
func (m *Machine) Confirm() error {
	return m.Select(m.index)
}

// Select picks item i: the dropdown closes and the item's original text is
// appended to the document.
func (m *Machine) Select(i int) error {
	if !m.navigable() {
		return nil
	}
	m.index = clampIndex(i, len(m.items))
	chosen := m.items[m.index]

	m.record(event.SuggestionSelect, event.SourceUser)
	m.cfg.View.Click()
	m.close(event.SourceAPI)

	ed := m.cfg.Editor
	ed.InsertText(ed.Len(), chosen.Original, event.ProvenanceAPI)
	m.cursorToEnd()

	if !m.cfg.Persistent {
		m.items = nil
	}
	return nil
}

// Close hides an open dropdown.
func (m *Machine) Close(src event.Source) error {
	if !m.IsOpen() {
		return nil
	}
	m.close(src)
	return nil
}

// Reopen shows the last list again without a provider call.
func (m *Machine) Reopen() error {
	if m.IsOpen() {
		return nil
	}
	if len(m.items) == 0 {
		if m.fetched {
			return ErrAlreadyConsumed
		}
		return ErrNothingFetched
	}
	m.show(true)
	m.record(event.SuggestionReopen, event.SourceUser)
	return nil
}

func (m *Machine) show(reopen bool) {
	m.index = 0
	m.hover = -1
	m.cfg.View.Render(m.items)
	m.cfg.View.Highlight(0)
	m.cfg.View.Open(reopen)
	if reopen {
		m.state = OpenReopened
	} else {
		m.state = Open
	}
}

func (m *Machine) close(src event.Source) {
	m.cfg.View.Close()
	m.state = Closed
	m.record(event.SuggestionClose, src)
	m.hover = -1
}

func (m *Machine) navigable() bool {
	return m.IsOpen() && len(m.items) > 0
}

func (m *Machine) cursorToEnd() {
	m.cfg.Editor.SetSelection(event.Range{Index: m.cfg.Editor.Len()}, event.ProvenanceAPI)
}

func (m *Machine) record(kind event.Kind, src event.Source, opts ...event.Option) {
	if m.cfg.Recorder == nil {
		return
	}
	opts = append([]event.Option{
		event.WithDropdownIndex(m.index),
		event.WithHoverIndex(m.hover),
	}, opts...)
	m.cfg.Recorder.Record(kind, src, opts...)
}

func clampIndex(i, n int) int {
	return max(0, min(i, n-1))
}
