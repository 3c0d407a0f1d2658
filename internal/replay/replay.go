// Package replay re-applies a recorded session log to an editor and a
// dropdown view, pacing events by their recorded gaps.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"coauthor/internal/dropdown"
	"coauthor/internal/event"
)

const (
	DefaultSpeedUp  = 5
	DefaultMaxDelay = time.Second
)

var (
	ErrReplayInProgress = errors.New("replay: already in progress")
	ErrInvalidSpeed     = errors.New("replay: speed-up must be a positive finite number")
)

// Editor is the editor surface replay writes through. All writes use
// silent provenance.
type Editor interface {
	SetText(text string, prov event.Provenance)
	ApplyDelta(d event.Delta, prov event.Provenance)
	SetSelection(r event.Range, prov event.Provenance)
}

// Progress describes the replay position after an event has been applied.
type Progress struct {
	Index int // absolute index into the log
	Count int // length of the log

	Elapsed   time.Duration // recorded time since the first replayed event
	TotalTime time.Duration // recorded time of the whole window

	Queries         int
	TotalQueries    int
	Selections      int
	TotalSelections int

	Event   event.Event
	Skipped bool
}

// Options configures a Scheduler.
type Options struct {
	SpeedUp  float64
	MaxDelay time.Duration

	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// OnStep is called after every event in the window.
	OnStep func(Progress)
	// OnControls receives the control parameters carried by every event.
	OnControls func(event.ControlParams)

	Logger *slog.Logger
}

// DefaultOptions returns the stock pacing: five times faster than
// recorded, no pause longer than one second.
func DefaultOptions() Options {
	return Options{SpeedUp: DefaultSpeedUp, MaxDelay: DefaultMaxDelay}
}

// Scheduler replays logs. Only one Run may be active at a time.
type Scheduler struct {
	editor  Editor
	view    dropdown.View
	opts    Options
	running atomic.Bool
}

// New validates opts and returns a scheduler driving ed and view.
func New(ed Editor, view dropdown.View, opts Options) (*Scheduler, error) {
	if opts.SpeedUp <= 0 || math.IsNaN(opts.SpeedUp) || math.IsInf(opts.SpeedUp, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpeed, opts.SpeedUp)
	}
	opts.MaxDelay = max(opts.MaxDelay, 0)
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{editor: ed, view: view, opts: opts}, nil
}

// Run replays the whole log.
func (s *Scheduler) Run(ctx context.Context, events []event.Event) error {
	return s.RunRange(ctx, events, 0, len(events))
}

// RunRange replays events[start:end]. An end outside (start, len] means the
// end of the log. When start is past the beginning the editor is first
// seeded with the document and cursor recorded just before start.
func (s *Scheduler) RunRange(ctx context.Context, events []event.Event, start, end int) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrReplayInProgress
	}
	defer s.running.Store(false)

	start = max(0, min(start, len(events)))
	if end <= start || end > len(events) {
		end = len(events)
	}
	window := events[start:end]
	if len(window) == 0 {
		return nil
	}

	if start > 0 {
		s.editor.SetText(event.TextAt(events, start), event.ProvenanceSilent)
		s.editor.SetSelection(event.Range{Index: event.CursorAt(events, start)}, event.ProvenanceSilent)
	}

	p := Progress{
		Count:     len(events),
		TotalTime: time.Duration(window[len(window)-1].Timestamp-window[0].Timestamp) * time.Millisecond,
	}
	for _, e := range window {
		switch e.Kind {
		case event.SuggestionGet:
			p.TotalQueries++
		case event.SuggestionSelect:
			p.TotalSelections++
		}
	}

	for i, e := range window {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && window[i-1].Kind.Replayable() {
			if d := s.delay(window[i-1].Timestamp, e.Timestamp); d > 0 {
				if err := s.opts.Sleep(ctx, d); err != nil {
					return err
				}
			}
		}

		p.Skipped = false
		if err := s.apply(e); err != nil {
			s.opts.Logger.Warn("skipping replay event", "index", start+i, "kind", e.Kind, "err", err)
			p.Skipped = true
		}

		switch e.Kind {
		case event.SuggestionGet:
			p.Queries++
		case event.SuggestionSelect:
			p.Selections++
		}
		p.Index = start + i
		p.Elapsed = time.Duration(e.Timestamp-window[0].Timestamp) * time.Millisecond
		p.Event = e
		if s.opts.OnStep != nil {
			s.opts.OnStep(p)
		}
	}
	return nil
}

// delay is the recorded gap divided by the speed-up, capped at MaxDelay.
func (s *Scheduler) delay(prev, cur int64) time.Duration {
	gap := max(cur-prev, 0)
	// Clamp before converting: a tiny speed-up overflows int64 nanoseconds.
	f := float64(gap) / s.opts.SpeedUp * float64(time.Millisecond)
	if f >= float64(s.opts.MaxDelay) {
		return s.opts.MaxDelay
	}
	return time.Duration(f)
}

var (
	errUnknownKind  = errors.New("unknown event kind")
	errMissingDelta = errors.New("text event without delta")
	errNoItems      = errors.New("open event without suggestions")
)

func (s *Scheduler) apply(e event.Event) error {
	if !e.Kind.Known() {
		return fmt.Errorf("%w: %q", errUnknownKind, e.Kind)
	}
	if s.opts.OnControls != nil {
		s.opts.OnControls(e.ControlParams.Clone())
	}

	silent := event.ProvenanceSilent
	cursor := event.Range{Index: e.Cursor}

	switch e.Kind {
	case event.SystemInitialize:
		s.editor.SetText(e.Document, silent)
		s.editor.SetSelection(cursor, silent)
	case event.TextInsert, event.TextDelete:
		if e.TextDelta == nil {
			return errMissingDelta
		}
		s.editor.ApplyDelta(*e.TextDelta, silent)
		s.editor.SetSelection(cursor, silent)
	case event.CursorForward, event.CursorBackward, event.CursorSelect:
		if e.CursorRange != nil {
			cursor = *e.CursorRange
		}
		s.editor.SetSelection(cursor, silent)
	case event.SuggestionGet:
		s.view.ShowLoading()
	case event.SuggestionOpen:
		if len(e.Suggestions) == 0 {
			return errNoItems
		}
		s.view.HideLoading()
		s.view.Render(e.Suggestions)
		s.view.Highlight(0)
		s.view.Open(false)
	case event.SuggestionReopen:
		s.view.Highlight(0)
		s.view.Open(true)
	case event.SuggestionUp, event.SuggestionDown:
		s.view.Highlight(e.DropdownIndex)
	case event.SuggestionHover:
		s.view.Highlight(e.HoverIndex)
	case event.SuggestionSelect:
		s.view.Click()
	case event.SuggestionClose:
		s.view.Close()
	case event.SuggestionFail:
		s.view.HideLoading()
	}
	return nil
}

// Final returns the document and cursor at the end of the log without any
// pacing.
func Final(events []event.Event) (string, int) {
	return event.LastText(events), event.CursorAt(events, len(events))
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
