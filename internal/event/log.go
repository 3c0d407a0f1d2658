package event

import (
	"errors"
	"log/slog"
)

var (
	ErrMissingKind   = errors.New("event: missing kind")
	ErrMissingSource = errors.New("event: missing source")
)

// Log is the append-only, timestamp-ordered record of one session.
// It is not safe for concurrent use; the session drives it from one goroutine.
type Log struct {
	events []Event
	logger *slog.Logger
}

// NewLog returns an empty log. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// NewLogFrom rebuilds a log from persisted events, applying the same
// filtering and ordering rules as Append. Invalid entries are dropped.
func NewLogFrom(events []Event, logger *slog.Logger) *Log {
	l := NewLog(logger)
	for _, e := range events {
		_ = l.Append(e)
	}
	return l
}

// Append records e. Skip events are dropped silently. Events without a
// kind or source are rejected. A timestamp earlier than the tail is raised
// to the tail's timestamp so the log stays non-decreasing.
func (l *Log) Append(e Event) error {
	switch {
	case e.Kind == "":
		l.logger.Warn("rejected event without kind", "source", e.Source)
		return ErrMissingKind
	case e.Source == "":
		l.logger.Warn("rejected event without source", "kind", e.Kind)
		return ErrMissingSource
	case e.Kind == Skip:
		return nil
	}
	if n := len(l.events); n > 0 {
		if tail := l.events[n-1].Timestamp; e.Timestamp < tail {
			l.logger.Debug("clamped out-of-order timestamp", "kind", e.Kind, "timestamp", e.Timestamp, "tail", tail)
			e.Timestamp = tail
		}
	}
	l.events = append(l.events, e.Clone())
	return nil
}

// Len returns the number of recorded events.
func (l *Log) Len() int { return len(l.events) }

// Last returns the most recent event.
func (l *Log) Last() (Event, bool) {
	if len(l.events) == 0 {
		return Event{}, false
	}
	return l.events[len(l.events)-1].Clone(), true
}

// Events returns a copy of the recorded events in order.
func (l *Log) Events() []Event {
	out := make([]Event, len(l.events))
	for i, e := range l.events {
		out[i] = e.Clone()
	}
	return out
}

// Stats counts events per kind. Every storable kind is present in the result.
func Stats(events []Event) map[Kind]int {
	counts := make(map[Kind]int, len(Kinds))
	for _, k := range Kinds {
		counts[k] = 0
	}
	for _, e := range events {
		counts[e.Kind]++
	}
	return counts
}

// TextAt returns the document as it was just before events[i], folding text
// deltas forward from the most recent SystemInitialize. i is clamped to
// [0, len(events)].
func TextAt(events []Event, i int) string {
	i = max(0, min(i, len(events)))
	start := 0
	text := ""
	for j := i - 1; j >= 0; j-- {
		if events[j].Kind == SystemInitialize {
			start = j + 1
			text = events[j].Document
			break
		}
	}
	for _, e := range events[start:i] {
		if e.TextDelta != nil {
			text = e.TextDelta.Apply(text)
		}
	}
	return text
}

// LastText returns the document after the whole log has been applied.
func LastText(events []Event) string {
	return TextAt(events, len(events))
}

// CursorAt returns the recorded cursor just before events[i], or 0.
func CursorAt(events []Event, i int) int {
	i = min(i, len(events))
	if i <= 0 {
		return 0
	}
	return events[i-1].Cursor
}
