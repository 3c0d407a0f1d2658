// Package event defines the interaction record written for every meaningful
// action in a writing session, and the append-only log that holds them.
//
// The JSON shape of Event is the wire and storage contract: every layer that
// persists or transports a log keeps the array order, because the order IS the
// session timeline.
package event

import (
	"slices"
	"time"
)

// Kind enumerates the interaction events that can appear in a log.
type Kind string

const (
	SystemInitialize Kind = "system-initialize"

	TextInsert Kind = "text-insert"
	TextDelete Kind = "text-delete"

	CursorForward  Kind = "cursor-forward"
	CursorBackward Kind = "cursor-backward"
	CursorSelect   Kind = "cursor-select"

	SuggestionGet    Kind = "suggestion-get"
	SuggestionOpen   Kind = "suggestion-open"
	SuggestionReopen Kind = "suggestion-reopen"
	SuggestionUp     Kind = "suggestion-up"
	SuggestionDown   Kind = "suggestion-down"
	SuggestionHover  Kind = "suggestion-hover"
	SuggestionSelect Kind = "suggestion-select"
	SuggestionClose  Kind = "suggestion-close"
	SuggestionFail   Kind = "suggestion-fail"

	// Skip is produced by classification for changes that carry no
	// interaction meaning. It is filtered by Log.Append and never stored.
	Skip Kind = "skip"
)

// Kinds lists every storable kind in declaration order.
var Kinds = []Kind{
	SystemInitialize,
	TextInsert, TextDelete,
	CursorForward, CursorBackward, CursorSelect,
	SuggestionGet, SuggestionOpen, SuggestionReopen,
	SuggestionUp, SuggestionDown, SuggestionHover,
	SuggestionSelect, SuggestionClose, SuggestionFail,
}

// replayable kinds are followed by a pause during replay. SuggestionFail
// has no visual effect and is excluded.
var replayable = map[Kind]bool{
	SystemInitialize: true,
	TextInsert:       true,
	TextDelete:       true,
	CursorForward:    true,
	CursorBackward:   true,
	CursorSelect:     true,
	SuggestionGet:    true,
	SuggestionOpen:   true,
	SuggestionReopen: true,
	SuggestionUp:     true,
	SuggestionDown:   true,
	SuggestionHover:  true,
	SuggestionSelect: true,
	SuggestionClose:  true,
}

// Replayable reports whether a pause after an event of this kind is
// meaningful when the log is replayed.
func (k Kind) Replayable() bool { return replayable[k] }

// Known reports whether k belongs to the storable vocabulary.
func (k Kind) Known() bool { return slices.Contains(Kinds, k) }

// Source identifies who originated a logged action.
type Source string

const (
	SourceUser Source = "user"
	SourceAPI  Source = "api"
)

// Valid reports whether s is one of the two recognized sources.
func (s Source) Valid() bool { return s == SourceUser || s == SourceAPI }

// Provenance tags an editor mutation. Silent mutations are programmatic
// writes (replay, reverts, session restore) that are never classified or
// logged.
type Provenance string

const (
	ProvenanceUser   Provenance = "user"
	ProvenanceAPI    Provenance = "api"
	ProvenanceSilent Provenance = "silent"
)

// Source maps a non-silent provenance onto the event source it records as.
func (p Provenance) Source() (Source, bool) {
	switch p {
	case ProvenanceUser:
		return SourceUser, true
	case ProvenanceAPI:
		return SourceAPI, true
	}
	return "", false
}

// Range is a cursor position plus selection length, in runes.
type Range struct {
	Index  int `json:"index"`
	Length int `json:"length"`
}

// Suggestion is one candidate continuation returned by the suggestion
// provider. Trimmed is the display form.
type Suggestion struct {
	Index       int     `json:"index"`
	Original    string  `json:"original"`
	Trimmed     string  `json:"trimmed"`
	Probability float64 `json:"probability"`
	Source      string  `json:"source,omitempty"`
}

// ControlParams are the generation settings active in a session. They can
// change mid-session, so every event carries a copy.
type ControlParams struct {
	N                int      `json:"n"`
	MaxTokens        int      `json:"maxTokens"`
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"topP"`
	PresencePenalty  float64  `json:"presencePenalty"`
	FrequencyPenalty float64  `json:"frequencyPenalty"`
	Stop             []string `json:"stop,omitempty"`
	Engine           string   `json:"engine,omitempty"`
}

// Clone returns a copy that shares no slices with p.
func (p ControlParams) Clone() ControlParams {
	p.Stop = slices.Clone(p.Stop)
	return p
}

// Snapshot is the state captured alongside an event. Document is only set
// for SystemInitialize; the suggestion lists only for SuggestionOpen and
// (originals only) SuggestionFail.
type Snapshot struct {
	ControlParams
	Document            string       `json:"document,omitempty"`
	Suggestions         []Suggestion `json:"suggestions,omitempty"`
	OriginalSuggestions []Suggestion `json:"originalSuggestions,omitempty"`
}

// Event is a single entry of a session log. It is never modified after it
// has been appended.
type Event struct {
	Kind      Kind   `json:"kind"`
	Source    Source `json:"source"`
	Timestamp int64  `json:"timestamp"` // unix milliseconds

	TextDelta   *Delta `json:"textDelta,omitempty"`
	CursorRange *Range `json:"cursorRange,omitempty"`

	Cursor        int `json:"cursor"`
	DropdownIndex int `json:"dropdownIndex"`
	HoverIndex    int `json:"hoverIndex"` // only meaningful for SuggestionHover

	Message string `json:"message,omitempty"`

	Snapshot
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time { return time.UnixMilli(e.Timestamp) }

// Clone returns a deep copy of e.
func (e Event) Clone() Event {
	if e.TextDelta != nil {
		d := e.TextDelta.Clone()
		e.TextDelta = &d
	}
	if e.CursorRange != nil {
		r := *e.CursorRange
		e.CursorRange = &r
	}
	e.ControlParams = e.ControlParams.Clone()
	e.Suggestions = slices.Clone(e.Suggestions)
	e.OriginalSuggestions = slices.Clone(e.OriginalSuggestions)
	return e
}

// Option adds optional payload to an event being recorded.
type Option func(*Event)

// WithDelta attaches the text mutation.
func WithDelta(d Delta) Option {
	return func(e *Event) { e.TextDelta = &d }
}

// WithDocument attaches the full document, for SystemInitialize.
func WithDocument(doc string) Option {
	return func(e *Event) { e.Document = doc }
}

// WithRange attaches the selection that triggered a cursor event.
func WithRange(r Range) Option {
	return func(e *Event) { e.CursorRange = &r }
}

// WithMessage attaches a diagnostic message.
func WithMessage(msg string) Option {
	return func(e *Event) { e.Message = msg }
}

// WithDropdownIndex attaches the keyboard-highlighted dropdown item.
func WithDropdownIndex(i int) Option {
	return func(e *Event) { e.DropdownIndex = i }
}

// WithHoverIndex attaches the pointer-hovered dropdown item.
func WithHoverIndex(i int) Option {
	return func(e *Event) { e.HoverIndex = i }
}

// WithSuggestions attaches the presented and original candidate lists.
func WithSuggestions(presented, original []Suggestion) Option {
	return func(e *Event) {
		e.Suggestions = slices.Clone(presented)
		e.OriginalSuggestions = slices.Clone(original)
	}
}

// WithOriginal attaches only the unfiltered candidate list.
func WithOriginal(original []Suggestion) Option {
	return func(e *Event) { e.OriginalSuggestions = slices.Clone(original) }
}

// Recorder records events. The session implements it by snapshotting its
// current state; components that emit events depend only on this.
type Recorder interface {
	Record(kind Kind, source Source, opts ...Option)
}
