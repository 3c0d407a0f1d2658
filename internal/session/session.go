// Package session holds the live state of one writing session and wires
// editor notifications through the change classifier into the event log.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"coauthor/internal/classify"
	"coauthor/internal/config"
	"coauthor/internal/dropdown"
	"coauthor/internal/editor"
	"coauthor/internal/event"
)

// ErrNotStarted is returned by operations that need a session ID.
var ErrNotStarted = errors.New("session: not started")

// API is the remote session service.
type API interface {
	Start(ctx context.Context, accessCode string) (Started, error)
	// End saves the log and returns the verification code shown to the
	// writer.
	End(ctx context.Context, sessionID string, events []event.Event) (string, error)
	SaveLog(ctx context.Context, sessionID string, events []event.Event) error
	GetLog(ctx context.Context, sessionID string) (Loaded, error)
}

// Started is what the service returns for a new session.
type Started struct {
	SessionID string
	Config    config.AccessCode
	Example   string
	Prompt    string
}

// Loaded is a stored session log with its metadata. Config is nil when the
// session's metadata could not be found.
type Loaded struct {
	Events   []event.Event
	Config   *config.AccessCode
	LastText string
}

// Options configures a State.
type Options struct {
	Mode     classify.Mode
	Provider dropdown.Provider
	View     dropdown.View // nil means a fresh dropdown.Display
	Sort     bool

	// Normalize is the formatting hook run (throttled) after text changes
	// in human mode.
	Normalize func()

	Clock  func() time.Time
	Logger *slog.Logger
}

// State is one live session. It is not safe for concurrent use: drive it
// from a single goroutine.
type State struct {
	api  API
	opts Options

	editor   *editor.Buffer
	log      *event.Log
	policy   classify.Policy
	dropdown *dropdown.Machine
	view     dropdown.View

	id         string
	cfg        config.AccessCode
	example    string
	controls   event.ControlParams
	prevCursor int
	countdown  *Countdown
}

var _ event.Recorder = (*State)(nil)

// New returns an idle session bound to api. Call Start or Load next.
func New(api API, opts Options) *State {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.View == nil {
		opts.View = dropdown.NewDisplay()
	}
	s := &State{
		api:    api,
		opts:   opts,
		editor: editor.NewBuffer(""),
		log:    event.NewLog(opts.Logger),
		view:   opts.View,
	}
	s.policy = s.newPolicy()
	s.dropdown = s.newDropdown(false)
	s.editor.OnTextChange(s.onText)
	s.editor.OnSelectionChange(s.onSelection)
	return s
}

func (s *State) newPolicy() classify.Policy {
	return classify.NewPolicy(s.opts.Mode,
		classify.WithNormalize(s.opts.Normalize),
		classify.WithClock(s.opts.Clock),
		classify.WithLogger(s.opts.Logger))
}

func (s *State) newDropdown(persistent bool) *dropdown.Machine {
	return dropdown.New(dropdown.Config{
		Provider:   s.opts.Provider,
		View:       s.view,
		Editor:     s.editor,
		Recorder:   s,
		Sort:       s.opts.Sort,
		Persistent: persistent,
		Logger:     s.opts.Logger,
	})
}

func (s *State) ID() string                    { return s.id }
func (s *State) Config() config.AccessCode     { return s.cfg }
func (s *State) Example() string               { return s.example }
func (s *State) Editor() editor.Editor         { return s.editor }
func (s *State) Dropdown() *dropdown.Machine   { return s.dropdown }
func (s *State) Controls() event.ControlParams { return s.controls.Clone() }
func (s *State) Events() []event.Event         { return s.log.Events() }
func (s *State) Countdown() *Countdown         { return s.countdown }

// SetControls replaces the generation settings. Later events snapshot the
// new values.
func (s *State) SetControls(c event.ControlParams) { s.controls = c.Clone() }

// Record appends an event snapshotting the current cursor and controls.
func (s *State) Record(kind event.Kind, src event.Source, opts ...event.Option) {
	e := event.Event{
		Kind:      kind,
		Source:    src,
		Timestamp: s.opts.Clock().UnixMilli(),
		Cursor:    s.editor.Selection().Index,
		Snapshot:  event.Snapshot{ControlParams: s.controls.Clone()},
	}
	for _, opt := range opts {
		opt(&e)
	}
	if err := s.log.Append(e); err != nil {
		return
	}
	if kind != event.Skip {
		s.prevCursor = e.Cursor
	}
}

func (s *State) onText(c editor.TextChange) {
	src, ok := c.Source.Source()
	if !ok {
		return
	}
	kind := classify.Text(c.Delta)
	switch s.policy.Decide(classify.Change{Kind: kind, Source: src, Delta: c.Delta}) {
	case classify.Log:
		s.Record(kind, src, event.WithDelta(c.Delta))
	case classify.Revert:
		s.editor.SetText(c.OldText, event.ProvenanceSilent)
		s.editor.SetSelection(c.OldSelection, event.ProvenanceSilent)
	}
}

func (s *State) onSelection(c editor.SelectionChange) {
	src, ok := c.Source.Source()
	if !ok {
		return
	}
	kind := classify.Selection(c.Range, s.prevCursor)
	if s.policy.Decide(classify.Change{Kind: kind, Source: src}) == classify.Log {
		s.Record(kind, src, event.WithRange(c.Range))
	}
}

// Start opens a new session for accessCode: the prompt is placed in the
// editor silently and SystemInitialize records it.
func (s *State) Start(ctx context.Context, accessCode string) error {
	st, err := s.api.Start(ctx, accessCode)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	s.id = st.SessionID
	s.cfg = st.Config
	s.example = st.Example
	s.controls = st.Config.Controls()
	s.log = event.NewLog(s.opts.Logger)
	s.policy = s.newPolicy()
	s.dropdown = s.newDropdown(st.Config.PersistentSuggestions())
	s.countdown = NewCountdown(time.Duration(st.Config.SessionLength)*time.Second, s.opts.Clock)

	s.editor.SetText(st.Prompt, event.ProvenanceSilent)
	s.editor.SetSelection(event.Range{Index: s.editor.Len()}, event.ProvenanceSilent)
	s.Record(event.SystemInitialize, event.SourceAPI, event.WithDocument(st.Prompt))

	s.opts.Logger.Debug("session started", "session_id", s.id, "domain", s.cfg.Domain)
	return nil
}

// Load restores a stored session: log, controls, text and cursor. Nothing
// is recorded.
func (s *State) Load(ctx context.Context, sessionID string) error {
	l, err := s.api.GetLog(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", sessionID, err)
	}
	s.id = sessionID
	s.log = event.NewLogFrom(l.Events, s.opts.Logger)
	persistent := false
	if l.Config != nil {
		s.cfg = *l.Config
		s.controls = l.Config.Controls()
		persistent = l.Config.PersistentSuggestions()
	}
	s.policy = s.newPolicy()
	s.dropdown = s.newDropdown(persistent)

	cursor := 0
	if last, ok := s.log.Last(); ok {
		s.controls = last.ControlParams.Clone()
		cursor = last.Cursor
	}
	s.editor.SetText(l.LastText, event.ProvenanceSilent)
	s.editor.SetSelection(event.Range{Index: cursor}, event.ProvenanceSilent)
	s.prevCursor = s.editor.Selection().Index
	return nil
}

// Save uploads the log without ending the session.
func (s *State) Save(ctx context.Context) error {
	if s.id == "" {
		return ErrNotStarted
	}
	if err := s.api.SaveLog(ctx, s.id, s.log.Events()); err != nil {
		return fmt.Errorf("save session %s: %w", s.id, err)
	}
	return nil
}

// End uploads the log and returns the verification code.
func (s *State) End(ctx context.Context) (string, error) {
	if s.id == "" {
		return "", ErrNotStarted
	}
	code, err := s.api.End(ctx, s.id, s.log.Events())
	if err != nil {
		return "", fmt.Errorf("end session %s: %w", s.id, err)
	}
	return code, nil
}

// Query asks the provider for suggestions for the current document. The
// returned error, if any, has a user-facing form via dropdown.UserMessage.
func (s *State) Query(ctx context.Context) error {
	return s.dropdown.Query(ctx, dropdown.Request{
		SessionID: s.id,
		Domain:    s.cfg.Domain,
		Example:   s.example,
		Controls:  s.controls.Clone(),
	})
}

// Type inserts text at the cursor as the writer.
func (s *State) Type(text string) {
	sel := s.editor.Selection()
	if sel.Length > 0 {
		s.editor.DeleteText(sel.Index, sel.Length, event.ProvenanceUser)
	}
	s.editor.InsertText(sel.Index, text, event.ProvenanceUser)
}

// Backspace deletes the selection, or n runes before the cursor.
func (s *State) Backspace(n int) {
	sel := s.editor.Selection()
	if sel.Length > 0 {
		s.editor.DeleteText(sel.Index, sel.Length, event.ProvenanceUser)
		return
	}
	from := max(0, sel.Index-n)
	s.editor.DeleteText(from, sel.Index-from, event.ProvenanceUser)
}

// MoveCursor places the cursor (or a selection) as the writer.
func (s *State) MoveCursor(r event.Range) {
	s.editor.SetSelection(r, event.ProvenanceUser)
}
