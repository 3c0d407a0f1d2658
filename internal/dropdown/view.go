package dropdown

import (
	"slices"

	"coauthor/internal/event"
)

// View renders the dropdown. The live session and replay drive the same
// contract.
type View interface {
	ShowLoading()
	HideLoading()
	Render(items []event.Suggestion)
	Open(reopen bool)
	Highlight(i int)
	Click()
	Close()
}

// Display is an in-memory View. Closing hides the items but keeps them so a
// reopen can show them again.
type Display struct {
	Visible     bool
	Reopened    bool
	Loading     bool
	Items       []event.Suggestion
	Highlighted int // -1 when nothing is highlighted
	Clicks      int
}

var _ View = (*Display)(nil)

// NewDisplay returns a hidden, empty display.
func NewDisplay() *Display {
	return &Display{Highlighted: -1}
}

func (d *Display) ShowLoading() { d.Loading = true }

func (d *Display) HideLoading() { d.Loading = false }

func (d *Display) Render(items []event.Suggestion) {
	d.Items = slices.Clone(items)
	d.Highlighted = -1
}

func (d *Display) Open(reopen bool) {
	d.Visible = true
	d.Reopened = reopen
}

// Highlight marks item i. Out of range indices clear the highlight.
func (d *Display) Highlight(i int) {
	if i < 0 || i >= len(d.Items) {
		d.Highlighted = -1
		return
	}
	d.Highlighted = i
}

func (d *Display) Click() { d.Clicks++ }

func (d *Display) Close() {
	d.Visible = false
	d.Reopened = false
	d.Highlighted = -1
}

// Current returns the highlighted item, if any.
func (d *Display) Current() (event.Suggestion, bool) {
	if !d.Visible || d.Highlighted < 0 || d.Highlighted >= len(d.Items) {
		return event.Suggestion{}, false
	}
	return d.Items[d.Highlighted], true
}
