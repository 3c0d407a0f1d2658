// Package editor defines the text-editor capability surface the session and
// replay drive, plus an in-memory implementation.
package editor

import (
	"slices"

	"coauthor/internal/event"
)

// TextChange is delivered after the document changed.
type TextChange struct {
	Delta        event.Delta
	OldText      string
	OldSelection event.Range
	Source       event.Provenance
}

// SelectionChange is delivered after the selection moved.
type SelectionChange struct {
	Range    event.Range
	OldRange event.Range
	Source   event.Provenance
}

// Editor is a rich-text editing surface. Positions are rune offsets. Out of
// range positions are clamped, never rejected.
type Editor interface {
	Text() string
	Len() int
	SetText(text string, prov event.Provenance)
	InsertText(at int, text string, prov event.Provenance)
	DeleteText(at, n int, prov event.Provenance)
	ApplyDelta(d event.Delta, prov event.Provenance)
	Selection() event.Range
	SetSelection(r event.Range, prov event.Provenance)
	OnTextChange(fn func(TextChange))
	OnSelectionChange(fn func(SelectionChange))
}

// Buffer is an in-memory Editor. It is not safe for concurrent use.
//
// Handlers run synchronously after the mutation has been applied, text
// handlers before selection handlers. Selection shifts caused by a text
// change are applied with the text and are not reported separately.
type Buffer struct {
	text  []rune
	sel   event.Range
	onTxt []func(TextChange)
	onSel []func(SelectionChange)
}

var _ Editor = (*Buffer)(nil)

// NewBuffer returns a buffer holding text with the cursor at the start.
func NewBuffer(text string) *Buffer {
	return &Buffer{text: []rune(text)}
}

func (b *Buffer) Text() string { return string(b.text) }

func (b *Buffer) Len() int { return len(b.text) }

func (b *Buffer) Selection() event.Range { return b.sel }

func (b *Buffer) OnTextChange(fn func(TextChange)) { b.onTxt = append(b.onTxt, fn) }

func (b *Buffer) OnSelectionChange(fn func(SelectionChange)) { b.onSel = append(b.onSel, fn) }

// SetText replaces the whole document. The cursor keeps its index, clamped
// to the new length.
func (b *Buffer) SetText(text string, prov event.Provenance) {
	var d event.Delta
	if n := len(b.text); n > 0 {
		d.Ops = append(d.Ops, event.Op{Delete: n})
	}
	if text != "" {
		d.Ops = append(d.Ops, event.Op{Insert: text})
	}
	next := []rune(text)
	b.apply(d, next, prov, func(old event.Range) event.Range {
		return b.clamp(old, len(next))
	})
}

func (b *Buffer) InsertText(at int, text string, prov event.Provenance) {
	if text == "" {
		return
	}
	at = clampInt(at, 0, len(b.text))
	b.ApplyDelta(event.InsertAt(at, text), prov)
}

func (b *Buffer) DeleteText(at, n int, prov event.Provenance) {
	at = clampInt(at, 0, len(b.text))
	n = clampInt(n, 0, len(b.text)-at)
	if n == 0 {
		return
	}
	b.ApplyDelta(event.DeleteAt(at, n), prov)
}

// ApplyDelta applies d and shifts the selection through it.
func (b *Buffer) ApplyDelta(d event.Delta, prov event.Provenance) {
	next := []rune(d.Apply(string(b.text)))
	b.apply(d, next, prov, func(old event.Range) event.Range {
		start := d.TransformIndex(old.Index)
		end := d.TransformIndex(old.Index + old.Length)
		return b.clamp(event.Range{Index: start, Length: end - start}, len(next))
	})
}

func (b *Buffer) apply(d event.Delta, next []rune, prov event.Provenance, shift func(event.Range) event.Range) {
	if slices.Equal(next, b.text) {
		return
	}
	change := TextChange{
		Delta:        d.Clone(),
		OldText:      string(b.text),
		OldSelection: b.sel,
		Source:       prov,
	}
	b.text = next
	b.sel = shift(b.sel)
	for _, fn := range b.onTxt {
		fn(change)
	}
}

// SetSelection moves the cursor. r is clamped to the document.
func (b *Buffer) SetSelection(r event.Range, prov event.Provenance) {
	r = b.clamp(r, len(b.text))
	if r == b.sel {
		return
	}
	change := SelectionChange{Range: r, OldRange: b.sel, Source: prov}
	b.sel = r
	for _, fn := range b.onSel {
		fn(change)
	}
}

func (b *Buffer) clamp(r event.Range, n int) event.Range {
	r.Index = clampInt(r.Index, 0, n)
	r.Length = clampInt(r.Length, 0, n-r.Index)
	return r
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
