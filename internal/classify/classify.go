// Package classify maps raw editor notifications onto event kinds and
// decides, per session mode, whether a change is logged or reverted.
package classify

import (
	"unicode"

	"coauthor/internal/event"
)

// Text classifies a document change. Insert takes precedence, so a
// replacement (insert plus delete) is a TextInsert.
func Text(d event.Delta) event.Kind {
	switch {
	case d.HasInsert():
		return event.TextInsert
	case d.HasDelete():
		return event.TextDelete
	}
	return event.Skip
}

// Selection classifies a cursor move against the previously recorded
// cursor, not against the notification's old range.
func Selection(r event.Range, prevCursor int) event.Kind {
	switch {
	case r.Length > 0:
		return event.CursorSelect
	case r.Index > prevCursor:
		return event.CursorForward
	case r.Index < prevCursor:
		return event.CursorBackward
	}
	return event.Skip
}

// IsWhitespace reports whether every inserted piece of d is whitespace.
// Embeds are never whitespace.
func IsWhitespace(d event.Delta) bool {
	if d.HasEmbed() {
		return false
	}
	for _, r := range d.InsertedText() {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
