package store

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"coauthor/internal/event"
)

// Document is the search-index representation of one logged event.
type Document struct {
	ID              string `json:"id"`
	SessionID       string `json:"session_id"`
	Seq             int    `json:"seq"`
	Kind            string `json:"kind"`
	Source          string `json:"source"`
	Timestamp       string `json:"timestamp"`
	TimestampUnixMs int64  `json:"timestamp_unix_ms"`
	Cursor          int    `json:"cursor"`
	Engine          string `json:"engine,omitempty"`
	Text            string `json:"text"`
}

// docNamespace scopes document IDs so re-saving a log overwrites its
// previous documents instead of adding new ones.
var docNamespace = uuid.MustParse("6f1c7a52-3f0e-4c8e-9a55-2b1d0c4e7a10")

// DocumentID is the stable ID of the seq-th event of a session.
func DocumentID(sessionID string, seq int) string {
	return uuid.NewSHA1(docNamespace, []byte(fmt.Sprintf("%s/%d", sessionID, seq))).String()
}

// EventToDocument transforms a logged event into a search document. Text
// holds what a writer would search for: inserted text, the prompt,
// suggestion texts or the failure message.
func EventToDocument(sessionID string, seq int, e event.Event) Document {
	return Document{
		ID:              DocumentID(sessionID, seq),
		SessionID:       sessionID,
		Seq:             seq,
		Kind:            string(e.Kind),
		Source:          string(e.Source),
		Timestamp:       e.Time().UTC().Format("2006-01-02T15:04:05.000Z"),
		TimestampUnixMs: e.Timestamp,
		Cursor:          e.Cursor,
		Engine:          e.Engine,
		Text:            searchText(e),
	}
}

// LogToDocuments transforms a whole log.
func LogToDocuments(sessionID string, events []event.Event) []Document {
	docs := make([]Document, len(events))
	for i, e := range events {
		docs[i] = EventToDocument(sessionID, i, e)
	}
	return docs
}

func searchText(e event.Event) string {
	var parts []string
	if e.Document != "" {
		parts = append(parts, e.Document)
	}
	if e.TextDelta != nil {
		if t := e.TextDelta.InsertedText(); t != "" {
			parts = append(parts, t)
		}
	}
	list := e.Suggestions
	if len(list) == 0 {
		list = e.OriginalSuggestions
	}
	for _, s := range list {
		if s.Trimmed != "" {
			parts = append(parts, s.Trimmed)
		} else if t := strings.TrimSpace(s.Original); t != "" {
			parts = append(parts, t)
		}
	}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	return strings.Join(parts, "\n")
}
