package dropdown

import (
	"context"
	"strings"
	"unicode"

	"coauthor/internal/event"
)

// Request is what the machine sends to the suggestion provider.
type Request struct {
	SessionID   string             `json:"session_id"`
	Domain      string             `json:"domain,omitempty"`
	Example     string             `json:"example,omitempty"`
	Document    string             `json:"doc"`
	Controls    event.ControlParams `json:"controls"`
	Suggestions []event.Suggestion `json:"suggestions,omitempty"` // previous list, for de-duplication
}

// Counts tallies candidates removed before presentation.
type Counts struct {
	Empty     int `json:"empty_cnt"`
	Duplicate int `json:"duplicate_cnt"`
	Blocked   int `json:"bad_cnt"`
}

// Response carries the filtered candidates, the unfiltered provider output
// and the filter tallies.
type Response struct {
	Suggestions []event.Suggestion `json:"suggestions_with_probabilities"`
	Original    []event.Suggestion `json:"original_suggestions"`
	Counts      Counts             `json:"counts"`
}

// Provider produces candidate continuations for a document.
type Provider interface {
	Suggest(ctx context.Context, req Request) (Response, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, req Request) (Response, error)

func (f ProviderFunc) Suggest(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Filter wraps a provider and removes empty candidates, repeats of the
// previous list, and candidates containing a blocked word. The wrapped
// provider's Suggestions are taken as the unfiltered output.
type Filter struct {
	Next      Provider
	Blocklist map[string]bool
}

func (f *Filter) Suggest(ctx context.Context, req Request) (Response, error) {
	resp, err := f.Next.Suggest(ctx, req)
	if err != nil {
		return Response{}, err
	}
	raw := resp.Suggestions
	if resp.Original == nil {
		resp.Original = raw
	}

	seen := make(map[string]bool, len(req.Suggestions))
	for _, s := range req.Suggestions {
		seen[s.Original] = true
	}

	resp.Suggestions = nil
	for _, s := range raw {
		switch {
		case s.Original == "":
			resp.Counts.Empty++
		case seen[s.Original]:
			resp.Counts.Duplicate++
		case f.blocked(s.Original):
			resp.Counts.Blocked++
		default:
			s.Index = len(resp.Suggestions)
			if s.Trimmed == "" {
				s.Trimmed = strings.TrimSpace(s.Original)
			}
			resp.Suggestions = append(resp.Suggestions, s)
		}
	}
	return resp, nil
}

func (f *Filter) blocked(text string) bool {
	if len(f.Blocklist) == 0 {
		return false
	}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	for _, w := range words {
		if f.Blocklist[w] {
			return true
		}
	}
	return false
}
