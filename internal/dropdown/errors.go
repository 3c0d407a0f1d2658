package dropdown

import (
	"errors"
	"fmt"
)

var (
	ErrQueryInFlight   = errors.New("dropdown: query already in flight")
	ErrNothingFetched  = errors.New("dropdown: no suggestions fetched")
	ErrAlreadyConsumed = errors.New("dropdown: suggestions already consumed")
)

// ProviderError reports a failed provider call. The dropdown is closed and
// the user may retry.
type ProviderError struct {
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("dropdown: provider: %v", e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// EmptyError reports a provider response with no presentable candidate.
type EmptyError struct {
	Counts Counts
}

func (e *EmptyError) Error() string {
	return fmt.Sprintf("dropdown: no presentable suggestions (empty %d, duplicate %d, blocked %d)",
		e.Counts.Empty, e.Counts.Duplicate, e.Counts.Blocked)
}

// UserMessage returns the text shown to the writer for err. It returns ""
// for errors that are not user-facing.
func UserMessage(err error) string {
	var perr *ProviderError
	var eerr *EmptyError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &eerr):
		return fmt.Sprintf("Please try again!\n\n"+
			"Why is this happening? The system\n"+
			"- could not think of suggestions (%d)\n"+
			"- generated same suggestions as before (%d)\n"+
			"- generated suggestions that contained banned words (%d)\n",
			eerr.Counts.Empty, eerr.Counts.Duplicate, eerr.Counts.Blocked)
	case errors.As(err, &perr):
		return "Could not get suggestions. Press tab key to try again!"
	case errors.Is(err, ErrNothingFetched):
		return "No suggestions to be shown. Press tab key to get new suggestions!"
	case errors.Is(err, ErrAlreadyConsumed):
		return "You can only reopen suggestions when none of them was selected before. Please press tab key to get new suggestions instead!"
	case errors.Is(err, ErrQueryInFlight):
		return "Suggestions are on their way. Please wait!"
	}
	return ""
}
