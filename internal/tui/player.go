package tui

import (
	"context"
	"slices"

	"coauthor/internal/dropdown"
	"coauthor/internal/editor"
	"coauthor/internal/event"
	"coauthor/internal/replay"
)

// Frame is the replayed state after one event.
type Frame struct {
	Text      string
	Selection event.Range
	Dropdown  dropdown.Display
	Progress  replay.Progress
}

// Play replays events[start:end] in a goroutine, publishing a Frame after
// every event. Frames are delivered in order; the replay waits for each
// to be received. The error channel yields the Run result once and is then
// closed, after the frame channel.
func Play(ctx context.Context, events []event.Event, start, end int, opts replay.Options) (<-chan Frame, <-chan error, error) {
	buf := editor.NewBuffer("")
	view := dropdown.NewDisplay()
	frames := make(chan Frame)
	done := make(chan error, 1)

	opts.OnStep = func(p replay.Progress) {
		f := Frame{
			Text:      buf.Text(),
			Selection: buf.Selection(),
			Dropdown:  *view,
			Progress:  p,
		}
		f.Dropdown.Items = slices.Clone(view.Items)
		select {
		case frames <- f:
		case <-ctx.Done():
		}
	}
	s, err := replay.New(buf, view, opts)
	if err != nil {
		return nil, nil, err
	}

	go func() {
		err := s.RunRange(ctx, events, start, end)
		close(frames)
		done <- err
		close(done)
	}()
	return frames, done, nil
}
