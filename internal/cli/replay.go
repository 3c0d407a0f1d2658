package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"coauthor/internal/config"
	"coauthor/internal/dropdown"
	"coauthor/internal/editor"
	"coauthor/internal/event"
	"coauthor/internal/replay"
	"coauthor/internal/tui"
)

func newReplayCmd(g *globals) *cobra.Command {
	rc := config.Replay{
		SpeedUp:  config.EnvFloat("COAUTHOR_REPLAY_SPEED", replay.DefaultSpeedUp),
		MaxDelay: replay.DefaultMaxDelay,
	}
	var plain bool

	cmd := &cobra.Command{
		Use:   "replay <session-id | log.jsonl>",
		Short: "Replay a session in the terminal",
		Long:  "Re-apply a recorded session event by event, paced by the recorded gaps divided by --speed and capped at --max-delay.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadLog(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			opts := replay.DefaultOptions()
			opts.SpeedUp = rc.SpeedUp
			opts.MaxDelay = rc.MaxDelay
			if plain {
				return runPlainReplay(cmd.Context(), cmd.OutOrStdout(), events, rc, opts)
			}
			return runTUIReplay(cmd.Context(), args[0], events, rc, opts)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&plain, "plain", false, "print a text trace instead of the interactive viewer")
	f.Float64Var(&rc.SpeedUp, "speed", rc.SpeedUp, "speed-up factor (env COAUTHOR_REPLAY_SPEED)")
	f.DurationVar(&rc.MaxDelay, "max-delay", rc.MaxDelay, "longest pause between two events")
	f.IntVar(&rc.Start, "start", 0, "first event to replay")
	f.IntVar(&rc.End, "end", 0, "stop before this event (0 means the end of the log)")

	return cmd
}

func runTUIReplay(ctx context.Context, ref string, events []event.Event, rc config.Replay, opts replay.Options) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames, done, err := tui.Play(ctx, events, rc.Start, rc.End, opts)
	if err != nil {
		return err
	}
	m := tui.NewModel(tui.Config{Version: Version, SessionID: ref, SpeedUp: opts.SpeedUp}, frames, done, cancel)
	return tui.Run(m)
}

// runPlainReplay prints one line per event and the final document.
func runPlainReplay(ctx context.Context, w io.Writer, events []event.Event, rc config.Replay, opts replay.Options) error {
	buf := editor.NewBuffer("")
	opts.OnStep = func(p replay.Progress) {
		mark := ""
		if p.Skipped {
			mark = "  (skipped)"
		}
		fmt.Fprintf(w, "%s  %-18s cursor=%d%s\n", tui.ProgressLine(p), p.Event.Kind, buf.Selection().Index, mark)
	}
	s, err := replay.New(buf, dropdown.NewDisplay(), opts)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := s.RunRange(ctx, events, rc.Start, rc.End); err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s\n\n(replayed in %s)\n", buf.Text(), time.Since(start).Round(time.Millisecond))
	return nil
}
