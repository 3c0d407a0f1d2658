package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"coauthor/internal/event"
	"coauthor/internal/replay"
	"coauthor/internal/store"
)

func newFinalCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "final <session-id | log.jsonl>",
		Short: "Print the final document of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadLog(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			text, _ := replay.Final(events)
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}

func newLogCmd(g *globals) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "log <session-id | log.jsonl>",
		Short: "List the events of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadLog(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(events)
			}
			printEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw events as JSON")
	return cmd
}

var kindColors = map[event.Kind]*color.Color{
	event.SystemInitialize: color.New(color.FgGreen, color.Bold),
	event.TextInsert:       color.New(color.FgCyan),
	event.TextDelete:       color.New(color.FgRed),
	event.CursorSelect:     color.New(color.FgBlue),
	event.SuggestionGet:    color.New(color.FgYellow, color.Bold),
	event.SuggestionOpen:   color.New(color.FgYellow),
	event.SuggestionReopen: color.New(color.FgYellow),
	event.SuggestionSelect: color.New(color.FgMagenta, color.Bold),
	event.SuggestionFail:   color.New(color.FgRed, color.Bold),
}

var dim = color.New(color.Faint)

func kindColor(k event.Kind) *color.Color {
	if c, ok := kindColors[k]; ok {
		return c
	}
	return dim
}

func printEvents(w io.Writer, events []event.Event) {
	if len(events) == 0 {
		fmt.Fprintln(w, "(empty log)")
		return
	}
	t0 := events[0].Timestamp
	for i, e := range events {
		offset := time.Duration(e.Timestamp-t0) * time.Millisecond
		fmt.Fprintf(w, "%4d  %9s  %s %-4s cursor=%-5d %s\n",
			i,
			offset.Round(time.Millisecond),
			kindColor(e.Kind).Sprintf("%-18s", e.Kind),
			e.Source,
			e.Cursor,
			dim.Sprint(eventDetail(e)))
	}
}

func eventDetail(e event.Event) string {
	switch {
	case e.Kind == event.SystemInitialize:
		return fmt.Sprintf("%q", e.Document)
	case e.TextDelta != nil && e.TextDelta.HasInsert():
		return fmt.Sprintf("+%q", e.TextDelta.InsertedText())
	case e.TextDelta != nil:
		n := 0
		for _, op := range e.TextDelta.Ops {
			n += op.Delete
		}
		return fmt.Sprintf("-%d", n)
	case e.CursorRange != nil:
		return fmt.Sprintf("range=%d+%d", e.CursorRange.Index, e.CursorRange.Length)
	case len(e.Suggestions) > 0:
		texts := make([]string, len(e.Suggestions))
		for i, s := range e.Suggestions {
			texts[i] = fmt.Sprintf("%q", s.Trimmed)
		}
		return strings.Join(texts, " ")
	case e.Kind == event.SuggestionUp || e.Kind == event.SuggestionDown || e.Kind == event.SuggestionSelect:
		return fmt.Sprintf("index=%d", e.DropdownIndex)
	case e.Kind == event.SuggestionHover:
		return fmt.Sprintf("hover=%d", e.HoverIndex)
	case e.Message != "":
		return e.Message
	}
	return ""
}

func newStatsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <session-id | log.jsonl>",
		Short: "Summarize a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := loadLog(cmd.Context(), g, args[0])
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), events)
			return nil
		},
	}
}

func printStats(w io.Writer, events []event.Event) {
	counts := event.Stats(events)
	for _, k := range event.Kinds {
		if counts[k] == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-18s %d\n", k, counts[k])
	}
	var dur time.Duration
	if n := len(events); n > 0 {
		dur = time.Duration(events[n-1].Timestamp-events[0].Timestamp) * time.Millisecond
	}
	text, _ := replay.Final(events)
	fmt.Fprintf(w, "  %-18s %d\n", "events", len(events))
	fmt.Fprintf(w, "  %-18s %s\n", "duration", dur.Round(time.Second))
	fmt.Fprintf(w, "  %-18s %d\n", "final length", len([]rune(text)))
}

func newSessionsCmd(g *globals) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recently started sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(cmd.Context(), g.cfg.DB)
			if err != nil {
				return err
			}
			defer s.Close()
			list, err := s.ListSessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(w, "(no sessions)")
				return nil
			}
			for _, sess := range list {
				fmt.Fprintf(w, "%s  %s  %-12s %s\n",
					sess.StartedAt.Local().Format("2006-01-02 15:04:05"),
					sess.ID, sess.AccessCode, sess.Config.Domain)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of sessions")
	return cmd
}
