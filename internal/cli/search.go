package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"coauthor/internal/event"
	"coauthor/internal/store"
)

func newSearchCmd(g *globals) *cobra.Command {
	var limit int64

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over indexed session events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if g.cfg.MeiliURL == "" {
				return errors.New("search needs MeiliSearch: set MEILI_URL or --meili-url")
			}
			idx, err := store.NewMeiliIndex(g.cfg.MeiliURL, g.cfg.MeiliKey, g.cfg.MeiliIndex)
			if err != nil {
				return err
			}
			defer idx.Close()

			docs, err := idx.Search(cmd.Context(), strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if len(docs) == 0 {
				fmt.Fprintln(w, "(no matches)")
				return nil
			}
			for _, d := range docs {
				text := strings.ReplaceAll(d.Text, "\n", " | ")
				fmt.Fprintf(w, "%s  %s #%-4d %s %s\n",
					d.Timestamp, d.SessionID, d.Seq, kindColor(event.Kind(d.Kind)).Sprintf("%-18s", d.Kind), text)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.Int64Var(&limit, "limit", 20, "maximum number of hits")
	f.StringVar(&g.cfg.MeiliURL, "meili-url", g.cfg.MeiliURL, "MeiliSearch endpoint (env MEILI_URL)")
	f.StringVar(&g.cfg.MeiliKey, "meili-key", g.cfg.MeiliKey, "MeiliSearch API key (env MEILI_KEY)")
	f.StringVar(&g.cfg.MeiliIndex, "meili-index", g.cfg.MeiliIndex, "MeiliSearch index name (env MEILI_INDEX)")
	return cmd
}
