package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"coauthor/internal/api"
	"coauthor/internal/config"
	"coauthor/internal/store"
)

func newServeCmd(g *globals) *cobra.Command {
	var host string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the session API server",
		Long:  "Serve start_session, end_session, save_log and get_log over HTTP, storing logs in the database.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, g.cfg, host)
		},
	}

	f := cmd.Flags()
	f.StringVar(&g.cfg.Port, "port", g.cfg.Port, "HTTP listen port (env COAUTHOR_PORT)")
	f.StringVar(&host, "host", "127.0.0.1", "HTTP listen address")
	f.StringVar(&g.cfg.ConfigDir, "config-dir", g.cfg.ConfigDir, "access codes, prompts and examples (env COAUTHOR_CONFIG_DIR)")
	f.StringVar(&g.cfg.MeiliURL, "meili-url", g.cfg.MeiliURL, "MeiliSearch endpoint; empty disables search (env MEILI_URL)")
	f.StringVar(&g.cfg.MeiliKey, "meili-key", g.cfg.MeiliKey, "MeiliSearch API key (env MEILI_KEY)")
	f.StringVar(&g.cfg.MeiliIndex, "meili-index", g.cfg.MeiliIndex, "MeiliSearch index name (env MEILI_INDEX)")

	return cmd
}

func runServe(cmd *cobra.Command, cfg config.Server, host string) error {
	out := cmd.OutOrStdout()
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Fail fast on a broken config dir rather than on the first session.
	cat, err := config.LoadCatalog(cfg.ConfigDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := api.New(db, func() (*config.Catalog, error) {
		return config.LoadCatalog(cfg.ConfigDir)
	})

	if cfg.MeiliURL != "" {
		fmt.Fprintf(out, "Connecting to MeiliSearch at %s...\n", cfg.MeiliURL)
		idx, err := store.NewMeiliIndex(cfg.MeiliURL, cfg.MeiliKey, cfg.MeiliIndex)
		if err != nil {
			return err
		}
		defer idx.Close()
		srv.SetIndexer(idx)
	}

	srv.SetOnSession(func(e api.SessionEvent) {
		line := fmt.Sprintf("  %s  %-5s %s", e.Timestamp.Local().Format("15:04:05"), e.Action, e.SessionID)
		if e.Action == "start" {
			line += " (" + e.AccessCode + ")"
		} else {
			line += fmt.Sprintf(" (%d events)", e.Events)
		}
		fmt.Fprintln(out, line)
	})

	httpSrv := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(host, cfg.Port))
	if err != nil {
		return err
	}
	actualPort := ln.Addr().(*net.TCPAddr).Port

	printBanner(out, actualPort, cfg, len(cat.AccessCodes))

	var shutdownOnce sync.Once
	doShutdown := func() {
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		httpSrv.Shutdown(shutdownCtx)
	}

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sig)
		select {
		case <-sig:
			fmt.Fprintln(out, "\nShutting down...")
			shutdownOnce.Do(doShutdown)
		case <-ctx.Done():
			shutdownOnce.Do(doShutdown)
		}
	}()

	if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	shutdownOnce.Do(doShutdown)
	return nil
}

func printBanner(w io.Writer, port int, cfg config.Server, codes int) {
	title := fmt.Sprintf("coauthor %s", Version)
	sep := strings.Repeat("─", 50)
	search := "disabled"
	if cfg.MeiliURL != "" {
		search = fmt.Sprintf("%s (index: %s)", cfg.MeiliURL, cfg.MeiliIndex)
	}
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "  %s\n", title)
	fmt.Fprintln(w, sep)
	fmt.Fprintf(w, "  Database:    %s\n", redactDSN(cfg.DB))
	fmt.Fprintf(w, "  Config:      %s (%d access codes)\n", cfg.ConfigDir, codes)
	fmt.Fprintf(w, "  MeiliSearch: %s\n", search)
	fmt.Fprintf(w, "  Listening:   http://localhost:%d\n", port)
	fmt.Fprintln(w, "  Endpoints:   POST /api/{start_session,end_session,save_log,get_log}  GET /health  GET /stats")
	fmt.Fprintln(w, sep)
	fmt.Fprintln(w, "  Waiting for sessions...")
	fmt.Fprintln(w)
}

// redactDSN hides the password of a database URL.
func redactDSN(dsn string) string {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return dsn
	}
	creds, host, ok := strings.Cut(rest, "@")
	if !ok {
		return dsn
	}
	user, _, hasPass := strings.Cut(creds, ":")
	if !hasPass {
		return dsn
	}
	return scheme + "://" + user + ":***@" + host
}
