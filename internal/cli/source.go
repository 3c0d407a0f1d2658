package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"coauthor/internal/api"
	"coauthor/internal/event"
	"coauthor/internal/store"
)

// loadLog returns the events of a session. ref is a session ID, or a path
// to a .json (array) or .jsonl (one event per line) log file. Session IDs
// are read from the server when --url is set, otherwise from the database.
func loadLog(ctx context.Context, g *globals, ref string) ([]event.Event, error) {
	if isLogFile(ref) {
		return readLogFile(ref)
	}
	if g.cfg.URL != "" {
		resp, err := api.NewClient(g.cfg.ServerURL()).Log(ctx, ref)
		if err != nil {
			return nil, err
		}
		return resp.Logs, nil
	}

	s, err := store.Open(ctx, g.cfg.DB)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	events, err := s.GetLog(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", ref, err)
	}
	return events, nil
}

func isLogFile(ref string) bool {
	if !strings.HasSuffix(ref, ".json") && !strings.HasSuffix(ref, ".jsonl") {
		return false
	}
	_, err := os.Stat(ref)
	return err == nil
}

func readLogFile(path string) ([]event.Event, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var events []event.Event
		if err := json.Unmarshal(b, &events); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		return events, nil
	}

	var events []event.Event
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e event.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("parse %s line %d: %w", path, n, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return events, nil
}
