package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"coauthor/internal/event"
	"coauthor/internal/session"
)

// ErrRejected is wrapped by client errors for requests the server answered
// with status false.
var ErrRejected = errors.New("api: request rejected")

// Client talks to a Server. It implements session.API.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ session.API = (*Client)(nil)

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Start(ctx context.Context, accessCode string) (session.Started, error) {
	var resp StartResponse
	if err := c.post(ctx, "/api/start_session", StartRequest{AccessCode: accessCode}, &resp); err != nil {
		return session.Started{}, err
	}
	if !resp.Status {
		return session.Started{}, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return session.Started{
		SessionID: resp.SessionID,
		Config:    resp.AccessCode,
		Example:   resp.ExampleText,
		Prompt:    resp.PromptText,
	}, nil
}

func (c *Client) End(ctx context.Context, sessionID string, events []event.Event) (string, error) {
	var resp EndResponse
	if err := c.post(ctx, "/api/end_session", LogRequest{SessionID: sessionID, Logs: nonNil(events)}, &resp); err != nil {
		return "", err
	}
	if !resp.Status {
		return resp.VerificationCode, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return resp.VerificationCode, nil
}

func (c *Client) SaveLog(ctx context.Context, sessionID string, events []event.Event) error {
	var resp SaveResponse
	if err := c.post(ctx, "/api/save_log", LogRequest{SessionID: sessionID, Logs: nonNil(events)}, &resp); err != nil {
		return err
	}
	if !resp.Status {
		return fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return nil
}

func (c *Client) GetLog(ctx context.Context, sessionID string) (session.Loaded, error) {
	resp, err := c.Log(ctx, sessionID)
	if err != nil {
		return session.Loaded{}, err
	}
	l := session.Loaded{Events: resp.Logs, Config: resp.Config}
	if resp.LastText != nil {
		l.LastText = *resp.LastText
	} else {
		l.LastText = event.LastText(resp.Logs)
	}
	return l, nil
}

// Log returns the full get_log response, stats included.
func (c *Client) Log(ctx context.Context, sessionID string) (GetLogResponse, error) {
	var resp GetLogResponse
	if err := c.post(ctx, "/api/get_log", GetLogRequest{SessionID: sessionID}, &resp); err != nil {
		return GetLogResponse{}, err
	}
	if !resp.Status {
		return GetLogResponse{}, fmt.Errorf("%w: %s", ErrRejected, resp.Message)
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			return fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, e.Error)
		}
		return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// nonNil keeps an empty log serialized as [] rather than null.
func nonNil(events []event.Event) []event.Event {
	if events == nil {
		return []event.Event{}
	}
	return events
}
