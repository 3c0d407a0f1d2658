package api

import (
	"coauthor/internal/config"
	"coauthor/internal/event"
)

// StartRequest is the body of POST /api/start_session.
type StartRequest struct {
	AccessCode string `json:"accessCode"`
}

// StartResponse carries the new session and its access-code settings,
// flattened. Status is false for an unknown access code.
type StartResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`

	SessionID   string `json:"session_id,omitempty"`
	ExampleText string `json:"example_text"`
	PromptText  string `json:"prompt_text"`

	config.AccessCode
}

// LogRequest is the body of POST /api/end_session and /api/save_log.
type LogRequest struct {
	SessionID string        `json:"sessionId"`
	Logs      []event.Event `json:"logs"`
}

// EndResponse is returned by end_session. VerificationCode is
// "SERVER_ERROR" when the session is unknown to the server, even though
// the log was saved.
type EndResponse struct {
	Status           bool   `json:"status"`
	Message          string `json:"message,omitempty"`
	VerificationCode string `json:"verification_code,omitempty"`
}

// SaveResponse is returned by save_log.
type SaveResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Events  int    `json:"events"`
}

// GetLogRequest is the body of POST /api/get_log.
type GetLogRequest struct {
	SessionID string `json:"sessionId"`
}

// Stats summarizes a log.
type Stats struct {
	EventCounter map[event.Kind]int `json:"eventCounter"`
}

// GetLogResponse returns a stored log with its metadata. Stats, Config and
// LastText are null when the metadata could not be computed.
type GetLogResponse struct {
	Status   bool               `json:"status"`
	Message  string             `json:"message,omitempty"`
	Logs     []event.Event      `json:"logs,omitempty"`
	Stats    *Stats             `json:"stats"`
	Config   *config.AccessCode `json:"config"`
	LastText *string            `json:"last_text"`
}

// ServerErrorCode is the verification code for a session the server lost.
const ServerErrorCode = "SERVER_ERROR"
