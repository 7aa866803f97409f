package server

import (
	"encoding/json"
	"strings"

	"github.com/eos/lss/internal/game"
)

// envelope accepts both frame shapes: {"type": ACTION, ...fields} and
// {"action": ACTION, "data": {...fields}}.
type envelope struct {
	Type   string          `json:"type"`
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// name returns the action; type wins over action.
func (e envelope) name() string {
	if e.Type != "" {
		return e.Type
	}
	return e.Action
}

// payload returns the object holding the action fields.
func (e envelope) payload(raw []byte) json.RawMessage {
	if e.Type == "" && e.Action != "" && len(e.Data) > 0 && string(e.Data) != "null" {
		return e.Data
	}
	return raw
}

// caller is read from every payload to key the action limiter.
type caller struct {
	UserID string `json:"userId"`
}

type createRequest struct {
	UserID          string `json:"userId" validate:"required,max=64"`
	Name            string `json:"name" validate:"required,max=32"`
	ProfileImageURL string `json:"profileImageUrl" validate:"omitempty,url,max=512"`
}

func (r createRequest) player() game.Player {
	return game.Player{UserID: r.UserID, Name: r.Name, ProfileImageURL: r.ProfileImageURL}
}

type joinRequest struct {
	EntryCode string `json:"entryCode" validate:"required,len=6,numeric"`
	createRequest
}

type sessionRequest struct {
	SessionID string `json:"sessionId" validate:"required,max=64"`
	UserID    string `json:"userId" validate:"required,max=64"`
}

type coinRequest struct {
	sessionRequest
	CoinType string `json:"coinType" validate:"required"`
	State    string `json:"state" validate:"required"`
}

type skipRequest struct {
	sessionRequest
	TargetUserID string `json:"targetUserId" validate:"omitempty,max=64"`
}

var rateLimitedFrame = game.EncodeError(game.CodeRateLimitExceeded)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
