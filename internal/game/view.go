package game

import (
	"encoding/json"
	"time"
)

// Screens reported in StateView.GameState.
const (
	StateDisconnected  = "DISCONNECTED"
	StateWaitingRoom   = "WAITING_ROOM"
	StateOrderRegister = "ORDER_REGISTER"
	StateGamePlaying   = "GAME_PLAYING"
	StateLeeSoonSin    = "LEE_SOON_SIN"
)

// Frame types.
const (
	TypeOK    = "ok"
	TypeError = "error"
)

// StateView is the full session snapshot sent to one recipient.
type StateView struct {
	Type                   string     `json:"type"`
	Status                 string     `json:"status,omitempty"`
	SessionID              string     `json:"sessionId"`
	EntryCode              string     `json:"entryCode"`
	PresidentID            string     `json:"presidentId"`
	CreatedAt              *time.Time `json:"createdAt"`
	Players                []Player   `json:"players"`
	CurrentPlayerIndex     int        `json:"currentPlayerIndex"`
	IsClockWise            bool       `json:"isClockWise"`
	FirstCoinState         *CoinState `json:"firstCoinState"`
	SecondCoinState        *CoinState `json:"secondCoinState"`
	CurrentPlayer          *Player    `json:"currentPlayer"`
	IsMyTurn               bool       `json:"isMyTurn"`
	IsPresident            bool       `json:"isPresident"`
	GameState              string     `json:"gameState"`
	GameEndTime            *time.Time `json:"gameEndTime"`
	LeeSoonSinByTimeExpiry *bool      `json:"isLeeSoonSinByTimeExpired"`
}

// ErrorFrame reports a failure or a room-wide event.
type ErrorFrame struct {
	Type      string `json:"type"`
	ErrorCode Code   `json:"errorCode"`
}

// StatusFrame acknowledges actions that leave no session to describe.
type StatusFrame struct {
	Type      string `json:"type"`
	Status    string `json:"status"`
	SessionID string `json:"sessionId"`
}

// Status values carried by StatusFrame.
const (
	StatusConnected = "connected"
	StatusDeleted   = "deleted"
	StatusLeft      = "left"
	StatusSkipped   = "skipped"
)

// ConnectedView is the greeting sent right after the upgrade.
func ConnectedView(connectionID string) StateView {
	return StateView{
		Type:        TypeOK,
		Status:      StatusConnected,
		SessionID:   connectionID,
		Players:     []Player{},
		IsClockWise: true,
		GameState:   StateDisconnected,
	}
}

// viewFor renders s for userID; an empty userID yields a neutral view.
func viewFor(s *Session, userID string) StateView {
	screen := s.screen()
	players := s.Ordered
	if screen == StateWaitingRoom {
		players = s.Players
	}
	v := StateView{
		Type:                   TypeOK,
		SessionID:              s.ID,
		EntryCode:              s.EntryCode,
		PresidentID:            s.PresidentID,
		CreatedAt:              timePtr(s.CreatedAt),
		Players:                append([]Player{}, players...),
		CurrentPlayerIndex:     s.CurrentIndex,
		IsClockWise:            s.Clockwise,
		FirstCoinState:         copyCoin(s.FirstCoin),
		SecondCoinState:        copyCoin(s.SecondCoin),
		IsPresident:            userID != "" && userID == s.PresidentID,
		GameState:              screen,
		GameEndTime:            timePtr(s.EndsAt),
		LeeSoonSinByTimeExpiry: copyBool(s.ExpiredLeeSoonSin),
	}
	if p, ok := s.currentPlayer(); ok {
		v.CurrentPlayer = &p
		v.IsMyTurn = userID != "" && userID == p.UserID
	}
	return v
}

// EncodeError renders an error frame.
func EncodeError(code Code) []byte {
	b, _ := json.Marshal(ErrorFrame{Type: TypeError, ErrorCode: code})
	return b
}

// EncodeStatus renders a status frame.
func EncodeStatus(status, sessionID string) []byte {
	b, _ := json.Marshal(StatusFrame{Type: TypeOK, Status: status, SessionID: sessionID})
	return b
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func copyCoin(c *CoinState) *CoinState {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}

func copyBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
