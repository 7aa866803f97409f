package game

import (
	"fmt"
	"time"
)

// Player is a participant identified by a client-supplied user ID.
type Player struct {
	UserID          string `json:"userId"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// CoinState is the visible face of a coin.
type CoinState string

const (
	Head CoinState = "head"
	Tail CoinState = "tail"
)

// ParseCoinState accepts "head" or "tail".
func ParseCoinState(s string) (CoinState, error) {
	switch CoinState(s) {
	case Head, Tail:
		return CoinState(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCoinState, s)
}

// Phase is the stored lifecycle stage of a session.
type Phase string

const (
	PhaseWaitingRoom Phase = "WAITING_ROOM"
	PhaseOrdering    Phase = "ORDERING"
	PhaseOnGoing     Phase = "ON_GOING"
)

// Session is one game room. Fields are only touched under Service.mu.
type Session struct {
	ID          string
	EntryCode   string
	PresidentID string
	CreatedAt   time.Time
	Phase       Phase

	// Players is the join order; Ordered is the turn order and a subset of Players.
	Players []Player
	Ordered []Player

	CurrentIndex int
	Clockwise    bool
	FirstCoin    *CoinState
	SecondCoin   *CoinState

	EndsAt time.Time
	// ExpiredLeeSoonSin is nil outside Lee Soon Sin, true when the deadline forced it.
	ExpiredLeeSoonSin *bool
}

func indexOf(players []Player, userID string) int {
	for i, p := range players {
		if p.UserID == userID {
			return i
		}
	}
	return -1
}

func without(players []Player, userID string) []Player {
	out := make([]Player, 0, len(players))
	for _, p := range players {
		if p.UserID != userID {
			out = append(out, p)
		}
	}
	return out
}

func (s *Session) isMember(userID string) bool {
	return indexOf(s.Players, userID) >= 0
}

func (s *Session) isOrdered(userID string) bool {
	return indexOf(s.Ordered, userID) >= 0
}

func (s *Session) currentPlayer() (Player, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Ordered) {
		return Player{}, false
	}
	return s.Ordered[s.CurrentIndex], true
}

func (s *Session) isCurrent(userID string) bool {
	p, ok := s.currentPlayer()
	return ok && p.UserID == userID
}

func (s *Session) inLeeSoonSin() bool {
	return s.FirstCoin != nil && s.SecondCoin != nil && *s.FirstCoin == Head && *s.SecondCoin == Head
}

func (s *Session) bothTail() bool {
	return s.FirstCoin != nil && s.SecondCoin != nil && *s.FirstCoin == Tail && *s.SecondCoin == Tail
}

func (s *Session) expiredLeeSoonSin() bool {
	return s.ExpiredLeeSoonSin != nil && *s.ExpiredLeeSoonSin
}

func (s *Session) clearCoins() {
	s.FirstCoin = nil
	s.SecondCoin = nil
}

// advance moves the turn one seat in the current direction.
func (s *Session) advance() {
	n := len(s.Ordered)
	if n == 0 {
		s.CurrentIndex = 0
		return
	}
	if s.Clockwise {
		s.CurrentIndex = (s.CurrentIndex + 1) % n
	} else {
		s.CurrentIndex = (s.CurrentIndex - 1 + n) % n
	}
}

// screen derives what clients should display.
func (s *Session) screen() string {
	if s.inLeeSoonSin() {
		return StateLeeSoonSin
	}
	switch s.Phase {
	case PhaseOrdering:
		return StateOrderRegister
	case PhaseOnGoing:
		return StateGamePlaying
	default:
		return StateWaitingRoom
	}
}

func boolPtr(b bool) *bool {
	return &b
}

func coinPtr(c CoinState) *CoinState {
	return &c
}
