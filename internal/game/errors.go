package game

import "errors"

// Code is the wire identifier reported to clients in error frames.
type Code string

// Error codes shared with clients.
const (
	CodeSessionNotFound       Code = "SESSION_NOT_FOUND"
	CodeSessionCreationFailed Code = "SESSION_CREATION_FAILED"
	CodePlayerNotFound        Code = "PLAYER_NOT_FOUND"
	CodePlayerAlreadyJoined   Code = "PLAYER_ALREADY_JOINED"
	CodePlayerDisconnected    Code = "PLAYER_DISCONNECTED"
	CodeNotPresident          Code = "NOT_PRESIDENT"
	CodeNotCurrentTurn        Code = "NOT_CURRENT_TURN"
	CodeNotRegisteredPlayer   Code = "NOT_REGISTERED_PLAYER"
	CodeGameInProgress        Code = "GAME_IN_PROGRESS"
	CodeGameNotStarted        Code = "GAME_NOT_STARTED"
	CodeWrongGameState        Code = "WRONG_GAME_STATE"
	CodeNotLeeSoonSinState    Code = "NOT_LEE_SOON_SIN_STATE"
	CodeInsufficientPlayers   Code = "INSUFFICIENT_PLAYERS"
	CodePresidentLeft         Code = "PRESIDENT_LEFT"
	CodeGameTimeExpired       Code = "GAME_TIME_EXPIRED"
	CodeLeeSoonSinTriggered   Code = "LEE_SOON_SIN_TRIGGERED"
	CodeTurnSkipped           Code = "TURN_SKIPPED"
	CodePlayerTimeout         Code = "PLAYER_TIMEOUT"
	CodeInvalidCoinType       Code = "INVALID_COIN_TYPE"
	CodeInvalidCoinState      Code = "INVALID_COIN_STATE"
	CodeInvalidEntryCode      Code = "INVALID_ENTRY_CODE"
	CodeInvalidMessage        Code = "INVALID_MESSAGE"
	CodeInvalidMessageType    Code = "INVALID_MESSAGE_TYPE"
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeRateLimitExceeded     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternalServerError   Code = "INTERNAL_SERVER_ERROR"
)

// Error is a rule violation with the code clients see.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Msg
}

// Is matches any *Error carrying the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrSessionNotFound       = &Error{CodeSessionNotFound, "session not found"}
	ErrSessionCreationFailed = &Error{CodeSessionCreationFailed, "no free entry code"}
	ErrPlayerNotFound        = &Error{CodePlayerNotFound, "player is not in the session"}
	ErrPlayerAlreadyJoined   = &Error{CodePlayerAlreadyJoined, "player already joined"}
	ErrNotPresident          = &Error{CodeNotPresident, "only the president can do this"}
	ErrNotCurrentTurn        = &Error{CodeNotCurrentTurn, "not your turn"}
	ErrNotRegisteredPlayer   = &Error{CodeNotRegisteredPlayer, "player did not register an order"}
	ErrGameInProgress        = &Error{CodeGameInProgress, "game already in progress"}
	ErrGameNotStarted        = &Error{CodeGameNotStarted, "game has not started"}
	ErrWrongGameState        = &Error{CodeWrongGameState, "action not allowed in this phase"}
	ErrNotLeeSoonSinState    = &Error{CodeNotLeeSoonSinState, "session is not in the Lee Soon Sin state"}
	ErrInsufficientPlayers   = &Error{CodeInsufficientPlayers, "at least two ordered players are required"}
	ErrLeeSoonSinTriggered   = &Error{CodeLeeSoonSinTriggered, "coins are locked until the turn moves on"}
	ErrInvalidCoinType       = &Error{CodeInvalidCoinType, "coin must be first or second"}
	ErrInvalidCoinState      = &Error{CodeInvalidCoinState, "coin state must be head or tail"}
)

// CodeOf returns the client code for err, INTERNAL_SERVER_ERROR when err
// is not a game error.
func CodeOf(err error) Code {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return CodeInternalServerError
}
