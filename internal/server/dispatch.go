package server

import (
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/eos/lss/internal/game"
)

var (
	errInvalidMessage = &game.Error{Code: game.CodeInvalidMessage, Msg: "frame is not valid JSON"}
	errInvalidRequest = &game.Error{Code: game.CodeInvalidRequest, Msg: "frame failed validation"}
)

// actionFunc runs one client action and returns the reply frame.
type actionFunc func(s *Server, c *Client, payload json.RawMessage) ([]byte, error)

var actions = map[string]actionFunc{
	"create-session":        (*Server).createSession,
	"join-session":          (*Server).joinSession,
	"start-ordering":        (*Server).startOrdering,
	"register-order":        (*Server).registerOrder,
	"start-playing":         (*Server).startPlaying,
	"coin-action":           (*Server).coinAction,
	"next-turn":             (*Server).nextTurn,
	"continue-lee-soon-sin": (*Server).continueLeeSoonSin,
	"get-state":             (*Server).getState,
	"delete-session":        (*Server).deleteSession,
	"leave-session":         (*Server).leaveSession,
	"skip-turn":             (*Server).skipTurn,
}

// dispatch decodes one frame from c, runs its action and replies.
func (s *Server) dispatch(c *Client, raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.log.Debug("Invalid frame", zap.Error(err))
		s.hub.reply(c, game.EncodeError(game.CodeInvalidMessage))
		return
	}

	name := env.name()
	run, ok := actions[name]
	if !ok {
		c.log.Debug("Unknown action", zap.String("action", name))
		s.metrics.Action("unknown", string(game.CodeInvalidMessageType))
		s.hub.reply(c, game.EncodeError(game.CodeInvalidMessageType))
		return
	}

	payload := env.payload(raw)

	var who caller
	if json.Unmarshal(payload, &who) == nil && who.UserID != "" && !s.limiter.Allow(who.UserID, name, s.now()) {
		c.log.Info("Action rate limit exceeded",
			zap.String("action", name),
			zap.String("user", who.UserID))
		s.metrics.RateLimited(name)
		s.hub.reply(c, rateLimitedFrame)
		return
	}

	reply, err := run(s, c, payload)
	if err != nil {
		code := game.CodeOf(err)
		if code == game.CodeInternalServerError {
			c.log.Error("Action failed", zap.String("action", name), zap.Error(err))
		} else {
			c.log.Debug("Action rejected", zap.String("action", name), zap.String("code", string(code)))
		}
		s.metrics.Action(name, string(code))
		s.hub.reply(c, game.EncodeError(code))
		return
	}

	s.metrics.Action(name, "ok")
	s.hub.reply(c, reply)
}

func decode[T any](s *Server, payload json.RawMessage) (T, error) {
	var req T
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("%w: %v", errInvalidMessage, err)
	}
	if err := s.validate.Struct(req); err != nil {
		return req, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return req, nil
}

// viewReply encodes a state view and binds c to the session while userID
// is still a member of it.
func (s *Server) viewReply(c *Client, v game.StateView, userID string, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	if s.game.IsMember(v.SessionID, userID) {
		s.hub.Bind(c, v.SessionID, userID)
	}
	return json.Marshal(v)
}

func (s *Server) createSession(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[createRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.CreateSession(req.player())
	if err != nil && game.CodeOf(err) == game.CodeInternalServerError {
		err = fmt.Errorf("%w: %v", game.ErrSessionCreationFailed, err)
	}
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) joinSession(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[joinRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.JoinSession(req.EntryCode, req.player())
	if errors.Is(err, game.ErrSessionNotFound) {
		err = &game.Error{Code: game.CodeInvalidEntryCode, Msg: "no session uses this entry code"}
	}
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) startOrdering(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.StartOrdering(req.SessionID, req.UserID)
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) registerOrder(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.RegisterOrder(req.SessionID, req.UserID)
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) startPlaying(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.StartPlaying(req.SessionID, req.UserID)
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) coinAction(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[coinRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.SetCoin(req.SessionID, req.UserID, req.CoinType, req.State)
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) nextTurn(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.NextTurn(req.SessionID, req.UserID)
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) continueLeeSoonSin(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.ContinueFromLeeSoonSin(req.SessionID, req.UserID)
	return s.viewReply(c, v, req.UserID, err)
}

// getState also rebinds a reconnecting player to the new connection.
func (s *Server) getState(c *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	v, err := s.game.State(req.SessionID, req.UserID)
	return s.viewReply(c, v, req.UserID, err)
}

func (s *Server) deleteSession(_ *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	if err := s.game.DeleteSession(req.SessionID, req.UserID); err != nil {
		return nil, err
	}
	return game.EncodeStatus(game.StatusDeleted, req.SessionID), nil
}

func (s *Server) leaveSession(_ *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[sessionRequest](s, payload)
	if err != nil {
		return nil, err
	}
	if _, err := s.game.LeaveSession(req.SessionID, req.UserID); err != nil {
		return nil, err
	}
	return game.EncodeStatus(game.StatusLeft, req.SessionID), nil
}

func (s *Server) skipTurn(_ *Client, payload json.RawMessage) ([]byte, error) {
	req, err := decode[skipRequest](s, payload)
	if err != nil {
		return nil, err
	}
	target := req.TargetUserID
	if target == "" {
		target = req.UserID
	}
	if _, err := s.game.SkipTurn(req.SessionID, req.UserID, target); err != nil {
		return nil, err
	}
	return game.EncodeStatus(game.StatusSkipped, req.SessionID), nil
}
