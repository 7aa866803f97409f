package game

import "go.uber.org/zap"

type removal int

const (
	removalLeave removal = iota
	removalSkip
	removalDisconnect
)

func (r removal) String() string {
	switch r {
	case removalSkip:
		return "skip"
	case removalDisconnect:
		return "disconnect"
	default:
		return "leave"
	}
}

// remove takes userID out of sess and reports whether the session closed.
func (s *Service) remove(sess *Session, userID string, why removal) bool {
	log := s.log.With(
		zap.String("session", sess.ID),
		zap.String("user", userID),
		zap.Stringer("reason", why))

	if userID == sess.PresidentID {
		log.Info("President removed, closing session")
		s.closeWith(sess, CodePresidentLeft)
		return true
	}
	if len(sess.Players)-1 <= 1 {
		log.Info("Not enough players left, closing session")
		s.closeWith(sess, CodeInsufficientPlayers)
		return true
	}

	heldTurn := sess.Phase == PhaseOnGoing && sess.isCurrent(userID)
	expired := sess.expiredLeeSoonSin()
	wasLeeSoonSin := sess.inLeeSoonSin()

	if why == removalSkip {
		s.notifier.Broadcast(sess.ID, EncodeError(CodePlayerTimeout))
	}

	sess.Players = without(sess.Players, userID)
	if idx := indexOf(sess.Ordered, userID); idx >= 0 {
		sess.Ordered = without(sess.Ordered, userID)
		n := len(sess.Ordered)
		switch {
		case n == 0:
			sess.CurrentIndex = 0
		case heldTurn && sess.Clockwise:
			sess.CurrentIndex = idx % n
		case heldTurn:
			sess.CurrentIndex = (idx - 1 + n) % n
		case idx < sess.CurrentIndex:
			sess.CurrentIndex--
		}
		if sess.CurrentIndex >= n {
			sess.CurrentIndex = 0
		}
	}

	if heldTurn {
		sess.clearCoins()
		sess.ExpiredLeeSoonSin = nil
		if wasLeeSoonSin {
			s.settleDeadline(sess, expired)
		}
	}
	s.notifier.Detach(sess.ID, userID)

	if why == removalDisconnect {
		if heldTurn {
			s.notifier.Broadcast(sess.ID, EncodeError(CodeTurnSkipped))
		}
		s.notifier.Broadcast(sess.ID, EncodeError(CodePlayerDisconnected))
	}
	log.Info("Player removed", zap.Int("players", len(sess.Players)), zap.Bool("heldTurn", heldTurn))

	s.publish(sess, "")
	return false
}

// closeWith tells the room why it is closing and drops the session.
func (s *Service) closeWith(sess *Session, code Code) {
	s.notifier.Broadcast(sess.ID, EncodeError(code))
	s.drop(sess)
}
