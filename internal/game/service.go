package game

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eos/lss/internal/history"
	"github.com/eos/lss/internal/metrics"
)

// DefaultGameDuration is how long play runs before the deadline forces
// the Lee Soon Sin state.
const DefaultGameDuration = 10 * time.Minute

const entryCodeAttempts = 1000

// Store holds live sessions. Implementations must be safe for concurrent use.
type Store interface {
	Put(s *Session)
	Get(id string) (*Session, bool)
	ByEntryCode(code string) (*Session, bool)
	CodeInUse(code string) bool
	Delete(id string)
	Len() int
}

// Notifier delivers frames to the connections bound to a session.
// Calls must not block.
type Notifier interface {
	Broadcast(sessionID string, payload []byte)
	SendToUser(sessionID, userID string, payload []byte)
	Detach(sessionID, userID string)
	CloseRoom(sessionID string)
}

// Options tunes a Service. Zero values pick defaults.
type Options struct {
	GameDuration time.Duration
	Logger       *zap.Logger
	History      history.Recorder
	Metrics      *metrics.Metrics
	Now          func() time.Time
}

// Service applies game actions to sessions.
type Service struct {
	mu       sync.Mutex
	store    Store
	notifier Notifier
	timer    *Timer
	history  history.Recorder
	metrics  *metrics.Metrics
	log      *zap.Logger
	duration time.Duration
	now      func() time.Time
}

// NewService wires a Service. notifier may be nil.
func NewService(store Store, notifier Notifier, opts Options) *Service {
	s := &Service{
		store:    store,
		notifier: notifier,
		history:  opts.History,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		duration: opts.GameDuration,
		now:      opts.Now,
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	if s.history == nil {
		s.history = history.NewMemory()
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.duration <= 0 {
		s.duration = DefaultGameDuration
	}
	if s.now == nil {
		s.now = time.Now
	}
	s.timer = NewTimer(s.CheckDeadline, s.now)
	return s
}

// SetNotifier swaps the notifier; used when the hub is built after the service.
func (s *Service) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// Timer exposes the deadline scheduler.
func (s *Service) Timer() *Timer {
	return s.timer
}

// Close stops every pending deadline.
func (s *Service) Close() {
	s.timer.Stop()
}

// SessionEvicted is called by the store when an idle session expires.
// It must not take s.mu: the store may call it from inside Get.
func (s *Service) SessionEvicted(id string) {
	s.timer.Cancel(id)
	s.notifier.CloseRoom(id)
	s.metrics.SessionEvicted()
	s.metrics.SetSessions(s.store.Len())
	s.log.Info("Session evicted after idling", zap.String("session", id))
}

// CreateSession opens a waiting room owned by president.
func (s *Service) CreateSession(president Player) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.newEntryCode()
	if err != nil {
		return StateView{}, err
	}

	sess := &Session{
		ID:          uuid.NewString(),
		EntryCode:   code,
		PresidentID: president.UserID,
		CreatedAt:   s.now(),
		Phase:       PhaseWaitingRoom,
		Players:     []Player{president},
		Ordered:     []Player{},
		Clockwise:   true,
	}
	s.store.Put(sess)
	s.metrics.SetSessions(s.store.Len())
	s.log.Info("Session created",
		zap.String("session", sess.ID),
		zap.String("entryCode", code),
		zap.String("president", president.UserID))

	return viewFor(sess, president.UserID), nil
}

// JoinSession adds p to the waiting room behind entryCode.
func (s *Service) JoinSession(entryCode string, p Player) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.store.ByEntryCode(entryCode)
	if !ok {
		return StateView{}, ErrSessionNotFound
	}
	if sess.Phase != PhaseWaitingRoom {
		return StateView{}, ErrGameInProgress
	}
	if sess.isMember(p.UserID) {
		return StateView{}, ErrPlayerAlreadyJoined
	}

	sess.Players = append(sess.Players, p)
	s.log.Info("Player joined",
		zap.String("session", sess.ID),
		zap.String("user", p.UserID),
		zap.Int("players", len(sess.Players)))

	s.publish(sess, p.UserID)
	return viewFor(sess, p.UserID), nil
}

// StartOrdering moves the waiting room to turn registration.
func (s *Service) StartOrdering(sessionID, userID string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateView{}, err
	}
	if sess.PresidentID != userID {
		return StateView{}, ErrNotPresident
	}
	if sess.Phase != PhaseWaitingRoom {
		return StateView{}, ErrWrongGameState
	}

	sess.Phase = PhaseOrdering
	s.publish(sess, userID)
	return viewFor(sess, userID), nil
}

// RegisterOrder appends userID to the turn order. Registering twice is a no-op.
func (s *Service) RegisterOrder(sessionID, userID string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateView{}, err
	}
	if sess.Phase != PhaseOrdering {
		return StateView{}, ErrWrongGameState
	}
	if sess.isOrdered(userID) {
		return viewFor(sess, userID), nil
	}
	i := indexOf(sess.Players, userID)
	if i < 0 {
		return StateView{}, ErrPlayerNotFound
	}

	sess.Ordered = append(sess.Ordered, sess.Players[i])
	s.log.Info("Order registered",
		zap.String("session", sess.ID),
		zap.String("user", userID),
		zap.Int("position", len(sess.Ordered)))

	s.publish(sess, userID)
	return viewFor(sess, userID), nil
}

// StartPlaying drops unregistered players and starts the clock. The
// president must have registered an order first.
func (s *Service) StartPlaying(sessionID, userID string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateView{}, err
	}
	if sess.PresidentID != userID {
		return StateView{}, ErrNotPresident
	}
	if sess.Phase != PhaseOrdering {
		return StateView{}, ErrWrongGameState
	}
	if !sess.isOrdered(userID) {
		return StateView{}, ErrNotRegisteredPlayer
	}
	if len(sess.Ordered) < 2 {
		return StateView{}, ErrInsufficientPlayers
	}

	for _, p := range sess.Players {
		if sess.isOrdered(p.UserID) {
			continue
		}
		s.notifier.SendToUser(sess.ID, p.UserID, EncodeError(CodeNotRegisteredPlayer))
		s.notifier.Detach(sess.ID, p.UserID)
		s.log.Info("Dropped player without a registered order",
			zap.String("session", sess.ID),
			zap.String("user", p.UserID))
	}
	sess.Players = append([]Player{}, sess.Ordered...)

	sess.Phase = PhaseOnGoing
	sess.CurrentIndex = 0
	sess.Clockwise = true
	sess.clearCoins()
	sess.ExpiredLeeSoonSin = nil
	sess.EndsAt = s.now().Add(s.duration)
	s.timer.Schedule(sess.ID, sess.EndsAt)

	s.log.Info("Game started",
		zap.String("session", sess.ID),
		zap.Int("players", len(sess.Ordered)),
		zap.Time("endsAt", sess.EndsAt))

	s.publish(sess, userID)
	return viewFor(sess, userID), nil
}

// SetCoin records the face of one coin for the current player.
func (s *Service) SetCoin(sessionID, userID, coin, state string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateView{}, err
	}
	if sess.Phase != PhaseOnGoing {
		return StateView{}, ErrGameNotStarted
	}
	if sess.inLeeSoonSin() {
		return StateView{}, ErrLeeSoonSinTriggered
	}
	if !sess.isCurrent(userID) {
		return StateView{}, ErrNotCurrentTurn
	}
	face, err := ParseCoinState(state)
	if err != nil {
		return StateView{}, err
	}

	switch coin {
	case "first":
		sess.FirstCoin = coinPtr(face)
	case "second":
		sess.SecondCoin = coinPtr(face)
	default:
		return StateView{}, fmt.Errorf("%w: %q", ErrInvalidCoinType, coin)
	}

	if sess.inLeeSoonSin() {
		sess.ExpiredLeeSoonSin = boolPtr(false)
		s.log.Info("Lee Soon Sin triggered by coins",
			zap.String("session", sess.ID),
			zap.String("user", userID))
		s.record(sess, history.CauseCoins)
	}

	s.publish(sess, userID)
	return viewFor(sess, userID), nil
}

// NextTurn passes the turn. Two tails reverse the direction first.
func (s *Service) NextTurn(sessionID, userID string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateView{}, err
	}
	if sess.Phase != PhaseOnGoing {
		return StateView{}, ErrGameNotStarted
	}
	if !sess.isCurrent(userID) && sess.PresidentID != userID {
		return StateView{}, ErrNotCurrentTurn
	}

	wasLeeSoonSin := sess.inLeeSoonSin()
	expired := sess.expiredLeeSoonSin()
	if sess.bothTail() {
		sess.Clockwise = !sess.Clockwise
	}
	sess.advance()
	sess.clearCoins()
	sess.ExpiredLeeSoonSin = nil
	if wasLeeSoonSin {
		s.settleDeadline(sess, expired)
	}

	s.publish(sess, userID)
	return viewFor(sess, userID), nil
}

// ContinueFromLeeSoonSin leaves the Lee Soon Sin state and passes the turn.
func (s *Service) ContinueFromLeeSoonSin(sessionID, userID string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateView{}, err
	}
	if !sess.inLeeSoonSin() {
		return StateView{}, ErrNotLeeSoonSinState
	}
	if !sess.isOrdered(userID) {
		return StateView{}, ErrNotRegisteredPlayer
	}

	expired := sess.expiredLeeSoonSin()
	sess.clearCoins()
	sess.advance()
	sess.ExpiredLeeSoonSin = nil
	s.settleDeadline(sess, expired)

	s.publish(sess, userID)
	return viewFor(sess, userID), nil
}

// SkipTurn removes targetID when they hold the turn and are not answering.
// Only the president or the target may skip. closed reports whether the
// session ended as a result.
func (s *Service) SkipTurn(sessionID, userID, targetID string) (closed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	if userID != targetID && sess.PresidentID != userID {
		return false, ErrNotPresident
	}
	if sess.Phase != PhaseOnGoing || !sess.isCurrent(targetID) {
		return false, nil
	}
	return s.remove(sess, targetID, removalSkip), nil
}

// LeaveSession removes userID voluntarily.
func (s *Service) LeaveSession(sessionID, userID string) (closed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	if !sess.isMember(userID) {
		return false, ErrPlayerNotFound
	}
	return s.remove(sess, userID, removalLeave), nil
}

// HandleDisconnect removes a player whose last connection dropped.
func (s *Service) HandleDisconnect(sessionID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.store.Get(sessionID)
	if !ok || !sess.isMember(userID) {
		return
	}
	s.log.Info("Player disconnected",
		zap.String("session", sessionID),
		zap.String("user", userID))
	s.remove(sess, userID, removalDisconnect)
}

// DeleteSession closes the session on the president's request.
func (s *Service) DeleteSession(sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return err
	}
	if sess.PresidentID != userID {
		return ErrNotPresident
	}

	s.timer.Cancel(sess.ID)
	deleted := EncodeStatus(StatusDeleted, sess.ID)
	for _, p := range sess.Players {
		if p.UserID != userID {
			s.notifier.SendToUser(sess.ID, p.UserID, deleted)
		}
	}
	s.drop(sess)
	s.log.Info("Session deleted by president", zap.String("session", sess.ID))
	return nil
}

// State returns the session as seen by userID. During play only ordered
// players may look.
func (s *Service) State(sessionID, userID string) (StateView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(sessionID)
	if err != nil {
		return StateView{}, err
	}
	if sess.Phase == PhaseOnGoing && userID != "" && !sess.isOrdered(userID) {
		return StateView{}, ErrNotRegisteredPlayer
	}
	return viewFor(sess, userID), nil
}

// CheckDeadline forces the Lee Soon Sin state once play time is over.
func (s *Service) CheckDeadline(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.store.Get(sessionID)
	if !ok || sess.EndsAt.IsZero() {
		return
	}
	if s.now().Before(sess.EndsAt) {
		s.timer.Schedule(sess.ID, sess.EndsAt)
		return
	}
	if sess.Phase != PhaseOnGoing || sess.inLeeSoonSin() {
		return
	}

	sess.FirstCoin = coinPtr(Head)
	sess.SecondCoin = coinPtr(Head)
	sess.ExpiredLeeSoonSin = boolPtr(true)
	s.log.Info("Game time expired",
		zap.String("session", sess.ID),
		zap.Time("endsAt", sess.EndsAt))
	s.record(sess, history.CauseTimeout)

	s.notifier.Broadcast(sess.ID, EncodeError(CodeGameTimeExpired))
	s.publish(sess, "")
}

// IsMember reports whether userID joined sessionID and was not removed.
func (s *Service) IsMember(sessionID, userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.store.Get(sessionID)
	return ok && sess.isMember(userID)
}

// SessionCount reports live sessions.
func (s *Service) SessionCount() int {
	return s.store.Len()
}

// History lists the Lee Soon Sin events of a session.
func (s *Service) History(ctx context.Context, sessionID string) ([]history.Event, error) {
	return s.history.List(ctx, sessionID)
}

func (s *Service) lookup(id string) (*Session, error) {
	sess, ok := s.store.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// settleDeadline restarts the clock after a deadline-forced Lee Soon Sin.
// After a coin-triggered one the old deadline stands; if it already
// passed, the check runs now.
func (s *Service) settleDeadline(sess *Session, expired bool) {
	if expired {
		sess.EndsAt = s.now().Add(s.duration)
		s.timer.Schedule(sess.ID, sess.EndsAt)
		return
	}
	if !sess.EndsAt.IsZero() && !s.now().Before(sess.EndsAt) {
		s.timer.Schedule(sess.ID, sess.EndsAt)
	}
}

func (s *Service) newEntryCode() (string, error) {
	for range entryCodeAttempts {
		code := fmt.Sprintf("%06d", rand.IntN(1_000_000))
		if !s.store.CodeInUse(code) {
			return code, nil
		}
	}
	return "", ErrSessionCreationFailed
}

func (s *Service) record(sess *Session, cause history.Cause) {
	e := history.Event{SessionID: sess.ID, Cause: cause, At: s.now()}
	if p, ok := sess.currentPlayer(); ok {
		e.UserID = p.UserID
		e.Name = p.Name
	}
	if err := s.history.Record(context.Background(), e); err != nil {
		s.log.Warn("Failed to record Lee Soon Sin event",
			zap.String("session", sess.ID),
			zap.Error(err))
	}
	s.metrics.LeeSoonSin(string(cause))
}

// publish sends every member their own view, skipping except.
func (s *Service) publish(sess *Session, except string) {
	for _, p := range sess.Players {
		if p.UserID == except {
			continue
		}
		payload, err := json.Marshal(viewFor(sess, p.UserID))
		if err != nil {
			s.log.Error("Failed to encode state view", zap.String("session", sess.ID), zap.Error(err))
			payload = EncodeError(CodeInternalServerError)
		}
		s.notifier.SendToUser(sess.ID, p.UserID, payload)
	}
}

// drop forgets a session and releases its room.
func (s *Service) drop(sess *Session) {
	s.timer.Cancel(sess.ID)
	s.store.Delete(sess.ID)
	s.notifier.CloseRoom(sess.ID)
	s.metrics.SetSessions(s.store.Len())
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string, []byte)          {}
func (nopNotifier) SendToUser(string, string, []byte) {}
func (nopNotifier) Detach(string, string)             {}
func (nopNotifier) CloseRoom(string)                  {}
