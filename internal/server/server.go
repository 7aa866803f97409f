package server

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eos/lss/internal/game"
	"github.com/eos/lss/internal/metrics"
	"github.com/eos/lss/internal/ratelimit"
)

// Deps are the collaborators a Server drives.
type Deps struct {
	Game    *game.Service
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Server owns the hub and turns WebSocket frames and HTTP requests into
// game actions.
type Server struct {
	cfg      Config
	hub      *Hub
	game     *game.Service
	limiter  *ratelimit.Limiter
	metrics  *metrics.Metrics
	log      *zap.Logger
	validate *validator.Validate
	upgrader websocket.Upgrader
	now      func() time.Time
}

// New builds a Server and makes its hub the game's notifier.
func New(cfg Config, deps Deps) *Server {
	cfg = cfg.Sanitize()

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = ratelimit.New(cfg.ActionLimits.Rules, cfg.ActionLimits.Default)
	}

	s := &Server{
		cfg:      cfg,
		hub:      NewHub(log.Named("hub"), deps.Metrics),
		game:     deps.Game,
		limiter:  limiter,
		metrics:  deps.Metrics,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}

	origins := newOriginPolicy(cfg.AllowedOrigins, log)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     origins.check,
	}

	s.hub.OnDisconnect(s.game.HandleDisconnect)
	s.game.SetNotifier(s.hub)
	return s
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Config returns the sanitized configuration in use.
func (s *Server) Config() Config {
	return s.cfg
}

// Game returns the game service actions are applied to.
func (s *Server) Game() *game.Service {
	return s.game
}

// StartHub runs the hub loop in its own goroutine. Call it before serving.
func (s *Server) StartHub() {
	go s.hub.Run()
	s.log.Info("Hub started and ready to manage WebSocket connections")
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.SetupRoutes()
}
