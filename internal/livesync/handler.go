package livesync

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"livetimers/timetracker/internal/auth"
	"livetimers/timetracker/internal/observability"
)

const DefaultPushInterval = time.Second

type Identifier interface {
	Identify(r *http.Request) (auth.Identity, error)
}

type Config struct {
	PushInterval time.Duration
	// AllowedOrigins empty keeps the upgrader's same-origin check. "*"
	// accepts any origin.
	AllowedOrigins []string
}

type Handler struct {
	gate     Identifier
	timers   TimerLister
	hub      *Hub
	interval time.Duration
	upgrader websocket.Upgrader
	log      *slog.Logger
	metrics  *observability.Metrics
}

func NewHandler(gate Identifier, lister TimerLister, hub *Hub, cfg Config, log *slog.Logger, metrics *observability.Metrics) *Handler {
	if cfg.PushInterval <= 0 {
		cfg.PushInterval = DefaultPushInterval
	}
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub()
	}
	return &Handler{
		gate:     gate,
		timers:   lister,
		hub:      hub,
		interval: cfg.PushInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		log:     log,
		metrics: metrics,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, err := h.gate.Identify(r)
	if err != nil {
		if !auth.IsUnauthenticated(err) {
			h.log.Error("live handshake session lookup failed", "error", err)
		}
		rejectHandshake(w)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		h.log.Warn("live upgrade failed", "user_id", id.User.ID, "error", err)
		return
	}

	connID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &Conn{
		id:       connID,
		userID:   id.User.ID,
		ws:       ws,
		hub:      h.hub,
		timers:   h.timers,
		interval: h.interval,
		log:      h.log.With("conn_id", connID, "user_id", id.User.ID),
		metrics:  h.metrics,
		nowFunc:  time.Now,
		refresh:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.setState(StateAuthenticated)
	c.start()
}

// rejectHandshake refuses the upgrade with a plain 401 and asks the server to
// drop the connection afterwards.
func rejectHandshake(w http.ResponseWriter) {
	w.Header().Set("Connection", "close")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[strings.ToLower(o)] = struct{}{}
	}
	if len(set) == 0 {
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[strings.ToLower(origin)]
		return ok
	}
}
