package httpserver

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"livetimers/timetracker/internal/audit"
	"livetimers/timetracker/internal/auth"
	"livetimers/timetracker/internal/config"
	"livetimers/timetracker/internal/observability"
	"livetimers/timetracker/internal/timers"
)

const maxJSONBody = 1 << 20

type AuthService interface {
	Signup(ctx context.Context, username, password string) (auth.Session, error)
	Login(ctx context.Context, username, password string) (auth.Session, error)
	DestroySession(ctx context.Context, token string) error
}

type TimerService interface {
	List(ctx context.Context, userID string) ([]timers.Timer, error)
	Create(ctx context.Context, userID, description string) (timers.Timer, error)
	Stop(ctx context.Context, userID, timerID string) (timers.Timer, error)
}

type AuditLogger interface {
	Record(e audit.Event) error
}

type Deps struct {
	Auth    AuthService
	Timers  TimerService
	Gate    *auth.Gate
	Live    http.Handler
	Audit   AuditLogger
	Metrics *observability.Metrics
	Logger  *slog.Logger
	// Ready reports whether backing stores are reachable. Nil means always ready.
	Ready        func(ctx context.Context) error
	PublicDir    string
	SecureCookie bool
}

type Server struct {
	httpServer *http.Server
}

func New(cfg config.HTTPConfig, deps Deps) *Server {
	handler := NewHandler(deps)

	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      loggingMiddleware(deps.Logger, deps.Metrics, handler),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  60 * time.Second,
		},
	}
}

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewHandler(deps Deps) http.Handler {
	if deps.Gate == nil {
		deps.Gate = auth.NewGate(nil, "")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r.Context()); err != nil {
				deps.Logger.Warn("readiness check failed", "error", err)
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})
	mux.Handle("GET /metrics", deps.Metrics.Handler())

	registerPageHandlers(mux, deps)
	registerAuthHandlers(mux, deps)
	registerTimerHandlers(mux, deps)
	registerPublicHandlers(mux, deps.PublicDir)

	if deps.Live != nil {
		// The live handler authenticates the handshake itself.
		mux.Handle("GET /ws", deps.Live)
	}

	return mux
}

//go:embed templates/index.html
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html"))

type indexPage struct {
	Username    string
	AuthError   bool
	SignupError bool
}

func registerPageHandlers(mux *http.ServeMux, deps Deps) {
	mux.Handle("GET /{$}", deps.Gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := indexPage{
			AuthError:   r.URL.Query().Get("authError") == "true",
			SignupError: r.URL.Query().Get("signupError") == "true",
		}
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			page.Username = id.User.Username
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTemplate.Execute(w, page); err != nil {
			deps.Logger.Error("render index", "error", err)
		}
	})))
}

func registerAuthHandlers(mux *http.ServeMux, deps Deps) {
	cookieName := deps.Gate.CookieName()

	mux.HandleFunc("POST /login", func(w http.ResponseWriter, r *http.Request) {
		username, password := formCredentials(w, r)
		if deps.Auth == nil {
			http.Redirect(w, r, "/?authError=true", http.StatusFound)
			return
		}
		session, err := deps.Auth.Login(r.Context(), username, password)
		deps.Metrics.AuthEvent("login", err)
		if err != nil {
			if !errors.Is(err, auth.ErrInvalidCredentials) && !errors.Is(err, auth.ErrInvalidInput) {
				deps.Logger.Error("login failed", "error", err)
			}
			auditReq(deps.Audit, r, username, "auth.login", "", err)
			http.Redirect(w, r, "/?authError=true", http.StatusFound)
			return
		}
		auditReq(deps.Audit, r, username, "auth.login", "", nil)
		setSessionCookie(w, cookieName, session.Token, deps.SecureCookie)
		http.Redirect(w, r, "/", http.StatusFound)
	})

	mux.HandleFunc("POST /signup", func(w http.ResponseWriter, r *http.Request) {
		username, password := formCredentials(w, r)
		if deps.Auth == nil {
			http.Redirect(w, r, "/?signupError=true", http.StatusFound)
			return
		}
		session, err := deps.Auth.Signup(r.Context(), username, password)
		deps.Metrics.AuthEvent("signup", err)
		if err != nil {
			if !errors.Is(err, auth.ErrUsernameTaken) && !errors.Is(err, auth.ErrInvalidInput) {
				deps.Logger.Error("signup failed", "error", err)
			}
			auditReq(deps.Audit, r, username, "auth.signup", "", err)
			http.Redirect(w, r, "/?signupError=true", http.StatusFound)
			return
		}
		auditReq(deps.Audit, r, username, "auth.signup", session.UserID, nil)
		setSessionCookie(w, cookieName, session.Token, deps.SecureCookie)
		http.Redirect(w, r, "/", http.StatusFound)
	})

	mux.Handle("GET /logout", deps.Gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok || deps.Auth == nil {
			http.Redirect(w, r, "/", http.StatusFound)
			return
		}
		err := deps.Auth.DestroySession(r.Context(), id.SessionToken)
		deps.Metrics.AuthEvent("logout", err)
		auditReq(deps.Audit, r, id.User.Username, "auth.logout", "", err)
		if err != nil {
			deps.Logger.Error("logout failed", "user_id", id.User.ID, "error", err)
		}
		clearSessionCookie(w, cookieName, deps.SecureCookie)
		http.Redirect(w, r, "/", http.StatusFound)
	})))
}

func registerTimerHandlers(mux *http.ServeMux, deps Deps) {
	protected := func(h func(w http.ResponseWriter, r *http.Request, id auth.Identity)) http.Handler {
		return deps.Gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := requireUser(w, r)
			if !ok {
				return
			}
			if deps.Timers == nil {
				writeError(w, http.StatusServiceUnavailable, "timer service unavailable")
				return
			}
			h(w, r, id)
		}))
	}

	mux.Handle("GET /api/timers", protected(func(w http.ResponseWriter, r *http.Request, id auth.Identity) {
		var active bool
		switch r.URL.Query().Get("isActive") {
		case "true":
			active = true
		case "false":
			active = false
		default:
			writeError(w, http.StatusBadRequest, "isActive must be true or false")
			return
		}
		list, err := deps.Timers.List(r.Context(), id.User.ID)
		if err != nil {
			deps.Logger.Error("list timers", "user_id", id.User.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, timers.Views(timers.Filter(list, active), time.Now()))
	}))

	mux.Handle("POST /api/timers", protected(func(w http.ResponseWriter, r *http.Request, id auth.Identity) {
		var req struct {
			Description string `json:"description"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		t, err := deps.Timers.Create(r.Context(), id.User.ID, req.Description)
		deps.Metrics.TimerOp("create", err)
		if err != nil {
			auditReq(deps.Audit, r, id.User.Username, "timer.create", "", err)
			if errors.Is(err, timers.ErrInvalidInput) {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			deps.Logger.Error("create timer", "user_id", id.User.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		auditReq(deps.Audit, r, id.User.Username, "timer.create", t.ID, nil)
		writeJSON(w, http.StatusCreated, t.ID)
	}))

	mux.Handle("POST /api/timers/{id}/stop", protected(func(w http.ResponseWriter, r *http.Request, id auth.Identity) {
		timerID := strings.TrimSpace(r.PathValue("id"))
		t, err := deps.Timers.Stop(r.Context(), id.User.ID, timerID)
		deps.Metrics.TimerOp("stop", err)
		auditReq(deps.Audit, r, id.User.Username, "timer.stop", timerID, err)
		if err != nil {
			if errors.Is(err, timers.ErrNotFound) {
				writeError(w, http.StatusNotFound, "timer not found")
				return
			}
			deps.Logger.Error("stop timer", "user_id", id.User.ID, "timer_id", timerID, "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		writeJSON(w, http.StatusOK, t.View(time.Now()))
	}))
}

func registerPublicHandlers(mux *http.ServeMux, dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return
	}
	mux.Handle("GET /public/", http.StripPrefix("/public/", http.FileServer(http.Dir(dir))))
}

func requireUser(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return auth.Identity{}, false
	}
	return id, true
}

func formCredentials(w http.ResponseWriter, r *http.Request) (string, string) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		return "", ""
	}
	return r.PostForm.Get("username"), r.PostForm.Get("password")
}

func setSessionCookie(w http.ResponseWriter, name, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, name string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
