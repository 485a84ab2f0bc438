// Package web implements the HarmonyMaker REST API and serves the single page frontend.
//
// # Routes
//
//	GET    /api/test                          → liveness text
//	GET    /api/health                        → database and ML service status
//	POST   /api/auth/register                 → create a password account
//	POST   /api/auth/login                    → issue a session token
//	GET    /api/auth/me                       → current user (requires auth)
//	GET    /api/auth/google                   → OAuth initiation (when configured)
//	GET    /api/auth/google/callback          → OAuth completion, redirects to the frontend with a token
//	POST   /api/upload                        → harmonize and save a clip (requires auth)
//	POST   /api/transform                     → harmonize without saving (optional auth)
//	POST   /api/audio/save                    → save a pair the client already holds (requires auth)
//	GET    /api/audio/{user_id}               → list saved pairs (requires auth, same user)
//	DELETE /api/audio/{user_id}/{original_id} → delete a saved pair (requires auth, same user)
//	GET    /                                  → static frontend with index.html fallback
//
// # Errors
//
// Handlers return errors through [server.WriteError], so every failure uses the same JSON envelope.
// Multipart temp files are removed when each request finishes.
package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/auth"
	"github.com/desertthunder/harmonymaker/internal/server"
	"github.com/desertthunder/harmonymaker/internal/services"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/desertthunder/harmonymaker/internal/tasks"
	"golang.org/x/oauth2"
)

const healthTimeout = 3 * time.Second

// GoogleProvider runs Google sign-in. Implemented by [services.GoogleService].
type GoogleProvider interface {
	server.OAuthProvider
	Profile(ctx context.Context, token *oauth2.Token) (*services.GoogleProfile, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// AppOpts contains the dependencies of an [App].
type AppOpts struct {
	Auth        *auth.Service
	Pipeline    *tasks.Pipeline
	Google      GoogleProvider // nil disables Google sign-in
	FrontendURL string
	PublicDir   string // empty disables static files
	Checks      map[string]HealthCheck
	Server      shared.ServerConfig
	Secure      bool
	Logger      *log.Logger
}

// App holds the handlers of the web service.
type App struct {
	auth        *auth.Service
	pipeline    *tasks.Pipeline
	google      GoogleProvider
	frontendURL string
	publicDir   string
	checks      map[string]HealthCheck
	server      shared.ServerConfig
	secure      bool
	logger      *log.Logger
}

// NewApp creates a new App with the provided dependencies.
func NewApp(opts AppOpts) *App {
	if opts.Logger == nil {
		opts.Logger = shared.DiscardLogger()
	}
	if opts.FrontendURL == "" {
		opts.FrontendURL = "http://localhost:3000"
	}

	return &App{
		auth:        opts.Auth,
		pipeline:    opts.Pipeline,
		google:      opts.Google,
		frontendURL: strings.TrimRight(opts.FrontendURL, "/"),
		publicDir:   opts.PublicDir,
		checks:      opts.Checks,
		server:      opts.Server,
		secure:      opts.Secure,
		logger:      opts.Logger,
	}
}

// Register adds every route of the app to r.
func (a *App) Register(r server.Router) {
	required := server.RequireAuth(a.auth.Tokens(), a.logger)
	optional := server.OptionalAuth(a.auth.Tokens(), a.logger)
	active := server.RequireActive(a.activeAccount, a.logger)

	r.Handle(http.MethodGet, "/api/test", http.HandlerFunc(a.test))
	r.Handle(http.MethodGet, "/api/health", http.HandlerFunc(a.health))

	r.Handle(http.MethodPost, "/api/auth/register", http.HandlerFunc(a.register))
	r.Handle(http.MethodPost, "/api/auth/login", http.HandlerFunc(a.login))
	r.Handle(http.MethodGet, "/api/auth/me", http.HandlerFunc(a.me), required)

	if a.google != nil {
		r.Handler(server.NewOAuthHandler(server.OAuthHandlerOpts{
			Provider:     a.google,
			Complete:     a.completeGoogle,
			LoginPath:    "/api/auth/google",
			CallbackPath: "/api/auth/google/callback",
			FailureURL:   a.frontendURL + "/login",
			Secure:       a.secure,
			Logger:       a.logger,
		}))
	}

	r.Handle(http.MethodPost, "/api/upload", http.HandlerFunc(a.upload), required, active)
	r.Handle(http.MethodPost, "/api/transform", http.HandlerFunc(a.transform), optional)
	r.Handle(http.MethodPost, "/api/audio/save", http.HandlerFunc(a.save), required, active)
	r.Handle(http.MethodGet, "/api/audio/{user_id}", http.HandlerFunc(a.pairs), required, active)
	r.Handle(http.MethodDelete, "/api/audio/{user_id}/{original_id}", http.HandlerFunc(a.deletePair), required, active)

	if a.publicDir != "" {
		r.Handle(http.MethodGet, "/", NewStaticHandler(a.publicDir))
	}
}

// activeAccount rejects identities whose account was deleted after the token was issued.
func (a *App) activeAccount(ctx context.Context, id *auth.Identity) error {
	_, err := a.auth.Me(ctx, id)
	return err
}

// Handler builds the complete HTTP handler: routes, rate limiting, CORS, request logging and panic recovery.
func (a *App) Handler() http.Handler {
	router := server.NewBasicRouter()
	if a.server.RateLimit > 0 {
		trusted, err := a.server.Proxies()
		if err != nil {
			a.logger.Warn("ignoring trusted proxies", "error", err)
		}
		router.Use(server.NewRateLimiter(a.server.RateLimit, a.server.RateBurst, trusted...).Middleware())
	}
	a.Register(router)

	return server.Chain(router, server.Recover(a.logger), server.Logger(a.logger), server.CORS(a.server.AllowedOrigins))
}

func (a *App) test(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("response from api/test route"))
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// health runs every check; any failure makes the response 503.
func (a *App) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(a.checks))}
	for name, check := range a.checks {
		if err := check(ctx); err != nil {
			a.logger.Warn("health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "degraded"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	server.WriteJSON(w, status, resp)
}
