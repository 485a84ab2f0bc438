package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
)

const stateCookie = "oauth_state"

// OAuthProvider runs the provider side of an authorization code flow. Implemented by [services.GoogleService].
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// OAuthCompleter turns an exchanged token into a signed-in session and returns where to send the browser.
type OAuthCompleter func(ctx context.Context, token *oauth2.Token) (redirect string, err error)

// OAuthHandlerOpts configures an [OAuthHandler].
type OAuthHandlerOpts struct {
	Provider     OAuthProvider
	Complete     OAuthCompleter
	LoginPath    string // e.g. /api/auth/google
	CallbackPath string // e.g. /api/auth/google/callback
	FailureURL   string // browser destination when the flow fails; "?error=<reason>" is appended
	Secure       bool   // mark the state cookie Secure
	Logger       *log.Logger
}

// OAuthHandler handles the browser side of the authorization code flow.
// Implements the Handler interface for registration with a Router.
//
// The login route stores a random state in an HttpOnly cookie and redirects to the provider.
// The callback route checks the returned state against the cookie, exchanges the code and calls the completer.
type OAuthHandler struct {
	opts OAuthHandlerOpts
}

// NewOAuthHandler creates a new OAuth handler.
func NewOAuthHandler(opts OAuthHandlerOpts) *OAuthHandler {
	return &OAuthHandler{opts: opts}
}

// Routes returns the HTTP routes this handler serves.
func (h *OAuthHandler) Routes() []string {
	return []string{"GET " + h.opts.LoginPath, "GET " + h.opts.CallbackPath}
}

// ServeHTTP dispatches to the login or callback step.
func (h *OAuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case h.opts.LoginPath:
		h.login(w, r)
	case h.opts.CallbackPath:
		h.callback(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (h *OAuthHandler) login(w http.ResponseWriter, r *http.Request) {
	state, err := NewState()
	if err != nil {
		WriteError(w, h.opts.Logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     h.opts.CallbackPath,
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.opts.Provider.AuthURL(state), http.StatusFound)
}

// callback validates state parameter, exchanges authorization code for tokens, and completes the login.
func (h *OAuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: h.opts.CallbackPath, MaxAge: -1, HttpOnly: true})

	q := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		h.fail(w, r, "invalid_state", fmt.Errorf("invalid state parameter"))
		return
	}

	code := q.Get("code")
	if code == "" {
		h.fail(w, r, "access_denied", fmt.Errorf("authorization failed: %s - %s", q.Get("error"), q.Get("error_description")))
		return
	}

	token, err := h.opts.Provider.Exchange(r.Context(), code)
	if err != nil {
		h.fail(w, r, "exchange_failed", err)
		return
	}

	redirect, err := h.opts.Complete(r.Context(), token)
	if err != nil {
		h.fail(w, r, "login_failed", err)
		return
	}

	http.Redirect(w, r, redirect, http.StatusFound)
}

func (h *OAuthHandler) fail(w http.ResponseWriter, r *http.Request, reason string, err error) {
	if h.opts.Logger != nil {
		h.opts.Logger.Warn("oauth login failed", "reason", reason, "error", err)
	}

	if h.opts.FailureURL == "" {
		http.Error(w, "Authorization failed", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, h.opts.FailureURL+"?error="+url.QueryEscape(reason), http.StatusFound)
}

// NewState returns a random URL-safe state token.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
