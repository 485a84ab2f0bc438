package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/server"
	"golang.org/x/oauth2"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type loginResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Token   string      `json:"token"`
	User    sessionUser `json:"user"`
}

func (a *App) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	user, err := a.auth.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	a.logger.Info("user registered", "user_id", user.ID(), "username", user.Username())
	server.WriteJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"user":    user.Public(),
	})
}

func (a *App) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := server.DecodeJSON(r, &req); err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	session, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, loginResponse{
		Success: true,
		Message: "Login successful",
		Token:   session.Token,
		User:    sessionUser{ID: session.User.ID(), Username: session.User.Username()},
	})
}

func (a *App) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.auth.Me(r.Context(), server.IdentityFrom(r.Context()))
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, struct {
		Success bool              `json:"success"`
		User    models.PublicUser `json:"user"`
	}{true, user.Public()})
}

// completeGoogle signs in the Google account behind token and sends the browser to the frontend with a session token.
func (a *App) completeGoogle(ctx context.Context, token *oauth2.Token) (string, error) {
	profile, err := a.google.Profile(ctx, token)
	if err != nil {
		return "", fmt.Errorf("failed to fetch google profile: %w", err)
	}

	session, err := a.auth.LoginWithGoogle(ctx, profile)
	if err != nil {
		return "", err
	}

	a.logger.Info("google login", "user_id", session.User.ID(), "username", session.User.Username())
	return a.frontendURL + "/login?token=" + url.QueryEscape(session.Token), nil
}
