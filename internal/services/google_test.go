package services

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/desertthunder/harmonymaker/internal/shared"
	"golang.org/x/oauth2"
)

func testGoogleConfig() shared.GoogleConfig {
	return shared.GoogleConfig{
		ClientID:     "test_client_id",
		ClientSecret: "test_client_secret",
	}
}

func TestGoogleService(t *testing.T) {
	t.Run("NewGoogleService", func(t *testing.T) {
		t.Run("With Valid Credentials", func(t *testing.T) {
			srv, err := NewGoogleService(testGoogleConfig())
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if srv.config.RedirectURL != "http://localhost:3000/api/auth/google/callback" {
				t.Errorf("expected default redirect URI, got %s", srv.config.RedirectURL)
			}
		})

		t.Run("Placeholder Credentials", func(t *testing.T) {
			_, err := NewGoogleService(shared.GoogleConfig{ClientID: "your_google_client_id", ClientSecret: "x"})
			if !errors.Is(err, shared.ErrMissingCredentials) {
				t.Errorf("expected ErrMissingCredentials, got %v", err)
			}
		})
	})

	t.Run("AuthURL", func(t *testing.T) {
		srv, err := NewGoogleService(testGoogleConfig())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}

		authURL := srv.AuthURL("test_state")
		if !strings.Contains(authURL, "accounts.google.com") {
			t.Error("auth URL should contain Google domain")
		}
		if !strings.Contains(authURL, "test_client_id") {
			t.Error("auth URL should contain client_id")
		}
		if !strings.Contains(authURL, "test_state") {
			t.Error("auth URL should contain state")
		}
		if !strings.Contains(authURL, "email") {
			t.Error("auth URL should request email scope")
		}
	})

	t.Run("Exchange and Profile", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/token":
				if r.FormValue("code") != "good-code" {
					http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"access_token":"tok","token_type":"Bearer","expires_in":3600}`))
			case "/userinfo":
				switch r.Header.Get("Authorization") {
				case "Bearer tok":
					w.Write([]byte(`{"sub":"g-123","email":"Singer@Example.com","email_verified":true,"name":"Singer"}`))
				case "Bearer partial":
					w.Write([]byte(`{"sub":"g-123"}`))
				default:
					w.WriteHeader(http.StatusUnauthorized)
				}
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		srv, err := NewGoogleService(testGoogleConfig())
		if err != nil {
			t.Fatalf("failed to create service: %v", err)
		}
		srv.config.Endpoint = oauth2.Endpoint{AuthURL: server.URL + "/auth", TokenURL: server.URL + "/token"}
		srv.userInfoURL = server.URL + "/userinfo"

		t.Run("exchanges code", func(t *testing.T) {
			token, err := srv.Exchange(context.Background(), "good-code")
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if token.AccessToken != "tok" {
				t.Errorf("expected tok, got %s", token.AccessToken)
			}
		})

		t.Run("bad code", func(t *testing.T) {
			_, err := srv.Exchange(context.Background(), "bad-code")
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})

		t.Run("reads profile", func(t *testing.T) {
			profile, err := srv.Profile(context.Background(), &oauth2.Token{AccessToken: "tok", TokenType: "Bearer"})
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if profile.Subject != "g-123" || profile.Email != "Singer@Example.com" || profile.Name != "Singer" {
				t.Errorf("unexpected profile %+v", profile)
			}
		})

		t.Run("expired token", func(t *testing.T) {
			_, err := srv.Profile(context.Background(), &oauth2.Token{AccessToken: "stale", TokenType: "Bearer"})
			if !errors.Is(err, shared.ErrTokenExpired) {
				t.Errorf("expected ErrTokenExpired, got %v", err)
			}
		})

		t.Run("incomplete profile", func(t *testing.T) {
			_, err := srv.Profile(context.Background(), &oauth2.Token{AccessToken: "partial", TokenType: "Bearer"})
			if !errors.Is(err, shared.ErrInvalidCredentials) {
				t.Errorf("expected ErrInvalidCredentials, got %v", err)
			}
		})
	})
}
