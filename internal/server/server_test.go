package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/harmonymaker/internal/auth"
	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"golang.org/x/oauth2"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, body)
	})
}

func newTestUser() *models.User {
	user := models.NewUser(1, "testuser", "test@example.com")
	user.SetID("2a8Jq0xNYJjQbJ0mHnZVoTjz7Lk")
	return user
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected error envelope, got %q: %v", rec.Body.String(), err)
	}
	return body
}

func TestBasicRouter(t *testing.T) {
	t.Run("method routing", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodGet, "/api/test", okHandler("get"))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/test", nil))
		if rec.Body.String() != "get" {
			t.Errorf("expected get, got %q", rec.Body.String())
		}

		rec = httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/test", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}
	})

	t.Run("path values", func(t *testing.T) {
		r := NewBasicRouter()
		r.Handle(http.MethodDelete, "/api/audio/{user_id}/{original_id}", http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			fmt.Fprintf(w, "%s:%s", req.PathValue("user_id"), req.PathValue("original_id"))
		}))

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/audio/u1/a2", nil))
		if rec.Body.String() != "u1:a2" {
			t.Errorf("expected u1:a2, got %q", rec.Body.String())
		}
	})

	t.Run("middleware order", func(t *testing.T) {
		var order []string
		mark := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		r := NewBasicRouter()
		r.Use(mark("global-1"), mark("global-2"))
		r.Handle(http.MethodGet, "/x", okHandler("x"), mark("route"))

		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))

		want := "global-1,global-2,route"
		if got := strings.Join(order, ","); got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
	})
}

func TestMiddleware(t *testing.T) {
	logger := shared.DiscardLogger()

	t.Run("Recover", func(t *testing.T) {
		h := Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected 500, got %d", rec.Code)
		}
		body := decodeError(t, rec)
		if body.Status != "error" || body.StatusCode != 500 || body.Message != "Internal Server Error" {
			t.Errorf("unexpected envelope %+v", body)
		}
	})

	t.Run("Logger passes through", func(t *testing.T) {
		h := Logger(logger)(okHandler("hi"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Body.String() != "hi" {
			t.Errorf("expected hi, got %q", rec.Body.String())
		}
	})

	t.Run("CORS", func(t *testing.T) {
		h := CORS([]string{"http://localhost:8080"})(okHandler("ok"))

		t.Run("allowed origin", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", "http://localhost:8080")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:8080" {
				t.Errorf("expected allowed origin header, got %q", got)
			}
		})

		t.Run("other origin", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", "https://evil.example")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
				t.Errorf("expected no CORS header, got %q", got)
			}
		})

		t.Run("preflight", func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/upload", nil)
			req.Header.Set("Origin", "http://localhost:8080")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != http.StatusNoContent {
				t.Errorf("expected 204, got %d", rec.Code)
			}
			if !strings.Contains(rec.Header().Get("Access-Control-Allow-Headers"), "Authorization") {
				t.Error("expected Authorization in allowed headers")
			}
		})
	})

	t.Run("RateLimiter", func(t *testing.T) {
		limiter := NewRateLimiter(1, 2)
		now := time.Now()
		limiter.now = func() time.Time { return now }
		h := limiter.Middleware()(okHandler("ok"))

		codes := make([]int, 0, 3)
		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:5000"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			codes = append(codes, rec.Code)
		}

		if codes[0] != 200 || codes[1] != 200 || codes[2] != http.StatusTooManyRequests {
			t.Errorf("expected burst of 2 then 429, got %v", codes)
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("expected other client unaffected, got %d", rec.Code)
		}

		now = now.Add(time.Hour)
		limiter.Allow("10.0.0.3")
		if len(limiter.clients) != 1 {
			t.Errorf("expected idle clients evicted, have %d", len(limiter.clients))
		}
	})

	t.Run("ClientIP", func(t *testing.T) {
		trusted := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

		tests := []struct {
			name    string
			remote  string
			forward string
			want    string
		}{
			{"remote host without header", "192.0.2.1:1234", "", "192.0.2.1"},
			{"header from untrusted peer is ignored", "192.0.2.1:1234", "203.0.113.9", "192.0.2.1"},
			{"header from trusted proxy", "10.0.0.1:1234", "203.0.113.9", "203.0.113.9"},
			{"trusted hops are skipped", "10.0.0.1:1234", "198.51.100.4, 203.0.113.9, 10.1.1.1", "203.0.113.9"},
			{"garbage hop stops the walk", "10.0.0.1:1234", "not-an-ip", "10.0.0.1"},
			{"trusted proxy without header", "10.0.0.1:1234", "", "10.0.0.1"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.RemoteAddr = tt.remote
				if tt.forward != "" {
					req.Header.Set("X-Forwarded-For", tt.forward)
				}
				if got := ClientIP(req, trusted); got != tt.want {
					t.Errorf("expected %s, got %s", tt.want, got)
				}
			})
		}
	})

	t.Run("RateLimiter ignores spoofed forwarding", func(t *testing.T) {
		limiter := NewRateLimiter(1, 1)
		now := time.Now()
		limiter.now = func() time.Time { return now }
		h := limiter.Middleware()(okHandler("ok"))

		allowed := 0
		for i := range 50 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "192.0.2.7:5000"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code == http.StatusOK {
				allowed++
			}
		}

		if allowed != 1 {
			t.Errorf("expected a single request allowed, got %d", allowed)
		}
		if len(limiter.clients) != 1 {
			t.Errorf("expected one bucket, have %d", len(limiter.clients))
		}
	})

	t.Run("RateLimiter behind trusted proxy", func(t *testing.T) {
		limiter := NewRateLimiter(1, 1, netip.MustParsePrefix("10.0.0.1/32"))
		h := limiter.Middleware()(okHandler("ok"))

		for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "10.0.0.1:443"
			req.Header.Set("X-Forwarded-For", client)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != http.StatusOK {
				t.Errorf("expected %s to get its own bucket, got %d", client, rec.Code)
			}
		}
	})

	t.Run("Auth", func(t *testing.T) {
		issuer, err := auth.NewTokenIssuer("secret", time.Hour)
		if err != nil {
			t.Fatalf("failed to create issuer: %v", err)
		}
		user := newTestUser()
		token, _ := issuer.Issue(user)

		whoami := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := IdentityFrom(r.Context()); id != nil {
				io.WriteString(w, id.ID)
				return
			}
			io.WriteString(w, "anonymous")
		})

		active := func(check AccountCheck) Middleware {
			return func(h http.Handler) http.Handler {
				return Chain(h, RequireAuth(issuer, logger), RequireActive(check, logger))
			}
		}
		live := func(ctx context.Context, id *auth.Identity) error { return nil }
		removed := func(ctx context.Context, id *auth.Identity) error {
			return fmt.Errorf("%w: account no longer exists", shared.ErrNotAuthenticated)
		}

		tests := []struct {
			name     string
			mw       Middleware
			header   string
			wantCode int
			wantBody string
		}{
			{"required with token", RequireAuth(issuer, logger), "Bearer " + token, 200, user.ID()},
			{"required without token", RequireAuth(issuer, logger), "", 401, ""},
			{"required with bad token", RequireAuth(issuer, logger), "Bearer nope", 401, ""},
			{"required with wrong scheme", RequireAuth(issuer, logger), "Basic " + token, 401, ""},
			{"optional without token", OptionalAuth(issuer, logger), "", 200, "anonymous"},
			{"optional with token", OptionalAuth(issuer, logger), "bearer " + token, 200, user.ID()},
			{"optional with bad token", OptionalAuth(issuer, logger), "Bearer nope", 401, ""},
			{"active account", active(live), "Bearer " + token, 200, user.ID()},
			{"removed account with valid token", active(removed), "Bearer " + token, 401, ""},
			{"active check without identity", RequireActive(live, logger), "", 401, ""},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				if tt.header != "" {
					req.Header.Set("Authorization", tt.header)
				}
				rec := httptest.NewRecorder()
				tt.mw(whoami).ServeHTTP(rec, req)

				if rec.Code != tt.wantCode {
					t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
				}
				if tt.wantCode == 200 && rec.Body.String() != tt.wantBody {
					t.Errorf("expected body %q, got %q", tt.wantBody, rec.Body.String())
				}
				if tt.wantCode == 401 && decodeError(t, rec).StatusCode != 401 {
					t.Error("expected 401 envelope")
				}
			})
		}
	})
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", fmt.Errorf("audio: %w", shared.ErrNotFound), 404, "Not found"},
		{"explicit", shared.NewHTTPError(http.StatusBadRequest, "No file uploaded", nil), 400, "No file uploaded"},
		{"hides internals", errors.New("pq: connection refused"), 500, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, shared.DiscardLogger(), tt.err)

			if rec.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, rec.Code)
			}
			body := decodeError(t, rec)
			if body.Message != tt.msg || body.StatusCode != tt.status || body.Status != "error" {
				t.Errorf("unexpected envelope %+v", body)
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var v struct {
		Name string `json:"name"`
	}

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x"}`))
	if err := DecodeJSON(req, &v); err != nil || v.Name != "x" {
		t.Errorf("expected decoded body, got %+v %v", v, err)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	err := DecodeJSON(req, &v)
	if !errors.Is(err, shared.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if shared.AsHTTPError(err).Status != http.StatusBadRequest {
		t.Error("expected 400 for malformed JSON")
	}
}

type fakeProvider struct {
	exchangeErr error
}

func (f *fakeProvider) AuthURL(state string) string {
	return "https://accounts.example/auth?state=" + url.QueryEscape(state)
}

func (f *fakeProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &oauth2.Token{AccessToken: "tok-" + code}, nil
}

func TestOAuthHandler(t *testing.T) {
	newHandler := func(provider *fakeProvider, complete OAuthCompleter) *OAuthHandler {
		return NewOAuthHandler(OAuthHandlerOpts{
			Provider:     provider,
			Complete:     complete,
			LoginPath:    "/api/auth/google",
			CallbackPath: "/api/auth/google/callback",
			FailureURL:   "http://localhost:8080/login",
			Logger:       shared.DiscardLogger(),
		})
	}

	complete := func(ctx context.Context, token *oauth2.Token) (string, error) {
		return "http://localhost:8080/login?token=" + token.AccessToken, nil
	}

	login := func(t *testing.T, h *OAuthHandler) (string, *http.Cookie) {
		t.Helper()
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/auth/google", nil))

		if rec.Code != http.StatusFound {
			t.Fatalf("expected redirect, got %d", rec.Code)
		}
		loc, _ := url.Parse(rec.Header().Get("Location"))
		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || !cookies[0].HttpOnly {
			t.Fatalf("expected one HttpOnly state cookie, got %+v", cookies)
		}
		return loc.Query().Get("state"), cookies[0]
	}

	t.Run("Routes", func(t *testing.T) {
		routes := newHandler(&fakeProvider{}, complete).Routes()
		if len(routes) != 2 || routes[0] != "GET /api/auth/google" || routes[1] != "GET /api/auth/google/callback" {
			t.Errorf("unexpected routes %v", routes)
		}
	})

	t.Run("full flow", func(t *testing.T) {
		h := newHandler(&fakeProvider{}, complete)
		state, cookie := login(t, h)
		if state == "" || state != cookie.Value {
			t.Fatalf("expected state in cookie and redirect, got %q / %q", state, cookie.Value)
		}

		req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?code=abc&state="+url.QueryEscape(state), nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusFound {
			t.Fatalf("expected redirect, got %d", rec.Code)
		}
		if got := rec.Header().Get("Location"); got != "http://localhost:8080/login?token=tok-abc" {
			t.Errorf("unexpected redirect %s", got)
		}
	})

	failures := []struct {
		name     string
		provider *fakeProvider
		complete OAuthCompleter
		query    func(state string) string
		cookie   bool
		reason   string
	}{
		{"missing cookie", &fakeProvider{}, complete, func(s string) string { return "code=abc&state=" + s }, false, "invalid_state"},
		{"state mismatch", &fakeProvider{}, complete, func(s string) string { return "code=abc&state=other" }, true, "invalid_state"},
		{"denied", &fakeProvider{}, complete, func(s string) string { return "error=access_denied&state=" + s }, true, "access_denied"},
		{"exchange error", &fakeProvider{exchangeErr: errors.New("bad code")}, complete, func(s string) string { return "code=abc&state=" + s }, true, "exchange_failed"},
		{"completer error", &fakeProvider{}, func(ctx context.Context, token *oauth2.Token) (string, error) {
			return "", errors.New("db down")
		}, func(s string) string { return "code=abc&state=" + s }, true, "login_failed"},
	}

	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			h := newHandler(tt.provider, tt.complete)
			state, cookie := login(t, h)

			req := httptest.NewRequest(http.MethodGet, "/api/auth/google/callback?"+tt.query(url.QueryEscape(state)), nil)
			if tt.cookie {
				req.AddCookie(cookie)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			want := "http://localhost:8080/login?error=" + tt.reason
			if got := rec.Header().Get("Location"); got != want {
				t.Errorf("expected redirect %s, got %s", want, got)
			}
		})
	}
}

func TestServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)

	go func() {
		done <- Serve(ctx, "127.0.0.1:0", okHandler("up"), shared.DiscardLogger(), ready)
	}()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("server exited early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Get("http://" + addr + "/")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "up" {
		t.Errorf("expected up, got %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
