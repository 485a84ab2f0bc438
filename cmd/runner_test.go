package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/shared"
	tu "github.com/desertthunder/harmonymaker/internal/testing"
	"github.com/desertthunder/harmonymaker/internal/ui"
)

// memoryBuckets adds bucket setup to a MemoryStore.
type memoryBuckets struct {
	*tu.MemoryStore
	created  []string
	setupErr error
}

func (m *memoryBuckets) Setup(ctx context.Context) ([]string, error) {
	return m.created, m.setupErr
}

type testEnv struct {
	runner *Runner
	output *bytes.Buffer
	store  *memoryBuckets
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ml := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/generate" {
			w.WriteHeader(http.StatusOK)
			return
		}
		file, _, err := r.FormFile("audio_file")
		if err != nil {
			http.Error(w, "missing audio_file", http.StatusBadRequest)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(append([]byte("harmonized:"), data...))
	}))
	t.Cleanup(ml.Close)

	dir := t.TempDir()
	config := shared.DefaultConfig()
	config.Database = shared.DatabaseConfig{Driver: shared.DriverSQLite, URL: filepath.Join(dir, "harmony.db")}
	config.Auth.JWTSecret = "test-secret"
	config.Transform.URL = ml.URL
	config.Transform.Attempts = 1

	output := &bytes.Buffer{}
	env := &testEnv{
		runner: NewRunner(RunnerOpts{
			Config:     config,
			ConfigPath: "config.toml",
			Logger:     shared.DiscardLogger(),
			Output:     output,
			Palette:    ui.Plain(),
		}),
		output: output,
		store:  &memoryBuckets{MemoryStore: tu.NewMemoryStore(), created: []string{"original-audio", "transformed-audio"}},
		dir:    dir,
	}
	env.runner.newStorage = func(cfg shared.StorageConfig, logger *log.Logger) (bucketStore, error) {
		return env.store, nil
	}
	return env
}

func (e *testEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	e.output.Reset()
	return e.runner.Command().Run(context.Background(), append([]string{"harmony"}, args...))
}

func (e *testEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	if err := e.run(t, args...); err != nil {
		t.Fatalf("harmony %s failed: %v", strings.Join(args, " "), err)
	}
	return e.output.String()
}

func (e *testEnv) writeClip(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, tu.WAV(64), 0644); err != nil {
		t.Fatalf("failed to write clip: %v", err)
	}
	return path
}

func TestRunner(t *testing.T) {
	t.Run("NewRunner", func(t *testing.T) {
		t.Run("with all dependencies provided", func(t *testing.T) {
			config := shared.DefaultConfig()
			logger := shared.NewLogger(nil)
			output := &bytes.Buffer{}
			httpClient := &http.Client{}
			palette := ui.Plain()

			runner := NewRunner(RunnerOpts{
				Config:     config,
				Logger:     logger,
				Output:     output,
				HTTPClient: httpClient,
				Palette:    palette,
			})

			if runner.config != config {
				t.Error("expected config to be set")
			}
			if runner.logger != logger {
				t.Error("expected logger to be set")
			}
			if runner.output != output {
				t.Error("expected output to be set")
			}
			if runner.httpClient != httpClient {
				t.Error("expected httpClient to be set")
			}
			if runner.palette != palette {
				t.Error("expected palette to be set")
			}
		})

		t.Run("with nil config uses defaults", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Config: nil})
			if runner.config == nil {
				t.Error("expected default config to be set")
			}
		})

		t.Run("with nil logger uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Logger: nil})
			if runner.logger == nil {
				t.Error("expected default logger to be set")
			}
		})

		t.Run("with nil output uses stdout", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: nil})
			if runner.output != os.Stdout {
				t.Error("expected output to default to os.Stdout")
			}
		})

		t.Run("with nil httpClient uses default", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{HTTPClient: nil})
			if runner.httpClient != http.DefaultClient {
				t.Error("expected httpClient to default to http.DefaultClient")
			}
		})

		t.Run("with configPath sets field", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{ConfigPath: "/test/path/config.toml"})
			if runner.configPath != "/test/path/config.toml" {
				t.Errorf("expected configPath to be set, got %s", runner.configPath)
			}
		})
	})

	t.Run("writeJSON", func(t *testing.T) {
		t.Run("writes formatted JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, true); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}

			result := output.String()
			if !strings.Contains(result, `"key": "value"`) {
				t.Errorf("expected formatted JSON, got %s", result)
			}
			if !strings.HasSuffix(result, "\n") {
				t.Error("expected output to end with newline")
			}
		})

		t.Run("writes compact JSON successfully", func(t *testing.T) {
			output := &bytes.Buffer{}
			runner := NewRunner(RunnerOpts{Output: output})

			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if output.String() != "{\"key\":\"value\"}\n" {
				t.Errorf("expected compact JSON, got %s", output.String())
			}
		})

		t.Run("returns error for unmarshalable data", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &bytes.Buffer{}})
			if err := runner.writeJSON(make(chan int), false); err == nil {
				t.Error("expected error for channel type")
			}
		})

		t.Run("returns error when write fails", func(t *testing.T) {
			runner := NewRunner(RunnerOpts{Output: &tu.FWriter{}})
			if err := runner.writeJSON(map[string]string{"key": "value"}, false); err == nil {
				t.Error("expected write error")
			}
		})
	})

	t.Run("writePlainHeader", func(t *testing.T) {
		output := &bytes.Buffer{}
		runner := NewRunner(RunnerOpts{Output: output, Palette: ui.Plain()})
		runner.writePlainHeader("Saved audio")

		lines := strings.Split(strings.TrimSpace(output.String()), "\n")
		if len(lines) != 3 || lines[1] != "Saved audio" {
			t.Errorf("unexpected header %q", output.String())
		}
	})
}

func TestSetupCommands(t *testing.T) {
	env := newTestEnv(t)

	t.Run("database", func(t *testing.T) {
		out := env.mustRun(t, "setup", "database")
		if !strings.Contains(out, "✓ applied") {
			t.Errorf("expected migrations applied, got %q", out)
		}

		out = env.mustRun(t, "setup", "database")
		if !strings.Contains(out, "up to date") {
			t.Errorf("expected up to date on second run, got %q", out)
		}
	})

	t.Run("migrate status and rollback", func(t *testing.T) {
		out := env.mustRun(t, "migrate", "status")
		if !strings.HasPrefix(out, "schema version: ") || strings.Contains(out, "version: 0") {
			t.Errorf("unexpected status %q", out)
		}

		out = env.mustRun(t, "migrate", "rollback")
		if !strings.Contains(out, "rolled back migration") {
			t.Errorf("unexpected rollback output %q", out)
		}

		env.mustRun(t, "migrate", "up")
	})

	t.Run("storage", func(t *testing.T) {
		out := env.mustRun(t, "setup", "storage")
		if !strings.Contains(out, "created bucket original-audio") || !strings.Contains(out, "created bucket transformed-audio") {
			t.Errorf("unexpected storage output %q", out)
		}

		env.store.setupErr = errors.New("access denied")
		defer func() { env.store.setupErr = nil }()
		if err := env.run(t, "setup", "storage"); err == nil {
			t.Error("expected storage setup error")
		}
		if !strings.Contains(env.output.String(), "✗ storage setup: access denied") {
			t.Errorf("expected failure status, got %q", env.output.String())
		}
	})

	t.Run("config", func(t *testing.T) {
		path := filepath.Join(env.dir, "config.toml")
		env.mustRun(t, "setup", "config", "--output", path)
		tu.AssertFileExists(t, path)

		if !strings.Contains(tu.MustReadFile(t, path), "[storage]") {
			t.Error("expected template content")
		}

		err := env.run(t, "setup", "config", "--output", path)
		if !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict for existing file, got %v", err)
		}
	})
}

func TestUserAndAudioCommands(t *testing.T) {
	env := newTestEnv(t)

	env.mustRun(t, "users", "create", "--username", "tenor", "--email", "tenor@example.com", "--password", "password1")

	t.Run("create validation", func(t *testing.T) {
		err := env.run(t, "users", "create", "--username", "bass", "--email", "bass@example.com", "--password", "123")
		if !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}

		err = env.run(t, "users", "create", "--username", "tenor", "--email", "other@example.com", "--password", "password1")
		if !errors.Is(err, shared.ErrConflict) {
			t.Errorf("expected ErrConflict, got %v", err)
		}
	})

	var userID string
	t.Run("list", func(t *testing.T) {
		out := env.mustRun(t, "users", "list", "--format", "json")

		var users []map[string]string
		if err := json.Unmarshal([]byte(out), &users); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		if len(users) != 1 || users[0]["Username"] != "tenor" || users[0]["Login"] != "password" {
			t.Fatalf("unexpected users %v", users)
		}
		userID = users[0]["ID"]

		out = env.mustRun(t, "users", "list")
		if !strings.Contains(out, "tenor@example.com") {
			t.Errorf("expected table output, got %q", out)
		}

		if err := env.run(t, "users", "list", "--format", "yaml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for unknown format, got %v", err)
		}
	})

	t.Run("audio transform", func(t *testing.T) {
		clip := env.writeClip(t, "take.wav")

		out := env.mustRun(t, "audio", "transform", clip)
		want := filepath.Join(env.dir, "transformed_take.wav")
		if !strings.Contains(out, "wrote "+want) {
			t.Errorf("unexpected output %q", out)
		}
		if !strings.HasPrefix(tu.MustReadFile(t, want), "harmonized:") {
			t.Error("expected transformed content")
		}
		if env.store.Count() != 0 {
			t.Error("expected transform to store nothing")
		}

		if err := env.run(t, "audio", "transform"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	var originalID string
	t.Run("audio harmonize", func(t *testing.T) {
		clip := env.writeClip(t, "verse.wav")

		out := env.mustRun(t, "audio", "harmonize", "--user", userID, clip)
		for _, want := range []string{"[1/5] validate", "[3/5] transform", "Harmonized", "transformed_verse.wav"} {
			if !strings.Contains(out, want) {
				t.Errorf("output missing %q:\n%s", want, out)
			}
		}
		if env.store.Count() != 2 {
			t.Errorf("expected 2 stored objects, got %d", env.store.Count())
		}

		out = env.mustRun(t, "audio", "harmonize", "--user", userID, "--json", clip)
		var result struct {
			OriginalID string `json:"originalId"`
		}
		if err := json.Unmarshal([]byte(out), &result); err != nil || result.OriginalID == "" {
			t.Fatalf("expected JSON result, got %q (%v)", out, err)
		}
		originalID = result.OriginalID
	})

	t.Run("audio list", func(t *testing.T) {
		out := env.mustRun(t, "audio", "list", "--user", userID, "--format", "csv")
		lines := strings.Split(strings.TrimSpace(out), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 pairs, got %q", out)
		}
		if !strings.Contains(out, originalID) {
			t.Errorf("expected %s in listing", originalID)
		}

		export := filepath.Join(env.dir, "pairs.md")
		out = env.mustRun(t, "audio", "list", "--user", userID, "--format", "markdown", "--output", export)
		if !strings.Contains(out, "exported 2 pair(s)") {
			t.Errorf("unexpected export output %q", out)
		}
		tu.AssertFileExists(t, export)
	})

	t.Run("audio delete", func(t *testing.T) {
		out := env.mustRun(t, "audio", "delete", "--user", userID, originalID)
		if !strings.Contains(out, "deleted pair "+originalID) {
			t.Errorf("unexpected output %q", out)
		}
		if env.store.Count() != 2 {
			t.Errorf("expected the pair's objects removed, %d left", env.store.Count())
		}

		err := env.run(t, "audio", "delete", "--user", userID, originalID)
		if !errors.Is(err, shared.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("users delete", func(t *testing.T) {
		env.mustRun(t, "users", "delete", userID)

		out := env.mustRun(t, "users", "list")
		if !strings.Contains(out, "No users found") {
			t.Errorf("expected no active users, got %q", out)
		}
	})
}

func TestBrowserAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"127.0.0.1:3000", "127.0.0.1:3000"},
		{"0.0.0.0:3000", "localhost:3000"},
		{"[::]:3000", "localhost:3000"},
		{":3000", "localhost:3000"},
		{"not-an-addr", "not-an-addr"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := browserAddr(tt.in); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestReadClip(t *testing.T) {
	dir := t.TempDir()
	wav := filepath.Join(dir, "a.WAV")
	mp3 := filepath.Join(dir, "b.mp3")
	other := filepath.Join(dir, "c.bin")
	for _, p := range []string{wav, mp3, other} {
		os.WriteFile(p, []byte("data"), 0644)
	}

	tests := []struct {
		path string
		want string
	}{
		{wav, "audio/wav"},
		{mp3, "audio/mpeg"},
		{other, ""},
	}
	for _, tt := range tests {
		up, err := readClip(tt.path)
		if err != nil {
			t.Fatalf("readClip(%s) failed: %v", tt.path, err)
		}
		if up.ContentType != tt.want || up.Filename != filepath.Base(tt.path) {
			t.Errorf("readClip(%s) = %+v", tt.path, up)
		}
	}

	if _, err := readClip(filepath.Join(dir, "missing.wav")); err == nil {
		t.Error("expected error for missing file")
	}
}
