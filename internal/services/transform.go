// ML transformation service client
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/shared"
)

const (
	transformPath       = "/generate"
	transformFormField  = "audio_file"
	defaultTransformURL = "http://localhost:8000"
)

// TransformOption configures a [TransformService].
type TransformOption func(*TransformService)

// WithAttempts sets how many times a transient failure is tried.
func WithAttempts(n uint) TransformOption {
	return func(s *TransformService) { s.attempts = n }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) TransformOption {
	return func(s *TransformService) { s.timeout = d }
}

// WithRetryDelay sets the initial backoff between attempts.
func WithRetryDelay(d time.Duration) TransformOption {
	return func(s *TransformService) { s.delay = d }
}

// WithTransformLogger sets the logger used for retry warnings.
func WithTransformLogger(l *log.Logger) TransformOption {
	return func(s *TransformService) { s.logger = l }
}

// TransformService calls the ML service's /generate endpoint.
type TransformService struct {
	baseURL    string
	httpClient *http.Client
	attempts   uint
	timeout    time.Duration
	delay      time.Duration
	logger     *log.Logger
}

var _ Transformer = (*TransformService)(nil)

// NewTransformService creates a client for the ML service at baseURL.
func NewTransformService(baseURL string, client *http.Client, opts ...TransformOption) *TransformService {
	if baseURL == "" {
		baseURL = defaultTransformURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	s := &TransformService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		attempts:   defaultAttempts,
		timeout:    2 * time.Minute,
		delay:      defaultRetryDelay,
		logger:     shared.DiscardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StatusError is returned when the ML service answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ML service error: %d %s", e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error { return shared.ErrTransformFailed }

// temporary reports whether the status is worth retrying.
func (e *StatusError) temporary() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Transform posts the clip as multipart field "audio_file" and returns the response body.
//
// Network errors, 5xx and 429 responses are retried; other statuses fail immediately.
func (s *TransformService) Transform(ctx context.Context, filename, contentType string, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty audio", shared.ErrInvalidInput)
	}

	body, formType, err := encodeAudioForm(filename, contentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	onRetry := retry.OnRetry(func(n uint, err error) {
		s.logger.Warn("retrying transform request", "attempt", n+1, "error", err)
	})

	return withRetry(ctx, s.attempts, s.delay, func(ctx context.Context) ([]byte, error) {
		out, err := s.post(ctx, body, formType)
		var se *StatusError
		if errors.As(err, &se) && !se.temporary() {
			return nil, retry.Unrecoverable(err)
		}
		return out, err
	}, onRetry)
}

func (s *TransformService) post(ctx context.Context, body []byte, formType string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+transformPath, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", formType)
	req.Header.Set("Accept", "audio/wav")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", shared.ErrTransformFailed, err)
	}
	if len(out) == 0 {
		return nil, retry.Unrecoverable(fmt.Errorf("%w: empty response", shared.ErrTransformFailed))
	}

	return out, nil
}

// Health performs a GET against the service root. Any HTTP answer below 500 counts as reachable.
func (s *TransformService) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", shared.ErrServiceUnavailable, resp.StatusCode)
	}
	return nil
}

// encodeAudioForm builds the multipart body expected by the ML service.
func encodeAudioForm(filename, contentType string, data []byte) ([]byte, string, error) {
	if filename == "" {
		filename = "audio.wav"
	}
	if contentType == "" {
		contentType = "audio/wav"
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, transformFormField, filename))
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}

	return buf.Bytes(), w.FormDataContentType(), nil
}
