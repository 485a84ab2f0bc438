// package testing contains shared testing utilities
package testing

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"sync"
	"testing"

	"github.com/desertthunder/harmonymaker/internal/services"
)

// FakeTransformer is a test double for [services.Transformer].
//
// By default it echoes the input with a "harmonized:" prefix.
type FakeTransformer struct {
	mu        sync.Mutex
	Err       error
	HealthErr error
	Output    []byte
	Calls     int
}

func (f *FakeTransformer) Transform(ctx context.Context, filename, contentType string, data []byte) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls++
	if f.Err != nil {
		return nil, f.Err
	}
	if f.Output != nil {
		return f.Output, nil
	}
	return append([]byte("harmonized:"), data...), nil
}

func (f *FakeTransformer) Health(ctx context.Context) error { return f.HealthErr }

// MemoryStore is an in-memory [services.ObjectStore].
type MemoryStore struct {
	mu        sync.Mutex
	Objects   map[string][]byte
	Deleted   []string
	UploadErr error
	DeleteErr error
	// FailBucket makes uploads to that bucket fail with UploadErr (or a generic error).
	FailBucket string
	next       int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{Objects: map[string][]byte{}}
}

func (m *MemoryStore) Upload(ctx context.Context, bucket, userID, filename, contentType string, data []byte) (*services.StoredObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailBucket == bucket || (m.FailBucket == "" && m.UploadErr != nil) {
		if m.UploadErr != nil {
			return nil, m.UploadErr
		}
		return nil, errors.New("upload failed")
	}

	m.next++
	key := fmt.Sprintf("%s/%04d_%s", userID, m.next, services.SanitizeFilename(filename))
	m.Objects[bucket+"/"+key] = append([]byte(nil), data...)

	return &services.StoredObject{
		Bucket: bucket,
		Key:    key,
		URL:    "https://storage.test/" + bucket + "/" + key,
		Size:   int64(len(data)),
	}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.Objects, bucket+"/"+key)
	m.Deleted = append(m.Deleted, bucket+"/"+key)
	return nil
}

// Count returns the number of stored objects.
func (m *MemoryStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Objects)
}

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// WAV returns a mono 16-bit PCM WAV file holding samples zeroed frames at 8kHz.
func WAV(samples int) []byte {
	var buf bytes.Buffer
	dataLen := uint32(samples * 2)

	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, 36+dataLen)
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint16(1))
	binary.Write(&buf, binary.LittleEndian, uint32(8000))
	binary.Write(&buf, binary.LittleEndian, uint32(16000))
	binary.Write(&buf, binary.LittleEndian, uint16(2))
	binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, dataLen)
	buf.Write(make([]byte, dataLen))

	return buf.Bytes()
}

// FilePart is one file field of a multipart form.
type FilePart struct {
	Field       string
	Filename    string
	ContentType string
	Data        []byte
}

// MultipartBody encodes parts as multipart/form-data, returning the body and its Content-Type.
func MultipartBody(t *testing.T, parts ...FilePart) (io.Reader, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, p := range parts {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.Field, p.Filename))
		header.Set("Content-Type", p.ContentType)

		part, err := w.CreatePart(header)
		if err != nil {
			t.Fatalf("Failed to create part %s: %v", p.Field, err)
		}
		if _, err := part.Write(p.Data); err != nil {
			t.Fatalf("Failed to write part %s: %v", p.Field, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close multipart writer: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
