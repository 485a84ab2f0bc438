// package services defines interfaces for the external systems the pipeline talks to
//
// ML transform endpoint, S3-compatible object storage, Google OAuth
package services

import (
	"context"
)

// Transformer sends an audio clip to the ML service and returns the transformed clip.
type Transformer interface {
	// Transform posts data (named filename, of contentType) and returns the harmonized audio bytes.
	Transform(ctx context.Context, filename, contentType string, data []byte) ([]byte, error)

	// Health reports whether the service is reachable.
	Health(ctx context.Context) error
}

// ObjectStore stores audio binaries in buckets.
type ObjectStore interface {
	// Upload writes data under a new per-user key in bucket and returns where it landed.
	Upload(ctx context.Context, bucket, userID, filename, contentType string, data []byte) (*StoredObject, error)

	// Delete removes the object at key from bucket.
	Delete(ctx context.Context, bucket, key string) error
}

// StoredObject describes an object written to storage.
type StoredObject struct {
	Bucket string
	Key    string
	URL    string
	Size   int64
}
