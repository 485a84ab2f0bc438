// Supabase Storage over its S3-compatible API
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/segmentio/ksuid"
)

const (
	// DefaultMaxFileSize is the upload limit applied when none is configured (50MB).
	DefaultMaxFileSize int64 = 50 << 20
	maxNameLength            = 100
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// StorageService implements [ObjectStore] against an S3-compatible endpoint.
type StorageService struct {
	client      s3iface.S3API
	publicURL   string
	buckets     []string
	maxFileSize int64
	attempts    uint
	delay       time.Duration
	logger      *log.Logger
	newName     func() string
}

var _ ObjectStore = (*StorageService)(nil)

// NewS3Client builds an S3 client for the Supabase storage endpoint in cfg, using path-style addressing.
func NewS3Client(cfg shared.StorageConfig) (s3iface.S3API, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: storage endpoint is required", shared.ErrInvalidConfig)
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("%w: storage access keys are required", shared.ErrMissingCredentials)
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.Endpoint),
		Region:           aws.String(region),
		S3ForcePathStyle: aws.Bool(true),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage session: %w", err)
	}

	return s3.New(sess), nil
}

// NewStorageService wraps client with the bucket layout and limits from cfg.
func NewStorageService(client s3iface.S3API, cfg shared.StorageConfig, logger *log.Logger) *StorageService {
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	maxSize := cfg.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	return &StorageService{
		client:      client,
		publicURL:   strings.TrimRight(cfg.PublicURL, "/"),
		buckets:     []string{cfg.OriginalBucket, cfg.TransformedBucket},
		maxFileSize: maxSize,
		attempts:    defaultAttempts,
		delay:       defaultRetryDelay,
		logger:      logger,
		newName:     func() string { return ksuid.New().String() },
	}
}

// Setup makes sure every configured bucket exists, creating missing ones as private buckets.
func (s *StorageService) Setup(ctx context.Context) ([]string, error) {
	var created []string

	for _, bucket := range s.buckets {
		if bucket == "" {
			continue
		}

		_, err := s.client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
		if err == nil {
			continue
		}
		if !isNotFound(err) {
			return created, fmt.Errorf("%w: storage setup failed for %s: %v", shared.ErrStorage, bucket, err)
		}

		_, err = s.client.CreateBucketWithContext(ctx, &s3.CreateBucketInput{
			Bucket: aws.String(bucket),
			ACL:    aws.String(s3.BucketCannedACLPrivate),
		})
		if err != nil {
			return created, fmt.Errorf("%w: failed to create bucket %s: %v", shared.ErrStorage, bucket, err)
		}

		s.logger.Info("created storage bucket", "bucket", bucket)
		created = append(created, bucket)
	}

	return created, nil
}

// Upload writes data to bucket under "<userID>/<ksuid>_<filename>" and returns the public URL.
//
// Files larger than the configured limit are rejected with [shared.ErrFileTooLarge] before any request is made.
func (s *StorageService) Upload(ctx context.Context, bucket, userID, filename, contentType string, data []byte) (*StoredObject, error) {
	size := int64(len(data))
	if size > s.maxFileSize {
		return nil, fmt.Errorf("%w: file exceeds %dMB limit", shared.ErrFileTooLarge, s.maxFileSize>>20)
	}
	if size == 0 {
		return nil, fmt.Errorf("%w: empty file", shared.ErrInvalidInput)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required for storage paths", shared.ErrInvalidInput)
	}
	if contentType == "" {
		contentType = "audio/wav"
	}

	key := fmt.Sprintf("%s/%s_%s", userID, s.newName(), SanitizeFilename(filename))

	_, err := withRetry(ctx, s.attempts, s.delay, func(ctx context.Context) (*s3.PutObjectOutput, error) {
		return s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			Body:          bytes.NewReader(data),
			ContentType:   aws.String(contentType),
			ContentLength: aws.Int64(size),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: file upload failed: %v", shared.ErrStorage, err)
	}

	s.logger.Debug("uploaded object", "bucket", bucket, "key", key, "bytes", size)

	return &StoredObject{
		Bucket: bucket,
		Key:    key,
		URL:    s.PublicURL(bucket, key),
		Size:   size,
	}, nil
}

// Delete removes key from bucket. Deleting a missing object is not an error.
func (s *StorageService) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("%w: file deletion failed: %v", shared.ErrStorage, err)
	}
	return nil
}

// PublicURL returns the browser-facing URL of an object.
func (s *StorageService) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", s.publicURL, bucket, key)
}

// SanitizeFilename reduces a client-supplied name to a safe object-name suffix.
func SanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > maxNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 10 {
			ext = ""
		}
		name = name[:maxNameLength-len(ext)] + ext
	}
	if name == "" {
		return "audio.wav"
	}
	return name
}

func isNotFound(err error) bool {
	var reqErr awserr.RequestFailure
	if errors.As(err, &reqErr) && reqErr.StatusCode() == http.StatusNotFound {
		return true
	}

	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchBucket, s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
