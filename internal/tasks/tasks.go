package tasks

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/services"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"golang.org/x/sync/errgroup"
)

// DefaultMaxSize is the upload limit used when a pipeline is built without one (50MB).
const DefaultMaxSize int64 = 50 << 20

// allowedTypes are the content types accepted from clients.
var allowedTypes = map[string]bool{
	"audio/wav":   true,
	"audio/x-wav": true,
	"audio/wave":  true,
	"audio/mpeg":  true,
}

// Upload is an audio file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Normalize fills in a sniffed content type when the client sent none (or a generic one) and strips parameters.
func (u Upload) Normalize() Upload {
	ct := strings.ToLower(strings.TrimSpace(u.ContentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(u.Data)
		if i := strings.IndexByte(ct, ';'); i >= 0 {
			ct = ct[:i]
		}
	}
	u.ContentType = ct
	if strings.TrimSpace(u.Filename) == "" {
		u.Filename = "audio.wav"
	}
	return u
}

// Validate checks the upload is non-empty, of an allowed type and at most maxSize bytes.
func (u Upload) Validate(maxSize int64) error {
	if len(u.Data) == 0 {
		return fmt.Errorf("%w: no file uploaded", shared.ErrInvalidInput)
	}
	if maxSize > 0 && int64(len(u.Data)) > maxSize {
		return fmt.Errorf("%w: %s exceeds %dMB", shared.ErrFileTooLarge, u.Filename, maxSize>>20)
	}
	if !allowedTypes[u.ContentType] {
		return fmt.Errorf("%w: %s", shared.ErrUnsupportedType, u.ContentType)
	}
	return nil
}

// Result describes a persisted pair.
type Result struct {
	OriginalID     string `json:"originalId"`
	OriginalURL    string `json:"originalUrl"`
	TransformedID  string `json:"transformedId,omitempty"`
	TransformedURL string `json:"transformedUrl"`
}

// PairStore is the persistence used by [Pipeline]. Implemented by [repositories.AudioRepository].
type PairStore interface {
	CreatePair(ctx context.Context, original, transformed *models.AudioFile) error
	ListPairs(ctx context.Context, userID string) ([]models.AudioPair, error)
	DeletePair(ctx context.Context, userID, originalID string) ([]*models.AudioFile, error)
}

// Buckets names the storage buckets for each side of a pair.
type Buckets struct {
	Original    string
	Transformed string
}

// PipelineOpts contains the dependencies of a [Pipeline].
type PipelineOpts struct {
	Store       services.ObjectStore
	Transformer services.Transformer
	Pairs       PairStore
	Buckets     Buckets
	MaxSize     int64
	Logger      *log.Logger
}

// Pipeline runs audio through storage, the ML service and the database.
type Pipeline struct {
	store       services.ObjectStore
	transformer services.Transformer
	pairs       PairStore
	buckets     Buckets
	maxSize     int64
	logger      *log.Logger
}

// NewPipeline creates a new Pipeline with the provided dependencies.
func NewPipeline(opts PipelineOpts) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = shared.DiscardLogger()
	}
	if opts.MaxSize <= 0 {
		opts.MaxSize = DefaultMaxSize
	}
	if opts.Buckets.Original == "" {
		opts.Buckets.Original = "original-audio"
	}
	if opts.Buckets.Transformed == "" {
		opts.Buckets.Transformed = "transformed-audio"
	}

	return &Pipeline{
		store:       opts.Store,
		transformer: opts.Transformer,
		pairs:       opts.Pairs,
		buckets:     opts.Buckets,
		maxSize:     opts.MaxSize,
		logger:      opts.Logger,
	}
}

// MaxSize returns the largest accepted upload in bytes.
func (p *Pipeline) MaxSize() int64 { return p.maxSize }

// sendProgress sends a progress update through the channel without blocking.
func (p *Pipeline) sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

// Harmonize uploads the original, transforms it, uploads the result and records the pair for userID.
//
// If any step after the first upload fails, every object uploaded so far is deleted using a context that
// survives cancellation of ctx, and the original error is returned.
func (p *Pipeline) Harmonize(ctx context.Context, userID string, up Upload, progress chan<- ProgressUpdate) (*Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: no user", shared.ErrNotAuthenticated)
	}

	up = up.Normalize()
	p.sendProgress(progress, validateUpdate(up))
	if err := up.Validate(p.maxSize); err != nil {
		return nil, err
	}

	logger := p.logger.With("user", userID, "file", up.Filename)
	var uploaded []*services.StoredObject

	fail := func(err error) (*Result, error) {
		p.sendProgress(progress, cleanupUpdate(len(uploaded), err))
		p.compensate(ctx, logger, uploaded)
		return nil, err
	}

	p.sendProgress(progress, uploadOriginalUpdate(p.buckets.Original))
	original, err := p.store.Upload(ctx, p.buckets.Original, userID, up.Filename, up.ContentType, up.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to store original: %w", err)
	}
	uploaded = append(uploaded, original)

	p.sendProgress(progress, transformUpdate())
	out, err := p.transformer.Transform(ctx, up.Filename, up.ContentType, up.Data)
	if err != nil {
		return fail(fmt.Errorf("failed to transform audio: %w", err))
	}

	p.sendProgress(progress, uploadTransformedUpdate(p.buckets.Transformed, len(out)))
	transformed, err := p.store.Upload(ctx, p.buckets.Transformed, userID, TransformedWAVName(up.Filename), "audio/wav", out)
	if err != nil {
		return fail(fmt.Errorf("failed to store transformed audio: %w", err))
	}
	uploaded = append(uploaded, transformed)

	p.sendProgress(progress, recordUpdate())
	result, err := p.record(ctx, userID, original, transformed)
	if err != nil {
		return fail(err)
	}

	logger.Info("harmonized audio", "original", result.OriginalID)
	p.sendProgress(progress, doneUpdate(result))
	return result, nil
}

// Transform sends up through the ML service without storing anything.
func (p *Pipeline) Transform(ctx context.Context, up Upload) ([]byte, error) {
	up = up.Normalize()
	if err := up.Validate(p.maxSize); err != nil {
		return nil, err
	}

	out, err := p.transformer.Transform(ctx, up.Filename, up.ContentType, up.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to transform audio: %w", err)
	}
	return out, nil
}

// SavePair stores a pair the client already holds: both files are uploaded concurrently, then recorded together.
func (p *Pipeline) SavePair(ctx context.Context, userID string, original, transformed Upload) (*Result, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: no user", shared.ErrNotAuthenticated)
	}

	original = original.Normalize()
	transformed = transformed.Normalize()
	if err := original.Validate(p.maxSize); err != nil {
		return nil, fmt.Errorf("original: %w", err)
	}
	if err := transformed.Validate(p.maxSize); err != nil {
		return nil, fmt.Errorf("transformed: %w", err)
	}

	logger := p.logger.With("user", userID, "file", original.Filename)

	var storedOriginal, storedTransformed *services.StoredObject
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		obj, err := p.store.Upload(gctx, p.buckets.Original, userID, original.Filename, original.ContentType, original.Data)
		if err != nil {
			return fmt.Errorf("original upload failed: %w", err)
		}
		storedOriginal = obj
		return nil
	})
	g.Go(func() error {
		obj, err := p.store.Upload(gctx, p.buckets.Transformed, userID, TransformedName(transformed.Filename), transformed.ContentType, transformed.Data)
		if err != nil {
			return fmt.Errorf("transformed upload failed: %w", err)
		}
		storedTransformed = obj
		return nil
	})

	uploadErr := g.Wait()

	var uploaded []*services.StoredObject
	for _, obj := range []*services.StoredObject{storedOriginal, storedTransformed} {
		if obj != nil {
			uploaded = append(uploaded, obj)
		}
	}

	if uploadErr != nil {
		p.compensate(ctx, logger, uploaded)
		return nil, uploadErr
	}

	result, err := p.record(ctx, userID, storedOriginal, storedTransformed)
	if err != nil {
		p.compensate(ctx, logger, uploaded)
		return nil, err
	}

	logger.Info("saved audio pair", "original", result.OriginalID)
	return result, nil
}

// Pairs lists the saved pairs of userID, newest first.
func (p *Pipeline) Pairs(ctx context.Context, userID string) ([]models.AudioPair, error) {
	return p.pairs.ListPairs(ctx, userID)
}

// DeletePair removes the rows of a pair owned by userID, then deletes their objects.
//
// Object deletion failures are logged and do not fail the call since the rows are already gone.
func (p *Pipeline) DeletePair(ctx context.Context, userID, originalID string) error {
	files, err := p.pairs.DeletePair(ctx, userID, originalID)
	if err != nil {
		return err
	}

	objects := make([]*services.StoredObject, 0, len(files))
	for _, f := range files {
		objects = append(objects, &services.StoredObject{Bucket: f.Bucket(), Key: f.ObjectKey(), URL: f.URL()})
	}

	p.compensate(ctx, p.logger.With("user", userID, "original", originalID), objects)
	return nil
}

// record writes the pair rows for two stored objects.
func (p *Pipeline) record(ctx context.Context, userID string, original, transformed *services.StoredObject) (*Result, error) {
	originalFile := models.NewAudioFile(userID, models.FileTypeOriginal, original.Bucket, original.Key, original.URL)
	transformedFile := models.NewAudioFile(userID, models.FileTypeTransformed, transformed.Bucket, transformed.Key, transformed.URL)

	if err := p.pairs.CreatePair(ctx, originalFile, transformedFile); err != nil {
		return nil, fmt.Errorf("failed to record audio pair: %w", err)
	}

	return &Result{
		OriginalID:     originalFile.ID(),
		OriginalURL:    originalFile.URL(),
		TransformedID:  transformedFile.ID(),
		TransformedURL: transformedFile.URL(),
	}, nil
}

// compensate deletes objects concurrently, detached from ctx cancellation. Failures are logged only.
func (p *Pipeline) compensate(ctx context.Context, logger *log.Logger, objects []*services.StoredObject) {
	if len(objects) == 0 {
		return
	}

	cleanupCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, obj := range objects {
		g.Go(func() error {
			if err := p.store.Delete(cleanupCtx, obj.Bucket, obj.Key); err != nil {
				logger.Error("failed to remove object", "bucket", obj.Bucket, "key", obj.Key, "error", err)
				return err
			}
			logger.Debug("removed object", "bucket", obj.Bucket, "key", obj.Key)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Warn("cleanup incomplete", "objects", len(objects))
	}
}

// TransformedName is the object name used for the transformed side of a pair.
func TransformedName(filename string) string {
	base := filepath.Base(filename)
	if base == "." || base == "/" || base == "" {
		base = "audio.wav"
	}
	if strings.HasPrefix(base, "transformed_") {
		return base
	}
	return "transformed_" + base
}

// TransformedWAVName is [TransformedName] for the ML output of filename, which is always WAV.
func TransformedWAVName(filename string) string {
	return TransformedName(wavName(filename))
}

// wavName swaps the extension of filename for .wav.
func wavName(filename string) string {
	if filename == "" {
		return ""
	}
	return strings.TrimSuffix(filename, filepath.Ext(filename)) + ".wav"
}
