package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/shared"
)

const audioColumns = `id, sequence, user_id, audio_url, bucket, object_key, file_type, is_saved, pair_id, created_at`

// AudioRepository persists [models.AudioFile] rows and reads [models.AudioPair] views.
type AudioRepository struct {
	db *sql.DB
}

// NewAudioRepository creates a new [AudioRepository] with the given database connection
func NewAudioRepository(db *sql.DB) *AudioRepository {
	return &AudioRepository{db: db}
}

// CreatePair records an original clip and its transformed result in a single transaction.
//
// The transformed row's pair_id is set to the original's generated ID. Either both rows are written or neither is.
func (r *AudioRepository) CreatePair(ctx context.Context, original, transformed *models.AudioFile) error {
	if original.FileType() != models.FileTypeOriginal {
		return fmt.Errorf("%w: first file must be an original, got %s", shared.ErrInvalidInput, original.FileType())
	}
	if transformed.FileType() != models.FileTypeTransformed {
		return fmt.Errorf("%w: second file must be transformed, got %s", shared.ErrInvalidInput, transformed.FileType())
	}
	if original.UserID() != transformed.UserID() {
		return fmt.Errorf("%w: pair spans two users", shared.ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	originalID, originalSeq, err := r.insert(ctx, tx, original, "")
	if err != nil {
		return fmt.Errorf("failed to insert original audio: %w", err)
	}

	transformedID, transformedSeq, err := r.insert(ctx, tx, transformed, originalID)
	if err != nil {
		return fmt.Errorf("failed to insert transformed audio: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audio pair: %w", err)
	}

	original.SetID(originalID)
	original.SetSequence(originalSeq)
	transformed.SetID(transformedID)
	transformed.SetSequence(transformedSeq)
	transformed.SetPairID(originalID)
	return nil
}

// insert writes one row inside tx without mutating file, returning the new id and sequence.
func (r *AudioRepository) insert(ctx context.Context, tx *sql.Tx, file *models.AudioFile, pairID string) (string, int, error) {
	candidate := *file
	candidate.SetPairID(pairID)
	if err := candidate.Validate(); err != nil {
		return "", 0, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(ctx, tx, "audio")
	if err != nil {
		return "", 0, fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO audio (id, sequence, user_id, audio_url, bucket, object_key, file_type, is_saved, pair_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err = tx.ExecContext(ctx, query,
		id, sequence, file.UserID(), file.URL(), file.Bucket(), file.ObjectKey(),
		string(file.FileType()), file.IsSaved(), nullString(pairID), file.CreatedAt(),
	)
	if err != nil {
		return "", 0, err
	}

	return id, sequence, nil
}

// Get retrieves a single audio row by ID.
func (r *AudioRepository) Get(ctx context.Context, id string) (*models.AudioFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM audio WHERE id = $1`, audioColumns)

	file, err := scanAudio(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audio %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query audio: %w", err)
	}
	return file, nil
}

// List retrieves audio rows matching criteria, newest first.
//
// Supported criteria: "user_id" (string), "file_type" ([models.FileType]).
func (r *AudioRepository) List(ctx context.Context, criteria map[string]any) ([]*models.AudioFile, error) {
	query := fmt.Sprintf(`SELECT %s FROM audio WHERE 1 = 1`, audioColumns)
	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}

	if fileType, ok := criteria["file_type"].(models.FileType); ok && fileType != "" {
		args = append(args, string(fileType))
		query += fmt.Sprintf(" AND file_type = $%d", len(args))
	}

	query += " ORDER BY created_at DESC, sequence DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audio: %w", err)
	}
	defer rows.Close()

	var files []*models.AudioFile
	for rows.Next() {
		file, err := scanAudio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audio: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return files, nil
}

// ListPairs returns the user's originals joined to their transformed clips, newest first.
func (r *AudioRepository) ListPairs(ctx context.Context, userID string) ([]models.AudioPair, error) {
	query := `
		SELECT o.id, o.audio_url, t.id, t.audio_url, o.created_at
		FROM audio o
		LEFT JOIN audio t ON t.pair_id = o.id AND t.file_type = 'transformed'
		WHERE o.user_id = $1 AND o.file_type = 'original'
		ORDER BY o.created_at DESC, o.sequence DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audio pairs: %w", err)
	}
	defer rows.Close()

	pairs := []models.AudioPair{}
	for rows.Next() {
		var (
			pair           models.AudioPair
			transformedID  sql.NullString
			transformedURL sql.NullString
		)
		if err := rows.Scan(&pair.OriginalID, &pair.OriginalURL, &transformedID, &transformedURL, &pair.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audio pair: %w", err)
		}
		pair.TransformedID = transformedID.String
		pair.TransformedURL = transformedURL.String
		pairs = append(pairs, pair)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return pairs, nil
}

// DeletePair removes an original owned by userID together with its transformed rows.
//
// The deleted rows are returned so the caller can remove their objects from storage.
// Returns [shared.ErrNotFound] when the original does not exist or belongs to someone else.
func (r *AudioRepository) DeletePair(ctx context.Context, userID, originalID string) ([]*models.AudioFile, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`SELECT %s FROM audio WHERE id = $1 AND user_id = $2 AND file_type = 'original'`, audioColumns)
	original, err := scanAudio(tx.QueryRowContext(ctx, query, originalID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("audio pair %s: %w", originalID, shared.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query original audio: %w", err)
	}

	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM audio WHERE pair_id = $1`, audioColumns), originalID)
	if err != nil {
		return nil, fmt.Errorf("failed to query transformed audio: %w", err)
	}

	deleted := []*models.AudioFile{original}
	for rows.Next() {
		file, err := scanAudio(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transformed audio: %w", err)
		}
		deleted = append(deleted, file)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM audio WHERE pair_id = $1`, originalID); err != nil {
		return nil, fmt.Errorf("failed to delete transformed audio: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM audio WHERE id = $1`, originalID); err != nil {
		return nil, fmt.Errorf("failed to delete original audio: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audio delete: %w", err)
	}

	return deleted, nil
}

func scanAudio(row scanner) (*models.AudioFile, error) {
	var (
		id        string
		sequence  int
		userID    string
		url       string
		bucket    string
		objectKey string
		fileType  string
		isSaved   bool
		pairID    sql.NullString
		createdAt time.Time
	)

	if err := row.Scan(&id, &sequence, &userID, &url, &bucket, &objectKey, &fileType, &isSaved, &pairID, &createdAt); err != nil {
		return nil, err
	}

	file := models.NewAudioFile(userID, models.FileType(fileType), bucket, objectKey, url)
	file.SetID(id)
	file.SetSequence(sequence)
	file.SetSaved(isSaved)
	file.SetPairID(pairID.String)
	file.SetCreatedAt(createdAt)
	return file, nil
}
