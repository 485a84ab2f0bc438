package models

import (
	"fmt"
	"time"
)

// FileType distinguishes an uploaded clip from the clip produced by the transform service.
type FileType string

const (
	FileTypeOriginal    FileType = "original"
	FileTypeTransformed FileType = "transformed"
)

// Valid reports whether t is a known file type.
func (t FileType) Valid() bool {
	return t == FileTypeOriginal || t == FileTypeTransformed
}

// AudioFile is one stored clip and where its binary lives in object storage.
type AudioFile struct {
	id        string
	sequence  int
	userID    string
	url       string
	bucket    string
	objectKey string
	fileType  FileType
	isSaved   bool
	pairID    string
	createdAt time.Time
}

// NewAudioFile creates an [AudioFile] for an object already written to bucket/objectKey.
func NewAudioFile(userID string, fileType FileType, bucket, objectKey, url string) *AudioFile {
	return &AudioFile{
		userID:    userID,
		fileType:  fileType,
		bucket:    bucket,
		objectKey: objectKey,
		url:       url,
		isSaved:   true,
		createdAt: time.Now().UTC(),
	}
}

func (a *AudioFile) ID() string { return a.id }
func (a *AudioFile) Sequence() int { return a.sequence }
func (a *AudioFile) UserID() string { return a.userID }
func (a *AudioFile) URL() string { return a.url }
func (a *AudioFile) Bucket() string { return a.bucket }
func (a *AudioFile) ObjectKey() string { return a.objectKey }
func (a *AudioFile) FileType() FileType { return a.fileType }
func (a *AudioFile) IsSaved() bool { return a.isSaved }
func (a *AudioFile) PairID() string { return a.pairID }
func (a *AudioFile) CreatedAt() time.Time { return a.createdAt }

func (a *AudioFile) SetID(id string) { a.id = id }
func (a *AudioFile) SetSequence(seq int) { a.sequence = seq }
func (a *AudioFile) SetPairID(id string) { a.pairID = id }
func (a *AudioFile) SetSaved(saved bool) { a.isSaved = saved }
func (a *AudioFile) SetCreatedAt(t time.Time) { a.createdAt = t }

// Validate checks required fields and the pair linkage rule.
func (a *AudioFile) Validate() error {
	switch {
	case a.userID == "":
		return fmt.Errorf("user id is required")
	case a.url == "":
		return fmt.Errorf("audio url is required")
	case a.bucket == "" || a.objectKey == "":
		return fmt.Errorf("storage location is required")
	case !a.fileType.Valid():
		return fmt.Errorf("invalid file type %q", a.fileType)
	case a.fileType == FileTypeOriginal && a.pairID != "":
		return fmt.Errorf("original audio cannot reference a pair")
	}
	return nil
}

// AudioPair is an original clip joined to its transformed counterpart.
//
// TransformedURL is empty when the original has no transformed row.
type AudioPair struct {
	OriginalID     string    `json:"original_id"`
	OriginalURL    string    `json:"original_url"`
	TransformedID  string    `json:"transformed_id,omitempty"`
	TransformedURL string    `json:"transformed_url"`
	CreatedAt      time.Time `json:"created_at"`
}
