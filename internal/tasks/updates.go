package tasks

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// ProgressUpdate represents a progress event during a pipeline run.
//
// Used to send real-time updates to the CLI for display.
type ProgressUpdate struct {
	Phase   Phase  // Pipeline phase
	Step    int    // Current step number
	Total   int    // Total steps in this run
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data
}

// Pipeline phase enumeration
type Phase int

const (
	Validate Phase = iota
	UploadOriginal
	Transform
	UploadTransformed
	Record
	Cleanup
	Done
)

func (p Phase) String() string {
	switch p {
	case Validate:
		return "validate"
	case UploadOriginal:
		return "upload_original"
	case Transform:
		return "transform"
	case UploadTransformed:
		return "upload_transformed"
	case Record:
		return "record"
	case Cleanup:
		return "cleanup"
	case Done:
		return "done"
	default:
		return ""
	}
}

const harmonizeSteps = 5

func validateUpdate(up Upload) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Validate,
		Step:    1,
		Total:   harmonizeSteps,
		Message: fmt.Sprintf("Checking %s (%s, %s)...", up.Filename, up.ContentType, humanize.Bytes(uint64(len(up.Data)))),
	}
}

func uploadOriginalUpdate(bucket string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UploadOriginal,
		Step:    2,
		Total:   harmonizeSteps,
		Message: fmt.Sprintf("Uploading original to %s...", bucket),
	}
}

func transformUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Transform,
		Step:    3,
		Total:   harmonizeSteps,
		Message: "Harmonizing with the ML service...",
	}
}

func uploadTransformedUpdate(bucket string, size int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   UploadTransformed,
		Step:    4,
		Total:   harmonizeSteps,
		Message: fmt.Sprintf("Uploading %s result to %s...", humanize.Bytes(uint64(size)), bucket),
	}
}

func recordUpdate() ProgressUpdate {
	return ProgressUpdate{
		Phase:   Record,
		Step:    5,
		Total:   harmonizeSteps,
		Message: "Recording audio pair...",
	}
}

func cleanupUpdate(count int, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Cleanup,
		Step:    0,
		Total:   harmonizeSteps,
		Message: fmt.Sprintf("✗ %v (removing %d uploaded objects)", err, count),
	}
}

func doneUpdate(result *Result) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Done,
		Step:    harmonizeSteps,
		Total:   harmonizeSteps,
		Message: fmt.Sprintf("✓ Saved pair %s", result.OriginalID),
		Data:    result,
	}
}
