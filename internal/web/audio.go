package web

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/desertthunder/harmonymaker/internal/models"
	"github.com/desertthunder/harmonymaker/internal/server"
	"github.com/desertthunder/harmonymaker/internal/shared"
	"github.com/desertthunder/harmonymaker/internal/tasks"
)

// multipartMemory is the part of a form kept in memory; larger files spill to temp files.
const multipartMemory = 10 << 20

type dataResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

func (a *App) upload(w http.ResponseWriter, r *http.Request) {
	files, err := a.readFiles(w, r, "file")
	defer removeForm(r)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	id := server.IdentityFrom(r.Context())
	result, err := a.pipeline.Harmonize(r.Context(), id.ID, files["file"], nil)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, dataResponse{Success: true, Data: result})
}

// transform returns the harmonized clip without storing anything.
func (a *App) transform(w http.ResponseWriter, r *http.Request) {
	files, err := a.readFiles(w, r, "file")
	defer removeForm(r)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	up := files["file"]
	out, err := a.pipeline.Transform(r.Context(), up)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	caller := "anonymous"
	if id := server.IdentityFrom(r.Context()); id != nil {
		caller = id.ID
	}
	a.logger.Debug("transformed clip", "caller", caller, "filename", up.Filename, "bytes", len(out))

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", tasks.TransformedWAVName(up.Filename)))
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

func (a *App) save(w http.ResponseWriter, r *http.Request) {
	files, err := a.readFiles(w, r, "original", "transformed")
	defer removeForm(r)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	id := server.IdentityFrom(r.Context())
	result, err := a.pipeline.SavePair(r.Context(), id.ID, files["original"], files["transformed"])
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, dataResponse{Success: true, Data: result})
}

func (a *App) pairs(w http.ResponseWriter, r *http.Request) {
	userID, err := ownUser(r)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	pairs, err := a.pipeline.Pairs(r.Context(), userID)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}
	if pairs == nil {
		pairs = []models.AudioPair{}
	}

	server.WriteJSON(w, http.StatusOK, dataResponse{Success: true, Data: pairs})
}

func (a *App) deletePair(w http.ResponseWriter, r *http.Request) {
	userID, err := ownUser(r)
	if err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	if err := a.pipeline.DeletePair(r.Context(), userID, r.PathValue("original_id")); err != nil {
		server.WriteError(w, a.logger, err)
		return
	}

	server.WriteJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Audio deleted"})
}

// ownUser returns the {user_id} path value when it belongs to the caller.
func ownUser(r *http.Request) (string, error) {
	userID := r.PathValue("user_id")
	if id := server.IdentityFrom(r.Context()); id == nil || id.ID != userID {
		return "", shared.NewHTTPError(http.StatusForbidden, "Forbidden", shared.ErrForbidden)
	}
	return userID, nil
}

// readFiles parses a multipart request and reads each named file field.
// A missing field is a 400; the body is capped at one max-size file per field plus form overhead.
func (a *App) readFiles(w http.ResponseWriter, r *http.Request, fields ...string) (map[string]tasks.Upload, error) {
	limit := a.pipeline.MaxSize()*int64(len(fields)) + 1<<20
	r.Body = http.MaxBytesReader(w, r.Body, limit)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, shared.NewHTTPError(http.StatusRequestEntityTooLarge, "File too large", fmt.Errorf("%w: %v", shared.ErrFileTooLarge, err))
		}
		return nil, shared.NewHTTPError(http.StatusBadRequest, "No file uploaded", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
	}

	uploads := make(map[string]tasks.Upload, len(fields))
	for _, field := range fields {
		headers := r.MultipartForm.File[field]
		if len(headers) == 0 {
			return nil, shared.NewHTTPError(http.StatusBadRequest, "No file uploaded",
				fmt.Errorf("%w: missing %s file", shared.ErrMissingArgument, field))
		}

		fh := headers[0]
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", field, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", field, err)
		}

		uploads[field] = tasks.Upload{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Data:        data,
		}
	}
	return uploads, nil
}

func removeForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}
