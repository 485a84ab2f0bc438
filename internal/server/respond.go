package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/harmonymaker/internal/shared"
)

const maxJSONBody = 1 << 20

// ErrorBody is the JSON envelope of every error response.
type ErrorBody struct {
	Status     string `json:"status"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}

// WriteJSON writes v as JSON with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError maps err to an [shared.HTTPError], logs its internal detail and writes the error envelope.
// logger may be nil.
func WriteError(w http.ResponseWriter, logger *log.Logger, err error) {
	he := shared.AsHTTPError(err)

	if logger != nil {
		if he.Status >= 500 {
			logger.Error(he.Log)
		} else {
			logger.Debug(he.Log)
		}
	}

	WriteJSON(w, he.Status, ErrorBody{Status: "error", StatusCode: he.Status, Message: he.Message})
}

// DecodeJSON reads a JSON request body of at most 1MB into v.
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return shared.NewHTTPError(http.StatusBadRequest, "Invalid JSON body", fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
	}
	return nil
}
