package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "prompt-switcher/internal/common/errors"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorBody{Error: message, Code: code})
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeAppError renders err through the standard error model.
func (h *handlers) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		// client went away; nobody reads the body
		return
	}

	stdErr := apperrors.FromError(err)
	status := apperrors.HTTPStatus(stdErr.Code)

	fields := map[string]interface{}{
		"requestId": RequestIDFromContext(r.Context()),
		"code":      string(stdErr.Code),
		"category":  apperrors.GetErrorCategory(stdErr.Code),
		"status":    status,
	}
	if status >= http.StatusInternalServerError {
		fields["error"] = err
		h.logger.Error("request failed", fields)
	} else {
		h.logger.Debug("request rejected", fields)
	}

	writeJSON(w, status, errorBody{
		Error:   stdErr.Message,
		Code:    string(stdErr.Code),
		Details: stdErr.Details,
	})
}
