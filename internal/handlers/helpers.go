package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/mchen/ripple/pkg/errors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps application error codes onto HTTP statuses and emits
// the AppError as the response body.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.CodeOf(err) {
	case errors.CodeNotFound:
		status = http.StatusNotFound
	case errors.CodeInvalidTarget, errors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case errors.CodeAlreadyResolved:
		status = http.StatusConflict
	case errors.CodeStoreUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]string{
		"code":  string(errors.CodeOf(err)),
		"error": err.Error(),
	})
}
