package httpapi

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	riseerrors "github.com/rise-sh/rise/internal/errors"
)

// apiError is a JSON error envelope; handlers that need a specific
// status code return one of these to writeError.
type apiError struct {
	status int
	msg    string
}

func (e *apiError) Error() string { return e.msg }

func badRequest(msg string) error { return &apiError{status: http.StatusBadRequest, msg: msg} }
func forbidden(msg string) error  { return &apiError{status: http.StatusForbidden, msg: msg} }
func unauthorized(msg string) error {
	return &apiError{status: http.StatusUnauthorized, msg: msg}
}

func isNotFound(err error) bool {
	return riseerrors.IsDeploymentNotFound(err) || errors.Is(err, sql.ErrNoRows)
}

// mapStoreError classifies an error returned by the store into an HTTP
// status, per spec.md §7's propagation policy: handlers never swallow
// store errors, they map them straight to a response.
func mapStoreError(err error) (int, string) {
	switch {
	case isNotFound(err):
		return http.StatusNotFound, "not found"
	case riseerrors.IsIllegalTransition(err):
		return http.StatusConflict, err.Error()
	case riseerrors.IsConstraintViolation(err), riseerrors.IsSerializationFailure(err):
		return http.StatusConflict, "a concurrent update conflicted with this request, retry"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError renders err as a JSON error body. If err is an *apiError
// its status/message are used verbatim; otherwise status is used as a
// fallback and the error is classified via mapStoreError when status is
// zero.
func writeError(w http.ResponseWriter, status int, err error) {
	var ae *apiError
	if errors.As(err, &ae) {
		status = ae.status
	} else if status == 0 {
		status, _ = mapStoreError(err)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
