// Package response renders JSON payloads and engine errors for the admin API
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/conduit-lang/admin/internal/orm/errs"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Message string                 `json:"message"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ValidationErrorResponse represents validation errors
type ValidationErrorResponse struct {
	Error   string              `json:"error"`
	Message string              `json:"message"`
	Code    string              `json:"code"`
	Entity  string              `json:"entity,omitempty"`
	Fields  map[string][]string `json:"fields"`
}

// JSON writes payload with the given status
func JSON(w http.ResponseWriter, status int, payload interface{}) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if payload == nil {
		return nil
	}
	return json.NewEncoder(w).Encode(payload)
}

// StatusFor maps an engine error to its HTTP status
func StatusFor(err error) int {
	switch errs.Classify(err) {
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindInvalidQuery:
		return http.StatusBadRequest
	case errs.KindValidation:
		return http.StatusUnprocessableEntity
	case errs.KindConcurrentModification, errs.KindIntegrity:
		return http.StatusConflict
	case errs.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RenderEngineError renders an error returned by the engine. Errors outside
// the engine taxonomy render as a 500 without their message.
func RenderEngineError(w http.ResponseWriter, err error) {
	if verr, ok := errs.AsValidation(err); ok {
		RenderValidationError(w, verr)
		return
	}

	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		RenderInternalError(w)
		return
	}

	resp := &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    errs.Classify(err).String(),
		Details: details(err),
	}
	_ = JSON(w, status, resp)
}

func details(err error) map[string]interface{} {
	var cm *errs.ConcurrentModificationError
	if errors.As(err, &cm) {
		return map[string]interface{}{"expected": cm.Expected, "actual": cm.Actual}
	}
	var ie *errs.IntegrityError
	if errors.As(err, &ie) && ie.Dependent != "" {
		return map[string]interface{}{
			"dependent":    ie.Dependent,
			"relationship": ie.Relationship,
			"count":        ie.Count,
		}
	}
	var iq *errs.InvalidQueryError
	if errors.As(err, &iq) && iq.Field != "" {
		return map[string]interface{}{"field": iq.Field}
	}
	return nil
}

// RenderError renders a standard error response
func RenderError(w http.ResponseWriter, statusCode int, err error) {
	_ = JSON(w, statusCode, &ErrorResponse{
		Error:   "error",
		Message: err.Error(),
		Code:    errorCodeFromStatus(statusCode),
	})
}

// RenderValidationError renders validation errors
func RenderValidationError(w http.ResponseWriter, verr *errs.ValidationError) {
	_ = JSON(w, http.StatusUnprocessableEntity, &ValidationErrorResponse{
		Error:   "validation_failed",
		Message: "The request contains invalid data",
		Code:    "validation_error",
		Entity:  verr.Entity,
		Fields:  verr.Fields,
	})
}

// RenderBadRequest renders a 400 Bad Request error
func RenderBadRequest(w http.ResponseWriter, message string) {
	RenderError(w, http.StatusBadRequest, errors.New(message))
}

// RenderUnauthorized renders a 401 Unauthorized error
func RenderUnauthorized(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Authentication required"
	}
	w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
	RenderError(w, http.StatusUnauthorized, errors.New(message))
}

// RenderNotFound renders a 404 Not Found error
func RenderNotFound(w http.ResponseWriter, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RenderError(w, http.StatusNotFound, errors.New(message))
}

// RenderMethodNotAllowed renders a 405 Method Not Allowed error
func RenderMethodNotAllowed(w http.ResponseWriter) {
	RenderError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

// RenderInternalError renders a 500 Internal Server Error. Internal details
// stay in the server log.
func RenderInternalError(w http.ResponseWriter) {
	RenderError(w, http.StatusInternalServerError, errors.New("Internal server error"))
}

// errorCodeFromStatus maps HTTP status codes to error codes
func errorCodeFromStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "request_too_large"
	case http.StatusUnsupportedMediaType:
		return "unsupported_media_type"
	case http.StatusUnprocessableEntity:
		return "unprocessable_entity"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return "error"
	}
}
