// Package handler contains the HTTP handlers for the console API.
//
// Every response is JSON. Errors are written by ErrorResponse, which maps
// domain error codes to HTTP status codes.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/govai/console/internal/domain"
)

// ErrorResponse writes an error response to the client.
// It maps domain error codes to HTTP status codes. Quota and cost denials
// carry the metric, current amount and limit alongside the message.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	// Extract structured info from error
	code := domain.ErrorCode(err)
	op := domain.ErrorOp(err)

	// Map to HTTP status
	status := ErrorCodeToHTTPStatus(code)

	// Log error with context
	logError(logger, r, err, code, op, status)

	body := JSONError{}
	body.Error.Code = code
	body.Error.Message = localizedMessage(r, err)
	addDenialDetails(&body, err)

	writeJSON(w, status, body)
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.EFORBIDDEN, domain.EFEATURE:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ETOOLARGE:
		return http.StatusRequestEntityTooLarge // 413
	case domain.ERATELIMIT, domain.EQUOTA, domain.ELIMITREACHED:
		return http.StatusTooManyRequests // 429
	case domain.EUNAVAILABLE, domain.ESTORAGE:
		return http.StatusServiceUnavailable // 503
	case domain.EINTERNAL, domain.ECONFIG:
		return http.StatusInternalServerError // 500
	default:
		return http.StatusInternalServerError // 500
	}
}

// addDenialDetails fills the structured fields of quota and cost denials.
func addDenialDetails(body *JSONError, err error) {
	var qe *domain.QuotaExceededError
	var fe *domain.FeatureNotAvailableError
	var le *domain.LimitReachedError
	switch {
	case errors.As(err, &qe):
		limit := float64(qe.Limit)
		body.Error.Metric = string(qe.Metric)
		body.Error.Current = &qe.Current
		body.Error.Requested = &qe.Requested
		body.Error.Limit = &limit
	case errors.As(err, &fe):
		body.Error.Metric = fe.Feature
		body.Error.Plan = string(fe.PlanID)
	case errors.As(err, &le):
		body.Error.Metric = string(le.Kind)
		body.Error.Current = &le.Current
		body.Error.Limit = &le.Limit
	}
}

// ValidationErrorResponse writes validation errors (field-level) to the response.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		// Not a validation error, fall back to standard error response
		ErrorResponse(w, r, logger, err)
		return
	}

	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
	)

	body := JSONError{}
	body.Error.Code = domain.EINVALID
	body.Error.Message = localizedMessage(r, domain.Invalid("", "Validation failed"))
	body.Error.Fields = ve.Fields
	writeJSON(w, http.StatusBadRequest, body)
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found")
	ErrorResponse(w, r, logger, err)
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EUNAUTHORIZED, "", "Authentication required")
	ErrorResponse(w, r, logger, err)
}

// ForbiddenResponse is a convenience wrapper for 403 errors.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.EFORBIDDEN, "", "You don't have permission to access this resource")
	ErrorResponse(w, r, logger, err)
}

// InternalErrorResponse logs the error and returns a generic 500 response.
// The underlying error details are hidden from the user.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	wrappedErr := domain.Internal(err, "", "An unexpected error occurred")
	ErrorResponse(w, r, logger, wrappedErr)
}

// logError logs the error with appropriate level based on status code.
func logError(logger *slog.Logger, r *http.Request, err error, code, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}

	// Add operation if present
	if op != "" {
		attrs = append(attrs, "op", op)
	}

	// Log level based on status code:
	// - 5xx errors are server-side faults
	// - 4xx errors are info (client errors and quota denials, expected)
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError is a typed response structure for API errors.
type JSONError struct {
	Error struct {
		Code      string            `json:"code"`
		Message   string            `json:"message"`
		Metric    string            `json:"metric,omitempty"`
		Plan      string            `json:"plan,omitempty"`
		Current   *float64          `json:"current,omitempty"`
		Requested *float64          `json:"requested,omitempty"`
		Limit     *float64          `json:"limit,omitempty"`
		Fields    map[string]string `json:"fields,omitempty"`
	} `json:"error"`
}
