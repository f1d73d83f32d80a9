package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"             // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized"        // Authentication required
	EFORBIDDEN    = "forbidden"           // Permission denied
	ENOTFOUND     = "not_found"           // Resource not found
	ECONFLICT     = "conflict"            // Resource conflict (e.g., duplicate)
	ETOOLARGE     = "too_large"           // Request entity too large
	ERATELIMIT    = "rate_limit"          // Rate limit exceeded
	EINTERNAL     = "internal"            // Internal server error
	EPAYMENT      = "payment"             // Payment required
	EUNAVAILABLE  = "unavailable"         // Upstream dependency failed
	EQUOTA        = "quota_exceeded"      // Numeric plan ceiling would be crossed
	EFEATURE      = "feature_unavailable" // Feature flag off for the plan
	ELIMITREACHED = "limit_reached"       // Monthly AI spend or reasoning sub-quota exhausted
	ECONFIG       = "configuration"       // Plan or pricing configuration missing
	ESTORAGE      = "storage_write"       // Usage ledger write failed
)

// Error represents an application error with structured information.
type Error struct {
	Code    string // Machine-readable error code
	Op      string // Operation that failed (e.g., "quota.check")
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the human-readable message of the error.
// System faults (internal, configuration, ledger writes) get a generic message.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		switch e.Code {
		case EINTERNAL, ECONFIG, ESTORAGE:
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Op:      op,
		Message: message,
	}
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// Unavailable creates an error for a failed upstream dependency (LLM, object storage).
func Unavailable(err error, op, message string) *Error {
	return &Error{
		Code:    EUNAVAILABLE,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// Configuration creates a configuration error. These are never treated as an allow.
func Configuration(err error, op, message string) *Error {
	return &Error{
		Code:    ECONFIG,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// StorageWrite creates an error for a failed usage ledger write.
func StorageWrite(err error, op string, counter Counter) *Error {
	return &Error{
		Code:    ESTORAGE,
		Op:      op,
		Message: fmt.Sprintf("failed to record %s usage", counter),
		Err:     err,
	}
}

// =============================================================================
// Quota errors
// =============================================================================

// QuotaExceededError reports a numeric plan ceiling that a request would cross.
// It unwraps to a *Error with code EQUOTA so generic handling still applies.
type QuotaExceededError struct {
	Op        string
	Metric    Metric
	Current   float64
	Requested float64
	Limit     int64
}

func (e *QuotaExceededError) Error() string {
	return DenialMessage(e.Metric, e.Current, e.Requested, e.Limit)
}

func (e *QuotaExceededError) Unwrap() error {
	return &Error{Code: EQUOTA, Op: e.Op, Message: e.Error()}
}

// QuotaExceeded creates a QuotaExceededError.
func QuotaExceeded(op string, metric Metric, current, requested float64, limit int64) *QuotaExceededError {
	return &QuotaExceededError{
		Op:        op,
		Metric:    metric,
		Current:   current,
		Requested: requested,
		Limit:     limit,
	}
}

// FeatureNotAvailableError reports a boolean feature flag that is off for the plan.
type FeatureNotAvailableError struct {
	Op      string
	Feature string
	PlanID  PlanID
}

func (e *FeatureNotAvailableError) Error() string {
	return FeatureDeniedMessage(e.Feature)
}

func (e *FeatureNotAvailableError) Unwrap() error {
	return &Error{Code: EFEATURE, Op: e.Op, Message: e.Error()}
}

// FeatureNotAvailable creates a FeatureNotAvailableError.
func FeatureNotAvailable(op, feature string, planID PlanID) *FeatureNotAvailableError {
	return &FeatureNotAvailableError{Op: op, Feature: feature, PlanID: planID}
}

// LimitKind distinguishes the two Cost Guard ceilings.
type LimitKind string

const (
	LimitKindCost      LimitKind = "cost"
	LimitKindReasoning LimitKind = "reasoning"
)

// LimitReachedError reports an exhausted monthly AI spend ceiling or reasoning sub-quota.
type LimitReachedError struct {
	Op      string
	Kind    LimitKind
	Current float64
	Limit   float64
}

func (e *LimitReachedError) Error() string {
	if e.Kind == LimitKindReasoning {
		return fmt.Sprintf("Monthly Reasoning (o1) limit exceeded (%d/%d). Please upgrade or wait for next month.",
			int64(e.Current), int64(e.Limit))
	}
	return fmt.Sprintf("Monthly API usage limit exceeded (%.4f / %.2f USD). Please upgrade your plan.",
		e.Current, e.Limit)
}

func (e *LimitReachedError) Unwrap() error {
	return &Error{Code: ELIMITREACHED, Op: e.Op, Message: e.Error()}
}

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

func (e *ValidationError) Unwrap() error {
	return &Error{Code: EINVALID, Op: e.Op, Message: "Validation failed"}
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}

// AddFieldError adds a field error to an existing validation error.
// If err is not a ValidationError, returns a new one.
func AddFieldError(err error, field, message string) *ValidationError {
	var ve *ValidationError
	if errors.As(err, &ve) {
		ve.Fields[field] = message
		return ve
	}
	return NewValidationError("", field, message)
}
