package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrSessionExpired    = errors.New("session expired")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrEmptyResponse     = errors.New("empty response from server")
	ErrInvalidFile       = errors.New("invalid file")
	ErrDialogClosed      = errors.New("submission dialog is closed")
	ErrSubmitInFlight    = errors.New("a submission is already in progress")
	ErrDuplicateSubmit   = errors.New("duplicate submission")
	ErrSubmissionClosed  = errors.New("assignment no longer accepts submissions")
	ErrInvalidFileFormat = errors.New("invalid file format")
	ErrSchemaValidation  = errors.New("schema validation failed")
)

// Messages the backend (or its rate limiter) is known to produce.
const (
	RateLimitMessage = "Too many requests from this IP, please try again later."
	UploadFailed     = "Upload failed"
	NetworkFailure   = "Network error"
)

// Kind is the structured category of a failure. Callers pick behaviour from
// the kind and never from the message text.
type Kind int

const (
	KindGeneric Kind = iota
	KindValidation
	KindUnauthorized
	KindRateLimit
	KindTransient
	KindTimeout
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindRateLimit:
		return "rate_limit"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	case KindNetwork:
		return "network"
	default:
		return "generic"
	}
}

type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed for field '%s' with value '%v': %s",
		e.Field, e.Value, e.Message)
}

// APIError is a classified failure returned by the backend or the transport.
// Message is the user-facing text.
type APIError struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func NewAPIError(status int, message string) *APIError {
	return &APIError{
		Kind:    Classify(status, message),
		Status:  status,
		Message: message,
	}
}

func NewNetworkError(err error, message string) *APIError {
	return &APIError{
		Kind:    KindNetwork,
		Message: message,
		Err:     err,
	}
}

var substringKinds = []struct {
	needle string
	kind   Kind
}{
	{"too many requests", KindRateLimit},
	{"rate limit", KindRateLimit},
	{"quota exceeded", KindRateLimit},
	{"invalid token", KindUnauthorized},
	{"not authorized", KindUnauthorized},
	{"unauthorized request", KindUnauthorized},
	{"ssl connection issues", KindTransient},
	{"temporarily unavailable", KindTransient},
	{"timed out", KindTimeout},
}

// Classify maps a status code and server message onto a Kind. Message
// markers take precedence over the status so that a 500 carrying
// "temporarily unavailable" is still transient.
func Classify(status int, message string) Kind {
	lower := strings.ToLower(message)
	for _, sk := range substringKinds {
		if strings.Contains(lower, sk.needle) {
			return sk.kind
		}
	}

	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimit
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return KindTransient
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return KindTimeout
	}
	return KindGeneric
}

// KindOf reports the kind of err. Local validation failures are
// KindValidation, unknown errors are KindGeneric.
func KindOf(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	var vErr ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	var vErrPtr *ValidationError
	if errors.As(err, &vErrPtr) {
		return KindValidation
	}
	return KindGeneric
}

// MessageOf returns the user-facing message carried by err, or fallback
// when err carries none.
func MessageOf(err error, fallback string) string {
	if err == nil {
		return fallback
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return fallback
	}
	var vErr ValidationError
	if errors.As(err, &vErr) && vErr.Message != "" {
		return vErr.Message
	}
	return fallback
}

// Policy says whether a failure of some kind is retried automatically.
// MaxAttempts counts the first attempt.
type Policy struct {
	Retry       bool
	MaxAttempts int
	Backoff     time.Duration
}

type RetryTable map[Kind]Policy

func (t RetryTable) Lookup(k Kind) Policy {
	if p, ok := t[k]; ok && p.Retry && p.MaxAttempts > 1 {
		return p
	}
	return Policy{MaxAttempts: 1}
}

// Is and As are re-exported so callers need only this package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
