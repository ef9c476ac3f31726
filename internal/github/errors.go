package github

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind is a closed classification of remote API failures. Callers branch
// on the kind instead of re-deriving meaning from raw status codes.
type ErrorKind int

const (
	// KindTransport is a failure with no HTTP status at all (DNS, timeout,
	// connection reset).
	KindTransport ErrorKind = iota
	// KindAuth is 401: bad or expired token.
	KindAuth
	// KindForbidden is 403 without a rate-limit message: missing permission.
	KindForbidden
	// KindRateLimited is 429, or 403 whose message indicates rate limiting.
	KindRateLimited
	// KindNotFound is 404.
	KindNotFound
	// KindValidation is 422: the request was understood and rejected.
	KindValidation
	// KindAPI is any other non-2xx status.
	KindAPI
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation"
	default:
		return "api"
	}
}

// APIError is a classified remote failure, annotated with the operation that
// produced it.
type APIError struct {
	Op         string // operation name, e.g. "create_issue"
	Kind       ErrorKind
	StatusCode int // 0 for transport errors
	Message    string
	Err        error // underlying transport error, if any
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("github %s: %s: %s", e.Op, e.Kind, e.Message)
	}
	return fmt.Sprintf("github %s: %s (status %d): %s", e.Op, e.Kind, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is worth another attempt: 429,
// server errors, and transport-level failures. Other client errors are
// permanent.
func (e *APIError) Retryable() bool {
	if e.Kind == KindTransport {
		return true
	}
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// githubMessage is the error payload shape GitHub returns.
type githubMessage struct {
	Message string `json:"message"`
}

// classify maps an HTTP failure to an APIError.
func classify(op string, status int, body []byte) *APIError {
	msg := string(body)
	var payload githubMessage
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		msg = payload.Message
	}

	kind := KindAPI
	switch status {
	case 401:
		kind = KindAuth
	case 403:
		if strings.Contains(strings.ToLower(msg), "rate limit") {
			kind = KindRateLimited
		} else {
			kind = KindForbidden
		}
	case 404:
		kind = KindNotFound
	case 422:
		kind = KindValidation
	case 429:
		kind = KindRateLimited
	}

	return &APIError{Op: op, Kind: kind, StatusCode: status, Message: msg}
}

// transportError wraps a failure that never produced an HTTP status.
func transportError(op string, err error) *APIError {
	return &APIError{Op: op, Kind: KindTransport, Message: err.Error(), Err: err}
}
