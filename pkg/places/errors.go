package places

import (
	"fmt"

	"github.com/shacharon/tavola/pkg/models"
)

// ErrorKind is the transport-level failure taxonomy of the adapter.
type ErrorKind string

// Transport failure kinds.
const (
	KindDNSFail      ErrorKind = "DNS_FAIL"
	KindTimeout      ErrorKind = "TIMEOUT"
	KindAbort        ErrorKind = "ABORT"
	KindHTTPError    ErrorKind = "HTTP_ERROR"
	KindNetworkError ErrorKind = "NETWORK_ERROR"
)

// Error is the typed failure returned by every provider call.
type Error struct {
	Kind       ErrorKind
	HTTPStatus int // set when Kind == KindHTTPError
	Err        error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("provider %s (status %d): %v", e.Kind, e.HTTPStatus, e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// DomainCode maps the transport failure to the wire-level error taxonomy.
// Provider 400s are the caller's fault; 429 is quota; 5xx and timeouts are
// upstream trouble.
func (e *Error) DomainCode() string {
	switch e.Kind {
	case KindDNSFail:
		return models.CodeDNSFail
	case KindTimeout, KindAbort:
		return models.CodeUpstreamTimeout
	case KindNetworkError:
		return models.CodeNetworkError
	case KindHTTPError:
		switch {
		case e.HTTPStatus == 429:
			return models.CodeRateLimited
		case e.HTTPStatus >= 500:
			return models.CodeUpstreamTimeout
		default:
			return models.CodeValidationError
		}
	}
	return models.CodeHTTPError
}

// retryable reports whether a fresh attempt could succeed:
// 5xx, quota, network trouble, and DNS hiccups. Timeouts consume the
// per-call budget so retrying them is pointless; aborts are deliberate.
func (e *Error) retryable() bool {
	switch e.Kind {
	case KindNetworkError, KindDNSFail:
		return true
	case KindHTTPError:
		return e.HTTPStatus == 429 || e.HTTPStatus >= 500
	}
	return false
}
