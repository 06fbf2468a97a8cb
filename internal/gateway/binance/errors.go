package binance

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies an upstream failure for retry decisions.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindRateLimited
	KindClientError
	KindServerError
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindRateLimited:
		return "rate_limited"
	case KindClientError:
		return "client_error"
	case KindServerError:
		return "server_error"
	case KindDecode:
		return "decode_error"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind is worth retrying.
// Client errors and malformed payloads will not heal on retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindRateLimited, KindServerError:
		return true
	default:
		return false
	}
}

// APIError carries the classification and HTTP status of a failed request.
type APIError struct {
	Kind   Kind
	Status int
	Msg    string
	Err    error
}

func (e *APIError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("binance %s (status %d): %s", e.Kind, e.Status, e.Msg)
	}
	return fmt.Sprintf("binance %s: %s", e.Kind, e.Msg)
}

func (e *APIError) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP status code to a failure kind. Binance uses
// 429 for request-weight limits and 418 for IP bans after ignored 429s.
func ClassifyStatus(status int) Kind {
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusTeapot:
		return KindRateLimited
	case status >= 500:
		return KindServerError
	case status >= 400:
		return KindClientError
	default:
		return KindUnknown
	}
}

func classifyTransport(err error) *APIError {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return &APIError{Kind: KindTimeout, Msg: err.Error(), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &APIError{Kind: KindTimeout, Msg: err.Error(), Err: err}
	}
	return &APIError{Kind: KindServerError, Msg: err.Error(), Err: err}
}

// ErrorKind extracts the classification from err, KindUnknown when err is
// not an APIError.
func ErrorKind(err error) Kind {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}
