package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error is a gateway rejection carrying the HTTP status the processor sent.
type Error struct {
	Op         string
	HTTPStatus int
	Code       string
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %s: %d %s: %s", e.Op, e.HTTPStatus, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %s: %d: %s", e.Op, e.HTTPStatus, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// GatewayFailure exposes the failure for error dumps.
func (e *Error) GatewayFailure() (string, int, string) {
	return e.Op, e.HTTPStatus, e.Code
}

// IsRetryable classifies gateway failures. Network errors, timeouts, 429 and
// 5xx are transient; every other 4xx is permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var gwErr *Error
	if errors.As(err, &gwErr) && gwErr.HTTPStatus != 0 {
		return gwErr.HTTPStatus == http.StatusTooManyRequests || gwErr.HTTPStatus >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	// No HTTP status means the request never got an answer.
	return gwErr != nil
}

// IsNotFound reports a 404 from the gateway.
func IsNotFound(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.HTTPStatus == http.StatusNotFound
}
