package dispatcher

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound    = errors.New("discord: unknown resource")
	ErrForbidden   = errors.New("discord: missing permissions")
	ErrRateLimited = errors.New("discord: rate limited")
	ErrServer      = errors.New("discord: server error")
)

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Route      string        `json:"-"`
	Status     int           `json:"-"`
	Code       int           `json:"code"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"-"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: HTTP %d (%d %s)", e.Route, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Route, e.Status)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == 404:
		return ErrNotFound
	case e.Status == 403:
		return ErrForbidden
	case e.Status == 429:
		return ErrRateLimited
	case e.Status >= 500:
		return ErrServer
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) || isTransport(err)
}

// transportError marks failures below HTTP (dial, timeout, reset).
type transportError struct{ err error }

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func isTransport(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}
