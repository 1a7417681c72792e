package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTransport indicates the server could not be reached at all.
	// Reads recover from cache and writes are queued before this is surfaced.
	ErrTransport = errors.New("network unreachable")
	// ErrUnauthorized indicates credentials are invalid and refresh was
	// unavailable or failed. Never masked by cached data.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrServer indicates a non-2xx response other than unauthorized.
	ErrServer = errors.New("server error")
	// ErrStorage indicates a local persistence failure.
	ErrStorage = errors.New("local storage failure")
	// ErrSyncInProgress indicates a reconcile pass is already running.
	ErrSyncInProgress = errors.New("reconcile already in progress")
)

// ServerError carries the status detail of a rejected request.
// errors.Is(err, ErrServer) matches it.
type ServerError struct {
	Status int
	Detail string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

func (e *ServerError) Is(target error) bool {
	return target == ErrServer
}

func serverError(status int, body []byte) error {
	return &ServerError{Status: status, Detail: errorDetail(body)}
}
