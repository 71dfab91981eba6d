package client

import (
	"errors"
	"fmt"
	"log/slog"
)

var (
	// ErrBusy is returned by Submit while another submission is loading.
	ErrBusy = errors.New("client: submission already in progress")
	// ErrSuperseded is returned when a response arrives after a newer
	// submission or Close invalidated it.
	ErrSuperseded = errors.New("client: response superseded")
)

// ValidationError reports missing input. No request was sent.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// TransportError covers network failures, non-2xx answers and bodies that
// could not be decoded. Status is zero when no response was received.
type TransportError struct {
	Status  int
	Message string
	Err     error
}

func (e *TransportError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("server returned %d: %s: %v", e.Status, e.Message, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	default:
		return e.Message
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
