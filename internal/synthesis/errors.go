package synthesis

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrVoicesUnsupported is returned by Voices when the backend cannot list.
var ErrVoicesUnsupported = errors.New("voice listing not supported by synthesis backend")

// ValidationError reports a request rejected before any backend call.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %v", e.Fields)
}

// Stage names the pipeline step that failed.
type Stage string

const (
	StageRewrite Stage = "rewrite"
	StageTTS     Stage = "tts"
)

// UpstreamError wraps a backend failure with the stage it happened in.
type UpstreamError struct {
	Stage Stage
	Err   error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
