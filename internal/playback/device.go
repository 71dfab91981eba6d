package playback

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNoResource is returned by transport calls when nothing is loaded.
	ErrNoResource = errors.New("no audio loaded")
	// ErrPlayback wraps device failures.
	ErrPlayback = errors.New("playback failed")
)

// Artifact is decoded audio ready to be played.
type Artifact struct {
	Data        []byte
	ContentType string
}

// Device plays one artifact. Start begins or continues from the current
// position, Rewind moves back to zero and leaves the device stopped.
type Device interface {
	Start() error
	Pause() error
	Rewind() error
	Close() error
}

// DeviceFactory opens a device for art. The device calls notify once per
// run with nil on natural completion or the failure cause. Runs ended by
// Rewind or Close are not reported.
type DeviceFactory func(ctx context.Context, art Artifact, notify func(error)) (Device, error)

// Transport is the control surface shared by every playback strategy.
type Transport interface {
	Toggle() error
	Stop() error
	Status() Status
}

func extensionFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "wav"):
		return ".wav"
	case strings.Contains(contentType, "ogg"):
		return ".ogg"
	default:
		return ".mp3"
	}
}
