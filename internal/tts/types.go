package tts

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyAudio is returned when a backend answered without audio bytes.
var ErrEmptyAudio = errors.New("synthesis returned no audio")

// Supported audio encodings.
const (
	EncodingMP3      = "MP3"
	EncodingLinear16 = "LINEAR16"
	EncodingOggOpus  = "OGG_OPUS"
)

// VoiceSelection picks a voice by language and name. Empty fields fall back
// to the configured defaults.
type VoiceSelection struct {
	LanguageCode string
	Name         string
}

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	RequestID string
	Text      string
	Voice     VoiceSelection
	Encoding  string
}

// Audio is one complete synthesized artifact.
type Audio struct {
	Data        []byte
	Encoding    string
	ContentType string
}

// Voice describes a voice offered by a backend.
type Voice struct {
	Name            string   `json:"name"`
	LanguageCodes   []string `json:"languageCodes"`
	Gender          string   `json:"gender,omitempty"`
	NaturalSampleHz int      `json:"naturalSampleRateHertz,omitempty"`
}

// Synthesizer is the contract for producing audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (Audio, error)
}

// VoiceLister is implemented by backends able to enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context, languageCode string) ([]Voice, error)
}

// ContentType maps an encoding name to its MIME type.
func ContentType(encoding string) string {
	switch strings.ToUpper(encoding) {
	case EncodingLinear16:
		return "audio/wav"
	case EncodingOggOpus:
		return "audio/ogg"
	default:
		return "audio/mpeg"
	}
}

func newAudio(data []byte, encoding string) (Audio, error) {
	if len(data) == 0 {
		return Audio{}, ErrEmptyAudio
	}
	encoding = strings.ToUpper(encoding)
	if encoding == "" {
		encoding = EncodingMP3
	}
	return Audio{Data: data, Encoding: encoding, ContentType: ContentType(encoding)}, nil
}
