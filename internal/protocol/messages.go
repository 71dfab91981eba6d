package protocol

import "time"

// VoiceSelection names a synthesis voice.
type VoiceSelection struct {
	LanguageCode string `json:"languageCode,omitempty"`
	Name         string `json:"name,omitempty"`
}

// SynthesizeRequest is the body accepted by the synthesis endpoint.
type SynthesizeRequest struct {
	OriginalText string          `json:"originalText"`
	Tone         string          `json:"tone"`
	Voice        *VoiceSelection `json:"voice,omitempty"`
}

// SynthesizeResponse carries the rewritten text and base64 encoded audio.
type SynthesizeResponse struct {
	RewrittenText string `json:"rewrittenText"`
	AudioContent  string `json:"audioContent"`
}

// ErrorResponse is returned for every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Fixed error texts exposed to callers.
const (
	ErrTextMissingFields = "Original text and tone are required"
	ErrTextProcessing    = "Failed to process request"
	ErrTextMalformedBody = "Invalid request body"
	ErrTextForbidden     = "Origin not allowed"
	ErrTextNoVoiceList   = "Voice listing not supported"
	ErrTextBadQuery      = "Invalid query parameter"
	ErrTextNotFound      = "Not found"
)

// SynthesisEvent is published on the bus once a request finishes.
type SynthesisEvent struct {
	RequestID     string    `json:"request_id"`
	Outcome       string    `json:"outcome"`
	Stage         string    `json:"stage,omitempty"`
	Tone          string    `json:"tone"`
	Voice         string    `json:"voice,omitempty"`
	OriginalChars int       `json:"original_chars"`
	RewriteChars  int       `json:"rewrite_chars,omitempty"`
	AudioBytes    int       `json:"audio_bytes,omitempty"`
	Encoding      string    `json:"encoding,omitempty"`
	DurationMS    int64     `json:"duration_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

const (
	SubjectSynthesisCompleted = "synthesis.completed"
	SubjectSynthesisFailed    = "synthesis.failed"

	// StreamSynthesis retains synthesis events when JetStream is available.
	StreamSynthesis     = "SYNTHESIS"
	SubjectSynthesisAll = "synthesis.>"
)

// Backend describes one upstream a gateway instance is wired to.
type Backend struct {
	Kind  string `json:"kind"`
	Mode  string `json:"mode"`
	Model string `json:"model,omitempty"`
}

// GatewayAnnounce is sent once when an instance joins the bus.
type GatewayAnnounce struct {
	InstanceID string    `json:"instance_id"`
	Service    string    `json:"service"`
	Backends   []Backend `json:"backends"`
	Timestamp  time.Time `json:"timestamp"`
}

type GatewayHeartbeat struct {
	InstanceID string    `json:"instance_id"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	SubjectGatewayAnnounce  = "gateway.announce"
	SubjectGatewayHeartbeat = "gateway.heartbeat.*"
)

// GatewayHeartbeatSubject is the heartbeat subject of one instance.
func GatewayHeartbeatSubject(instanceID string) string {
	return "gateway.heartbeat." + instanceID
}
