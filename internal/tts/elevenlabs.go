package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultElevenLabsEndpoint = "https://api.elevenlabs.io"
	defaultElevenLabsModel    = "eleven_multilingual_v2"
	// Rachel, a stock multilingual voice.
	defaultElevenLabsVoice = "21m00Tcm4TlvDq8ikWAM"
)

type elevenLabsSynth struct {
	apiKey   string
	endpoint string
	model    string
	client   *http.Client
}

func NewElevenLabsSynth(apiKey, endpoint, model string, client *http.Client) Synthesizer {
	if endpoint == "" {
		endpoint = defaultElevenLabsEndpoint
	}
	if model == "" {
		model = defaultElevenLabsModel
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &elevenLabsSynth{apiKey: apiKey, endpoint: strings.TrimRight(endpoint, "/"), model: model, client: client}
}

type elevenLabsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

func (e *elevenLabsSynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	voiceID := defaultElevenLabsVoice
	if name := req.Voice.Name; name != "" && !strings.Contains(name, "-") {
		voiceID = name
	}
	payload, err := json.Marshal(elevenLabsRequest{Text: req.Text, ModelID: e.model})
	if err != nil {
		return Audio{}, err
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", e.endpoint, voiceID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return Audio{}, err
	}
	httpReq.Header.Set("xi-api-key", e.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return Audio{}, fmt.Errorf("elevenlabs request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Audio{}, fmt.Errorf("elevenlabs returned status %s: %s", resp.Status, bytes.TrimSpace(b))
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Audio{}, fmt.Errorf("read elevenlabs audio: %w", err)
	}
	return newAudio(data, EncodingMP3)
}
