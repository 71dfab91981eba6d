package tts

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type openAISynth struct {
	client *openai.Client
	model  openai.SpeechModel
}

func NewOpenAISynth(apiKey, endpoint, model string) Synthesizer {
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	m := openai.TTSModel1
	if model != "" {
		m = openai.SpeechModel(model)
	}
	return &openAISynth{client: openai.NewClientWithConfig(cfg), model: m}
}

func (o *openAISynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	voice := openai.VoiceAlloy
	// Google-style names such as he-IL-Wavenet-A mean nothing to this backend.
	if name := req.Voice.Name; name != "" && !strings.Contains(name, "-") {
		voice = openai.SpeechVoice(strings.ToLower(name))
	}
	format, encoding := openai.SpeechResponseFormatMp3, EncodingMP3
	switch strings.ToUpper(req.Encoding) {
	case EncodingLinear16:
		format, encoding = openai.SpeechResponseFormatWav, EncodingLinear16
	case EncodingOggOpus:
		format, encoding = openai.SpeechResponseFormatOpus, EncodingOggOpus
	}

	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.model,
		Input:          req.Text,
		Voice:          voice,
		ResponseFormat: format,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("openai speech: %w", err)
	}
	defer resp.Close()

	data, err := io.ReadAll(resp)
	if err != nil {
		return Audio{}, fmt.Errorf("read openai speech: %w", err)
	}
	return newAudio(data, encoding)
}
