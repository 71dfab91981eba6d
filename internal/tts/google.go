package tts

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"
)

type googleSynth struct {
	client     *texttospeech.Client
	sampleRate int
}

// NewGoogleSynth connects to Google Cloud Text-to-Speech. With an empty
// credentialsFile the client falls back to application default credentials.
func NewGoogleSynth(ctx context.Context, credentialsFile, endpoint string, sampleRate int) (Synthesizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create text-to-speech client: %w", err)
	}
	return &googleSynth{client: client, sampleRate: sampleRate}, nil
}

func (g *googleSynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	audioCfg := &texttospeechpb.AudioConfig{AudioEncoding: pbEncoding(req.Encoding)}
	if g.sampleRate > 0 && strings.EqualFold(req.Encoding, EncodingLinear16) {
		audioCfg.SampleRateHertz = int32(g.sampleRate)
	}
	resp, err := g.client.SynthesizeSpeech(ctx, &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: req.Text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: req.Voice.LanguageCode,
			Name:         req.Voice.Name,
		},
		AudioConfig: audioCfg,
	})
	if err != nil {
		return Audio{}, fmt.Errorf("synthesize speech: %w", err)
	}
	return newAudio(resp.GetAudioContent(), req.Encoding)
}

func (g *googleSynth) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	resp, err := g.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: languageCode})
	if err != nil {
		return nil, fmt.Errorf("list voices: %w", err)
	}
	voices := make([]Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		voices = append(voices, Voice{
			Name:            v.GetName(),
			LanguageCodes:   v.GetLanguageCodes(),
			Gender:          v.GetSsmlGender().String(),
			NaturalSampleHz: int(v.GetNaturalSampleRateHertz()),
		})
	}
	return voices, nil
}

func (g *googleSynth) Close() error {
	return g.client.Close()
}

func pbEncoding(encoding string) texttospeechpb.AudioEncoding {
	switch strings.ToUpper(encoding) {
	case EncodingLinear16:
		return texttospeechpb.AudioEncoding_LINEAR16
	case EncodingOggOpus:
		return texttospeechpb.AudioEncoding_OGG_OPUS
	default:
		return texttospeechpb.AudioEncoding_MP3
	}
}
