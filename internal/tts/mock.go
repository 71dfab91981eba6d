package tts

import (
	"context"
	"math"
	"time"
	"unicode/utf8"
)

const (
	mockMsPerRune   = 60
	mockMaxDuration = 3 * time.Second
)

type mockSynth struct {
	sampleRate int
}

// NewMockSynth returns a synthesizer that renders a quiet tone whose length
// follows the text length, capped at three seconds. Output is always
// LINEAR16 WAV.
func NewMockSynth(sampleRate int) Synthesizer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &mockSynth{sampleRate: sampleRate}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	select {
	case <-ctx.Done():
		return Audio{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	runes := utf8.RuneCountInString(req.Text)
	if runes == 0 {
		return Audio{}, ErrEmptyAudio
	}
	n := min(m.sampleRate*runes*mockMsPerRune/1000, m.sampleRate*int(mockMaxDuration/time.Second))
	samples := make([]int, n)
	for i := range samples {
		samples[i] = int(1200 * math.Sin(2*math.Pi*440*float64(i)/float64(m.sampleRate)))
	}
	data, err := encodeWav(samples, m.sampleRate, 1)
	if err != nil {
		return Audio{}, err
	}
	return newAudio(data, EncodingLinear16)
}

func (m *mockSynth) ListVoices(_ context.Context, languageCode string) ([]Voice, error) {
	voices := []Voice{
		{Name: "he-IL-Wavenet-A", LanguageCodes: []string{"he-IL"}, Gender: "FEMALE", NaturalSampleHz: 24000},
		{Name: "he-IL-Wavenet-B", LanguageCodes: []string{"he-IL"}, Gender: "MALE", NaturalSampleHz: 24000},
		{Name: "en-US-Wavenet-D", LanguageCodes: []string{"en-US"}, Gender: "MALE", NaturalSampleHz: 24000},
	}
	return filterVoices(voices, languageCode), nil
}

func filterVoices(voices []Voice, languageCode string) []Voice {
	if languageCode == "" {
		return voices
	}
	out := make([]Voice, 0, len(voices))
	for _, v := range voices {
		for _, code := range v.LanguageCodes {
			if code == languageCode {
				out = append(out, v)
				break
			}
		}
	}
	return out
}
