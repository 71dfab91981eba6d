package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

type execSynth struct {
	cmd        []string
	sampleRate int
	mu         sync.Mutex
}

type execRequest struct {
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
	Voice        string `json:"voice"`
	Encoding     string `json:"encoding"`
	SampleRate   int    `json:"sample_rate"`
}

type execResponse struct {
	AudioBase64 string `json:"audio_base64"`
}

// NewExecSynth runs command per request. The request is written as JSON on
// stdin; stdout carries one JSON object per line with a base64 audio chunk.
func NewExecSynth(command string, sampleRate int) (Synthesizer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	return &execSynth{cmd: args, sampleRate: sampleRate}, nil
}

func (e *execSynth) Synthesize(ctx context.Context, req SynthRequest) (Audio, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := json.Marshal(execRequest{
		Text:         req.Text,
		LanguageCode: req.Voice.LanguageCode,
		Voice:        req.Voice.Name,
		Encoding:     req.Encoding,
		SampleRate:   e.sampleRate,
	})
	if err != nil {
		return Audio{}, err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Audio{}, err
	}
	if err := cmd.Start(); err != nil {
		return Audio{}, err
	}

	var out bytes.Buffer
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			abort(cmd)
			return Audio{}, fmt.Errorf("decode tts exec chunk: %w", err)
		}
		chunk, err := base64.StdEncoding.DecodeString(resp.AudioBase64)
		if err != nil {
			abort(cmd)
			return Audio{}, fmt.Errorf("decode tts exec audio: %w", err)
		}
		out.Write(chunk)
	}
	if err := scanner.Err(); err != nil {
		abort(cmd)
		return Audio{}, fmt.Errorf("read tts exec output: %w", err)
	}
	if err := cmd.Wait(); err != nil {
		return Audio{}, fmt.Errorf("tts exec command failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return newAudio(out.Bytes(), req.Encoding)
}

// abort kills a command whose output is no longer read. Waiting alone could
// block forever on a child stuck writing to a full pipe.
func abort(cmd *exec.Cmd) {
	_ = cmd.Process.Kill()
	_ = cmd.Wait()
}
