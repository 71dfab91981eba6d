package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/a0799406417-svg/gemini-tts-app/internal/protocol"
	"github.com/a0799406417-svg/gemini-tts-app/internal/synthesis"
	"github.com/a0799406417-svg/gemini-tts-app/internal/tts"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type voicesResponse struct {
	Voices []tts.Voice `json:"voices"`
}

func (api *API) handleSynthesize(w http.ResponseWriter, r *http.Request) {
	if api.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, api.cfg.MaxBodyBytes)
	}
	var body protocol.SynthesizeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		api.logger.Debug("malformed synthesize body", slogError(err))
		writeError(w, http.StatusBadRequest, protocol.ErrTextMalformedBody)
		return
	}

	ctx := r.Context()
	if d := api.requestTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	req := synthesis.Request{
		RequestID:    uuid.NewString(),
		OriginalText: body.OriginalText,
		Tone:         body.Tone,
		Origin:       r.Header.Get("Origin"),
	}
	if body.Voice != nil {
		req.Voice = tts.VoiceSelection{LanguageCode: body.Voice.LanguageCode, Name: body.Voice.Name}
	}
	w.Header().Set("X-Request-Id", req.RequestID)

	res, err := api.svc.Handle(ctx, req)
	if err != nil {
		var verr *synthesis.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, protocol.ErrTextMissingFields)
			return
		}
		api.logger.Error("synthesize request failed",
			slog.String("request_id", req.RequestID),
			slog.String("chi_request_id", middleware.GetReqID(r.Context())),
			slogError(err))
		writeError(w, http.StatusInternalServerError, protocol.ErrTextProcessing)
		return
	}

	writeJSON(w, http.StatusOK, protocol.SynthesizeResponse{
		RewrittenText: res.RewrittenText,
		AudioContent:  base64.StdEncoding.EncodeToString(res.Audio.Data),
	})
}

func (api *API) handleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := api.svc.Voices(r.Context(), r.URL.Query().Get("languageCode"))
	if err != nil {
		if errors.Is(err, synthesis.ErrVoicesUnsupported) {
			writeError(w, http.StatusNotImplemented, protocol.ErrTextNoVoiceList)
			return
		}
		api.logger.Error("list voices failed", slogError(err))
		writeError(w, http.StatusInternalServerError, protocol.ErrTextProcessing)
		return
	}
	if voices == nil {
		voices = []tts.Voice{}
	}
	writeJSON(w, http.StatusOK, voicesResponse{Voices: voices})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, protocol.ErrorResponse{Error: msg})
}

func slogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "")
	}
	return slog.String("error", err.Error())
}
