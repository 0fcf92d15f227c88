package server

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/54b3r/junu-go/internal/chat"
	"github.com/54b3r/junu-go/internal/logging"
	"github.com/54b3r/junu-go/internal/prompt"
	"github.com/54b3r/junu-go/internal/speech"
)

const (
	msgRecognized   = "STT conversion successful"
	msgUnrecognized = "Unable to recognize speech"
	// audioField is the multipart field that carries the upload.
	audioField = "file"
)

// handleSTT handles POST /stt. Audio the service cannot transcribe is a
// client error.
func (s *Server) handleSTT(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recognizer == nil {
		writeStatus(w, r, http.StatusServiceUnavailable, "speech recognition is not configured")
		return
	}
	wav, err := s.readAudio(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	text, err := s.recognize(r, wav)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, sttResponse{Text: text, Message: msgRecognized})
}

// handleTTS handles POST /tts and returns the clip as an attachment.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.deps.Synthesizer == nil {
		writeStatus(w, r, http.StatusServiceUnavailable, "speech synthesis is not configured")
		return
	}
	var req ttsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, r, badRequest("text is required"))
		return
	}

	wav, err := s.synthesize(r, text, speech.ResolveVoice(req.Voice, s.cfg.Voice))
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="output_audio.wav"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(wav); err != nil {
		logging.FromContext(r.Context()).Warn("tts: write response", slog.Any("error", err))
	}
}

// handleVoice handles POST /voice: transcribe, answer in voice mode and
// synthesise the answer. A synthesis or storage failure still returns the
// text answer with audio_error set.
//
// The session and voice may be passed as query parameters or, for
// multipart uploads, as form fields.
func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Recognizer == nil || s.deps.Synthesizer == nil {
		writeStatus(w, r, http.StatusServiceUnavailable, "speech is not configured")
		return
	}
	wav, err := s.readAudio(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessionID := formValue(r, "session_id")
	voice := speech.ResolveVoice(formValue(r, "voice"), s.cfg.Voice)

	question, err := s.recognize(r, wav)
	if err != nil {
		writeError(w, r, err)
		return
	}

	ctx, log := logging.With(r.Context(), slog.String("session_id", sessionID))
	res, err := s.deps.Chat.Answer(ctx, chat.Request{
		Mode:      string(prompt.ModeVoice),
		Input:     question,
		SessionID: sessionID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := voiceResponse{Question: question, Answer: res.Answer, SessionID: res.SessionID}
	if err := s.attachAudio(r, &resp, voice); err != nil {
		log.Warn("voice: answer audio unavailable", slog.Any("error", err))
		resp.AudioError = err.Error()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// attachAudio synthesises resp.Answer and stores the clip, or inlines it
// when no store is configured.
func (s *Server) attachAudio(r *http.Request, resp *voiceResponse, voice string) error {
	clip, err := s.synthesize(r, resp.Answer, voice)
	if err != nil {
		return err
	}
	if s.deps.Audio == nil {
		resp.AudioBase64 = base64.StdEncoding.EncodeToString(clip)
		return nil
	}
	stored, err := s.deps.Audio.Save(r.Context(), clip)
	if err != nil {
		return fmt.Errorf("audio: save failed: %w", err)
	}
	resp.AudioURL = stored.URL
	resp.AudioBase64 = stored.Base64
	return nil
}

func (s *Server) recognize(r *http.Request, wav []byte) (string, error) {
	start := time.Now()
	rec, err := s.deps.Recognizer.Recognize(r.Context(), wav, s.cfg.Language)
	s.metrics.observeSpeech("stt", err, time.Since(start))
	if err != nil {
		return "", fmt.Errorf("STT conversion failed: %w", err)
	}
	text := strings.TrimSpace(rec.Text)
	if rec.Status == speech.NoMatch || text == "" {
		return "", badRequest(msgUnrecognized)
	}
	return text, nil
}

func (s *Server) synthesize(r *http.Request, text, voice string) ([]byte, error) {
	start := time.Now()
	wav, err := s.deps.Synthesizer.Synthesize(r.Context(), text, voice, s.cfg.Language)
	s.metrics.observeSpeech("tts", err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("TTS conversion failed: %w", err)
	}
	return wav, nil
}

// readAudio returns the uploaded WAV from a multipart field or the raw
// body, capped at MaxAudioBytes.
func (s *Server) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxAudioBytes)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(s.cfg.MaxAudioBytes); err != nil {
			return nil, badRequest("invalid multipart body: " + err.Error())
		}
		f, _, err := r.FormFile(audioField)
		if err != nil {
			return nil, badRequest("No valid WAV audio file provided")
		}
		defer f.Close()
		src = f
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(src); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, badRequest(fmt.Sprintf("audio exceeds %d bytes", tooLarge.Limit))
		}
		return nil, badRequest("read audio: " + err.Error())
	}
	if err := speech.ValidateWAV(buf.Bytes()); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// formValue reads key from the query string or a parsed multipart form.
func formValue(r *http.Request, key string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return strings.TrimSpace(v)
	}
	if r.MultipartForm != nil {
		if vs := r.MultipartForm.Value[key]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
	}
	return ""
}
