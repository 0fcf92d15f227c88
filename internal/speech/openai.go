package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures Whisper transcription and tts-1 synthesis.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Voice is the OpenAI voice used when the requested one is an Azure
	// voice name. Defaults to "nova".
	Voice   string
	Timeout time.Duration
}

// OpenAI implements Client with the OpenAI audio endpoints.
type OpenAI struct {
	client *openai.Client
	voice  string
}

// NewOpenAI validates cfg and returns an OpenAI speech client.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("speech: openai requires OPENAI_API_KEY")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceNova)
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAI{client: openai.NewClientWithConfig(oc), voice: cfg.Voice}, nil
}

// Recognize transcribes wav with whisper-1. Whisper takes ISO-639-1 codes,
// so "ne-NP" is sent as "ne".
func (o *OpenAI) Recognize(ctx context.Context, wav []byte, language string) (Recognition, error) {
	if err := ValidateWAV(wav); err != nil {
		return Recognition{}, err
	}
	if language == "" {
		language = DefaultLanguage
	}
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: strings.SplitN(language, "-", 2)[0],
	})
	if err != nil {
		return Recognition{}, fmt.Errorf("speech: openai recognize: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return Recognition{Status: NoMatch}, nil
	}
	return Recognition{Status: Recognized, Text: text}, nil
}

// Synthesize renders text with tts-1 as WAV. Azure voice names fall back to
// the configured OpenAI voice.
func (o *OpenAI) Synthesize(ctx context.Context, text, voice, _ string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("speech: text must not be empty")
	}
	if voice == "" || strings.Contains(voice, "Neural") {
		voice = o.voice
	}
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.TTSModel1,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatWav,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: openai synthesize: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("speech: openai synthesize: read audio: %w", err)
	}
	return audio, nil
}

// Ping lists models to verify the key.
func (o *OpenAI) Ping(ctx context.Context) error {
	if _, err := o.client.ListModels(ctx); err != nil {
		return fmt.Errorf("speech: openai ping: %w", err)
	}
	return nil
}
