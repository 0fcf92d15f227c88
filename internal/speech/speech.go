// Package speech converts between Nepali speech and text. Recognition and
// synthesis are parameterised by language and voice; backends are the
// Azure Speech REST API and OpenAI (Whisper and tts-1).
package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/54b3r/junu-go/internal/config"
)

// Status is the outcome of a recognition that reached the service.
type Status string

const (
	// Recognized means speech was transcribed.
	Recognized Status = "recognized"
	// NoMatch means the audio held no recognisable speech.
	NoMatch Status = "no_match"
)

// Recognition is a successful call to a Recognizer. Errors are reported
// separately.
type Recognition struct {
	Status Status
	// Text is the transcript. Empty for NoMatch.
	Text string
}

// Recognizer transcribes WAV audio.
type Recognizer interface {
	Recognize(ctx context.Context, wav []byte, language string) (Recognition, error)
}

// Synthesizer renders text as WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice, language string) ([]byte, error)
}

// Client is a backend that both recognises and synthesises.
type Client interface {
	Recognizer
	Synthesizer
	Ping(ctx context.Context) error
}

// Defaults for Nepali.
const (
	DefaultLanguage = "ne-NP"
	VoiceHemkala    = "ne-NP-HemkalaNeural"
	VoiceSagar      = "ne-NP-SagarNeural"
	DefaultVoice    = VoiceHemkala
	DefaultTimeout  = 30 * time.Second
)

// Backend names accepted by SPEECH_PROVIDER.
const (
	BackendAzure  = "azure"
	BackendOpenAI = "openai"
)

// ErrInvalidAudio is returned for input that is not a RIFF/WAVE file.
var ErrInvalidAudio = errors.New("speech: audio must be a WAV (RIFF/WAVE) file")

// ValidateWAV checks for a RIFF....WAVE header.
func ValidateWAV(b []byte) error {
	if len(b) < 12 || !bytes.Equal(b[0:4], []byte("RIFF")) || !bytes.Equal(b[8:12], []byte("WAVE")) {
		return ErrInvalidAudio
	}
	return nil
}

// ResolveVoice maps the aliases "hemkala"/"female" and "sagar"/"male" to
// the Azure voice names. Anything else is returned unchanged; "" yields
// fallback.
func ResolveVoice(name, fallback string) string {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "":
		return fallback
	case "hemkala", "female":
		return VoiceHemkala
	case "sagar", "male":
		return VoiceSagar
	}
	return strings.TrimSpace(name)
}

// Config selects and configures the speech backend.
type Config struct {
	Backend  string
	Language string
	Voice    string
	Timeout  time.Duration

	Azure  AzureConfig
	OpenAI OpenAIConfig
}

// ConfigFromEnv reads SPEECH_PROVIDER, SPEECH_LANGUAGE, SPEECH_VOICE,
// SPEECH_TIMEOUT, AZURE_SPEECH_KEY, AZURE_SERVICE_REGION and, for the
// openai backend, OPENAI_API_KEY and OPENAI_BASE_URL.
func ConfigFromEnv() Config {
	timeout := config.Duration("SPEECH_TIMEOUT", DefaultTimeout)
	return Config{
		Backend:  config.String("SPEECH_PROVIDER", BackendAzure),
		Language: config.String("SPEECH_LANGUAGE", DefaultLanguage),
		Voice:    ResolveVoice(config.String("SPEECH_VOICE", ""), DefaultVoice),
		Timeout:  timeout,
		Azure: AzureConfig{
			Key:     config.String("AZURE_SPEECH_KEY", ""),
			Region:  config.String("AZURE_SERVICE_REGION", ""),
			Timeout: timeout,
		},
		OpenAI: OpenAIConfig{
			APIKey:  config.String("OPENAI_API_KEY", ""),
			BaseURL: config.String("OPENAI_BASE_URL", ""),
			Voice:   config.String("OPENAI_TTS_VOICE", ""),
			Timeout: timeout,
		},
	}
}

// New constructs the configured backend.
func New(cfg Config) (Client, error) {
	switch cfg.Backend {
	case "", BackendAzure:
		return NewAzure(cfg.Azure)
	case BackendOpenAI:
		return NewOpenAI(cfg.OpenAI)
	}
	return nil, fmt.Errorf("speech: unknown provider %q (valid: azure, openai)", cfg.Backend)
}
