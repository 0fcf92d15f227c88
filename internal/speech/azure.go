package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AzureConfig holds Azure Speech credentials. The base URLs default to the
// regional endpoints and are overridable for tests.
type AzureConfig struct {
	Key     string
	Region  string
	Timeout time.Duration

	STTBaseURL   string
	TTSBaseURL   string
	TokenBaseURL string
}

// Azure calls the Azure Speech REST API.
type Azure struct {
	cfg    AzureConfig
	client *http.Client
}

// NewAzure validates cfg and returns an Azure client.
func NewAzure(cfg AzureConfig) (*Azure, error) {
	var missing []string
	if cfg.Key == "" {
		missing = append(missing, "AZURE_SPEECH_KEY")
	}
	if cfg.Region == "" && (cfg.STTBaseURL == "" || cfg.TTSBaseURL == "") {
		missing = append(missing, "AZURE_SERVICE_REGION")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("speech: azure requires %s", strings.Join(missing, ", "))
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.STTBaseURL == "" {
		cfg.STTBaseURL = fmt.Sprintf("https://%s.stt.speech.microsoft.com", cfg.Region)
	}
	if cfg.TTSBaseURL == "" {
		cfg.TTSBaseURL = fmt.Sprintf("https://%s.tts.speech.microsoft.com", cfg.Region)
	}
	if cfg.TokenBaseURL == "" {
		cfg.TokenBaseURL = fmt.Sprintf("https://%s.api.cognitive.microsoft.com", cfg.Region)
	}
	return &Azure{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}, nil
}

type azureRecognition struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
}

// Recognize sends wav to the short-audio recognition endpoint.
func (a *Azure) Recognize(ctx context.Context, wav []byte, language string) (Recognition, error) {
	if err := ValidateWAV(wav); err != nil {
		return Recognition{}, err
	}
	if language == "" {
		language = DefaultLanguage
	}

	u := a.cfg.STTBaseURL + "/speech/recognition/conversation/cognitiveservices/v1?" +
		url.Values{"language": {language}, "format": {"simple"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(wav))
	if err != nil {
		return Recognition{}, fmt.Errorf("speech: azure recognize: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")

	body, err := a.do(req)
	if err != nil {
		return Recognition{}, fmt.Errorf("speech: azure recognize: %w", err)
	}

	var out azureRecognition
	if err := json.Unmarshal(body, &out); err != nil {
		return Recognition{}, fmt.Errorf("speech: azure recognize: decode response: %w", err)
	}
	switch out.RecognitionStatus {
	case "Success":
		if text := strings.TrimSpace(out.DisplayText); text != "" {
			return Recognition{Status: Recognized, Text: text}, nil
		}
		return Recognition{Status: NoMatch}, nil
	case "NoMatch", "InitialSilenceTimeout", "BabbleTimeout":
		return Recognition{Status: NoMatch}, nil
	}
	return Recognition{}, fmt.Errorf("speech: azure recognize: status %q", out.RecognitionStatus)
}

// Synthesize renders text with SSML as 16 kHz mono PCM WAV.
func (a *Azure) Synthesize(ctx context.Context, text, voice, language string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("speech: text must not be empty")
	}
	if voice == "" {
		voice = DefaultVoice
	}
	if language == "" {
		language = DefaultLanguage
	}

	ssml, err := buildSSML(text, voice, language)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TTSBaseURL+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("speech: azure synthesize: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", "riff-16khz-16bit-mono-pcm")
	req.Header.Set("User-Agent", "junu")

	audio, err := a.do(req)
	if err != nil {
		return nil, fmt.Errorf("speech: azure synthesize: %w", err)
	}
	if err := ValidateWAV(audio); err != nil {
		return nil, fmt.Errorf("speech: azure synthesize: unexpected response: %w", err)
	}
	return audio, nil
}

// Ping exchanges the key for an access token, which verifies both the key
// and the region.
func (a *Azure) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.TokenBaseURL+"/sts/v1.0/issueToken", nil)
	if err != nil {
		return fmt.Errorf("speech: azure ping: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.cfg.Key)
	if _, err := a.do(req); err != nil {
		return fmt.Errorf("speech: azure ping: %w", err)
	}
	return nil
}

func (a *Azure) do(req *http.Request) ([]byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func buildSSML(text, voice, language string) (string, error) {
	var esc bytes.Buffer
	if err := xml.EscapeText(&esc, []byte(text)); err != nil {
		return "", fmt.Errorf("speech: escape ssml: %w", err)
	}
	var attr bytes.Buffer
	_ = xml.EscapeText(&attr, []byte(voice))
	var lang bytes.Buffer
	_ = xml.EscapeText(&lang, []byte(language))
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s"><voice name="%s">%s</voice></speak>`,
		lang.String(), attr.String(), esc.String(),
	), nil
}
