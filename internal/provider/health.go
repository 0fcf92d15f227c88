package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// ErrNoHealthCheck is returned for backends without a token-free probe.
var ErrNoHealthCheck = errors.New("provider: backend has no health check")

// geminiModelsURL lists models for an AI Studio key.
var geminiModelsURL = "https://generativelanguage.googleapis.com/v1beta/models"

// HealthCheck verifies that the configured backend is reachable and the
// credentials are accepted, without generating tokens. It lists models on
// OpenAI and Azure, and calls the tags endpoint on Ollama.
func (c *Config) HealthCheck(ctx context.Context) error {
	switch c.Backend {
	case BackendOpenAI:
		oc := openai.DefaultConfig(c.OpenAI.APIKey)
		if c.OpenAI.BaseURL != "" {
			oc.BaseURL = c.OpenAI.BaseURL
		}
		if _, err := openai.NewClientWithConfig(oc).ListModels(ctx); err != nil {
			return fmt.Errorf("provider: openai health check: %w", err)
		}
		return nil

	case BackendAzure:
		oc := openai.DefaultAzureConfig(c.AzureOpenAI.APIKey, c.AzureOpenAI.Endpoint)
		oc.APIVersion = c.AzureOpenAI.APIVersion
		if _, err := openai.NewClientWithConfig(oc).ListModels(ctx); err != nil {
			return fmt.Errorf("provider: azure health check: %w", err)
		}
		return nil

	case BackendOllama:
		return httpProbe(ctx, strings.TrimRight(c.Ollama.Host, "/")+"/api/tags")

	case BackendGemini:
		return httpProbe(ctx, geminiModelsURL+"?"+url.Values{"key": {c.Gemini.APIKey}, "pageSize": {"1"}}.Encode())
	}
	return fmt.Errorf("%w: %s", ErrNoHealthCheck, c.Backend)
}

func httpProbe(ctx context.Context, target string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("provider: health check: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		// The URL may carry a key; report only the host.
		return fmt.Errorf("provider: health check %s: unreachable", req.URL.Host)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider: health check %s: status %d", req.URL.Host, resp.StatusCode)
	}
	return nil
}
