// Package tracing wires Langfuse tracing into the eino callback system so
// every model call made while answering a question is recorded.
package tracing

import (
	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/junu-go/internal/config"
	"github.com/54b3r/junu-go/internal/version"
)

// defaultHost is the self-hosted Langfuse address used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Settings holds the Langfuse connection parameters.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func SettingsFromEnv() Settings {
	return Settings{
		Host:      config.String("LANGFUSE_HOST", defaultHost),
		PublicKey: config.String("LANGFUSE_PUBLIC_KEY", ""),
		SecretKey: config.String("LANGFUSE_SECRET_KEY", ""),
	}
}

// Enabled reports whether both keys are present.
func (s Settings) Enabled() bool {
	return s.PublicKey != "" && s.SecretKey != ""
}

// Setup builds the Langfuse callback handler from the environment and
// registers it globally. The returned flush function must be called before
// process exit. When Langfuse is not configured it returns a no-op flush and
// false.
func Setup() (func(), bool) {
	s := SettingsFromEnv()
	if !s.Enabled() {
		return func() {}, false
	}
	handler, flush := newHandler(s)
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}

func newHandler(s Settings) (callbacks.Handler, func()) {
	return langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
		Name:      "junu",
		Release:   version.Version,
	})
}
