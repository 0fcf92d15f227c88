package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/54b3r/junu-go/internal/provider"
)

// pingFunc adapts a Ping method to the Pinger interface.
type pingFunc struct {
	name string
	fn   func(context.Context) error
}

// NewPinger wraps fn as a named readiness probe. Store, speech and
// embedder clients pass their Ping method here.
func NewPinger(name string, fn func(context.Context) error) Pinger {
	return &pingFunc{name: name, fn: fn}
}

func (p *pingFunc) Name() string                   { return p.name }
func (p *pingFunc) Ping(ctx context.Context) error { return p.fn(ctx) }

// ModelPinger probes the chat model backend without spending tokens.
// Backends without a free probe report healthy.
type ModelPinger struct {
	cfg *provider.Config
}

// NewModelPinger constructs a ModelPinger for the resolved provider config.
func NewModelPinger(cfg *provider.Config) *ModelPinger {
	return &ModelPinger{cfg: cfg}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return "model:" + string(p.cfg.Backend) }

// Ping runs the provider's health check.
func (p *ModelPinger) Ping(ctx context.Context) error {
	err := p.cfg.HealthCheck(ctx)
	if errors.Is(err, provider.ErrNoHealthCheck) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}
