package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/54b3r/junu-go/internal/provider"
)

type fakePinger struct {
	name string
	err  error
	// block holds Ping until ctx is done.
	block bool
}

func (f *fakePinger) Name() string { return f.name }

func (f *fakePinger) Ping(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func newReadyTestServer(t *testing.T, pingers ...Pinger) *Server {
	t.Helper()
	s, _ := newTestServer(t, Deps{}, nil)
	s.pingers = pingers
	return s
}

func getReady(t *testing.T, s *Server, ctx context.Context) (int, readyResponse) {
	t.Helper()
	req := httptest.NewRequestWithContext(ctx, http.MethodGet, "/api/ready", nil)
	w := httptest.NewRecorder()
	s.handleReady(w, req)

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp readyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return w.Code, resp
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, Deps{}, nil)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d; body %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q", body["status"])
	}
}

func TestHandleReady(t *testing.T) {
	t.Parallel()

	refused := errors.New("connection refused")
	tests := []struct {
		name       string
		pingers    []Pinger
		wantStatus int
		wantOK     []bool
	}{
		{"no dependencies", nil, http.StatusOK, nil},
		{
			"all reachable",
			[]Pinger{&fakePinger{name: "model:openai"}, &fakePinger{name: "index"}},
			http.StatusOK, []bool{true, true},
		},
		{
			"index down",
			[]Pinger{&fakePinger{name: "model:openai"}, &fakePinger{name: "index", err: refused}},
			http.StatusServiceUnavailable, []bool{true, false},
		},
		{
			"everything down",
			[]Pinger{&fakePinger{name: "speech", err: refused}, &fakePinger{name: "audio", err: refused}},
			http.StatusServiceUnavailable, []bool{false, false},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			code, resp := getReady(t, newReadyTestServer(t, tc.pingers...), t.Context())
			if code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", code, tc.wantStatus)
			}
			if resp.Ready != (tc.wantStatus == http.StatusOK) {
				t.Errorf("ready = %v", resp.Ready)
			}
			if len(resp.Checks) != len(tc.wantOK) {
				t.Fatalf("checks = %d, want %d", len(resp.Checks), len(tc.wantOK))
			}
			for i, c := range resp.Checks {
				if c.Name != tc.pingers[i].Name() {
					t.Errorf("check %d name = %q, want registration order", i, c.Name)
				}
				if c.OK != tc.wantOK[i] {
					t.Errorf("check %q ok = %v", c.Name, c.OK)
				}
				if c.OK == (c.Error != "") {
					t.Errorf("check %q: ok=%v with error %q", c.Name, c.OK, c.Error)
				}
			}
		})
	}
}

func TestHandleReady_ProbesRunConcurrently(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	s := newReadyTestServer(t,
		&fakePinger{name: "speech", block: true},
		&fakePinger{name: "audio", block: true},
		&fakePinger{name: "index", block: true},
	)
	start := time.Now()
	code, resp := getReady(t, s, ctx)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("readiness took %v; probes ran one after another", elapsed)
	}
	if code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", code)
	}
	for _, c := range resp.Checks {
		if !strings.Contains(c.Error, "deadline") {
			t.Errorf("check %q error = %q", c.Name, c.Error)
		}
	}
}


func TestModelPinger(t *testing.T) {
	t.Parallel()

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"models":[]}`))
	}))
	t.Cleanup(ollama.Close)

	tests := []struct {
		name    string
		cfg     *provider.Config
		wantErr bool
	}{
		{"ollama up", &provider.Config{Backend: provider.BackendOllama, Ollama: provider.ProviderOllama{Host: ollama.URL}}, false},
		{"ollama down", &provider.Config{Backend: provider.BackendOllama, Ollama: provider.ProviderOllama{Host: "http://127.0.0.1:1"}}, true},
		{"no free probe", &provider.Config{Backend: provider.BackendArk}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			p := NewModelPinger(tc.cfg)
			if !strings.HasPrefix(p.Name(), "model:") {
				t.Errorf("Name() = %q", p.Name())
			}
			if err := p.Ping(t.Context()); (err != nil) != tc.wantErr {
				t.Errorf("Ping() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewPinger(t *testing.T) {
	t.Parallel()
	want := errors.New("down")
	p := NewPinger("speech", func(context.Context) error { return want })
	if p.Name() != "speech" || !errors.Is(p.Ping(t.Context()), want) {
		t.Errorf("pinger = %s, %v", p.Name(), p.Ping(t.Context()))
	}
}
