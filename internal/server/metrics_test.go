package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/54b3r/junu-go/internal/chat"
)

var _ chat.Observer = (*Metrics)(nil)

// findMetric returns the sample of name whose labels include want.
func findMetric(t *testing.T, reg *prometheus.Registry, name string, want map[string]string) *dto.Metric {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			labels := make(map[string]string)
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			for k, v := range want {
				if labels[k] != v {
					continue next
				}
			}
			return m
		}
	}
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(t, reg, name, labels)
	if m == nil {
		t.Fatalf("%s%v not found in gathered metrics", name, labels)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	m := findMetric(t, reg, name, nil)
	if m == nil {
		t.Fatalf("%s not found in gathered metrics", name)
	}
	return m.GetGauge().GetValue()
}

func Test_Metrics_EndpointReturns200(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Deps{}, nil)
	s.metrics.ObserveRetrieval(true)

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, srv.URL+"/metrics", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("want 200, got %d", resp.StatusCode)
	}
	ct := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "junu_rag_retrievals_total") {
		t.Error("retrieval counter missing from /metrics output")
	}
}

func Test_Metrics_ObserveAnswer(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveAnswer("text", chat.OutcomeOK, time.Second)
	m.ObserveAnswer("text", chat.OutcomeOK, 2*time.Second)
	m.ObserveAnswer("voice", chat.OutcomeTimeout, time.Minute)

	if got := counterValue(t, reg, "junu_chat_answers_total", map[string]string{"mode": "text", "outcome": "ok"}); got != 2 {
		t.Errorf("text/ok = %v, want 2", got)
	}
	if got := counterValue(t, reg, "junu_chat_answers_total", map[string]string{"mode": "voice", "outcome": "timeout"}); got != 1 {
		t.Errorf("voice/timeout = %v, want 1", got)
	}
}

func Test_Metrics_InFlightGauge(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	done1 := m.AnswerStarted()
	done2 := m.AnswerStarted()
	if got := gaugeValue(t, reg, "junu_chat_answers_in_flight"); got != 2 {
		t.Errorf("in flight = %v, want 2", got)
	}
	done1()
	done2()
	if got := gaugeValue(t, reg, "junu_chat_answers_in_flight"); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
}

func Test_Metrics_SpeechAndIngest(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.observeSpeech("stt", nil, time.Second)
	m.observeSpeech("tts", errors.New("quota"), time.Second)
	m.observeIngest(0, errors.New("no documents"))

	if got := counterValue(t, reg, "junu_speech_requests_total", map[string]string{"op": "tts", "outcome": "error"}); got != 1 {
		t.Errorf("tts/error = %v", got)
	}
	if got := counterValue(t, reg, "junu_ingest_runs_total", map[string]string{"outcome": "error"}); got != 1 {
		t.Errorf("ingest/error = %v", got)
	}
}

func Test_Metrics_HTTPHandlerLabel(t *testing.T) {
	t.Parallel()
	s, reg := newTestServer(t, Deps{}, nil)

	serve(s, httptest.NewRequest(http.MethodDelete, "/sessions/abc", nil))
	serve(s, httptest.NewRequest(http.MethodGet, "/nope", nil))

	if got := counterValue(t, reg, "junu_http_requests_total",
		map[string]string{"method": "DELETE", labelHandler: "DELETE /sessions/{id}", "code": "204"}); got != 1 {
		t.Errorf("sessions counter = %v", got)
	}
	if got := counterValue(t, reg, "junu_http_requests_total",
		map[string]string{labelHandler: "unmatched", "code": "404"}); got != 1 {
		t.Errorf("unmatched counter = %v", got)
	}
}
