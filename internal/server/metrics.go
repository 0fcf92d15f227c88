package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "junu"

	// labelHandler partitions HTTP metrics by route pattern rather than the
	// raw URL path so session IDs and clip names do not explode cardinality.
	labelHandler = "handler"
)

// Metrics holds the Prometheus collectors for the HTTP surface and the
// answer pipeline. It satisfies chat.Observer so the chat service can report
// into the same registry the server exposes on /metrics.
type Metrics struct {
	// answersTotal counts completed answers by mode and outcome
	// (ok, invalid, timeout, error).
	answersTotal *prometheus.CounterVec
	// answerDuration is the wall-clock time of one answer from retrieval to
	// the generated text.
	answerDuration *prometheus.HistogramVec
	answersActive  prometheus.Gauge
	// retrievalsTotal counts retrievals by whether relevant context passed
	// the threshold.
	retrievalsTotal *prometheus.CounterVec

	speechTotal    *prometheus.CounterVec
	speechDuration *prometheus.HistogramVec

	ingestRunsTotal *prometheus.CounterVec
	indexedChunks   prometheus.Gauge

	httpRequestsTotal   *prometheus.CounterVec
	httpDurationSeconds *prometheus.HistogramVec
	rateLimitedTotal    *prometheus.CounterVec
}

// NewMetrics registers the collectors against reg. Pass a fresh
// prometheus.Registry in tests to keep them hermetic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		answersTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "answers_total",
			Help:      "Answers completed, partitioned by mode and outcome.",
		}, []string{"mode", "outcome"}),

		answerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "answer_duration_seconds",
			Help:      "Wall-clock duration of one answer including retrieval and generation.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"mode"}),

		answersActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "answers_in_flight",
			Help:      "Answers currently being generated.",
		}),

		retrievalsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rag",
			Name:      "retrievals_total",
			Help:      "Retrievals, partitioned by whether relevant context was found.",
		}, []string{"found"}),

		speechTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "speech",
			Name:      "requests_total",
			Help:      "Speech service calls, partitioned by operation (stt, tts) and outcome.",
		}, []string{"op", "outcome"}),

		speechDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "speech",
			Name:      "duration_seconds",
			Help:      "Latency of speech service calls.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"op"}),

		ingestRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "runs_total",
			Help:      "Index rebuilds started over HTTP, partitioned by outcome.",
		}, []string{"outcome"}),

		indexedChunks: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "chunks",
			Help:      "Chunks written by the last successful rebuild.",
		}),

		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests handled by the server, partitioned by method, handler, and status code.",
		}, []string{"method", labelHandler, "code"}),

		httpDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "duration_seconds",
			Help:      "Latency of HTTP requests handled by the server.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", labelHandler}),

		rateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected with 429 by the per-client limiter.",
		}, []string{labelHandler}),
	}
}

// ObserveAnswer implements chat.Observer.
func (m *Metrics) ObserveAnswer(mode, outcome string, d time.Duration) {
	if mode == "" {
		mode = "unknown"
	}
	m.answersTotal.WithLabelValues(mode, outcome).Inc()
	m.answerDuration.WithLabelValues(mode).Observe(d.Seconds())
}

// ObserveRetrieval implements chat.Observer.
func (m *Metrics) ObserveRetrieval(found bool) {
	m.retrievalsTotal.WithLabelValues(strconv.FormatBool(found)).Inc()
}

// AnswerStarted implements chat.Observer.
func (m *Metrics) AnswerStarted() func() {
	m.answersActive.Inc()
	return m.answersActive.Dec
}

// observeSpeech records one speech call. op is "stt" or "tts".
func (m *Metrics) observeSpeech(op string, err error, d time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.speechTotal.WithLabelValues(op, outcome).Inc()
	m.speechDuration.WithLabelValues(op).Observe(d.Seconds())
}

// observeIngest records one finished rebuild.
func (m *Metrics) observeIngest(chunks int, err error) {
	if err != nil {
		m.ingestRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.ingestRunsTotal.WithLabelValues("ok").Inc()
	m.indexedChunks.Set(float64(chunks))
}

// middleware records request counts and latency per route pattern. The mux
// fills r.Pattern while routing, so it is read after the call returns.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := wrapResponseWriter(w)
		start := time.Now()
		next.ServeHTTP(rw, r)

		handler := handlerLabel(r)
		m.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		m.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}

// handlerLabel is the route pattern the mux matched, or "unmatched".
func handlerLabel(r *http.Request) string {
	if r.Pattern == "" {
		return "unmatched"
	}
	return r.Pattern
}
