package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Logger is the hot-path structured logger, initialized by Init.
	Logger = zap.NewNop()

	messagesScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_messages_scored_total",
			Help: "Total number of messages run through the classifier gateway",
		},
		[]string{"path"},
	)

	messagesRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_messages_removed_total",
			Help: "Total number of messages removed as spam",
		},
	)

	escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_escalations_total",
			Help: "Total number of punishment escalations dispatched",
		},
		[]string{"punishment"},
	)

	scoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderation_scoring_duration_seconds",
			Help:    "Time spent scoring messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path"},
	)
)

func Init(ctx context.Context) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(messagesScoredTotal)
	prometheus.MustRegister(messagesRemovedTotal)
	prometheus.MustRegister(escalationsTotal)
	prometheus.MustRegister(scoringDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	return nil
}

// RecordRemoval counts a spam removal.
func RecordRemoval() {
	messagesRemovedTotal.Inc()
}

// RecordEscalation counts a dispatched punishment.
func RecordEscalation(punishment string) {
	escalationsTotal.WithLabelValues(punishment).Inc()
}

// StartScoring returns a completion callback that records the scoring path
// taken (probabilistic, binary, unavailable) and its duration.
func StartScoring() func(path string) {
	start := time.Now()
	return func(path string) {
		messagesScoredTotal.WithLabelValues(path).Inc()
		scoringDuration.WithLabelValues(path).Observe(time.Since(start).Seconds())
	}
}

// MetricsServer exposes /metrics; it is a lifecycle component.
type MetricsServer struct {
	server *http.Server
}

func NewMetricsServer(addr string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &MetricsServer{
		server: &http.Server{Addr: addr, Handler: mux},
	}
}

func (m *MetricsServer) Start(ctx context.Context) error {
	go func() {
		if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("metrics server failed")
		}
	}()
	return nil
}

func (m *MetricsServer) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return m.server.Shutdown(shutdownCtx)
}
