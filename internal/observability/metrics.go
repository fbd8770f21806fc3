package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"selflearning/apps/worker/internal/pool"
)

// Metrics records pool, drain and HTTP measurements. It implements
// pool.Observer and orchestrator.Recorder.
type Metrics struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	SlotsCreated metric.Int64Counter
	SlotsRemoved metric.Int64Counter
	IdleSweeps   metric.Int64Counter

	Batches           metric.Int64Counter
	BatchSize         metric.Int64Histogram
	BatchDuration     metric.Float64Histogram
	JobsProcessed     metric.Int64Counter
	JobDuration       metric.Float64Histogram
	PersistenceErrors metric.Int64Counter

	HTTPRequests        metric.Int64Counter
	HTTPRequestDuration metric.Float64Histogram
}

// NewMetrics builds a meter provider backed by its own Prometheus registry
// and returns the handler that serves it.
func NewMetrics() (*Metrics, http.Handler, error) {
	reg := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(reg))
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	m := &Metrics{provider: provider, meter: provider.Meter("selflearning/worker")}

	if err := m.init(); err != nil {
		return nil, nil, err
	}
	return m, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

func (m *Metrics) init() error {
	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = m.meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}

	m.SlotsCreated = counter("pool_slots_created_total", "Worker slots started")
	m.SlotsRemoved = counter("pool_slots_removed_total", "Worker slots removed, by reason")
	m.IdleSweeps = counter("pool_idle_swept_total", "Idle slots removed by the sweeper")
	m.Batches = counter("drain_batches_total", "Batches committed by the orchestrator")
	m.JobsProcessed = counter("jobs_processed_total", "Jobs settled by the orchestrator")
	m.PersistenceErrors = counter("drain_persistence_errors_total", "Drains aborted by a queue error")
	m.HTTPRequests = counter("http_requests_total", "HTTP requests served")
	if err != nil {
		return err
	}

	if m.BatchSize, err = m.meter.Int64Histogram("drain_batch_size",
		metric.WithDescription("Jobs per batch"),
		metric.WithExplicitBucketBoundaries(1, 2, 5, 10, 20, 50),
	); err != nil {
		return err
	}
	if m.BatchDuration, err = m.meter.Float64Histogram("drain_batch_duration_seconds",
		metric.WithDescription("Time from fetch to commit of a batch"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 10, 30, 60, 120),
	); err != nil {
		return err
	}
	if m.JobDuration, err = m.meter.Float64Histogram("job_duration_seconds",
		metric.WithDescription("Job execution time on the pool"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	); err != nil {
		return err
	}
	if m.HTTPRequestDuration, err = m.meter.Float64Histogram("http_request_duration_seconds",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5),
	); err != nil {
		return err
	}
	return nil
}

// StatsSource reports per-category pool stats; nil entries are pools that
// have not been constructed yet.
type StatsSource interface {
	Stats() map[pool.Category]*pool.Stats
}

// ObservePools exports slot and queue gauges read from src at scrape time.
func (m *Metrics) ObservePools(src StatsSource) error {
	workers, err := m.meter.Int64ObservableGauge("pool_workers", metric.WithDescription("Worker slots, by state"))
	if err != nil {
		return err
	}
	queued, err := m.meter.Int64ObservableGauge("pool_queued_tasks", metric.WithDescription("Tasks waiting for a slot"))
	if err != nil {
		return err
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for c, st := range src.Stats() {
			if st == nil {
				continue
			}
			name := poolAttr(string(c))
			o.ObserveInt64(workers, int64(st.Idle), metric.WithAttributes(name, stateAttr("idle")))
			o.ObserveInt64(workers, int64(st.Busy), metric.WithAttributes(name, stateAttr("busy")))
			o.ObserveInt64(workers, int64(st.Draining), metric.WithAttributes(name, stateAttr("draining")))
			o.ObserveInt64(queued, int64(st.Queued), metric.WithAttributes(name))
		}
		return nil
	}, workers, queued)
	return err
}

func (m *Metrics) SlotCreated(poolName string, _ int) {
	m.SlotsCreated.Add(context.Background(), 1, metric.WithAttributes(poolAttr(poolName)))
}

func (m *Metrics) SlotRemoved(poolName string, _ int, reason string) {
	m.SlotsRemoved.Add(context.Background(), 1, metric.WithAttributes(poolAttr(poolName), reasonAttr(reason)))
}

func (m *Metrics) IdleSwept(poolName string, removed int) {
	m.IdleSweeps.Add(context.Background(), int64(removed), metric.WithAttributes(poolAttr(poolName)))
}

func (m *Metrics) RecordBatch(ctx context.Context, size int, d time.Duration) {
	m.Batches.Add(ctx, 1)
	m.BatchSize.Record(ctx, int64(size))
	m.BatchDuration.Record(ctx, d.Seconds())
}

func (m *Metrics) RecordJob(ctx context.Context, jobType string, success bool, d time.Duration) {
	attrs := metric.WithAttributes(jobTypeAttr(jobType), successAttr(success))
	m.JobsProcessed.Add(ctx, 1, attrs)
	m.JobDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) RecordPersistenceError(ctx context.Context) {
	m.PersistenceErrors.Add(ctx, 1)
}

// Middleware records every request under its matched route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		attrs := metric.WithAttributes(methodAttr(r.Method), routeAttr(r), statusAttr(sw.status))
		m.HTTPRequests.Add(r.Context(), 1, attrs)
		m.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(), attrs)
	})
}

func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
