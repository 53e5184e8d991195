package observability

import (
	"sync"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
)

type provider struct {
	tracer  observability.Tracer
	logger  observability.Logger
	metrics observability.Metrics
}

func (p *provider) Tracer() observability.Tracer   { return p.tracer }
func (p *provider) Logger() observability.Logger   { return p.logger }
func (p *provider) Metrics() observability.Metrics { return p.metrics }

// instrumentSet resolves metric keys to the instruments registered at start-up. A key
// nobody registered gets a no-op and one metric_unregistered warning.
type instrumentSet struct {
	counters   map[observability.MetricKey]observability.Counter
	histograms map[observability.MetricKey]observability.Histogram

	log    observability.Logger
	warned sync.Map // MetricKey -> struct{}
}

func (s *instrumentSet) Counter(name observability.MetricKey) observability.Counter {
	if c := s.counters[name]; c != nil {
		return c
	}
	s.unregistered(name, "counter")
	return observability.NopCounter()
}

func (s *instrumentSet) Histogram(name observability.MetricKey) observability.Histogram {
	if h := s.histograms[name]; h != nil {
		return h
	}
	s.unregistered(name, "histogram")
	return observability.NopHistogram()
}

func (s *instrumentSet) unregistered(name observability.MetricKey, kind string) {
	if _, seen := s.warned.LoadOrStore(name, struct{}{}); seen {
		return
	}
	s.log.Warn("metric_unregistered",
		observability.F("metric", string(name)),
		observability.F("kind", kind),
	)
}

// New assembles the bundle handed to use cases, workers and adapters. Nil parts fall back
// to no-ops; with no instruments at all, metrics are silently disabled.
func New(
	tracer observability.Tracer,
	logger observability.Logger,
	counters map[observability.MetricKey]observability.Counter,
	histograms map[observability.MetricKey]observability.Histogram,
) observability.Observability {
	if tracer == nil {
		tracer = observability.NopTracer()
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	p := &provider{tracer: tracer, logger: logger, metrics: observability.NopMetrics()}
	if len(counters) == 0 && len(histograms) == 0 {
		return p
	}

	set := &instrumentSet{
		counters:   make(map[observability.MetricKey]observability.Counter, len(counters)),
		histograms: make(map[observability.MetricKey]observability.Histogram, len(histograms)),
		log:        logger.With(observability.F("component", "metrics")),
	}
	for k, v := range counters {
		set.counters[k] = v
	}
	for k, v := range histograms {
		set.histograms[k] = v
	}
	p.metrics = set
	return p
}
