// Package promsink implements metrics.Sink over prometheus/client_golang,
// registering one CounterVec/HistogramVec per distinct (metric name,
// label key set) pair the first time it is observed.
package promsink

import (
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink adapts the metrics.Sink port to a prometheus.Registry. Safe for
// concurrent use: vector creation is guarded by mu, increments and
// observations are delegated to prometheus's own concurrency-safe types.
type Sink struct {
	reg *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// New wires a Sink to reg. Pass prometheus.NewRegistry() for an isolated
// registry, or prometheus.DefaultRegisterer's backing registry to join
// the process-wide default set.
func New(reg *prometheus.Registry) *Sink {
	return &Sink{
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Handler returns an http.Handler serving the Prometheus text exposition
// format for this Sink's registry.
func (s *Sink) Handler() http.Handler {
	return promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})
}

// IncCounter implements metrics.Sink.
func (s *Sink) IncCounter(name string, labels map[string]string) {
	keys, vals := sortedKV(labels)
	cv := s.counterVec(name, keys)
	if cv == nil {
		return
	}
	cv.WithLabelValues(vals...).Inc()
}

// ObserveHistogram implements metrics.Sink.
func (s *Sink) ObserveHistogram(name string, labels map[string]string, v float64) {
	keys, vals := sortedKV(labels)
	hv := s.histogramVec(name, keys)
	if hv == nil {
		return
	}
	hv.WithLabelValues(vals...).Observe(v)
}

func (s *Sink) counterVec(name string, keys []string) *prometheus.CounterVec {
	cacheKey := vecCacheKey(name, keys)
	s.mu.Lock()
	defer s.mu.Unlock()
	if cv, ok := s.counters[cacheKey]; ok {
		return cv
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: sanitizeName(name),
		Help: name + " (counter)",
	}, keys)
	if err := s.reg.Register(cv); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
				s.counters[cacheKey] = existing
				return existing
			}
		}
		return nil
	}
	s.counters[cacheKey] = cv
	return cv
}

func (s *Sink) histogramVec(name string, keys []string) *prometheus.HistogramVec {
	cacheKey := vecCacheKey(name, keys)
	s.mu.Lock()
	defer s.mu.Unlock()
	if hv, ok := s.histograms[cacheKey]; ok {
		return hv
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    sanitizeName(name),
		Help:    name + " (histogram)",
		Buckets: prometheus.DefBuckets,
	}, keys)
	if err := s.reg.Register(hv); err != nil {
		if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
				s.histograms[cacheKey] = existing
				return existing
			}
		}
		return nil
	}
	s.histograms[cacheKey] = hv
	return hv
}

func sortedKV(labels map[string]string) (keys, vals []string) {
	keys = make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals = make([]string, len(keys))
	for i, k := range keys {
		vals[i] = labels[k]
	}
	return keys, vals
}

func vecCacheKey(name string, keys []string) string {
	return sanitizeName(name) + "|" + strings.Join(keys, ",")
}

// sanitizeName maps a dotted/kernel-style metric name (e.g.
// "oap.frame-bytes") to the prometheus identifier charset.
// Names from pkg/metrics and pkg/bus are already snake_case, so this is
// a defensive pass for adapter-originated names.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "unnamed_metric"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}
