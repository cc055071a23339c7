// Package metrics exposes Prometheus collectors for mining and validation.
package metrics

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "aetherchain"
	subsystem = "ledger"
)

// Metrics groups the ledger collectors. A nil *Metrics records nothing.
type Metrics struct {
	blocksSealed    prometheus.Counter
	hashAttempts    prometheus.Counter
	miningFailures  prometheus.Counter
	miningDuration  prometheus.Histogram
	validationCount *prometheus.CounterVec
}

// New registers the ledger collectors on reg. A nil reg leaves the collectors
// unregistered, which is convenient in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		blocksSealed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blocks_sealed_total",
			Help:      "Number of blocks mined and signed",
		}),
		hashAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "hash_attempts_total",
			Help:      "Number of candidate hashes computed while mining",
		}),
		miningFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mining_failures_total",
			Help:      "Number of mining runs that ended without a sealed block",
		}),
		miningDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "mining_duration_seconds",
			Help:      "Wall-clock time spent searching for a nonce",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		validationCount: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "validations_total",
			Help:      "Number of chain validations by result",
		}, []string{"result"}),
	}
}

// ObserveMining records one mining run.
func (m *Metrics) ObserveMining(attempts uint64, elapsed time.Duration, sealed bool) {
	if m == nil {
		return
	}
	m.hashAttempts.Add(float64(attempts))
	m.miningDuration.Observe(elapsed.Seconds())
	if sealed {
		m.blocksSealed.Inc()
	} else {
		m.miningFailures.Inc()
	}
}

// ObserveValidation records the outcome of a chain validation.
func (m *Metrics) ObserveValidation(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.validationCount.WithLabelValues(result).Inc()
}

// Sample is a flattened counter or histogram count, used for printing.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Snapshot gathers the counters and histogram sample counts of g, sorted by name.
func Snapshot(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}
	var out []Sample
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			s := Sample{Name: mf.GetName()}
			if len(metric.GetLabel()) > 0 {
				s.Labels = make(map[string]string, len(metric.GetLabel()))
				for _, lp := range metric.GetLabel() {
					s.Labels[lp.GetName()] = lp.GetValue()
				}
			}
			switch {
			case metric.GetCounter() != nil:
				s.Value = metric.GetCounter().GetValue()
			case metric.GetHistogram() != nil:
				s.Value = float64(metric.GetHistogram().GetSampleCount())
			case metric.GetGauge() != nil:
				s.Value = metric.GetGauge().GetValue()
			default:
				continue
			}
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
