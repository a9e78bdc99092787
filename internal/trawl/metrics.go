package trawl

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics owns the Prometheus collectors for the trawl engine.
type Metrics struct {
	runsStarted    prometheus.Counter
	runsCompleted  *prometheus.CounterVec
	runDuration    prometheus.Histogram
	sitesProcessed *prometheus.CounterVec
	pagesRendered  prometheus.Counter
	matchesFound   *prometheus.CounterVec
	imagesHashed   prometheus.Counter
}

// NewMetrics registers the engine's collectors against the registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trawl_runs_started_total",
			Help: "Total trawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trawl_runs_completed_total",
			Help: "Total trawl runs completed partitioned by result.",
		}, []string{"result"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trawl_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		sitesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trawl_sites_processed_total",
			Help: "Sites scanned partitioned by outcome.",
		}, []string{"status"}),
		pagesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trawl_pages_rendered_total",
			Help: "Pages loaded through the headless render fallback.",
		}),
		matchesFound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trawl_matches_total",
			Help: "Match results produced partitioned by source.",
		}, []string{"source"}),
		imagesHashed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trawl_images_fingerprinted_total",
			Help: "Candidate images fetched and hashed.",
		}),
	}
	collectors := []prometheus.Collector{
		m.runsStarted, m.runsCompleted, m.runDuration,
		m.sitesProcessed, m.pagesRendered, m.matchesFound, m.imagesHashed,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				_ = already
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// NopMetrics returns collectors bound to a throwaway registry, for tests
// and one-shot CLI runs.
func NopMetrics() *Metrics {
	m, err := NewMetrics(prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) siteFinished(status SiteStatus) {
	if m == nil {
		return
	}
	m.sitesProcessed.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) matchFound(source string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.matchesFound.WithLabelValues(source).Add(float64(n))
}
