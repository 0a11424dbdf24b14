package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every mirror metric. The job has no HTTP server, so the
// registry is flushed to a textfile at exit.
var Registry = prometheus.NewRegistry()

var (
	PagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_pages_total",
			Help: "Total number of page crawl attempts.",
		},
		[]string{"status", "error_type"}, // status: saved, failed
	)

	RenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirror_render_duration_seconds",
			Help:    "Duration of headless page renders.",
			Buckets: []float64{1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"domain"},
	)

	FrontierSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mirror_frontier_urls",
			Help: "Current number of URLs waiting in the crawl frontier.",
		},
	)

	AssetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_assets_total",
			Help: "Asset fetch outcomes.",
		},
		[]string{"kind", "result"}, // result: downloaded, cached, on_disk, failed
	)

	DocumentsChanged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_documents_changed_total",
			Help: "Documents rewritten by the transformer.",
		},
	)

	IssuesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_issues_total",
			Help: "Verification issues by kind and severity.",
		},
		[]string{"kind", "severity"},
	)

	ImagesOptimized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_images_optimized_total",
			Help: "Image optimizer outcomes.",
		},
		[]string{"result"}, // result: optimized, skipped, failed
	)
)

func init() {
	Registry.MustRegister(
		PagesTotal,
		RenderDuration,
		FrontierSize,
		AssetsTotal,
		DocumentsChanged,
		IssuesTotal,
		ImagesOptimized,
	)
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, Registry)
}
