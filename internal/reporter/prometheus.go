package reporter

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
)

// PrometheusHandler returns an http.HandlerFunc that writes metrics in
// Prometheus text exposition format (version 0.0.4). It does not require the
// Prometheus client library; metrics are formatted manually, matching the
// teacher's hand-rolled exposition approach.
func PrometheusHandler(collector *Collector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := collector.Stats()
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		uptimeSeconds := time.Since(collector.startTime).Seconds()

		writeMetric(w, "buildcore_requests_total",
			"Total number of resolved asset requests.",
			"counter", stats.TotalRequests)

		writeMetric(w, "buildcore_assets_emitted_total",
			"Total number of assets emitted by the transform pipeline.",
			"counter", stats.AssetsEmitted)

		writeMetric(w, "buildcore_dependencies_emitted_total",
			"Total number of dependency requests discovered during transforms.",
			"counter", stats.DependenciesEmitted)

		writeMetric(w, "buildcore_cache_hits_total",
			"Total number of asset requests served from cache.",
			"counter", stats.CacheHits)

		writeMetric(w, "buildcore_cache_misses_total",
			"Total number of asset requests that required a fresh transform.",
			"counter", stats.CacheMisses)

		writeMetricFloat(w, "buildcore_cache_hit_rate",
			"Cache hit rate percentage.",
			"gauge", stats.CacheHitRate)

		writeMetric(w, "buildcore_active_builds",
			"Number of asset requests currently being processed.",
			"gauge", stats.ActiveBuilds)

		writeMetricFloat(w, "buildcore_uptime_seconds",
			"Number of seconds since the daemon started.",
			"gauge", uptimeSeconds)

		writeCounterVec(w, "buildcore_errors_total",
			"Total number of transform errors by pipeline phase and transformer.",
			collector.Errors())

		writeHistogramVec(w, "buildcore_build_duration_seconds",
			"Asset transform duration in seconds by pipeline extension and cache outcome.",
			collector.BuildDuration())

		writeCounterVec(w, "buildcore_farm_dispatches_total",
			"Total farm dispatches per transform chain and outcome status.",
			collector.FarmDispatches())

		writeGaugeVec(w, "buildcore_chain_circuit_state",
			"Circuit breaker state per transform chain (0=closed, 1=open, 2=half-open).",
			collector.CircuitState())
	}
}

// writeMetric writes a single integer metric in Prometheus text format.
func writeMetric(w http.ResponseWriter, name, help, metricType string, value int64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %d\n", name, value)
}

// writeMetricFloat writes a single float64 metric in Prometheus text format.
func writeMetricFloat(w http.ResponseWriter, name, help, metricType string, value float64) {
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s %s\n", name, metricType)
	fmt.Fprintf(w, "%s %g\n", name, value)
}

// formatLabels formats a label map as a Prometheus label string, e.g. {phase="transform",transformer="js-babel"}.
func formatLabels(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	b.WriteByte('}')
	return b.String()
}

// writeCounterVec writes a labeled counter vec in Prometheus text format.
func writeCounterVec(w http.ResponseWriter, name, help string, cv *counterVec) {
	entries := cv.snapshot()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s counter\n", name)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s %d\n", name, formatLabels(e.labels), e.value)
	}
}

// writeHistogramVec writes a labeled histogram vec in Prometheus text format.
func writeHistogramVec(w http.ResponseWriter, name, help string, hv *histogramVec) {
	histograms := hv.snapshot()
	if len(histograms) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s histogram\n", name)
	for _, h := range histograms {
		labels := formatLabels(h.labels)
		var cumulative int64
		for i, bound := range h.buckets {
			cumulative += h.counts[i]
			le := fmt.Sprintf("%g", bound)
			if len(h.labels) == 0 {
				fmt.Fprintf(w, "%s_bucket{le=%q} %d\n", name, le, cumulative)
			} else {
				lbl := formatLabelsWithLe(h.labels, le)
				fmt.Fprintf(w, "%s_bucket%s %d\n", name, lbl, cumulative)
			}
		}
		if len(h.labels) == 0 {
			fmt.Fprintf(w, "%s_bucket{le=\"+Inf\"} %d\n", name, h.count)
		} else {
			lbl := formatLabelsWithLe(h.labels, "+Inf")
			fmt.Fprintf(w, "%s_bucket%s %d\n", name, lbl, h.count)
		}
		fmt.Fprintf(w, "%s_sum%s %g\n", name, labels, h.sum)
		fmt.Fprintf(w, "%s_count%s %d\n", name, labels, h.count)
	}
}

// formatLabelsWithLe formats labels with an additional "le" label for histogram buckets.
func formatLabelsWithLe(labels map[string]string, le string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, labels[k])
	}
	fmt.Fprintf(&b, ",le=%q", le)
	b.WriteByte('}')
	return b.String()
}

// writeGaugeVec writes a labeled gauge vec in Prometheus text format.
func writeGaugeVec(w http.ResponseWriter, name, help string, gv *gaugeVec) {
	entries := gv.snapshot()
	if len(entries) == 0 {
		return
	}
	fmt.Fprintf(w, "# HELP %s %s\n", name, help)
	fmt.Fprintf(w, "# TYPE %s gauge\n", name)
	for _, e := range entries {
		fmt.Fprintf(w, "%s%s %g\n", name, formatLabels(e.labels), e.value)
	}
}
