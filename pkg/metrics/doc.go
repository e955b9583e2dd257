// Package metrics exposes Prometheus counters and histograms for the
// reactor and launcher. It is observed from an HTTP handler running on its
// own goroutine; nothing in this package touches reactor-owned state.
package metrics
