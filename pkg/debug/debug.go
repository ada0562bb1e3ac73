package debug

import (
	"net/http"
	"net/http/pprof"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ready atomic.Bool

	// Optional readiness probe, e.g. a directory connection check.
	readyCheckMu sync.RWMutex
	readyCheck   func() bool

	// Global registry for ldapauth metrics
	globalRegistry = prometheus.NewRegistry()
)

func SetReady() {
	ready.Store(true)
}

func SetNotReady() {
	ready.Store(false)
}

// SetReadyCheck registers a readiness probe. IsReady returns true only when
// SetReady was called and the probe passes.
func SetReadyCheck(check func() bool) {
	readyCheckMu.Lock()
	defer readyCheckMu.Unlock()
	readyCheck = check
}

func IsReady() bool {
	if !ready.Load() {
		return false
	}

	readyCheckMu.RLock()
	check := readyCheck
	readyCheckMu.RUnlock()

	if check != nil {
		return check()
	}
	return true
}

// Registry returns the Prometheus registry for registering custom metrics.
// Metrics registered here will be exported on /metrics alongside default metrics.
func Registry() prometheus.Registerer {
	return globalRegistry
}

// Gatherer exposes the registry for tests.
func Gatherer() prometheus.Gatherer {
	return globalRegistry
}

// GetMux returns the handler for the debug listener: metrics, pprof and probes.
func GetMux() *http.ServeMux {
	mux := http.NewServeMux()

	gatherers := prometheus.Gatherers{
		prometheus.DefaultGatherer,
		globalRegistry,
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{}))
	mux.Handle("/debug/", http.HandlerFunc(pprof.Index))
	mux.Handle("/debug/cmdline", http.HandlerFunc(pprof.Cmdline))
	mux.Handle("/debug/profile", http.HandlerFunc(pprof.Profile))
	mux.Handle("/debug/symbol", http.HandlerFunc(pprof.Symbol))
	mux.Handle("/debug/trace", http.HandlerFunc(pprof.Trace))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	return mux
}
