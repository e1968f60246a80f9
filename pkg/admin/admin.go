// Package admin implements the metrics/health/pprof side-listener every
// meshrpc binary (cmd/router, cmd/diagnosticsd) exposes alongside its
// RPC listener, adapted from the teacher's pkg/admin/admin.go: /metrics
// still serves the process's prometheus.Registerer, /ping is still a
// liveness probe, but /ready now calls back into an operator-supplied
// readiness probe instead of always answering "ok" — a router or
// diagnostics collector isn't ready until its Start loop is running.
package admin

import (
	"fmt"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadyFunc reports whether the process is ready to receive traffic.
type ReadyFunc func() bool

type handler struct {
	promHandler http.Handler
	enablePprof bool
	ready       ReadyFunc
}

// NewServer returns an initialized *http.Server listening on addr,
// serving /metrics from reg, /ping unconditionally, /ready from ready,
// and pprof's /debug/pprof/* tree when enablePprof is set. A nil ready
// always reports ready, matching the teacher's original behavior.
func NewServer(addr string, reg prometheus.Gatherer, enablePprof bool, ready ReadyFunc) *http.Server {
	if ready == nil {
		ready = func() bool { return true }
	}
	h := &handler{
		promHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		enablePprof: enablePprof,
		ready:       ready,
	}

	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 15 * time.Second,
	}
}

func (h *handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	debugPathPrefix := "/debug/pprof/"
	if h.enablePprof && strings.HasPrefix(req.URL.Path, debugPathPrefix) {
		switch req.URL.Path {
		case fmt.Sprintf("%scmdline", debugPathPrefix):
			pprof.Cmdline(w, req)
		case fmt.Sprintf("%sprofile", debugPathPrefix):
			pprof.Profile(w, req)
		case fmt.Sprintf("%strace", debugPathPrefix):
			pprof.Trace(w, req)
		case fmt.Sprintf("%ssymbol", debugPathPrefix):
			pprof.Symbol(w, req)
		default:
			pprof.Index(w, req)
		}
		return
	}
	switch req.URL.Path {
	case "/metrics":
		h.promHandler.ServeHTTP(w, req)
	case "/ping":
		h.servePing(w)
	case "/ready":
		h.serveReady(w)
	default:
		http.NotFound(w, req)
	}
}

func (h *handler) servePing(w http.ResponseWriter) {
	w.Write([]byte("pong\n"))
}

func (h *handler) serveReady(w http.ResponseWriter) {
	if !h.ready() {
		http.Error(w, "not ready\n", http.StatusServiceUnavailable)
		return
	}
	w.Write([]byte("ok\n"))
}
