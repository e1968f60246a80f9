package server

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshrpc/meshrpc/status"
)

// PrometheusMiddleware counts and times every dispatched call. It is
// the meshrpc analogue of controller/util.NewGrpcServer's
// grpc_prometheus interceptor pair, reworked as a Middleware since this
// engine never constructs a *grpc.Server to attach real gRPC
// interceptors to.
type PrometheusMiddleware struct {
	callsTotal  *prometheus.CounterVec
	callLatency *prometheus.HistogramVec

	mu    sync.Mutex
	start map[uint64]time.Time
}

// NewPrometheusMiddleware builds a PrometheusMiddleware and registers
// its collectors with reg.
func NewPrometheusMiddleware(reg prometheus.Registerer) *PrometheusMiddleware {
	p := &PrometheusMiddleware{
		callsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "meshrpc_server_calls_total",
			Help: "Total RPC calls dispatched, labeled by service, method and status code.",
		}, []string{"service", "method", "code"}),
		callLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "meshrpc_server_call_duration_seconds",
			Help: "RPC call handling latency in seconds, from dispatch to trailer.",
		}, []string{"service", "method"}),
		start: make(map[uint64]time.Time),
	}
	reg.MustRegister(p.callsTotal, p.callLatency)
	return p
}

func (p *PrometheusMiddleware) PreHandle(ctx context.Context, info CallInfo) *status.Status {
	p.mu.Lock()
	p.start[info.StreamID] = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *PrometheusMiddleware) PostHandle(ctx context.Context, info CallInfo) {
	p.observe(info, status.OK)
}

func (p *PrometheusMiddleware) OnError(ctx context.Context, info CallInfo, st *status.Status) {
	code := status.Internal
	if st != nil {
		code = st.Code
	}
	p.observe(info, code)
}

func (p *PrometheusMiddleware) observe(info CallInfo, code status.Code) {
	p.mu.Lock()
	start, ok := p.start[info.StreamID]
	delete(p.start, info.StreamID)
	p.mu.Unlock()

	p.callsTotal.WithLabelValues(info.Service, info.Method, code.String()).Inc()
	if ok {
		p.callLatency.WithLabelValues(info.Service, info.Method).Observe(time.Since(start).Seconds())
	}
}
