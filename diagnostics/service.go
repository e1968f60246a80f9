package diagnostics

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshrpc/meshrpc/call"
	"github.com/meshrpc/meshrpc/server"
)

// Sink receives every DiagnosticEvent a Service accepts. The core
// never persists events itself (spec.md §4's "storage is the
// responsibility of whatever sink a deployment wires in"); the default
// Sink just logs through logrus.
type Sink func(DiagnosticEvent)

// LoggingSink returns a Sink that writes each event through log at a
// level matching the event's own Level field.
func LoggingSink(log *logrus.Entry) Sink {
	return func(ev DiagnosticEvent) {
		entry := log.WithField("kind", ev.Kind.String())
		for k, v := range ev.Fields {
			entry = entry.WithField(k, v)
		}
		switch ev.Level {
		case LevelDebug:
			entry.Debug(ev.Message)
		case LevelWarn:
			entry.Warn(ev.Message)
		case LevelError:
			entry.Error(ev.Message)
		default:
			entry.Info(ev.Message)
		}
	}
}

// Service is the responder half of the diagnostics contract: it
// accepts streamed logs and unary metric reports and forwards each
// DiagnosticEvent to its Sink, counting how many it has accepted.
type Service struct {
	sink     Sink
	log      *logrus.Entry
	accepted atomic.Uint64
}

// NewService builds a Service delivering every accepted event to sink.
// A nil sink is replaced with LoggingSink(log).
func NewService(sink Sink, log *logrus.Entry) *Service {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "diagnostics.Service")
	if sink == nil {
		sink = LoggingSink(log)
	}
	return &Service{sink: sink, log: log}
}

// Accepted reports how many events this Service has forwarded to its
// sink since construction.
func (s *Service) Accepted() uint64 { return s.accepted.Load() }

func (s *Service) accept(ev DiagnosticEvent) {
	s.accepted.Add(1)
	s.sink(ev)
}

// ServiceRegistration returns the Diagnostics contract's methods, ready
// to pass to a server.Registry.
func (s *Service) ServiceRegistration() server.ServiceRegistration {
	return server.ServiceRegistration{
		Name: "Diagnostics",
		Methods: []server.MethodEntry{
			{
				Method:       "streamLogs",
				Kind:         call.ClientStream,
				NewRequest:   func() any { return &DiagnosticEvent{} },
				ClientStream: s.handleStreamLogs,
			},
			{
				Method:     "sendMetrics",
				Kind:       call.Unary,
				NewRequest: func() any { return &SendMetricsRequest{} },
				Unary:      s.handleSendMetrics,
			},
			{
				Method:     "recordLatency",
				Kind:       call.Unary,
				NewRequest: func() any { return &LatencyMetric{} },
				Unary:      s.handler(LatencyEvent, func(ev *DiagnosticEvent, v any) { ev.Latency = v.(*LatencyMetric) }),
			},
			{
				Method:     "recordError",
				Kind:       call.Unary,
				NewRequest: func() any { return &ErrorMetric{} },
				Unary:      s.handler(ErrorEvent, func(ev *DiagnosticEvent, v any) { ev.Error = v.(*ErrorMetric) }),
			},
			{
				Method:     "recordResource",
				Kind:       call.Unary,
				NewRequest: func() any { return &ResourceMetric{} },
				Unary:      s.handler(ResourceEvent, func(ev *DiagnosticEvent, v any) { ev.Resource = v.(*ResourceMetric) }),
			},
			{
				Method:     "recordStream",
				Kind:       call.Unary,
				NewRequest: func() any { return &StreamMetric{} },
				Unary:      s.handler(StreamEvent, func(ev *DiagnosticEvent, v any) { ev.Stream = v.(*StreamMetric) }),
			},
			{
				Method:     "recordTrace",
				Kind:       call.Unary,
				NewRequest: func() any { return &TraceMetric{} },
				Unary:      s.handler(TraceEvent, func(ev *DiagnosticEvent, v any) { ev.Trace = v.(*TraceMetric) }),
			},
		},
	}
}

// handler builds a kind-specific unary handler: it wraps the decoded
// request in a DiagnosticEvent of kind via attach, forwards it to the
// sink, and acknowledges.
func (s *Service) handler(kind EventKind, attach func(*DiagnosticEvent, any)) call.UnaryHandler {
	return func(ctx context.Context, req any) (any, error) {
		ev := DiagnosticEvent{Kind: kind, Timestamp: time.Now()}
		attach(&ev, req)
		s.accept(ev)
		return &RecordAck{}, nil
	}
}

func (s *Service) handleSendMetrics(ctx context.Context, req any) (any, error) {
	r := req.(*SendMetricsRequest)
	for _, ev := range r.Events {
		s.accept(ev)
	}
	return &SendMetricsResponse{Accepted: len(r.Events)}, nil
}

func (s *Service) handleStreamLogs(ctx context.Context, recv call.Recv) (any, error) {
	n := 0
	for {
		v, ok, err := recv()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		s.accept(*v.(*DiagnosticEvent))
		n++
	}
	return &StreamLogsAck{Accepted: n}, nil
}
