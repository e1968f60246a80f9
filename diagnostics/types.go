// Package diagnostics implements the diagnostics/metrics sidechannel of
// spec.md §4.8: a symmetric contract, built on the same call drivers as
// any other responder, that lets a process report logs and per-kind
// metrics to a collector. Grounded on controller/telemetry/server.go's
// reportsTotal counter idiom for the server-side sink and on
// controller/heartbeat's periodic-flush loop shape for the client.
package diagnostics

import "time"

// EventKind identifies which diagnostic signal a DiagnosticEvent
// carries, per spec.md §2 item 8's "logs, latency/error/resource/
// stream/trace metrics".
type EventKind int

const (
	LogEvent EventKind = iota
	LatencyEvent
	ErrorEvent
	ResourceEvent
	StreamEvent
	TraceEvent
)

func (k EventKind) String() string {
	switch k {
	case LogEvent:
		return "log"
	case LatencyEvent:
		return "latency"
	case ErrorEvent:
		return "error"
	case ResourceEvent:
		return "resource"
	case StreamEvent:
		return "stream"
	case TraceEvent:
		return "trace"
	default:
		return "unknown"
	}
}

// Level mirrors logrus's level scale closely enough to gate sampling
// without importing logrus into the wire types.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// DiagnosticEvent is one entry collected by a Client and eventually
// flushed to a Service, per spec.md §3's DiagnosticEvent entity.
type DiagnosticEvent struct {
	Kind      EventKind         `json:"kind"`
	Timestamp time.Time         `json:"timestamp"`
	Level     Level             `json:"level,omitempty"`
	Message   string            `json:"message,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`

	// Latency/Error/Resource/Stream/Trace-specific payload, set
	// according to Kind.
	Latency  *LatencyMetric  `json:"latency,omitempty"`
	Error    *ErrorMetric    `json:"error,omitempty"`
	Resource *ResourceMetric `json:"resource,omitempty"`
	Stream   *StreamMetric   `json:"stream,omitempty"`
	Trace    *TraceMetric    `json:"trace,omitempty"`
}

// LatencyMetric reports one call's observed duration.
type LatencyMetric struct {
	Service  string        `json:"service"`
	Method   string        `json:"method"`
	Duration time.Duration `json:"duration"`
}

// ErrorMetric reports one failed call's status.
type ErrorMetric struct {
	Service string `json:"service"`
	Method  string `json:"method"`
	Code    uint32 `json:"code"`
	Message string `json:"message"`
}

// ResourceMetric reports a point-in-time resource gauge (queue depth,
// memory, goroutine count, etc).
type ResourceMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit,omitempty"`
}

// StreamMetric reports a lifecycle milestone for one stream.
type StreamMetric struct {
	StreamID     uint64 `json:"streamId"`
	Service      string `json:"service"`
	Method       string `json:"method"`
	FramesSent   uint64 `json:"framesSent"`
	FramesRecv   uint64 `json:"framesRecv"`
	ClosedOKCode uint32 `json:"closedOkCode,omitempty"`
}

// TraceMetric reports one named span/checkpoint for distributed tracing
// stitched in by whatever sink the deployment wires in.
type TraceMetric struct {
	TraceID string            `json:"traceId"`
	SpanID  string            `json:"spanId"`
	Name    string            `json:"name"`
	Tags    map[string]string `json:"tags,omitempty"`
}

// StreamLogsAck is streamLogs's single response, sent once the client
// half-closes.
type StreamLogsAck struct {
	Accepted int `json:"accepted"`
}

// SendMetricsRequest batches arbitrary DiagnosticEvents in one unary
// call, the generic counterpart to the kind-specific Record* RPCs.
type SendMetricsRequest struct {
	Events []DiagnosticEvent `json:"events"`
}

// SendMetricsResponse acknowledges a SendMetrics call.
type SendMetricsResponse struct {
	Accepted int `json:"accepted"`
}

// RecordAck acknowledges any of the kind-specific Record* unary calls.
type RecordAck struct{}
