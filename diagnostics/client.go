package diagnostics

import (
	"context"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/meshrpc/meshrpc/client"
	"github.com/meshrpc/meshrpc/metadata"
)

// Defaults for Config, per spec.md §4.8.
const (
	DefaultFlushInterval  = 5 * time.Second
	DefaultMaxRetryCount  = 3
	DefaultSamplingRate   = 1.0
	diagnosticsService    = "Diagnostics"
	callTimeout           = 5 * time.Second
)

// Config tunes a Client's buffering, sampling and retry behavior.
type Config struct {
	// RingBufferSize bounds the in-memory log event queue.
	RingBufferSize int
	// FlushInterval is how often buffered log events are sent via
	// streamLogs.
	FlushInterval time.Duration
	// MaxRetryCount bounds exponential-backoff retries of a failed
	// send; the batch is dropped and counted once exhausted.
	MaxRetryCount uint64
	// MinLevel drops log events below this level at the source.
	MinLevel Level
	// SamplingRate is the fraction (0.0-1.0) of events of each kind
	// that are kept; kinds absent from the map default to 1.0 (no
	// sampling).
	SamplingRate map[EventKind]float64
	Logger       *logrus.Entry
}

func (c Config) withDefaults() Config {
	if c.RingBufferSize <= 0 {
		c.RingBufferSize = DefaultRingBufferSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
	if c.MaxRetryCount == 0 {
		c.MaxRetryCount = DefaultMaxRetryCount
	}
	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return c
}

func (c Config) rateFor(kind EventKind) float64 {
	if r, ok := c.SamplingRate[kind]; ok {
		return r
	}
	return DefaultSamplingRate
}

// Client collects diagnostic events locally and periodically flushes
// them to a collector's diagnostics.Service, retrying failed sends with
// exponential backoff, per spec.md §4.8.
type Client struct {
	ep  *client.Endpoint
	cfg Config
	buf *ringBuffer
	log *logrus.Entry

	droppedOnFlush atomic.Uint64
	stop           chan struct{}
}

// NewClient builds a diagnostics Client reporting over ep. Call Start
// to begin the periodic flush loop.
func NewClient(ep *client.Endpoint, cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		ep:   ep,
		cfg:  cfg,
		buf:  newRingBuffer(cfg.RingBufferSize),
		log:  cfg.Logger.WithField("component", "diagnostics.Client"),
		stop: make(chan struct{}),
	}
}

// Start runs the periodic flush loop until ctx is cancelled or Close is
// called.
func (c *Client) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			case <-ticker.C:
				c.flush()
			}
		}
	}()
}

// Close stops the flush loop. Any buffered events not yet flushed are
// discarded.
func (c *Client) Close() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// DroppedOnFlush reports how many log batches, and how many Record*
// calls, were dropped after exhausting retries.
func (c *Client) DroppedOnFlush() uint64 { return c.droppedOnFlush.Load() }

// BufferedLogs reports how many log events are currently queued,
// mainly for tests.
func (c *Client) BufferedLogs() int { return c.buf.len() }

// Log enqueues a log-kind DiagnosticEvent, subject to MinLevel gating
// and sampling. Flushed asynchronously via streamLogs.
func (c *Client) Log(level Level, message string, fields map[string]string) {
	if level < c.cfg.MinLevel {
		return
	}
	if !c.sample(LogEvent) {
		return
	}
	c.buf.push(DiagnosticEvent{Kind: LogEvent, Timestamp: time.Now(), Level: level, Message: message, Fields: fields})
}

func (c *Client) sample(kind EventKind) bool {
	rate := c.cfg.rateFor(kind)
	if rate >= 1 {
		return true
	}
	if rate <= 0 {
		return false
	}
	return rand.Float64() < rate
}

// flush drains the buffered log events and sends them as one
// streamLogs call, retrying the whole batch with exponential backoff.
// A batch that still fails after MaxRetryCount retries (MaxRetryCount+1
// attempts in all) is dropped and
// counted rather than re-buffered, per spec.md §4.8.
func (c *Client) flush() {
	events, evicted := c.buf.drain()
	if evicted > 0 {
		c.log.WithField("dropped", evicted).Warn("log ring buffer overflowed before flush")
	}
	if len(events) == 0 {
		return
	}

	op := func() error { return c.sendLogs(events) }
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetryCount)); err != nil {
		c.droppedOnFlush.Add(1)
		c.log.WithError(err).WithField("batch", len(events)).Error("dropping diagnostics batch after exhausting retries")
	}
}

func (c *Client) sendLogs(events []DiagnosticEvent) error {
	caller, err := c.ep.NewClientStream(metadata.Path(diagnosticsService, "streamLogs"), metadata.Metadata{},
		func() any { return &StreamLogsAck{} })
	if err != nil {
		return err
	}
	for i := range events {
		if err := caller.Send(&events[i]); err != nil {
			return err
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	_, err = caller.CloseAndRecv(ctx)
	return err
}

// recordUnary sends req to method as a single unary call, retrying with
// exponential backoff up to MaxRetryCount before dropping it.
func (c *Client) recordUnary(kind EventKind, method string, req any) {
	if !c.sample(kind) {
		return
	}
	op := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		defer cancel()
		_, err := c.ep.Invoke(ctx, metadata.Path(diagnosticsService, method), metadata.Metadata{}, req,
			func() any { return &RecordAck{} }, callTimeout)
		return err
	}
	if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.cfg.MaxRetryCount)); err != nil {
		c.droppedOnFlush.Add(1)
		c.log.WithError(err).WithField("method", method).Error("dropping diagnostics record after exhausting retries")
	}
}

// RecordLatency reports one call's observed duration.
func (c *Client) RecordLatency(m LatencyMetric) { c.recordUnary(LatencyEvent, "recordLatency", &m) }

// RecordError reports one failed call's status.
func (c *Client) RecordError(m ErrorMetric) { c.recordUnary(ErrorEvent, "recordError", &m) }

// RecordResource reports a point-in-time resource gauge.
func (c *Client) RecordResource(m ResourceMetric) { c.recordUnary(ResourceEvent, "recordResource", &m) }

// RecordStream reports a stream lifecycle milestone.
func (c *Client) RecordStream(m StreamMetric) { c.recordUnary(StreamEvent, "recordStream", &m) }

// RecordTrace reports one trace span/checkpoint.
func (c *Client) RecordTrace(m TraceMetric) { c.recordUnary(TraceEvent, "recordTrace", &m) }

// SendMetrics reports an arbitrary batch of events via the generic
// sendMetrics RPC, bypassing the ring buffer and sampling entirely —
// for callers that already have a pre-assembled batch.
func (c *Client) SendMetrics(ctx context.Context, events []DiagnosticEvent) (*SendMetricsResponse, error) {
	resp, err := c.ep.Invoke(ctx, metadata.Path(diagnosticsService, "sendMetrics"), metadata.Metadata{},
		&SendMetricsRequest{Events: events}, func() any { return &SendMetricsResponse{} }, callTimeout)
	if err != nil {
		return nil, err
	}
	return resp.(*SendMetricsResponse), nil
}
