package diagnostics_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/meshrpc/meshrpc/client"
	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/diagnostics"
	"github.com/meshrpc/meshrpc/server"
	"github.com/meshrpc/meshrpc/transport"
	"github.com/meshrpc/meshrpc/transport/memory"
)

func newHarnessWithConfig(t *testing.T, cfg diagnostics.Config) (*diagnostics.Service, *diagnostics.Client) {
	t.Helper()
	ta, tb := memory.NewPair(transport.Options{})
	t.Cleanup(func() { ta.Close(); tb.Close() })

	svc := diagnostics.NewService(nil, logrus.NewEntry(logrus.New()))
	reg := server.NewRegistry()
	if err := reg.Register(svc.ServiceRegistration()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	ep := server.NewEndpoint(reg, codec.JSON{}, logrus.NewEntry(logrus.New()))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ep.Serve(ctx, tb)

	c := diagnostics.NewClient(client.New(ta, codec.JSON{}), cfg)
	return svc, c
}

func newHarness(t *testing.T) (*diagnostics.Service, *diagnostics.Client) {
	t.Helper()
	return newHarnessWithConfig(t, diagnostics.Config{FlushInterval: time.Hour})
}

func TestRecordLatencyReachesSink(t *testing.T) {
	svc, c := newHarness(t)
	c.RecordLatency(diagnostics.LatencyMetric{Service: "Router", Method: "ping", Duration: 12 * time.Millisecond})

	deadline := time.After(time.Second)
	for svc.Accepted() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for recordLatency to reach the sink")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestLogBufferFlushesOnInterval(t *testing.T) {
	svc, c := newHarnessWithConfig(t, diagnostics.Config{FlushInterval: 10 * time.Millisecond})
	c.Log(diagnostics.LevelInfo, "hello", map[string]string{"k": "v"})
	c.Log(diagnostics.LevelInfo, "world", nil)
	if got := c.BufferedLogs(); got != 2 {
		t.Fatalf("expected 2 buffered log events, got %d", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	defer c.Close()

	deadline := time.After(time.Second)
	for svc.Accepted() < 2 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for streamLogs flush, accepted=%d", svc.Accepted())
		case <-time.After(time.Millisecond):
		}
	}
	if got := c.BufferedLogs(); got != 0 {
		t.Fatalf("expected buffer to drain after flush, got %d", got)
	}
}

func TestLogBelowMinLevelIsDropped(t *testing.T) {
	_, c := newHarnessWithConfig(t, diagnostics.Config{FlushInterval: time.Hour, MinLevel: diagnostics.LevelInfo})
	c.Log(diagnostics.LevelDebug, "too quiet", nil)
	if got := c.BufferedLogs(); got != 0 {
		t.Fatalf("expected debug event under MinLevel to be dropped, got %d buffered", got)
	}
}

func TestSamplingRateZeroDropsEveryEventOfThatKind(t *testing.T) {
	svc, c := newHarnessWithConfig(t, diagnostics.Config{
		SamplingRate: map[diagnostics.EventKind]float64{diagnostics.LatencyEvent: 0},
	})
	c.RecordLatency(diagnostics.LatencyMetric{Service: "X", Method: "Y"})
	time.Sleep(20 * time.Millisecond)
	if svc.Accepted() != 0 {
		t.Fatalf("expected zero-rate sampling to drop the event, sink accepted %d", svc.Accepted())
	}
}

func TestSendMetricsBatch(t *testing.T) {
	svc, c := newHarness(t)
	resp, err := c.SendMetrics(context.Background(), []diagnostics.DiagnosticEvent{
		{Kind: diagnostics.LogEvent, Message: "a"},
		{Kind: diagnostics.LogEvent, Message: "b"},
	})
	if err != nil {
		t.Fatalf("SendMetrics: %v", err)
	}
	if resp.Accepted != 2 {
		t.Fatalf("expected 2 accepted, got %d", resp.Accepted)
	}
	if svc.Accepted() != 2 {
		t.Fatalf("expected sink to have seen 2 events, got %d", svc.Accepted())
	}
}
