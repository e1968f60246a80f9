// Command diagnosticsd runs the diagnostics/metrics sidechannel of
// spec.md §4.8 as a standalone collector process: it accepts streamed
// logs and unary metric reports and forwards each DiagnosticEvent to a
// sink (logging by default), fronted by the same admin metrics/health
// surface as cmd/router. See cmd/router's package doc for why only the
// "memory" transport is wired in this reference build.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshrpc/meshrpc/codec"
	"github.com/meshrpc/meshrpc/diagnostics"
	"github.com/meshrpc/meshrpc/internal/logging"
	"github.com/meshrpc/meshrpc/pkg/admin"
	"github.com/meshrpc/meshrpc/pkg/flags"
	"github.com/meshrpc/meshrpc/server"
)

func main() {
	cfg, err := flags.ParseDiagnosticsFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	rootLog := logging.Component(log, "cmd/diagnosticsd")

	metrics := prometheus.NewRegistry()
	svc := diagnostics.NewService(nil, logging.Component(log, "diagnostics.Service"))

	reg := server.NewRegistry()
	if err := reg.Register(svc.ServiceRegistration()); err != nil {
		rootLog.Fatalf("register diagnostics service: %s", err)
	}
	ep := server.NewEndpoint(reg, codec.JSON{}, logging.Component(log, "server.Endpoint"), server.NewPrometheusMiddleware(metrics))
	_ = ep

	ready := false
	adminSrv := admin.NewServer(cfg.AdminAddr, metrics, false, func() bool { return ready })
	go func() {
		rootLog.Infof("admin server listening on %s", cfg.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rootLog.Errorf("admin server error: %s", err)
		}
	}()
	ready = true

	rootLog.Infof("diagnostics collector listening at %s:%d", cfg.Host, cfg.Port)

	var statsTicker *time.Ticker
	var statsC <-chan time.Time
	if cfg.Stats {
		statsTicker = time.NewTicker(30 * time.Second)
		statsC = statsTicker.C
		defer statsTicker.Stop()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-stop:
			rootLog.Info("shutting down")
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = adminSrv.Shutdown(shutdownCtx)
			shutdownCancel()
			return
		case <-statsC:
			rootLog.WithField("accepted", svc.Accepted()).Info("diagnostics stats")
		}
	}
}
