// Command router runs the federated mediation service of spec.md §4.7
// as a standalone process: a client registry, topology events, and P2P
// message routing, fronted by the admin metrics/health server every
// meshrpc binary exposes. Grounded on
// controller/cmd/destination/main.go's boot sequence (flags, admin
// server, signal-driven shutdown), generalized from a Kubernetes
// watcher + grpc.Server to a router.Router + server.Endpoint.
//
// Only the "memory" transport kind is actually wired in this reference
// build — http2 and websocket are validated as recognized enum values
// (spec.md §6) but require a byte-socket wire adapter outside this
// core's scope (see transport/wsdial and wire.Decoder's doc comments
// for the minimum interface such an adapter must satisfy). A deployment
// that builds one plugs it in by calling server.Endpoint.Serve with its
// own transport.Transport implementation.
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
	"github.com/meshrpc/meshrpc/internal/logging"
	"github.com/meshrpc/meshrpc/pkg/admin"
	"github.com/meshrpc/meshrpc/pkg/flags"
	"github.com/meshrpc/meshrpc/router"
	"github.com/meshrpc/meshrpc/server"
)

func main() {
	cfg, err := flags.ParseRouterFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	rootLog := logging.Component(log, "cmd/router")

	for _, tr := range cfg.Transports {
		if tr != "memory" {
			rootLog.Fatalf("--transport %q has no wire adapter in this reference build; only memory is wired into cmd/router", tr)
		}
	}

	metrics := prometheus.NewRegistry()
	rt := router.New(router.Options{
		ClientTimeout: cfg.ClientTimeout,
		Logger:        logging.Component(log, "router"),
	})

	reg := server.NewRegistry()
	if err := reg.Register(rt.ServiceRegistration()); err != nil {
		rootLog.Fatalf("register router service: %s", err)
	}
	// ep is ready to Serve any transport.Transport a deployment supplies
	// (e.g. one half of a transport/memory.NewPair for same-process
	// embedding, or a custom network adapter); this reference binary has
	// no such transport of its own to bind.
	ep := server.NewEndpoint(reg, codec.JSON{}, logging.Component(log, "server.Endpoint"), server.NewPrometheusMiddleware(metrics))
	_ = ep

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rt.Start(ctx)

	ready := false
	adminSrv := admin.NewServer(cfg.AdminAddr, metrics, false, func() bool { return ready })
	go func() {
		rootLog.Infof("admin server listening on %s", cfg.AdminAddr)
		if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			rootLog.Errorf("admin server error: %s", err)
		}
	}()
	ready = true

	rootLog.Infof("router listening at %s:%d for %v, client-timeout=%s", cfg.Host, cfg.Port, cfg.Transports, cfg.ClientTimeout)

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
			rootLog.WithField("clients", rt.Stats()).Info("router stats")
		}
	}
}
