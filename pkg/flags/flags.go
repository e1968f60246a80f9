// Package flags parses the CLI surface of spec.md §6 for meshrpc's
// built-in server binaries. Grounded on the teacher's
// pkg/flags.ConfigureAndParse (linkerd2 pkg/flags/flags.go): a
// dedicated FlagSet parsed once at startup. --log-level is stored as
// given here; internal/logging.New validates it through
// logrus.ParseLevel rather than hand-rolled parsing. The teacher's
// spf13/pflag-adjacent flag.Var repeatable-value idiom is reused here
// for --transport; stdlib flag.FlagSet is used throughout exactly as
// controller/cmd/destination/main.go uses it, so pflag itself is never
// imported (see DESIGN.md).
package flags

import (
	"flag"
	"fmt"
	"strings"
	"time"
)

// transportList accumulates one or more repeated --transport flags.
type transportList []string

func (t *transportList) String() string { return strings.Join(*t, ",") }

func (t *transportList) Set(v string) error {
	*t = append(*t, v)
	return nil
}

func validateTransport(name string) error {
	switch name {
	case "http2", "websocket", "memory":
		return nil
	default:
		return fmt.Errorf("flags: unrecognized --transport %q (want http2, websocket or memory)", name)
	}
}

// RouterConfig is cmd/router's parsed flag set, matching spec.md §6's
// "Router CLI — minimum recognized flags".
type RouterConfig struct {
	Host          string
	Port          int
	Transports    []string
	ClientTimeout time.Duration
	Stats         bool
	LogLevel      string
	AdminAddr     string
}

// ParseRouterFlags parses args (normally os.Args[1:]).
func ParseRouterFlags(args []string) (RouterConfig, error) {
	fs := flag.NewFlagSet("router", flag.ContinueOnError)
	host := fs.String("host", "localhost", "address to listen on")
	port := fs.Int("port", 7575, "primary listen port")
	var transports transportList
	fs.Var(&transports, "transport", "transport to accept: http2, websocket, or memory (repeatable)")
	clientTimeout := fs.Duration("client-timeout", 300*time.Second, "router client liveness timeout")
	stats := fs.Bool("stats", false, "log periodic router stats")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warning, error, critical")
	adminAddr := fs.String("admin-addr", ":9990", "address for the metrics/health/pprof admin server")

	if err := fs.Parse(args); err != nil {
		return RouterConfig{}, err
	}
	if len(transports) == 0 {
		transports = transportList{"memory"}
	}
	for _, tr := range transports {
		if err := validateTransport(tr); err != nil {
			return RouterConfig{}, err
		}
	}
	return RouterConfig{
		Host:          *host,
		Port:          *port,
		Transports:    []string(transports),
		ClientTimeout: *clientTimeout,
		Stats:         *stats,
		LogLevel:      *logLevel,
		AdminAddr:     *adminAddr,
	}, nil
}

// DiagnosticsConfig is cmd/diagnosticsd's parsed flag set: the same
// host/port/log-level/stats/admin shape as RouterConfig, minus the
// router-specific client timeout and transport list (a diagnostics
// collector is always dialed directly, never multiplexed across
// transport kinds at the CLI level).
type DiagnosticsConfig struct {
	Host      string
	Port      int
	Stats     bool
	LogLevel  string
	AdminAddr string
}

// ParseDiagnosticsFlags parses args (normally os.Args[1:]).
func ParseDiagnosticsFlags(args []string) (DiagnosticsConfig, error) {
	fs := flag.NewFlagSet("diagnosticsd", flag.ContinueOnError)
	host := fs.String("host", "localhost", "address to listen on")
	port := fs.Int("port", 7676, "primary listen port")
	stats := fs.Bool("stats", false, "log periodic collector stats")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warning, error, critical")
	adminAddr := fs.String("admin-addr", ":9991", "address for the metrics/health/pprof admin server")

	if err := fs.Parse(args); err != nil {
		return DiagnosticsConfig{}, err
	}
	return DiagnosticsConfig{
		Host:      *host,
		Port:      *port,
		Stats:     *stats,
		LogLevel:  *logLevel,
		AdminAddr: *adminAddr,
	}, nil
}
