// Package logging builds explicit, per-component *logrus.Entry loggers
// instead of reaching for logrus's package-global singleton, per
// spec.md §9 ("Endpoint holds no ambient logger state"). Grounded on
// pkg/flags.ConfigureAndParse's --log-level parsing
// (linkerd2 pkg/flags/flags.go), generalized from configuring the
// global logger in place to building an independent *logrus.Logger that
// every constructor in this module takes as an explicit argument.
package logging

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a fresh *logrus.Logger at level, writing to stderr. level
// accepts logrus's own names (panic/fatal/error/warn/warning/info/
// debug/trace) plus "critical", the level name spec.md's CLI surface
// uses that logrus itself doesn't have; "critical" maps to logrus's
// ErrorLevel, the most severe level anything but an explicit
// log.Fatal/log.Panic call would ever actually emit at.
func New(level string) (*logrus.Logger, error) {
	if level == "critical" {
		level = "error"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	log := logrus.New()
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return log, nil
}

// Component scopes log to one named unit of the system (e.g. "router",
// "diagnostics.Client"); every constructor in this module that accepts
// a *logrus.Entry expects one built this way rather than a bare
// logrus.StandardLogger() entry.
func Component(log *logrus.Logger, name string) *logrus.Entry {
	return log.WithField("component", name)
}
