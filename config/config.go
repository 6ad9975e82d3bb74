// Package config loads runtime options from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"libtock-go/x/mathx"
)

const prefix = "tock"

// Bounds for the completion log of unawaited calls.
const (
	minCompletionLog = 1
	maxCompletionLog = 64
)

// Options tune the call adapter and logging.
type Options struct {
	// WaitTimeout bounds every blocking wait. 0 blocks until the kernel
	// delivers the upcall.
	WaitTimeout time.Duration `envconfig:"WAIT_TIMEOUT" default:"0s"`
	// CompletionLog is how many completions of unawaited calls are kept
	// for Wait/WaitFor. Oldest entries are dropped first.
	CompletionLog int `envconfig:"COMPLETION_LOG" default:"8"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogDev   bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load reads TOCK_* variables.
func Load() (Options, error) {
	var o Options
	if err := envconfig.Process(prefix, &o); err != nil {
		return Options{}, fmt.Errorf("config: %w", err)
	}
	return o.normalise(), nil
}

// Default returns the options used when nothing is set.
func Default() Options {
	return Options{
		CompletionLog: 8,
		LogLevel:      "info",
	}
}

func (o Options) normalise() Options {
	o.CompletionLog = mathx.Clamp(o.CompletionLog, minCompletionLog, maxCompletionLog)
	o.WaitTimeout = mathx.Max(o.WaitTimeout, 0)
	return o
}
