// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/ebpf-sampler/internal/controller"

import (
	"errors"
	"flag"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ebpf-sampler/instrumentation"
)

// MaxBPFVerifierLogLevel is the highest verifier log level the kernel accepts.
const MaxBPFVerifierLogLevel = 2

type Config struct {
	Binary              string
	BPFObject           string
	BpfVerifierLogLevel uint
	ConfigFile          string
	Enabled             bool
	FaultTolerant       bool
	Interval            time.Duration
	Jitter              float64
	MetricsAddr         string
	StatisticsFile      string
	VerboseMode         bool
	Version             bool

	// Loader replaces the eBPF loader built from BPFObject and BpfVerifierLogLevel.
	Loader instrumentation.Loader

	Fs *flag.FlagSet
}

// Dump visits all flag sets, and dumps them all to debug
// Used for verbose mode logging.
func (cfg *Config) Dump() {
	if cfg.Fs == nil {
		return
	}
	log.Debug("Config:")
	cfg.Fs.VisitAll(func(f *flag.Flag) {
		log.Debug(fmt.Sprintf("%s: %v", f.Name, f.Value))
	})
}

// Validate runs validations on the provided configuration, and returns errors
// if invalid values were provided.
func (cfg *Config) Validate() error {
	if cfg.Binary == "" {
		return errors.New("no target binary specified")
	}
	if cfg.Interval <= 0 {
		return fmt.Errorf("invalid sampling interval %v: must be positive", cfg.Interval)
	}
	if cfg.Jitter < 0 || cfg.Jitter > 1 {
		return fmt.Errorf("invalid jitter %v: must be in [0..1]", cfg.Jitter)
	}
	if cfg.BpfVerifierLogLevel > MaxBPFVerifierLogLevel {
		return fmt.Errorf("invalid eBPF verifier log level: %d", cfg.BpfVerifierLogLevel)
	}
	return nil
}
