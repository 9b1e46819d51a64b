// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"time"

	"github.com/peterbourgon/ff/v3"

	"go.opentelemetry.io/ebpf-sampler/internal/controller"
	"go.opentelemetry.io/ebpf-sampler/probe"
)

const (
	// Default values for CLI flags
	defaultArgInterval = 10 * time.Second
	defaultArgJitter   = 0.0
	defaultArgEnabled  = true

	envVarPrefix = "EBPF_SAMPLER"
)

// Help strings for command line arguments
var (
	binaryHelp        = "Path of the krb5kdc binary the probes are attached to."
	bpfObjectHelp     = "Path of a compiled eBPF object to load instead of the embedded one."
	bpfLogLevelHelp   = "Log level of the eBPF verifier output (0,1,2). Default is 0."
	configFileHelp    = "Path of a config file with one 'flag value' pair per line."
	enabledHelp       = "Sample on startup. Send SIGUSR1 to toggle sampling at runtime."
	faultTolerantHelp = "Keep running and report zero values if probes fail to attach."
	intervalHelp      = "Set the sampling interval."
	jitterHelp        = "Random +/- jitter [0..1] applied to every sampling interval."
	metricsAddrHelp   = "Listening address (e.g. localhost:9464) to serve /metrics and " +
		"/debug/counters. Empty disables the HTTP server."
	statisticsHelp  = "YAML file with statistic definitions replacing the built-in ones."
	verboseModeHelp = "Enable verbose logging and debugging capabilities."
	versionHelp     = "Show version."
)

func parseArgs(arguments []string) (*controller.Config, error) {
	var args controller.Config

	fs := flag.NewFlagSet("ebpf-sampler", flag.ContinueOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.StringVar(&args.Binary, "binary", probe.DefaultKrb5kdcBinary, binaryHelp)
	fs.UintVar(&args.BpfVerifierLogLevel, "bpf-log-level", 0, bpfLogLevelHelp)
	fs.StringVar(&args.BPFObject, "bpf-object", "", bpfObjectHelp)

	fs.StringVar(&args.ConfigFile, "config", "", configFileHelp)

	fs.BoolVar(&args.Enabled, "enabled", defaultArgEnabled, enabledHelp)

	fs.BoolVar(&args.FaultTolerant, "fault-tolerant", false, faultTolerantHelp)

	fs.DurationVar(&args.Interval, "interval", defaultArgInterval, intervalHelp)

	fs.Float64Var(&args.Jitter, "jitter", defaultArgJitter, jitterHelp)

	fs.StringVar(&args.MetricsAddr, "metrics-addr", "", metricsAddrHelp)

	fs.StringVar(&args.StatisticsFile, "statistics", "", statisticsHelp)

	fs.BoolVar(&args.VerboseMode, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.VerboseMode, "verbose", false, verboseModeHelp)
	fs.BoolVar(&args.Version, "version", false, versionHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	args.Fs = fs

	return &args, ff.Parse(fs, arguments,
		ff.WithEnvVarPrefix(envVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// This will ignore configuration file (only) options that the current sampler
		// does not recognize.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
}
