// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package sampler periodically republishes the counters collected by user-space probes as
// named statistics.
//
// A Sampler attaches its probes once, on construction. Each tick it reads every counter table
// of the target, resolves the configured statistics against the snapshot and records one value
// per statistic with the capture time of the tick. When the probes could not be attached in
// fault tolerant mode, or the system has no eBPF support, every statistic is recorded as 0.
package sampler // import "go.opentelemetry.io/ebpf-sampler/sampler"

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ebpf-sampler/counters"
	"go.opentelemetry.io/ebpf-sampler/instrumentation"
	"go.opentelemetry.io/ebpf-sampler/libpf/xsync"
	"go.opentelemetry.io/ebpf-sampler/metrics"
	"go.opentelemetry.io/ebpf-sampler/probe"
	"go.opentelemetry.io/ebpf-sampler/statistic"
)

var (
	// ErrTableRead is returned for a tick whose counter tables could not be read.
	ErrTableRead = errors.New("failed to read counter tables")
	// ErrEmit is returned for a tick in which the sink rejected a value.
	ErrEmit = errors.New("failed to emit statistic")
	// ErrCadenceClosed is returned when the cadence channel was closed.
	ErrCadenceClosed = errors.New("cadence closed")
)

// Config is the configuration for a Sampler.
type Config struct {
	// Loader provides the instrumentation program.
	Loader instrumentation.Loader
	// Target is the binary and the probes to attach to it.
	Target probe.Target
	// FaultTolerant turns attachment failures into zero-valued statistics instead of errors.
	FaultTolerant bool
	// Statistics is the ordered list of series recorded every tick.
	Statistics []statistic.Descriptor
	// Sink receives the values.
	Sink metrics.Sink
	// Enabled is consulted on every tick. Nil means always enabled.
	Enabled func() bool
	// Now returns the capture time of a tick. Nil means time.Now.
	Now func() time.Time
}

// Stats counts tick outcomes.
type Stats struct {
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
	Disabled  uint64 `json:"disabled"`
}

// Sampler is the sampling cycle for a single target.
type Sampler struct {
	tables  []string
	stats   []statistic.Descriptor
	sink    metrics.Sink
	enabled func() bool
	now     func() time.Time
	report  instrumentation.AttachmentReport

	// handle is shared between the sampling loop and diagnostic readers. It is only locked
	// across table reads.
	handle     xsync.Mutex[*instrumentation.Handle]
	lastSample xsync.Mutex[time.Time]

	succeeded atomic.Uint64
	failed    atomic.Uint64
	disabled  atomic.Uint64
}

// New attaches the probes of cfg.Target and returns the Sampler. Attachment runs exactly once.
func New(cfg Config) (*Sampler, error) {
	if cfg.Loader == nil {
		return nil, errors.New("missing instrumentation loader")
	}
	if cfg.Sink == nil {
		return nil, errors.New("missing sink")
	}
	if err := cfg.Target.Validate(); err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	h, report, err := instrumentation.Attach(cfg.Loader, cfg.Target, cfg.FaultTolerant)
	if err != nil {
		if !cfg.FaultTolerant {
			return nil, err
		}
		log.Warnf("Failed to instrument %s, statistics will report zero: %v",
			cfg.Target.Binary, err)
		h = nil
	}
	if h != nil && !report.Complete() {
		log.Warnf("Attached %d of %d probes to %s", len(report.Succeeded),
			len(cfg.Target.Probes), cfg.Target.Binary)
	}

	s := &Sampler{
		tables:  cfg.Target.Tables(),
		stats:   append([]statistic.Descriptor(nil), cfg.Statistics...),
		sink:    cfg.Sink,
		enabled: cfg.Enabled,
		now:     cfg.Now,
		report:  report,
		handle:  xsync.NewMutex(h),
	}
	if s.enabled == nil {
		s.enabled = func() bool { return true }
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Sample waits for the next tick on cadence and runs one sampling cycle. Waiting is the only
// blocking part; a disabled tick returns without touching the probes.
func (s *Sampler) Sample(ctx context.Context, cadence <-chan time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case _, ok := <-cadence:
		if !ok {
			return ErrCadenceClosed
		}
	}
	return s.tick()
}

// Run samples on every tick of cadence until ctx is canceled or cadence is closed. Errors of
// individual ticks are logged and do not stop the loop.
func (s *Sampler) Run(ctx context.Context, cadence <-chan time.Time) {
	for {
		err := s.Sample(ctx, cadence)
		switch {
		case err == nil:
		case errors.Is(err, ErrCadenceClosed), ctx.Err() != nil:
			return
		default:
			log.Errorf("Sampling failed: %v", err)
		}
	}
}

func (s *Sampler) tick() error {
	if !s.enabled() {
		s.disabled.Add(1)
		return nil
	}

	out := newOutcome(&s.succeeded, &s.failed)
	defer out.defaultToFailure()

	snap, err := s.Snapshot()
	if err != nil {
		out.reportFailure()
		return fmt.Errorf("%w: %w", ErrTableRead, err)
	}
	observations := statistic.Resolve(snap, s.stats)

	capturedAt := s.now()
	s.lastSample.Store(capturedAt)

	for i, o := range observations {
		if err := s.sink.RecordCounter(o.Descriptor, capturedAt, o.Value); err != nil {
			out.reportFailure()
			return fmt.Errorf("%w %s{entry=%q} (%d of %d): %w", ErrEmit,
				o.Descriptor.Name, o.Descriptor.Entry, i+1, len(observations), err)
		}
	}
	out.reportSuccess()
	return nil
}

// Snapshot reads all counter tables of the target. Without attached probes it returns a nil
// Snapshot, in which every counter is 0.
func (s *Sampler) Snapshot() (counters.Snapshot, error) {
	h := s.handle.Lock()
	defer s.handle.Unlock(&h)

	if *h == nil {
		return nil, nil
	}
	return counters.Read(*h, s.tables)
}

// LastSample returns the capture time of the last enabled tick, or the zero time.
func (s *Sampler) LastSample() time.Time {
	return s.lastSample.Load()
}

// Stats returns the tick outcome counters.
func (s *Sampler) Stats() Stats {
	return Stats{
		Succeeded: s.succeeded.Load(),
		Failed:    s.failed.Load(),
		Disabled:  s.disabled.Load(),
	}
}

// Report returns the attachment report of the construction.
func (s *Sampler) Report() instrumentation.AttachmentReport {
	return s.report
}

// Instrumented returns true if the sampler reads live counter tables.
func (s *Sampler) Instrumented() bool {
	h := s.handle.Lock()
	defer s.handle.Unlock(&h)
	return *h != nil
}

// Close detaches all probes. Later ticks report zero values. Close may be called multiple
// times.
func (s *Sampler) Close() error {
	h := s.handle.Lock()
	defer s.handle.Unlock(&h)

	if *h == nil {
		return nil
	}
	err := (*h).Close()
	*h = nil
	return err
}
