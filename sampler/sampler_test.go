// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sampler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/ebpf-sampler/instrumentation"
	"go.opentelemetry.io/ebpf-sampler/instrumentation/instrumentationtest"
	"go.opentelemetry.io/ebpf-sampler/probe"
	"go.opentelemetry.io/ebpf-sampler/statistic"
)

var (
	testTarget = probe.Target{
		Binary: "/usr/sbin/krb5kdc",
		Probes: []probe.Spec{
			{Symbol: "fn_a", Kind: probe.Entry, Handler: "count_a", Table: "counts_A"},
			{Symbol: "fn_b", Kind: probe.Entry, Handler: "count_b", Table: "counts_B"},
			{Symbol: "fn_c", Kind: probe.Return, Handler: "count_c", Table: "counts_C"},
		},
	}

	testStats = []statistic.Descriptor{
		{Name: "a", Entry: "x", Table: "counts_A"},
		{Name: "b", Entry: "x", Table: "counts_B"},
		{Name: "c", Entry: "x", Table: "counts_C"},
	}

	captureTime = time.Unix(1700000000, 0)
)

type record struct {
	Desc  statistic.Descriptor
	TS    time.Time
	Value uint64
}

type fakeSink struct {
	mu      sync.Mutex
	records []record
	// failAt makes the n-th call (1-based) fail.
	failAt int
	calls  int
}

var errSinkFull = errors.New("sink full")

func (f *fakeSink) RecordCounter(desc statistic.Descriptor, ts time.Time, value uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return errSinkFull
	}
	f.records = append(f.records, record{Desc: desc, TS: ts, Value: value})
	return nil
}

func (f *fakeSink) Records() []record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]record(nil), f.records...)
}

func (f *fakeSink) Values() []uint64 {
	var values []uint64
	for _, r := range f.Records() {
		values = append(values, r.Value)
	}
	return values
}

func newTestSampler(t *testing.T, loader instrumentation.Loader, faultTolerant bool,
	sink *fakeSink) *Sampler {
	t.Helper()
	s, err := New(Config{
		Loader:        loader,
		Target:        testTarget,
		FaultTolerant: faultTolerant,
		Statistics:    testStats,
		Sink:          sink,
		Now:           func() time.Time { return captureTime },
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s
}

// tickNow returns a cadence with one pending tick.
func tickNow() <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestSamplePartialAttach(t *testing.T) {
	prog := &instrumentationtest.Program{
		FailSymbols: map[string]error{"fn_c": errors.New("no such symbol")},
	}
	prog.SetCounter("counts_A", "x", 5)
	prog.Tables["counts_B"] = map[string]uint64{}
	prog.Tables["counts_C"] = map[string]uint64{}

	sink := &fakeSink{}
	s := newTestSampler(t, &instrumentationtest.Loader{Program: prog}, true, sink)
	assert.True(t, s.Instrumented())
	assert.False(t, s.Report().Complete())

	require.NoError(t, s.Sample(context.Background(), tickNow()))
	assert.Equal(t, []record{
		{Desc: testStats[0], TS: captureTime, Value: 5},
		{Desc: testStats[1], TS: captureTime, Value: 0},
		{Desc: testStats[2], TS: captureTime, Value: 0},
	}, sink.Records())
	assert.Equal(t, captureTime, s.LastSample())
	assert.Equal(t, Stats{Succeeded: 1}, s.Stats())
}

func TestSampleCountersAdvance(t *testing.T) {
	prog := &instrumentationtest.Program{KeyLen: 40}
	prog.SetCounter("counts_A", "x", 1)
	prog.SetCounter("counts_B", "x", 2)
	prog.SetCounter("counts_C", "x", 3)

	sink := &fakeSink{}
	s := newTestSampler(t, &instrumentationtest.Loader{Program: prog}, false, sink)

	require.NoError(t, s.Sample(context.Background(), tickNow()))
	prog.SetCounter("counts_A", "x", 10)
	require.NoError(t, s.Sample(context.Background(), tickNow()))

	assert.Equal(t, []uint64{1, 2, 3, 10, 2, 3}, sink.Values())
}

func TestSampleFaultTolerantAttachFailure(t *testing.T) {
	loadErr := errors.New("verifier rejected program")
	sink := &fakeSink{}
	s := newTestSampler(t, &instrumentationtest.Loader{Err: loadErr}, true, sink)
	assert.False(t, s.Instrumented())

	for range 2 {
		require.NoError(t, s.Sample(context.Background(), tickNow()))
	}
	assert.Equal(t, []uint64{0, 0, 0, 0, 0, 0}, sink.Values())
	for _, r := range sink.Records() {
		assert.Equal(t, captureTime, r.TS)
	}

	snap, err := s.Snapshot()
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestSampleUnavailable(t *testing.T) {
	loader := &instrumentationtest.Loader{
		Err: fmt.Errorf("%w: not supported", instrumentation.ErrUnavailable),
	}
	sink := &fakeSink{}
	// Unavailable instrumentation is not an error even without fault tolerance.
	s := newTestSampler(t, loader, false, sink)
	assert.True(t, s.Report().Unavailable)

	require.NoError(t, s.Sample(context.Background(), tickNow()))
	assert.Equal(t, []uint64{0, 0, 0}, sink.Values())
}

func TestNewNotFaultTolerant(t *testing.T) {
	prog := &instrumentationtest.Program{
		FailSymbols: map[string]error{"fn_b": errors.New("no such symbol")},
	}
	loader := &instrumentationtest.Loader{Program: prog}

	s, err := New(Config{
		Loader:     loader,
		Target:     testTarget,
		Statistics: testStats,
		Sink:       &fakeSink{},
	})
	require.ErrorIs(t, err, instrumentation.ErrProbeAttach)
	assert.Nil(t, s)
	assert.Equal(t, 1, prog.Closed())

	_, err = New(Config{
		Loader:     &instrumentationtest.Loader{Err: errors.New("boom")},
		Target:     testTarget,
		Statistics: testStats,
		Sink:       &fakeSink{},
	})
	require.ErrorIs(t, err, instrumentation.ErrProgramLoad)
}

func TestNewInvalidConfig(t *testing.T) {
	loader := &instrumentationtest.Loader{Program: &instrumentationtest.Program{}}

	tests := map[string]Config{
		"no_loader": {Target: testTarget, Sink: &fakeSink{}},
		"no_sink":   {Loader: loader, Target: testTarget},
		"no_binary": {Loader: loader, Sink: &fakeSink{},
			Target: probe.Target{Probes: testTarget.Probes}},
	}
	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := New(cfg)
			require.Error(t, err)
		})
	}
	assert.Equal(t, 0, loader.Loads())
}

func TestSampleDisabled(t *testing.T) {
	prog := &instrumentationtest.Program{}
	prog.SetCounter("counts_A", "x", 5)

	var enabled bool
	sink := &fakeSink{}
	s, err := New(Config{
		Loader:     &instrumentationtest.Loader{Program: prog},
		Target:     testTarget,
		Statistics: testStats,
		Sink:       sink,
		Enabled:    func() bool { return enabled },
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Sample(context.Background(), tickNow()))
	assert.Empty(t, sink.Records())
	assert.Equal(t, 0, prog.Reads())
	assert.True(t, s.LastSample().IsZero())
	assert.Equal(t, Stats{Disabled: 1}, s.Stats())
}

func TestSampleTableReadError(t *testing.T) {
	readErr := errors.New("map lookup failed")
	prog := &instrumentationtest.Program{
		ReadErr: map[string]error{"counts_B": readErr},
	}
	prog.SetCounter("counts_A", "x", 5)
	prog.SetCounter("counts_C", "x", 1)

	sink := &fakeSink{}
	s := newTestSampler(t, &instrumentationtest.Loader{Program: prog}, false, sink)

	err := s.Sample(context.Background(), tickNow())
	require.ErrorIs(t, err, ErrTableRead)
	require.ErrorIs(t, err, readErr)
	assert.Empty(t, sink.Records())
	assert.Equal(t, Stats{Failed: 1}, s.Stats())

	// The next tick runs normally.
	prog.ReadErr = nil
	prog.SetCounter("counts_B", "x", 2)
	require.NoError(t, s.Sample(context.Background(), tickNow()))
	assert.Equal(t, []uint64{5, 2, 1}, sink.Values())
	assert.Equal(t, Stats{Succeeded: 1, Failed: 1}, s.Stats())
}

func TestSampleEmitError(t *testing.T) {
	for k := 1; k <= len(testStats); k++ {
		t.Run(fmt.Sprintf("fail_at_%d", k), func(t *testing.T) {
			sink := &fakeSink{failAt: k}
			s := newTestSampler(t,
				&instrumentationtest.Loader{Err: instrumentation.ErrUnavailable}, false, sink)

			err := s.Sample(context.Background(), tickNow())
			require.ErrorIs(t, err, ErrEmit)
			require.ErrorIs(t, err, errSinkFull)
			assert.Len(t, sink.Records(), k-1)
			assert.Equal(t, k, sink.calls)
		})
	}
}

func TestSampleCanceled(t *testing.T) {
	sink := &fakeSink{}
	s := newTestSampler(t,
		&instrumentationtest.Loader{Err: instrumentation.ErrUnavailable}, false, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.Sample(ctx, make(chan time.Time))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.Records())

	cadence := make(chan time.Time)
	close(cadence)
	require.ErrorIs(t, s.Sample(context.Background(), cadence), ErrCadenceClosed)
}

func TestSampleCanceledWithPendingTick(t *testing.T) {
	prog := &instrumentationtest.Program{}
	prog.SetCounter("counts_A", "x", 1)
	sink := &fakeSink{}
	s := newTestSampler(t, &instrumentationtest.Loader{Program: prog}, true, sink)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for range 50 {
		require.ErrorIs(t, s.Sample(ctx, tickNow()), context.Canceled)
	}
	assert.Zero(t, prog.Reads())
	assert.Empty(t, sink.Records())
	assert.Equal(t, Stats{}, s.Stats())
}

func TestRun(t *testing.T) {
	prog := &instrumentationtest.Program{
		ReadErr: map[string]error{"counts_A": errors.New("transient")},
	}
	sink := &fakeSink{}
	s := newTestSampler(t, &instrumentationtest.Loader{Program: prog}, false, sink)

	cadence := make(chan time.Time)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(context.Background(), cadence)
	}()

	// A failing tick does not stop the loop.
	cadence <- time.Now()
	cadence <- time.Now()
	close(cadence)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.Fail(t, "Run did not return after the cadence was closed")
	}
	assert.Equal(t, Stats{Failed: 2}, s.Stats())
	assert.Empty(t, sink.Records())
}

func TestClose(t *testing.T) {
	prog := &instrumentationtest.Program{}
	prog.SetCounter("counts_A", "x", 5)
	prog.SetCounter("counts_B", "x", 5)
	prog.SetCounter("counts_C", "x", 5)
	sink := &fakeSink{}

	s, err := New(Config{
		Loader:     &instrumentationtest.Loader{Program: prog},
		Target:     testTarget,
		Statistics: testStats,
		Sink:       sink,
	})
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, prog.Closed())
	assert.False(t, s.Instrumented())

	// Once closed, ticks report zero values.
	require.NoError(t, s.Sample(context.Background(), tickNow()))
	assert.Equal(t, []uint64{0, 0, 0}, sink.Values())
}

func TestOutcome(t *testing.T) {
	var success, fail atomic.Uint64
	o := newOutcome(&success, &fail)
	o.reportSuccess()
	o.reportFailure()
	o.defaultToFailure()
	assert.Equal(t, uint64(1), success.Load())
	assert.Equal(t, uint64(0), fail.Load())

	o = newOutcome(&success, &fail)
	o.defaultToFailure()
	assert.Equal(t, uint64(1), fail.Load())
}
