// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package instrumentation loads the counting eBPF program and attaches its handlers to
// functions of a target binary.
package instrumentation // import "go.opentelemetry.io/ebpf-sampler/instrumentation"

import (
	"errors"
	"fmt"
)

var (
	// ErrProgramLoad wraps failures to load the instrumentation program.
	ErrProgramLoad = errors.New("failed to load instrumentation program")

	// ErrProbeAttach wraps failures to attach a single probe.
	ErrProbeAttach = errors.New("failed to attach probe")

	// ErrUnavailable is returned by loaders on systems without kernel probe support.
	ErrUnavailable = errors.New("instrumentation is not available on this system")
)

// TableEntry is a raw counter table element.
type TableEntry struct {
	Key   []byte
	Value uint64
}

// Loader loads the instrumentation program.
type Loader interface {
	Load() (Program, error)
}

// Program is a loaded instrumentation program. Implementations are not safe for concurrent use.
type Program interface {
	// AttachEntryProbe binds handler to the entry of symbol in binary.
	AttachEntryProbe(binary, symbol, handler string) error
	// AttachReturnProbe binds handler to the return of symbol in binary.
	AttachReturnProbe(binary, symbol, handler string) error
	// ReadTable returns the full contents of the named counter table.
	ReadTable(name string) ([]TableEntry, error)
	// Close detaches all probes and releases the program.
	Close() error
}

// AttachError reports the probe that failed to attach.
type AttachError struct {
	Probe  string
	Symbol string
	Err    error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("%v %s to %s: %v", ErrProbeAttach, e.Probe, e.Symbol, e.Err)
}

func (e *AttachError) Unwrap() []error {
	return []error{ErrProbeAttach, e.Err}
}
