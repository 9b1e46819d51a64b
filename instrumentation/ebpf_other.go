//go:build !linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumentation // import "go.opentelemetry.io/ebpf-sampler/instrumentation"

import (
	"fmt"
	"runtime"
)

// LoaderConfig configures the eBPF loader. It is ignored on this platform.
type LoaderConfig struct {
	ObjectPath          string
	BPFVerifierLogLevel uint32
}

// NewLoader returns a Loader that always reports ErrUnavailable.
func NewLoader(LoaderConfig) Loader {
	return unavailableLoader{}
}

type unavailableLoader struct{}

func (unavailableLoader) Load() (Program, error) {
	return nil, fmt.Errorf("%w: unsupported os %s", ErrUnavailable, runtime.GOOS)
}

// ProbeBPFSyscall checks if the bpf syscall is available on the system.
func ProbeBPFSyscall() error {
	return fmt.Errorf("eBPF is not available on your system %s", runtime.GOOS)
}
