//go:build !linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package rlimit raises the locked-memory limit while eBPF objects are loaded.
package rlimit // import "go.opentelemetry.io/ebpf-sampler/rlimit"

import (
	"fmt"
	"runtime"
)

// MaximizeMemlock is the stub implementation for systems without eBPF. It always fails.
func MaximizeMemlock() (func(), error) {
	return nil, fmt.Errorf("unsupported os %s", runtime.GOOS)
}
