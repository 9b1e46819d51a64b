// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package support provides the eBPF object holding the counting probe handlers.
package support // import "go.opentelemetry.io/ebpf-sampler/support"

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	cebpf "github.com/cilium/ebpf"
	log "github.com/sirupsen/logrus"
)

// ErrNoObject is returned when no eBPF object was compiled for the running architecture.
var ErrNoObject = errors.New("no eBPF object available")

// The ebpf directory always contains the handler sources, so embedding succeeds even when
// the objects were not built. `make -C support/ebpf` produces the per-architecture objects.
//
//go:embed ebpf
var ebpfFS embed.FS

// ObjectName returns the embedded object file name for the given architecture.
func ObjectName(goarch string) string {
	return fmt.Sprintf("ebpf/krb5kdc.ebpf.release.%s", goarch)
}

// LoadCollectionSpec loads the eBPF collection spec holding the probe handlers and counter
// tables. When objectPath is empty, the object embedded for the running architecture is used.
// Nothing is loaded into the kernel here.
func LoadCollectionSpec(objectPath string) (*cebpf.CollectionSpec, error) {
	if objectPath != "" {
		log.Debugf("Loading eBPF object from %s", objectPath)
		return cebpf.LoadCollectionSpec(objectPath)
	}
	data, err := fs.ReadFile(ebpfFS, ObjectName(runtime.GOARCH))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w for %s", ErrNoObject, runtime.GOARCH)
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w for %s: empty object", ErrNoObject, runtime.GOARCH)
	}
	return cebpf.LoadCollectionSpecFromReader(bytes.NewReader(data))
}
