//go:build linux

// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumentation // import "go.opentelemetry.io/ebpf-sampler/instrumentation"

import (
	"errors"
	"fmt"

	cebpf "github.com/cilium/ebpf"
	"github.com/cilium/ebpf/link"
	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ebpf-sampler/rlimit"
	"go.opentelemetry.io/ebpf-sampler/support"
)

// LoaderConfig configures the eBPF loader.
type LoaderConfig struct {
	// ObjectPath overrides the embedded eBPF object.
	ObjectPath string
	// BPFVerifierLogLevel is passed to the kernel verifier (0, 1 or 2).
	BPFVerifierLogLevel uint32
}

// NewLoader returns a Loader backed by cilium/ebpf.
func NewLoader(cfg LoaderConfig) Loader {
	return &ebpfLoader{cfg: cfg}
}

type ebpfLoader struct {
	cfg LoaderConfig
}

// Load implements Loader.
func (l *ebpfLoader) Load() (Program, error) {
	if err := ProbeBPFSyscall(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	spec, err := support.LoadCollectionSpec(l.cfg.ObjectPath)
	if err != nil {
		if errors.Is(err, support.ErrNoObject) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("failed to load specification: %v", err)
	}

	restoreRlimit, err := rlimit.MaximizeMemlock()
	if err != nil {
		return nil, fmt.Errorf("failed to adjust rlimit: %v", err)
	}
	defer restoreRlimit()

	coll, err := cebpf.NewCollectionWithOptions(spec, cebpf.CollectionOptions{
		Programs: cebpf.ProgramOptions{
			LogLevel: cebpf.LogLevel(l.cfg.BPFVerifierLogLevel),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}
	log.Debugf("Loaded %d eBPF programs and %d maps", len(coll.Programs), len(coll.Maps))

	return &ebpfProgram{
		coll:        coll,
		executables: make(map[string]*link.Executable),
	}, nil
}

type ebpfProgram struct {
	coll        *cebpf.Collection
	executables map[string]*link.Executable
	links       []link.Link
}

// executable opens binary once and caches the result.
func (p *ebpfProgram) executable(binary string) (*link.Executable, error) {
	if ex, ok := p.executables[binary]; ok {
		return ex, nil
	}
	ex, err := link.OpenExecutable(binary)
	if err != nil {
		return nil, fmt.Errorf("failed to open executable %s: %w", binary, err)
	}
	p.executables[binary] = ex
	return ex, nil
}

func (p *ebpfProgram) program(handler string) (*cebpf.Program, error) {
	prog, ok := p.coll.Programs[handler]
	if !ok {
		return nil, fmt.Errorf("handler %s is not part of the eBPF object", handler)
	}
	return prog, nil
}

// AttachEntryProbe implements Program.
func (p *ebpfProgram) AttachEntryProbe(binary, symbol, handler string) error {
	prog, err := p.program(handler)
	if err != nil {
		return err
	}
	ex, err := p.executable(binary)
	if err != nil {
		return err
	}
	l, err := ex.Uprobe(symbol, prog, nil)
	if err != nil {
		return err
	}
	p.links = append(p.links, l)
	return nil
}

// AttachReturnProbe implements Program.
func (p *ebpfProgram) AttachReturnProbe(binary, symbol, handler string) error {
	prog, err := p.program(handler)
	if err != nil {
		return err
	}
	ex, err := p.executable(binary)
	if err != nil {
		return err
	}
	l, err := ex.Uretprobe(symbol, prog, nil)
	if err != nil {
		return err
	}
	p.links = append(p.links, l)
	return nil
}

// ReadTable implements Program.
func (p *ebpfProgram) ReadTable(name string) ([]TableEntry, error) {
	m, ok := p.coll.Maps[name]
	if !ok {
		return nil, fmt.Errorf("table %s is not part of the eBPF object", name)
	}

	var (
		key   []byte
		value uint64
	)
	entries := make([]TableEntry, 0, 16)
	it := m.Iterate()
	for it.Next(&key, &value) {
		entries = append(entries, TableEntry{Key: key, Value: value})
		key = nil
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate %s: %w", name, err)
	}
	return entries, nil
}

// Close implements Program.
func (p *ebpfProgram) Close() error {
	var errs []error
	// Avoid resource leakage by closing all kernel hooks before the programs.
	for _, l := range p.links {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	p.links = nil
	p.coll.Close()
	return errors.Join(errs...)
}
