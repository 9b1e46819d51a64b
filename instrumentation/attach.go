// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package instrumentation // import "go.opentelemetry.io/ebpf-sampler/instrumentation"

import (
	"errors"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/ebpf-sampler/probe"
)

// AttachmentReport lists which probes of a target attached.
type AttachmentReport struct {
	Succeeded []string
	Failed    map[string]error
	// Unavailable is set when the system lacks kernel probe support and nothing was attempted.
	Unavailable bool
}

// Complete returns true if every requested probe attached.
func (r AttachmentReport) Complete() bool {
	return !r.Unavailable && len(r.Failed) == 0
}

// Handle owns a loaded program and its attached probes. A Handle is not safe for concurrent
// use; callers sharing it must serialize access.
type Handle struct {
	prog      Program
	closeOnce sync.Once
	closeErr  error
}

// ReadTable returns the raw contents of the named counter table.
func (h *Handle) ReadTable(name string) ([]TableEntry, error) {
	return h.prog.ReadTable(name)
}

// Close detaches all probes and unloads the program. It may be called multiple times.
func (h *Handle) Close() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.prog.Close()
	})
	return h.closeErr
}

// Attach loads the instrumentation program once and attaches every probe of target in order.
//
// A load failure is always returned. A per-probe failure is logged and skipped when
// faultTolerant is set; otherwise the program is released and the failure is returned.
// When the loader reports ErrUnavailable, Attach returns a nil Handle and no error.
func Attach(loader Loader, target probe.Target, faultTolerant bool) (
	*Handle, AttachmentReport, error) {
	report := AttachmentReport{
		Succeeded: make([]string, 0, len(target.Probes)),
		Failed:    make(map[string]error),
	}

	prog, err := loader.Load()
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			log.Warnf("Instrumentation unavailable, statistics for %s will report zero: %v",
				target.Binary, err)
			report.Unavailable = true
			return nil, report, nil
		}
		return nil, report, fmt.Errorf("%w: %w", ErrProgramLoad, err)
	}

	for _, spec := range target.Probes {
		var attachErr error
		switch spec.Kind {
		case probe.Entry:
			attachErr = prog.AttachEntryProbe(target.Binary, spec.Symbol, spec.Handler)
		case probe.Return:
			attachErr = prog.AttachReturnProbe(target.Binary, spec.Symbol, spec.Handler)
		default:
			attachErr = fmt.Errorf("unsupported probe kind %v", spec.Kind)
		}

		if attachErr == nil {
			log.Debugf("Attached %s to %s:%s", spec, target.Binary, spec.Symbol)
			report.Succeeded = append(report.Succeeded, spec.ID())
			continue
		}

		report.Failed[spec.ID()] = attachErr
		if !faultTolerant {
			if closeErr := prog.Close(); closeErr != nil {
				log.Errorf("Failed to release instrumentation program: %v", closeErr)
			}
			return nil, report, &AttachError{
				Probe:  spec.ID(),
				Symbol: spec.Symbol,
				Err:    attachErr,
			}
		}
		log.Warnf("Unable to attach probe %s to function %s in %s: %v",
			spec.ID(), spec.Symbol, target.Binary, attachErr)
	}

	return &Handle{prog: prog}, report, nil
}
