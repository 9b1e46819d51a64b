// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package sampler // import "go.opentelemetry.io/ebpf-sampler/sampler"

import (
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// outcome counts the result of a single tick into a success or a failure counter exactly once.
// An outcome must only be used by one goroutine.
type outcome struct {
	success, fail *atomic.Uint64
	sealed        bool
}

func newOutcome(success, fail *atomic.Uint64) outcome {
	return outcome{success: success, fail: fail}
}

func (o *outcome) reportSuccess() {
	if o.sealed {
		log.Errorf("Attempted to report tick outcome more than once.")
		return
	}
	o.success.Add(1)
	o.sealed = true
}

func (o *outcome) reportFailure() {
	if o.sealed {
		log.Errorf("Attempted to report tick outcome more than once.")
		return
	}
	o.fail.Add(1)
	o.sealed = true
}

// defaultToFailure counts a failure unless an outcome was reported before.
func (o *outcome) defaultToFailure() {
	if !o.sealed {
		o.fail.Add(1)
		o.sealed = true
	}
}
