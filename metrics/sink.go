// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/ebpf-sampler/metrics"

import (
	"errors"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/ebpf-sampler/statistic"
)

// ErrUnknownSeries is returned when recording a series the sink was not set up for.
var ErrUnknownSeries = errors.New("unknown series")

// Sink receives counter values. Values are cumulative: each call replaces the previous value of
// the series.
type Sink interface {
	RecordCounter(desc statistic.Descriptor, ts time.Time, value uint64) error
}

// Fanout records every value to each of its sinks in order. It stops at the first error.
type Fanout []Sink

// RecordCounter implements Sink.
func (f Fanout) RecordCounter(desc statistic.Descriptor, ts time.Time, value uint64) error {
	for _, s := range f {
		if err := s.RecordCounter(desc, ts, value); err != nil {
			return err
		}
	}
	return nil
}

// series identifies a published time series.
type series struct {
	name  string
	entry string
}

func seriesOf(d statistic.Descriptor) series {
	return series{name: d.Name, entry: d.Entry}
}

func (s series) String() string {
	return fmt.Sprintf("%s{entry=%q}", s.name, s.entry)
}

// sample is the last recorded value of a series.
type sample struct {
	value uint64
	ts    time.Time
}

// toInt64 clamps counter values that do not fit into int64.
func toInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
