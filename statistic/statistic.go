// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package statistic maps externally defined statistics onto counter table entries.
package statistic // import "go.opentelemetry.io/ebpf-sampler/statistic"

import (
	"go.opentelemetry.io/ebpf-sampler/counters"
)

// Descriptor identifies a published series and the table entry it is sourced from.
// (Name, Entry) is the identity of the series.
type Descriptor struct {
	Name        string
	Entry       string
	Table       string
	Description string
}

// Observation is a resolved statistic value.
type Observation struct {
	Descriptor Descriptor
	Value      uint64
}

// Resolve looks up every descriptor in snap, in order. Absent tables or keys resolve to 0, so
// the result always has one observation per descriptor.
func Resolve(snap counters.Snapshot, stats []Descriptor) []Observation {
	out := make([]Observation, len(stats))
	for i, d := range stats {
		out[i] = Observation{
			Descriptor: d,
			Value:      snap.Get(d.Table, d.Entry),
		}
	}
	return out
}

// Zero returns an observation with value 0 for every descriptor.
func Zero(stats []Descriptor) []Observation {
	return Resolve(nil, stats)
}
