// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package counters materializes eBPF counter tables into plain Go maps.
package counters // import "go.opentelemetry.io/ebpf-sampler/counters"

import (
	"bytes"
	"fmt"
	"strings"

	"go.opentelemetry.io/ebpf-sampler/instrumentation"
)

// Snapshot maps a table name to the counters of that table, keyed by normalized key.
// A Snapshot is built for a single sample and must not be modified once returned.
type Snapshot map[string]map[string]uint64

// Get returns the counter for key in table, or 0 if either is absent.
func (s Snapshot) Get(table, key string) uint64 {
	return s[table][key]
}

// TableSource provides raw counter table contents.
type TableSource interface {
	ReadTable(name string) ([]instrumentation.TableEntry, error)
}

// ReadError reports the table that could not be read.
type ReadError struct {
	Table string
	Err   error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("failed to read table %s: %v", e.Table, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// Read snapshots every table in tables. Any failing table fails the whole call; there is no
// partial snapshot.
func Read(src TableSource, tables []string) (Snapshot, error) {
	snap := make(Snapshot, len(tables))
	for _, table := range tables {
		entries, err := src.ReadTable(table)
		if err != nil {
			return nil, &ReadError{Table: table, Err: err}
		}
		counts := make(map[string]uint64, len(entries))
		for _, e := range entries {
			// Distinct raw keys may normalize to the same string, e.g. when stale
			// bytes follow the terminating NUL.
			counts[NormalizeKey(e.Key)] += e.Value
		}
		snap[table] = counts
	}
	return snap, nil
}

// NormalizeKey converts a raw table key into its string form. Keys are NUL-terminated C
// strings stored in fixed-size arrays, so everything from the first NUL on is dropped.
func NormalizeKey(raw []byte) string {
	if i := bytes.IndexByte(raw, 0); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}
