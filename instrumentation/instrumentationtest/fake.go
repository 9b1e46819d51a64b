// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package instrumentationtest provides in-memory instrumentation programs for tests.
package instrumentationtest // import "go.opentelemetry.io/ebpf-sampler/instrumentation/instrumentationtest"

import (
	"fmt"
	"sort"
	"sync"

	"go.opentelemetry.io/ebpf-sampler/instrumentation"
	"go.opentelemetry.io/ebpf-sampler/probe"
)

// Attachment records a successful attach call.
type Attachment struct {
	Kind    probe.Kind
	Binary  string
	Symbol  string
	Handler string
}

// Program is a fake instrumentation.Program. Tables hold string keys that are returned as
// NUL-padded byte keys, the way fixed-size char array keys come out of eBPF hash maps.
type Program struct {
	mu sync.Mutex

	// FailSymbols makes attaching to the listed symbols fail.
	FailSymbols map[string]error
	// Tables holds the counter table contents.
	Tables map[string]map[string]uint64
	// ReadErr makes ReadTable fail for the listed tables.
	ReadErr map[string]error
	// KeyLen pads keys to this size. Zero means no padding.
	KeyLen int

	attached []Attachment
	reads    int
	closed   int
}

var _ instrumentation.Program = (*Program)(nil)

func (p *Program) attach(kind probe.Kind, binary, symbol, handler string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.FailSymbols[symbol]; ok {
		return err
	}
	p.attached = append(p.attached, Attachment{
		Kind:    kind,
		Binary:  binary,
		Symbol:  symbol,
		Handler: handler,
	})
	return nil
}

// AttachEntryProbe implements instrumentation.Program.
func (p *Program) AttachEntryProbe(binary, symbol, handler string) error {
	return p.attach(probe.Entry, binary, symbol, handler)
}

// AttachReturnProbe implements instrumentation.Program.
func (p *Program) AttachReturnProbe(binary, symbol, handler string) error {
	return p.attach(probe.Return, binary, symbol, handler)
}

// ReadTable implements instrumentation.Program.
func (p *Program) ReadTable(name string) ([]instrumentation.TableEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if err, ok := p.ReadErr[name]; ok {
		return nil, err
	}
	table, ok := p.Tables[name]
	if !ok {
		return nil, fmt.Errorf("no such table: %s", name)
	}

	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]instrumentation.TableEntry, 0, len(table))
	for _, k := range keys {
		raw := []byte(k)
		if p.KeyLen > len(raw) {
			raw = append(raw, make([]byte, p.KeyLen-len(raw))...)
		}
		entries = append(entries, instrumentation.TableEntry{Key: raw, Value: table[k]})
	}
	return entries, nil
}

// Close implements instrumentation.Program.
func (p *Program) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	p.attached = nil
	return nil
}

// SetCounter updates a single counter, creating the table if needed.
func (p *Program) SetCounter(table, key string, value uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Tables == nil {
		p.Tables = make(map[string]map[string]uint64)
	}
	if p.Tables[table] == nil {
		p.Tables[table] = make(map[string]uint64)
	}
	p.Tables[table][key] = value
}

// Attached returns the probes attached so far.
func (p *Program) Attached() []Attachment {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Attachment(nil), p.attached...)
}

// Reads returns the number of ReadTable calls.
func (p *Program) Reads() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reads
}

// Closed returns the number of Close calls.
func (p *Program) Closed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Loader is a fake instrumentation.Loader returning Program, or Err if set.
type Loader struct {
	Program *Program
	Err     error

	mu    sync.Mutex
	loads int
}

var _ instrumentation.Loader = (*Loader)(nil)

// Load implements instrumentation.Loader.
func (l *Loader) Load() (instrumentation.Program, error) {
	l.mu.Lock()
	l.loads++
	l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	return l.Program, nil
}

// Loads returns the number of Load calls.
func (l *Loader) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}
