// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package probe describes user-space instrumentation points as a declarative table. A single
// table drives both probe attachment and counter table reads.
package probe // import "go.opentelemetry.io/ebpf-sampler/probe"

import (
	"fmt"
	"strings"
)

// Kind selects whether a probe fires on function entry or on function return.
type Kind uint8

const (
	// Entry attaches a uprobe at the function entry.
	Entry Kind = iota
	// Return attaches a uretprobe that fires when the function returns.
	Return
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Entry:
		return "uprobe"
	case Return:
		return "uretprobe"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind parses the textual probe kind, as used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uprobe", "entry":
		return Entry, nil
	case "uretprobe", "return":
		return Return, nil
	default:
		return 0, fmt.Errorf("unknown probe kind: %q", s)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Spec is one row of the probe table.
type Spec struct {
	// Symbol is the function in the target binary the probe is bound to.
	Symbol string `json:"symbol" yaml:"symbol"`
	// Kind selects entry or return semantics.
	Kind Kind `json:"kind" yaml:"kind"`
	// Handler names the eBPF program invoked by the probe. It doubles as the probe ID.
	Handler string `json:"handler" yaml:"handler"`
	// Table is the counter table the handler increments.
	Table string `json:"table" yaml:"table"`
}

// ID returns the probe identifier used in attachment reports.
func (s Spec) ID() string {
	return s.Handler
}

func (s Spec) String() string {
	return fmt.Sprintf("%s:%s:%s", s.Kind, s.Symbol, s.Handler)
}

// Validate checks that all fields required for attachment are set.
func (s Spec) Validate() error {
	switch {
	case s.Symbol == "":
		return fmt.Errorf("probe %q: missing symbol", s.Handler)
	case s.Handler == "":
		return fmt.Errorf("probe on %q: missing handler", s.Symbol)
	case s.Table == "":
		return fmt.Errorf("probe %q: missing table", s.Handler)
	case s.Kind != Entry && s.Kind != Return:
		return fmt.Errorf("probe %q: invalid kind %v", s.Handler, s.Kind)
	}
	return nil
}

// Target is a binary together with the probes to attach to it. It is not modified after
// construction.
type Target struct {
	Binary string
	Probes []Spec
}

// Tables returns the counter tables owned by the target's probes, in probe order and without
// duplicates.
func (t Target) Tables() []string {
	seen := make(map[string]struct{}, len(t.Probes))
	tables := make([]string, 0, len(t.Probes))
	for _, p := range t.Probes {
		if _, ok := seen[p.Table]; ok {
			continue
		}
		seen[p.Table] = struct{}{}
		tables = append(tables, p.Table)
	}
	return tables
}

// Validate checks the binary path and every probe. Handlers must be unique.
func (t Target) Validate() error {
	if t.Binary == "" {
		return fmt.Errorf("missing target binary")
	}
	handlers := make(map[string]struct{}, len(t.Probes))
	for _, p := range t.Probes {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, ok := handlers[p.Handler]; ok {
			return fmt.Errorf("duplicate probe handler %q", p.Handler)
		}
		handlers[p.Handler] = struct{}{}
	}
	return nil
}
