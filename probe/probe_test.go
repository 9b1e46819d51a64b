// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseKind(t *testing.T) {
	tests := map[string]struct {
		input    string
		expected Kind
		wantErr  bool
	}{
		"uprobe":          {input: "uprobe", expected: Entry},
		"uretprobe":       {input: "uretprobe", expected: Return},
		"entry_alias":     {input: "entry", expected: Entry},
		"return_alias":    {input: "Return", expected: Return},
		"padded":          {input: "  uprobe ", expected: Entry},
		"kprobe":          {input: "kprobe", wantErr: true},
		"empty_string":    {input: "", wantErr: true},
		"tracepoint_type": {input: "tracepoint", wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ParseKind(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "unknown probe kind")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}

func TestSpecYAML(t *testing.T) {
	var specs []Spec
	err := yaml.Unmarshal([]byte(`
- symbol: process_tgs_req
  kind: uretprobe
  handler: count_process_tgs_req
  table: counts_process_tgs_req
`), &specs)
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, Return, specs[0].Kind)
	assert.Equal(t, "count_process_tgs_req", specs[0].ID())
	assert.Equal(t, "uretprobe:process_tgs_req:count_process_tgs_req", specs[0].String())
}

func TestTargetTables(t *testing.T) {
	target := Target{
		Binary: "/bin/true",
		Probes: []Spec{
			{Symbol: "a", Handler: "ha", Table: "counts_A"},
			{Symbol: "b", Handler: "hb", Table: "counts_B"},
			{Symbol: "c", Kind: Return, Handler: "hc", Table: "counts_A"},
		},
	}
	assert.Equal(t, []string{"counts_A", "counts_B"}, target.Tables())
	require.NoError(t, target.Validate())
}

func TestTargetValidate(t *testing.T) {
	tests := map[string]struct {
		target Target
		errMsg string
	}{
		"missing_binary": {
			target: Target{},
			errMsg: "missing target binary",
		},
		"missing_symbol": {
			target: Target{Binary: "/x", Probes: []Spec{{Handler: "h", Table: "t"}}},
			errMsg: "missing symbol",
		},
		"missing_handler": {
			target: Target{Binary: "/x", Probes: []Spec{{Symbol: "s", Table: "t"}}},
			errMsg: "missing handler",
		},
		"missing_table": {
			target: Target{Binary: "/x", Probes: []Spec{{Symbol: "s", Handler: "h"}}},
			errMsg: "missing table",
		},
		"invalid_kind": {
			target: Target{Binary: "/x", Probes: []Spec{{Symbol: "s", Handler: "h",
				Table: "t", Kind: Kind(7)}}},
			errMsg: "invalid kind",
		},
		"duplicate_handler": {
			target: Target{Binary: "/x", Probes: []Spec{
				{Symbol: "s1", Handler: "h", Table: "t"},
				{Symbol: "s2", Handler: "h", Table: "t"},
			}},
			errMsg: "duplicate probe handler",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			err := tc.target.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestKrb5kdc(t *testing.T) {
	target := Krb5kdc("")
	assert.Equal(t, DefaultKrb5kdcBinary, target.Binary)
	require.NoError(t, target.Validate())
	assert.Equal(t, []string{
		"counts_finish_process_as_req",
		"counts_finish_dispatch_cache",
		"counts_process_tgs_req",
	}, target.Tables())

	// The returned target owns its probe slice.
	target.Probes[0].Symbol = "changed"
	assert.Equal(t, "finish_process_as_req", Krb5kdcProbes[0].Symbol)
}
