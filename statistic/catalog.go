// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package statistic

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"go.opentelemetry.io/ebpf-sampler/probe"
)

//go:embed statistics.json
var statisticsJSON []byte

// Group describes one statistic name and the table entries it is published for. Entries are
// either listed inline or taken from a named entry set of the catalog.
type Group struct {
	Name        string   `json:"name" yaml:"name"`
	Table       string   `json:"table" yaml:"table"`
	EntrySet    string   `json:"entry_set,omitempty" yaml:"entry_set,omitempty"`
	Entries     []string `json:"entries,omitempty" yaml:"entries,omitempty"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
}

// Catalog is the externally defined statistic list. Probes optionally replaces the built-in
// probe table of the target.
type Catalog struct {
	EntrySets  map[string][]string `json:"entry_sets,omitempty" yaml:"entry_sets,omitempty"`
	Statistics []Group             `json:"statistics" yaml:"statistics"`
	Probes     []probe.Spec        `json:"probes,omitempty" yaml:"probes,omitempty"`
}

// Default returns the built-in krb5kdc catalog from the embedded statistics.json file.
func Default() *Catalog {
	var c Catalog

	dec := json.NewDecoder(bytes.NewReader(statisticsJSON))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&c); err != nil {
		panic(fmt.Sprintf("extracting catalog from statistics.json: %v", err))
	}
	return &c
}

// LoadFile reads a catalog from a YAML file. Since YAML is a superset of JSON, a file in the
// format of the embedded catalog is accepted as well.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statistics file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and validates it.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse statistics: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog for missing names, dangling entry set references and
// duplicate series.
func (c *Catalog) Validate() error {
	if len(c.Statistics) == 0 {
		return errors.New("no statistics defined")
	}
	_, err := c.Descriptors()
	if err != nil {
		return err
	}
	for _, p := range c.Probes {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("invalid probe %s: %w", p, err)
		}
	}
	return nil
}

// Descriptors expands the catalog groups into the ordered list of statistic descriptors.
func (c *Catalog) Descriptors() ([]Descriptor, error) {
	type series struct{ name, entry string }
	seen := make(map[series]struct{})

	var out []Descriptor
	for i, g := range c.Statistics {
		if g.Name == "" {
			return nil, fmt.Errorf("statistic %d: missing name", i)
		}
		if g.Table == "" {
			return nil, fmt.Errorf("statistic %s: missing table", g.Name)
		}

		entries := g.Entries
		if g.EntrySet != "" {
			set, ok := c.EntrySets[g.EntrySet]
			if !ok {
				return nil, fmt.Errorf("statistic %s: unknown entry set %q",
					g.Name, g.EntrySet)
			}
			entries = append(append([]string(nil), set...), g.Entries...)
		}
		if len(entries) == 0 {
			return nil, fmt.Errorf("statistic %s: no entries", g.Name)
		}

		for _, entry := range entries {
			s := series{g.Name, entry}
			if _, ok := seen[s]; ok {
				return nil, fmt.Errorf("statistic %s: duplicate entry %q", g.Name, entry)
			}
			seen[s] = struct{}{}
			out = append(out, Descriptor{
				Name:        g.Name,
				Entry:       entry,
				Table:       g.Table,
				Description: g.Description,
			})
		}
	}
	return out, nil
}

// Target returns the probe target for binary. The catalog's probe table is used if it has
// one, the built-in krb5kdc table otherwise.
func (c *Catalog) Target(binary string) probe.Target {
	if len(c.Probes) == 0 {
		return probe.Krb5kdc(binary)
	}
	return probe.Target{
		Binary: binary,
		Probes: append([]probe.Spec(nil), c.Probes...),
	}
}
