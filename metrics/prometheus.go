// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/ebpf-sampler/metrics"

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"go.opentelemetry.io/ebpf-sampler/libpf/xsync"
	"go.opentelemetry.io/ebpf-sampler/statistic"
)

// EntryLabel is the label carrying the table entry of a series.
const EntryLabel = "entry"

// PrometheusSink is a prometheus.Collector exposing the last recorded value of every series.
// Each statistic name becomes one counter family named <name>_total.
type PrometheusSink struct {
	descs   map[string]*prometheus.Desc
	samples xsync.Mutex[map[series]*sample]
}

var _ prometheus.Collector = (*PrometheusSink)(nil)

// NewPrometheusSink creates a sink for the given statistics. Only these series can be recorded.
func NewPrometheusSink(stats []statistic.Descriptor) *PrometheusSink {
	descs := make(map[string]*prometheus.Desc)
	samples := make(map[series]*sample, len(stats))
	for _, d := range stats {
		if _, ok := descs[d.Name]; !ok {
			help := d.Description
			if help == "" {
				help = fmt.Sprintf("Counter table %s.", d.Table)
			}
			descs[d.Name] = prometheus.NewDesc(d.Name+"_total", help,
				[]string{EntryLabel}, nil)
		}
		samples[seriesOf(d)] = nil
	}
	return &PrometheusSink{
		descs:   descs,
		samples: xsync.NewMutex(samples),
	}
}

// RecordCounter implements Sink.
func (p *PrometheusSink) RecordCounter(desc statistic.Descriptor, ts time.Time,
	value uint64) error {
	s := seriesOf(desc)

	samples := p.samples.Lock()
	defer p.samples.Unlock(&samples)

	if _, ok := (*samples)[s]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSeries, s)
	}
	(*samples)[s] = &sample{value: value, ts: ts}
	return nil
}

// Describe implements prometheus.Collector.
func (p *PrometheusSink) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range p.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector. Series that were never recorded are left out.
func (p *PrometheusSink) Collect(ch chan<- prometheus.Metric) {
	samples := p.samples.Lock()
	defer p.samples.Unlock(&samples)

	for s, v := range *samples {
		if v == nil {
			continue
		}
		m, err := prometheus.NewConstMetric(p.descs[s.name], prometheus.CounterValue,
			float64(v.value), s.entry)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(p.descs[s.name], err)
			continue
		}
		ch <- prometheus.NewMetricWithTimestamp(v.ts, m)
	}
}
