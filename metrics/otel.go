// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package metrics // import "go.opentelemetry.io/ebpf-sampler/metrics"

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"go.opentelemetry.io/ebpf-sampler/libpf/xsync"
	"go.opentelemetry.io/ebpf-sampler/statistic"
	"go.opentelemetry.io/ebpf-sampler/vc"
)

// InstrumentationScope is the meter name used when no meter is passed to NewOTelSink.
const InstrumentationScope = "go.opentelemetry.io/ebpf-sampler"

// OTelSink publishes every statistic name as an Int64ObservableCounter. The last recorded
// value of each series is observed on collection, with the entry as attribute.
//
// Data points carry the collection time assigned by the SDK, not the capture time passed to
// RecordCounter.
type OTelSink struct {
	counters     map[string]metric.Int64ObservableCounter
	samples      xsync.Mutex[map[series]*sample]
	registration metric.Registration
}

// NewOTelSink creates the instruments for stats on meter. A nil meter selects the global
// meter provider.
func NewOTelSink(meter metric.Meter, stats []statistic.Descriptor) (*OTelSink, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationScope,
			metric.WithInstrumentationVersion(vc.Version()))
	}

	o := &OTelSink{
		counters: make(map[string]metric.Int64ObservableCounter),
	}
	samples := make(map[series]*sample, len(stats))
	instruments := make([]metric.Observable, 0, len(stats))
	for _, d := range stats {
		samples[seriesOf(d)] = nil
		if _, ok := o.counters[d.Name]; ok {
			continue
		}
		counter, err := meter.Int64ObservableCounter(d.Name,
			metric.WithDescription(d.Description))
		if err != nil {
			return nil, fmt.Errorf("creating Int64ObservableCounter %s: %w", d.Name, err)
		}
		o.counters[d.Name] = counter
		instruments = append(instruments, counter)
	}
	o.samples = xsync.NewMutex(samples)

	reg, err := meter.RegisterCallback(o.observe, instruments...)
	if err != nil {
		return nil, fmt.Errorf("registering callback: %w", err)
	}
	o.registration = reg
	return o, nil
}

// RecordCounter implements Sink. The timestamp is assigned by the SDK on collection, so ts is
// only used for logging.
func (o *OTelSink) RecordCounter(desc statistic.Descriptor, ts time.Time,
	value uint64) error {
	s := seriesOf(desc)

	samples := o.samples.Lock()
	defer o.samples.Unlock(&samples)

	prev, ok := (*samples)[s]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSeries, s)
	}
	if prev != nil && value < prev.value {
		log.Debugf("Counter %s went backwards at %v: %d -> %d", s, ts, prev.value, value)
	}
	(*samples)[s] = &sample{value: value, ts: ts}
	return nil
}

func (o *OTelSink) observe(_ context.Context, obs metric.Observer) error {
	samples := o.samples.Lock()
	defer o.samples.Unlock(&samples)

	for s, v := range *samples {
		if v == nil {
			continue
		}
		obs.ObserveInt64(o.counters[s.name], toInt64(v.value),
			metric.WithAttributes(attribute.String(EntryLabel, s.entry)))
	}
	return nil
}

// Close unregisters the collection callback.
func (o *OTelSink) Close() error {
	return o.registration.Unregister()
}
