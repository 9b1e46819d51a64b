// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

/*
Package metrics contains the sinks sampled statistics are recorded to.

Every sink keeps the last cumulative value of each series and publishes it when scraped or
collected:

	metrics
	├── doc.go         // this file
	├── sink.go        // Sink interface and Fanout
	├── prometheus.go  // PrometheusSink, a prometheus.Collector
	└── otel.go        // OTelSink, observable counters on an OTel meter

A series is identified by the statistic name and the table entry. The Prometheus family of a
statistic is named <name>_total and carries the entry in the "entry" label. The OTel instrument
carries the name of the statistic and the entry as attribute.

Example code to set up both sinks:

	prom := metrics.NewPrometheusSink(stats)
	registry.MustRegister(prom)
	otelSink, err := metrics.NewOTelSink(nil, stats)
	...
	sink := metrics.Fanout{prom, otelSink}
*/
package metrics
