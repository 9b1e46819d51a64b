// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package controller // import "go.opentelemetry.io/ebpf-sampler/internal/controller"

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.opentelemetry.io/ebpf-sampler/counters"
	"go.opentelemetry.io/ebpf-sampler/instrumentation"
	"go.opentelemetry.io/ebpf-sampler/metrics"
	"go.opentelemetry.io/ebpf-sampler/periodiccaller"
	"go.opentelemetry.io/ebpf-sampler/sampler"
	"go.opentelemetry.io/ebpf-sampler/statistic"
)

const shutdownTimeout = 5 * time.Second

// statsLogInterval is how often the tick outcome counters are written to the debug log.
var statsLogInterval = time.Minute

// Controller is an instance that runs, manages and stops the sampler.
type Controller struct {
	config     *Config
	instanceID uuid.UUID

	enabled  atomic.Bool
	registry *prometheus.Registry
	otelSink *metrics.OTelSink
	sampler  *sampler.Sampler
	listener net.Listener

	cancel       context.CancelFunc
	stopStatsLog func()
	group        *errgroup.Group
	shutdownOnce sync.Once
}

// New creates a new controller
func New(cfg *Config) *Controller {
	if cfg == nil {
		cfg = &Config{}
	}
	c := &Controller{
		config:     cfg,
		instanceID: uuid.New(),
		registry:   prometheus.NewRegistry(),
	}
	c.enabled.Store(cfg.Enabled)
	return c
}

// Start attaches the probes, starts the sampling loop and, if configured, the HTTP server.
// The controller should only be started once.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.config.Validate(); err != nil {
		return NewErrorWithExitCode(err, ExitParseError)
	}

	catalog := statistic.Default()
	if c.config.StatisticsFile != "" {
		var err error
		if catalog, err = statistic.LoadFile(c.config.StatisticsFile); err != nil {
			return NewErrorWithExitCode(err, ExitParseError)
		}
		log.Infof("Loaded statistics from %s", c.config.StatisticsFile)
	}
	stats, err := catalog.Descriptors()
	if err != nil {
		return NewErrorWithExitCode(err, ExitParseError)
	}
	target := catalog.Target(c.config.Binary)

	promSink := metrics.NewPrometheusSink(stats)
	if err = c.registry.Register(promSink); err != nil {
		return fmt.Errorf("failed to register Prometheus collector: %w", err)
	}
	if c.otelSink, err = metrics.NewOTelSink(nil, stats); err != nil {
		return fmt.Errorf("failed to create OTel instruments: %w", err)
	}

	loader := c.config.Loader
	if loader == nil {
		loader = instrumentation.NewLoader(instrumentation.LoaderConfig{
			ObjectPath:          c.config.BPFObject,
			BPFVerifierLogLevel: uint32(c.config.BpfVerifierLogLevel),
		})
	}

	c.sampler, err = sampler.New(sampler.Config{
		Loader:        loader,
		Target:        target,
		FaultTolerant: c.config.FaultTolerant,
		Statistics:    stats,
		Sink:          metrics.Fanout{promSink, c.otelSink},
		Enabled:       c.enabled.Load,
	})
	if err != nil {
		c.closeOTelSink()
		return fmt.Errorf("failed to create sampler for %s: %w", target.Binary, err)
	}
	log.Infof("Sampling %d statistics from %s every %v (instance %s)", len(stats),
		target.Binary, c.config.Interval, c.instanceID)

	if c.config.MetricsAddr != "" {
		c.listener, err = net.Listen("tcp", c.config.MetricsAddr)
		if err != nil {
			_ = c.sampler.Close()
			c.closeOTelSink()
			return fmt.Errorf("failed to listen on %s: %w", c.config.MetricsAddr, err)
		}
		log.Infof("Serving metrics on %s", c.listener.Addr())
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.group, ctx = errgroup.WithContext(ctx)

	c.group.Go(func() error {
		c.sampler.Run(ctx, periodiccaller.Ticks(ctx, c.config.Interval, c.config.Jitter))
		return nil
	})
	c.stopStatsLog = periodiccaller.Start(ctx, statsLogInterval, c.logStats)

	if c.listener != nil {
		server := &http.Server{
			Handler:           c.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		c.group.Go(func() error {
			if err := server.Serve(c.listener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serving HTTP: %w", err)
			}
			return nil
		})
		c.group.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	return nil
}

// Wait blocks until the controller stopped, either because the context passed to Start was
// canceled or because a component failed.
func (c *Controller) Wait() error {
	if c.group == nil {
		return nil
	}
	return c.group.Wait()
}

// Shutdown stops the controller and detaches all probes.
func (c *Controller) Shutdown() {
	c.shutdownOnce.Do(func() {
		log.Info("Stop processing ...")
		if c.cancel != nil {
			c.cancel()
		}
		if c.stopStatsLog != nil {
			c.stopStatsLog()
		}
		if err := c.Wait(); err != nil {
			log.Errorf("Controller stopped with error: %v", err)
		}
		if c.sampler != nil {
			if err := c.sampler.Close(); err != nil {
				log.Errorf("Failed to detach probes: %v", err)
			}
		}
		c.closeOTelSink()
	})
}

func (c *Controller) closeOTelSink() {
	if c.otelSink == nil {
		return
	}
	if err := c.otelSink.Close(); err != nil {
		log.Errorf("Failed to unregister OTel callback: %v", err)
	}
	c.otelSink = nil
}

func (c *Controller) logStats() {
	stats := c.sampler.Stats()
	log.Debugf("Ticks: %d succeeded, %d failed, %d disabled (enabled: %v)",
		stats.Succeeded, stats.Failed, stats.Disabled, c.Enabled())
}

// Enabled reports whether sampling is enabled.
func (c *Controller) Enabled() bool {
	return c.enabled.Load()
}

// SetEnabled enables or disables sampling. It takes effect on the next tick.
func (c *Controller) SetEnabled(enabled bool) {
	if c.enabled.Swap(enabled) != enabled {
		log.Infof("Sampling enabled: %v", enabled)
	}
}

// ToggleEnabled flips the enablement and returns the new state.
func (c *Controller) ToggleEnabled() bool {
	for {
		old := c.enabled.Load()
		if c.enabled.CompareAndSwap(old, !old) {
			log.Infof("Sampling enabled: %v", !old)
			return !old
		}
	}
}

// InstanceID identifies this controller in logs and diagnostics.
func (c *Controller) InstanceID() uuid.UUID {
	return c.instanceID
}

// Addr returns the address the HTTP server listens on, or nil.
func (c *Controller) Addr() net.Addr {
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Handler returns the HTTP handler serving /metrics and /debug/counters.
func (c *Controller) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/debug/counters", c.serveCounters)
	return mux
}

type probeReport struct {
	Attached    []string          `json:"attached"`
	Failed      map[string]string `json:"failed,omitempty"`
	Unavailable bool              `json:"unavailable,omitempty"`
}

type countersReport struct {
	InstanceID   string            `json:"instance_id"`
	Enabled      bool              `json:"enabled"`
	Instrumented bool              `json:"instrumented"`
	LastSample   *time.Time        `json:"last_sample,omitempty"`
	Ticks        sampler.Stats     `json:"ticks"`
	Probes       probeReport       `json:"probes"`
	Tables       counters.Snapshot `json:"tables"`
}

func (c *Controller) serveCounters(w http.ResponseWriter, _ *http.Request) {
	if c.sampler == nil {
		http.Error(w, "sampler not started", http.StatusServiceUnavailable)
		return
	}

	snap, err := c.sampler.Snapshot()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	attach := c.sampler.Report()
	report := countersReport{
		InstanceID:   c.instanceID.String(),
		Enabled:      c.Enabled(),
		Instrumented: c.sampler.Instrumented(),
		Ticks:        c.sampler.Stats(),
		Probes: probeReport{
			Attached:    attach.Succeeded,
			Unavailable: attach.Unavailable,
		},
		Tables: snap,
	}
	if last := c.sampler.LastSample(); !last.IsZero() {
		report.LastSample = &last
	}
	if len(attach.Failed) > 0 {
		report.Probes.Failed = make(map[string]string, len(attach.Failed))
		for id, err := range attach.Failed {
			report.Probes.Failed[id] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		log.Debugf("Failed to write counters report: %v", err)
	}
}
