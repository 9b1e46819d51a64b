// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

// Package periodiccaller provides the cadence that drives periodic work.
package periodiccaller // import "go.opentelemetry.io/ebpf-sampler/periodiccaller"

import (
	"context"
	"math/rand/v2"
	"time"

	log "github.com/sirupsen/logrus"
)

// Start starts a timer that calls <callback> every <interval> until the <ctx> is canceled.
func Start(ctx context.Context, interval time.Duration, callback func()) func() {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				callback()
			case <-ctx.Done():
				return
			}
		}
	}()

	return ticker.Stop
}

// Ticks returns a channel that receives the current time every <interval> until <ctx> is
// canceled, after which the channel is closed. <jitter>, [0..1], adds +/- jitter to every
// interval.
//
// The channel holds at most one pending tick. Ticks that arrive while the consumer is still
// busy are dropped, so a slow consumer never sees a burst of stale ticks. No tick is sent
// after <ctx> is canceled.
func Ticks(ctx context.Context, interval time.Duration, jitter float64) <-chan time.Time {
	ch := make(chan time.Time, 1)
	timer := time.NewTimer(addJitter(interval, jitter))
	go func() {
		defer close(ch)
		defer timer.Stop()

		for {
			select {
			case now := <-timer.C:
				if ctx.Err() != nil {
					return
				}
				select {
				case ch <- now:
				default:
					log.Debugf("Dropped tick at %v, consumer is busy", now)
				}
				timer.Reset(addJitter(interval, jitter))
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

// addJitter adds +/- jitter (jitter is [0..1]) to baseDuration.
func addJitter(baseDuration time.Duration, jitter float64) time.Duration {
	if jitter < 0.0 || jitter > 1.0 {
		log.Errorf("Jitter (%f) out of range [0..1].", jitter)
		return baseDuration
	}
	if jitter == 0 {
		return baseDuration
	}
	return time.Duration((1 + jitter - 2*jitter*rand.Float64()) * float64(baseDuration))
}
