// Copyright The OpenTelemetry Authors
// SPDX-License-Identifier: Apache-2.0

package xsync // import "go.opentelemetry.io/ebpf-sampler/libpf/xsync"

import "sync"

// Mutex is a thin wrapper around sync.Mutex that hides away the data it protects, so that the
// data cannot be reached without holding the lock.
//
// Usage:
//
//	type Sampler struct {
//		last xsync.Mutex[time.Time]
//	}
//
//	func (s *Sampler) touch(now time.Time) {
//		last := s.last.Lock()
//		defer s.last.Unlock(&last)
//		*last = now
//	}
//
// Unlock invalidates the caller's reference, so a use after unlocking crashes in tests instead
// of silently racing.
type Mutex[T any] struct {
	guarded T
	mutex   sync.Mutex
}

// NewMutex creates a new mutex guarding the given value.
func NewMutex[T any](guarded T) Mutex[T] {
	return Mutex[T]{
		guarded: guarded,
	}
}

// Lock locks the mutex, returning a pointer to the protected data.
//
// The caller **must not** let the returned pointer leak out of the scope of the function where
// it was originally created, except for temporarily borrowing it to other functions.
func (mtx *Mutex[T]) Lock() *T {
	mtx.mutex.Lock()
	return &mtx.guarded
}

// Unlock unlocks the mutex after previously being locked by Lock.
//
// Pass a reference to the pointer returned from Lock here to ensure it is invalidated.
func (mtx *Mutex[T]) Unlock(ref **T) {
	*ref = nil
	mtx.mutex.Unlock()
}

// Load returns a copy of the protected value.
func (mtx *Mutex[T]) Load() T {
	mtx.mutex.Lock()
	defer mtx.mutex.Unlock()
	return mtx.guarded
}

// Store replaces the protected value.
func (mtx *Mutex[T]) Store(v T) {
	mtx.mutex.Lock()
	mtx.guarded = v
	mtx.mutex.Unlock()
}
