/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/corelb/rproxy/pkg/stream"
)

// BackendSlots gates the number of concurrent server connections a backend
// may hold open, grounding the Stream Interface QUE/TAR states of spec.md
// §4.4 on a weighted semaphore rather than a hand-rolled counter+cond, the
// way the teacher's semaphore package wraps golang.org/x/sync/semaphore for
// its own NewWorker/DeferWorker pairing.
type BackendSlots struct {
	weighted    *semaphore.Weighted
	tarpitAfter time.Duration
}

// NewBackendSlots builds a slot gate admitting at most maxConn concurrent
// server connections. tarpitAfter is the backend's configured tarpit
// cooldown (spec.md §4.7 "default 0 = run to expiration immediately").
func NewBackendSlots(maxConn int64, tarpitAfter time.Duration) *BackendSlots {
	if maxConn <= 0 {
		maxConn = 1
	}
	return &BackendSlots{
		weighted:    semaphore.NewWeighted(maxConn),
		tarpitAfter: tarpitAfter,
	}
}

// TryAssign attempts to acquire a slot without blocking. On success the
// stream interface is moved REQ/QUE->ASS; on failure it is enqueued
// (REQ->QUE) so a caller can arm the tarpit deadline via TarpitDeadline.
func (b *BackendSlots) TryAssign(si *stream.Interface) bool {
	if b.weighted.TryAcquire(1) {
		si.Assign()
		return true
	}
	si.Enqueue()
	return false
}

// Release returns a previously acquired slot, called once the stream
// interface leaves EST (disconnect or close).
func (b *BackendSlots) Release() { b.weighted.Release(1) }

// WaitAssign blocks until a slot is available or ctx is done, used by the
// dequeue path (QUE->ASS) once a slot frees up asynchronously.
func (b *BackendSlots) WaitAssign(ctx context.Context, si *stream.Interface) error {
	if err := b.weighted.Acquire(ctx, 1); err != nil {
		return err
	}
	si.Assign()
	return nil
}

// TarpitDeadline returns the absolute deadline a queued request should be
// given before moving QUE->TAR, per spec.md §4.4/§7.
func (b *BackendSlots) TarpitDeadline(now time.Time) time.Time {
	return now.Add(b.tarpitAfter)
}
