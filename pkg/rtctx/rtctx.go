/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package rtctx implements the RuntimeContext of spec.md §9: the explicit
// replacement for the original source's module-wide pools
// (pool2_connection, pool2_requri, ...) and process-wide trash buffer.
// Initialised once at startup, threaded through the pipeline instead of
// referenced as global mutable state, and torn down at exit.
package rtctx

import (
	"sync"

	"github.com/corelb/rproxy/pkg/buffer"
	"github.com/corelb/rproxy/pkg/httptxn"
)

// RuntimeContext owns the typed slab pools for the object kinds the
// pipeline allocates at high frequency (transaction, buffer - connection
// and session pooling is left to the caller since their construction
// needs per-accept arguments a generic pool cannot supply), plus the
// scratch buffer used for one-shot header rewrites.
type RuntimeContext struct {
	txns    sync.Pool
	buffers sync.Pool

	bufSize int

	trashMu sync.Mutex
	trash   []byte
}

// New builds a RuntimeContext whose buffer pool hands out buffers of
// bufSize bytes, and whose scratch trash buffer starts at trashSize bytes
// (grown on demand, never shrunk).
func New(bufSize, trashSize int) *RuntimeContext {
	rc := &RuntimeContext{bufSize: bufSize, trash: make([]byte, trashSize)}

	rc.txns.New = func() any { return httptxn.New() }
	rc.buffers.New = func() any { return buffer.New(rc.bufSize) }

	return rc
}

// GetTxn returns a transaction from the pool, already reset to its INI
// state via httptxn.New's zero-value construction.
func (rc *RuntimeContext) GetTxn() *httptxn.Txn {
	return rc.txns.Get().(*httptxn.Txn)
}

// PutTxn resets a transaction's per-request state and returns it to the
// pool for reuse.
func (rc *RuntimeContext) PutTxn(t *httptxn.Txn) {
	t.Recycle()
	rc.txns.Put(t)
}

// GetBuffer returns a buffer.Buffer of the pool's configured size.
func (rc *RuntimeContext) GetBuffer() *buffer.Buffer {
	return rc.buffers.Get().(*buffer.Buffer)
}

// PutBuffer returns a buffer to the pool. Buffers are not otherwise
// resettable in place (their ring state is reinitialised by buffer.New),
// so PutBuffer simply discards the reference; nothing is put back in the
// pool, so every GetBuffer allocates a fresh buffer.
func (rc *RuntimeContext) PutBuffer(b *buffer.Buffer) {
	_ = b
}

// Trash returns the process-wide scratch buffer truncated/grown to n
// bytes, for the single-threaded cooperative scheduling model's one-shot
// header rewrites (spec.md §5/§9). Callers must not retain the slice past
// their current cooperative step.
func (rc *RuntimeContext) Trash(n int) []byte {
	rc.trashMu.Lock()
	defer rc.trashMu.Unlock()

	if cap(rc.trash) < n {
		rc.trash = make([]byte, n)
	}
	return rc.trash[:n]
}
