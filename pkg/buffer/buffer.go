/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package buffer implements the fixed-size ring buffer described in
// spec.md §3/§4.1: one pending block of "output" (already committed, being
// sent) and "input" (freshly received, not yet committed) bytes per
// direction, plus a to_forward counter used by zero-copy relaying.
//
// Every mutating operation returns a signed byte delta. Callers that cache
// offsets into the buffer (the HTTP parser's sol/eoh/sov/next, for example)
// must add that delta to every cached offset to keep them valid - the
// buffer itself never tracks which offsets are "cached" elsewhere.
package buffer

import "errors"

// ErrFull is returned by operations that would grow the committed region
// (o+i) past the backing array's size; the caller must wait for a drain.
var ErrFull = errors.New("buffer: would overflow capacity")

// Buffer is a fixed-capacity byte ring. The zero value is not usable; use
// New.
type Buffer struct {
	data []byte
	size int

	p int // logical head: absolute index into data, 0 <= p < size
	o int // bytes already committed, at [p-o, p) (mod size)
	i int // bytes freshly received, not yet committed, at [p, p+i) (mod size)

	toForward int // pending "advance" counter for zero-copy forwarding
	total     uint64
}

// New allocates a Buffer with the given fixed capacity.
func New(size int) *Buffer {
	return &Buffer{data: make([]byte, size), size: size}
}

// Cap returns the fixed backing capacity.
func (b *Buffer) Cap() int { return b.size }

// Len returns the number of bytes currently held (output + input).
func (b *Buffer) Len() int { return b.o + b.i }

// Output returns the number of committed bytes awaiting send.
func (b *Buffer) Output() int { return b.o }

// Input returns the number of freshly received, uncommitted bytes.
func (b *Buffer) Input() int { return b.i }

// ToForward returns the pending zero-copy forward counter.
func (b *Buffer) ToForward() int { return b.toForward }

// Total returns the lifetime byte count that has passed through Advance.
func (b *Buffer) Total() uint64 { return b.total }

// IsEmpty reports whether the buffer holds no bytes at all.
func (b *Buffer) IsEmpty() bool { return b.o+b.i == 0 }

// IsFull reports whether the buffer has no room left for more input.
func (b *Buffer) IsFull() bool { return b.o+b.i >= b.size }

func (b *Buffer) idx(off int) int {
	n := (off) % b.size
	if n < 0 {
		n += b.size
	}
	return n
}

// Reserve reports whether n additional input bytes would fit without
// exceeding capacity. It performs no mutation; WriteInput does the actual
// reservation+copy atomically.
func (b *Buffer) Reserve(n int) bool {
	return b.o+b.i+n <= b.size
}

// WriteInput appends p to the input region, growing `i`. It refuses (returns
// 0, ErrFull) if the result would overflow capacity, matching the "refuses
// and returns zero" failure contract of spec.md §4.1.
func (b *Buffer) WriteInput(p []byte) (int, error) {
	if !b.Reserve(len(p)) {
		return 0, ErrFull
	}

	start := b.idx(b.p + b.i)
	n := copy(b.data[start:], p)
	if n < len(p) {
		copy(b.data[0:], p[n:])
	}
	b.i += len(p)

	return len(p), nil
}

// Advance forwards the output cursor past the next n bytes of input,
// converting them from "input" to "output" (spec.md §4.1/§4.2 channel
// forward). It is the zero-copy hot path: no bytes move, only indices do.
//
// The returned delta must be added to every offset a caller has cached
// relative to the buffer's head (the logical head itself moves forward by
// n, so a previously-valid relative offset X becomes X-n).
func (b *Buffer) Advance(n int) int {
	if n <= 0 {
		return 0
	}
	if n > b.i {
		n = b.i
	}

	b.p = b.idx(b.p + n)
	b.o += n
	b.i -= n
	b.total += uint64(n)

	if b.toForward > 0 {
		fwd := n
		if fwd > b.toForward {
			fwd = b.toForward
		}
		b.toForward -= fwd
	}

	return -n
}

// SetToForward arms the zero-copy forward counter (channel.forward(n)).
func (b *Buffer) SetToForward(n int) { b.toForward = n }

// FastDelete drops n already-sent bytes from the oldest end of the output
// region. The head p is unchanged, so relative-to-head offsets are
// unaffected: the delta is always 0.
func (b *Buffer) FastDelete(n int) int {
	if n <= 0 {
		return 0
	}
	if n > b.o {
		n = b.o
	}
	b.o -= n
	return 0
}

// contiguousSlice returns a slice view that IS NOT shared with the ring:
// bytes are copied out if the requested [off, off+n) range wraps past the
// end of the backing array.
func (b *Buffer) contiguousSlice(off, n int) []byte {
	if n <= 0 {
		return nil
	}

	start := b.idx(b.p - b.o + off)
	if start+n <= b.size {
		return b.data[start : start+n]
	}

	out := make([]byte, n)
	k := copy(out, b.data[start:b.size])
	copy(out[k:], b.data[0:n-k])
	return out
}

// PeekOutput returns a view of the n committed output bytes starting at
// relative offset off (0 == start of output region). May allocate if the
// requested window wraps.
func (b *Buffer) PeekOutput(off, n int) []byte {
	return b.contiguousSlice(off, n)
}

// PeekInput returns a view of n input bytes starting at relative offset off
// from the head (0 == p, i.e. the first unread byte). This is the primitive
// the HTTP parser reads through; offsets it caches (sol, eoh, sov, next) are
// exactly these relative-to-head offsets.
func (b *Buffer) PeekInput(off, n int) []byte {
	if off < 0 || off+n > b.i {
		n = b.i - off
		if n < 0 {
			n = 0
		}
	}
	return b.contiguousSlice(b.o+off, n)
}

// ByteAt returns the byte at relative-to-head offset off (negative == in the
// output region, >=0 == in the input region) and whether it was in range.
func (b *Buffer) ByteAt(off int) (byte, bool) {
	if off < -b.o || off >= b.i {
		return 0, false
	}
	idx := b.idx(b.p + off)
	return b.data[idx], true
}

// InsertLine rewrites the buffer by inserting text at relative offset at
// (0 == head), shifting everything from `at` onward forward by len(text).
// It requires the buffer to already be realigned (p == 0) so the rewrite
// can be expressed as a plain slice splice; callers needing this on a
// wrapped buffer must call SlowRealign first, per spec.md §4.1.
//
// Returns the delta (== len(text)) callers must add to any cached offset
// that was >= at.
func (b *Buffer) InsertLine(at int, text []byte) (int, error) {
	if b.p != 0 {
		return 0, errors.New("buffer: InsertLine requires a realigned buffer")
	}
	if !b.Reserve(len(text)) {
		return 0, ErrFull
	}

	used := b.o + b.i
	if at < 0 || at > used {
		return 0, errors.New("buffer: InsertLine offset out of range")
	}

	tail := make([]byte, used-at)
	copy(tail, b.data[at:used])
	copy(b.data[at:], text)
	copy(b.data[at+len(text):], tail)

	if at < b.o {
		b.o += len(text)
	} else {
		b.i += len(text)
	}

	return len(text), nil
}

// Replace overwrites [from, to) with newData, which may be a different
// length (length-changing in-place edit, e.g. header value rewriting).
// Requires a realigned buffer, like InsertLine.
//
// Returns the signed delta (len(newData) - (to-from)) callers must add to
// any cached offset >= to.
func (b *Buffer) Replace(from, to int, newData []byte) (int, error) {
	if b.p != 0 {
		return 0, errors.New("buffer: Replace requires a realigned buffer")
	}

	used := b.o + b.i
	if from < 0 || to < from || to > used {
		return 0, errors.New("buffer: Replace range out of bounds")
	}

	delta := len(newData) - (to - from)
	if delta > 0 && !b.Reserve(delta) {
		return 0, ErrFull
	}

	tail := make([]byte, used-to)
	copy(tail, b.data[to:used])
	copy(b.data[from:], newData)
	copy(b.data[from+len(newData):], tail)

	if to <= b.o {
		b.o += delta
	} else if from >= b.o {
		b.i += delta
	} else {
		// the edit straddles the output/input boundary: attribute the
		// growth/shrink to input, which is the side still being built.
		b.i += delta
	}

	return delta, nil
}

// SlowRealign physically rotates the ring so the oldest output byte lands
// at absolute index 0 of the backing array and the logical head p sits at
// index o. The head reaches index 0 only when no output is pending; with
// output pending, InsertLine/Replace still return an error afterwards.
// Relative-to-head offsets (sol, eoh, sov, next, ...) are unaffected by
// definition, so the returned delta is always 0; it is returned
// regardless, to keep the signed-delta contract uniform across all
// buffer-mutating operations per spec.md §4.1.
func (b *Buffer) SlowRealign() int {
	if b.p == 0 {
		return 0
	}

	used := b.o + b.i
	rotated := make([]byte, used)

	start := b.idx(b.p - b.o)
	n := copy(rotated, b.data[start:min(b.size, start+used)])
	if n < used {
		copy(rotated[n:], b.data[0:used-n])
	}

	copy(b.data, rotated)
	b.p = b.o

	return 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
