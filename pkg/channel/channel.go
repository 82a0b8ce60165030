/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package channel implements the directional byte pipe described in
// spec.md §3/§4.2: a buffer plus an ordered analyser bitset, flow/timeout
// flags and deadlines. Channels never perform I/O themselves - they are
// driven by whichever stream interface (pkg/stream) is attached on each
// side.
package channel

import (
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/corelb/rproxy/pkg/buffer"
)

// Flag is a bitmask of channel state, matching the flag list of spec.md §3.
type Flag uint32

const (
	ReadError Flag = 1 << iota
	ReadTimeout
	ReadDontWait
	ReadNoExp
	ShutR
	ShutRNow
	ShutW
	ShutWNow
	WriteError
	WriteTimeout
	ExpectMore
	AutoConnect
	AutoClose
	NeverWait
	SendDontWait
	Streamer
	StreamerFast
	ReadAttached
	ReadPartial
	WritePartial
)

// Has reports whether all the bits in mask are set.
func (f Flag) Has(mask Flag) bool { return f&mask == mask }

// Channel is one direction of a session's data path.
type Channel struct {
	Buf *buffer.Buffer

	analysers *bitset.BitSet // ordered set of pending analyser bits (spec.md §4.7)
	analyseExp time.Time     // deadline for the currently-blocking analyser

	rex, wex time.Time     // read/write expirations
	rto, wto time.Duration // read/write timeouts

	flags Flag

	toForward int
	total     uint64
}

// New allocates a Channel backed by a buffer.Buffer of the given capacity.
func New(bufSize int) *Channel {
	return &Channel{
		Buf:       buffer.New(bufSize),
		analysers: bitset.New(64),
	}
}

// Flags returns the current flag word.
func (c *Channel) Flags() Flag { return c.flags }

// Set raises the given flag bits.
func (c *Channel) Set(f Flag) { c.flags |= f }

// Clear lowers the given flag bits.
func (c *Channel) Clear(f Flag) { c.flags &^= f }

// Has reports whether all bits in f are currently set.
func (c *Channel) Has(f Flag) bool { return c.flags.Has(f) }

// SetAnalyser arms analyser bit n (lowest bit runs first, spec.md §4.7).
func (c *Channel) SetAnalyser(n uint) { c.analysers.Set(n) }

// ClearAnalyser disarms analyser bit n.
func (c *Channel) ClearAnalyser(n uint) { c.analysers.Clear(n) }

// HasAnalyser reports whether analyser bit n is armed.
func (c *Channel) HasAnalyser(n uint) bool { return c.analysers.Test(n) }

// HasAnyAnalyser reports whether any analyser bit is still armed.
func (c *Channel) HasAnyAnalyser() bool { return c.analysers.Any() }

// NextAnalyser returns the lowest-numbered armed analyser bit and true, or
// (0, false) if none remain, implementing the "walk from lowest bit to
// highest" order spec.md §4.7 requires.
func (c *Channel) NextAnalyser() (uint, bool) {
	n, ok := c.analysers.NextSet(0)
	return n, ok
}

// ClearAnalysers disarms every analyser bit, used when an error path or a
// tunnel/close transition must stop the pipeline (spec.md §4.7/§7).
func (c *Channel) ClearAnalysers() { c.analysers.ClearAll() }

// SetAnalyseExpire installs the deadline for the currently blocking
// analyser (e.g. a tarpit's analyse_exp).
func (c *Channel) SetAnalyseExpire(t time.Time) { c.analyseExp = t }

// AnalyseExpire returns the currently installed analyser deadline.
func (c *Channel) AnalyseExpire() time.Time { return c.analyseExp }

// SetReadTimeout/SetWriteTimeout configure the per-channel timeouts; the
// corresponding expiration is (re)armed on the next read/write activity via
// Touch.
func (c *Channel) SetReadTimeout(d time.Duration)  { c.rto = d }
func (c *Channel) SetWriteTimeout(d time.Duration) { c.wto = d }

// TouchRead/TouchWrite re-arm the read/write expiration relative to now,
// called whenever the transport makes progress on that side.
func (c *Channel) TouchRead(now time.Time) {
	if c.rto > 0 {
		c.rex = now.Add(c.rto)
	}
}

func (c *Channel) TouchWrite(now time.Time) {
	if c.wto > 0 {
		c.wex = now.Add(c.wto)
	}
}

// Timeout returns the earliest of the read expiration, write expiration and
// analyser deadline, per spec.md §4.2 ("a channel's timeout is the earlier
// of..."). A zero time.Time means "no deadline" and is ignored.
func (c *Channel) Timeout() time.Time {
	var out time.Time

	for _, t := range []time.Time{c.rex, c.wex, c.analyseExp} {
		if t.IsZero() {
			continue
		}
		if out.IsZero() || t.Before(out) {
			out = t
		}
	}

	return out
}

// Forward arms the buffer's zero-copy forward counter (channel_forward(n)).
func (c *Channel) Forward(n int) { c.Buf.SetToForward(n) }

// DontConnect/AutoConnect toggle the AUTO_CONNECT flag that decides whether
// the server-side stream interface should dial immediately or wait.
func (c *Channel) DontConnect() { c.Clear(AutoConnect) }
func (c *Channel) AutoConnectOn() { c.Set(AutoConnect) }

// ShutrNow/ShutwNow request an immediate half-close, independent of pending
// data, matching the *_NOW variants of spec.md §3.
func (c *Channel) ShutrNow() { c.Set(ShutR | ShutRNow) }
func (c *Channel) ShutwNow() { c.Set(ShutW | ShutWNow) }

// AutoCloseOn arms AUTO_CLOSE (propagate shutw when shutr happens and vice
// versa, once forwarding drains).
func (c *Channel) AutoCloseOn() { c.Set(AutoClose) }

// Erase resets the channel to an empty, non-erroring state, used on the
// error path of spec.md §7 ("the offending channel is erased").
func (c *Channel) Erase() {
	c.Buf = buffer.New(c.Buf.Cap())
	c.flags = 0
	c.analysers.ClearAll()
	c.analyseExp = time.Time{}
}

// IsEmpty reports whether the underlying buffer holds no bytes.
func (c *Channel) IsEmpty() bool { return c.Buf.IsEmpty() }

// IsFull reports whether the underlying buffer has no room for more input.
func (c *Channel) IsFull() bool { return c.Buf.IsFull() }
