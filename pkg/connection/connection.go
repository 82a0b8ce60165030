/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package connection implements the connection state machine of spec.md
// §3/§4.3: a file descriptor wrapped by a transport (raw/TLS) and a control
// protocol, a tagged-union target, and the four-layer polling-intent flag
// word (CURR/SOCK/DATA/WAIT) that pkg/polling reconciles into actual poller
// subscriptions.
package connection

import (
	"context"
	"net"
	"sync"

	"github.com/corelb/rproxy/pkg/errors"
	"github.com/corelb/rproxy/pkg/polling"
)

// Transport is the external collaborator spec.md §1 names as out of scope
// in its TLS implementation details: init/read/write/close over the raw
// net.Conn. A plain TCP transport and a TLS transport both satisfy this.
type Transport interface {
	Init(ctx context.Context, raw net.Conn) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Control is the control-protocol abstraction (TCP/unix) used to dial a
// server-side connection; listeners use it in reverse (Accept).
type Control interface {
	Dial(ctx context.Context, network, address string) (net.Conn, error)
}

// TargetKind is the tag of the Target sum type (spec.md §3, §9 "model as a
// sum type").
type TargetKind uint8

const (
	TargetNone TargetKind = iota
	TargetListener
	TargetServer
	TargetProxy
	TargetApplet
	TargetTask
)

// Target is the tagged union a Connection is bound to. Exactly one of the
// pointer fields matching Kind is meaningful; callers switch on Kind rather
// than nil-checking every field (closed enumeration, spec.md §9).
type Target struct {
	Kind TargetKind

	ListenerName string
	ServerName   string
	ProxyName    string
	AppletName   string
	TaskName     string
}

// Flag is the connection lifecycle/handshake flag word of spec.md §3,
// distinct from the CURR/SOCK/DATA/WAIT polling-intent bits which live in
// the embedded polling.Intent.
type Flag uint32

const (
	SockRdSh Flag = 1 << iota // half-close, sock layer, read side
	SockWrSh                  // half-close, sock layer, write side
	DataRdSh                  // half-close, data layer, read side
	DataWrSh                  // half-close, data layer, write side
	Error                     // CO_FL_ERROR
	PollSock                  // handshake in progress; sock layer drives polling
	WakeData                  // data layer should be woken on next event
	AddrFromSet
	AddrToSet
	SiSendProxy
	XprtTracked // transport kept alive for late log materialization
)

// Addr holds the peer address pair a Connection exposes (from/to), as
// populated by an accept, a connect, or a PROXY protocol header.
type Addr struct {
	From net.Addr
	To   net.Addr
}

// PollFunc is how a Connection asks its owning poller to actually change
// its recv/send subscription; CondUpdatePolling calls it only when
// polling.Delta.Changed is true.
type PollFunc func(recv, send bool)

// Connection wraps one socket/transport pair plus the polling-intent state
// machine of spec.md §4.3.
type Connection struct {
	mu sync.Mutex

	Raw   net.Conn
	Xprt  Transport
	Ctrl  Control
	Owner string // typed handle into the owning session/arena, not a raw pointer (spec.md §9)

	Target Target
	Addr   Addr

	flags  Flag
	intent *polling.Intent
	xprtSt uint8

	// shadow copies of the last data/sock intent this connection asked for,
	// since polling.Intent exposes no getters (spec.md §9: callers never
	// read the raw bits back out, only the Delta of a Reconcile).
	lastDataRecv, lastDataSend bool
	lastSockRecv, lastSockSend bool
	xprtClosed                 bool

	ErrCode errors.CodeError

	poll PollFunc
}

// New constructs a Connection bound to raw, using the given transport and
// control protocol. poll may be nil in tests that don't care about actual
// subscription side effects.
func New(raw net.Conn, xprt Transport, ctrl Control, poll PollFunc) *Connection {
	return &Connection{
		Raw:    raw,
		Xprt:   xprt,
		Ctrl:   ctrl,
		intent: polling.New(),
		poll:   poll,
	}
}

// Flags returns the current lifecycle flag word.
func (c *Connection) Flags() Flag {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flags
}

func (c *Connection) setLocked(f Flag) { c.flags |= f }
func (c *Connection) clrLocked(f Flag) { c.flags &^= f }
func (c *Connection) hasLocked(f Flag) bool { return c.flags&f == f }

// Has reports whether all bits in f are set.
func (c *Connection) Has(f Flag) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasLocked(f)
}

// XprtInit initializes the transport over the raw connection. Returns an
// Internal-coded Error on failure, per spec.md §4.3 ("returns <0 on error").
func (c *Connection) XprtInit(ctx context.Context) errors.Error {
	if err := c.Xprt.Init(ctx, c.Raw); err != nil {
		e := errors.New(errors.Internal, "transport init failed", err)
		c.mu.Lock()
		c.ErrCode = e.Code()
		c.setLocked(Error)
		c.mu.Unlock()
		return e
	}
	return nil
}

// XprtClose closes the transport. It is idempotent (repeat calls are a
// no-op) and becomes a no-op on its first call too if XprtTracked is set
// (late log materialization still needs to read the transport).
func (c *Connection) XprtClose() errors.Error {
	c.mu.Lock()
	if c.xprtClosed {
		c.mu.Unlock()
		return nil
	}
	tracked := c.hasLocked(XprtTracked)
	if !tracked {
		c.xprtClosed = true
	}
	c.mu.Unlock()

	if tracked {
		return nil
	}

	if err := c.Xprt.Close(); err != nil {
		return errors.New(errors.Internal, "transport close failed", err)
	}
	return nil
}

// FullClose closes the transport then deletes the fd atomically (here: also
// closes the raw net.Conn), matching spec.md §4.3's full_close.
func (c *Connection) FullClose() errors.Error {
	e := c.XprtClose()
	if cerr := c.Raw.Close(); cerr != nil && e == nil {
		e = errors.New(errors.Internal, "fd close failed", cerr)
	}
	return e
}

// --- event primitives: spec.md §4.3 {data,sock}_{want,stop,poll}_{recv,send} + stop_both ---

// DataWantRecv/DataWantSend record that the data layer wants to read/write
// and triggers a conditional polling update.
func (c *Connection) DataWantRecv(want bool) { c.setDataIntent(&want, nil); c.CondUpdatePolling() }
func (c *Connection) DataWantSend(want bool) { c.setDataIntent(nil, &want); c.CondUpdatePolling() }

// DataStopRecv/DataStopSend are the non-conditional variants ("__" prefixed
// in spec.md) that update the bit without triggering a polling update.
func (c *Connection) DataStopRecv() { f := false; c.setDataIntent(&f, nil) }
func (c *Connection) DataStopSend() { f := false; c.setDataIntent(nil, &f) }

func (c *Connection) SockWantRecv(want bool) { c.setSockIntent(&want, nil); c.CondUpdatePolling() }
func (c *Connection) SockWantSend(want bool) { c.setSockIntent(nil, &want); c.CondUpdatePolling() }
func (c *Connection) SockStopRecv()          { f := false; c.setSockIntent(&f, nil) }
func (c *Connection) SockStopSend()          { f := false; c.setSockIntent(nil, &f) }

// StopBoth clears both data and sock intent in both directions without
// triggering a polling update by itself (callers call CondUpdatePolling
// once afterwards).
func (c *Connection) StopBoth() {
	f := false
	c.setDataIntent(&f, &f)
	c.setSockIntent(&f, &f)
}

func (c *Connection) setDataIntent(recv, send *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if recv != nil {
		c.lastDataRecv = *recv
	}
	if send != nil {
		c.lastDataSend = *send
	}
	c.intent.SetData(c.lastDataRecv, c.lastDataSend)
}

func (c *Connection) setSockIntent(recv, send *bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if recv != nil {
		c.lastSockRecv = *recv
	}
	if send != nil {
		c.lastSockSend = *send
	}
	c.intent.SetSock(c.lastSockRecv, c.lastSockSend)
}

// --- half-close primitives: spec.md §4.3 ---

// SockRead0 marks the sock layer as having observed EOF on read.
func (c *Connection) SockRead0() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(SockRdSh)
}

// DataRead0 marks the data layer as having observed EOF on read.
func (c *Connection) DataRead0() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(DataRdSh)
}

// SockShutw half-closes the sock layer's write side.
func (c *Connection) SockShutw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(SockWrSh)
}

// DataShutw half-closes the data layer's write side.
func (c *Connection) DataShutw() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(DataWrSh)
}

// DataRead0Pending reports whether the data layer has seen EOF.
func (c *Connection) DataRead0Pending() bool { return c.Has(DataRdSh) }

// SockShutwPending reports whether the sock layer's write side is half-closed.
func (c *Connection) SockShutwPending() bool { return c.Has(SockWrSh) }

// --- polling reconciliation: spec.md §4.3/§4.9 ---

// RefreshPollingFlags snaps the current CURR bits to reflect the poller's
// view of the fd, called on entry to the connection handler.
func (c *Connection) RefreshPollingFlags(currRecv, currSend bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intent.SetCurrent(currRecv, currSend)
}

// CondUpdatePolling reconciles intent against CURR and, if the result
// differs, invokes PollFunc to actually change the poller subscription
// (spec.md §4.3/§4.9). When Error is set, polling is disabled in both
// directions regardless of what SOCK/DATA want.
func (c *Connection) CondUpdatePolling() {
	c.mu.Lock()
	c.intent.SetPollSock(c.hasLocked(PollSock))
	c.intent.SetError(c.hasLocked(Error))
	d := c.intent.Reconcile()
	c.intent.SetCurrent(d.WantRecv, d.WantSend)
	poll := c.poll
	c.mu.Unlock()

	if d.Changed && poll != nil {
		poll(d.WantRecv, d.WantSend)
	}
}

// SetError marks CO_FL_ERROR and immediately reconciles polling so both
// directions stop, per spec.md §4.3's error semantics.
func (c *Connection) SetError(code errors.CodeError) {
	c.mu.Lock()
	c.setLocked(Error)
	c.ErrCode = code
	c.mu.Unlock()
	c.CondUpdatePolling()
}
