/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package stream implements the Stream Interface of spec.md §4.4: the
// endpoint of a channel pair, attached either to a connection or to an
// embedded applet, that drives shutr/shutw/chk_rcv/chk_snd/update/connect
// through a small state machine.
package stream

import (
	"github.com/corelb/rproxy/pkg/channel"
	"github.com/corelb/rproxy/pkg/errors"
)

// State is a node of the stream-interface state machine (spec.md §4.4).
type State uint8

const (
	INI State = iota
	REQ
	QUE
	TAR
	ASS
	CON
	CER
	EST
	DIS
	CLO
)

func (s State) String() string {
	switch s {
	case INI:
		return "INI"
	case REQ:
		return "REQ"
	case QUE:
		return "QUE"
	case TAR:
		return "TAR"
	case ASS:
		return "ASS"
	case CON:
		return "CON"
	case CER:
		return "CER"
	case EST:
		return "EST"
	case DIS:
		return "DIS"
	default:
		return "CLO"
	}
}

// Flag is the per-interface behavior flag word of spec.md §3.
type Flag uint8

const (
	NoLinger Flag = 1 << iota
	NoHalf
	IndepStr
	SrcAddr
	DontWake
	WaitRoom
	WaitData
)

// Ops is the vtable a stream interface is driven through: either a real
// connection (syscalls) or an embedded applet (in-process channel
// shuffling), per spec.md §4.4's "ops (embedded|conn|applet)".
type Ops interface {
	// Connect issues (or re-issues) the control protocol's connect.
	Connect() errors.Error
	// Shutr/Shutw propagate a half-close into the data layer this Ops
	// wraps.
	Shutr()
	Shutw()
	// Update runs one step of the underlying data-layer state machine
	// (e.g. pumping an applet, or noticing a connection event).
	Update(si *Interface)
}

// Interface is one endpoint of a channel pair (spec.md §4.4).
type Interface struct {
	State State
	Flags Flag

	ErrType ErrType
	ErrLoc  int

	Ops Ops

	// Ob is the channel carrying bytes outbound from this endpoint toward
	// its peer; Ib is the channel this endpoint reads its peer's bytes
	// from.
	Ob *channel.Channel
	Ib *channel.Channel

	ExpMS int64 // expiration, monotonic milliseconds; <=0 means unset

	SendProxyOfs int

	retries int
	maxRetries int

	release func()
}

// ErrType classifies why a stream interface moved to CLO outside the
// normal EST->DIS->CLO path (spec.md §3 err_type).
type ErrType uint8

const (
	ErrNone ErrType = iota
	ErrConnect
	ErrTimeout
	ErrShut
	ErrFatal
)

// New constructs a stream interface in INI, wired to the given ops and
// channel pair. maxRetries is the server's configured retry budget
// (spec.md §7 "retried up to the server's retries count").
func New(ops Ops, ob, ib *channel.Channel, maxRetries int) *Interface {
	return &Interface{
		State:      INI,
		Ops:        ops,
		Ob:         ob,
		Ib:         ib,
		maxRetries: maxRetries,
	}
}

// ToREQ transitions INI->REQ, the client-side stream interface's first
// move once it sees a byte worth routing.
func (si *Interface) ToREQ() {
	if si.State == INI {
		si.State = REQ
	}
}

// Enqueue transitions REQ->QUE: a server was chosen but its backend is at
// capacity.
func (si *Interface) Enqueue() {
	if si.State == REQ {
		si.State = QUE
	}
}

// Assign transitions REQ->ASS or QUE->ASS: a server slot became available.
func (si *Interface) Assign() {
	if si.State == REQ || si.State == QUE {
		si.State = ASS
	}
}

// Tarpit transitions QUE->TAR: the request sat in queue past the tarpit
// threshold and must cool down before a retry.
func (si *Interface) Tarpit() {
	if si.State == QUE {
		si.State = TAR
	}
}

// Connect invokes Ops.Connect and transitions ASS->CON on success,
// surfacing the error otherwise (spec.md §4.4 connect operation).
func (si *Interface) Connect() errors.Error {
	if si.State != ASS {
		return errors.New(errors.Internal, "connect attempted outside ASS state")
	}
	if err := si.Ops.Connect(); err != nil {
		si.ErrType = ErrConnect
		si.State = CER
		return err
	}
	si.State = CON
	return nil
}

// ConnectDone transitions CON->EST (success) or CON->CER (failure, with
// retries left) per the connect-retry ladder of spec.md §4.4/§7.
func (si *Interface) ConnectDone(ok bool) {
	if si.State != CON {
		return
	}
	if ok {
		si.State = EST
		return
	}
	si.State = CER
}

// Retry transitions CER->ASS if retries remain, else CER->CLO, matching
// spec.md §7's "retried up to the server's retries count... all other
// transport-level errors are fatal".
func (si *Interface) Retry() bool {
	if si.State != CER {
		return false
	}
	if si.retries >= si.maxRetries {
		si.State = CLO
		return false
	}
	si.retries++
	si.State = ASS
	return true
}

// Disconnect transitions EST->DIS once one side has half-closed and
// forwarding on that side has drained.
func (si *Interface) Disconnect() {
	if si.State == EST {
		si.State = DIS
	}
}

// Close transitions DIS->CLO, or any->CLO on a fatal error (spec.md
// §4.4's "any -> CLO (fatal error or both shutr+shutw)").
func (si *Interface) Close(fatal bool) {
	if si.State == CLO {
		return
	}
	if si.State == DIS || fatal {
		si.State = CLO
		if si.release != nil {
			si.release()
			si.release = nil
		}
	}
}

// Shutr propagates a half-close of the read side to the data layer, then
// honors NoHalf (shutr implies shutw too, per NOHALF semantics) before
// checking whether both directions are now shut. The NoLinger flag is not
// consulted by Shutr or Shutw.
func (si *Interface) Shutr() {
	if si.Ob != nil {
		si.Ob.Set(channel.ShutR)
	}
	si.Ops.Shutr()

	if si.Flags&NoHalf != 0 {
		si.shutwLocked()
	}
	si.maybeClose()
}

// Shutw propagates a half-close of the write side.
func (si *Interface) Shutw() {
	si.shutwLocked()
	if si.Flags&NoHalf != 0 && si.Ob != nil {
		si.Ob.Set(channel.ShutR)
		si.Ops.Shutr()
	}
	si.maybeClose()
}

func (si *Interface) shutwLocked() {
	if si.Ob != nil {
		si.Ob.Set(channel.ShutW)
	}
	si.Ops.Shutw()
}

func (si *Interface) maybeClose() {
	shutR := si.Ob == nil || si.Ob.Has(channel.ShutR)
	shutW := si.Ob == nil || si.Ob.Has(channel.ShutW)
	if shutR && shutW {
		si.Close(true)
	}
}

// ChkRcv notifies the downstream endpoint that room is available to
// receive more, clearing WaitRoom.
func (si *Interface) ChkRcv() {
	si.Flags &^= WaitRoom
}

// ChkSnd notifies the upstream endpoint that data is available to send,
// clearing WaitData.
func (si *Interface) ChkSnd() {
	si.Flags &^= WaitData
}

// Update runs one step of the underlying data-layer state machine.
func (si *Interface) Update() {
	if si.Ops != nil {
		si.Ops.Update(si)
	}
}

// SetRelease installs the cleanup function invoked exactly once when the
// interface reaches CLO.
func (si *Interface) SetRelease(fn func()) { si.release = fn }

// Embedded reports whether this interface's ops are an in-process applet
// rather than a real connection (spec.md §4.4 "may be embedded").
type Embedded interface {
	Ops
	Embedded() bool
}
