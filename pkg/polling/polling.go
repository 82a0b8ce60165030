/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package polling implements the three-layer polling-intent reconciler of
// spec.md §4.3/§4.9/§9: CURR (what the poller currently watches), SOCK
// (what the handshake/control layer wants) and DATA (what the upper data
// layer wants) are packed per direction so that a single shift-xor-mask
// test detects disagreement, without leaking the shift constants to
// callers (spec.md §9, "do not leak the shift constants into callers").
package polling

import "github.com/bits-and-blooms/bitset"

// Each direction (recv/send) gets its own small plane with CURR at bit 0,
// DATA at bit kData and SOCK at bit kSock, so that shifting the plane right
// by kData or kSock realigns that layer's bit onto CURR's position for a
// single XOR+mask comparison - exactly the mechanism spec.md §4.9 describes.
const (
	bitCurr = 0
	kData   = 2
	kSock   = 3

	bitData = kData
	bitSock = kSock

	planeWidth = kSock + 1
)

// recv/send plane base offsets inside the backing bitset, plus the two
// connection-wide single bits (WAIT is tracked per-direction too).
const (
	planeRecv = iota * planeWidth
	planeSend
	bitWaitRecv = 2 * planeWidth
	bitWaitSend = bitWaitRecv + 1
	bitError    = bitWaitRecv + 2
	bitPollSock = bitWaitRecv + 3
)

// Intent is the packed three-layer polling state for one connection.
// It is deliberately opaque: callers mutate it through the Set* methods and
// read the outcome through Delta, never the raw bits.
type Intent struct {
	bits *bitset.BitSet
}

// New returns a zeroed Intent: nothing polled, nothing wanted, no error, no
// handshake in progress.
func New() *Intent {
	return &Intent{bits: bitset.New(16)}
}

func (in *Intent) set(bit uint, v bool) {
	if v {
		in.bits.Set(bit)
	} else {
		in.bits.Clear(bit)
	}
}

// SetCurrent records what the poller currently watches for recv/send.
func (in *Intent) SetCurrent(recv, send bool) {
	in.set(planeRecv+bitCurr, recv)
	in.set(planeSend+bitCurr, send)
}

// SetSock records what the control/handshake layer wants.
func (in *Intent) SetSock(recv, send bool) {
	in.set(planeRecv+bitSock, recv)
	in.set(planeSend+bitSock, send)
}

// SetData records what the upper data layer wants.
func (in *Intent) SetData(recv, send bool) {
	in.set(planeRecv+bitData, recv)
	in.set(planeSend+bitData, send)
}

// SetWait records that an EAGAIN was observed and this side must actively
// wait for readiness rather than re-arming immediately.
func (in *Intent) SetWait(recv, send bool) {
	in.set(bitWaitRecv, recv)
	in.set(bitWaitSend, send)
}

// SetError marks CO_FL_ERROR: polling is disabled in both directions and an
// error must be surfaced to both layers on their next entry (spec.md §4.3).
func (in *Intent) SetError(v bool) { in.set(bitError, v) }

// SetPollSock marks that a handshake is in progress: while true, the sock
// layer drives polling instead of the data layer (spec.md §4.9).
func (in *Intent) SetPollSock(v bool) { in.set(bitPollSock, v) }

// plane packs one direction's CURR/DATA/SOCK bits into the low bits of a
// uint8, CURR at bit0, DATA at bitData, SOCK at bitSock.
func (in *Intent) plane(base uint) uint8 {
	var w uint8
	for i := uint(0); i < planeWidth; i++ {
		if in.bits.Test(base + i) {
			w |= 1 << i
		}
	}
	return w
}

// Delta is the typed "what must change" outcome of reconciling Intent
// against the currently-polled state, replacing raw shifted integers with
// named booleans per spec.md §9.
type Delta struct {
	// Driver is "sock" or "data": which layer's *_ENA bit should be copied
	// onto CURR, chosen by whether POLL_SOCK is set.
	Driver string

	// WantRecv/WantSend are the driving layer's desired subscription after
	// reconciliation (always false if the connection has an error).
	WantRecv, WantSend bool

	// Changed reports whether the poller subscription must actually be
	// updated: true iff the driving layer disagrees with CURR, or an error
	// is pending.
	Changed bool
}

// changed implements (flags ^ (flags >> k)) & 1 for one direction's plane:
// shifting the plane right by k brings that layer's bit down onto bit 0
// (CURR's position), so XOR-ing with the unshifted plane and masking to
// bit 0 is non-zero iff the layer disagrees with CURR.
func changed(plane uint8, k uint) bool {
	return (plane^(plane>>k))&0x1 != 0
}

// Reconcile computes the shift-xor-mask test spec.md §4.9 describes for
// both the data/curr (k=2) and sock/curr (k=3) comparisons, with ERROR
// excluded from the unshifted copy so it cannot cancel itself out, then
// chooses which layer drives polling based on POLL_SOCK.
func (in *Intent) Reconcile() Delta {
	recvPlane := in.plane(planeRecv)
	sendPlane := in.plane(planeSend)
	hasError := in.bits.Test(bitError)
	pollSock := in.bits.Test(bitPollSock)

	dataChanged := changed(recvPlane, kData) || changed(sendPlane, kData)
	sockChanged := changed(recvPlane, kSock) || changed(sendPlane, kSock)

	driver := "data"
	wantRecv := recvPlane&(1<<bitData) != 0
	wantSend := sendPlane&(1<<bitData) != 0
	out := dataChanged

	if pollSock {
		driver = "sock"
		wantRecv = recvPlane&(1<<bitSock) != 0
		wantSend = sendPlane&(1<<bitSock) != 0
		out = sockChanged
	}

	if hasError {
		wantRecv, wantSend = false, false
		out = true
	}

	return Delta{Driver: driver, WantRecv: wantRecv, WantSend: wantSend, Changed: out}
}
