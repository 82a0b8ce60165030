/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package connection

import "github.com/corelb/rproxy/pkg/errors"

// ListenOpts mirrors the TCP listener bind options spec.md §6 names as
// external interfaces (transparent mode, defer-accept, tfo, v4v6/v6only,
// mss, device binding) and original_source/src/proto_tcp.c's
// bind_parse_* keyword table implements concretely. Concrete fields
// instead of leaving the knobs unspecified; best-effort on platforms
// lacking the underlying socket option (see listenopts_linux.go /
// listenopts_other.go).
type ListenOpts struct {
	// Transparent binds to a foreign address via IP_TRANSPARENT, falling
	// back to IP_FREEBIND (proto_tcp.c's tcp_bind_listener tries
	// IP_TRANSPARENT then IP_FREEBIND, accepting either).
	Transparent bool

	// DeferAccept holds the accept() until data has arrived or a short
	// timeout elapses (TCP_DEFER_ACCEPT on Linux), avoiding spurious
	// wakeups for connections that never send anything.
	DeferAccept bool

	// FastOpen enables TCP_FASTOPEN on the listening socket with the
	// given queue length; 0 disables it.
	FastOpenQueueLen int

	// V4V6 makes an IPv6 listener also accept IPv4-mapped connections
	// (clearing IPV6_V6ONLY); V6Only forces the opposite. Exactly one of
	// the two should be set for an IPv6 bind; both zero means "OS
	// default".
	V4V6   bool
	V6Only bool

	// MSS sets TCP_MAXSEG on the listening socket when non-zero.
	MSS int

	// Device binds the listener to a specific network interface via
	// SO_BINDTODEVICE, when non-empty.
	Device string
}

// Validate reports whether the combination of options is coherent,
// independent of what the underlying OS can actually honor (spec.md §6
// names these as accepted inputs; it does not mandate every platform
// support every one).
func (o ListenOpts) Validate() errors.Error {
	if o.V4V6 && o.V6Only {
		return errors.New(errors.Internal, "listen options: v4v6 and v6only are mutually exclusive")
	}
	if o.FastOpenQueueLen < 0 {
		return errors.New(errors.Internal, "listen options: negative TCP_FASTOPEN queue length")
	}
	if o.MSS < 0 {
		return errors.New(errors.Internal, "listen options: negative TCP_MAXSEG")
	}
	return nil
}
