//go:build linux

/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package connection

import "syscall"

// these constants are not exposed by the syscall package on every arch;
// they match linux/in.h and linux/tcp.h and are stable ABI values.
const (
	solIP          = 0
	ipTransparent  = 19
	ipFreebind     = 15
	tcpDeferAccept = 9
	tcpFastopen    = 23
	tcpMaxseg      = 2
	ipv6V6only     = 26
	solIPV6        = 41
)

// Apply sets the configured socket options on fd, best-effort: a failing
// option is recorded but does not stop later ones from being tried,
// matching proto_tcp.c's tcp_bind_listener (IP_TRANSPARENT falling back to
// IP_FREEBIND, every other option independently best-effort).
func (o ListenOpts) Apply(fd int) []error {
	var errs []error

	if o.Transparent {
		if err := syscall.SetsockoptInt(fd, solIP, ipTransparent, 1); err != nil {
			if err2 := syscall.SetsockoptInt(fd, solIP, ipFreebind, 1); err2 != nil {
				errs = append(errs, err2)
			}
		}
	}

	if o.DeferAccept {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpDeferAccept, 1); err != nil {
			errs = append(errs, err)
		}
	}

	if o.FastOpenQueueLen > 0 {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpFastopen, o.FastOpenQueueLen); err != nil {
			errs = append(errs, err)
		}
	}

	if o.V4V6 {
		if err := syscall.SetsockoptInt(fd, solIPV6, ipv6V6only, 0); err != nil {
			errs = append(errs, err)
		}
	} else if o.V6Only {
		if err := syscall.SetsockoptInt(fd, solIPV6, ipv6V6only, 1); err != nil {
			errs = append(errs, err)
		}
	}

	if o.MSS > 0 {
		if err := syscall.SetsockoptInt(fd, syscall.IPPROTO_TCP, tcpMaxseg, o.MSS); err != nil {
			errs = append(errs, err)
		}
	}

	if o.Device != "" {
		if err := syscall.SetsockoptString(fd, syscall.SOL_SOCKET, syscall.SO_BINDTODEVICE, o.Device); err != nil {
			errs = append(errs, err)
		}
	}

	return errs
}
