//go:build !linux

/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package connection

import "errors"

// Apply is a no-op stub on platforms without the Linux-specific socket
// options proto_tcp.c relies on (IP_TRANSPARENT, TCP_DEFER_ACCEPT,
// TCP_FASTOPEN, SO_BINDTODEVICE); each of those four, when requested, is
// reported back as unsupported. V4V6, V6Only and MSS are neither applied
// nor reported here.
func (o ListenOpts) Apply(fd int) []error {
	var errs []error

	if o.Transparent {
		errs = append(errs, errors.New("transparent bind unsupported on this platform"))
	}
	if o.DeferAccept {
		errs = append(errs, errors.New("defer-accept unsupported on this platform"))
	}
	if o.FastOpenQueueLen > 0 {
		errs = append(errs, errors.New("tcp fast open unsupported on this platform"))
	}
	if o.Device != "" {
		errs = append(errs, errors.New("device binding unsupported on this platform"))
	}

	return errs
}
