/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package proxyproto implements PROXY protocol v1 parsing and emission
// (spec.md §4.10): a single textual line, always the first bytes of the
// first segment, carrying the original peer addresses across a trusted
// hop.
package proxyproto

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/corelb/rproxy/pkg/errors"
)

const maxLine = 107 // "PROXY UNKNOWN" + two max-length IPv6/port fields + CRLF, rounded up

// Header is the decoded content of a PROXY v1 line.
type Header struct {
	Family string // TCP4, TCP6, or UNKNOWN
	Src    net.IP
	Dst    net.IP
	SrcPort uint16
	DstPort uint16

	// Consumed is the exact byte length of the line, including the
	// terminating CRLF, so the caller can advance its buffer head by
	// exactly that many bytes (spec.md §4.10 "consume exactly the line
	// length").
	Consumed int
}

// Parse validates and decodes a PROXY v1 line at the very start of buf. It
// never partially consumes: either the full line (prefix, address fields,
// CRLF) is present and well-formed, or a CO_ER_PRX_* error is returned.
// Returning (nil, nil, false) with no error means more bytes are needed.
func Parse(buf []byte) (*Header, errors.Error, bool) {
	if len(buf) == 0 {
		return nil, errors.New(errors.ProxyEmpty, "empty segment"), false
	}

	idx := indexCRLF(buf)
	if idx < 0 {
		if len(buf) > maxLine {
			return nil, errors.New(errors.ProxyTruncated, "line exceeds maximum PROXY v1 length"), false
		}
		return nil, nil, false // need more bytes
	}

	line := string(buf[:idx])
	if !strings.HasPrefix(line, "PROXY ") {
		return nil, errors.New(errors.ProxyNotHeader, "missing PROXY prefix"), false
	}

	fields := strings.Split(line[len("PROXY "):], " ")

	if len(fields) == 1 && fields[0] == "UNKNOWN" {
		return &Header{Family: "UNKNOWN", Consumed: idx + 2}, nil, true
	}

	if len(fields) != 5 {
		return nil, errors.New(errors.ProxyBadHeader, "wrong field count"), false
	}

	family := fields[0]
	if family != "TCP4" && family != "TCP6" {
		return nil, errors.New(errors.ProxyBadProto, "unsupported protocol family"), false
	}

	src := net.ParseIP(fields[1])
	dst := net.ParseIP(fields[2])
	if src == nil || dst == nil {
		return nil, errors.New(errors.ProxyBadHeader, "invalid IP literal"), false
	}

	srcPort, err1 := parsePort(fields[3])
	dstPort, err2 := parsePort(fields[4])
	if err1 != nil || err2 != nil {
		return nil, errors.New(errors.ProxyBadHeader, "invalid port"), false
	}

	return &Header{
		Family:   family,
		Src:      src,
		Dst:      dst,
		SrcPort:  srcPort,
		DstPort:  dstPort,
		Consumed: idx + 2,
	}, nil, true
}

func parsePort(s string) (uint16, error) {
	if s == "" || (len(s) > 1 && s[0] == '0') {
		return 0, fmt.Errorf("leading zero or empty port")
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func indexCRLF(buf []byte) int {
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\r' && buf[i+1] == '\n' {
			return i
		}
	}
	return -1
}

// Encode renders a PROXY v1 line for the given header, emitting "PROXY
// UNKNOWN\r\n" for an unknown address family (spec.md §6 egress rule).
func Encode(h Header) []byte {
	if h.Family != "TCP4" && h.Family != "TCP6" {
		return []byte("PROXY UNKNOWN\r\n")
	}
	return []byte(fmt.Sprintf("PROXY %s %s %s %d %d\r\n",
		h.Family, h.Src.String(), h.Dst.String(), h.SrcPort, h.DstPort))
}

// FromAddr builds a Header from a pair of resolved net.Addr, picking TCP4
// or TCP6 based on the source address's IP family.
func FromAddr(src, dst net.Addr) (Header, errors.Error) {
	st, ok1 := src.(*net.TCPAddr)
	dt, ok2 := dst.(*net.TCPAddr)
	if !ok1 || !ok2 {
		return Header{Family: "UNKNOWN"}, nil
	}

	family := "TCP4"
	if st.IP.To4() == nil {
		family = "TCP6"
	}

	return Header{
		Family:  family,
		Src:     st.IP,
		Dst:     dt.IP,
		SrcPort: uint16(st.Port),
		DstPort: uint16(dt.Port),
	}, nil
}
