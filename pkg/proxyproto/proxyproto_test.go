/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package proxyproto_test

import (
	"net"

	"github.com/corelb/rproxy/pkg/errors"
	"github.com/corelb/rproxy/pkg/proxyproto"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Parse", func() {
	It("parses a TCP4 header and consumes exactly 38 bytes", func() {
		raw := []byte("PROXY TCP4 1.2.3.4 5.6.7.8 1111 2222\r\n")
		h, err, ok := proxyproto.Parse(raw)

		Expect(err).To(BeNil())
		Expect(ok).To(BeTrue())
		Expect(h.Src.String()).To(Equal("1.2.3.4"))
		Expect(h.Dst.String()).To(Equal("5.6.7.8"))
		Expect(h.SrcPort).To(Equal(uint16(1111)))
		Expect(h.DstPort).To(Equal(uint16(2222)))
		Expect(h.Consumed).To(Equal(38))
		Expect(len(raw)).To(Equal(38))
	})

	It("parses a TCP6 header identically for IPv6 addresses and ports", func() {
		raw := []byte("PROXY TCP6 ::1 ::2 65535 1\r\n")
		h, err, ok := proxyproto.Parse(raw)

		Expect(err).To(BeNil())
		Expect(ok).To(BeTrue())
		Expect(h.Src.String()).To(Equal("::1"))
		Expect(h.Dst.String()).To(Equal("::2"))
		Expect(h.SrcPort).To(Equal(uint16(65535)))
		Expect(h.DstPort).To(Equal(uint16(1)))
	})

	It("rejects a non-numeric port with CO_ER_PRX_BAD_HDR", func() {
		raw := []byte("PROXY TCP4 1.2.3.4 5.6.7.8 111a 222\r\n")
		_, err, ok := proxyproto.Parse(raw)

		Expect(ok).To(BeFalse())
		Expect(err).NotTo(BeNil())
		Expect(err.IsCode(errors.ProxyBadHeader)).To(BeTrue())
	})

	It("reports more-data-needed when the CRLF has not arrived yet", func() {
		raw := []byte("PROXY TCP4 1.2.3.4 5.6.7.8 1111 22")
		h, err, ok := proxyproto.Parse(raw)

		Expect(h).To(BeNil())
		Expect(err).To(BeNil())
		Expect(ok).To(BeFalse())
	})

	It("accepts PROXY UNKNOWN with no address fields", func() {
		raw := []byte("PROXY UNKNOWN\r\n")
		h, err, ok := proxyproto.Parse(raw)

		Expect(err).To(BeNil())
		Expect(ok).To(BeTrue())
		Expect(h.Family).To(Equal("UNKNOWN"))
	})
})

var _ = Describe("Encode", func() {
	It("round-trips a TCP4 header", func() {
		h := proxyproto.Header{Family: "TCP4", Src: net.ParseIP("1.2.3.4"), Dst: net.ParseIP("5.6.7.8"), SrcPort: 1111, DstPort: 2222}
		line := proxyproto.Encode(h)
		Expect(string(line)).To(Equal("PROXY TCP4 1.2.3.4 5.6.7.8 1111 2222\r\n"))
	})

	It("emits PROXY UNKNOWN for an unresolved family", func() {
		line := proxyproto.Encode(proxyproto.Header{})
		Expect(string(line)).To(Equal("PROXY UNKNOWN\r\n"))
	})
})
