/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session_test

import (
	"time"

	"github.com/corelb/rproxy/pkg/acl"
	"github.com/corelb/rproxy/pkg/config"
	"github.com/corelb/rproxy/pkg/session"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("REQ_INSPECT_FE PROXY v1 wiring", func() {
	It("decodes a leading PROXY line and advances past it before parsing the request", func() {
		fe := &config.Frontend{Name: "fe1", AcceptProxy: true}
		be := &config.Backend{Name: "be1"}
		s := session.Build(fe, be, "l1", 4096, acl.List{}, acl.List{})

		line := "PROXY TCP4 10.0.0.1 10.0.0.2 51000 80\r\n"
		req := "GET /widgets HTTP/1.1\r\nHost: a\r\n\r\n"
		_, _ = s.Req.Buf.WriteInput([]byte(line + req))

		s.Wakeup(time.Now(), true, true, true, true)

		Expect(s.Proxy).NotTo(BeNil())
		Expect(s.Proxy.Family).To(Equal("TCP4"))
		Expect(s.Proxy.Src.String()).To(Equal("10.0.0.1"))
		Expect(s.Proxy.SrcPort).To(Equal(uint16(51000)))
		Expect(s.Txn.URI).To(Equal("/widgets"))
	})

	It("waits for more bytes when the PROXY line isn't complete yet", func() {
		fe := &config.Frontend{Name: "fe1", AcceptProxy: true}
		be := &config.Backend{Name: "be1"}
		s := session.Build(fe, be, "l1", 4096, acl.List{}, acl.List{})

		_, _ = s.Req.Buf.WriteInput([]byte("PROXY TCP4 10.0.0.1 10"))

		s.Wakeup(time.Now(), true, true, true, true)

		Expect(s.Proxy).To(BeNil())
		Expect(s.Txn.URI).To(BeEmpty())
	})

	It("fails the request when the PROXY line is malformed", func() {
		fe := &config.Frontend{Name: "fe1", AcceptProxy: true}
		be := &config.Backend{Name: "be1"}
		s := session.Build(fe, be, "l1", 4096, acl.List{}, acl.List{})

		_, _ = s.Req.Buf.WriteInput([]byte("PROXY GARBAGE\r\nGET / HTTP/1.1\r\n\r\n"))

		s.Wakeup(time.Now(), true, true, true, true)

		Expect(s.Proxy).To(BeNil())
		Expect(string(s.Rep.Buf.PeekInput(0, s.Rep.Buf.Input()))).To(ContainSubstring("400 Bad request"))
	})

	It("skips PROXY decoding entirely when accept_proxy isn't configured", func() {
		fe := &config.Frontend{Name: "fe1"}
		be := &config.Backend{Name: "be1"}
		s := session.Build(fe, be, "l1", 4096, acl.List{}, acl.List{})

		_, _ = s.Req.Buf.WriteInput([]byte("GET /x HTTP/1.1\r\nHost: a\r\n\r\n"))

		s.Wakeup(time.Now(), true, true, true, true)

		Expect(s.Proxy).To(BeNil())
		Expect(s.Txn.URI).To(Equal("/x"))
	})
})
