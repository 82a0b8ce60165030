/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package connmode_test

import (
	"github.com/corelb/rproxy/pkg/connmode"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseConnectionTokens", func() {
	It("recognizes keep-alive and close across a comma list", func() {
		f := connmode.ParseConnectionTokens("keep-alive, Upgrade")
		Expect(f & connmode.HdrConnKAL).NotTo(BeZero())
		Expect(f & connmode.HdrConnUpg).NotTo(BeZero())
		Expect(f & connmode.HdrConnCLO).To(BeZero())
	})
})

var _ = Describe("RequestMode", func() {
	DescribeTable("chooses a mode matching the frontend/backend option matrix",
		func(http11 bool, tokens connmode.ConnFlag, opt connmode.Options, want connmode.Mode) {
			Expect(connmode.RequestMode(http11, tokens, opt)).To(Equal(want))
		},
		Entry("1.1 with no header and keep-alive option", true, connmode.ConnFlag(0),
			connmode.Options{FrontendKeepAlive: true}, connmode.KeepAlive),
		Entry("1.1 with explicit close token", true, connmode.HdrConnCLO,
			connmode.Options{FrontendKeepAlive: true}, connmode.Close),
		Entry("1.0 with no header defaults to close", false, connmode.ConnFlag(0),
			connmode.Options{FrontendKeepAlive: true}, connmode.Close),
		Entry("1.0 with explicit keep-alive token honors it", false, connmode.HdrConnKAL,
			connmode.Options{FrontendKeepAlive: true}, connmode.KeepAlive),
		Entry("server-close option with no keep-alive option", true, connmode.ConnFlag(0),
			connmode.Options{BackendServerClose: true}, connmode.ServerClose),
		Entry("force-close always wins", true, connmode.HdrConnKAL,
			connmode.Options{FrontendKeepAlive: true, BackendForceClose: true}, connmode.Close),
	)
})

var _ = Describe("ResponseMode", func() {
	It("forces CLO when the transfer length is unknown", func() {
		Expect(connmode.ResponseMode(connmode.KeepAlive, 0, false)).To(Equal(connmode.Close))
	})

	It("downgrades KAL to SCL when the server asked to close", func() {
		got := connmode.ResponseMode(connmode.KeepAlive, connmode.HdrConnCLO, true)
		Expect(got).To(Equal(connmode.ServerClose))
	})
})

var _ = Describe("RewriteHeader", func() {
	It("emits exactly one token for KAL and CLO, and none for TUNNEL", func() {
		v, ok := connmode.RewriteHeader(connmode.KeepAlive)
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("keep-alive"))

		_, ok = connmode.RewriteHeader(connmode.Tunnel)
		Expect(ok).To(BeFalse())
	})
})
