/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package analyser_test

import (
	"github.com/corelb/rproxy/pkg/analyser"
	"github.com/corelb/rproxy/pkg/channel"
	"github.com/corelb/rproxy/pkg/connmode"
	"github.com/corelb/rproxy/pkg/httpmsg"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Run", func() {
	It("walks armed bits lowest to highest and stops at the first blocked step", func() {
		ch := channel.New(1024)
		ch.SetAnalyser(analyser.ReqInspectFE)
		ch.SetAnalyser(analyser.ReqWaitHTTP)
		ch.SetAnalyser(analyser.ReqHTTPProcessFE)

		var order []uint
		reg := analyser.Registry{
			analyser.ReqInspectFE: func() bool {
				order = append(order, analyser.ReqInspectFE)
				return true
			},
			analyser.ReqWaitHTTP: func() bool {
				order = append(order, analyser.ReqWaitHTTP)
				return false // blocks here
			},
			analyser.ReqHTTPProcessFE: func() bool {
				order = append(order, analyser.ReqHTTPProcessFE)
				return true
			},
		}

		analyser.Run(ch, reg)

		Expect(order).To(Equal([]uint{analyser.ReqInspectFE, analyser.ReqWaitHTTP}))
		Expect(ch.HasAnalyser(analyser.ReqInspectFE)).To(BeFalse())
		Expect(ch.HasAnalyser(analyser.ReqWaitHTTP)).To(BeTrue())
		Expect(ch.HasAnalyser(analyser.ReqHTTPProcessFE)).To(BeTrue())
	})

	It("clears an armed bit with no registered function without blocking", func() {
		ch := channel.New(1024)
		ch.SetAnalyser(analyser.ReqInspectBE)

		analyser.Run(ch, analyser.Registry{})

		Expect(ch.HasAnyAnalyser()).To(BeFalse())
	})
})

var _ = Describe("SyncState", func() {
	It("tunnels both channels when the mode is Tunnel", func() {
		req, rsp := channel.New(1024), channel.New(1024)
		req.SetAnalyser(analyser.ReqHTTPXferBody)
		reqMsg, rspMsg := httpmsg.New(true), httpmsg.New(false)

		tunneled := analyser.SyncState(req, rsp, reqMsg, rspMsg, connmode.Tunnel)

		Expect(tunneled).To(BeTrue())
		Expect(reqMsg.State).To(Equal(httpmsg.Tunnel))
		Expect(rspMsg.State).To(Equal(httpmsg.Tunnel))
		Expect(req.HasAnyAnalyser()).To(BeFalse())
	})

	It("marks both channels auto-close once both messages reach CLOSED", func() {
		req, rsp := channel.New(1024), channel.New(1024)
		reqMsg, rspMsg := httpmsg.New(true), httpmsg.New(false)
		reqMsg.State = httpmsg.Closed
		rspMsg.State = httpmsg.Closed

		tunneled := analyser.SyncState(req, rsp, reqMsg, rspMsg, connmode.KeepAlive)

		Expect(tunneled).To(BeTrue())
		Expect(req.Has(channel.AutoClose)).To(BeTrue())
		Expect(rsp.Has(channel.AutoClose)).To(BeTrue())
	})
})
