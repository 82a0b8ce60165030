/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package connection_test

import (
	"context"
	"net"

	"github.com/corelb/rproxy/pkg/connection"
	"github.com/corelb/rproxy/pkg/errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type rawTransport struct{ raw net.Conn }

func (t *rawTransport) Init(_ context.Context, raw net.Conn) error { t.raw = raw; return nil }
func (t *rawTransport) Read(p []byte) (int, error)                 { return t.raw.Read(p) }
func (t *rawTransport) Write(p []byte) (int, error)                { return t.raw.Write(p) }
func (t *rawTransport) Close() error                               { return t.raw.Close() }

var _ = Describe("Connection", func() {
	var client, server net.Conn

	BeforeEach(func() {
		client, server = net.Pipe()
	})

	AfterEach(func() {
		_ = client.Close()
	})

	It("initializes the transport and reconciles polling when data wants recv", func() {
		var gotRecv, gotSend bool
		var calls int

		c := connection.New(server, &rawTransport{}, nil, func(recv, send bool) {
			calls++
			gotRecv, gotSend = recv, send
		})

		Expect(c.XprtInit(context.Background())).To(BeNil())

		c.RefreshPollingFlags(false, false)
		c.DataWantRecv(true)

		Expect(calls).To(Equal(1))
		Expect(gotRecv).To(BeTrue())
		Expect(gotSend).To(BeFalse())
	})

	It("stops both directions and surfaces an error once SetError is called", func() {
		var gotRecv, gotSend bool

		c := connection.New(server, &rawTransport{}, nil, func(recv, send bool) {
			gotRecv, gotSend = recv, send
		})
		_ = c.XprtInit(context.Background())

		c.RefreshPollingFlags(true, true)
		c.DataWantRecv(true)
		c.DataWantSend(true)

		c.SetError(errors.BadGateway)

		Expect(c.Has(connection.Error)).To(BeTrue())
		Expect(gotRecv).To(BeFalse())
		Expect(gotSend).To(BeFalse())
	})

	It("makes a repeat XprtClose a no-op after a prior full close", func() {
		c := connection.New(server, &rawTransport{}, nil, nil)
		_ = c.XprtInit(context.Background())

		Expect(c.FullClose()).To(BeNil())
		// a second close must not panic or double-close the raw conn.
		Expect(c.XprtClose()).To(BeNil())
	})
})
