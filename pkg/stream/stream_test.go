/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package stream_test

import (
	"github.com/corelb/rproxy/pkg/channel"
	"github.com/corelb/rproxy/pkg/errors"
	"github.com/corelb/rproxy/pkg/stream"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeOps struct {
	connectErr errors.Error
	shutrCalls, shutwCalls int
}

func (f *fakeOps) Connect() errors.Error { return f.connectErr }
func (f *fakeOps) Shutr()                { f.shutrCalls++ }
func (f *fakeOps) Shutw()                { f.shutwCalls++ }
func (f *fakeOps) Update(*stream.Interface) {}

var _ = Describe("Interface lifecycle", func() {
	It("walks REQ -> ASS -> CON -> EST on a successful connect", func() {
		ops := &fakeOps{}
		si := stream.New(ops, channel.New(1024), channel.New(1024), 3)

		si.ToREQ()
		Expect(si.State).To(Equal(stream.REQ))

		si.Assign()
		Expect(si.State).To(Equal(stream.ASS))

		Expect(si.Connect()).To(BeNil())
		Expect(si.State).To(Equal(stream.CON))

		si.ConnectDone(true)
		Expect(si.State).To(Equal(stream.EST))
	})

	It("retries CER -> ASS up to maxRetries then goes CLO", func() {
		ops := &fakeOps{connectErr: errors.New(errors.ConnectError, "dial failed")}
		si := stream.New(ops, channel.New(1024), channel.New(1024), 2)
		si.ToREQ()
		si.Assign()

		for n := 0; n < 2; n++ {
			Expect(si.Connect()).NotTo(BeNil())
			Expect(si.State).To(Equal(stream.CER))
			Expect(si.Retry()).To(BeTrue())
			Expect(si.State).To(Equal(stream.ASS))
		}

		Expect(si.Connect()).NotTo(BeNil())
		Expect(si.Retry()).To(BeFalse())
		Expect(si.State).To(Equal(stream.CLO))
	})

	It("closes once both shutr and shutw have been propagated", func() {
		ops := &fakeOps{}
		ob := channel.New(1024)
		si := stream.New(ops, ob, channel.New(1024), 0)

		si.Shutr()
		Expect(si.State).NotTo(Equal(stream.CLO))

		si.Shutw()
		Expect(ops.shutrCalls).To(Equal(1))
		Expect(ops.shutwCalls).To(Equal(1))
		Expect(si.State).To(Equal(stream.CLO))
	})

	It("NOHALF makes a single shutr also propagate shutw", func() {
		ops := &fakeOps{}
		ob := channel.New(1024)
		si := stream.New(ops, ob, channel.New(1024), 0)
		si.Flags |= stream.NoHalf

		si.Shutr()

		Expect(ops.shutrCalls).To(Equal(1))
		Expect(ops.shutwCalls).To(Equal(1))
		Expect(si.State).To(Equal(stream.CLO))
	})
})
