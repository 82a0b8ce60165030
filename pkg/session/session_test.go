/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session_test

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/corelb/rproxy/pkg/analyser"
	rerrors "github.com/corelb/rproxy/pkg/errors"
	"github.com/corelb/rproxy/pkg/session"
	"github.com/corelb/rproxy/pkg/stream"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Session", func() {
	It("generates a non-empty unique id per session", func() {
		s1 := session.New("fe1", "be1", "l1", 4096, session.Analysers{})
		s2 := session.New("fe1", "be1", "l1", 4096, session.Analysers{})

		Expect(s1.UniqueID).ToNot(BeEmpty())
		Expect(s2.UniqueID).ToNot(BeEmpty())
		Expect(s1.UniqueID).ToNot(Equal(s2.UniqueID))
	})

	It("arms the canonical request/response analyser sets", func() {
		s := session.New("fe1", "be1", "l1", 4096, session.Analysers{})

		Expect(s.Req.HasAnalyser(analyser.ReqWaitHTTP)).To(BeTrue())
		Expect(s.Req.HasAnalyser(analyser.ReqHTTPXferBody)).To(BeTrue())
		Expect(s.Rep.HasAnalyser(analyser.RspWaitHTTP)).To(BeTrue())
	})

	It("runs a wakeup pass without a connection-backed stream interface", func() {
		s := session.New("fe1", "be1", "l1", 4096, session.Analysers{
			Req: analyser.Registry{},
			Rsp: analyser.Registry{},
		})

		Expect(func() {
			s.Wakeup(time.Now(), false, false, false, false)
		}).ToNot(Panic())
	})
})

var _ = Describe("BackendSlots", func() {
	It("assigns a slot immediately when capacity is available", func() {
		slots := session.NewBackendSlots(1, 0)
		si := stream.New(noopOps{}, nil, nil, 0)
		si.ToREQ()

		Expect(slots.TryAssign(si)).To(BeTrue())
		Expect(si.State).To(Equal(stream.ASS))
	})

	It("enqueues when the backend is at capacity", func() {
		slots := session.NewBackendSlots(1, 0)
		first := stream.New(noopOps{}, nil, nil, 0)
		first.ToREQ()
		Expect(slots.TryAssign(first)).To(BeTrue())

		second := stream.New(noopOps{}, nil, nil, 0)
		second.ToREQ()
		Expect(slots.TryAssign(second)).To(BeFalse())
		Expect(second.State).To(Equal(stream.QUE))
	})

	It("computes a tarpit deadline relative to now", func() {
		slots := session.NewBackendSlots(1, 5*time.Second)
		now := time.Now()
		Expect(slots.TarpitDeadline(now)).To(Equal(now.Add(5 * time.Second)))
	})
})

var _ = Describe("RateLimiter", func() {
	It("always allows when unlimited", func() {
		rl := session.NewRateLimiter(0, 1)
		for i := 0; i < 5; i++ {
			Expect(rl.Allow()).To(BeTrue())
		}
	})

	It("exhausts its burst then refuses", func() {
		rl := session.NewRateLimiter(1, 2)
		Expect(rl.Allow()).To(BeTrue())
		Expect(rl.Allow()).To(BeTrue())
		Expect(rl.Allow()).To(BeFalse())
	})

	It("WaitSlot blocks until a token refills, then succeeds", func() {
		rl := session.NewRateLimiter(1000, 1)
		Expect(rl.Allow()).To(BeTrue())

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(rl.WaitSlot(ctx)).To(Succeed())
	})

	It("WaitSlot returns the context error on cancellation", func() {
		rl := session.NewRateLimiter(0.001, 1)
		Expect(rl.Allow()).To(BeTrue())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		Expect(rl.WaitSlot(ctx)).To(MatchError(context.DeadlineExceeded))
	})
})

type noopOps struct{}

func (noopOps) Connect() rerrors.Error   { return nil }
func (noopOps) Shutr()                   {}
func (noopOps) Shutw()                   {}
func (noopOps) Update(*stream.Interface) {}

var _ = Describe("Engine", func() {
	It("fans out accept loops and propagates a listener's fatal error", func() {
		lis := newFakeListener(1)
		eng := session.NewEngine(nil, func(_ context.Context, c net.Conn) error {
			_ = c.Close()
			return nil
		})
		eng.Bind("fe1", lis, nil)

		err := eng.Run(context.Background())
		Expect(err).To(HaveOccurred())
	})

	It("stops cleanly when the context is canceled", func() {
		lis := newFakeListener(0)
		eng := session.NewEngine(nil, func(_ context.Context, c net.Conn) error { return nil })
		eng.Bind("fe1", lis, nil)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- eng.Run(ctx) }()

		cancel()
		Eventually(done).Should(Receive(BeNil()))
	})
})

type fakeListener struct {
	errAfter int
	n        int
	closed   chan struct{}
}

func newFakeListener(errAfter int) *fakeListener {
	return &fakeListener{errAfter: errAfter, closed: make(chan struct{})}
}

func (f *fakeListener) Accept() (net.Conn, error) {
	select {
	case <-f.closed:
		return nil, errors.New("listener closed")
	case <-time.After(time.Millisecond):
	}

	f.n++
	if f.errAfter > 0 && f.n > f.errAfter {
		return nil, errors.New("boom")
	}
	c1, c2 := net.Pipe()
	go func() { _ = c2.Close() }()
	return c1, nil
}

func (f *fakeListener) Close() error {
	select {
	case <-f.closed:
	default:
		close(f.closed)
	}
	return nil
}
