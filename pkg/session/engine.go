/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"

	"github.com/corelb/rproxy/pkg/errors"
	"github.com/corelb/rproxy/pkg/logger"
)

// Listener is the narrow accept-loop collaborator a frontend binds to; the
// concrete bind options (transparent mode, defer-accept, tfo, v4v6/v6only,
// mss, device binding - spec.md §6) live in pkg/connection's listener
// options and are out of Engine's concern.
type Listener interface {
	Accept() (net.Conn, error)
	Close() error
}

// AcceptFunc turns one accepted net.Conn into a running session; it is
// supplied by the caller (the part of the system that knows how to build a
// Connection/stream.Interface/Session trio) so Engine stays a pure
// lifecycle/fan-out manager.
type AcceptFunc func(ctx context.Context, c net.Conn) error

// Engine fans out one goroutine per listener's accept loop and propagates
// the first fatal error, grounded on the errgroup pattern the teacher's
// httpserver/pool uses (one goroutine per pool member, waited on together)
// but expressed with golang.org/x/sync/errgroup instead of the teacher's
// hand-rolled semaphore-based WaitAll.
type Engine struct {
	Log logger.FuncLog

	listeners map[string]Listener
	limiters  map[string]*RateLimiter
	accept    AcceptFunc
}

// NewEngine builds an Engine that dispatches every accepted connection to
// accept.
func NewEngine(log logger.FuncLog, accept AcceptFunc) *Engine {
	return &Engine{
		Log:       log,
		listeners: make(map[string]Listener),
		limiters:  make(map[string]*RateLimiter),
		accept:    accept,
	}
}

// Bind registers a named listener, optionally gated by a per-listener
// accept-rate limiter (spec.md §5's admission policy, supplemented from
// original_source/frontend.c's cps_lim/fe_sps_lim token buckets).
func (e *Engine) Bind(name string, l Listener, limiter *RateLimiter) {
	e.listeners[name] = l
	if limiter != nil {
		e.limiters[name] = limiter
	}
}

// Run starts one accept loop per bound listener and blocks until ctx is
// canceled or one loop returns a fatal error, at which point every other
// loop is canceled too (errgroup.WithContext's propagation).
func (e *Engine) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for name, l := range e.listeners {
		name, l := name, l
		g.Go(func() error {
			return e.acceptLoop(gctx, name, l)
		})
	}

	return g.Wait()
}

func (e *Engine) acceptLoop(ctx context.Context, name string, l Listener) error {
	limiter := e.limiters[name]

	for {
		if ctx.Err() != nil {
			return l.Close()
		}

		if limiter != nil {
			if err := limiter.WaitSlot(ctx); err != nil {
				return l.Close()
			}
		}

		c, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.New(errors.Internal, "accept failed on listener "+name, err)
		}

		conn := c
		go func() {
			if aerr := e.accept(ctx, conn); aerr != nil && e.Log != nil {
				e.Log().WithField(logger.FieldFrontend, name).WithError(aerr).
					Warn("session terminated with error")
			}
		}()
	}
}
