/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/corelb/rproxy/pkg/channel"
	"github.com/corelb/rproxy/pkg/errors"
	"github.com/corelb/rproxy/pkg/httpmsg"
	"github.com/corelb/rproxy/pkg/stats"
	"github.com/corelb/rproxy/pkg/stream"
)

// StatsApplet mounts the stats POST form handler (pkg/stats) as an
// in-process stream.Ops, the "embedded applet" case spec.md §4.4 names
// alongside real connections: a stream interface whose peer is a gin
// router rather than a socket.
type StatsApplet struct {
	router *gin.Engine
	msg    *httpmsg.Message
	done   bool
}

// NewStatsApplet builds a StatsApplet serving uriPrefix through ctrl.
func NewStatsApplet(uriPrefix string, ctrl stats.ServerControl) *StatsApplet {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.POST(uriPrefix, stats.Handler(uriPrefix, ctrl))

	return &StatsApplet{
		router: r,
		msg:    httpmsg.New(true),
	}
}

// Embedded reports true: this Ops is in-process, not a real connection.
func (a *StatsApplet) Embedded() bool { return true }

// Connect is a no-op; an embedded applet has nothing to dial.
func (a *StatsApplet) Connect() errors.Error { return nil }

// Shutr/Shutw are no-ops: the applet has no half-close state of its own
// beyond what Update already drives to completion in one pass.
func (a *StatsApplet) Shutr() {}
func (a *StatsApplet) Shutw() {}

// Update parses a complete HTTP request out of si.Ib, runs it through the
// stats router, and writes the rendered response into si.Ob, then shuts
// the interface down (the stats form is a one-shot request/response, no
// persistent connection semantics).
func (a *StatsApplet) Update(si *stream.Interface) {
	if a.done || si.Ib == nil || si.Ob == nil {
		return
	}

	raw := si.Ib.Buf.PeekInput(0, si.Ib.Buf.Input())
	done, err := a.msg.Parse(raw)
	if err != nil {
		a.writeError(si, 400)
		return
	}
	if !done {
		return
	}

	n, bodyDone, aerr := a.msg.Advance(raw[a.msg.Next:])
	if aerr != nil {
		a.writeError(si, 400)
		return
	}
	if !bodyDone {
		return
	}

	full := raw[:a.msg.Next+n]
	req, herr := http.ReadRequest(bufio.NewReader(bytes.NewReader(full)))
	if herr != nil {
		a.writeError(si, 400)
		return
	}

	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	a.writeResponse(si, rec)
}

func (a *StatsApplet) writeResponse(si *stream.Interface, rec *httptest.ResponseRecorder) {
	var b bytes.Buffer
	rec.Result().Write(&b)
	_, _ = si.Ob.Buf.WriteInput(b.Bytes())
	a.finish(si)
}

func (a *StatsApplet) writeError(si *stream.Interface, status int) {
	body := errorBody(status)
	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\nContent-Length: %d\r\n\r\n%s", status, http.StatusText(status), len(body), body)
	_, _ = si.Ob.Buf.WriteInput(b.Bytes())
	a.finish(si)
}

func (a *StatsApplet) finish(si *stream.Interface) {
	a.done = true
	si.Shutw()
	si.Shutr()
}

// NewStatsAcceptFunc builds an Engine AcceptFunc that routes every accepted
// connection straight to a StatsApplet instead of a frontend/backend
// Session pair - the listener a stats bind (spec.md §6 "stats socket")
// registers with Engine.Bind, mounting the applet the way TargetApplet
// (pkg/connection's Target sum type) names as a connection's peer.
func NewStatsAcceptFunc(uriPrefix string, ctrl stats.ServerControl, bufSize int) AcceptFunc {
	return func(ctx context.Context, conn net.Conn) error {
		defer conn.Close()

		applet := NewStatsApplet(uriPrefix, ctrl)
		ib := channel.New(bufSize)
		ob := channel.New(bufSize)
		si := stream.New(applet, ob, ib, 0)

		readBuf := make([]byte, bufSize)
		for !applet.done {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			n, err := conn.Read(readBuf)
			if n > 0 {
				if _, werr := ib.Buf.WriteInput(readBuf[:n]); werr != nil {
					return werr
				}
				applet.Update(si)
			}
			if err != nil {
				return nil
			}
		}

		_, err := conn.Write(ob.Buf.PeekInput(0, ob.Buf.Input()))
		return err
	}
}
