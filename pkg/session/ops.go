/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"context"

	"github.com/corelb/rproxy/pkg/connection"
	"github.com/corelb/rproxy/pkg/errors"
	"github.com/corelb/rproxy/pkg/stream"
)

// ConnOps implements stream.Ops over a real connection.Connection: the
// common case where a stream interface is attached to a socket rather
// than an embedded applet (spec.md §4.4).
type ConnOps struct {
	conn *connection.Connection
}

// NewConnOps wraps conn as a stream.Ops.
func NewConnOps(conn *connection.Connection) *ConnOps {
	return &ConnOps{conn: conn}
}

// Conn exposes the underlying connection to the session engine's polling
// refresh/reconcile steps (see connFielder in session.go).
func (o *ConnOps) Conn() *connection.Connection { return o.conn }

// Connect issues the control protocol's connect by initializing the
// transport; the actual TCP dial is the connection's Ctrl collaborator's
// concern, already wired when the Connection was constructed.
func (o *ConnOps) Connect() errors.Error {
	return o.conn.XprtInit(context.Background())
}

// Shutr/Shutw forward the half-close onto the connection's data layer.
func (o *ConnOps) Shutr() { o.conn.DataRead0() }
func (o *ConnOps) Shutw() { o.conn.DataShutw() }

// Update refreshes the stream interface's wait flags from the
// connection's half-close/error state.
func (o *ConnOps) Update(si *stream.Interface) {
	if o.conn.Has(connection.Error) {
		si.ErrType = stream.ErrFatal
		si.Close(true)
		return
	}
	if o.conn.DataRead0Pending() {
		si.Flags &^= stream.WaitData
	}
}
