/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package session implements the Session engine of spec.md §4.8: it binds
// two stream interfaces, two channels, an HTTP transaction, and
// frontend/backend configuration, and drives the per-wakeup sequence of
// polling refresh, analyser passes, stream-interface updates and polling
// reconciliation.
package session

import (
	"net"
	"time"

	uuid "github.com/hashicorp/go-uuid"

	"github.com/corelb/rproxy/pkg/analyser"
	"github.com/corelb/rproxy/pkg/channel"
	"github.com/corelb/rproxy/pkg/compress"
	"github.com/corelb/rproxy/pkg/connection"
	"github.com/corelb/rproxy/pkg/connmode"
	"github.com/corelb/rproxy/pkg/httpmsg"
	"github.com/corelb/rproxy/pkg/httptxn"
	"github.com/corelb/rproxy/pkg/proxyproto"
	"github.com/corelb/rproxy/pkg/stream"
)

// ErrFlag is SN_ERR_* of spec.md §7: what went wrong, recorded on the
// session instead of propagated via exception/longjmp.
type ErrFlag uint16

const (
	ErrNone ErrFlag = iota
	ErrClientClose
	ErrClientTimeout
	ErrServerClose
	ErrServerTimeout
	ErrConnectFailed
	ErrBadRequest
	ErrPolicy
	ErrInternal
)

// FinishState is SN_FINST_* of spec.md §7: the completion phase the
// session had reached when an error (or successful close) occurred.
type FinishState uint8

const (
	FinR FinishState = iota // request
	FinC                    // connect
	FinH                    // header
	FinD                    // data
	FinL                    // logged
	FinQ                    // queue
	FinT                    // tarpit
)

// StkCtrSlots is the number of stick-table counter slots a session carries
// (spec.md §3 "stkctr[N]"); sized generously since unused slots cost only
// a zero-value struct.
const StkCtrSlots = 4

// StkCtr is one stick-table counter cell referenced by a session.
type StkCtr struct {
	TableName string
	Key       string
}

// Session is the per-client object of spec.md §3/§4.8.
type Session struct {
	FrontendName string
	BackendName  string
	ListenerName string

	CSI *stream.Interface // client-side stream interface
	SSI *stream.Interface // server-side stream interface

	Req *channel.Channel // client -> server
	Rep *channel.Channel // server -> client

	Txn *httptxn.Txn

	ReqAnalysers Analysers
	RepAnalysers Analysers

	UniqueID string
	StkCtr   [StkCtrSlots]StkCtr

	SrvConn *connection.Connection

	CompAlgo compress.Algo

	// Proxy is the decoded PROXY v1 header, set by REQ_INSPECT_FE when the
	// frontend has accept_proxy configured (spec.md §4.10).
	Proxy *proxyproto.Header

	// ClientIP is the address ACL conditions test against (spec.md §4.7's
	// "src" match); it is the PROXY-decoded source when present, otherwise
	// the real socket peer, set by the caller that accepted the connection.
	ClientIP net.IP

	// compressEnabled is the backend's configured compression algorithm
	// set, consulted by RES_WAIT_HTTP's negotiation step (spec.md §6).
	compressEnabled []compress.Algo
	// reqAcceptEncoding is the request's Accept-Encoding value, captured by
	// REQ_WAIT_HTTP for RES_WAIT_HTTP's compression negotiation to consult.
	reqAcceptEncoding string

	DoLog    bool
	SrvError bool

	ErrFlag  ErrFlag
	FinState FinishState
}

// Analysers bundles the registries for both directions, built once per
// frontend/backend pair so they can be shared across sessions without
// per-session closures capturing configuration repeatedly.
type Analysers struct {
	Req analyser.Registry
	Rsp analyser.Registry
}

// New builds a Session with fresh channels and a fresh transaction of the
// given buffer size.
func New(fe, be, listener string, bufSize int, reg Analysers) *Session {
	s := &Session{
		FrontendName: fe,
		BackendName:  be,
		ListenerName: listener,
		Req:          channel.New(bufSize),
		Rep:          channel.New(bufSize),
		Txn:          httptxn.New(),
	}
	s.ReqAnalysers = reg
	s.RepAnalysers = reg
	if id, err := uuid.GenerateUUID(); err == nil {
		s.UniqueID = id
	}
	s.Req.SetAnalyser(analyser.ReqInspectFE)
	s.Req.SetAnalyser(analyser.ReqWaitHTTP)
	s.Req.SetAnalyser(analyser.ReqHTTPProcessFE)
	s.Req.SetAnalyser(analyser.ReqSwitchingRules)
	s.Req.SetAnalyser(analyser.ReqInspectBE)
	s.Req.SetAnalyser(analyser.ReqHTTPProcessBE)
	s.Req.SetAnalyser(analyser.ReqHTTPXferBody)
	s.Rep.SetAnalyser(analyser.RspInspect)
	s.Rep.SetAnalyser(analyser.RspWaitHTTP)
	s.Rep.SetAnalyser(analyser.RspHTTPProcessBE)
	s.Rep.SetAnalyser(analyser.RspHTTPXferBody)
	return s
}

// Wakeup runs one full pass of the session engine's entry sequence
// (spec.md §4.8): refresh polling flags, run each channel's analyser
// pipeline (request before response, per the tie-break rule), update both
// stream interfaces, reconcile the mode via SyncState, then reconcile
// polling.
func (s *Session) Wakeup(now time.Time, currRecvClient, currSendClient, currRecvServer, currSendServer bool) {
	if s.CSI != nil && s.CSI.Ops != nil {
		if conn, ok := s.CSI.Ops.(connFielder); ok {
			conn.Conn().RefreshPollingFlags(currRecvClient, currSendClient)
		}
	}
	if s.SSI != nil && s.SSI.Ops != nil {
		if conn, ok := s.SSI.Ops.(connFielder); ok {
			conn.Conn().RefreshPollingFlags(currRecvServer, currSendServer)
		}
	}

	analyser.Run(s.Req, s.ReqAnalysers.Req)
	analyser.Run(s.Rep, s.RepAnalysers.Rsp)

	if s.CSI != nil {
		s.CSI.Update()
	}
	if s.SSI != nil {
		s.SSI.Update()
	}

	if tunneled := analyser.SyncState(s.Req, s.Rep, s.Txn.Req, s.Txn.Rsp, s.Txn.Mode); tunneled {
		s.maybeReset()
	}

	if s.CSI != nil && s.CSI.Ops != nil {
		if conn, ok := s.CSI.Ops.(connFielder); ok {
			conn.Conn().CondUpdatePolling()
		}
	}
	if s.SSI != nil && s.SSI.Ops != nil {
		if conn, ok := s.SSI.Ops.(connFielder); ok {
			conn.Conn().CondUpdatePolling()
		}
	}
}

// connFielder lets a real connection-backed stream.Ops expose its
// underlying *connection.Connection to the session engine without the
// session package depending on a concrete Ops implementation (kept in
// pkg/session's ops.go).
type connFielder interface {
	Conn() *connection.Connection
}

// maybeReset performs http_reset_txn when the negotiated mode allows
// reusing the connection for a fresh transaction (spec.md §4.6).
func (s *Session) maybeReset() {
	if s.Txn.Mode != connmode.KeepAlive && s.Txn.Mode != connmode.ServerClose {
		return
	}
	if s.Txn.Req.State != httpmsg.Closed || s.Txn.Rsp.State != httpmsg.Done {
		return
	}
	s.Txn.Reset()
	s.Req.SetAnalyser(analyser.ReqWaitHTTP)
	s.Rep.SetAnalyser(analyser.RspWaitHTTP)
}
