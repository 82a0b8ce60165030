/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package httptxn implements the HTTP Transaction of spec.md §4.6: the
// request/response message pair, connection-mode flags, and the init/
// end/reset lifecycle that lets a keep-alive or server-close connection
// serve a fresh request without tearing down the session.
package httptxn

import (
	"github.com/corelb/rproxy/pkg/connmode"
	"github.com/corelb/rproxy/pkg/httpmsg"
)

// Flag mirrors the transaction-level flags of spec.md §3 (connection
// intent, auth, cookie, cache, security); only the subset this core
// exercises is modeled, the rest are reserved bits future analysers can
// claim.
type Flag uint32

const (
	FlagAuth Flag = 1 << iota
	FlagCookieSeen
	FlagCacheable
	FlagSecurity
)

// Txn is one HTTP request/response exchange (spec.md §4.6/§3).
type Txn struct {
	Req *httpmsg.Message
	Rsp *httpmsg.Message

	Meth   string
	Status int

	Flags Flag
	Mode  connmode.Mode

	URI string

	Auth        string
	SessID      string
	CliCookie   string
	SrvCookie   string
}

// New allocates a Txn with fresh, INI-state request/response messages.
func New() *Txn {
	t := &Txn{}
	t.init()
	return t
}

func (t *Txn) init() {
	t.Req = httpmsg.New(true)
	t.Rsp = httpmsg.New(false)
	t.Meth = ""
	t.Status = 0
	t.Flags = 0
	t.Mode = connmode.Unset
	t.URI = ""
	t.Auth = ""
	t.SessID = ""
	t.CliCookie = ""
	t.SrvCookie = ""
}

// End tears the transaction down: releases captured URI/cookies/sessid
// (here: just drops the Go-side references so the GC can reclaim them;
// pool-backed arenas are the caller's concern via pkg/rtctx) and frees the
// header index back to a reusable state via Message.Reset.
func (t *Txn) End() {
	t.Req.Reset()
	t.Rsp.Reset()
	t.URI = ""
	t.Auth = ""
	t.SessID = ""
	t.CliCookie = ""
	t.SrvCookie = ""
}

// Reset implements http_reset_txn = http_end_txn + http_init_txn, keeping
// the connection mode (which governs whether a reset is even legal) and
// clearing everything else (spec.md §4.6).
func (t *Txn) Reset() {
	mode := t.Mode
	t.End()
	t.Flags = 0
	t.Meth = ""
	t.Status = 0
	t.Mode = mode
}

// CanReset reports whether the negotiated mode allows a new transaction on
// the same session (keep-alive or server-close, never tunnel or close).
func (t *Txn) CanReset() bool {
	return t.Mode == connmode.KeepAlive || t.Mode == connmode.ServerClose
}

// Recycle fully reinitializes the transaction, including the connection
// mode, for reuse by a slab pool (pkg/rtctx) once it has left its
// originating session entirely.
func (t *Txn) Recycle() {
	t.init()
}
