/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"github.com/corelb/rproxy/pkg/analyser"
	"github.com/corelb/rproxy/pkg/config"
	"github.com/corelb/rproxy/pkg/proxyproto"
)

// newReqInspectFE builds REQ_INSPECT_FE: when the frontend accepts PROXY
// protocol, it decodes the v1 line at the head of the request channel
// before anything else runs, consuming exactly its byte length (spec.md
// §4.10) and recording the original peer address on the session. Frontends
// that don't accept PROXY pass straight through.
func newReqInspectFE(s *Session, fe *config.Frontend) analyser.Func {
	if fe == nil || !fe.AcceptProxy {
		return func() bool { return true }
	}

	return func() bool {
		if s.Proxy != nil {
			return true
		}

		buf := s.Req.Buf.PeekInput(0, s.Req.Buf.Input())
		hdr, err, ok := proxyproto.Parse(buf)
		if err != nil {
			s.ErrFlag = ErrBadRequest
			s.FinState = FinH
			synthesizeResponse(s, 400, nil)
			return true
		}
		if !ok {
			return false // need more bytes
		}

		s.Proxy = hdr
		s.Req.Buf.Advance(hdr.Consumed)
		return true
	}
}

// newReqInspectBE is REQ_INSPECT_BE: TCP-layer rules once a backend is
// known (spec.md §4.7). This core has no backend-side TCP content rules of
// its own, so it is a pass-through analyser that exists to keep the
// pipeline's bit order intact for a future rule set.
func newReqInspectBE(_ *Session) analyser.Func {
	return func() bool { return true }
}

// newRspInspect is RES_INSPECT: TCP-layer rules on the response channel
// before HTTP parsing (spec.md §4.7). Pass-through for the same reason as
// REQ_INSPECT_BE.
func newRspInspect(_ *Session) analyser.Func {
	return func() bool { return true }
}

// newReqSwitchingRules is REQ_SWITCHING_RULES (use_backend/default_backend
// selection, spec.md §4.7). Backend selection in this core happens once,
// at Build time, so this analyser is a pass-through; a multi-backend
// frontend would replace it with a rule walk over acl.List-style
// conditions choosing among several pre-built Sessions.
func newReqSwitchingRules(_ *Session) analyser.Func {
	return func() bool { return true }
}
