/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"time"

	"github.com/corelb/rproxy/pkg/acl"
	"github.com/corelb/rproxy/pkg/analyser"
	"github.com/corelb/rproxy/pkg/httpmsg"
)

// newReqHTTPProcess builds a REQ_HTTP_PROCESS_FE/BE analyser (spec.md
// §4.7): it evaluates list against the parsed request, applies any
// accumulated header ops, and acts on the terminating verdict (allow falls
// through, deny/auth/redirect synthesize the matching response, tarpit
// rewires the request channel to REQ_HTTP_TARPIT). tarpitTimeout is the
// backend's configured cooldown (0 = run to expiration immediately).
func newReqHTTPProcess(s *Session, list acl.List, tarpitTimeout time.Duration) analyser.Func {
	return func() bool {
		msg := s.Txn.Req
		buf := s.Req.Buf.PeekInput(0, s.Req.Buf.Input())

		verdict := list.Evaluate(requestACLContext(s, msg, buf))
		applyHeaderOps(s.Req.Buf, msg, verdict.HeaderOps)

		if !verdict.Stop {
			return true
		}

		switch verdict.Kind {
		case acl.Allow:
			return true

		case acl.Deny:
			s.ErrFlag = ErrPolicy
			s.FinState = FinH
			synthesizeResponse(s, verdict.Status, nil)
			return true

		case acl.Auth:
			s.ErrFlag = ErrPolicy
			s.FinState = FinH
			hdr := map[string]string{}
			if verdict.ProxyAuth {
				hdr["Proxy-Authenticate"] = `Basic realm="` + verdict.AuthRealm + `"`
			} else {
				hdr["WWW-Authenticate"] = `Basic realm="` + verdict.AuthRealm + `"`
			}
			synthesizeResponse(s, verdict.Status, hdr)
			return true

		case acl.Redirect:
			s.FinState = FinH
			synthesizeResponse(s, verdict.Status, map[string]string{"Location": verdict.Location})
			return true

		case acl.Tarpit:
			s.Req.ClearAnalysers()
			s.Req.SetAnalyser(analyser.ReqHTTPTarpit)
			s.Req.SetAnalyseExpire(time.Now().Add(tarpitTimeout))
			return true

		default:
			return true
		}
	}
}

// newReqHTTPTarpit builds REQ_HTTP_TARPIT: it blocks until the deadline
// REQ_HTTP_PROCESS_FE/BE installed fires, then synthesizes the 500 spec.md
// §4.7/§7 calls for ("tarpit rule ... then return 500").
func newReqHTTPTarpit(s *Session) analyser.Func {
	return func() bool {
		if time.Now().Before(s.Req.AnalyseExpire()) {
			return false
		}
		s.ErrFlag = ErrPolicy
		s.FinState = FinT
		synthesizeResponse(s, 500, nil)
		return true
	}
}

// newRspHTTPProcessBE builds RES_HTTP_PROCESS_BE: applies a backend's
// response-side add/set-header rules (spec.md §4.7's pattern, mirrored
// onto the response channel). Only header mutations make sense once the
// backend has already answered, so any terminating rule kind besides
// Allow is treated as a no-op rather than rejected outright.
func newRspHTTPProcessBE(s *Session, list acl.List) analyser.Func {
	return func() bool {
		msg := s.Txn.Rsp
		buf := s.Rep.Buf.PeekInput(0, s.Rep.Buf.Input())

		verdict := list.Evaluate(responseACLContext(msg, buf))
		applyHeaderOps(s.Rep.Buf, msg, verdict.HeaderOps)

		return true
	}
}

func requestACLContext(s *Session, msg *httpmsg.Message, buf []byte) acl.Context {
	return acl.Context{
		Method: s.Txn.Meth,
		URI:    s.Txn.URI,
		SrcIP:  s.ClientIP,
		Header: func(name string) (string, bool) { return msg.HeaderValue(buf, name) },
	}
}

func responseACLContext(msg *httpmsg.Message, buf []byte) acl.Context {
	return acl.Context{
		Header: func(name string) (string, bool) { return msg.HeaderValue(buf, name) },
	}
}
