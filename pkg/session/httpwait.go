/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"github.com/corelb/rproxy/pkg/analyser"
	"github.com/corelb/rproxy/pkg/buffer"
	"github.com/corelb/rproxy/pkg/connmode"
	"github.com/corelb/rproxy/pkg/httpmsg"
)

// newReqWaitHTTP builds REQ_WAIT_HTTP (spec.md §4.7): parses the request's
// headers, and once complete negotiates the transaction's connection mode
// from the real Connection/Proxy-Connection tokens via connmode.RequestMode
// rather than leaving it at its Unset default, then rewrites the
// Connection header to match. A CONNECT request tunnels unconditionally,
// bypassing mode negotiation entirely (spec.md §4.11 only applies to
// ordinary request/response exchanges).
func newReqWaitHTTP(s *Session, opt connmode.Options) analyser.Func {
	return func() bool {
		msg := s.Txn.Req
		buf := s.Req.Buf.PeekInput(0, s.Req.Buf.Input())

		done, err := msg.Parse(buf)
		if err != nil {
			s.ErrFlag = ErrBadRequest
			s.FinState = FinH
			synthesizeResponse(s, 400, nil)
			return true
		}
		if !done {
			return false
		}

		s.Txn.Meth = string(buf[msg.SL.MethStart : msg.SL.MethStart+msg.SL.MethLen])
		s.Txn.URI = string(buf[msg.SL.URIStart : msg.SL.URIStart+msg.SL.URILen])

		if v, ok := msg.HeaderValue(buf, "accept-encoding"); ok {
			s.reqAcceptEncoding = v
		}

		if s.Txn.Meth == "CONNECT" {
			s.Txn.Mode = connmode.Tunnel
			return true
		}

		http11 := msg.Flags&httpmsg.FlagVer11 != 0
		tokens := connectionTokens(msg, buf)
		s.Txn.Mode = connmode.RequestMode(http11, tokens, opt)
		rewriteConnectionHeader(s.Req.Buf, msg, s.Txn.Mode)

		return true
	}
}

// newRspWaitHTTP builds RES_WAIT_HTTP: parses the response's headers,
// reconciles the connection mode the request side chose against the
// server's own tokens and transfer-length framing via
// connmode.ResponseMode, rewrites the Connection header to match, and runs
// compression negotiation (spec.md §6).
func newRspWaitHTTP(s *Session) analyser.Func {
	return func() bool {
		msg := s.Txn.Rsp
		buf := s.Rep.Buf.PeekInput(0, s.Rep.Buf.Input())

		done, err := msg.Parse(buf)
		if err != nil {
			s.ErrFlag = ErrInternal
			s.FinState = FinH
			synthesizeResponse(s, 502, nil)
			return true
		}
		if !done {
			return false
		}

		s.Txn.Status = parseStatusCode(buf, msg)

		tokens := connectionTokens(msg, buf)
		xferLenKnown := msg.Flags&(httpmsg.FlagCntLen|httpmsg.FlagTeChnk) != 0
		s.Txn.Mode = connmode.ResponseMode(s.Txn.Mode, tokens, xferLenKnown)

		// Negotiate compression first, while buf still matches what Parse
		// last saw: rewriteConnectionHeader below may splice the header
		// section, and HeaderValue's cached cell offsets go stale the
		// moment buf and the real buffer diverge.
		s.negotiateCompression(buf)
		rewriteConnectionHeader(s.Rep.Buf, msg, s.Txn.Mode)

		return true
	}
}

func parseStatusCode(buf []byte, msg *httpmsg.Message) int {
	v := 0
	for i := msg.SL.CodeStart; i < msg.SL.CodeStart+msg.SL.CodeLen; i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			return v
		}
		v = v*10 + int(c-'0')
	}
	return v
}

// connectionTokens reads whichever of Connection/Proxy-Connection is
// present (spec.md §4.11 "parse Connection tokens once").
func connectionTokens(msg *httpmsg.Message, buf []byte) connmode.ConnFlag {
	if v, ok := msg.HeaderValue(buf, "connection"); ok {
		return connmode.ParseConnectionTokens(v)
	}
	if v, ok := msg.HeaderValue(buf, "proxy-connection"); ok {
		return connmode.ParseConnectionTokens(v)
	}
	return 0
}

// rewriteConnectionHeader applies connmode.RewriteHeader's verdict to the
// real buffer, leaving the header untouched in TUNNEL mode (spec.md §8
// "exactly one of close or keep-alive, or none in TUNNEL").
func rewriteConnectionHeader(buf *buffer.Buffer, msg *httpmsg.Message, mode connmode.Mode) {
	value, present := connmode.RewriteHeader(mode)
	if !present {
		return
	}

	buf.SlowRealign()
	removeHeaderLines(buf, msg, "connection")
	insertHeaderLine(buf, msg, "Connection", value)
}
