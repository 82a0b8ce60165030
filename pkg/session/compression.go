/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"io"
	"strings"

	"github.com/corelb/rproxy/pkg/compress"
	"github.com/corelb/rproxy/pkg/httpmsg"
)

// negotiateCompression implements spec.md §6's compression rule: when the
// response is eligible and the client's Accept-Encoding matches one of the
// backend's configured algorithms, it strips Content-Length, marks the
// response chunked, and adds Content-Encoding. The actual body
// re-framing/streaming runs through CompressionWriter once s.CompAlgo is
// set.
func (s *Session) negotiateCompression(buf []byte) {
	if len(s.compressEnabled) == 0 {
		s.CompAlgo = compress.Identity
		return
	}

	msg := s.Txn.Rsp
	hasBody := msg.Flags&httpmsg.FlagTeChnk != 0 || (msg.Flags&httpmsg.FlagCntLen != 0 && msg.BodyLen > 0)
	_, alreadyEncoded := msg.HeaderValue(buf, "content-encoding")
	contentType, _ := msg.HeaderValue(buf, "content-type")
	multipart := strings.HasPrefix(strings.ToLower(contentType), "multipart/")
	cacheControl, _ := msg.HeaderValue(buf, "cache-control")
	noTransform := strings.Contains(strings.ToLower(cacheControl), "no-transform")

	if !compress.Eligible(s.Txn.Status, hasBody, alreadyEncoded, multipart, noTransform) {
		s.CompAlgo = compress.Identity
		return
	}

	s.CompAlgo = compress.Negotiate(s.reqAcceptEncoding, s.compressEnabled)
	if s.CompAlgo == compress.Identity {
		return
	}

	s.Rep.Buf.SlowRealign()
	removeHeaderLines(s.Rep.Buf, msg, "content-length")
	if msg.Flags&httpmsg.FlagTeChnk == 0 {
		insertHeaderLine(s.Rep.Buf, msg, "Transfer-Encoding", "chunked")
	}
	insertHeaderLine(s.Rep.Buf, msg, "Content-Encoding", s.CompAlgo.String())

	msg.Flags |= httpmsg.FlagTeChnk
	msg.Flags &^= httpmsg.FlagCntLen
}

// CompressionWriter wraps w with the negotiated algorithm's streaming
// compressor, or returns (nil, false) when the transaction negotiated
// Identity (caller forwards bytes unmodified).
func (s *Session) CompressionWriter(w io.Writer) (io.WriteCloser, bool) {
	return compress.NewWriter(s.CompAlgo, w)
}
