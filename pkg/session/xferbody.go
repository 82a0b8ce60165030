/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"github.com/corelb/rproxy/pkg/analyser"
	"github.com/corelb/rproxy/pkg/channel"
	"github.com/corelb/rproxy/pkg/httpmsg"
)

// newReqHTTPXferBody builds REQ_HTTP_XFER_BODY: the zero-copy body relay
// analyser (spec.md §4.7). It feeds whatever body/chunk/trailer bytes have
// arrived since the message's last cursor to Message.Advance, arms the
// channel's forward counter for exactly the bytes Advance consumed, and
// re-enters on the next wakeup until the message reports done.
func newReqHTTPXferBody(s *Session) analyser.Func {
	return func() bool { return runXferBody(s.Req, s.Txn.Req) }
}

// newRspHTTPXferBody builds RES_HTTP_XFER_BODY, the response-side twin of
// newReqHTTPXferBody.
func newRspHTTPXferBody(s *Session) analyser.Func {
	return func() bool { return runXferBody(s.Rep, s.Txn.Rsp) }
}

func runXferBody(ch *channel.Channel, msg *httpmsg.Message) bool {
	avail := ch.Buf.Input() - msg.Next
	if avail < 0 {
		avail = 0
	}

	consumed, done, err := msg.Advance(ch.Buf.PeekInput(msg.Next, avail))
	if err != nil {
		return true
	}
	if consumed > 0 {
		msg.Next += consumed
		ch.Forward(consumed)
	}
	return done
}
