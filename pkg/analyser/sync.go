/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package analyser

import (
	"github.com/corelb/rproxy/pkg/channel"
	"github.com/corelb/rproxy/pkg/connmode"
	"github.com/corelb/rproxy/pkg/httpmsg"
)

// SyncState is the mutually recursive http_sync_req_state/
// http_sync_res_state reconciler of spec.md §4.7: it iterates the request
// and response message states to a fixed point and is the only place
// permitted to move a message out of DONE, producing one of the allowed
// terminal couples.
//
// It returns true once a terminal couple (TUNNEL or CLOSED/CLOSED or
// CLOSED/DONE-with-reset) has been reached and both channels have been
// marked accordingly.
func SyncState(req, rsp *channel.Channel, reqMsg, rspMsg *httpmsg.Message, mode connmode.Mode) (tunneled bool) {
	for {
		before := reqMsg.State
		beforeRsp := rspMsg.State

		if mode == connmode.Tunnel {
			req.ClearAnalysers()
			rsp.ClearAnalysers()
			reqMsg.State = httpmsg.Tunnel
			rspMsg.State = httpmsg.Tunnel
			return true
		}

		bothClosed := reqMsg.State == httpmsg.Closed && rspMsg.State == httpmsg.Closed
		if bothClosed {
			req.Set(channel.AutoClose)
			rsp.Set(channel.AutoClose)
			req.ClearAnalysers()
			rsp.ClearAnalysers()
			return true
		}

		reqClosedRspDone := reqMsg.State == httpmsg.Closed && rspMsg.State == httpmsg.Done
		if reqClosedRspDone && (mode == connmode.ServerClose || mode == connmode.KeepAlive) {
			// keep-alive cleanup: caller (session) is responsible for
			// actually resetting the transaction; here we only signal it
			// by returning true with both messages at their terminal states.
			return true
		}

		if reqMsg.State == before && rspMsg.State == beforeRsp {
			return false // fixed point reached, nothing more to reconcile
		}
	}
}
