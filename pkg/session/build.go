/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"github.com/corelb/rproxy/pkg/acl"
	"github.com/corelb/rproxy/pkg/analyser"
	"github.com/corelb/rproxy/pkg/compress"
	"github.com/corelb/rproxy/pkg/config"
	"github.com/corelb/rproxy/pkg/connmode"
)

// Build assembles a production Session for one frontend/backend pairing:
// it populates the analyser registries New alone leaves empty, wiring the
// request/response WAIT_HTTP parse-and-negotiate step, the HTTP_PROCESS_FE/
// BE rule engines, the tarpit cooldown, and the XFER_BODY relay, so the
// bits session.New arms by default all have a real Func behind them.
func Build(fe *config.Frontend, be *config.Backend, listener string, bufSize int, aclFE, aclBE acl.List) *Session {
	s := New(fe.Name, be.Name, listener, bufSize, Analysers{})

	s.compressEnabled = parseCompressAlgos(be.CompressAlgos)
	s.Txn.Req.AllowInvalidURI = fe.AcceptInvalidHTTPRequest

	opt := connmode.Options{
		FrontendKeepAlive:   fe.KeepAlive,
		FrontendServerClose: fe.ServerClose,
		FrontendHTTPClose:   fe.HTTPClose,
		FrontendForceClose:  fe.ForceClose,

		BackendKeepAlive:   be.KeepAlive,
		BackendServerClose: be.ServerClose,
		BackendHTTPClose:   be.HTTPClose,
		BackendForceClose:  be.ForceClose,
	}

	reg := Analysers{
		Req: analyser.Registry{
			analyser.ReqInspectFE:      newReqInspectFE(s, fe),
			analyser.ReqWaitHTTP:       newReqWaitHTTP(s, opt),
			analyser.ReqHTTPProcessFE:  newReqHTTPProcess(s, aclFE, be.TimeoutTarpit),
			analyser.ReqSwitchingRules: newReqSwitchingRules(s),
			analyser.ReqInspectBE:      newReqInspectBE(s),
			analyser.ReqHTTPProcessBE:  newReqHTTPProcess(s, aclBE, be.TimeoutTarpit),
			analyser.ReqHTTPTarpit:     newReqHTTPTarpit(s),
			analyser.ReqHTTPXferBody:   newReqHTTPXferBody(s),
		},
		Rsp: analyser.Registry{
			analyser.RspInspect:       newRspInspect(s),
			analyser.RspWaitHTTP:      newRspWaitHTTP(s),
			analyser.RspHTTPProcessBE: newRspHTTPProcessBE(s, aclBE),
			analyser.RspHTTPXferBody:  newRspHTTPXferBody(s),
		},
	}

	s.ReqAnalysers = reg
	s.RepAnalysers = reg

	return s
}

func parseCompressAlgos(names []string) []compress.Algo {
	algos := make([]compress.Algo, 0, len(names))
	for _, n := range names {
		if a, ok := compress.ParseAlgo(n); ok && a != compress.Identity {
			algos = append(algos, a)
		}
	}
	return algos
}
