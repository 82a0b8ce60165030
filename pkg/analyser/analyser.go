/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package analyser implements the analyser pipeline of spec.md §4.7: an
// ordered bitset of named stream-processing steps per channel, walked
// lowest bit to highest on every wakeup, each step returning done (proceed
// to the next bit in this pass) or blocked (stop; re-entered later).
package analyser

import "github.com/corelb/rproxy/pkg/channel"

// Bit numbers for the request-channel analysers, in pipeline order
// (spec.md §4.7 "Request channel").
const (
	ReqInspectFE uint = iota
	ReqWaitHTTP
	ReqHTTPProcessFE
	ReqSwitchingRules
	ReqInspectBE
	ReqHTTPProcessBE
	ReqHTTPTarpit
	ReqHTTPBody
	ReqHTTPXferBody
)

// Bit numbers for the response-channel analysers (spec.md §4.7 "Response
// channel").
const (
	RspInspect uint = iota
	RspWaitHTTP
	RspStoreRules
	RspHTTPProcessBE
	RspHTTPXferBody
)

// Func is one analyser step. true means done (the pipeline proceeds to the
// next armed bit in the same pass); false means blocked (the pipeline
// stops and is re-entered on the channel's next wakeup).
type Func func() bool

// Registry maps an analyser bit to the function implementing it, built
// once per channel kind (request/response) by the session engine.
type Registry map[uint]Func

// Run walks ch's armed analyser bits from lowest to highest, invoking the
// matching Func from reg for each, stopping at the first blocked step or
// once no analysers remain armed (spec.md §4.7). An armed bit with no
// registered Func is treated as already satisfied and cleared, so
// unconfigured analysers never wedge the pipeline.
func Run(ch *channel.Channel, reg Registry) {
	for {
		bit, ok := ch.NextAnalyser()
		if !ok {
			return
		}

		fn, registered := reg[bit]
		if !registered {
			ch.ClearAnalyser(bit)
			continue
		}

		if !fn() {
			return
		}
		ch.ClearAnalyser(bit)
	}
}
