/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package stats implements the embedded stats applet's POST form handler
// and the engine's Prometheus metrics, both named in spec.md §6 as
// external collaborators this core treats as interfaces: a gin handler
// for the form action, and a small set of registered counters. No code in
// this module increments those counters.
package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Action is one of the POST form's recognized action values (spec.md
// §6 "action (one of disable|enable|stop|start|shutdown)").
type Action string

const (
	ActionDisable  Action = "disable"
	ActionEnable   Action = "enable"
	ActionStop     Action = "stop"
	ActionStart    Action = "start"
	ActionShutdown Action = "shutdown"
)

// Result is the outcome code appended to the redirect target, spec.md
// §6's `<code>` enumeration.
type Result string

const (
	ResultDeny    Result = "DENY"
	ResultDone    Result = "DONE"
	ResultErrProc Result = "ERRP"
	ResultExceed  Result = "EXCD"
	ResultNone    Result = "NONE"
	ResultPartial Result = "PART"
	ResultUnknown Result = "UNKN"
)

// ServerControl is the collaborator capable of actually applying an
// enable/disable/stop/start/shutdown action to a named server within a
// backend; the session/config layer supplies the real implementation.
type ServerControl interface {
	Apply(backend, server string, action Action) Result
}

// Handler builds a gin.HandlerFunc implementing the stats applet's form
// endpoint: parses `b`, `action`, and repeated `s` values, applies each,
// and redirects 303 to "<uriPrefix>;st=<code>" using the worst result
// seen (spec.md §6).
func Handler(uriPrefix string, ctrl ServerControl) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.Redirect(http.StatusSeeOther, uriPrefix+";st="+string(ResultErrProc))
			return
		}

		backend := c.PostForm("b")
		action := Action(c.PostForm("action"))
		servers := c.PostFormArray("s")

		if backend == "" || !validAction(action) {
			c.Redirect(http.StatusSeeOther, uriPrefix+";st="+string(ResultUnknown))
			return
		}

		if len(servers) == 0 {
			c.Redirect(http.StatusSeeOther, uriPrefix+";st="+string(ResultNone))
			return
		}

		worst := ResultDone
		for _, s := range servers {
			res := ctrl.Apply(backend, s, action)
			if rank(res) > rank(worst) {
				worst = res
			}
		}

		c.Redirect(http.StatusSeeOther, uriPrefix+";st="+string(worst))
	}
}

func validAction(a Action) bool {
	switch a {
	case ActionDisable, ActionEnable, ActionStop, ActionStart, ActionShutdown:
		return true
	default:
		return false
	}
}

// rank orders Result severity so a batch of per-server actions reports the
// worst outcome across the whole request.
func rank(r Result) int {
	switch r {
	case ResultDone:
		return 0
	case ResultPartial:
		return 1
	case ResultNone:
		return 2
	case ResultExceed:
		return 3
	case ResultDeny:
		return 4
	case ResultUnknown:
		return 5
	case ResultErrProc:
		return 6
	default:
		return 0
	}
}

// Metrics is the set of Prometheus collectors for the engine's global
// counters; the session engine does not update them (spec.md §5 "global counters... require no locking
// under the single-threaded assumption" — prometheus's own atomics make
// that safe to relax if a future revision adds worker goroutines).
type Metrics struct {
	SessionsTotal     prometheus.Counter
	HTTPErrorsTotal   prometheus.Counter
	CompressedBytes   prometheus.Counter
	BackendConnErrors *prometheus.CounterVec
}

// NewMetrics registers the engine's collectors against reg and returns
// their handles.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rproxy_sessions_total",
			Help: "Total sessions accepted.",
		}),
		HTTPErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rproxy_http_errors_total",
			Help: "Total client-caused HTTP errors (spec.md §4.7 WAIT_HTTP).",
		}),
		CompressedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rproxy_compressed_bytes_total",
			Help: "Total response bytes written through a compressor.",
		}),
		BackendConnErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rproxy_backend_connect_errors_total",
			Help: "Connect errors per backend.",
		}, []string{"backend"}),
	}

	reg.MustRegister(m.SessionsTotal, m.HTTPErrorsTotal, m.CompressedBytes, m.BackendConnErrors)
	return m
}
