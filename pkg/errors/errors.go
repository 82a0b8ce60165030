/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package errors implements the taxonomy of session.3 core.7: every error
// surfaced by the connection/HTTP pipeline carries a CodeError (client,
// server, proxy-policy, internal or resource), an optional parent chain and
// a captured call site, instead of a bare sentinel or a panic.
package errors

import (
	"fmt"
	"runtime"
	"strings"
)

// CodeError classifies an error the way an HTTP status loosely classifies a
// response: a small closed space of causes, not a string to pattern-match.
type CodeError uint16

const (
	UnknownError CodeError = iota

	// client-caused
	ClientClose   // CLICL: client closed the connection
	ClientTimeout // CLITO: client-side read/write timeout
	BadRequest    // 400: malformed request
	RequestTimeout

	// server-caused
	ServerClose // SRVCL: server closed the connection
	ServerTimeout
	ConnectError  // 503: could not connect to the chosen server
	BadGateway    // 502: read error while relaying the response
	GatewayTimeout

	// proxy policy
	PolicyDenied   // 403
	PolicyAuth     // 401/407 depending on rule side
	PolicyRedirect // 30x
	PolicyCond     // PRXCOND: rule aborted/denied the transaction

	// internal / resource
	Internal // 500: unreachable configuration state
	Resource // 503: pool/slab exhaustion

	// PROXY protocol v1 (spec.md §4.10, CO_ER_PRX_*)
	ProxyEmpty
	ProxyAbort
	ProxyTimeout
	ProxyTruncated
	ProxyNotHeader
	ProxyBadHeader
	ProxyBadProto
)

var codeNames = map[CodeError]string{
	UnknownError:    "unknown",
	ClientClose:     "CLICL",
	ClientTimeout:   "CLITO",
	BadRequest:      "bad-request",
	RequestTimeout:  "request-timeout",
	ServerClose:     "SRVCL",
	ServerTimeout:   "SRVTO",
	ConnectError:    "connect-error",
	BadGateway:      "bad-gateway",
	GatewayTimeout:  "gateway-timeout",
	PolicyDenied:    "policy-denied",
	PolicyAuth:      "policy-auth",
	PolicyRedirect:  "policy-redirect",
	PolicyCond:      "PRXCOND",
	Internal:        "internal",
	Resource:        "resource",
	ProxyEmpty:      "PRX_EMPTY",
	ProxyAbort:      "PRX_ABORT",
	ProxyTimeout:    "PRX_TIMEOUT",
	ProxyTruncated:  "PRX_TRUNCATED",
	ProxyNotHeader:  "PRX_NOT_HDR",
	ProxyBadHeader:  "PRX_BAD_HDR",
	ProxyBadProto:   "PRX_BAD_PROTO",
}

// String implements fmt.Stringer for CodeError.
func (c CodeError) String() string {
	if n, ok := codeNames[c]; ok {
		return n
	}
	return fmt.Sprintf("code(%d)", uint16(c))
}

// Error is the taxonomy-aware error type every core package returns instead
// of a bare `error`. It is intentionally small: a code, a message, a parent
// chain (for "this 502 was caused by that dial error") and a call site.
type Error interface {
	error

	// Code returns the classification of this error.
	Code() CodeError

	// IsCode reports whether this error, or any of its parents, carries code.
	IsCode(code CodeError) bool

	// Add appends additional causes (e.g. the underlying net.Error) to the
	// hierarchy without discarding the original code/message.
	Add(parent ...error) Error

	// Parents returns the directly attached parent errors, if any.
	Parents() []Error

	// Trace returns "file:line func" of where the error was constructed.
	Trace() string
}

type coreError struct {
	code    CodeError
	message string
	parents []Error
	frame   runtime.Frame
}

// New builds an Error with the given code and message, capturing the
// immediate caller's frame. Any supplied causes are wrapped with Add.
func New(code CodeError, message string, cause ...error) Error {
	e := &coreError{
		code:    code,
		message: message,
		frame:   callerFrame(2),
	}
	return e.Add(cause...)
}

func callerFrame(skip int) runtime.Frame {
	pc := make([]uintptr, 1)
	if runtime.Callers(skip+1, pc) == 0 {
		return runtime.Frame{}
	}
	frames := runtime.CallersFrames(pc)
	f, _ := frames.Next()
	return f
}

func (e *coreError) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString(e.code.String())
	if e.message != "" {
		b.WriteString(": ")
		b.WriteString(e.message)
	}

	for _, p := range e.parents {
		b.WriteString(" <- ")
		b.WriteString(p.Error())
	}

	return b.String()
}

func (e *coreError) Code() CodeError {
	if e == nil {
		return UnknownError
	}
	return e.code
}

func (e *coreError) IsCode(code CodeError) bool {
	if e == nil {
		return false
	} else if e.code == code {
		return true
	}

	for _, p := range e.parents {
		if p.IsCode(code) {
			return true
		}
	}

	return false
}

func (e *coreError) Add(cause ...error) Error {
	if e == nil {
		return nil
	}

	for _, c := range cause {
		if c == nil {
			continue
		} else if ce, ok := c.(Error); ok {
			e.parents = append(e.parents, ce)
		} else {
			e.parents = append(e.parents, &coreError{code: UnknownError, message: c.Error()})
		}
	}

	return e
}

func (e *coreError) Parents() []Error {
	if e == nil {
		return nil
	}
	return e.parents
}

func (e *coreError) Trace() string {
	if e == nil || e.frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d %s", e.frame.File, e.frame.Line, e.frame.Function)
}

// Is supports errors.Is(err, target) against another Error by code equality,
// so standard library error matching keeps working across this taxonomy.
func (e *coreError) Is(target error) bool {
	t, ok := target.(Error)
	if !ok {
		return false
	}
	return e.IsCode(t.Code())
}
