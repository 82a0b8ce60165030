/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package acl implements the HTTP_PROCESS_FE/BE rule-list engine of
// spec.md §4.7: an ordered list of rules, each with an optional condition
// and one of allow/deny/tarpit/auth/redirect/add-header/set-header, walked
// in order until a terminating action fires.
package acl

import "net"

// Kind is one of the rule actions spec.md §4.7 names.
type Kind uint8

const (
	Allow Kind = iota
	Deny
	Tarpit
	Auth
	Redirect
	AddHeader
	SetHeader
)

// Context is the closed set of per-request facts a condition may test
// (spec.md §4.7's ACLs are evaluated against the transaction and
// connection, not arbitrary application state).
type Context struct {
	Method string
	URI    string
	SrcIP  net.IP

	// Header looks up a request header by name, case-insensitively.
	Header func(name string) (string, bool)
}

// Condition reports whether ctx matches. A nil Condition always matches,
// the equivalent of spec.md's worked-example `TRUE` acl.
type Condition func(ctx Context) bool

// Rule is one entry of the ordered list.
type Rule struct {
	Name string
	Cond Condition
	Kind Kind

	// Auth
	AuthRealm string
	ProxyAuth bool // true emits 407 instead of 401, per the rule's side

	// Redirect
	RedirectLocation string
	RedirectCode     int // defaults to 302 when zero

	// Add/Set header
	HeaderName  string
	HeaderValue string
}

// HeaderOpKind distinguishes an additive header mutation from a
// remove-then-set one.
type HeaderOpKind uint8

const (
	HeaderAdd HeaderOpKind = iota
	HeaderSet
)

// HeaderOp is one queued header mutation a matched add-header/set-header
// rule produced.
type HeaderOp struct {
	Kind  HeaderOpKind
	Name  string
	Value string
}

// Verdict is the result of walking a List once.
type Verdict struct {
	// Stop is true when a terminating action (everything but add/set
	// header) matched; Kind/Status/Location/AuthRealm/ProxyAuth are only
	// meaningful when Stop is true.
	Stop bool
	Kind Kind

	Status    int
	Location  string
	AuthRealm string
	ProxyAuth bool

	// HeaderOps accumulates in rule order regardless of whether the pass
	// later stops on a different rule (spec.md §4.7 "add/set-header...
	// fall through").
	HeaderOps []HeaderOp
}

// List is the ordered rule list for one side (frontend or backend).
type List struct {
	Rules []Rule
}

// Evaluate walks l.Rules in order, skipping any whose Cond doesn't match
// ctx. allow/deny/tarpit/auth/redirect stop the pass at the first match;
// add-header/set-header accumulate into Verdict.HeaderOps and continue.
func (l List) Evaluate(ctx Context) Verdict {
	var v Verdict

	for _, r := range l.Rules {
		if r.Cond != nil && !r.Cond(ctx) {
			continue
		}

		switch r.Kind {
		case Allow:
			v.Stop, v.Kind = true, Allow
			return v

		case Deny:
			v.Stop, v.Kind, v.Status = true, Deny, 403
			return v

		case Tarpit:
			v.Stop, v.Kind = true, Tarpit
			return v

		case Auth:
			v.Stop, v.Kind = true, Auth
			v.AuthRealm = r.AuthRealm
			v.ProxyAuth = r.ProxyAuth
			if r.ProxyAuth {
				v.Status = 407
			} else {
				v.Status = 401
			}
			return v

		case Redirect:
			v.Stop, v.Kind = true, Redirect
			v.Location = r.RedirectLocation
			v.Status = r.RedirectCode
			if v.Status == 0 {
				v.Status = 302
			}
			return v

		case AddHeader:
			v.HeaderOps = append(v.HeaderOps, HeaderOp{Kind: HeaderAdd, Name: r.HeaderName, Value: r.HeaderValue})

		case SetHeader:
			v.HeaderOps = append(v.HeaderOps, HeaderOp{Kind: HeaderSet, Name: r.HeaderName, Value: r.HeaderValue})
		}
	}

	return v
}
