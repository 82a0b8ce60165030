/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package acl_test

import (
	"github.com/corelb/rproxy/pkg/acl"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("List.Evaluate", func() {
	It("stops at the first matching allow rule", func() {
		l := acl.List{Rules: []acl.Rule{
			{Name: "allow-health", Cond: func(c acl.Context) bool { return c.URI == "/health" }, Kind: acl.Allow},
			{Name: "deny-all", Kind: acl.Deny},
		}}

		v := l.Evaluate(acl.Context{URI: "/health"})
		Expect(v.Stop).To(BeTrue())
		Expect(v.Kind).To(Equal(acl.Allow))
	})

	It("denies with 403 when no earlier rule matches", func() {
		l := acl.List{Rules: []acl.Rule{
			{Name: "allow-health", Cond: func(c acl.Context) bool { return c.URI == "/health" }, Kind: acl.Allow},
			{Name: "deny-all", Kind: acl.Deny},
		}}

		v := l.Evaluate(acl.Context{URI: "/private"})
		Expect(v.Stop).To(BeTrue())
		Expect(v.Kind).To(Equal(acl.Deny))
		Expect(v.Status).To(Equal(403))
	})

	It("defaults auth to 401 and proxy-auth to 407", func() {
		l := acl.List{Rules: []acl.Rule{{Kind: acl.Auth, AuthRealm: "proxy"}}}
		Expect(l.Evaluate(acl.Context{}).Status).To(Equal(401))

		l = acl.List{Rules: []acl.Rule{{Kind: acl.Auth, ProxyAuth: true}}}
		Expect(l.Evaluate(acl.Context{}).Status).To(Equal(407))
	})

	It("defaults a redirect's status to 302 when unset", func() {
		l := acl.List{Rules: []acl.Rule{{Kind: acl.Redirect, RedirectLocation: "https://x/"}}}
		v := l.Evaluate(acl.Context{})
		Expect(v.Status).To(Equal(302))
		Expect(v.Location).To(Equal("https://x/"))
	})

	It("lets add-header and set-header rules fall through and accumulate", func() {
		l := acl.List{Rules: []acl.Rule{
			{Kind: acl.AddHeader, HeaderName: "X-Forwarded-Proto", HeaderValue: "https"},
			{Kind: acl.SetHeader, HeaderName: "X-Real-IP", HeaderValue: "1.2.3.4"},
			{Kind: acl.Allow},
		}}

		v := l.Evaluate(acl.Context{})
		Expect(v.Stop).To(BeTrue())
		Expect(v.Kind).To(Equal(acl.Allow))
		Expect(v.HeaderOps).To(HaveLen(2))
		Expect(v.HeaderOps[0].Kind).To(Equal(acl.HeaderAdd))
		Expect(v.HeaderOps[1].Kind).To(Equal(acl.HeaderSet))
	})

	It("matches nothing when the list is empty", func() {
		v := acl.List{}.Evaluate(acl.Context{})
		Expect(v.Stop).To(BeFalse())
	})
})
