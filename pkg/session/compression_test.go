/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session_test

import (
	"bytes"
	"time"

	"github.com/corelb/rproxy/pkg/acl"
	"github.com/corelb/rproxy/pkg/config"
	"github.com/corelb/rproxy/pkg/session"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("response compression negotiation", func() {
	It("negotiates gzip when the client offers it and the backend enables it", func() {
		fe := &config.Frontend{Name: "fe1"}
		be := &config.Backend{Name: "be1", CompressAlgos: []string{"gzip"}}

		s := session.Build(fe, be, "l1", 4096, acl.List{}, acl.List{})

		_, _ = s.Req.Buf.WriteInput([]byte("GET /x HTTP/1.1\r\nHost: a\r\nAccept-Encoding: gzip, deflate\r\n\r\n"))
		_, _ = s.Rep.Buf.WriteInput([]byte(
			"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 11\r\n\r\nhello world"))

		s.Wakeup(time.Now(), true, true, true, true)

		out := string(s.Rep.Buf.PeekInput(0, s.Rep.Buf.Input()))
		Expect(out).To(ContainSubstring("Content-Encoding: gzip\r\n"))
		Expect(out).To(ContainSubstring("Transfer-Encoding: chunked\r\n"))
		Expect(out).NotTo(ContainSubstring("Content-Length:"))
	})

	It("skips compression when the response already carries Content-Encoding", func() {
		fe := &config.Frontend{Name: "fe1"}
		be := &config.Backend{Name: "be1", CompressAlgos: []string{"gzip"}}

		s := session.Build(fe, be, "l1", 4096, acl.List{}, acl.List{})

		_, _ = s.Req.Buf.WriteInput([]byte("GET /x HTTP/1.1\r\nHost: a\r\nAccept-Encoding: gzip\r\n\r\n"))
		_, _ = s.Rep.Buf.WriteInput([]byte(
			"HTTP/1.1 200 OK\r\nContent-Encoding: br\r\nContent-Length: 11\r\n\r\nhello world"))

		s.Wakeup(time.Now(), true, true, true, true)

		out := string(s.Rep.Buf.PeekInput(0, s.Rep.Buf.Input()))
		Expect(out).To(ContainSubstring("Content-Length: 11\r\n"))
	})

	It("CompressionWriter returns a working writer for the negotiated algorithm", func() {
		fe := &config.Frontend{Name: "fe1"}
		be := &config.Backend{Name: "be1", CompressAlgos: []string{"gzip"}}
		s := session.Build(fe, be, "l1", 4096, acl.List{}, acl.List{})

		_, _ = s.Req.Buf.WriteInput([]byte("GET /x HTTP/1.1\r\nHost: a\r\nAccept-Encoding: gzip\r\n\r\n"))
		_, _ = s.Rep.Buf.WriteInput([]byte(
			"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 5\r\n\r\nhello"))
		s.Wakeup(time.Now(), true, true, true, true)

		var buf bytes.Buffer
		w, ok := s.CompressionWriter(&buf)
		Expect(ok).To(BeTrue())
		_, err := w.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		Expect(buf.Len()).To(BeNumerically(">", 0))
	})
})
