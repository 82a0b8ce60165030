/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package compress_test

import (
	"bytes"

	"github.com/corelb/rproxy/pkg/compress"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Eligible", func() {
	It("requires a 200 status, a body, and no disqualifying header", func() {
		Expect(compress.Eligible(200, true, false, false, false)).To(BeTrue())
		Expect(compress.Eligible(404, true, false, false, false)).To(BeFalse())
		Expect(compress.Eligible(200, false, false, false, false)).To(BeFalse())
		Expect(compress.Eligible(200, true, true, false, false)).To(BeFalse())
		Expect(compress.Eligible(200, true, false, false, true)).To(BeFalse())
	})
})

var _ = Describe("Negotiate", func() {
	It("prefers brotli over gzip over deflate when all are offered and enabled", func() {
		got := compress.Negotiate("gzip, deflate, br", []compress.Algo{compress.Gzip, compress.Deflate, compress.Brotli})
		Expect(got).To(Equal(compress.Brotli))
	})

	It("falls back to identity when nothing offered is enabled", func() {
		got := compress.Negotiate("br", []compress.Algo{compress.Gzip})
		Expect(got).To(Equal(compress.Identity))
	})

	It("ignores q-value parameters while matching a token", func() {
		got := compress.Negotiate("gzip;q=0.5", []compress.Algo{compress.Gzip})
		Expect(got).To(Equal(compress.Gzip))
	})
})

var _ = Describe("NewWriter", func() {
	It("round-trips data through the gzip writer", func() {
		var buf bytes.Buffer
		w, ok := compress.NewWriter(compress.Gzip, &buf)
		Expect(ok).To(BeTrue())
		_, err := w.Write([]byte("hello world"))
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Close()).To(Succeed())
		Expect(buf.Len()).To(BeNumerically(">", 0))
	})

	It("returns ok=false for identity", func() {
		_, ok := compress.NewWriter(compress.Identity, &bytes.Buffer{})
		Expect(ok).To(BeFalse())
	})
})
