/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

// Package compress implements the response-body compression negotiation
// and streaming of spec.md §6: when a request's Accept-Encoding matches a
// configured algorithm and the response is eligible, the body is
// re-framed as chunked and run through the corresponding compressor.
package compress

import (
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	flatedeflate "github.com/klauspost/compress/flate"
)

// Algo identifies a negotiated compression algorithm. The constants follow
// spec.md's original_source/compression.c registration order (identity,
// deflate, gzip) with brotli appended; Negotiate walks them in the reverse
// order, so brotli is always preferred when the client advertises it.
type Algo uint8

const (
	Identity Algo = iota
	Deflate
	Gzip
	Brotli
)

func (a Algo) String() string {
	switch a {
	case Deflate:
		return "deflate"
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	default:
		return "identity"
	}
}

// Eligible reports whether a response may be compressed at all (spec.md
// §6): status 200, has a body, is not already encoded, is not
// multipart, and does not carry Cache-Control: no-transform.
func Eligible(status int, hasBody, alreadyEncoded, multipart, noTransform bool) bool {
	return status == 200 && hasBody && !alreadyEncoded && !multipart && !noTransform
}

// Negotiate picks the best algorithm both the client's Accept-Encoding
// header and the proxy's configured set support, preferring brotli, then
// gzip, then deflate, then identity (no compression, eligible callers
// should skip re-framing entirely in that case).
func Negotiate(acceptEncoding string, enabled []Algo) Algo {
	offered := parseAcceptEncoding(acceptEncoding)

	pref := []Algo{Brotli, Gzip, Deflate}
	for _, want := range pref {
		if !offered[want] {
			continue
		}
		for _, e := range enabled {
			if e == want {
				return want
			}
		}
	}
	return Identity
}

// ParseAlgo parses a configured algorithm name into its Algo value, for
// decoding a backend's compress_algos list (pkg/config) into the set
// Negotiate is told is enabled.
func ParseAlgo(s string) (Algo, bool) {
	switch strings.ToLower(s) {
	case "identity":
		return Identity, true
	case "deflate":
		return Deflate, true
	case "gzip":
		return Gzip, true
	case "br", "brotli":
		return Brotli, true
	default:
		return Identity, false
	}
}

func parseAcceptEncoding(v string) map[Algo]bool {
	out := map[Algo]bool{}
	for _, tok := range strings.Split(v, ",") {
		tok = strings.TrimSpace(tok)
		// drop any q-value parameter; a q=0 entry is rare enough in proxy
		// traffic that we treat presence as acceptance, per the original
		// source's permissive matching.
		if semi := strings.IndexByte(tok, ';'); semi >= 0 {
			tok = strings.TrimSpace(tok[:semi])
		}
		switch strings.ToLower(tok) {
		case "gzip":
			out[Gzip] = true
		case "deflate":
			out[Deflate] = true
		case "br":
			out[Brotli] = true
		case "identity", "*":
			out[Identity] = true
		}
	}
	return out
}

// NewWriter returns a streaming compressor for the given algorithm writing
// to w, or (nil, false) for Identity (caller should pass bytes through
// unmodified).
func NewWriter(algo Algo, w io.Writer) (io.WriteCloser, bool) {
	switch algo {
	case Gzip:
		return gzip.NewWriter(w), true
	case Deflate:
		fw, _ := flatedeflate.NewWriter(w, flatedeflate.DefaultCompression)
		return fw, true
	case Brotli:
		return brotli.NewWriter(w), true
	default:
		return nil, false
	}
}
