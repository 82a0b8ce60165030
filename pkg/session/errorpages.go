/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"fmt"
	"strings"

	"github.com/corelb/rproxy/pkg/buffer"
)

// reasonPhrase names the status codes this core synthesises verbatim
// (spec.md §6 "the proxy synthesises these responses ... the bodies are
// tiny HTML pages").
func reasonPhrase(status int) string {
	switch status {
	case 200:
		return "OK"
	case 301:
		return "Moved Permanently"
	case 302:
		return "Found"
	case 303:
		return "See Other"
	case 400:
		return "Bad request"
	case 401:
		return "Unauthorized"
	case 403:
		return "Forbidden"
	case 407:
		return "Proxy Authentication Required"
	case 408:
		return "Request Time-out"
	case 500:
		return "Server Error"
	case 502:
		return "Bad Gateway"
	case 503:
		return "Service Unavailable"
	case 504:
		return "Gateway Time-out"
	default:
		return "Error"
	}
}

func errorBody(status int) string {
	reason := reasonPhrase(status)
	return fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, reason)
}

// synthesizeResponse writes a canned HTTP response directly onto the
// response channel and stops both analyser pipelines, implementing the
// "a synthetic response may be written" step of spec.md §7's error path.
// extraHeaders are appended verbatim (e.g. Location, WWW-Authenticate).
func synthesizeResponse(s *Session, status int, extraHeaders map[string]string) {
	body := errorBody(status)

	var b strings.Builder
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reasonPhrase(status))
	for k, v := range extraHeaders {
		fmt.Fprintf(&b, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(&b, "Content-Length: %d\r\n\r\n", len(body))
	b.WriteString(body)

	s.Rep.Buf = buffer.New(s.Rep.Buf.Cap())
	_, _ = s.Rep.Buf.WriteInput([]byte(b.String()))

	s.Req.ClearAnalysers()
	s.Rep.ClearAnalysers()
}
