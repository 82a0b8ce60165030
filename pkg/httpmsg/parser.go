/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package httpmsg

import (
	"github.com/corelb/rproxy/pkg/errors"
)

// Message is one HTTP/1.x request or response as seen by the incremental
// parser: a resumable (State, Next) cursor over a byte slice the caller
// owns (spec.md §4.5), a start-line descriptor, and a header index list.
type Message struct {
	IsRequest bool

	State State
	Next  int // next unconsumed byte offset into the buffer passed to Parse

	Sol, Eol int // current line start/end, relative to the same buffer
	Eoh      int // end of headers (byte after the blank line's LF)
	Sov      int // start of body/value, set once headers finish

	SL    StartLine
	Flags Flag

	ChunkLen int64 // remaining bytes in the chunk currently being read
	BodyLen  int64 // Content-Length, when FlagCntLen is set

	// Hdr is the header index linked list (spec.md §3): Hdr[0] is the
	// sentinel, cell.Next chains forward, 0 terminates the list.
	Hdr []HeaderCell

	// TrailerHead is the sentinel cell index for the trailer list of a
	// chunked message, kept separate from Hdr[0] so trailers never splice
	// onto the header-section chain.
	TrailerHead int

	curCell int // index of the header cell currently being filled in

	// crPos/lfPos remember the most recent CR/LF positions seen while
	// scanning a header value, so HdrL1LWS can decide — once it peeks the
	// byte after them — whether they terminated the value or merely
	// introduced an obs-fold continuation line.
	crPos, lfPos int

	ErrPos int

	// AllowInvalidURI disables the non-ASCII request-URI rejection of
	// RQURI (spec.md §4.7 "accept-invalid-http-request"). Off by default.
	AllowInvalidURI bool
}

// New returns a Message ready to parse a request (isRequest=true) or a
// response, starting from the RQBEFORE/RPBEFORE state.
func New(isRequest bool) *Message {
	m := &Message{
		IsRequest: isRequest,
		Hdr:       make([]HeaderCell, 1, 8), // cell 0 is the sentinel
	}
	if isRequest {
		m.State = RQBefore
	} else {
		m.State = RPBefore
	}
	return m
}

// Reset rearms the message for the next transaction on the same
// connection (spec.md §4.6 http_reset_txn), reusing the backing header
// slice.
func (m *Message) Reset() {
	isRequest := m.IsRequest
	hdr := m.Hdr[:1]
	allowInvalidURI := m.AllowInvalidURI
	*m = Message{IsRequest: isRequest, Hdr: hdr, AllowInvalidURI: allowInvalidURI}
	if isRequest {
		m.State = RQBefore
	} else {
		m.State = RPBefore
	}
}

func isToken(b byte) bool {
	switch b {
	case '(', ')', '<', '>', '@', ',', ';', ':', '\\', '"', '/', '[', ']',
		'?', '=', '{', '}', ' ', '\t':
		return false
	}
	return b > 0x20 && b < 0x7f
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func hexVal(b byte) (int64, bool) {
	switch {
	case b >= '0' && b <= '9':
		return int64(b - '0'), true
	case b >= 'a' && b <= 'f':
		return int64(b-'a') + 10, true
	case b >= 'A' && b <= 'F':
		return int64(b-'A') + 10, true
	}
	return 0, false
}

// parseErr raises a BadRequest/BadGateway error (depending on message
// direction) and freezes the FSM in ErrorState, recording the offending
// offset for diagnostics (spec.md §8 "no silent state corruption on
// malformed input").
func (m *Message) parseErr(i int) errors.Error {
	m.State = ErrorState
	m.ErrPos = i
	code := errors.BadRequest
	if !m.IsRequest {
		code = errors.BadGateway
	}
	return errors.New(code, "malformed HTTP message")
}

// newHeaderCell appends a cell to Hdr and links it after the current tail,
// returning its index.
func (m *Message) newHeaderCell() int {
	m.Hdr = append(m.Hdr, HeaderCell{})
	idx := len(m.Hdr) - 1
	m.Hdr[m.curCell].Next = idx
	m.curCell = idx
	return idx
}

// Parse resumes scanning buf from m.Next and drives the FSM forward as far
// as the available bytes allow. It returns (true, nil) once the start-line
// and headers are fully parsed (m.State becomes Body/ChunkSize/Done as
// appropriate) and (false, nil) when it runs out of input mid-token; the
// same buf may be re-passed with more bytes appended and parsing resumes
// exactly where it left off, without re-scanning or moving any byte
// (spec.md §4.5, §8: "resumable (state,next) cursor ... identical results
// regardless of how input is chunked").
func (m *Message) Parse(buf []byte) (bool, errors.Error) {
	i := m.Next

	for i < len(buf) {
		b := buf[i]

		switch m.State {

		// ---- request start line ----
		case RQBefore:
			if b == '\r' || b == '\n' {
				i++ // tolerate leading blank lines, per common server leniency
				continue
			}
			m.Sol = i
			m.SL.MethStart = i
			m.State = RQMeth

		case RQMeth:
			if b == ' ' {
				m.SL.MethLen = i - m.SL.MethStart
				m.State = RQMethSP
			} else if !isToken(b) {
				return false, m.parseErr(i)
			}
			i++

		case RQMethSP:
			if b == ' ' {
				i++
				continue
			}
			m.SL.URIStart = i
			m.State = RQURI

		case RQURI:
			if b == ' ' {
				m.SL.URILen = i - m.SL.URIStart
				m.State = RQURISP
			} else if b == '\r' || b == '\n' {
				return false, m.parseErr(i)
			} else if b >= 0x80 && !m.AllowInvalidURI {
				return false, m.parseErr(i)
			}
			i++

		case RQURISP:
			if b == ' ' {
				i++
				continue
			}
			m.SL.VerStart = i
			m.State = RQVer

		case RQVer:
			if b == '\r' {
				m.SL.VerLen = i - m.SL.VerStart
				m.State = RQBeforeCR
			} else if b == '\n' {
				m.SL.VerLen = i - m.SL.VerStart
				m.State = RQLineEnd
				continue
			}
			i++

		case RQBeforeCR:
			if b != '\n' {
				return false, m.parseErr(i)
			}
			m.State = RQLineEnd
			continue

		case RQLineEnd:
			m.classifyVersion(buf[m.SL.VerStart : m.SL.VerStart+m.SL.VerLen])
			m.Eol = i
			m.State = HdrFirst
			i++

		// ---- response start line ----
		case RPBefore:
			if b == '\r' || b == '\n' {
				i++
				continue
			}
			m.Sol = i
			m.SL.VerStart = i
			m.State = RPVer

		case RPVer:
			if b == ' ' {
				m.SL.VerLen = i - m.SL.VerStart
				m.State = RPVerSP
			} else if b == '\r' || b == '\n' {
				return false, m.parseErr(i)
			}
			i++

		case RPVerSP:
			if b == ' ' {
				i++
				continue
			}
			m.SL.CodeStart = i
			m.State = RPCode

		case RPCode:
			if b == ' ' {
				m.SL.CodeLen = i - m.SL.CodeStart
				m.State = RPCodeSP
			} else if b == '\r' || b == '\n' {
				// reason-less status line: the reason phrase is empty.
				m.SL.CodeLen = i - m.SL.CodeStart
				m.SL.ReasonStart = i
				m.State = RPReason
				continue
			} else if !isDigit(b) {
				return false, m.parseErr(i)
			}
			i++

		case RPCodeSP:
			if b == ' ' {
				i++
				continue
			}
			m.SL.ReasonStart = i
			m.State = RPReason

		case RPReason:
			if b == '\r' {
				m.SL.ReasonLen = i - m.SL.ReasonStart
				m.State = RPBeforeCR
			} else if b == '\n' {
				m.SL.ReasonLen = i - m.SL.ReasonStart
				m.State = RPLineEnd
				continue
			}
			i++

		case RPBeforeCR:
			if b != '\n' {
				return false, m.parseErr(i)
			}
			m.State = RPLineEnd
			continue

		case RPLineEnd:
			m.classifyVersion(buf[m.SL.VerStart : m.SL.VerStart+m.SL.VerLen])
			m.Eol = i
			m.State = HdrFirst
			i++

		// ---- headers, shared between request and response ----
		case HdrFirst:
			if b == '\r' {
				m.State = LastLF
				i++
				continue
			}
			if b == '\n' {
				m.State = LastLF
				continue
			}
			idx := m.newHeaderCell()
			m.Hdr[idx].NameStart = i
			m.State = HdrName

		case HdrName:
			if b == ':' {
				c := &m.Hdr[m.curCell]
				c.NameLen = i - c.NameStart
				m.State = HdrL1SP
			} else if b == '\r' || b == '\n' {
				return false, m.parseErr(i)
			} else if !isToken(b) {
				return false, m.parseErr(i)
			}
			i++

		case HdrL1SP:
			if b == ' ' || b == '\t' {
				i++
				continue
			}
			m.Hdr[m.curCell].ValueStart = i
			m.State = HdrVal

		case HdrVal:
			if b == '\r' {
				m.crPos = i
				m.State = HdrL1LF
			} else if b == '\n' {
				m.crPos = -1
				m.lfPos = i
				m.State = HdrL1LWS
				i++
				continue
			} else if b == '\t' {
				buf[i] = ' ' // embedded HT folded to space, spec.md §3
			}
			i++

		case HdrL1LF:
			if b != '\n' {
				return false, m.parseErr(i)
			}
			m.lfPos = i
			m.State = HdrL1LWS
			i++

		case HdrL1LWS:
			// peek at the byte following CRLF without consuming it: a WSP
			// byte here means this line is an obs-fold continuation of the
			// same header value (spec.md §3 "embedded CR/LF/HT replaced
			// with spaces"), anything else ends the value.
			if b == ' ' || b == '\t' {
				if m.crPos >= 0 {
					buf[m.crPos] = ' '
				}
				buf[m.lfPos] = ' '
				m.State = HdrVal
				continue
			}
			c := &m.Hdr[m.curCell]
			crOrLf := m.lfPos
			if m.crPos >= 0 {
				crOrLf = m.crPos
			}
			c.ValueLen = crOrLf - c.ValueStart
			c.Len = i - c.NameStart
			m.State = HdrFirst

		case LastLF:
			if b != '\n' {
				return false, m.parseErr(i)
			}
			i++
			m.Eoh = i
			m.Sov = i
			m.Next = i
			return m.finishHeaders(buf)

		default:
			// body/trailer states are driven by Advance, not Parse.
			m.Next = i
			return true, nil
		}

		m.Next = i
	}

	m.Next = i
	return false, nil
}

// classifyVersion sets FlagVer11 from the parsed version token ("HTTP/1.1"
// vs "HTTP/1.0" and earlier).
func (m *Message) classifyVersion(ver []byte) {
	if len(ver) >= 8 && ver[5] == '1' && ver[7] >= '1' {
		m.Flags |= FlagVer11
	}
}

// finishHeaders walks the completed header index looking for
// Content-Length / Transfer-Encoding to decide body framing, matching
// spec.md §4.5's "XFER_LEN derived once headers are complete".
func (m *Message) finishHeaders(buf []byte) (bool, errors.Error) {
	cntLenSeen := false

	for idx := m.Hdr[0].Next; idx != 0; idx = m.Hdr[idx].Next {
		c := m.Hdr[idx]
		name := buf[c.NameStart : c.NameStart+c.NameLen]
		value := buf[c.ValueStart : c.ValueStart+c.ValueLen]

		if equalFold(name, "content-length") {
			v, ok := parseUint(value)
			if !ok {
				return false, m.parseErr(c.ValueStart)
			}
			if cntLenSeen && v != m.BodyLen {
				return false, m.parseErr(c.ValueStart)
			}
			cntLenSeen = true
			m.BodyLen = v
			m.Flags |= FlagCntLen | FlagXferLen
		} else if equalFold(name, "transfer-encoding") {
			if containsFold(value, "chunked") {
				m.Flags |= FlagTeChnk | FlagXferLen
			}
		}
	}

	// RFC 7230 §3.3.3: chunked wins over a stray Content-Length.
	if m.Flags&FlagTeChnk != 0 {
		m.Flags &^= FlagCntLen
		m.ChunkLen = -1 // sentinel: no chunk-size read yet
		m.State = ChunkSize
	} else if m.Flags&FlagCntLen != 0 {
		m.State = Body
	} else if m.IsRequest {
		m.BodyLen = 0
		m.State = Done
	} else {
		// response with no explicit framing: body runs to connection close.
		m.Flags |= FlagXferLen
		m.State = Body
		m.BodyLen = -1
	}

	return true, nil
}

// HeaderValue returns the value of the first header named name
// (case-insensitive) found in the already-parsed index, and whether one
// was found. buf must be the same slice last passed to Parse.
func (m *Message) HeaderValue(buf []byte, name string) (string, bool) {
	for idx := m.Hdr[0].Next; idx != 0; idx = m.Hdr[idx].Next {
		c := m.Hdr[idx]
		if equalFold(buf[c.NameStart:c.NameStart+c.NameLen], name) {
			return string(buf[c.ValueStart : c.ValueStart+c.ValueLen]), true
		}
	}
	return "", false
}

// HeaderCells returns the index of every header cell named name
// (case-insensitive), in document order, for callers that need to mutate
// or remove them (e.g. the HTTP_PROCESS_FE/BE set-header action).
func (m *Message) HeaderCells(buf []byte, name string) []int {
	var out []int
	for idx := m.Hdr[0].Next; idx != 0; idx = m.Hdr[idx].Next {
		c := m.Hdr[idx]
		if equalFold(buf[c.NameStart:c.NameStart+c.NameLen], name) {
			out = append(out, idx)
		}
	}
	return out
}

func equalFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != s[i] {
			return false
		}
	}
	return true
}

func containsFold(b []byte, s string) bool {
	n := len(s)
	for i := 0; i+n <= len(b); i++ {
		if equalFold(b[i:i+n], s) {
			return true
		}
	}
	return false
}

func parseUint(b []byte) (int64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	var v int64
	for _, c := range b {
		if !isDigit(c) {
			return 0, false
		}
		v = v*10 + int64(c-'0')
	}
	return v, true
}
