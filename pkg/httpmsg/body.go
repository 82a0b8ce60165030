/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package httpmsg

import "github.com/corelb/rproxy/pkg/errors"

// Advance drives body/chunk/trailer consumption once Parse has returned
// with the headers complete. It never copies data: callers feed it the
// body region of the buffer and use the returned consumed count to advance
// their own read cursor and to_forward accounting (spec.md §2 zero-copy
// contract).
//
// It returns done=true once the message (including trailers, for chunked
// bodies) is fully framed.
func (m *Message) Advance(buf []byte) (consumed int, done bool, err errors.Error) {
	i := 0

	for i < len(buf) {
		switch m.State {

		case Body:
			if m.Flags&FlagCntLen != 0 {
				n := len(buf) - i
				if int64(n) > m.BodyLen {
					n = int(m.BodyLen)
				}
				i += n
				m.BodyLen -= int64(n)
				if m.BodyLen == 0 {
					m.State = Done
				}
				continue
			}
			// close-delimited body: everything is body, EOF (not this FSM)
			// marks the end.
			i = len(buf)

		case ChunkSize:
			b := buf[i]
			if v, ok := hexVal(b); ok {
				if m.ChunkLen < 0 {
					m.ChunkLen = 0
				}
				m.ChunkLen = m.ChunkLen*16 + v
				i++
				continue
			}
			if b == ';' {
				// chunk extension: ignored, scan to CR.
				for i < len(buf) && buf[i] != '\r' && buf[i] != '\n' {
					i++
				}
				continue
			}
			if b == '\r' {
				m.State = ChunkSizeLF
				i++
				continue
			}
			if b == '\n' {
				i++
				m.State = chunkHeaderDone(m)
				continue
			}
			return i, false, m.parseErr(i)

		case ChunkSizeLF:
			if buf[i] != '\n' {
				return i, false, m.parseErr(i)
			}
			i++
			m.State = chunkHeaderDone(m)

		case Data:
			n := len(buf) - i
			if int64(n) > m.ChunkLen {
				n = int(m.ChunkLen)
			}
			i += n
			m.ChunkLen -= int64(n)
			if m.ChunkLen == 0 {
				m.State = ChunkCRLF
			}

		case ChunkCRLF:
			b := buf[i]
			if b == '\r' {
				i++
				continue
			}
			if b != '\n' {
				return i, false, m.parseErr(i)
			}
			i++
			m.ChunkLen = -1
			m.State = ChunkSize

		case Trailers, HdrFirst, HdrName, HdrL1SP, HdrVal, HdrL1LF, LastLF:
			consumedHdr, herr := m.advanceTrailer(buf[i:])
			i += consumedHdr
			if herr != nil {
				return i, false, herr
			}
			if m.State == Done {
				return i, true, nil
			}
			if consumedHdr == 0 {
				return i, false, nil
			}
			continue

		case Done:
			return i, true, nil

		default:
			return i, false, nil
		}
	}

	return i, m.State == Done, nil
}

// chunkHeaderDone decides whether a freshly-read chunk-size line starts the
// data of a non-empty chunk or the trailer section (a zero-size chunk).
func chunkHeaderDone(m *Message) State {
	if m.ChunkLen == 0 {
		return Trailers
	}
	return Data
}

// advanceTrailer reuses the header-line states to parse one trailer field
// at a time, terminating on the trailer section's blank line.
func (m *Message) advanceTrailer(buf []byte) (int, errors.Error) {
	i := 0
	if m.State == Trailers {
		m.State = HdrFirst
		// trailers get their own sentinel cell so they never splice onto
		// the header-section list's chain.
		m.Hdr = append(m.Hdr, HeaderCell{})
		m.curCell = len(m.Hdr) - 1
		m.TrailerHead = m.curCell
	}

	for i < len(buf) {
		b := buf[i]
		switch m.State {
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
			} else if !isToken(b) {
				return i, m.parseErr(i)
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
				c := &m.Hdr[m.curCell]
				c.ValueLen = i - c.ValueStart
				m.State = HdrL1LF
			} else if b == '\n' {
				c := &m.Hdr[m.curCell]
				c.ValueLen = i - c.ValueStart
				m.State = HdrL1LF
				continue
			}
			i++
		case HdrL1LF:
			if b != '\n' {
				return i, m.parseErr(i)
			}
			c := &m.Hdr[m.curCell]
			c.Len = i - c.NameStart
			m.State = HdrFirst
			i++
		case LastLF:
			if b != '\n' {
				return i, m.parseErr(i)
			}
			i++
			m.State = Done
			return i, nil
		default:
			return i, nil
		}
	}
	return i, nil
}
