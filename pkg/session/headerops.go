/*
 * MIT License
 *
 * Copyright (c) 2024 The rproxy Authors
 */

package session

import (
	"github.com/corelb/rproxy/pkg/acl"
	"github.com/corelb/rproxy/pkg/buffer"
	"github.com/corelb/rproxy/pkg/httpmsg"
)

// applyHeaderOps performs the header-section edits an HTTP_PROCESS_FE/BE
// rule pass queued (spec.md §4.7 "set-header removes all existing
// occurrences... then appends one synthesised value"). It realigns buf
// first, since InsertLine/Replace require p==0; while output is pending
// the realigned head is not at 0, those calls fail and the edits are
// skipped. It keeps msg's
// end-of-headers bookkeeping (Eoh/Sov/Next) in sync with every edit's
// delta so body framing downstream stays correct.
func applyHeaderOps(buf *buffer.Buffer, msg *httpmsg.Message, ops []acl.HeaderOp) {
	if len(ops) == 0 {
		return
	}

	buf.SlowRealign()

	for _, op := range ops {
		if op.Kind == acl.HeaderSet {
			removeHeaderLines(buf, msg, op.Name)
		}
		insertHeaderLine(buf, msg, op.Name, op.Value)
	}
}

// removeHeaderLines deletes every header line named name, processing
// matches from last to first so earlier cells' cached offsets stay valid
// while later ones are being spliced out.
func removeHeaderLines(buf *buffer.Buffer, msg *httpmsg.Message, name string) {
	view := buf.PeekInput(0, buf.Input())
	cells := msg.HeaderCells(view, name)

	for i := len(cells) - 1; i >= 0; i-- {
		c := msg.Hdr[cells[i]]
		d, err := buf.Replace(c.NameStart, c.NameStart+c.Len, nil)
		if err != nil {
			continue
		}
		msg.Eoh += d
		msg.Sov += d
		msg.Next += d
	}
}

// insertHeaderLine splices one "Name: Value\r\n" line in just before the
// header section's closing blank line.
func insertHeaderLine(buf *buffer.Buffer, msg *httpmsg.Message, name, value string) {
	line := []byte(name + ": " + value + "\r\n")
	at := msg.Eoh - 2

	d, err := buf.InsertLine(at, line)
	if err != nil {
		return
	}
	msg.Eoh += d
	msg.Sov += d
	msg.Next += d
}
