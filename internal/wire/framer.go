// Package wire decodes the line-oriented event-stream format spoken by the
// daemon. A stream is a sequence of blocks terminated by a blank line; each
// block carries an optional "event:" label and a "data:" payload.
//
// Two vocabularies share the block format: the message-generation stream
// returned while a reply is produced, and the daemon's global event stream.
package wire

import (
	"bytes"
	"strings"
)

var blockSep = []byte("\n\n")

// Block is one parsed event block before vocabulary-specific decoding.
type Block struct {
	Event    string
	Data     string
	HasEvent bool
}

// Framer splits an arbitrarily chunked byte stream into complete blocks.
// The zero value is ready to use.
type Framer struct {
	buf []byte
}

// Push appends chunk to the buffer and returns the text of every block that
// is now complete, in wire order. Incomplete trailing data is retained.
func (f *Framer) Push(chunk []byte) []string {
	f.buf = append(f.buf, chunk...)

	var blocks []string
	start := 0
	for {
		i := bytes.Index(f.buf[start:], blockSep)
		if i < 0 {
			break
		}
		blocks = append(blocks, string(f.buf[start:start+i]))
		start += i + len(blockSep)
	}
	if start > 0 {
		n := copy(f.buf, f.buf[start:])
		f.buf = f.buf[:n]
	}
	return blocks
}

// Flush returns and clears whatever partial block remains buffered.
func (f *Framer) Flush() (string, bool) {
	if len(f.buf) == 0 {
		return "", false
	}
	text := string(f.buf)
	f.buf = f.buf[:0]
	return text, true
}

// Buffered reports the number of bytes waiting for a block terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// ParseBlock extracts the label and payload from one block. Both are
// trimmed. When several lines of the same kind appear the last one wins.
// A block without a data line yields ok == false.
func ParseBlock(text string) (b Block, ok bool) {
	hasData := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if v, found := strings.CutPrefix(line, "event:"); found {
			b.Event = strings.TrimSpace(v)
			b.HasEvent = true
		} else if v, found := strings.CutPrefix(line, "data:"); found {
			b.Data = strings.TrimSpace(v)
			hasData = true
		}
	}
	return b, hasData
}
