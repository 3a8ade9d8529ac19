package wire

import (
	"io"
	"log/slog"
)

const readChunkSize = 32 * 1024

// Scanner reads typed events from an io.Reader. It is the lazy, ordered,
// single-use decoder for one connection: create a new Scanner for every
// connection attempt.
//
// Usage:
//
//	scanner := NewDaemonScanner(body, logger)
//	for scanner.Next() {
//	    event := scanner.Event()
//	    ...
//	}
//	if err := scanner.Err(); err != nil {
//	    ...
//	}
type Scanner[E any] struct {
	reader    io.Reader
	framer    Framer
	decode    func(Block) (E, bool)
	flushTail bool
	logger    *slog.Logger

	buf     []byte
	pending []string
	current E
	done    bool
	err     error
}

func newScanner[E any](r io.Reader, logger *slog.Logger, flushTail bool, decode func(Block) (E, bool)) *Scanner[E] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner[E]{
		reader:    r,
		decode:    decode,
		flushTail: flushTail,
		logger:    logger,
		buf:       make([]byte, readChunkSize),
	}
}

// Next advances to the next decoded event. It blocks on the underlying
// reader and returns false once the reader is exhausted or fails.
func (s *Scanner[E]) Next() bool {
	for {
		for len(s.pending) > 0 {
			text := s.pending[0]
			s.pending = s.pending[1:]
			block, ok := ParseBlock(text)
			if !ok {
				continue
			}
			if ev, ok := s.decode(block); ok {
				s.current = ev
				return true
			}
		}
		if s.done {
			return false
		}

		n, err := s.reader.Read(s.buf)
		if n > 0 {
			s.pending = append(s.pending, s.framer.Push(s.buf[:n])...)
		}
		if err != nil {
			s.done = true
			if err != io.EOF {
				// A tail cut off by a failed read is never decoded.
				s.err = err
				s.framer.Flush()
				continue
			}
			if tail, ok := s.framer.Flush(); ok && s.flushTail {
				s.pending = append(s.pending, tail)
			}
		}
	}
}

// Event returns the event decoded by the last successful call to Next.
func (s *Scanner[E]) Event() E {
	return s.current
}

// Err returns the read error that ended the stream, or nil on clean EOF.
func (s *Scanner[E]) Err() error {
	return s.err
}
