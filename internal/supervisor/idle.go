package supervisor

import (
	"io"
	"sync/atomic"
	"time"
)

// idleReader closes the wrapped stream when no bytes arrive within timeout.
// Every successful read pushes the deadline back.
type idleReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	fired   atomic.Bool
}

func newIdleReader(rc io.ReadCloser, timeout time.Duration, onExpire func()) *idleReader {
	ir := &idleReader{rc: rc, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.fired.Store(true)
		onExpire()
		rc.Close()
	})
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.rc.Read(p)
	if n > 0 && !ir.fired.Load() {
		ir.timer.Reset(ir.timeout)
	}
	return n, err
}

func (ir *idleReader) expired() bool {
	return ir.fired.Load()
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}
