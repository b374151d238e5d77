package app

import (
	"context"
	"errors"
	"time"

	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc/tcsm"
)

// callTimeout bounds how long a request waits for the port goroutine.
const callTimeout = 500 * time.Millisecond

var ErrPortBusy = errors.New("port not responding")

// portHandle gives goroutines other than the port's own access to it by
// posting calls to it. It implements hostif.Target.
type portHandle struct {
	port *tcsm.Port
	// timeout overrides callTimeout if set
	timeout time.Duration
}

// call runs fn on the port goroutine and waits for it to finish. Queueing
// and running fn together take at most the call timeout.
func (h *portHandle) call(fn func(*tcsm.Port)) error {
	timeout := h.timeout
	if timeout == 0 {
		timeout = callTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan struct{})
	err := h.port.PostContext(ctx, func(p *tcsm.Port) {
		fn(p)
		close(done)
	})
	if err == nil {
		select {
		case <-done:
			return nil
		case <-ctx.Done():
		}
	}
	debug.WarningLog.Printf("port call: %v after %s", ErrPortBusy, timeout)
	return ErrPortBusy
}

func (h *portHandle) Snapshot() (s tcsm.Snapshot, err error) {
	var snap tcsm.Snapshot
	if err := h.call(func(p *tcsm.Port) { snap = p.Snapshot() }); err != nil {
		return s, err
	}
	return snap, nil
}

func (h *portHandle) TypeCStatus() ([4]byte, error) {
	var st [4]byte
	if err := h.call(func(p *tcsm.Port) { st = p.TypeCStatus() }); err != nil {
		return [4]byte{}, err
	}
	return st, nil
}

func (h *portHandle) ConfigurePortType(control uint8) error {
	var cerr error
	if err := h.call(func(p *tcsm.Port) { cerr = p.ConfigurePortType(control) }); err != nil {
		return err
	}
	return cerr
}

func (h *portHandle) SetAlternateModes(on bool) error {
	var cerr error
	if err := h.call(func(p *tcsm.Port) { cerr = p.SetAlternateModes(on) }); err != nil {
		return err
	}
	return cerr
}

// DumpStateLog doesn't go through the port goroutine, the log does its own
// locking.
func (h *portHandle) DumpStateLog(b []byte) []byte {
	return h.port.DumpStateLog(b)
}
