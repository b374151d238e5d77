// Package platform connects a Type-C port to the board: the VBUS enable
// outputs and the FUSB302 interrupt line.
package platform

import (
	"errors"
	"fmt"
	"time"

	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc/tcpcdriver"
)

// NotConnected marks a line that isn't wired.
const NotConnected = -1

var ErrNoLine = errors.New("platform: line not connected")

// Lines are the GPIO line numbers of a port.
type Lines struct {
	Interrupt  int
	VBus5V     int
	VBusLevel1 int
}

// Platform is a tcpcdriver.Platform that can be released.
type Platform interface {
	tcpcdriver.Platform
	Close() error
}

// output is a single digital output.
type output interface {
	set(on bool) error
}

// base implements the parts of tcpcdriver.Platform that don't depend on
// the GPIO backend.
type base struct {
	vbus [2]output
}

// Delay busy waits for d.
func (b *base) Delay(d time.Duration) {
	for end := time.Now().Add(d); time.Now().Before(end); {
	}
}

func (b *base) SetVBus(l tcpcdriver.VBusLevel, on bool) error {
	if int(l) >= len(b.vbus) {
		return fmt.Errorf("platform: vbus %s: %w", l, ErrNoLine)
	}
	o := b.vbus[l]
	if o == nil {
		// Turning off what isn't there always succeeds.
		if !on {
			return nil
		}
		return fmt.Errorf("platform: vbus %s: %w", l, ErrNoLine)
	}
	debug.TraceLog.Printf("platform: vbus %s %t", l, on)
	return o.set(on)
}

func (b *base) EnableTimer(on bool) {
	debug.TraceLog.Printf("platform: timer %t", on)
}

// None is a platform without GPIO lines. It can't source VBUS and relies
// on polling.
func None() Platform {
	return &none{}
}

type none struct {
	base
}

func (*none) Close() error {
	return nil
}
