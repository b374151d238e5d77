// Package tcpcdriver defines interfaces and helper functions for implementing
// USB Type-C port controller drivers.
package tcpcdriver

import (
	"time"

	"tinygo.org/x/drivers"
)

// I2C is the minimum interface to I2C hardware with a single Tx method which
// allows a single driver implementation to work across many different
// µControllers and host platforms. It is the TinyGo drivers interface, also
// satisfied by periph.io buses.
//
// Tx performs a write and then a read transfer placing the result in r.
// Passing a nil value for w or r skips the transfer corresponding to write or
// read, respectively.
type I2C = drivers.I2C

// VBusLevel selects one of the VBUS supplies a port can switch on.
type VBusLevel uint8

// VBUS supplies.
const (
	VBus5V VBusLevel = iota
	VBusLevel1
)

func (l VBusLevel) String() string {
	if l == VBusLevel1 {
		return "level1"
	}
	return "5V"
}

// Platform provides the board level capabilities a port controller state
// machine needs besides register access. Implementations must not block
// beyond what is asked of them.
type Platform interface {

	// Delay waits for at least d. It's used for analog settling times which
	// are in the tens to hundreds of microseconds, so implementations are
	// expected to busy wait rather than yield.
	Delay(d time.Duration)

	// SetVBus switches the VBUS supply at level l on or off.
	SetVBus(l VBusLevel, on bool) error

	// EnableTimer tells the platform whether the periodic tick is needed. It
	// is turned off while the hardware toggles on its own and nothing is
	// waiting on a timer.
	EnableTimer(on bool)
}
