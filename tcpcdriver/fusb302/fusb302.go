// Package fusb302 implements register access for the FUSB302 type-C port
// controller from ONSemi.
//
// The Device type only moves whole registers to and from the chip. Typed
// register values in this package name every bit the connection state
// machine touches, so callers never test raw bit masks.
package fusb302

import (
	"errors"
	"fmt"

	"github.com/oxplot/go-typec-cc/tcpcdriver"
)

// MPN represents the manufacturer part number
type MPN uint8

// I2CAddress returns the I2C address of the FUSB302.
func (m MPN) I2CAddress() uint8 {
	return uint8(m)
}

// Manufacturer part numbers
const (
	FUSB302BUCX   MPN = 0b100010
	FUSB302BMPX   MPN = 0b100010
	FUSB302VMPX   MPN = 0b100010
	FUSB302B01MPX MPN = 0b100011
	FUSB302B10MPX MPN = 0b100100
	FUSB302B11MPX MPN = 0b100101
)

// ParseMPN returns the part number for its name, e.g. "FUSB302BMPX".
func ParseMPN(s string) (MPN, error) {
	switch s {
	case "FUSB302BUCX":
		return FUSB302BUCX, nil
	case "FUSB302BMPX", "":
		return FUSB302BMPX, nil
	case "FUSB302VMPX":
		return FUSB302VMPX, nil
	case "FUSB302B01MPX":
		return FUSB302B01MPX, nil
	case "FUSB302B10MPX":
		return FUSB302B10MPX, nil
	case "FUSB302B11MPX":
		return FUSB302B11MPX, nil
	}
	return 0, fmt.Errorf("fusb302: unknown part number %q", s)
}

// maxBurst is the longest register burst the state machine needs (the
// status block).
const maxBurst = 8

// ErrBurstTooLong is returned when a single read or write spans more
// registers than the driver buffers.
var ErrBurstTooLong = errors.New("fusb302: register burst too long")

// Device represents an FUSB302 on an I2C bus.
type Device struct {
	port tcpcdriver.I2C
	addr uint16

	// Buffer used for tx and rx, defined once here instead to avoid heap
	// allocations in each method used.
	buf [maxBurst + 1]byte
}

// New creates a new device and allocates all necessary memory for all future
// operations.
//
// I2C port must have <=1Mhz frequency.
func New(port tcpcdriver.I2C, mpn MPN) *Device {
	return &Device{
		port: port,
		addr: uint16(mpn.I2CAddress()),
	}
}

// Write writes d to consecutive registers starting at r. The chip increments
// the register address after each byte.
func (f *Device) Write(r uint8, d []byte) error {
	if len(d) > maxBurst {
		return ErrBurstTooLong
	}
	f.buf[0] = r
	copy(f.buf[1:], d)
	if err := f.port.Tx(f.addr, f.buf[:len(d)+1], nil); err != nil {
		return fmt.Errorf("fusb302: write 0x%02x: %w", r, err)
	}
	return nil
}

// Read reads consecutive registers starting at r into d.
func (f *Device) Read(r uint8, d []byte) error {
	if len(d) > maxBurst {
		return ErrBurstTooLong
	}
	f.buf[0] = r
	if err := f.port.Tx(f.addr, f.buf[:1], f.buf[1:len(d)+1]); err != nil {
		return fmt.Errorf("fusb302: read 0x%02x: %w", r, err)
	}
	copy(d, f.buf[1:len(d)+1])
	return nil
}

func (f *Device) write(r uint8, d byte) error {
	f.buf[0] = r
	f.buf[1] = d
	if err := f.port.Tx(f.addr, f.buf[:2], nil); err != nil {
		return fmt.Errorf("fusb302: write 0x%02x: %w", r, err)
	}
	return nil
}

// Reset resets the chip and all its registers to their defaults.
func (f *Device) Reset() error {
	return f.write(RegReset, ResetSW)
}

// DeviceID returns the content of the device ID register: version in the
// upper nibble, product and revision in the lower.
func (f *Device) DeviceID() (uint8, error) {
	var b [1]byte
	err := f.Read(RegDeviceID, b[:])
	return b[0], err
}
