package app

import (
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// openI2C opens the I2C bus by name, e.g. "1" for /dev/i2c-1, and sets its
// clock.
func openI2C(name string, hz int64) (i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	b, err := i2creg.Open(name)
	if err != nil {
		return nil, err
	}
	if hz > 0 {
		if err := b.SetSpeed(physic.Frequency(hz) * physic.Hertz); err != nil {
			_ = b.Close()
			return nil, err
		}
	}
	return b, nil
}
