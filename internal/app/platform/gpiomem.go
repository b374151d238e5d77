package platform

import (
	"github.com/warthog618/gpio"
)

// GPIOMem is a platform on the Raspberry Pi GPIO memory range. Line numbers
// are BCM GPIO numbers.
type GPIOMem struct {
	base
	irq *gpio.Pin
}

type memOutput struct {
	pin *gpio.Pin
}

func (o memOutput) set(on bool) error {
	if on {
		o.pin.High()
	} else {
		o.pin.Low()
	}
	return nil
}

// OpenGPIOMem maps /dev/gpiomem and sets up the lines l. VBUS outputs start
// off. irq is called on every falling edge of the interrupt line.
func OpenGPIOMem(l Lines, irq func()) (*GPIOMem, error) {
	if err := gpio.Open(); err != nil {
		return nil, err
	}
	g := &GPIOMem{}

	for i, n := range []int{l.VBus5V, l.VBusLevel1} {
		if n == NotConnected {
			continue
		}
		p := gpio.NewPin(n)
		p.Low()
		p.Output()
		g.vbus[i] = memOutput{p}
	}

	if l.Interrupt != NotConnected && irq != nil {
		g.irq = gpio.NewPin(l.Interrupt)
		g.irq.Input()
		g.irq.PullUp()
		if err := g.irq.Watch(gpio.EdgeFalling, func(*gpio.Pin) { irq() }); err != nil {
			_ = g.Close()
			return nil, err
		}
	}
	return g, nil
}

// Close turns VBUS off, removes the interrupt watch and unmaps the GPIO
// memory.
func (g *GPIOMem) Close() error {
	for _, o := range g.vbus {
		if o != nil {
			_ = o.set(false)
		}
	}
	if g.irq != nil {
		g.irq.Unwatch()
	}
	return gpio.Close()
}
