package platform

import (
	"github.com/warthog618/gpiod"
	"github.com/womat/debug"
)

const consumer = "tcsmd"

// GPIOD is a platform on a GPIO character device.
type GPIOD struct {
	base
	chip  *gpiod.Chip
	lines []*gpiod.Line
}

type gpiodOutput struct {
	line *gpiod.Line
}

func (o gpiodOutput) set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return o.line.SetValue(v)
}

// OpenGPIOD requests the lines l on chip, e.g. gpiochip0. VBUS outputs start
// off. irq is called on every falling edge of the interrupt line.
func OpenGPIOD(chip string, l Lines, irq func()) (*GPIOD, error) {
	c, err := gpiod.NewChip(chip, gpiod.WithConsumer(consumer))
	if err != nil {
		return nil, err
	}
	g := &GPIOD{chip: c}

	for i, n := range []int{l.VBus5V, l.VBusLevel1} {
		if n == NotConnected {
			continue
		}
		line, err := c.RequestLine(n, gpiod.AsOutput(0))
		if err != nil {
			_ = g.Close()
			return nil, err
		}
		g.lines = append(g.lines, line)
		g.vbus[i] = gpiodOutput{line}
	}

	if l.Interrupt != NotConnected && irq != nil {
		handler := func(evt gpiod.LineEvent) {
			debug.TraceLog.Printf("platform: interrupt at %v", evt.Timestamp)
			irq()
		}
		line, err := c.RequestLine(l.Interrupt, gpiod.WithEventHandler(handler),
			gpiod.WithFallingEdge, gpiod.AsInput, gpiod.WithPullUp)
		if err != nil {
			_ = g.Close()
			return nil, err
		}
		g.lines = append(g.lines, line)
	}
	return g, nil
}

// Close turns VBUS off and releases the lines and the chip.
func (g *GPIOD) Close() error {
	for _, o := range g.vbus {
		if o != nil {
			_ = o.set(false)
		}
	}
	for _, l := range g.lines {
		_ = l.Close()
	}
	return g.chip.Close()
}
