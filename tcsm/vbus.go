package tcsm

import (
	"time"

	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc/tcpcdriver"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
)

const (
	vSafe0VPolls     = 50
	vSafe0VPollDelay = time.Millisecond
)

// vbusAbove returns true if VBUS is above mv, as far as the measure DAC
// resolution allows.
func (p *Port) vbusAbove(mv uint16) (bool, error) {
	saved := p.regs.Measure
	above, err := p.compare(fusb302.NewMeasure(true, fusb302.VBusMDAC(mv)))
	p.regs.Measure = saved
	if werr := p.chip.WriteMeasure(&p.regs); err == nil {
		err = werr
	}
	return above, err
}

// vbusPresent returns true if a source is supplying VBUS. Before attaching
// VBUS has to reach the high threshold and once attached as sink it has to
// fall under the low one to count as gone.
func (p *Port) vbusPresent() (bool, error) {
	if p.state.ID == stateAttachedSink.ID {
		return p.vbusAbove(p.cfg.VBus.Low())
	}
	return p.vbusAbove(p.cfg.VBus.High)
}

// vSafe0V returns true if VBUS is below 0.8V.
func (p *Port) vSafe0V() (bool, error) {
	above, err := p.vbusAbove(fusb302.VBusMillivolts(fusb302.MDACVBus0V8))
	return !above, err
}

// waitVSafe0V polls until VBUS discharges to vSafe0V. It gives up after a
// bounded number of polls so a stuck VBUS can't hang the port.
func (p *Port) waitVSafe0V() error {
	for i := 0; i < vSafe0VPolls; i++ {
		ok, err := p.vSafe0V()
		if err != nil || ok {
			return err
		}
		p.platform.Delay(vSafe0VPollDelay)
	}
	debug.DebugLog.Printf("tcsm: VBUS above vSafe0V after %d polls", vSafe0VPolls)
	return nil
}

// setVBus switches our VBUS supply. Turning it off turns off every level.
func (p *Port) setVBus(on bool) error {
	if !on {
		if err := p.platform.SetVBus(tcpcdriver.VBusLevel1, false); err != nil {
			return err
		}
	}
	return p.platform.SetVBus(tcpcdriver.VBus5V, on)
}
