package tcsm

import (
	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
)

// toggleMode returns the hardware toggle mode for the port configuration. A
// sink that supports accessories has to look for Ra and Rd as well.
func (p *Port) toggleMode() fusb302.ToggleMode {
	switch {
	case p.portType == typec.PortSource:
		return fusb302.ToggleModeSrc
	case p.portType == typec.PortDRP, p.accSupport:
		return fusb302.ToggleModeDRP
	}
	return fusb302.ToggleModeSnk
}

// startToggle runs the hardware toggle block in mode m.
func (p *Port) startToggle(m fusb302.ToggleMode) error {
	p.regs.Control2 = p.regs.Control2.WithMode(m).WithToggle(true)
	return p.chip.WriteControl2(&p.regs)
}

// restartToggle restarts the hardware toggle block after an unexpected
// result.
func (p *Port) restartToggle() error {
	p.regs.Control2 = p.regs.Control2.WithToggle(false)
	if err := p.chip.WriteControl2(&p.regs); err != nil {
		return err
	}
	p.platform.Delay(settleDelay)
	return p.startToggle(p.regs.Control2.Mode())
}

// sourceAttach looks for a partner while presenting Rp on both pins.
func (p *Port) sourceAttach() *state {
	c1, c2 := p.cc[0].pd, p.cc[1].pd
	if c1 == typec.CCRa && c2 == typec.CCRa {
		p.ccPin = typec.CCNone
		return p.sourceDetected()
	}
	if pin := sinkPinOf(c1, c2); pin != typec.CCNone {
		p.ccPin = pin
		return p.sourceDetected()
	}
	return nil
}

// alternateAttach looks for a partner during one phase of the software
// toggle.
func (p *Port) alternateAttach() *state {
	c1, c2 := p.cc[0].pd, p.cc[1].pd
	switch r1, r2 := p.roleForCC1(), p.roleForCC2(); {
	case r1 == typec.RoleSink && r2 == typec.RoleSink:
		if pin, _ := sourcePinOf(c1, c2); pin != typec.CCNone {
			p.ccPin = pin
			return stateAttachWaitSink
		}
	case r1 == typec.RoleSource && r2 == typec.RoleSource:
		return p.sourceAttach()
	default:
		// Split probe: CC1 looks for accessories, CC2 for a source.
		if c1 == typec.CCRa || c1.IsRd() {
			p.ccPin = typec.CC1
			return stateAttachWaitAccessory
		}
		if c2.IsRd() && c1 == typec.CCOpen {
			p.ccPin = typec.CC2
			return stateAttachWaitSink
		}
	}
	return nil
}

// alternateSwap flips the software toggle to the other probing phase. An
// accessory capable sink probes with split roles instead of as a source.
func (p *Port) alternateSwap() error {
	role, split := typec.RoleSink, false
	sw := sinkProbe(typec.CC1)
	if p.sourceOrSink == typec.RoleSink {
		role = typec.RoleSource
		sw = sourceProbe(typec.CC1)
		if p.portType == typec.PortSink {
			split = true
			sw = sw.WithPullDown(typec.CC2, true)
		}
	}
	p.sourceOrSink, p.splitRoles = role, split
	p.resetDebounce()
	p.t.arm(timerDisabled, timerDisabled, timerDisabled, tDeviceToggle, tAlternateDRPSwap)
	p.regs.Switches0 = sw
	debug.TraceLog.Printf("tcsm: probing as %s, switches 0x%02x", role, uint8(sw))
	return p.chip.WriteSwitches0(&p.regs)
}

func initFamilies() {

	primaryFamily.unattached = &state{
		ID: typec.StateUnattached,
		Enter: func(p *Port) error {
			p.ccPin = typec.CCNone
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			err := p.apply(setup{
				role:     typec.RoleSink,
				switches: fusb302.Switches0(0).WithPullDown(typec.CC1, true).WithPullDown(typec.CC2, true),
				power:    fusb302.PowerDetect,
			})
			if err != nil {
				return err
			}
			if err := p.waitVSafe0V(); err != nil {
				return err
			}
			return p.startToggle(p.toggleMode())
		},
		Process: func(p *Port) (*state, error) {
			if !p.status.TogDone() {
				return nil, nil
			}
			switch p.status.TogSS() {
			case fusb302.TogSSSnkCC1:
				p.ccPin = typec.CC1
				return stateAttachWaitSink, nil
			case fusb302.TogSSSnkCC2:
				p.ccPin = typec.CC2
				return stateAttachWaitSink, nil
			case fusb302.TogSSSrcCC1:
				p.ccPin = typec.CC1
				return p.sourceDetected(), nil
			case fusb302.TogSSSrcCC2:
				p.ccPin = typec.CC2
				return p.sourceDetected(), nil
			case fusb302.TogSSAudio:
				p.ccPin = typec.CCNone
				return p.sourceDetected(), nil
			}
			debug.DebugLog.Printf("tcsm: unexpected toggle result %d", p.status.TogSS())
			return nil, p.restartToggle()
		},
	}

	primaryFamily.unattachedSource = &state{
		ID: typec.StateUnattachedSource,
		Enter: func(p *Port) error {
			p.ccPin = typec.CCNone
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, tDeviceToggle, tTOG2)
			return p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceProbe(typec.CC1),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if next := p.sourceAttach(); next != nil {
				return next, nil
			}
			if p.t.drpToggle.expired() {
				return stateDelayUnattached, nil
			}
			return nil, nil
		},
	}

	alternateFamily.unattached = &state{
		ID: typec.StateUnattached,
		Enter: func(p *Port) error {
			p.ccPin = typec.CCNone
			c := setup{
				role:     typec.RoleSink,
				switches: sinkProbe(typec.CC1),
				power:    fusb302.PowerDetect,
				timer:    true,
			}
			swap := timerDisabled
			switch {
			case p.portType == typec.PortSource:
				c.role = typec.RoleSource
				c.switches = sourceProbe(typec.CC1)
			case p.portType == typec.PortDRP, p.accSupport:
				swap = tAlternateDRPSwap
			}
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, tDeviceToggle, swap)
			if err := p.apply(c); err != nil {
				return err
			}
			return p.waitVSafe0V()
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if next := p.alternateAttach(); next != nil {
				return next, nil
			}
			if p.t.drpToggle.expired() {
				return nil, p.alternateSwap()
			}
			return nil, nil
		},
	}

	alternateFamily.unattachedSource = &state{
		ID: typec.StateUnattachedSource,
		Enter: func(p *Port) error {
			p.ccPin = typec.CCNone
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, tDeviceToggle, tAlternateDRPSwap)
			return p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceProbe(typec.CC1),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if next := p.sourceAttach(); next != nil {
				return next, nil
			}
			if p.t.drpToggle.expired() {
				return alternateFamily.unattached, nil
			}
			return nil, nil
		},
	}
}
