package tcsm

import (
	"time"

	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
)

// state represents a connection state.
type state struct {
	ID typec.ConnState

	// Enter configures the chip for the state and arms its timers. The port
	// has already reset the debounce history and stopped the power delivery
	// layer when Enter is called. A returned error moves the port to
	// ErrorRecovery.
	Enter func(*Port) error

	// Process is called on every dispatch pass while the port is in this
	// state. It returns the next state, or nil to stay.
	Process func(*Port) (next *state, err error)
}

// family holds the unattached states of a toggling strategy. The primary
// family leaves the toggling to the chip, the alternate one drives it from
// software.
type family struct {
	unattached       *state
	unattachedSource *state
}

var (
	stateDisabled             *state
	stateErrorRecovery        *state
	stateDelayUnattached      *state
	stateAttachWaitSink       *state
	stateAttachedSink         *state
	stateAttachWaitSource     *state
	stateAttachedSource       *state
	stateAttachWaitAccessory  *state
	stateAudioAccessory       *state
	stateDebugAccessory       *state
	statePoweredAccessory     *state
	stateUnsupportedAccessory *state
	stateTrySource            *state
	stateTryWaitSink          *state
	stateTrySink              *state
	stateTryWaitSource        *state

	primaryFamily   family
	alternateFamily family
)

// setup is what a state entry drives on the chip and the platform.
type setup struct {
	role     typec.Role
	split    bool // CC2 presents the opposite role
	switches fusb302.Switches0
	tx       typec.CCPin // BMC transmitter pin, if any
	power    fusb302.Power
	vbus     bool
	timer    bool // periodic tick needed
}

// apply stops the hardware toggle and drives c. VBUS goes off before the
// switches change and on after.
func (p *Port) apply(c setup) error {
	p.sourceOrSink = c.role
	p.splitRoles = c.split
	p.setTimer(c.timer)
	if !c.vbus {
		if err := p.setVBus(false); err != nil {
			return err
		}
	}
	p.regs.Control2 = p.regs.Control2.WithToggle(false)
	if err := p.chip.WriteControl2(&p.regs); err != nil {
		return err
	}
	p.regs.Switches0 = c.switches
	p.regs.Switches1 = fusb302.NewSwitches1(c.tx, c.role)
	if err := p.chip.WriteSwitches(&p.regs); err != nil {
		return err
	}
	p.regs.Control0 = p.regs.Control0.WithHostCurrent(p.sourceCurrent)
	if err := p.chip.WriteControl0(&p.regs); err != nil {
		return err
	}
	p.regs.Power = c.power
	if err := p.chip.WritePower(&p.regs); err != nil {
		return err
	}
	if c.vbus {
		return p.setVBus(true)
	}
	return nil
}

// setState leaves the current state and enters s.
func (p *Port) setState(s *state) error {
	prev := p.state
	p.state = s
	p.stopPD()
	p.resetDebounce()
	if s != stateAttachedSink {
		p.updateSinkCurrent(typec.CurrentNone)
	}
	err := s.Enter(p)

	p.log.Add(uint16(s.ID), time.Duration(p.elapsed)*TickPeriod)
	debug.TraceLog.Printf("tcsm: %s -> %s", prev.ID, s.ID)
	p.events.Add(typec.EventStateChange)
	if connected(prev.ID) && !connected(s.ID) {
		debug.InfoLog.Printf("tcsm: detached from %s", prev.ID)
		p.events.Add(typec.EventDetached)
	}
	if err != nil {
		return err
	}
	switch s.ID {
	case typec.StateAttachedSink:
		debug.InfoLog.Printf("tcsm: attached as sink on %s, %s", p.ccPin, p.sinkCurrent)
		p.events.Add(typec.EventAttachedSink)
	case typec.StateAttachedSource:
		debug.InfoLog.Printf("tcsm: attached as source on %s", p.ccPin)
		p.events.Add(typec.EventAttachedSource)
	case typec.StateAudioAccessory, typec.StateDebugAccessory,
		typec.StatePoweredAccessory, typec.StateUnsupportedAccessory:
		debug.InfoLog.Printf("tcsm: %s on %s", s.ID, p.ccPin)
		p.events.Add(typec.EventAccessory)
	}
	return nil
}

// connected returns true for states with a partner attached.
func connected(s typec.ConnState) bool {
	switch s {
	case typec.StateAttachedSink, typec.StateAttachedSource,
		typec.StateAudioAccessory, typec.StateDebugAccessory,
		typec.StatePoweredAccessory, typec.StateUnsupportedAccessory:
		return true
	}
	return false
}

func (p *Port) updateSinkCurrent(c typec.Current) {
	if c == p.sinkCurrent {
		return
	}
	p.sinkCurrent = c
	p.events.Add(typec.EventSinkCurrent)
}

func (p *Port) startPD(r typec.Role) {
	if p.pe == nil {
		return
	}
	p.pe.Start(r, p.ccPin)
	p.pdActive = true
}

func (p *Port) stopPD() {
	if !p.pdActive {
		return
	}
	p.pe.Stop()
	p.pdActive = false
}

func pinOrCC1(pin typec.CCPin) typec.CCPin {
	if pin == typec.CCNone {
		return typec.CC1
	}
	return pin
}

func otherPin(pin typec.CCPin) typec.CCPin {
	if pin == typec.CC2 {
		return typec.CC1
	}
	return typec.CC2
}

// sinkProbe presents Rd on both pins and measures pin.
func sinkProbe(pin typec.CCPin) fusb302.Switches0 {
	return fusb302.Switches0(0).
		WithPullDown(typec.CC1, true).
		WithPullDown(typec.CC2, true).
		WithMeasure(pinOrCC1(pin))
}

// sourceProbe presents Rp on pin and measures it.
func sourceProbe(pin typec.CCPin) fusb302.Switches0 {
	pin = pinOrCC1(pin)
	return fusb302.Switches0(0).WithPullUp(pin, true).WithMeasure(pin)
}

// sourceConnected presents Rp on pin and VCONN on the other one.
func sourceConnected(pin typec.CCPin) fusb302.Switches0 {
	return sourceProbe(pin).WithVConn(otherPin(pinOrCC1(pin)))
}

// sinkPinOf returns the pin with a sink's Rd while the other one is open or
// carries a cable's Ra.
func sinkPinOf(c1, c2 typec.CCTerm) typec.CCPin {
	switch {
	case c1.IsRd() && (c2 == typec.CCOpen || c2 == typec.CCRa):
		return typec.CC1
	case c2.IsRd() && (c1 == typec.CCOpen || c1 == typec.CCRa):
		return typec.CC2
	}
	return typec.CCNone
}

// sourcePinOf returns the pin with a source's Rp while the other one is
// open, along with the Rp seen.
func sourcePinOf(c1, c2 typec.CCTerm) (typec.CCPin, typec.CCTerm) {
	switch {
	case c1.IsRd() && c2 == typec.CCOpen:
		return typec.CC1, c1
	case c2.IsRd() && c1 == typec.CCOpen:
		return typec.CC2, c2
	}
	return typec.CCNone, typec.CCUndefined
}

func (p *Port) bothPD(t typec.CCTerm) bool {
	return p.cc[0].pd == t && p.cc[1].pd == t
}

func (p *Port) isDRP() bool {
	return p.portType == typec.PortDRP
}

// sourceDetected picks the state probing a partner found while presenting
// Rp. A sink that supports accessories can only be attached to as an
// accessory.
func (p *Port) sourceDetected() *state {
	if p.portType == typec.PortSink && p.accSupport {
		return stateAttachWaitAccessory
	}
	return stateAttachWaitSource
}

// accessoryDetached returns where an accessory connection goes once the
// monitored pin opens.
func (p *Port) accessoryDetached() *state {
	if p.portType == typec.PortSource {
		return p.family.unattachedSource
	}
	return stateDelayUnattached
}

// attachSink moves to AttachedSink on pin once VBUS is present.
func (p *Port) attachSink(pin typec.CCPin, rp typec.CCTerm, next *state) (*state, error) {
	ok, err := p.vbusPresent()
	if err != nil || !ok {
		return nil, err
	}
	p.ccPin = pin
	if next == stateAttachedSink {
		p.updateSinkCurrent(currentFor(rp))
	}
	return next, nil
}

// attachSource moves to next on pin once VBUS has discharged.
func (p *Port) attachSource(pin typec.CCPin, next *state) (*state, error) {
	ok, err := p.vSafe0V()
	if err != nil || !ok {
		return nil, err
	}
	p.ccPin = pin
	return next, nil
}

// delayJitter spreads the restarts of ports stuck detecting each other.
func (p *Port) delayJitter() timer {
	return timer(p.rnd.Intn(64))
}

func init() {

	// Initializing is done here to avoid circular references between states
	// which are not allowed at the package level variable assignments.

	stateDisabled = &state{
		ID: typec.StateDisabled,
		Enter: func(p *Port) error {
			p.ccPin = typec.CCNone
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			return p.apply(setup{power: fusb302.PowerBandgap})
		},
		Process: func(p *Port) (*state, error) {
			return nil, nil
		},
	}

	stateErrorRecovery = &state{
		ID: typec.StateErrorRecovery,
		Enter: func(p *Port) error {
			p.ccPin = typec.CCNone
			p.t.arm(tErrorRecovery, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			return p.apply(setup{power: fusb302.PowerBandgap, timer: true})
		},
		Process: func(p *Port) (*state, error) {
			if p.t.state.expired() {
				return stateDelayUnattached, nil
			}
			return nil, nil
		},
	}

	stateDelayUnattached = &state{
		ID: typec.StateDelayUnattached,
		Enter: func(p *Port) error {
			p.ccPin = typec.CCNone
			p.t.arm(p.delayJitter(), timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			return p.apply(setup{power: fusb302.PowerDetect, timer: true})
		},
		Process: func(p *Port) (*state, error) {
			if p.t.state.expired() {
				return p.family.unattached, nil
			}
			return nil, nil
		},
	}

	stateAttachWaitSink = &state{
		ID: typec.StateAttachWaitSink,
		Enter: func(p *Port) error {
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, tDeviceToggle, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSink,
				switches: sinkProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if p.bothPD(typec.CCOpen) {
				if p.isDRP() {
					return p.family.unattachedSource, nil
				}
				return stateDelayUnattached, nil
			}
			pin, rp := sourcePinOf(p.cc[0].cc, p.cc[1].cc)
			if pin == typec.CCNone {
				return nil, nil
			}
			if p.isDRP() && p.srcPreferred {
				return p.attachSink(pin, rp, stateTrySource)
			}
			return p.attachSink(pin, rp, stateAttachedSink)
		},
	}

	stateAttachedSink = &state{
		ID: typec.StateAttachedSink,
		Enter: func(p *Port) error {
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			err := p.apply(setup{
				role:     typec.RoleSink,
				switches: sinkProbe(p.ccPin),
				tx:       p.ccPin,
				power:    fusb302.PowerAll,
				timer:    true,
			})
			if err != nil {
				return err
			}
			p.startPD(typec.RoleSink)
			return nil
		},
		Process: func(p *Port) (*state, error) {
			if !p.t.prSwap.running() {
				ok, err := p.vbusPresent()
				if err != nil {
					return nil, err
				}
				if !ok {
					return stateDelayUnattached, nil
				}
			}
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if t := p.term(p.ccPin).cc; t != typec.CCUndefined {
				p.updateSinkCurrent(currentFor(t))
			}
			return nil, nil
		},
	}

	stateAttachWaitSource = &state{
		ID: typec.StateAttachWaitSource,
		Enter: func(p *Port) error {
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, tDeviceToggle, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			c1, c2 := p.cc[0].cc, p.cc[1].cc
			if p.accSupport {
				switch {
				case c1 == typec.CCRa && c2 == typec.CCRa:
					return stateAudioAccessory, nil
				case c1.IsRd() && c2.IsRd():
					return stateDebugAccessory, nil
				}
			}
			if pin := sinkPinOf(c1, c2); pin != typec.CCNone {
				if p.isDRP() && p.snkPreferred {
					return p.attachSource(pin, stateTrySink)
				}
				return p.attachSource(pin, stateAttachedSource)
			}
			d1, d2 := p.cc[0].pd, p.cc[1].pd
			switch {
			case d1 == typec.CCOpen && (d2 == typec.CCOpen || d2 == typec.CCRa),
				d2 == typec.CCOpen && d1 == typec.CCRa,
				d1 == typec.CCRa && d2 == typec.CCRa && !p.accSupport:
				return stateDelayUnattached, nil
			}
			return nil, nil
		},
	}

	stateAttachedSource = &state{
		ID: typec.StateAttachedSource,
		Enter: func(p *Port) error {
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			err := p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceConnected(p.ccPin),
				tx:       p.ccPin,
				power:    fusb302.PowerAll,
				vbus:     true,
				timer:    true,
			})
			if err != nil {
				return err
			}
			p.startPD(typec.RoleSource)
			return nil
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if p.term(p.ccPin).pd == typec.CCOpen && !p.t.prSwap.running() {
				if p.isDRP() && p.srcPreferred {
					return stateTryWaitSink, nil
				}
				return stateDelayUnattached, nil
			}
			return nil, nil
		},
	}

	stateTrySource = &state{
		ID: typec.StateTrySource,
		Enter: func(p *Port) error {
			p.t.arm(tDRPTry, timerDisabled, timerDisabled, tDeviceToggle, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if pin := sinkPinOf(p.cc[0].pd, p.cc[1].pd); pin != typec.CCNone {
				p.ccPin = pin
				return stateAttachedSource, nil
			}
			if p.t.state.expired() {
				return stateTryWaitSink, nil
			}
			return nil, nil
		},
	}

	stateTryWaitSink = &state{
		ID: typec.StateTryWaitSink,
		Enter: func(p *Port) error {
			p.t.arm(tDRPTryWait, timerDisabled, timerDisabled, tDeviceToggle, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSink,
				switches: sinkProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if p.t.state.expired() && p.bothPD(typec.CCOpen) {
				return stateDelayUnattached, nil
			}
			if pin, rp := sourcePinOf(p.cc[0].cc, p.cc[1].cc); pin != typec.CCNone {
				return p.attachSink(pin, rp, stateAttachedSink)
			}
			return nil, nil
		},
	}

	stateTrySink = &state{
		ID: typec.StateTrySink,
		Enter: func(p *Port) error {
			p.t.arm(tDRPTry, timerDisabled, timerDisabled, tDeviceToggle, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSink,
				switches: sinkProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if pin, rp := sourcePinOf(p.cc[0].cc, p.cc[1].cc); pin != typec.CCNone {
				return p.attachSink(pin, rp, stateAttachedSink)
			}
			if p.t.state.expired() && p.bothPD(typec.CCOpen) {
				return stateTryWaitSource, nil
			}
			return nil, nil
		},
	}

	stateTryWaitSource = &state{
		ID: typec.StateTryWaitSource,
		Enter: func(p *Port) error {
			p.t.arm(tDRPTry, timerDisabled, timerDisabled, tDeviceToggle, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			if pin := sinkPinOf(p.cc[0].pd, p.cc[1].pd); pin != typec.CCNone {
				return p.attachSource(pin, stateAttachedSource)
			}
			if p.t.state.expired() && p.bothPD(typec.CCOpen) {
				return stateDelayUnattached, nil
			}
			return nil, nil
		},
	}

	stateAttachWaitAccessory = &state{
		ID: typec.StateAttachWaitAccessory,
		Enter: func(p *Port) error {
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, tDeviceToggle, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: func(p *Port) (*state, error) {
			if err := p.debounceCC(); err != nil {
				return nil, err
			}
			c1, c2 := p.cc[0].cc, p.cc[1].cc
			switch {
			case c1 == typec.CCUndefined || c2 == typec.CCUndefined:
				return nil, nil
			case c1 == typec.CCRa && c2 == typec.CCRa:
				return stateAudioAccessory, nil
			case c1.IsRd() && c2.IsRd():
				return stateDebugAccessory, nil
			case c1 == typec.CCOpen || c2 == typec.CCOpen:
				return stateDelayUnattached, nil
			case c1.IsRd():
				p.ccPin = typec.CC1
			default:
				p.ccPin = typec.CC2
			}
			return statePoweredAccessory, nil
		},
	}

	// Audio and debug accessories are watched on CC1 only.
	enterPassiveAccessory := func(p *Port) error {
		p.ccPin = typec.CC1
		p.t.arm(timerDisabled, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
		return p.apply(setup{
			role:     typec.RoleSource,
			switches: sourceProbe(typec.CC1),
			power:    fusb302.PowerDetect,
			timer:    true,
		})
	}
	processAccessory := func(p *Port) (*state, error) {
		if err := p.debounceCC(); err != nil {
			return nil, err
		}
		if p.term(p.ccPin).cc == typec.CCOpen {
			return p.accessoryDetached(), nil
		}
		return nil, nil
	}

	stateAudioAccessory = &state{
		ID:      typec.StateAudioAccessory,
		Enter:   enterPassiveAccessory,
		Process: processAccessory,
	}

	stateDebugAccessory = &state{
		ID:      typec.StateDebugAccessory,
		Enter:   enterPassiveAccessory,
		Process: processAccessory,
	}

	statePoweredAccessory = &state{
		ID: typec.StatePoweredAccessory,
		Enter: func(p *Port) error {
			p.modeEntered = false
			p.t.arm(tAMETimeout, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			err := p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceConnected(p.ccPin),
				tx:       p.ccPin,
				power:    fusb302.PowerAll,
				timer:    true,
			})
			if err != nil {
				return err
			}
			p.startPD(typec.RoleSource)
			return nil
		},
		Process: func(p *Port) (*state, error) {
			next, err := processAccessory(p)
			if next != nil || err != nil {
				return next, err
			}
			if p.t.state.expired() {
				p.t.state = timerDisabled
				if !p.modeEntered {
					return stateUnsupportedAccessory, nil
				}
			}
			return nil, nil
		},
	}

	stateUnsupportedAccessory = &state{
		ID: typec.StateUnsupportedAccessory,
		Enter: func(p *Port) error {
			p.t.arm(timerDisabled, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
			return p.apply(setup{
				role:     typec.RoleSource,
				switches: sourceProbe(p.ccPin),
				power:    fusb302.PowerDetect,
				timer:    true,
			})
		},
		Process: processAccessory,
	}

	initFamilies()
}
