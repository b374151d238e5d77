package tcsm

import (
	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc"
)

// Host control byte layout.
const (
	ControlPortTypeMask = 0b11
	ControlAccessory    = 1 << 2
	ControlSrcPreferred = 1 << 3
	ControlCurrentShift = 4
	ControlCurrentMask  = 0b11 << ControlCurrentShift
	ControlSnkPreferred = 1 << 6
	ControlEnable       = 1 << 7
)

// applyControl takes the settings of the host control byte c and returns
// true if the connection has to be restarted for them to apply.
func (p *Port) applyControl(c uint8) (restart bool) {
	pt := typec.PortType(c & ControlPortTypeMask)
	if pt > typec.PortDRP {
		pt = typec.PortSink
	}
	acc := c&ControlAccessory != 0
	src := c&ControlSrcPreferred != 0
	snk := c&ControlSnkPreferred != 0
	restart = pt != p.portType || acc != p.accSupport || src != p.srcPreferred || snk != p.snkPreferred

	p.portType = pt
	p.accSupport = acc
	p.srcPreferred = src
	p.snkPreferred = snk
	p.sourceCurrent = typec.Current((c & ControlCurrentMask) >> ControlCurrentShift)
	// HOST_CUR 00 turns the pull-up current off, nothing could be detected.
	if p.sourceCurrent == typec.CurrentNone {
		p.sourceCurrent = typec.CurrentDefault
	}
	p.enabled = c&ControlEnable != 0
	return restart
}

// ConfigurePortType applies a host control byte:
//
//	bits 1:0  port type: 0 sink, 1 source, 2 DRP, 3 sink
//	bit  2    accessory support
//	bit  3    prefer source (DRP only)
//	bits 5:4  advertised current: 0 or 1 default, 2 1.5A, 3 3.0A
//	bit  6    prefer sink (DRP only)
//	bit  7    enable
//
// Changing the port type, accessory support or a preference restarts the
// connection through DelayUnattached. A new advertised current is applied
// right away. Clearing the enable bit puts the port in Disabled.
func (p *Port) ConfigurePortType(control uint8) error {
	defer p.deliverEvents()

	wasEnabled := p.enabled
	restart := p.applyControl(control)
	debug.DebugLog.Printf("tcsm: control 0x%02x: %s, accessories %t, enabled %t",
		control, p.portType, p.accSupport, p.enabled)

	if p.regs.Control0.HostCurrent() != p.sourceCurrent {
		p.regs.Control0 = p.regs.Control0.WithHostCurrent(p.sourceCurrent)
		if err := p.chip.WriteControl0(&p.regs); err != nil {
			return err
		}
	}
	switch {
	case !p.enabled:
		if wasEnabled {
			return p.enter(stateDisabled)
		}
	case restart, !wasEnabled:
		return p.enter(stateDelayUnattached)
	}
	return nil
}

// TypeCSMControl returns the host control byte of the current settings.
func (p *Port) TypeCSMControl() uint8 {
	c := uint8(p.portType) | uint8(p.sourceCurrent)<<ControlCurrentShift
	if p.accSupport {
		c |= ControlAccessory
	}
	if p.srcPreferred {
		c |= ControlSrcPreferred
	}
	if p.snkPreferred {
		c |= ControlSnkPreferred
	}
	if p.enabled {
		c |= ControlEnable
	}
	return c
}

// CCTermination returns the last raw readings of both pins, CC1 in the low
// nibble and CC2 in the high one.
func (p *Port) CCTermination() uint8 {
	return uint8(p.cc[0].previous&0x7) | uint8(p.cc[1].previous&0x7)<<4
}

// TypeCStatus returns the status block reported to hosts: the control byte,
// the connection state, the CC terminations and the sink current.
func (p *Port) TypeCStatus() [4]byte {
	return [4]byte{
		p.TypeCSMControl(),
		uint8(p.state.ID),
		p.CCTermination(),
		uint8(p.sinkCurrent),
	}
}

// AlternateModes returns true if the software toggling states are in use.
func (p *Port) AlternateModes() bool {
	return p.family == &alternateFamily
}

// SetAlternateModes selects the software toggling states instead of the
// hardware toggle block. A port waiting for a partner restarts with the new
// states.
func (p *Port) SetAlternateModes(on bool) error {
	if on == p.AlternateModes() {
		return nil
	}
	defer p.deliverEvents()
	p.family = &primaryFamily
	if on {
		p.family = &alternateFamily
	}
	switch p.state.ID {
	case typec.StateUnattached, typec.StateUnattachedSource:
		return p.enter(stateDelayUnattached)
	}
	return nil
}

// Snapshot is a copy of the observable port state.
type Snapshot struct {
	State          typec.ConnState
	PortType       typec.PortType
	Role           typec.Role
	CCPin          typec.CCPin
	CC1, CC2       typec.CCTerm
	SinkCurrent    typec.Current
	SourceCurrent  typec.Current
	Enabled        bool
	AlternateModes bool
}

// Snapshot returns the observable port state.
func (p *Port) Snapshot() Snapshot {
	return Snapshot{
		State:          p.state.ID,
		PortType:       p.portType,
		Role:           p.sourceOrSink,
		CCPin:          p.ccPin,
		CC1:            p.cc[0].previous,
		CC2:            p.cc[1].previous,
		SinkCurrent:    p.sinkCurrent,
		SourceCurrent:  p.sourceCurrent,
		Enabled:        p.enabled,
		AlternateModes: p.AlternateModes(),
	}
}

// DumpStateLog removes up to statelog.MaxDump entries from the state log
// and appends them to b in the host wire format.
func (p *Port) DumpStateLog(b []byte) []byte {
	return p.log.Dump(b)
}
