package tcsm

import "github.com/oxplot/go-typec-cc"

// termHistory holds the filter stages of one CC pin. A reading has to stay
// put for tPDDebounce to reach pd and for tCCDebounce to reach cc.
type termHistory struct {
	previous   typec.CCTerm // last raw reading
	pd         typec.CCTerm
	pdPrevious typec.CCTerm // pd as last seen by the cc stage
	cc         typec.CCTerm
}

func (p *Port) resetDebounce() {
	for i := range p.cc {
		p.cc[i] = termHistory{
			previous:   typec.CCUndefined,
			pd:         typec.CCUndefined,
			pdPrevious: typec.CCUndefined,
			cc:         typec.CCUndefined,
		}
	}
}

// term returns the history of pin. typec.CCNone maps to CC1.
func (p *Port) term(pin typec.CCPin) *termHistory {
	if pin == typec.CC2 {
		return &p.cc[1]
	}
	return &p.cc[0]
}

// debounceCC takes one reading of the measured pin and runs both filter
// stages. The measure block then moves to the other pin if the toggle timer
// has expired.
func (p *Port) debounceCC() error {
	if pin := p.regs.Switches0.Measured(); pin != typec.CCNone {
		cur, err := p.decode(pin)
		if err != nil {
			return err
		}
		h := p.term(pin)
		if h.previous != cur {
			h.previous = cur
			p.t.pdDebounce = tPDDebounce
			if p.t.overPDDebounce == timerDisabled {
				p.t.overPDDebounce = tPDDebounce
			}
		}
	}

	if p.t.pdDebounce.expired() {
		for i := range p.cc {
			p.cc[i].pd = p.cc[i].previous
		}
		p.t.pdDebounce = timerDisabled
		p.t.overPDDebounce = timerDisabled
	}

	// A reading that never settles still restarts the cc stage.
	if p.t.overPDDebounce.expired() {
		p.t.ccDebounce = tCCDebounce
	}

	if p.cc[0].pd != p.cc[0].pdPrevious || p.cc[1].pd != p.cc[1].pdPrevious {
		for i := range p.cc {
			p.cc[i].pdPrevious = p.cc[i].pd
			p.cc[i].cc = typec.CCUndefined
		}
		p.t.ccDebounce = tCCDebounce - tPDDebounce
	}

	if p.t.ccDebounce.expired() {
		for i := range p.cc {
			p.cc[i].cc = p.cc[i].pdPrevious
		}
		p.t.ccDebounce = timerDisabled
		p.t.overPDDebounce = timerDisabled
	}

	if p.t.toggle.expired() {
		if err := p.toggleMeasure(); err != nil {
			return err
		}
		p.t.toggle = tDeviceToggle
	}
	return nil
}

// toggleMeasure moves the measure block to the other pin. While probing as a
// source on a single pin the pull-up moves along, except in the split probe
// where each pin keeps its own role.
func (p *Port) toggleMeasure() error {
	from := p.regs.Switches0.Measured()
	to := typec.CC1
	if from == typec.CC1 {
		to = typec.CC2
	}
	sw := p.regs.Switches0.WithMeasure(to)
	if !p.splitRoles && sw.PullUp(from) && !sw.PullUp(to) {
		sw = sw.WithPullUp(from, false).WithPullUp(to, true)
	}
	p.regs.Switches0 = sw
	return p.chip.WriteSwitches0(&p.regs)
}
