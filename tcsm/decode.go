package tcsm

import (
	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
)

// decode classifies the termination on pin according to the role the port
// presents on it.
func (p *Port) decode(pin typec.CCPin) (typec.CCTerm, error) {
	if p.roleFor(pin) == typec.RoleSource {
		return p.decodeSource(pin)
	}
	return p.decodeSink()
}

// decodeSource classifies the partner's pull-down while our pull-up is on
// pin. The measure register is restored afterwards.
func (p *Port) decodeSource(pin typec.CCPin) (typec.CCTerm, error) {
	saved := p.regs.Measure
	term, err := p.compareSource(pin)
	p.regs.Measure = saved
	if werr := p.chip.WriteMeasure(&p.regs); err == nil {
		err = werr
	}
	return term, err
}

func (p *Port) compareSource(pin typec.CCPin) (typec.CCTerm, error) {
	above, err := p.compare(fusb302.NewMeasure(false, fusb302.MDAC2V05))
	if err != nil {
		return typec.CCUndefined, err
	}
	if above {
		return typec.CCOpen, nil
	}
	// Once attached the pin is known to carry Rd.
	if p.state.ID == typec.StateAttachedSource && pin == p.ccPin {
		return rdFor(p.sourceCurrent), nil
	}
	above, err = p.compare(fusb302.NewMeasure(false, raThreshold(p.sourceCurrent)))
	if err != nil {
		return typec.CCUndefined, err
	}
	if !above {
		return typec.CCRa, nil
	}
	return rdFor(p.sourceCurrent), nil
}

// decodeSink classifies the partner's pull-up from the BC_LVL comparators.
func (p *Port) decodeSink() (typec.CCTerm, error) {
	p.platform.Delay(settleDelay)
	if err := p.chip.ReadStatus0(&p.status); err != nil {
		return typec.CCUndefined, err
	}
	switch p.status.BCLevel() {
	case 1:
		return typec.CCRdUSB, nil
	case 2:
		return typec.CCRd1A5, nil
	case 3:
		return typec.CCRd3A0, nil
	}
	return typec.CCOpen, nil
}

// compare loads m into the measure block and returns the comparator output
// once settled. The caller restores the measure register.
func (p *Port) compare(m fusb302.Measure) (bool, error) {
	p.regs.Measure = m
	if err := p.chip.WriteMeasure(&p.regs); err != nil {
		return false, err
	}
	p.platform.Delay(settleDelay)
	if err := p.chip.ReadStatus0(&p.status); err != nil {
		return false, err
	}
	return p.status.Comp(), nil
}

// raThreshold returns the DAC code separating Ra from Rd for the pull-up
// current advertising cur.
func raThreshold(cur typec.Current) uint8 {
	switch cur {
	case typec.Current1A5:
		return fusb302.MDAC0V4
	case typec.Current3A0:
		return fusb302.MDAC0V8
	}
	return fusb302.MDAC0V2
}

// rdFor returns the Rd classification reported while advertising cur.
func rdFor(cur typec.Current) typec.CCTerm {
	switch cur {
	case typec.Current1A5:
		return typec.CCRd1A5
	case typec.Current3A0:
		return typec.CCRd3A0
	}
	return typec.CCRdUSB
}

// currentFor returns the current a source offers with the pull-up term.
func currentFor(term typec.CCTerm) typec.Current {
	switch term {
	case typec.CCRdUSB:
		return typec.CurrentDefault
	case typec.CCRd1A5:
		return typec.Current1A5
	case typec.CCRd3A0:
		return typec.Current3A0
	}
	return typec.CurrentNone
}
