package tcsm

import (
	"errors"
	"testing"
	"time"

	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/tcpcdriver"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
)

var errBus = errors.New("bus stuck")

// fakeChip models the analog front end of an FUSB302 connected to a partner.
// The partner presents term (Open, Ra or Rd) and optionally a pull-up rp on
// each pin, and may supply VBUS.
type fakeChip struct {
	regs  fusb302.Registers
	masks [3]uint8

	term        [2]typec.CCTerm
	rp          [2]typec.Current
	partnerVBus uint16 // millivolts
	ownVBus     bool

	togPending bool
	togSS      fusb302.TogSS

	fail     error
	resets   int
	switches []fusb302.Switches0 // every SWITCHES0 value written
}

func newFakeChip() *fakeChip {
	return &fakeChip{term: [2]typec.CCTerm{typec.CCOpen, typec.CCOpen}}
}

func pinIndex(pin typec.CCPin) int {
	if pin == typec.CC2 {
		return 1
	}
	return 0
}

// attachSink connects a sink presenting Rd on pin, with a cable's Ra on the
// other pin if ra is set.
func (c *fakeChip) attachSink(pin typec.CCPin, ra bool) {
	c.term[pinIndex(pin)] = typec.CCRdUSB
	if ra {
		c.term[pinIndex(otherPin(pin))] = typec.CCRa
	}
}

// attachSource connects a source presenting cur on pin and supplying VBUS.
func (c *fakeChip) attachSource(pin typec.CCPin, cur typec.Current) {
	c.rp[pinIndex(pin)] = cur
	c.partnerVBus = 5000
}

func (c *fakeChip) detach() {
	c.term = [2]typec.CCTerm{typec.CCOpen, typec.CCOpen}
	c.rp = [2]typec.Current{}
	c.partnerVBus = 0
}

func (c *fakeChip) vbus() uint16 {
	if c.ownVBus && c.partnerVBus < 5000 {
		return 5000
	}
	return c.partnerVBus
}

func pullUpMicroamps(cur typec.Current) uint16 {
	switch cur {
	case typec.CurrentNone:
		return 0
	case typec.CurrentDefault:
		return 80
	case typec.Current1A5:
		return 180
	case typec.Current3A0:
		return 330
	}
	return 80
}

// ccMillivolts returns the voltage on pin given our switches and the
// partner's terminations.
func (c *fakeChip) ccMillivolts(pin typec.CCPin) uint16 {
	i := pinIndex(pin)
	sw := c.regs.Switches0
	switch {
	case sw.PullUp(pin):
		ua := pullUpMicroamps(c.regs.Control0.HostCurrent())
		switch {
		case c.term[i] == typec.CCRa:
			return ua
		case c.term[i].IsRd():
			return ua * 51 / 10
		}
		return 3300
	case sw.PullDown(pin):
		switch c.rp[i] {
		case typec.CurrentDefault:
			return 500
		case typec.Current1A5:
			return 900
		case typec.Current3A0:
			return 1600
		}
	}
	return 0
}

func (c *fakeChip) status0() uint8 {
	var s uint8
	if c.vbus() > 4000 {
		s |= 1 << 7
	}
	m := c.regs.Measure
	pin := c.regs.Switches0.Measured()
	var comp bool
	if m.VBus() {
		comp = c.vbus() > fusb302.VBusMillivolts(m.MDAC())
	} else if pin != typec.CCNone {
		comp = c.ccMillivolts(pin) > fusb302.CCMillivolts(m.MDAC())
	}
	if comp {
		s |= 1 << 5
	}
	if pin != typec.CCNone {
		switch v := c.ccMillivolts(pin); {
		case v >= 1230:
			s |= 3
		case v >= 660:
			s |= 2
		case v >= 200:
			s |= 1
		}
	}
	return s
}

// evalToggle emulates the hardware toggle block finding a partner.
func (c *fakeChip) evalToggle() {
	if !c.regs.Control2.Toggle() || c.togPending {
		return
	}
	mode := c.regs.Control2.Mode()
	snk := mode == fusb302.ToggleModeDRP || mode == fusb302.ToggleModeSnk
	src := mode == fusb302.ToggleModeDRP || mode == fusb302.ToggleModeSrc
	found := func(ss fusb302.TogSS) {
		c.togPending, c.togSS = true, ss
	}
	switch {
	case snk && c.rp[0] != typec.CurrentNone:
		found(fusb302.TogSSSnkCC1)
	case snk && c.rp[1] != typec.CurrentNone:
		found(fusb302.TogSSSnkCC2)
	case src && c.term[0] == typec.CCRa && c.term[1] == typec.CCRa:
		found(fusb302.TogSSAudio)
	case src && c.term[0].IsRd():
		found(fusb302.TogSSSrcCC1)
	case src && c.term[1].IsRd():
		found(fusb302.TogSSSrcCC2)
	}
}

func (c *fakeChip) Reset() error {
	if c.fail != nil {
		return c.fail
	}
	c.resets++
	c.regs = fusb302.Registers{}
	return nil
}

func (c *fakeChip) WriteSwitches(r *fusb302.Registers) error {
	if c.fail != nil {
		return c.fail
	}
	c.regs.Switches0, c.regs.Switches1 = r.Switches0, r.Switches1
	c.switches = append(c.switches, r.Switches0)
	return nil
}

func (c *fakeChip) WriteSwitches0(r *fusb302.Registers) error {
	if c.fail != nil {
		return c.fail
	}
	c.regs.Switches0 = r.Switches0
	c.switches = append(c.switches, r.Switches0)
	return nil
}

func (c *fakeChip) WriteMeasure(r *fusb302.Registers) error {
	if c.fail != nil {
		return c.fail
	}
	c.regs.Measure = r.Measure
	return nil
}

func (c *fakeChip) WriteControl0(r *fusb302.Registers) error {
	if c.fail != nil {
		return c.fail
	}
	c.regs.Control0 = r.Control0
	return nil
}

func (c *fakeChip) WriteControl2(r *fusb302.Registers) error {
	if c.fail != nil {
		return c.fail
	}
	c.regs.Control2 = r.Control2
	c.evalToggle()
	return nil
}

func (c *fakeChip) WritePower(r *fusb302.Registers) error {
	if c.fail != nil {
		return c.fail
	}
	c.regs.Power = r.Power
	return nil
}

func (c *fakeChip) WriteMasks(mask, maskA, maskB uint8) error {
	if c.fail != nil {
		return c.fail
	}
	c.masks = [3]uint8{mask, maskA, maskB}
	return nil
}

func (c *fakeChip) ReadStatus(s *fusb302.Status) error {
	if c.fail != nil {
		return c.fail
	}
	c.evalToggle()
	*s = fusb302.Status{
		Status1A: uint8(c.togSS) << 3,
		Status0:  c.status0(),
	}
	if c.togPending {
		s.InterruptA = 1 << 6
		c.togPending = false
	}
	return nil
}

func (c *fakeChip) ReadStatus0(s *fusb302.Status) error {
	if c.fail != nil {
		return c.fail
	}
	s.Status0 = c.status0()
	return nil
}

type fakePlatform struct {
	chip   *fakeChip
	vbus   [2]bool
	timer  bool
	delays time.Duration
}

func (p *fakePlatform) Delay(d time.Duration) {
	p.delays += d
}

func (p *fakePlatform) SetVBus(l tcpcdriver.VBusLevel, on bool) error {
	p.vbus[l] = on
	p.chip.ownVBus = p.vbus[tcpcdriver.VBus5V]
	return nil
}

func (p *fakePlatform) EnableTimer(on bool) {
	p.timer = on
}

type fakePE struct {
	role   typec.Role
	pin    typec.CCPin
	starts int
	stops  int
	steps  int
}

func (e *fakePE) Start(r typec.Role, pin typec.CCPin) {
	e.role, e.pin = r, pin
	e.starts++
}

func (e *fakePE) Stop() {
	e.stops++
}

func (e *fakePE) Step() {
	e.steps++
}

type fixture struct {
	t      *testing.T
	chip   *fakeChip
	plat   *fakePlatform
	pe     *fakePE
	port   *Port
	events []typec.Event
}

func newFixture(t *testing.T, control uint8, alternate bool) *fixture {
	t.Helper()
	f := &fixture{t: t, chip: newFakeChip(), pe: &fakePE{}}
	f.plat = &fakePlatform{chip: f.chip}
	f.port = New(f.chip, f.plat, Config{Control: control, AlternateModes: alternate, Seed: 1})
	f.port.SetPolicyEngine(f.pe)
	f.port.SetEventHandler(EventHandlerFunc(func(e typec.Event, _ typec.ConnState) {
		f.events = append(f.events, e)
	}))
	if err := f.port.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	return f
}

// step advances the clock by a millisecond and dispatches once.
func (f *fixture) step() {
	f.t.Helper()
	f.port.Advance(time.Millisecond)
	if err := f.port.Dispatch(); err != nil {
		f.t.Fatalf("dispatch in %s: %v", f.port.State(), err)
	}
}

func (f *fixture) run(d time.Duration) {
	f.t.Helper()
	for i := time.Duration(0); i < d; i += time.Millisecond {
		f.step()
	}
}

// waitFor steps until the port reaches s, failing if that takes longer than
// within.
func (f *fixture) waitFor(s typec.ConnState, within time.Duration) {
	f.t.Helper()
	for i := time.Duration(0); i < within; i += time.Millisecond {
		if f.port.State() == s {
			return
		}
		f.step()
	}
	if f.port.State() != s {
		f.t.Fatalf("in %s after %s, want %s", f.port.State(), within, s)
	}
}

func (f *fixture) hasEvent(e typec.Event) bool {
	for _, x := range f.events {
		if x == e {
			return true
		}
	}
	return false
}
