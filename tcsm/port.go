// Package tcsm implements the USB Type-C connection state machine of an
// FUSB302 port: CC termination decoding, two-stage debouncing, attach and
// detach detection, source/sink role arbitration, dual role toggling and
// accessory classification.
//
// A Port is owned by a single goroutine. Tick must be called every
// TickPeriod and Dispatch either periodically or when the chip interrupts.
// Run does both and lets other goroutines reach the port through Post.
package tcsm

import (
	"context"
	"math/rand"
	"time"

	"github.com/womat/debug"

	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/statelog"
	"github.com/oxplot/go-typec-cc/tcpcdriver"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
)

// Chip is the register access the state machine needs from the port
// controller. It's implemented by *fusb302.Device.
type Chip interface {
	Reset() error
	WriteSwitches(*fusb302.Registers) error
	WriteSwitches0(*fusb302.Registers) error
	WriteMeasure(*fusb302.Registers) error
	WriteControl0(*fusb302.Registers) error
	WriteControl2(*fusb302.Registers) error
	WritePower(*fusb302.Registers) error
	WriteMasks(mask, maskA, maskB uint8) error
	ReadStatus(*fusb302.Status) error
	ReadStatus0(*fusb302.Status) error
}

// PolicyEngine is the USB Power Delivery layer that runs on top of an
// established connection. The port starts it on attach, steps it once per
// dispatch while attached and stops it on detach.
type PolicyEngine interface {
	Start(r typec.Role, pin typec.CCPin)
	Stop()
	Step()
}

// EventHandler is an interface that wraps the method HandleEvent.
type EventHandler interface {
	// HandleEvent is called after each dispatch pass for every event the pass
	// raised, with the state the port is in afterwards.
	HandleEvent(typec.Event, typec.ConnState)
}

// EventHandlerFunc is an adapter to allow the use of ordinary functions as
// EventHandler.
type EventHandlerFunc func(typec.Event, typec.ConnState)

// HandleEvent implements EventHandler interface.
func (f EventHandlerFunc) HandleEvent(e typec.Event, s typec.ConnState) {
	f(e, s)
}

// Config holds the settings a port starts with.
type Config struct {

	// Control is the initial host control byte, usually derived from board
	// strap bits. See ConfigurePortType for the layout.
	Control uint8

	// AlternateModes selects the software toggling state family instead of
	// the hardware toggle block for the unattached states.
	AlternateModes bool

	// InterruptTriggered makes Dispatch process back to back transitions until
	// the machine is idle, and makes Run sleep while no timer is needed.
	InterruptTriggered bool

	// VBus is the threshold pair, in millivolts, used to decide that VBUS is
	// present when attaching as sink and gone when attached. Zero values get
	// DefaultVBus.
	VBus Hysteresis

	// Seed seeds the jitter of DelayUnattached. Zero seeds from the clock.
	Seed int64
}

// DefaultVBus detaches a sink when VBUS drops under 3.8V.
var DefaultVBus = Hysteresis{High: 4000, DownDiff: 200}

const (
	// settleDelay is the analog settling time before every comparator read.
	settleDelay = 25 * time.Microsecond

	// maxPasses bounds the passes of one interrupt triggered dispatch.
	maxPasses = 8

	callQueueSize = 8
)

// Port is the connection state machine of one Type-C port.
type Port struct {
	chip     Chip
	platform tcpcdriver.Platform
	cfg      Config

	regs   fusb302.Registers // mirror of the configuration registers
	status fusb302.Status    // last status burst

	state  *state
	family *family

	enabled       bool
	portType      typec.PortType
	accSupport    bool
	srcPreferred  bool
	snkPreferred  bool
	sourceCurrent typec.Current // advertised when source
	sinkCurrent   typec.Current // offered by the partner when sink

	// sourceOrSink is the role presented on the CC pins. While splitRoles is
	// set it's only CC1's role and CC2 presents the opposite one. Read it
	// through roleForCC1 and roleForCC2.
	sourceOrSink typec.Role
	splitRoles   bool
	ccPin        typec.CCPin // orientation once known

	cc [2]termHistory // CC1, CC2
	t  timers

	pe          PolicyEngine
	pdActive    bool
	modeEntered bool

	elapsed  uint32        // ticks since New, for log time stamps
	residual time.Duration // part of a tick not yet accounted by Advance
	timerOn  bool

	log     *statelog.Log
	events  typec.Event
	handler EventHandler
	rnd     *rand.Rand

	calls chan func(*Port)
	irq   chan struct{}
}

// New creates a port on chip. Init must be called before anything else.
func New(chip Chip, platform tcpcdriver.Platform, cfg Config) *Port {
	if cfg.VBus == (Hysteresis{}) {
		cfg.VBus = DefaultVBus
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	p := &Port{
		chip:     chip,
		platform: platform,
		cfg:      cfg,
		log:      statelog.New(),
		rnd:      rand.New(rand.NewSource(seed)),
		calls:    make(chan func(*Port), callQueueSize),
		irq:      make(chan struct{}, 1),
	}
	p.family = &primaryFamily
	if cfg.AlternateModes {
		p.family = &alternateFamily
	}
	p.applyControl(cfg.Control)
	p.state = stateDisabled
	p.t.arm(timerDisabled, timerDisabled, timerDisabled, timerDisabled, timerDisabled)
	p.t.prSwap = timerDisabled
	p.resetDebounce()
	return p
}

// SetPolicyEngine sets the power delivery layer driven while attached. Pass
// nil to run without one.
func (p *Port) SetPolicyEngine(pe PolicyEngine) {
	p.pe = pe
}

// SetEventHandler sets the event handler to send events to. Pass nil to
// remove the existing handler.
func (p *Port) SetEventHandler(h EventHandler) {
	p.handler = h
}

// StateLog returns the diagnostic log of state transitions.
func (p *Port) StateLog() *statelog.Log {
	return p.log
}

// Init resets the chip, enters Disabled and, if the control byte enables the
// state machine, DelayUnattached.
func (p *Port) Init() error {
	if err := p.chip.Reset(); err != nil {
		return err
	}
	p.regs = fusb302.Registers{}
	mask := uint8(0xFF &^ (fusb302.MaskVBusOK | fusb302.MaskCompChange | fusb302.MaskBCLevel))
	if err := p.chip.WriteMasks(mask, 0xFF&^fusb302.MaskATogDone, fusb302.MaskBGCRCSent); err != nil {
		return err
	}
	if err := p.setState(stateDisabled); err != nil {
		return err
	}
	if p.enabled {
		return p.setState(stateDelayUnattached)
	}
	return nil
}

// State returns the current connection state.
func (p *Port) State() typec.ConnState {
	return p.state.ID
}

// CCPin returns the CC pin of the current connection, or typec.CCNone.
func (p *Port) CCPin() typec.CCPin {
	return p.ccPin
}

// Role returns the role the port currently presents on CC1.
func (p *Port) Role() typec.Role {
	return p.sourceOrSink
}

// SinkCurrent returns the current offered by the attached source.
func (p *Port) SinkCurrent() typec.Current {
	return p.sinkCurrent
}

// Switches returns the SWITCHES0 register as last written.
func (p *Port) Switches() fusb302.Switches0 {
	return p.regs.Switches0
}

// Enabled returns true if Dispatch processes the state machine.
func (p *Port) Enabled() bool {
	return p.enabled
}

// Tick advances all running timers by one TickPeriod.
func (p *Port) Tick() {
	p.elapsed++
	p.t.tick()
}

// Advance calls Tick once for every whole TickPeriod in d, carrying the
// remainder to the next call.
func (p *Port) Advance(d time.Duration) {
	p.residual += d
	n := p.residual / TickPeriod
	p.residual -= n * TickPeriod
	const maxTicks = time.Duration(timerDisabled)
	if n > maxTicks {
		// Every timer has expired by now; skip the walk but keep the clock.
		p.elapsed += uint32(n - maxTicks)
		n = maxTicks
	}
	for ; n > 0; n-- {
		p.Tick()
	}
}

// BeginPowerRoleSwap suppresses detach detection for the power role swap
// grace period. The power delivery layer calls it when a swap starts.
func (p *Port) BeginPowerRoleSwap() {
	p.t.prSwap = tPRSwap
}

// NotifyModeEntered tells a powered accessory connection that an alternate
// mode was entered, which stops it from timing out as unsupported.
func (p *Port) NotifyModeEntered() {
	p.modeEntered = true
}

// Dispatch runs the state machine. In polled mode it makes a single pass; in
// interrupt triggered mode it keeps making passes while they cause
// transitions. Register access failures move the port to ErrorRecovery and
// are returned.
func (p *Port) Dispatch() error {
	if !p.enabled {
		return nil
	}
	passes := 1
	if p.cfg.InterruptTriggered {
		passes = maxPasses
	}
	for i := 0; i < passes; i++ {
		changed, err := p.pass()
		p.deliverEvents()
		if err != nil {
			return err
		}
		if !changed {
			break
		}
	}
	return nil
}

func (p *Port) pass() (changed bool, err error) {
	var next *state
	if err = p.chip.ReadStatus(&p.status); err == nil {
		if p.pdActive && p.pe != nil {
			p.pe.Step()
		}
		next, err = p.state.Process(p)
	}
	if err != nil {
		p.recover(err)
		return true, err
	}
	if next == nil {
		return false, nil
	}
	return true, p.enter(next)
}

// enter moves to s, or to ErrorRecovery if the chip can't be set up for s.
func (p *Port) enter(s *state) error {
	err := p.setState(s)
	if err != nil {
		p.recover(err)
	}
	return err
}

func (p *Port) recover(err error) {
	debug.ErrorLog.Printf("tcsm: %s: %v", p.state.ID, err)
	if rerr := p.setState(stateErrorRecovery); rerr != nil {
		debug.ErrorLog.Printf("tcsm: entering %s: %v", typec.StateErrorRecovery, rerr)
	}
}

func (p *Port) deliverEvents() {
	for e := p.events.Pop(); e != typec.EventNone; e = p.events.Pop() {
		if p.handler != nil {
			p.handler.HandleEvent(e, p.state.ID)
		}
	}
}

// Post queues fn to be run by Run on the goroutine that owns the port. It
// blocks while the queue is full.
func (p *Port) Post(fn func(*Port)) {
	p.calls <- fn
}

// PostContext is Post giving up with ctx's error once ctx is done.
func (p *Port) PostContext(ctx context.Context, fn func(*Port)) error {
	select {
	case p.calls <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Interrupt wakes Run up for a dispatch. It's safe to call from interrupt
// handlers and never blocks.
func (p *Port) Interrupt() {
	select {
	case p.irq <- struct{}{}:
	default:
	}
}

// Run ticks and dispatches the state machine until ctx is done. Only one call
// to Run must be in progress at any given time and no other goroutine may
// call the port's methods meanwhile, except Post, PostContext and Interrupt.
func (p *Port) Run(ctx context.Context) error {
	const loopSleepDuration = time.Millisecond
	tk := time.NewTicker(loopSleepDuration)
	defer tk.Stop()
	last := time.Now()

	for {
		var tc <-chan time.Time
		if p.timerOn || !p.cfg.InterruptTriggered {
			tc = tk.C
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-p.calls:
			fn(p)
		case <-p.irq:
		case <-tc:
		}

		now := time.Now()
		p.Advance(now.Sub(last))
		last = now

		if err := p.Dispatch(); err != nil {
			debug.ErrorLog.Printf("tcsm: dispatch: %v", err)
		}
	}
}

func (p *Port) setTimer(on bool) {
	p.timerOn = on
	p.platform.EnableTimer(on)
}

// roleForCC1 returns the role presented on CC1.
func (p *Port) roleForCC1() typec.Role {
	return p.sourceOrSink
}

// roleForCC2 returns the role presented on CC2, which is the opposite of
// CC1's while the alternate accessory probe splits the roles.
func (p *Port) roleForCC2() typec.Role {
	if p.splitRoles {
		return p.sourceOrSink.Opposite()
	}
	return p.sourceOrSink
}

func (p *Port) roleFor(pin typec.CCPin) typec.Role {
	if pin == typec.CC2 {
		return p.roleForCC2()
	}
	return p.roleForCC1()
}
