package tcsm

import "time"

// TickPeriod is the period at which Tick must be called.
const TickPeriod = 100 * time.Microsecond

// timer counts down in ticks. A disabled timer never reaches zero.
type timer uint16

const timerDisabled timer = 0xFFFF

// tick decrements t by one unless it's disabled or already zero.
func (t *timer) tick() {
	if *t != timerDisabled && *t > 0 {
		*t--
	}
}

// expired returns true if t has counted down to zero.
func (t timer) expired() bool {
	return t == 0
}

// running returns true if t is armed and has not expired yet.
func (t timer) running() bool {
	return t != timerDisabled && t > 0
}

// ticks converts d to a timer value, rounding down.
func ticks(d time.Duration) timer {
	return timer(d / TickPeriod)
}

// Type-C timing parameters, in ticks.
var (
	tAMETimeout       = ticks(900 * time.Millisecond)
	tCCDebounce       = ticks(120 * time.Millisecond)
	tPDDebounce       = ticks(15 * time.Millisecond)
	tDRPTry           = ticks(125 * time.Millisecond)
	tDRPTryWait       = ticks(600 * time.Millisecond)
	tErrorRecovery    = ticks(30 * time.Millisecond)
	tDeviceToggle     = ticks(3 * time.Millisecond)
	tTOG2             = ticks(30 * time.Millisecond)
	tAlternateDRPSwap = ticks(40 * time.Millisecond)
	tPRSwap           = ticks(15 * time.Millisecond)
)

// timers holds every timer of a port. All of them are decremented together
// by Port.Tick.
type timers struct {
	state          timer // state specific lifetime or timeout
	pdDebounce     timer
	ccDebounce     timer
	toggle         timer // which pin to measure
	drpToggle      timer // source/sink probing
	overPDDebounce timer // guards against an endlessly restarted PD debounce
	prSwap         timer // power role swap grace period
}

func (t *timers) tick() {
	t.state.tick()
	t.pdDebounce.tick()
	t.ccDebounce.tick()
	t.toggle.tick()
	t.drpToggle.tick()
	t.overPDDebounce.tick()
	t.prSwap.tick()
}

// arm sets the timers every state entry sets. The power role swap timer is
// left alone as a swap spans state changes.
func (t *timers) arm(state, pdDebounce, ccDebounce, toggle, drpToggle timer) {
	t.state = state
	t.pdDebounce = pdDebounce
	t.ccDebounce = ccDebounce
	t.toggle = toggle
	t.drpToggle = drpToggle
	t.overPDDebounce = timerDisabled
}
