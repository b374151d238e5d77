package tcsm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oxplot/go-typec-cc"
	"github.com/oxplot/go-typec-cc/tcpcdriver"
	"github.com/oxplot/go-typec-cc/tcpcdriver/fusb302"
)

const (
	ctlSource1A5  = 0x01 | 2<<ControlCurrentShift | ControlEnable
	ctlSink       = ControlEnable
	ctlDRP        = 0x02 | ControlEnable
	ctlSourceAcc  = 0x01 | ControlAccessory | 1<<ControlCurrentShift | ControlEnable
	ctlSinkAcc    = ControlAccessory | ControlEnable
	ctlDRPTrySrc  = ctlDRP | ControlSrcPreferred
	ctlDRPTrySnk  = ctlDRP | ControlSnkPreferred
	ms            = time.Millisecond
	attachTimeout = 300 * ms
)

func TestInit(t *testing.T) {
	f := newFixture(t, ctlSink, false)
	if f.chip.resets != 1 {
		t.Errorf("chip reset %d times", f.chip.resets)
	}
	if f.port.State() != typec.StateDelayUnattached {
		t.Errorf("state %s after init", f.port.State())
	}
	if f.chip.masks[1]&fusb302.MaskATogDone != 0 {
		t.Error("toggle done interrupt is masked")
	}

	f = newFixture(t, 0, false)
	if f.port.State() != typec.StateDisabled {
		t.Errorf("disabled port in %s after init", f.port.State())
	}
	f.run(10 * ms)
	if f.port.State() != typec.StateDisabled {
		t.Errorf("disabled port moved to %s", f.port.State())
	}
}

func TestAttachAsSourceOnCC1(t *testing.T) {
	f := newFixture(t, ctlSource1A5, false)
	f.waitFor(typec.StateUnattached, 10*ms)
	if f.plat.timer {
		t.Error("tick left enabled while the hardware toggles")
	}
	f.chip.attachSink(typec.CC1, false)
	f.waitFor(typec.StateAttachWaitSource, 5*ms)
	f.waitFor(typec.StateAttachedSource, attachTimeout)

	if f.port.CCPin() != typec.CC1 {
		t.Errorf("attached on %s", f.port.CCPin())
	}
	if sw := f.port.Switches(); sw != 0x64 {
		t.Errorf("switches 0x%02x, want 0x64", uint8(sw))
	}
	if !f.plat.vbus[tcpcdriver.VBus5V] {
		t.Error("VBUS off while attached as source")
	}
	if f.pe.starts != 1 || f.pe.role != typec.RoleSource || f.pe.pin != typec.CC1 {
		t.Errorf("policy engine started %d times as %s on %s", f.pe.starts, f.pe.role, f.pe.pin)
	}
	if !f.hasEvent(typec.EventAttachedSource) {
		t.Error("no attached event")
	}
	steps := f.pe.steps
	f.run(5 * ms)
	if f.pe.steps != steps+5 {
		t.Errorf("policy engine stepped %d times in 5 dispatches", f.pe.steps-steps)
	}
	st := f.port.TypeCStatus()
	if st[0] != ctlSource1A5 || st[1] != uint8(typec.StateAttachedSource) || typec.CCTerm(st[2]&0x7) != typec.CCRd1A5 {
		t.Errorf("status % x", st)
	}

	f.chip.detach()
	f.waitFor(typec.StateDelayUnattached, 30*ms)
	if f.plat.vbus[tcpcdriver.VBus5V] {
		t.Error("VBUS left on after detach")
	}
	if f.pe.stops != 1 {
		t.Errorf("policy engine stopped %d times", f.pe.stops)
	}
	if !f.hasEvent(typec.EventDetached) {
		t.Error("no detached event")
	}
}

func TestAttachAsSinkAndDetachOnVBus(t *testing.T) {
	f := newFixture(t, ctlSink, false)
	f.chip.attachSource(typec.CC2, typec.Current3A0)
	f.waitFor(typec.StateAttachWaitSink, 20*ms)
	f.waitFor(typec.StateAttachedSink, attachTimeout)

	if f.port.CCPin() != typec.CC2 {
		t.Errorf("attached on %s", f.port.CCPin())
	}
	if sw := f.port.Switches(); sw != 0x0B {
		t.Errorf("switches 0x%02x, want 0x0b", uint8(sw))
	}
	if f.port.SinkCurrent() != typec.Current3A0 {
		t.Errorf("sink current %s", f.port.SinkCurrent())
	}
	if f.pe.role != typec.RoleSink {
		t.Errorf("policy engine started as %s", f.pe.role)
	}

	// Sagging VBUS within the hysteresis band isn't a detach.
	f.chip.partnerVBus = 3900
	f.run(5 * ms)
	if f.port.State() != typec.StateAttachedSink {
		t.Fatalf("detached at 3.9V")
	}

	f.chip.partnerVBus = 3700
	f.step()
	if f.port.State() != typec.StateDelayUnattached {
		t.Errorf("in %s one dispatch after VBUS dropped", f.port.State())
	}
	if f.port.SinkCurrent() != typec.CurrentNone {
		t.Errorf("sink current %s after detach", f.port.SinkCurrent())
	}
}

func TestSinkCurrentChange(t *testing.T) {
	f := newFixture(t, ctlSink, false)
	f.chip.attachSource(typec.CC1, typec.CurrentDefault)
	f.waitFor(typec.StateAttachedSink, attachTimeout)
	if f.port.SinkCurrent() != typec.CurrentDefault {
		t.Fatalf("sink current %s", f.port.SinkCurrent())
	}
	f.events = nil
	f.chip.rp[0] = typec.Current1A5
	f.run(200 * ms)
	if f.port.SinkCurrent() != typec.Current1A5 {
		t.Errorf("sink current %s after change", f.port.SinkCurrent())
	}
	if !f.hasEvent(typec.EventSinkCurrent) {
		t.Error("no sink current event")
	}
}

func TestPowerRoleSwapSuppressesDetach(t *testing.T) {
	f := newFixture(t, ctlSink, false)
	f.chip.attachSource(typec.CC1, typec.CurrentDefault)
	f.waitFor(typec.StateAttachedSink, attachTimeout)

	f.port.BeginPowerRoleSwap()
	f.chip.partnerVBus = 0
	f.run(10 * ms)
	if f.port.State() != typec.StateAttachedSink {
		t.Fatalf("detached during a power role swap")
	}
	f.waitFor(typec.StateDelayUnattached, 10*ms)
}

func TestTrySource(t *testing.T) {
	f := newFixture(t, ctlDRPTrySrc, false)
	f.chip.attachSource(typec.CC1, typec.CurrentDefault)
	f.waitFor(typec.StateAttachWaitSink, 20*ms)
	f.waitFor(typec.StateTrySource, attachTimeout)
	if f.port.Role() != typec.RoleSource {
		t.Errorf("trying source as %s", f.port.Role())
	}
	f.waitFor(typec.StateTryWaitSink, 200*ms)
	f.waitFor(typec.StateAttachedSink, attachTimeout)
	if f.port.CCPin() != typec.CC1 {
		t.Errorf("attached on %s", f.port.CCPin())
	}
}

func TestTrySink(t *testing.T) {
	f := newFixture(t, ctlDRPTrySnk, false)
	f.chip.attachSink(typec.CC2, true)
	f.waitFor(typec.StateAttachWaitSource, 20*ms)
	f.waitFor(typec.StateTrySink, attachTimeout)
	if f.plat.vbus[tcpcdriver.VBus5V] {
		t.Error("VBUS on while trying sink")
	}
	f.waitFor(typec.StateTryWaitSource, 200*ms)
	f.waitFor(typec.StateAttachedSource, 100*ms)
	if f.port.CCPin() != typec.CC2 {
		t.Errorf("attached on %s", f.port.CCPin())
	}
	if sw := f.port.Switches(); sw != 0x98 {
		t.Errorf("switches 0x%02x, want 0x98", uint8(sw))
	}
}

func TestDRPAttachWaitSinkFallsBackToSource(t *testing.T) {
	f := newFixture(t, ctlDRP, false)
	f.chip.attachSource(typec.CC1, typec.CurrentDefault)
	f.waitFor(typec.StateAttachWaitSink, 20*ms)
	f.chip.detach()
	f.waitFor(typec.StateUnattachedSource, 50*ms)
	if f.port.Role() != typec.RoleSource {
		t.Errorf("unattached source presenting %s", f.port.Role())
	}
	f.waitFor(typec.StateDelayUnattached, 50*ms)
}

func TestAudioAccessory(t *testing.T) {
	f := newFixture(t, ctlSourceAcc, false)
	f.chip.term = [2]typec.CCTerm{typec.CCRa, typec.CCRa}
	f.waitFor(typec.StateAttachWaitSource, 20*ms)
	f.waitFor(typec.StateAudioAccessory, attachTimeout)
	if !f.hasEvent(typec.EventAccessory) {
		t.Error("no accessory event")
	}
	if f.plat.vbus[tcpcdriver.VBus5V] {
		t.Error("VBUS on for an audio accessory")
	}
	f.chip.detach()
	f.waitFor(typec.StateUnattachedSource, attachTimeout)
}

func TestDebugAccessory(t *testing.T) {
	f := newFixture(t, ctlSourceAcc, false)
	f.chip.attachSink(typec.CC1, false)
	f.chip.attachSink(typec.CC2, false)
	f.waitFor(typec.StateDebugAccessory, attachTimeout)
}

func TestPoweredAccessory(t *testing.T) {
	t.Run("unsupported", func(t *testing.T) {
		f := newFixture(t, ctlSinkAcc, false)
		f.chip.attachSink(typec.CC2, true)
		f.waitFor(typec.StateAttachWaitAccessory, 20*ms)
		f.waitFor(typec.StatePoweredAccessory, attachTimeout)
		if f.port.CCPin() != typec.CC2 {
			t.Errorf("powered accessory on %s", f.port.CCPin())
		}
		if sw := f.port.Switches(); !sw.VConn(typec.CC1) || !sw.PullUp(typec.CC2) {
			t.Errorf("switches 0x%02x", uint8(sw))
		}
		f.waitFor(typec.StateUnsupportedAccessory, time.Second)
	})
	t.Run("mode entered", func(t *testing.T) {
		f := newFixture(t, ctlSinkAcc, false)
		f.chip.attachSink(typec.CC1, true)
		f.waitFor(typec.StatePoweredAccessory, attachTimeout)
		f.port.NotifyModeEntered()
		f.run(time.Second)
		if f.port.State() != typec.StatePoweredAccessory {
			t.Errorf("in %s after mode entry", f.port.State())
		}
	})
}

func TestSinkWithAccessoriesRejectsSinks(t *testing.T) {
	f := newFixture(t, ctlSinkAcc, false)
	f.chip.attachSink(typec.CC1, false)
	f.waitFor(typec.StateAttachWaitAccessory, 20*ms)
	f.waitFor(typec.StateDelayUnattached, attachTimeout)
}

func TestErrorRecovery(t *testing.T) {
	f := newFixture(t, ctlSource1A5, false)
	f.chip.attachSink(typec.CC1, false)
	f.waitFor(typec.StateAttachWaitSource, 20*ms)

	f.chip.fail = errBus
	f.port.Advance(ms)
	if err := f.port.Dispatch(); !errors.Is(err, errBus) {
		t.Fatalf("dispatch error %v", err)
	}
	if f.port.State() != typec.StateErrorRecovery {
		t.Fatalf("in %s after a bus error", f.port.State())
	}

	f.chip.fail = nil
	f.waitFor(typec.StateDelayUnattached, 40*ms)
	f.waitFor(typec.StateAttachedSource, attachTimeout)
}

func TestConfigurePortType(t *testing.T) {
	f := newFixture(t, ctlSource1A5, false)
	f.chip.attachSink(typec.CC1, false)
	f.waitFor(typec.StateAttachedSource, attachTimeout)

	// A new current applies without dropping the connection.
	if err := f.port.ConfigurePortType(ctlSource1A5&^ControlCurrentMask | 3<<ControlCurrentShift); err != nil {
		t.Fatal(err)
	}
	if f.port.State() != typec.StateAttachedSource {
		t.Errorf("in %s after a current change", f.port.State())
	}
	if f.chip.regs.Control0.HostCurrent() != typec.Current3A0 {
		t.Errorf("advertising %s", f.chip.regs.Control0.HostCurrent())
	}

	if err := f.port.ConfigurePortType(ctlDRP); err != nil {
		t.Fatal(err)
	}
	if f.port.State() != typec.StateDelayUnattached {
		t.Errorf("in %s after a port type change", f.port.State())
	}

	if err := f.port.ConfigurePortType(ctlDRP &^ ControlEnable); err != nil {
		t.Fatal(err)
	}
	if f.port.State() != typec.StateDisabled || f.port.Enabled() {
		t.Errorf("in %s after disabling", f.port.State())
	}
	f.run(5 * ms)
	if f.port.State() != typec.StateDisabled {
		t.Errorf("disabled port moved to %s", f.port.State())
	}

	if err := f.port.ConfigurePortType(ctlDRP); err != nil {
		t.Fatal(err)
	}
	if f.port.State() != typec.StateDelayUnattached {
		t.Errorf("in %s after enabling", f.port.State())
	}
}

func TestTypeCSMControl(t *testing.T) {
	for _, c := range []uint8{0x00, ctlSink, ctlSource1A5, ctlDRPTrySrc, ctlDRPTrySnk, ctlSourceAcc, 0xFE} {
		f := newFixture(t, 0, false)
		if err := f.port.ConfigurePortType(c); err != nil {
			t.Fatal(err)
		}
		want := c
		if want&ControlCurrentMask == 0 {
			want |= 1 << ControlCurrentShift
		}
		if got := f.port.TypeCSMControl(); got != want {
			t.Errorf("control 0x%02x read back as 0x%02x", c, got)
		}
	}

	// Port type 3 is taken as sink.
	f := newFixture(t, 0, false)
	if err := f.port.ConfigurePortType(0x83); err != nil {
		t.Fatal(err)
	}
	if got := f.port.TypeCSMControl(); got != 0x90 {
		t.Errorf("control 0x83 read back as 0x%02x", got)
	}
}

func TestStateLog(t *testing.T) {
	f := newFixture(t, ctlSource1A5, false)
	f.chip.attachSink(typec.CC1, false)
	f.waitFor(typec.StateAttachedSource, attachTimeout)
	b := f.port.StateLog().Dump(nil)
	if b[0] < 4 {
		t.Fatalf("only %d transitions logged", b[0])
	}
	first := uint16(b[1])<<8 | uint16(b[2])
	if typec.ConnState(first) != typec.StateDisabled {
		t.Errorf("first logged state %s", typec.ConnState(first))
	}
}

func TestAdvance(t *testing.T) {
	f := newFixture(t, 0, false)
	before := f.port.elapsed
	f.port.Advance(250 * time.Microsecond)
	f.port.Advance(250 * time.Microsecond)
	if got := f.port.elapsed - before; got != 5 {
		t.Errorf("advanced %d ticks in 500µs", got)
	}
	f.port.Advance(time.Hour)
	if got := f.port.elapsed - before; got != 5+36000000 {
		t.Errorf("advanced %d ticks in an hour", got)
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t, ctlSink, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.port.Run(ctx)
	}()

	got := make(chan typec.ConnState, 1)
	f.port.Post(func(p *Port) {
		got <- p.State()
	})
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("posted function never ran")
	}
	f.port.Interrupt()
	f.port.Interrupt() // never blocks
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("run returned %v", err)
	}
}

func TestPostContext(t *testing.T) {
	f := newFixture(t, ctlSink, false)
	for i := 0; i < callQueueSize; i++ {
		if err := f.port.PostContext(context.Background(), func(*Port) {}); err != nil {
			t.Fatal(err)
		}
	}

	// Nothing runs the port, the queue stays full.
	ctx, cancel := context.WithTimeout(context.Background(), 10*ms)
	defer cancel()
	if err := f.port.PostContext(ctx, func(*Port) {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("post to a full queue returned %v", err)
	}
}
