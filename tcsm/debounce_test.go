package tcsm

import (
	"testing"

	"github.com/oxplot/go-typec-cc"
)

func TestTimerTick(t *testing.T) {
	for _, start := range []timer{0, 1, 5, tCCDebounce, timerDisabled} {
		tm := start
		for i := 0; i < 2000; i++ {
			prev := tm
			tm.tick()
			if tm > prev {
				t.Fatalf("timer from %d went up from %d to %d", start, prev, tm)
			}
			if start == timerDisabled && tm != timerDisabled {
				t.Fatalf("disabled timer ticked to %d", tm)
			}
		}
		if start != timerDisabled && (!tm.expired() || tm.running()) {
			t.Errorf("timer from %d ended at %d", start, tm)
		}
	}
}

// settle brings a source port with a sink on CC1 to a fully debounced
// AttachWaitSource.
func settle(t *testing.T) *fixture {
	f := newFixture(t, ctlSource1A5, false)
	f.chip.attachSink(typec.CC1, true)
	f.waitFor(typec.StateAttachWaitSource, 20*ms)
	return f
}

func TestDebounceStages(t *testing.T) {
	f := settle(t)
	p := f.port

	// Readings have to hold for tPDDebounce before the pd stage takes them.
	if p.cc[0].pd != typec.CCUndefined {
		t.Fatalf("pd stage %s right after entry", p.cc[0].pd)
	}
	for i := 0; i < 30 && p.cc[1].pd == typec.CCUndefined; i++ {
		if err := p.debounceCC(); err != nil {
			t.Fatal(err)
		}
		p.Advance(ms)
	}
	if p.cc[0].pd != typec.CCRd1A5 || p.cc[1].pd != typec.CCRa {
		t.Fatalf("pd stage %s/%s", p.cc[0].pd, p.cc[1].pd)
	}
	if p.cc[0].cc != typec.CCUndefined {
		t.Fatalf("cc stage settled with the pd stage")
	}
	for i := 0; i < 130 && p.cc[0].cc == typec.CCUndefined; i++ {
		if err := p.debounceCC(); err != nil {
			t.Fatal(err)
		}
		p.Advance(ms)
	}
	if p.cc[0].cc != typec.CCRd1A5 || p.cc[1].cc != typec.CCRa {
		t.Fatalf("cc stage %s/%s", p.cc[0].cc, p.cc[1].cc)
	}
}

func TestDebounceIdempotent(t *testing.T) {
	f := settle(t)
	p := f.port
	for i := 0; i < 150; i++ {
		if err := p.debounceCC(); err != nil {
			t.Fatal(err)
		}
		p.Advance(ms)
	}
	want := p.cc
	for i := 0; i < 200; i++ {
		if err := p.debounceCC(); err != nil {
			t.Fatal(err)
		}
		p.Advance(ms)
		if p.cc != want {
			t.Fatalf("history moved from %+v to %+v on stable input", want, p.cc)
		}
	}
}

func TestDebounceRestartsOnChange(t *testing.T) {
	f := settle(t)
	p := f.port
	for i := 0; i < 150; i++ {
		if err := p.debounceCC(); err != nil {
			t.Fatal(err)
		}
		p.Advance(ms)
	}
	f.chip.detach()
	for i := 0; i < 30 && p.cc[0].pd != typec.CCOpen; i++ {
		if err := p.debounceCC(); err != nil {
			t.Fatal(err)
		}
		p.Advance(ms)
	}
	if p.cc[0].pd != typec.CCOpen {
		t.Fatalf("pd stage %s after detach", p.cc[0].pd)
	}
	if p.cc[0].cc != typec.CCUndefined || p.cc[1].cc != typec.CCUndefined {
		t.Errorf("cc stage %s/%s kept after pd change", p.cc[0].cc, p.cc[1].cc)
	}
}

func TestDecodeSource(t *testing.T) {
	f := settle(t)
	p := f.port
	cases := []struct {
		term typec.CCTerm
		cur  typec.Current
		want typec.CCTerm
	}{
		{typec.CCOpen, typec.CurrentDefault, typec.CCOpen},
		{typec.CCRa, typec.CurrentDefault, typec.CCRa},
		{typec.CCRdUSB, typec.CurrentDefault, typec.CCRdUSB},
		{typec.CCRa, typec.Current1A5, typec.CCRa},
		{typec.CCRdUSB, typec.Current1A5, typec.CCRd1A5},
		{typec.CCRa, typec.Current3A0, typec.CCRa},
		{typec.CCRdUSB, typec.Current3A0, typec.CCRd3A0},
	}
	for _, c := range cases {
		f.chip.term[0] = c.term
		p.sourceCurrent = c.cur
		p.regs.Control0 = p.regs.Control0.WithHostCurrent(c.cur)
		f.chip.regs.Control0 = p.regs.Control0
		p.regs.Switches0 = sourceProbe(typec.CC1)
		f.chip.regs.Switches0 = p.regs.Switches0
		measure := p.regs.Measure
		got, err := p.decode(typec.CC1)
		if err != nil {
			t.Fatal(err)
		}
		if got != c.want {
			t.Errorf("%s at %s decoded as %s, want %s", c.term, c.cur, got, c.want)
		}
		if f.chip.regs.Measure != measure {
			t.Errorf("measure register left at 0x%02x", uint8(f.chip.regs.Measure))
		}
	}
}

func TestDecodeSink(t *testing.T) {
	f := newFixture(t, ctlSink, false)
	p := f.port
	p.sourceOrSink = typec.RoleSink
	p.regs.Switches0 = sinkProbe(typec.CC2)
	f.chip.regs.Switches0 = p.regs.Switches0
	for cur, want := range map[typec.Current]typec.CCTerm{
		typec.CurrentNone:    typec.CCOpen,
		typec.CurrentDefault: typec.CCRdUSB,
		typec.Current1A5:     typec.CCRd1A5,
		typec.Current3A0:     typec.CCRd3A0,
	} {
		f.chip.rp[1] = cur
		got, err := p.decode(typec.CC2)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("%s pull-up decoded as %s, want %s", cur, got, want)
		}
	}
}
