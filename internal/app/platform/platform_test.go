package platform

import (
	"errors"
	"testing"
	"time"

	"github.com/oxplot/go-typec-cc/tcpcdriver"
)

type pin struct {
	on  bool
	err error
}

func (p *pin) set(on bool) error {
	p.on = on
	return p.err
}

func TestSetVBus(t *testing.T) {
	var p5 pin
	b := base{vbus: [2]output{&p5, nil}}

	if err := b.SetVBus(tcpcdriver.VBus5V, true); err != nil || !p5.on {
		t.Fatalf("5V on: %v, %t", err, p5.on)
	}
	if err := b.SetVBus(tcpcdriver.VBus5V, false); err != nil || p5.on {
		t.Fatalf("5V off: %v, %t", err, p5.on)
	}
	if err := b.SetVBus(tcpcdriver.VBusLevel1, false); err != nil {
		t.Errorf("missing level1 off: %v", err)
	}
	if err := b.SetVBus(tcpcdriver.VBusLevel1, true); !errors.Is(err, ErrNoLine) {
		t.Errorf("missing level1 on: %v", err)
	}
	p5.err = errors.New("busy")
	if err := b.SetVBus(tcpcdriver.VBus5V, true); err != p5.err {
		t.Errorf("output error: %v", err)
	}
}

func TestNone(t *testing.T) {
	p := None()
	if err := p.SetVBus(tcpcdriver.VBus5V, true); !errors.Is(err, ErrNoLine) {
		t.Errorf("vbus on: %v", err)
	}
	start := time.Now()
	p.Delay(200 * time.Microsecond)
	if d := time.Since(start); d < 200*time.Microsecond {
		t.Errorf("delay returned after %v", d)
	}
	p.EnableTimer(true)
	if err := p.Close(); err != nil {
		t.Error(err)
	}
}
