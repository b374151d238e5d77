package fusb302

import "github.com/oxplot/go-typec-cc"

// Register addresses.
const (
	RegDeviceID   = 0x01
	RegSwitches0  = 0x02
	RegSwitches1  = 0x03
	RegMeasure    = 0x04
	RegSlice      = 0x05
	RegControl0   = 0x06
	RegControl1   = 0x07
	RegControl2   = 0x08
	RegControl3   = 0x09
	RegMask       = 0x0A
	RegPower      = 0x0B
	RegReset      = 0x0C
	RegOCPreg     = 0x0D
	RegMaskA      = 0x0E
	RegMaskB      = 0x0F
	RegControl4   = 0x10
	RegStatus0A   = 0x3C
	RegStatus1A   = 0x3D
	RegInterruptA = 0x3E
	RegInterruptB = 0x3F
	RegStatus0    = 0x40
	RegStatus1    = 0x41
	RegInterrupt  = 0x42
	RegFIFOs      = 0x43
)

// ResetSW is the software reset bit of RegReset.
const ResetSW = 1 << 0

// Switches0 is the value of the SWITCHES0 register which connects pull-ups,
// pull-downs, VCONN and the measure block to the CC pins.
type Switches0 uint8

// Switches0 bits.
const (
	Switches0PdwnCC1  Switches0 = 1 << 0
	Switches0PdwnCC2  Switches0 = 1 << 1
	Switches0MeasCC1  Switches0 = 1 << 2
	Switches0MeasCC2  Switches0 = 1 << 3
	Switches0VConnCC1 Switches0 = 1 << 4
	Switches0VConnCC2 Switches0 = 1 << 5
	Switches0PuEnCC1  Switches0 = 1 << 6
	Switches0PuEnCC2  Switches0 = 1 << 7
)

func pinBit(pin typec.CCPin, cc1, cc2 Switches0) Switches0 {
	switch pin {
	case typec.CC1:
		return cc1
	case typec.CC2:
		return cc2
	}
	return 0
}

// MeasCC1 returns true if the measure block is connected to CC1.
func (s Switches0) MeasCC1() bool {
	return s&Switches0MeasCC1 != 0
}

// MeasCC2 returns true if the measure block is connected to CC2.
func (s Switches0) MeasCC2() bool {
	return s&Switches0MeasCC2 != 0
}

// Measured returns the pin connected to the measure block. CC1 wins if both
// are set, which the state machine never does.
func (s Switches0) Measured() typec.CCPin {
	switch {
	case s.MeasCC1():
		return typec.CC1
	case s.MeasCC2():
		return typec.CC2
	}
	return typec.CCNone
}

// PullUp returns true if the current source pull-up is enabled on pin.
func (s Switches0) PullUp(pin typec.CCPin) bool {
	b := pinBit(pin, Switches0PuEnCC1, Switches0PuEnCC2)
	return b != 0 && s&b != 0
}

// PullDown returns true if the Rd pull-down is enabled on pin.
func (s Switches0) PullDown(pin typec.CCPin) bool {
	b := pinBit(pin, Switches0PdwnCC1, Switches0PdwnCC2)
	return b != 0 && s&b != 0
}

// VConn returns true if VCONN is switched to pin.
func (s Switches0) VConn(pin typec.CCPin) bool {
	b := pinBit(pin, Switches0VConnCC1, Switches0VConnCC2)
	return b != 0 && s&b != 0
}

// WithMeasure returns s with the measure block moved to pin.
func (s Switches0) WithMeasure(pin typec.CCPin) Switches0 {
	s &^= Switches0MeasCC1 | Switches0MeasCC2
	return s | pinBit(pin, Switches0MeasCC1, Switches0MeasCC2)
}

// WithPullUp returns s with the pull-up on pin switched on or off.
func (s Switches0) WithPullUp(pin typec.CCPin, on bool) Switches0 {
	b := pinBit(pin, Switches0PuEnCC1, Switches0PuEnCC2)
	if on {
		return s | b
	}
	return s &^ b
}

// WithPullDown returns s with the pull-down on pin switched on or off.
func (s Switches0) WithPullDown(pin typec.CCPin, on bool) Switches0 {
	b := pinBit(pin, Switches0PdwnCC1, Switches0PdwnCC2)
	if on {
		return s | b
	}
	return s &^ b
}

// WithVConn returns s with VCONN switched to pin, or off for typec.CCNone.
func (s Switches0) WithVConn(pin typec.CCPin) Switches0 {
	s &^= Switches0VConnCC1 | Switches0VConnCC2
	return s | pinBit(pin, Switches0VConnCC1, Switches0VConnCC2)
}

// Switches1 is the value of the SWITCHES1 register which configures the BMC
// transmitter and the roles put in auto generated GoodCRC messages.
type Switches1 uint8

// Switches1 bits.
const (
	Switches1TxCC1     Switches1 = 1 << 0
	Switches1TxCC2     Switches1 = 1 << 1
	Switches1AutoCRC   Switches1 = 1 << 2
	Switches1DataRole  Switches1 = 1 << 4
	Switches1SpecRev1  Switches1 = 1 << 6
	Switches1PowerRole Switches1 = 1 << 7
)

// NewSwitches1 returns the transmitter configuration for a connection on pin
// in role r. No transmitter is enabled for typec.CCNone.
func NewSwitches1(pin typec.CCPin, r typec.Role) Switches1 {
	s := Switches1SpecRev1
	switch pin {
	case typec.CC1:
		s |= Switches1TxCC1 | Switches1AutoCRC
	case typec.CC2:
		s |= Switches1TxCC2 | Switches1AutoCRC
	}
	if r == typec.RoleSource {
		s |= Switches1PowerRole | Switches1DataRole
	}
	return s
}

// Measure is the value of the MEASURE register which feeds the comparator
// with either the measured CC pin or VBUS against the measure DAC.
type Measure uint8

// Measure bits.
const (
	MeasureVBus     Measure = 1 << 6
	MeasureMDACMask Measure = 0x3F
)

// NewMeasure returns a measure value comparing VBUS (vbus true) or the
// measured CC pin against the DAC code mdac.
func NewMeasure(vbus bool, mdac uint8) Measure {
	m := Measure(mdac) & MeasureMDACMask
	if vbus {
		m |= MeasureVBus
	}
	return m
}

// VBus returns true if the comparator is fed VBUS instead of a CC pin.
func (m Measure) VBus() bool {
	return m&MeasureVBus != 0
}

// MDAC returns the DAC code.
func (m Measure) MDAC() uint8 {
	return uint8(m & MeasureMDACMask)
}

// Measure DAC codes for CC comparisons. A code n sets the threshold at
// (n+1)*42mV.
const (
	MDAC0V2  = 0x04
	MDAC0V4  = 0x09
	MDAC0V8  = 0x13
	MDAC1V6  = 0x26
	MDAC2V05 = 0x30
	MDAC2V6  = 0x3E
)

// MDAC code for VBUS comparisons. On VBUS the DAC step is 420mV.
const MDACVBus0V8 = 0x01

// CCMillivolts returns the comparator threshold in millivolts for the DAC code
// mdac when measuring a CC pin.
func CCMillivolts(mdac uint8) uint16 {
	return (uint16(mdac&0x3F) + 1) * 42
}

// VBusMillivolts returns the comparator threshold in millivolts for the DAC
// code mdac when measuring VBUS.
func VBusMillivolts(mdac uint8) uint16 {
	return (uint16(mdac&0x3F) + 1) * 420
}

// VBusMDAC returns the DAC code whose VBUS threshold is nearest to mv. Values
// under the first step map to code 0.
func VBusMDAC(mv uint16) uint8 {
	n := (uint32(mv) + 210) / 420
	if n == 0 {
		return 0
	}
	if n > 0x40 {
		n = 0x40
	}
	return uint8(n - 1)
}

// Control0 is the value of the CONTROL0 register.
type Control0 uint8

// Control0 bits.
const (
	Control0AutoPre     Control0 = 1 << 1
	Control0HostCurMask Control0 = 0b11 << 2
	Control0IntMask     Control0 = 1 << 5
	Control0TxFlush     Control0 = 1 << 6
)

// HostCurrent returns the current advertised by the pull-ups.
func (c Control0) HostCurrent() typec.Current {
	return typec.Current((c & Control0HostCurMask) >> 2)
}

// WithHostCurrent returns c advertising cur through the pull-ups.
func (c Control0) WithHostCurrent(cur typec.Current) Control0 {
	return (c &^ Control0HostCurMask) | (Control0(cur&0b11) << 2)
}

// ToggleMode selects what the hardware toggle block looks for.
type ToggleMode uint8

// Toggle modes.
const (
	ToggleModeDRP ToggleMode = 0b01
	ToggleModeSnk ToggleMode = 0b10
	ToggleModeSrc ToggleMode = 0b11
)

// Control2 is the value of the CONTROL2 register which drives the hardware
// toggle block.
type Control2 uint8

// Control2 bits.
const (
	Control2Toggle   Control2 = 1 << 0
	Control2ModeMask Control2 = 0b11 << 1
)

// Toggle returns true if the hardware toggle block is running.
func (c Control2) Toggle() bool {
	return c&Control2Toggle != 0
}

// WithToggle returns c with the toggle block started or stopped.
func (c Control2) WithToggle(on bool) Control2 {
	if on {
		return c | Control2Toggle
	}
	return c &^ Control2Toggle
}

// Mode returns the toggle mode.
func (c Control2) Mode() ToggleMode {
	return ToggleMode((c & Control2ModeMask) >> 1)
}

// WithMode returns c with the toggle mode set to m.
func (c Control2) WithMode(m ToggleMode) Control2 {
	return (c &^ Control2ModeMask) | Control2(m&0b11)<<1
}

// Power is the value of the POWER register.
type Power uint8

// Power blocks.
const (
	PowerBandgap    Power = 1 << 0
	PowerReceiver   Power = 1 << 1
	PowerMeasure    Power = 1 << 2
	PowerOscillator Power = 1 << 3

	PowerDetect = PowerBandgap | PowerReceiver | PowerMeasure
	PowerAll    = PowerDetect | PowerOscillator
)

// Interrupt mask bits. A set bit masks the interrupt.
const (
	MaskBCLevel    = 1 << 0
	MaskCollision  = 1 << 1
	MaskWake       = 1 << 2
	MaskAlert      = 1 << 3
	MaskCRCChk     = 1 << 4
	MaskCompChange = 1 << 5
	MaskActivity   = 1 << 6
	MaskVBusOK     = 1 << 7

	MaskATogDone = 1 << 6

	MaskBGCRCSent = 1 << 0
)

// TogSS is the result reported by the hardware toggle block.
type TogSS uint8

// Toggle results.
const (
	TogSSRunning TogSS = 0b000
	TogSSSrcCC1  TogSS = 0b001 // Rd found on CC1, we are source
	TogSSSrcCC2  TogSS = 0b010 // Rd found on CC2, we are source
	TogSSSnkCC1  TogSS = 0b101 // Rp found on CC1, we are sink
	TogSSSnkCC2  TogSS = 0b110 // Rp found on CC2, we are sink
	TogSSAudio   TogSS = 0b111 // Ra on both pins
)

// Status holds the status and interrupt registers read in a single burst
// from RegStatus0A. Interrupt registers clear on read.
type Status struct {
	Status0A   uint8
	Status1A   uint8
	InterruptA uint8
	InterruptB uint8
	Status0    uint8
	Status1    uint8
	Interrupt  uint8
}

// StatusLen is the number of registers in a status burst.
const StatusLen = 7

const (
	interruptATogDone = 1 << 6
	status0VBusOK     = 1 << 7
	status0Comp       = 1 << 5
	status0BCLvlMask  = 0b11
	status1ATogSSPos  = 3
	status1ATogSSMask = 0b111
)

// TogDone returns true if the toggle block finished since the last read.
func (s Status) TogDone() bool {
	return s.InterruptA&interruptATogDone != 0
}

// TogSS returns the toggle block result.
func (s Status) TogSS() TogSS {
	return TogSS((s.Status1A >> status1ATogSSPos) & status1ATogSSMask)
}

// VBusOK returns true if VBUS is above the chip's vVBUSthr.
func (s Status) VBusOK() bool {
	return s.Status0&status0VBusOK != 0
}

// Comp returns true if the measured signal is above the measure DAC.
func (s Status) Comp() bool {
	return s.Status0&status0Comp != 0
}

// BCLevel returns the 2-bit level code of the measured CC pin.
func (s Status) BCLevel() uint8 {
	return s.Status0 & status0BCLvlMask
}

// ReadStatus reads the whole status block into s.
func (f *Device) ReadStatus(s *Status) error {
	var b [StatusLen]byte
	if err := f.Read(RegStatus0A, b[:]); err != nil {
		return err
	}
	*s = Status{
		Status0A:   b[0],
		Status1A:   b[1],
		InterruptA: b[2],
		InterruptB: b[3],
		Status0:    b[4],
		Status1:    b[5],
		Interrupt:  b[6],
	}
	return nil
}

// ReadStatus0 refreshes only the STATUS0 and STATUS1 registers of s. It's
// used after each comparator measurement.
func (f *Device) ReadStatus0(s *Status) error {
	var b [2]byte
	if err := f.Read(RegStatus0, b[:]); err != nil {
		return err
	}
	s.Status0, s.Status1 = b[0], b[1]
	return nil
}

// Registers mirrors the configuration registers written by the connection
// state machine. Keeping the mirror avoids read-modify-write cycles.
type Registers struct {
	Switches0 Switches0
	Switches1 Switches1
	Measure   Measure
	Control0  Control0
	Control2  Control2
	Power     Power
}

// WriteSwitches writes both switch registers of r.
func (f *Device) WriteSwitches(r *Registers) error {
	return f.Write(RegSwitches0, []byte{byte(r.Switches0), byte(r.Switches1)})
}

// WriteSwitches0 writes only the SWITCHES0 register of r.
func (f *Device) WriteSwitches0(r *Registers) error {
	return f.write(RegSwitches0, byte(r.Switches0))
}

// WriteMeasure writes the MEASURE register of r.
func (f *Device) WriteMeasure(r *Registers) error {
	return f.write(RegMeasure, byte(r.Measure))
}

// WriteControl0 writes the CONTROL0 register of r.
func (f *Device) WriteControl0(r *Registers) error {
	return f.write(RegControl0, byte(r.Control0))
}

// WriteControl2 writes the CONTROL2 register of r.
func (f *Device) WriteControl2(r *Registers) error {
	return f.write(RegControl2, byte(r.Control2))
}

// WritePower writes the POWER register of r.
func (f *Device) WritePower(r *Registers) error {
	return f.write(RegPower, byte(r.Power))
}

// WriteMasks writes the three interrupt mask registers.
func (f *Device) WriteMasks(mask, maskA, maskB uint8) error {
	if err := f.write(RegMask, mask); err != nil {
		return err
	}
	if err := f.write(RegMaskA, maskA); err != nil {
		return err
	}
	return f.write(RegMaskB, maskB)
}
