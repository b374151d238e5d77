// Package typec defines the shared vocabulary of a USB Type-C connection
// detection stack: connection states, CC line terminations, port types and
// the events raised on attach and detach.
package typec

// ConnState is the state of the Type-C connection state machine. Exactly one
// state is active at a time.
type ConnState uint8

// Connection states. The ordinal values are reported to hosts as is and must
// not be reordered.
const (
	StateDisabled ConnState = iota
	StateErrorRecovery
	StateUnattached
	StateDelayUnattached
	StateUnattachedSource
	StateAttachWaitSink
	StateAttachedSink
	StateAttachWaitSource
	StateAttachedSource
	StateAttachWaitAccessory
	StateAudioAccessory
	StateDebugAccessory
	StatePoweredAccessory
	StateUnsupportedAccessory
	StateTrySource
	StateTryWaitSink
	StateTrySink
	StateTryWaitSource
)

func (s ConnState) String() string {
	switch s {
	case StateDisabled:
		return "Disabled"
	case StateErrorRecovery:
		return "ErrorRecovery"
	case StateUnattached:
		return "Unattached"
	case StateDelayUnattached:
		return "DelayUnattached"
	case StateUnattachedSource:
		return "UnattachedSource"
	case StateAttachWaitSink:
		return "AttachWaitSink"
	case StateAttachedSink:
		return "AttachedSink"
	case StateAttachWaitSource:
		return "AttachWaitSource"
	case StateAttachedSource:
		return "AttachedSource"
	case StateAttachWaitAccessory:
		return "AttachWaitAccessory"
	case StateAudioAccessory:
		return "AudioAccessory"
	case StateDebugAccessory:
		return "DebugAccessory"
	case StatePoweredAccessory:
		return "PoweredAccessory"
	case StateUnsupportedAccessory:
		return "UnsupportedAccessory"
	case StateTrySource:
		return "TrySource"
	case StateTryWaitSink:
		return "TryWaitSink"
	case StateTrySink:
		return "TrySink"
	case StateTryWaitSource:
		return "TryWaitSource"
	default:
		return "INVALID"
	}
}

// CCTerm is the termination sensed on a CC line. The values are ordered and
// the ordering is meaningful: every value between CCRdUSB and CCRd3A0
// inclusive is a valid sink pull-down of some current capability. When the
// port is a sink, the same values classify the partner's pull-up.
type CCTerm uint8

// CC terminations, in increasing order.
const (
	CCOpen      CCTerm = iota // Nothing attached
	CCRa                      // Accessory/cable pull-down
	CCRdUSB                   // Sink pull-down, or default USB current pull-up
	CCRd1A5                   // 1.5A pull-up as seen by a sink
	CCRd3A0                   // 3.0A pull-up as seen by a sink
	CCUndefined               // Not debounced yet
)

// IsRd returns true if t is a valid sink pull-down of any current capability.
func (t CCTerm) IsRd() bool {
	return t >= CCRdUSB && t < CCUndefined
}

func (t CCTerm) String() string {
	switch t {
	case CCOpen:
		return "Open"
	case CCRa:
		return "Ra"
	case CCRdUSB:
		return "RdUSB"
	case CCRd1A5:
		return "Rd1A5"
	case CCRd3A0:
		return "Rd3A0"
	case CCUndefined:
		return "Undefined"
	default:
		return "INVALID"
	}
}

// PortType is the role capability of a port.
type PortType uint8

// Port types, with values matching the host control byte.
const (
	PortSink PortType = iota
	PortSource
	PortDRP
)

func (p PortType) String() string {
	switch p {
	case PortSink:
		return "Sink"
	case PortSource:
		return "Source"
	case PortDRP:
		return "DRP"
	default:
		return "INVALID"
	}
}

// Current is a 5V current level. It is used both for the current a source
// port advertises and for the classification of what an attached source
// offers to a sink port.
type Current uint8

// Current levels, with values matching the host control byte.
const (
	CurrentNone Current = iota
	CurrentDefault
	Current1A5
	Current3A0
)

func (c Current) String() string {
	switch c {
	case CurrentNone:
		return "None"
	case CurrentDefault:
		return "Default"
	case Current1A5:
		return "1.5A"
	case Current3A0:
		return "3.0A"
	default:
		return "INVALID"
	}
}

// Role is the power role a port presents on a CC line.
type Role uint8

// Power roles.
const (
	RoleSink Role = iota
	RoleSource
)

// Opposite returns the other role.
func (r Role) Opposite() Role {
	if r == RoleSink {
		return RoleSource
	}
	return RoleSink
}

func (r Role) String() string {
	if r == RoleSource {
		return "Source"
	}
	return "Sink"
}

// CCPin identifies one of the two CC lines of the connector.
type CCPin uint8

// CC pins. CCNone means the orientation is not known yet.
const (
	CCNone CCPin = iota
	CC1
	CC2
)

func (p CCPin) String() string {
	switch p {
	case CC1:
		return "CC1"
	case CC2:
		return "CC2"
	default:
		return "None"
	}
}

// Event can store multiple events and return them in priority order.
type Event uint16

// Pop returns the next high priority event and clears it.
func (e *Event) Pop() Event {
	if *e == 0 {
		return EventNone
	}
	for r := Event(1); r <= 0x8000; r <<= 1 {
		if *e&r != 0 {
			*e &= ^r
			return r
		}
	}
	return EventNone // will never get here
}

// Add adds the events v to the set.
func (e *Event) Add(v Event) {
	*e |= v
}

// Has returns true if the event v is set without clearing it.
func (e Event) Has(v Event) bool {
	return e&v != 0
}

func (e Event) String() string {
	switch e {
	case EventNone:
		return "None"
	case EventDetached:
		return "Detached"
	case EventAttachedSource:
		return "AttachedSource"
	case EventAttachedSink:
		return "AttachedSink"
	case EventAccessory:
		return "Accessory"
	case EventSinkCurrent:
		return "SinkCurrent"
	case EventStateChange:
		return "StateChange"
	default:
		return "INVALID"
	}
}

// EventNone represents no event.
const EventNone Event = 0

// The events are listed in order of priority from highest to lowest. This
// means that in presence of multiple pending events, highest priority one is
// attended to first.
const (
	EventDetached       Event = 1 << iota // Port partner went away
	EventAttachedSource                   // Attached as source, VBUS is on
	EventAttachedSink                     // Attached as sink to a powered source
	EventAccessory                        // An accessory was classified
	EventSinkCurrent                      // Current offered by the attached source changed
	EventStateChange                      // Any state transition
)
