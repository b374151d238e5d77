// Package statelog records connection state transitions for later retrieval
// by a host. The log has a fixed capacity and drops new entries once full
// until entries are read out.
package statelog

import (
	"sync"
	"time"
)

// Capacity is the number of entries the log holds.
const Capacity = 512

// MaxDump is the most entries a single Dump returns.
const MaxDump = 12

// EntrySize is the encoded size of an entry in a dump.
const EntrySize = 6

// Entry is a logged state transition.
type Entry struct {
	State uint16 // state entered
	MS    uint16 // milliseconds part of the time stamp
	S     uint16 // seconds part of the time stamp, wraps
}

// NewEntry returns the entry for entering state at time t since start.
func NewEntry(state uint16, t time.Duration) Entry {
	return Entry{
		State: state,
		MS:    uint16((t / time.Millisecond) % 1000),
		S:     uint16(t / time.Second),
	}
}

// Log is a bounded FIFO of entries. It's safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries [Capacity]Entry
	head    int // oldest entry
	n       int
	dropped int
}

// New returns an empty log.
func New() *Log {
	return &Log{}
}

// Add appends an entry for entering state at t. It returns false and drops
// the entry if the log is full.
func (l *Log) Add(state uint16, t time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.n == Capacity {
		l.dropped++
		return false
	}
	l.entries[(l.head+l.n)%Capacity] = NewEntry(state, t)
	l.n++
	return true
}

// Len returns the number of entries in the log.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.n
}

// Dropped returns the number of entries dropped since the log was created.
func (l *Log) Dropped() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Read removes up to len(e) of the oldest entries into e and returns how many
// it removed.
func (l *Log) Read(e []Entry) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := 0
	for ; k < len(e) && l.n > 0; k++ {
		e[k] = l.entries[l.head]
		l.head = (l.head + 1) % Capacity
		l.n--
	}
	return k
}

// Dump removes up to MaxDump entries and appends them to b in the wire
// format: a count byte followed by each entry's state, milliseconds and
// seconds as big endian 16-bit words.
func (l *Log) Dump(b []byte) []byte {
	var e [MaxDump]Entry
	n := l.Read(e[:])
	b = append(b, byte(n))
	for _, x := range e[:n] {
		b = append(b,
			byte(x.State>>8), byte(x.State),
			byte(x.MS>>8), byte(x.MS),
			byte(x.S>>8), byte(x.S),
		)
	}
	return b
}
