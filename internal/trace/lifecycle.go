package trace

import "fmt"

// Lifecycle is one boot-to-shutdown period of a device. It holds
// non-owning references to the first and last records seen in it.
type Lifecycle struct {
	ECUID string
	ID    int

	first *Record
	last  *Record
}

// NewLifecycle creates a lifecycle anchored at first. The first record is
// fixed for the lifetime of the lifecycle.
func NewLifecycle(ecuID string, id int, first *Record) *Lifecycle {
	return &Lifecycle{ECUID: ecuID, ID: id, first: first, last: first}
}

// First returns the record that opened the lifecycle.
func (l *Lifecycle) First() *Record { return l.first }

// Last returns the most recently processed record of the lifecycle.
func (l *Lifecycle) Last() *Record { return l.last }

// SetLast records rec as the most recent record. nil is ignored.
func (l *Lifecycle) SetLast(rec *Record) {
	if rec != nil {
		l.last = rec
	}
}

func (l *Lifecycle) String() string {
	return fmt.Sprintf("lifecycle %d (%s)", l.ID, l.ECUID)
}
