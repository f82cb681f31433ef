// Package trace defines the data model shared by the decoder, the analyser
// and the plugins: decoded trace records, classification pairs, lifecycles,
// and the Source boundary through which records are pulled.
package trace

import (
	"fmt"
	"time"
)

// Record is one decoded trace message. Records are produced by a Source and
// handed to plugins by pointer; nobody mutates a record after it has been
// yielded.
type Record struct {
	ECUID     string    `json:"ecuid" msgpack:"ecuid"`
	APID      string    `json:"apid" msgpack:"apid"`
	CTID      string    `json:"ctid" msgpack:"ctid"`
	SessionID uint32    `json:"sid,omitempty" msgpack:"sid,omitempty"`
	Counter   uint8     `json:"mcnt,omitempty" msgpack:"mcnt,omitempty"`
	Timestamp time.Time `json:"ts" msgpack:"ts"`
	Tmsp      float64   `json:"tmsp,omitempty" msgpack:"tmsp,omitempty"` // seconds since boot
	Payload   string    `json:"payload" msgpack:"payload"`
}

// Pair returns the classification pair of the record.
func (r *Record) Pair() Pair {
	return Pair{APID: r.APID, CTID: r.CTID}
}

func (r *Record) String() string {
	return fmt.Sprintf("%s %s %s %s [%s]", r.Timestamp.Format(time.RFC3339Nano), r.ECUID, r.APID, r.CTID, r.Payload)
}

// Pair is an (APID, CTID) classification pair. An empty component is a
// wildcard that matches any value.
type Pair struct {
	APID string
	CTID string
}

// Match reports whether a record with the given identifiers matches p.
func (p Pair) Match(apid, ctid string) bool {
	return (p.APID == "" || p.APID == apid) && (p.CTID == "" || p.CTID == ctid)
}

// Wildcard reports whether either component is empty.
func (p Pair) Wildcard() bool {
	return p.APID == "" || p.CTID == ""
}

func (p Pair) String() string {
	return fmt.Sprintf("(%q, %q)", p.APID, p.CTID)
}
