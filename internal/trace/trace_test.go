package trace

import (
	"testing"
	"time"
)

func TestPairMatch(t *testing.T) {
	tests := []struct {
		pair       Pair
		apid, ctid string
		want       bool
	}{
		{Pair{"SYS", "JOUR"}, "SYS", "JOUR", true},
		{Pair{"SYS", "JOUR"}, "SYS", "FILE", false},
		{Pair{"SYS", ""}, "SYS", "FILE", true},
		{Pair{"", "FILE"}, "FLT", "FILE", true},
		{Pair{"", "FILE"}, "FLT", "JOUR", false},
		{Pair{"", ""}, "ANY", "THING", true},
	}
	for _, tt := range tests {
		if got := tt.pair.Match(tt.apid, tt.ctid); got != tt.want {
			t.Errorf("%v.Match(%q, %q) = %v, want %v", tt.pair, tt.apid, tt.ctid, got, tt.want)
		}
	}
}

func TestPairWildcard(t *testing.T) {
	if (Pair{"A", "B"}).Wildcard() {
		t.Error("fully qualified pair reported as wildcard")
	}
	if !(Pair{"A", ""}).Wildcard() || !(Pair{"", "B"}).Wildcard() {
		t.Error("wildcard pair not reported as wildcard")
	}
}

func TestLifecycleFirstAndLast(t *testing.T) {
	first := &Record{ECUID: "MGHS", APID: "DLTD", CTID: "INTM"}
	lc := NewLifecycle("MGHS", 3, first)

	if lc.First() != first || lc.Last() != first {
		t.Fatal("new lifecycle must start with first == last")
	}

	next := &Record{ECUID: "MGHS", APID: "SYS", CTID: "JOUR", Timestamp: time.Now()}
	lc.SetLast(next)
	lc.SetLast(nil)
	if lc.Last() != next {
		t.Errorf("Last() = %v, want %v", lc.Last(), next)
	}
	if lc.First() != first {
		t.Error("First() changed after SetLast")
	}
	if got := lc.String(); got != "lifecycle 3 (MGHS)" {
		t.Errorf("String() = %q", got)
	}
}
