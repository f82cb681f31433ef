package plugin

import (
	"strings"

	"tracelyse/internal/trace"
)

// FilterKind identifies the type of plugin filter.
type FilterKind int

const (
	// FilterUnset is the zero value; a plugin reporting it fails validation.
	FilterUnset FilterKind = iota
	// FilterAll means the plugin receives every record (greedy).
	FilterAll
	// FilterPairs means the plugin receives records matching one of its pairs.
	FilterPairs
)

func (k FilterKind) String() string {
	switch k {
	case FilterAll:
		return "all"
	case FilterPairs:
		return "pairs"
	default:
		return "unset"
	}
}

// Filter is a plugin's classification key.
type Filter struct {
	Kind  FilterKind
	Pairs []trace.Pair // only set for FilterPairs
}

// All returns the greedy filter.
func All() Filter {
	return Filter{Kind: FilterAll}
}

// Pairs returns a filter for the given classification pairs.
func Pairs(pairs ...trace.Pair) Filter {
	return Filter{Kind: FilterPairs, Pairs: pairs}
}

// Match is shorthand for a single pair; empty components are wildcards.
func Match(apid, ctid string) trace.Pair {
	return trace.Pair{APID: apid, CTID: ctid}
}

// Greedy reports whether the filter receives every record.
func (f Filter) Greedy() bool {
	return f.Kind == FilterAll
}

func (f Filter) String() string {
	switch f.Kind {
	case FilterAll:
		return "all"
	case FilterPairs:
		parts := make([]string, len(f.Pairs))
		for i, p := range f.Pairs {
			parts[i] = p.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return "unset"
	}
}
