package analyser

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"slices"

	"tracelyse/internal/logging"
	"tracelyse/internal/plugin"
	"tracelyse/internal/trace"
)

var (
	// ErrInvalidFilter is returned for a filter that is neither greedy nor a
	// list of pairs, or that contains a pair with both components empty.
	ErrInvalidFilter = errors.New("invalid message filter setting")
	// ErrEmptyFilter is returned for a pair filter without pairs.
	ErrEmptyFilter = errors.New("message filter should not be empty")
	// ErrDuplicateFilter is returned when a fully qualified pair shares its
	// APID with an APID-wildcard pair, or its CTID with a CTID-wildcard pair,
	// of the same filter.
	ErrDuplicateFilter = errors.New("duplicated message filter setting")
)

// Validate checks the filters of all instances. It is a load-time gate; the
// dispatch path never validates.
func Validate(instances []*plugin.Instance) error {
	for _, inst := range instances {
		if err := validateFilter(inst.Filter()); err != nil {
			return fmt.Errorf("%w: %s - %s", err, inst.Name(), inst.Filter())
		}
	}
	return nil
}

func validateFilter(f plugin.Filter) error {
	switch f.Kind {
	case plugin.FilterAll:
		return nil
	case plugin.FilterPairs:
	default:
		return ErrInvalidFilter
	}
	if len(f.Pairs) == 0 {
		return ErrEmptyFilter
	}

	apids := make(map[string]bool)
	ctids := make(map[string]bool)
	for _, p := range f.Pairs {
		switch {
		case p.APID == "" && p.CTID == "":
			return ErrInvalidFilter
		case p.CTID == "":
			apids[p.APID] = true
		case p.APID == "":
			ctids[p.CTID] = true
		}
	}
	for _, p := range f.Pairs {
		if p.APID != "" && p.CTID != "" && (apids[p.APID] || ctids[p.CTID]) {
			return ErrDuplicateFilter
		}
	}
	return nil
}

// Collector is the routing table. It is built once from the loaded
// instances and never mutated afterwards, so lookups take no locks.
type Collector struct {
	exact  map[trace.Pair][]*plugin.Instance
	apid   map[string][]*plugin.Instance
	ctid   map[string][]*plugin.Instance
	greedy []*plugin.Instance

	// crossed holds instances with both APID-wildcard and CTID-wildcard
	// pairs; only they can match two buckets for the same record.
	crossed map[*plugin.Instance]bool

	filters []trace.Pair // nil if any instance is greedy
}

// Build partitions instances into the four buckets. Within each bucket
// instances keep the order they were given in. Instances must have been
// validated.
func Build(instances []*plugin.Instance) *Collector {
	c := &Collector{
		exact:   make(map[trace.Pair][]*plugin.Instance),
		apid:    make(map[string][]*plugin.Instance),
		ctid:    make(map[string][]*plugin.Instance),
		crossed: make(map[*plugin.Instance]bool),
	}

	greedy := false
	seenFilter := make(map[trace.Pair]bool)
	for _, inst := range instances {
		f := inst.Filter()
		if f.Greedy() {
			c.greedy = append(c.greedy, inst)
			greedy = true
			continue
		}

		seen := make(map[trace.Pair]bool, len(f.Pairs))
		var hasAPID, hasCTID bool
		for _, p := range f.Pairs {
			if seen[p] {
				continue
			}
			seen[p] = true
			switch {
			case p.APID != "" && p.CTID != "":
				c.exact[p] = append(c.exact[p], inst)
			case p.APID != "":
				c.apid[p.APID] = append(c.apid[p.APID], inst)
				hasAPID = true
			case p.CTID != "":
				c.ctid[p.CTID] = append(c.ctid[p.CTID], inst)
				hasCTID = true
			}
			if !seenFilter[p] {
				seenFilter[p] = true
				c.filters = append(c.filters, p)
			}
		}
		if hasAPID && hasCTID {
			c.crossed[inst] = true
		}
	}
	if greedy {
		c.filters = nil
	} else if c.filters == nil {
		c.filters = []trace.Pair{}
	}
	return c
}

// NewCollector validates and builds the routing table.
func NewCollector(instances []*plugin.Instance, logger *slog.Logger) (*Collector, error) {
	if err := Validate(instances); err != nil {
		return nil, err
	}
	c := Build(instances)
	logger = logging.Default(logger).With("component", "collector")
	logger.Debug("routing table built",
		"exact", len(c.exact),
		"apid", len(c.apid),
		"ctid", len(c.ctid),
		"greedy", names(c.greedy))
	return c, nil
}

// Route is the result of a lookup: the instances interested in one record,
// by bucket.
type Route struct {
	Exact  []*plugin.Instance
	APID   []*plugin.Instance
	CTID   []*plugin.Instance
	Greedy []*plugin.Instance

	crossed map[*plugin.Instance]bool
}

// Lookup returns the instances interested in a record with the given
// identifiers.
func (c *Collector) Lookup(apid, ctid string) Route {
	return Route{
		Exact:   c.exact[trace.Pair{APID: apid, CTID: ctid}],
		APID:    c.apid[apid],
		CTID:    c.ctid[ctid],
		Greedy:  c.greedy,
		crossed: c.crossed,
	}
}

// All yields the instances in priority order: exact, APID, CTID, greedy.
// Each instance is yielded at most once.
func (r Route) All() iter.Seq[*plugin.Instance] {
	return func(yield func(*plugin.Instance) bool) {
		for _, inst := range r.Exact {
			if !yield(inst) {
				return
			}
		}
		for _, inst := range r.APID {
			if !yield(inst) {
				return
			}
		}
		for _, inst := range r.CTID {
			if len(r.crossed) > 0 && r.crossed[inst] && slices.Contains(r.APID, inst) {
				continue
			}
			if !yield(inst) {
				return
			}
		}
		for _, inst := range r.Greedy {
			if !yield(inst) {
				return
			}
		}
	}
}

// Filters returns the union of all non-greedy pairs in load order, or nil
// if any instance wants every record.
func (c *Collector) Filters() []trace.Pair {
	if c.filters == nil {
		return nil
	}
	return slices.Clone(c.filters)
}

// Greedy reports whether any instance wants every record.
func (c *Collector) Greedy() bool {
	return len(c.greedy) > 0
}

func names(instances []*plugin.Instance) []string {
	out := make([]string, len(instances))
	for i, inst := range instances {
		out[i] = inst.Name()
	}
	return out
}
