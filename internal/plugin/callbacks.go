package plugin

import (
	"errors"

	"tracelyse/internal/trace"
)

// HandlerFunc processes one record on behalf of a callback.
type HandlerFunc func(rec *trace.Record) error

// Callback binds a handler to a classification pair. Both components empty
// means the handler is greedy.
type Callback struct {
	Pair trace.Pair
	Fn   HandlerFunc
}

// On returns a callback for records matching apid and ctid. An empty
// component is a wildcard.
func On(apid, ctid string, fn HandlerFunc) Callback {
	return Callback{Pair: trace.Pair{APID: apid, CTID: ctid}, Fn: fn}
}

// OnTemplate specializes a template handler for one pair and its userdata,
// typically the payload pattern the handler looks for. The same template can
// be registered for several pairs.
func OnTemplate[T any](apid, ctid string, userdata T, fn func(rec *trace.Record, apid, ctid string, userdata T) error) Callback {
	return On(apid, ctid, func(rec *trace.Record) error {
		return fn(rec, apid, ctid, userdata)
	})
}

// Callbacks is a handler table built once from callbacks. Plugins embed it
// (or hold one) to derive their Filter and dispatch records to handlers.
type Callbacks struct {
	exact  map[trace.Pair][]HandlerFunc
	apid   map[string][]HandlerFunc
	ctid   map[string][]HandlerFunc
	greedy []HandlerFunc
	pairs  []trace.Pair
}

// NewCallbacks builds a handler table. Handlers for the same record run in
// this order: exact pair, APID only, CTID only, greedy; within each group in
// the order given.
func NewCallbacks(cbs ...Callback) *Callbacks {
	c := &Callbacks{
		exact: make(map[trace.Pair][]HandlerFunc),
		apid:  make(map[string][]HandlerFunc),
		ctid:  make(map[string][]HandlerFunc),
	}
	seen := make(map[trace.Pair]bool)
	for _, cb := range cbs {
		p := cb.Pair
		switch {
		case p.APID == "" && p.CTID == "":
			c.greedy = append(c.greedy, cb.Fn)
			continue
		case p.CTID == "":
			c.apid[p.APID] = append(c.apid[p.APID], cb.Fn)
		case p.APID == "":
			c.ctid[p.CTID] = append(c.ctid[p.CTID], cb.Fn)
		default:
			c.exact[p] = append(c.exact[p], cb.Fn)
		}
		if !seen[p] {
			seen[p] = true
			c.pairs = append(c.pairs, p)
		}
	}
	return c
}

// Filter returns the filter covering every callback: greedy if any callback
// is greedy, otherwise the distinct pairs in registration order.
func (c *Callbacks) Filter() Filter {
	if len(c.greedy) > 0 {
		return All()
	}
	return Pairs(c.pairs...)
}

// Handle runs every matching handler. All handlers run even if one fails;
// the failures are joined.
func (c *Callbacks) Handle(rec *trace.Record) error {
	var errs []error
	run := func(fns []HandlerFunc) {
		for _, fn := range fns {
			if err := fn(rec); err != nil {
				errs = append(errs, err)
			}
		}
	}
	run(c.exact[trace.Pair{APID: rec.APID, CTID: rec.CTID}])
	run(c.apid[rec.APID])
	run(c.ctid[rec.CTID])
	run(c.greedy)
	return errors.Join(errs...)
}
