package analyser

import (
	"errors"
	"strings"
	"testing"

	"tracelyse/internal/plugin"
	"tracelyse/internal/trace"
)

func instance(name string, f plugin.Filter) *plugin.Instance {
	p := &recorder{name: name, filter: f}
	return plugin.NewInstance(plugin.Descriptor{Name: name}, p, nil)
}

func routeNames(r Route) []string {
	var out []string
	for inst := range r.All() {
		out = append(out, inst.Name())
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		f    plugin.Filter
		want error
	}{
		{"greedy", plugin.All(), nil},
		{"exact", plugin.Pairs(plugin.Match("A", "B"), plugin.Match("C", "D")), nil},
		{"wildcards without overlap", plugin.Pairs(plugin.Match("A", ""), plugin.Match("", "D"), plugin.Match("X", "Y")), nil},
		{"same apid different kinds of wildcard", plugin.Pairs(plugin.Match("A", ""), plugin.Match("", "A")), nil},
		{"identical pairs", plugin.Pairs(plugin.Match("A", "B"), plugin.Match("A", "B")), nil},
		{"unset", plugin.Filter{}, ErrInvalidFilter},
		{"both components empty", plugin.Pairs(plugin.Match("", "")), ErrInvalidFilter},
		{"empty", plugin.Pairs(), ErrEmptyFilter},
		{"apid duplicate", plugin.Pairs(plugin.Match("A", "B"), plugin.Match("A", "")), ErrDuplicateFilter},
		{"ctid duplicate", plugin.Pairs(plugin.Match("", "B"), plugin.Match("A", "B")), ErrDuplicateFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]*plugin.Instance{instance("p", tt.f)})
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if !strings.Contains(err.Error(), "p - ") {
				t.Errorf("error should name the plugin and filter: %v", err)
			}
		})
	}
}

func TestNewCollectorRejectsInvalid(t *testing.T) {
	_, err := NewCollector([]*plugin.Instance{
		instance("good", plugin.All()),
		instance("bad", plugin.Pairs()),
	}, nil)
	if !errors.Is(err, ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}
}

func TestLookupPriorityAndLoadOrder(t *testing.T) {
	c, err := NewCollector([]*plugin.Instance{
		instance("greedy1", plugin.All()),
		instance("ctid", plugin.Pairs(plugin.Match("", "B"))),
		instance("exact2", plugin.Pairs(plugin.Match("A", "B"))),
		instance("apid", plugin.Pairs(plugin.Match("A", ""))),
		instance("exact1", plugin.Pairs(plugin.Match("A", "B"), plugin.Match("Q", "R"))),
		instance("greedy2", plugin.All()),
		instance("other", plugin.Pairs(plugin.Match("X", "Y"))),
	}, nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	got := strings.Join(routeNames(c.Lookup("A", "B")), ",")
	if got != "exact2,exact1,apid,ctid,greedy1,greedy2" {
		t.Errorf("Lookup(A, B) = %s", got)
	}
	got = strings.Join(routeNames(c.Lookup("Q", "R")), ",")
	if got != "exact1,greedy1,greedy2" {
		t.Errorf("Lookup(Q, R) = %s", got)
	}
	got = strings.Join(routeNames(c.Lookup("Z", "Z")), ",")
	if got != "greedy1,greedy2" {
		t.Errorf("Lookup(Z, Z) = %s", got)
	}
}

func TestLookupInvokesAtMostOnce(t *testing.T) {
	c, err := NewCollector([]*plugin.Instance{
		instance("dup", plugin.Pairs(plugin.Match("A", "B"), plugin.Match("A", "B"))),
		instance("crossed", plugin.Pairs(plugin.Match("A", ""), plugin.Match("", "B"))),
	}, nil)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	got := strings.Join(routeNames(c.Lookup("A", "B")), ",")
	if got != "dup,crossed" {
		t.Errorf("Lookup(A, B) = %s", got)
	}
	// The crossed plugin still matches through either wildcard alone.
	if got := strings.Join(routeNames(c.Lookup("Z", "B")), ","); got != "crossed" {
		t.Errorf("Lookup(Z, B) = %s", got)
	}
	if got := strings.Join(routeNames(c.Lookup("A", "Z")), ","); got != "crossed" {
		t.Errorf("Lookup(A, Z) = %s", got)
	}
}

func TestRouteAllStopsEarly(t *testing.T) {
	c := Build([]*plugin.Instance{instance("g1", plugin.All()), instance("g2", plugin.All())})
	n := 0
	for range c.Lookup("A", "B").All() {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected iteration to stop after 1, got %d", n)
	}
}

func TestCollectorFilters(t *testing.T) {
	c := Build([]*plugin.Instance{
		instance("p1", plugin.Pairs(plugin.Match("A", "B"), plugin.Match("C", ""))),
		instance("p2", plugin.Pairs(plugin.Match("A", "B"), plugin.Match("", "D"))),
	})
	want := []trace.Pair{plugin.Match("A", "B"), plugin.Match("C", ""), plugin.Match("", "D")}
	got := c.Filters()
	if len(got) != len(want) {
		t.Fatalf("Filters() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Filters()[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if c.Greedy() {
		t.Error("collector without greedy plugins reports greedy")
	}

	c = Build([]*plugin.Instance{
		instance("p1", plugin.Pairs(plugin.Match("A", "B"))),
		instance("g", plugin.All()),
	})
	if c.Filters() != nil {
		t.Errorf("expected nil filters with a greedy plugin, got %v", c.Filters())
	}

	c = Build(nil)
	if f := c.Filters(); f == nil || len(f) != 0 {
		t.Errorf("expected empty non-nil filters without plugins, got %#v", f)
	}
}
