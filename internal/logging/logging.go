// Package logging provides utilities for structured logging across tracelyse.
//
// Design principles:
//   - Logging is dependency-injected, never global
//   - Each component owns its own scoped logger
//   - Logger scoping happens once at construction time
//   - slog.With() is used to attach default attributes ("component", "plugin", ...)
//   - If no logger is provided, a discard logger is used
//
// Global configuration (output format, level, destination) belongs only in main().
// Components must never call slog.SetDefault or access global loggers.
//
// Logging is intentionally sparse:
//   - No logging inside the per-record dispatch loop, except plugin failures
//   - Lifecycle boundaries, file boundaries and report generation are the intended log points
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// discardHandler is a handler that discards all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// Discard returns a logger that discards all output.
// Use this as a default when no logger is provided.
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// Default returns the provided logger if non-nil, otherwise returns a discard logger.
// This is the standard pattern for optional logger parameters:
//
//	func New(cfg Config) *Analyser {
//	    logger := logging.Default(cfg.Logger)
//	    return &Analyser{logger: logger.With("component", "analyser")}
//	}
func Default(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return Discard()
}

// ParseLevel converts a level name (debug, info, warn, error) to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

// NewHandler builds the base output handler. format is "text" or "json".
func NewHandler(w io.Writer, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: slog.LevelDebug}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
}

// componentLevels is shared by a ComponentFilterHandler and all handlers
// derived from it through WithAttrs/WithGroup.
type componentLevels struct {
	mu       sync.RWMutex
	def      slog.Level
	levels   map[string]slog.Level
	minLevel slog.Level
}

func (c *componentLevels) level(component string) slog.Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if lvl, ok := c.levels[component]; ok {
		return lvl
	}
	return c.def
}

// recomputeMin must be called with mu held for writing.
func (c *componentLevels) recomputeMin() {
	minLevel := c.def
	for _, lvl := range c.levels {
		if lvl < minLevel {
			minLevel = lvl
		}
	}
	c.minLevel = minLevel
}

// ComponentFilterHandler filters records by the level configured for the
// record's "component" attribute, falling back to a default level.
// Records that pass are forwarded to the wrapped handler, which should
// accept every level.
type ComponentFilterHandler struct {
	next      slog.Handler
	levels    *componentLevels
	component string // set when "component" was attached via WithAttrs
}

// NewComponentFilterHandler wraps next with per-component level filtering.
func NewComponentFilterHandler(next slog.Handler, defaultLevel slog.Level) *ComponentFilterHandler {
	return &ComponentFilterHandler{
		next: next,
		levels: &componentLevels{
			def:      defaultLevel,
			levels:   make(map[string]slog.Level),
			minLevel: defaultLevel,
		},
	}
}

// SetLevel overrides the level for one component.
func (h *ComponentFilterHandler) SetLevel(component string, level slog.Level) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	h.levels.levels[component] = level
	h.levels.recomputeMin()
}

// ClearLevel removes a component override.
func (h *ComponentFilterHandler) ClearLevel(component string) {
	h.levels.mu.Lock()
	defer h.levels.mu.Unlock()
	delete(h.levels.levels, component)
	h.levels.recomputeMin()
}

// Level returns the effective level for a component.
func (h *ComponentFilterHandler) Level(component string) slog.Level {
	return h.levels.level(component)
}

// DefaultLevel returns the level used for components without an override.
func (h *ComponentFilterHandler) DefaultLevel() slog.Level {
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	return h.levels.def
}

func (h *ComponentFilterHandler) Enabled(_ context.Context, level slog.Level) bool {
	if h.component != "" {
		return level >= h.levels.level(h.component)
	}
	h.levels.mu.RLock()
	defer h.levels.mu.RUnlock()
	return level >= h.levels.minLevel
}

func (h *ComponentFilterHandler) Handle(ctx context.Context, r slog.Record) error {
	component := h.component
	if component == "" {
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "component" {
				component = a.Value.String()
				return false
			}
			return true
		})
	}
	if r.Level < h.levels.level(component) {
		return nil
	}
	if h.next == nil {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *ComponentFilterHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	for _, a := range attrs {
		if a.Key == "component" {
			clone.component = a.Value.String()
		}
	}
	if h.next != nil {
		clone.next = h.next.WithAttrs(attrs)
	}
	return &clone
}

func (h *ComponentFilterHandler) WithGroup(name string) slog.Handler {
	clone := *h
	if h.next != nil {
		clone.next = h.next.WithGroup(name)
	}
	return &clone
}
