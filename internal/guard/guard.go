// Package guard clamps scalar and geometric values into safe domains.
// Guarding never fails: every call returns a usable value and records a
// diagnostic event for any non-trivial branch taken.
package guard

import (
	"log/slog"
	"math"
)

// Kind classifies the diagnostic recorded when a guard intervenes.
type Kind string

const (
	KindNil             Kind = "nil"
	KindNonFinite       Kind = "non_finite"
	KindOutOfRange      Kind = "out_of_range"
	KindInvalidGeometry Kind = "invalid_geometry"
)

// Guard validates values against domains, recording diagnostics as it goes.
type Guard struct {
	rec    *Recorder
	logger *slog.Logger
}

// New creates a Guard. logger may be nil.
func New(logger *slog.Logger) *Guard {
	return &Guard{rec: NewRecorder(), logger: logger}
}

// Recorder returns the diagnostic recorder.
func (g *Guard) Recorder() *Recorder {
	return g.rec
}

func (g *Guard) record(kind Kind, field string, value float64) {
	g.rec.Record(kind)
	if g.logger != nil {
		g.logger.Debug("value guarded", "kind", string(kind), "field", field, "value", value)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Float returns *value when present, finite, and inside [lo, hi]. An absent
// or non-finite value yields def clamped into the domain; an out-of-range
// value is clamped into the domain.
func (g *Guard) Float(value *float64, lo, hi, def float64) float64 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if value == nil {
		g.record(KindNil, "float", 0)
		return clamp(def, lo, hi)
	}
	v := *value
	if math.IsNaN(v) || math.IsInf(v, 0) {
		g.record(KindNonFinite, "float", v)
		return clamp(def, lo, hi)
	}
	if v < lo || v > hi {
		g.record(KindOutOfRange, "float", v)
		return clamp(v, lo, hi)
	}
	return v
}

// Int is the integer form of Float.
func (g *Guard) Int(value *int, lo, hi, def int) int {
	if lo > hi {
		lo, hi = hi, lo
	}
	if value == nil {
		g.record(KindNil, "int", 0)
		v := def
		if v < lo {
			v = lo
		}
		if v > hi {
			v = hi
		}
		return v
	}
	v := *value
	if v < lo || v > hi {
		g.record(KindOutOfRange, "int", float64(v))
		if v < lo {
			return lo
		}
		return hi
	}
	return v
}

// Page clamps a page number into [1, max(1, totalPages)].
func (g *Guard) Page(page, totalPages int) int {
	hi := totalPages
	if hi < 1 {
		hi = 1
	}
	return g.Int(&page, 1, hi, 1)
}

// Percent clamps a percentage into [0, 100] with a default of 0.
func (g *Guard) Percent(p float64) float64 {
	return g.Float(&p, 0, 100, 0)
}

// Rect is an axis-aligned rectangle.
type Rect struct {
	X, Y, W, H float64
}

// Size is a width/height pair.
type Size struct {
	W, H float64
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// RectIn returns r when finite, non-degenerate, and contained in bounds;
// otherwise the offending dimensions are repaired and the result clamped
// into bounds.
func (g *Guard) RectIn(r Rect, bounds Rect) Rect {
	if !finite(r.X, r.Y, r.W, r.H) {
		g.record(KindNonFinite, "rect", 0)
		return bounds
	}
	if r.W < 0 || r.H < 0 {
		g.record(KindInvalidGeometry, "rect", r.W*r.H)
		if r.W < 0 {
			r.W = 0
		}
		if r.H < 0 {
			r.H = 0
		}
	}
	out := r
	out.W = clamp(out.W, 0, bounds.W)
	out.H = clamp(out.H, 0, bounds.H)
	out.X = clamp(out.X, bounds.X, bounds.X+bounds.W-out.W)
	out.Y = clamp(out.Y, bounds.Y, bounds.Y+bounds.H-out.H)
	if out != r {
		g.record(KindOutOfRange, "rect", 0)
	}
	return out
}

// SizeIn clamps a size into (0, max]. Non-finite or non-positive dimensions
// fall back to def.
func (g *Guard) SizeIn(s Size, max Size, def Size) Size {
	if !finite(s.W, s.H) {
		g.record(KindNonFinite, "size", 0)
		s = def
	}
	if s.W <= 0 || s.H <= 0 {
		g.record(KindInvalidGeometry, "size", s.W*s.H)
		s = def
	}
	if s.W > max.W || s.H > max.H {
		g.record(KindOutOfRange, "size", s.W*s.H)
	}
	return Size{W: clamp(s.W, 1, max.W), H: clamp(s.H, 1, max.H)}
}
