package guard

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloat(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	inRange := 42.0
	tooHigh := 150.0
	tooLow := -5.0

	tests := []struct {
		name  string
		value *float64
		want  float64
		kind  Kind
	}{
		{"nil uses default", nil, 50, KindNil},
		{"nan uses default", &nan, 50, KindNonFinite},
		{"inf uses default", &inf, 50, KindNonFinite},
		{"in range passes through", &inRange, 42, ""},
		{"too high clamps to hi", &tooHigh, 100, KindOutOfRange},
		{"too low clamps to lo", &tooLow, 0, KindOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(nil)
			got := g.Float(tt.value, 0, 100, 50)
			assert.Equal(t, tt.want, got)
			if tt.kind != "" {
				assert.Equal(t, int64(1), g.Recorder().Count(tt.kind))
			} else {
				assert.Zero(t, g.Recorder().Total())
			}
		})
	}
}

func TestFloat_DefaultOutsideDomainIsClamped(t *testing.T) {
	g := New(nil)
	got := g.Float(nil, 10, 20, 99)
	assert.Equal(t, 20.0, got)
}

func TestFloat_InvertedDomainIsNormalized(t *testing.T) {
	g := New(nil)
	v := 15.0
	assert.Equal(t, 15.0, g.Float(&v, 20, 10, 10))
}

func TestPage(t *testing.T) {
	tests := []struct {
		name       string
		page       int
		totalPages int
		want       int
	}{
		{"zero total pages returns 1", 7, 0, 1},
		{"negative total pages returns 1", -3, -1, 1},
		{"clamps high", 99, 10, 10},
		{"clamps low", 0, 10, 1},
		{"valid passes", 5, 10, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(nil)
			assert.Equal(t, tt.want, g.Page(tt.page, tt.totalPages))
		})
	}
}

func TestPercent(t *testing.T) {
	g := New(nil)
	assert.Equal(t, 100.0, g.Percent(120))
	assert.Equal(t, 0.0, g.Percent(-1))
	assert.Equal(t, 55.5, g.Percent(55.5))
	assert.Equal(t, 0.0, g.Percent(math.NaN()))
	assert.Equal(t, int64(1), g.Recorder().Count(KindNonFinite))
}

func TestRectIn(t *testing.T) {
	bounds := Rect{X: 0, Y: 0, W: 100, H: 100}

	t.Run("contained is untouched", func(t *testing.T) {
		g := New(nil)
		r := Rect{X: 10, Y: 10, W: 20, H: 20}
		assert.Equal(t, r, g.RectIn(r, bounds))
		assert.Zero(t, g.Recorder().Total())
	})

	t.Run("negative dimensions repaired", func(t *testing.T) {
		g := New(nil)
		out := g.RectIn(Rect{X: 10, Y: 10, W: -5, H: 20}, bounds)
		assert.Equal(t, 0.0, out.W)
		assert.Equal(t, int64(1), g.Recorder().Count(KindInvalidGeometry))
	})

	t.Run("non-finite yields bounds", func(t *testing.T) {
		g := New(nil)
		out := g.RectIn(Rect{X: math.NaN(), Y: 0, W: 10, H: 10}, bounds)
		assert.Equal(t, bounds, out)
		assert.Equal(t, int64(1), g.Recorder().Count(KindNonFinite))
	})

	t.Run("overflow clamped into bounds", func(t *testing.T) {
		g := New(nil)
		out := g.RectIn(Rect{X: 90, Y: 90, W: 50, H: 50}, bounds)
		assert.LessOrEqual(t, out.X+out.W, bounds.X+bounds.W)
		assert.LessOrEqual(t, out.Y+out.H, bounds.Y+bounds.H)
		assert.Equal(t, int64(1), g.Recorder().Count(KindOutOfRange))
	})
}

func TestSizeIn(t *testing.T) {
	max := Size{W: 200, H: 200}
	def := Size{W: 50, H: 50}

	g := New(nil)
	assert.Equal(t, Size{W: 50, H: 50}, g.SizeIn(Size{W: 0, H: 10}, max, def))
	assert.Equal(t, int64(1), g.Recorder().Count(KindInvalidGeometry))

	g2 := New(nil)
	out := g2.SizeIn(Size{W: 500, H: 100}, max, def)
	assert.Equal(t, Size{W: 200, H: 100}, out)
	assert.Equal(t, int64(1), g2.Recorder().Count(KindOutOfRange))
}

func TestRecorder_Reset(t *testing.T) {
	g := New(nil)
	g.Percent(-10)
	assert.NotZero(t, g.Recorder().Total())
	g.Recorder().Reset()
	assert.Zero(t, g.Recorder().Total())
}
