package metrics

import (
	"math"

	"github.com/san-kum/lorenz/internal/sim"
)

// Bounds records the largest |y_i| seen per component. Value is the
// largest over all components. Samples beyond threshold count as escapes;
// a zero threshold disables the count.
type Bounds struct {
	name      string
	threshold float64
	max       []float64
	escapes   int
}

func NewBounds(threshold float64) *Bounds {
	return &Bounds{
		name:      "max_abs",
		threshold: threshold,
	}
}

func (b *Bounds) Name() string {
	return b.name
}

func (b *Bounds) Observe(s sim.Sample) {
	if len(b.max) < len(s.Y) {
		grown := make([]float64, len(s.Y))
		copy(grown, b.max)
		b.max = grown
	}
	escaped := false
	for i, v := range s.Y {
		a := math.Abs(v)
		b.max[i] = math.Max(b.max[i], a)
		if b.threshold > 0 && a > b.threshold {
			escaped = true
		}
	}
	if escaped {
		b.escapes++
	}
}

func (b *Bounds) Value() float64 {
	m := 0.0
	for _, v := range b.max {
		m = math.Max(m, v)
	}
	return m
}

// Component returns the largest |y_i| seen for component i.
func (b *Bounds) Component(i int) float64 {
	if i < 0 || i >= len(b.max) {
		return 0
	}
	return b.max[i]
}

func (b *Bounds) Escapes() int { return b.escapes }

func (b *Bounds) Reset() {
	b.max = b.max[:0]
	b.escapes = 0
}
