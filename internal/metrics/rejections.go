package metrics

import "github.com/san-kum/lorenz/internal/sim"

// Rejections reports rejected trials per accepted step.
type Rejections struct {
	name     string
	rejected int
	accepted int
}

func NewRejections() *Rejections {
	return &Rejections{name: "rejection_rate"}
}

func (r *Rejections) Name() string { return r.name }

func (r *Rejections) Observe(s sim.Sample) {
	r.rejected += s.Rejected
	r.accepted++
}

func (r *Rejections) Value() float64 {
	if r.accepted == 0 {
		return 0
	}
	return float64(r.rejected) / float64(r.accepted)
}

func (r *Rejections) Total() int { return r.rejected }

func (r *Rejections) Reset() {
	r.rejected = 0
	r.accepted = 0
}
