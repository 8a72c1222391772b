package sim_test

import (
	"context"
	"errors"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/integrators"
	"github.com/san-kum/lorenz/internal/physics"
	"github.com/san-kum/lorenz/internal/sim"
)

type countingMetric struct {
	n, resets int
}

func (c *countingMetric) Name() string       { return "count" }
func (c *countingMetric) Observe(sim.Sample) { c.n++ }
func (c *countingMetric) Value() float64     { return float64(c.n) }

func (c *countingMetric) Reset() {
	c.n = 0
	c.resets++
}

// poisoned blows up once t passes After.
type poisoned struct {
	After float64
}

func (p poisoned) StateDim() int { return 1 }
func (p poisoned) Derive(t float64, y dynamo.State) dynamo.State {
	if t > p.After {
		return dynamo.State{math.NaN()}
	}
	return dynamo.State{-y[0]}
}

func newDriver(sys dynamo.System, mutate func(*sim.Config)) *sim.Driver {
	cfg := sim.DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	d, err := sim.New(sys, integrators.NewRKQC(), cfg)
	Expect(err).NotTo(HaveOccurred())
	return d
}

var _ = Describe("Driver", func() {
	ctx := context.Background()

	Describe("configuration", func() {
		DescribeTable("rejects invalid configs",
			func(mutate func(*sim.Config), target error) {
				cfg := sim.DefaultConfig()
				mutate(&cfg)
				_, err := sim.New(physics.NewDecay(), integrators.NewRKQC(), cfg)
				Expect(err).To(HaveOccurred())
				if target != nil {
					Expect(errors.Is(err, target)).To(BeTrue())
				}
			},
			Entry("zero tolerance", func(c *sim.Config) { c.Tolerance = 0 }, dynamo.ErrInvalidTolerance),
			Entry("NaN tolerance", func(c *sim.Config) { c.Tolerance = math.NaN() }, dynamo.ErrInvalidTolerance),
			Entry("zero step", func(c *sim.Config) { c.InitialStep = 0 }, dynamo.ErrInvalidStep),
			Entry("zero block size", func(c *sim.Config) { c.BlockSize = 0 }, nil),
			Entry("negative steps", func(c *sim.Config) { c.MaxSteps = -1 }, nil),
			Entry("negative duration", func(c *sim.Config) { c.Duration = -1 }, nil),
		)

		It("uses the classic defaults", func() {
			cfg := sim.DefaultConfig()
			Expect(cfg.Tolerance).To(Equal(2e-5))
			Expect(cfg.InitialStep).To(Equal(0.005))
			Expect(cfg.BlockSize).To(Equal(50))
		})

		It("refuses to run before Reset", func() {
			d := newDriver(physics.NewDecay(), nil)
			_, err := d.Step()
			Expect(err).To(HaveOccurred())
			_, err = d.Run(ctx, nil)
			Expect(err).To(HaveOccurred())
		})

		It("rejects initial states of the wrong size", func() {
			d := newDriver(physics.NewLorenz(), nil)
			err := d.Reset(dynamo.State{1, 2})
			Expect(errors.Is(err, dynamo.ErrDimensionMismatch)).To(BeTrue())
			Expect(d.Reset(dynamo.State{1, math.NaN(), 0})).To(MatchError(dynamo.ErrInvalidState))
		})
	})

	Describe("running", func() {
		It("tracks exponential decay to the requested tolerance", func() {
			sys := physics.Decay{K: 1, Dim: 2}
			y0 := dynamo.State{1, -3}
			d := newDriver(sys, func(c *sim.Config) { c.Duration = 1 })
			Expect(d.Reset(y0)).To(Succeed())

			res, err := d.Run(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stopped).To(Equal(sim.StopDuration))
			Expect(res.T).To(BeNumerically(">=", 1.0))

			want := sys.Exact(res.T, y0)
			for i := range want {
				Expect(res.Final[i]).To(BeNumerically("~", want[i], 1e-4*math.Abs(want[i])))
			}
			Expect(res.Initial).To(Equal(y0))
		})

		It("records one sample per accepted step with consistent times", func() {
			d := newDriver(physics.NewLorenz(), func(c *sim.Config) { c.MaxSteps = 200 })
			Expect(d.Reset(physics.NewLorenz().DefaultState())).To(Succeed())

			res, err := d.Run(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stopped).To(Equal(sim.StopSteps))
			Expect(res.Samples).To(HaveLen(200))
			Expect(res.StepsTaken).To(Equal(200))

			t := 0.0
			for i, s := range res.Samples {
				Expect(s.Step).To(Equal(i + 1))
				Expect(s.HDid).To(BeNumerically(">", 0))
				t += s.HDid
				Expect(s.T).To(BeNumerically("~", t, 1e-9))
			}
			Expect(res.Evaluations).To(BeNumerically(">=", 11*200))
			Expect(res.Params).To(HaveKeyWithValue("r", 25.0))
		})

		It("is deterministic", func() {
			run := func() *sim.Result {
				d := newDriver(physics.NewLorenz(), func(c *sim.Config) { c.MaxSteps = 500 })
				Expect(d.Reset(physics.NewLorenz().DefaultState())).To(Succeed())
				res, err := d.Run(ctx, nil)
				Expect(err).NotTo(HaveOccurred())
				return res
			}
			a, b := run(), run()
			Expect(a.Final).To(Equal(b.Final))
			Expect(a.T).To(Equal(b.T))
			Expect(a.Rejections).To(Equal(b.Rejections))
		})

		It("resets metrics and feeds them every step", func() {
			m := &countingMetric{n: 99}
			d := newDriver(physics.NewDecay(), func(c *sim.Config) { c.MaxSteps = 10; c.Record = false })
			d.AddMetric(m)
			Expect(d.Reset(dynamo.State{1})).To(Succeed())

			res, err := d.Run(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.resets).To(Equal(1))
			Expect(res.Metrics).To(HaveKeyWithValue("count", 10.0))
			Expect(res.Samples).To(BeEmpty())
		})

		It("stops on context cancellation", func() {
			cctx, cancel := context.WithCancel(ctx)
			d := newDriver(physics.NewLorenz(), nil)
			Expect(d.Reset(physics.NewLorenz().DefaultState())).To(Succeed())
			d.AddObserver(sim.ObserverFunc(func(s sim.Sample) {
				if s.Step == 7 {
					cancel()
				}
			}))

			res, err := d.Run(cctx, nil)
			Expect(err).To(MatchError(context.Canceled))
			Expect(res.Stopped).To(Equal(sim.StopCanceled))
			Expect(res.Samples).To(HaveLen(7))
		})

		It("keeps the last good state when integration fails", func() {
			d := newDriver(poisoned{After: 0.05}, nil)
			Expect(d.Reset(dynamo.State{1})).To(Succeed())

			res, err := d.Run(ctx, nil)
			Expect(err).To(HaveOccurred())

			var simErr *dynamo.SimulationError
			Expect(errors.As(err, &simErr)).To(BeTrue())
			Expect(errors.Is(err, dynamo.ErrInvalidState)).To(BeTrue())
			Expect(res.Stopped).To(Equal(sim.StopFailed))
			Expect(res.Final.IsValid()).To(BeTrue())
			Expect(res.StepsTaken).To(BeNumerically(">", 0))
		})
	})

	Describe("commands", func() {
		var (
			d    *sim.Driver
			cmds chan sim.Command
		)

		BeforeEach(func() {
			d = newDriver(physics.NewLorenz(), func(c *sim.Config) {
				c.BlockSize = 5
				c.MaxSteps = 1000
			})
			Expect(d.Reset(physics.NewLorenz().DefaultState())).To(Succeed())
			cmds = make(chan sim.Command, 8)
		})

		It("quits before stepping when Quit is already queued", func() {
			cmds <- sim.Quit{}
			res, err := d.Run(ctx, cmds)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stopped).To(Equal(sim.StopQuit))
			Expect(res.StepsTaken).To(Equal(0))
		})

		It("polls only at block boundaries", func() {
			d.AddObserver(sim.ObserverFunc(func(s sim.Sample) {
				if s.Step == 3 {
					cmds <- sim.Quit{}
				}
			}))
			res, err := d.Run(ctx, cmds)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stopped).To(Equal(sim.StopQuit))
			Expect(res.Samples).To(HaveLen(5))
		})

		It("adjusts parameters without touching the original system", func() {
			orig := d.System()
			cmds <- sim.AdjustParam{Name: "r", Delta: -0.4}
			cmds <- sim.AdjustParam{Name: "b", Delta: math.Pi / 16}
			res, err := d.Run(ctx, cmds)
			Expect(err).NotTo(HaveOccurred())

			Expect(res.Params["r"]).To(BeNumerically("~", 24.6, 1e-12))
			Expect(res.Params["b"]).To(BeNumerically("~", 8.0/3.0+math.Pi/16, 1e-12))
			Expect(orig.(physics.Lorenz).R).To(Equal(25.0))
		})

		It("fails on unknown parameters", func() {
			cmds <- sim.AdjustParam{Name: "gamma", Delta: 1}
			res, err := d.Run(ctx, cmds)
			Expect(errors.Is(err, dynamo.ErrUnknownParam)).To(BeTrue())
			Expect(res.Stopped).To(Equal(sim.StopFailed))
		})

		It("rejects parameter commands on fixed systems", func() {
			fixed := newDriver(poisoned{After: 10}, nil)
			Expect(fixed.Reset(dynamo.State{1})).To(Succeed())
			Expect(fixed.Apply(sim.SetParam{Name: "k", Value: 2})).To(MatchError(sim.ErrNotConfigurable))
		})

		It("restarts from a new point at the current time", func() {
			for i := 0; i < 10; i++ {
				_, err := d.Step()
				Expect(err).NotTo(HaveOccurred())
			}
			t := d.Time()
			Expect(d.Apply(sim.Restart{State: dynamo.State{1, 1, 1}})).To(Succeed())
			Expect(d.State()).To(Equal(dynamo.State{1, 1, 1}))
			Expect(d.Time()).To(Equal(t))
			Expect(d.NextStep()).To(Equal(0.005))

			Expect(d.Apply(sim.Restart{State: dynamo.State{1}})).To(HaveOccurred())
		})

		It("nudges without rewriting samples already handed out", func() {
			s, err := d.Step()
			Expect(err).NotTo(HaveOccurred())
			z := s.Y[2]

			Expect(d.Apply(sim.Nudge{Index: 2, Delta: 0.5})).To(Succeed())
			Expect(s.Y[2]).To(Equal(z))
			Expect(d.State()[2]).To(Equal(z + 0.5))

			Expect(d.Apply(sim.Nudge{Index: 3, Delta: 1})).To(HaveOccurred())
			Expect(d.Apply(sim.Nudge{Index: 0, Delta: math.Inf(1)})).To(MatchError(dynamo.ErrInvalidState))
		})

		It("treats a closed channel as no more commands", func() {
			close(cmds)
			res, err := d.Run(ctx, cmds)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Stopped).To(Equal(sim.StopSteps))
		})
	})
})
