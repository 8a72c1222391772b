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

var _ = Describe("Ensemble", func() {
	ctx := context.Background()

	cfg := func() sim.Config {
		c := sim.DefaultConfig()
		c.Duration = 1
		return c
	}

	It("returns results in member order", func() {
		members := make([]sim.Member, 6)
		for i := range members {
			members[i] = sim.Member{
				System: physics.Decay{K: float64(i + 1), Dim: 1},
				Y0:     dynamo.State{2},
			}
		}

		ens := sim.NewEnsemble(integrators.NewRKQC(), cfg(), 3)
		results, err := ens.Run(ctx, members)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(6))

		for i, res := range results {
			k := float64(i + 1)
			want := 2 * math.Exp(-k*res.T)
			Expect(res.Final[0]).To(BeNumerically("~", want, 1e-4*want))
			Expect(res.Params).To(HaveKeyWithValue("k", k))
		}
	})

	It("gives each member its own metrics", func() {
		ens := sim.NewEnsemble(integrators.NewRKQC(), cfg(), 0)
		ens.Metrics = func() []sim.Metric { return []sim.Metric{&countingMetric{}} }

		members := []sim.Member{
			{System: physics.NewDecay(), Y0: dynamo.State{1}},
			{System: physics.NewLorenz(), Y0: physics.NewLorenz().DefaultState()},
		}
		results, err := ens.Run(ctx, members)
		Expect(err).NotTo(HaveOccurred())
		for _, res := range results {
			Expect(res.Metrics["count"]).To(Equal(float64(res.StepsTaken)))
		}
	})

	It("reports the failing member", func() {
		members := []sim.Member{
			{System: physics.NewDecay(), Y0: dynamo.State{1}},
			{System: physics.NewLorenz(), Y0: dynamo.State{1}},
		}
		_, err := sim.NewEnsemble(integrators.NewRKQC(), cfg(), 2).Run(ctx, members)
		Expect(err).To(MatchError(ContainSubstring("member 1")))
	})

	It("keeps failed members when asked", func() {
		run := sim.DefaultConfig()
		run.Duration = 800
		members := []sim.Member{
			{System: physics.Decay{K: 0.01, Dim: 1}, Y0: dynamo.State{1}},
			{System: physics.Decay{K: -1, Dim: 1}, Y0: dynamo.State{1}},
		}
		ens := sim.NewEnsemble(integrators.NewRKQC(), run, 2)
		ens.KeepFailed = true
		results, err := ens.Run(ctx, members)
		Expect(err).NotTo(HaveOccurred())
		Expect(results).To(HaveLen(2))

		Expect(results[0].Err).NotTo(HaveOccurred())
		Expect(results[0].Stopped).To(Equal(sim.StopDuration))

		var simErr *dynamo.SimulationError
		Expect(errors.As(results[1].Err, &simErr)).To(BeTrue())
		Expect(results[1].Stopped).To(Equal(sim.StopFailed))
		Expect(results[1].T).To(BeNumerically("<", 800))
		Expect(results[1].Final.IsValid()).To(BeTrue())
	})

	It("still fails on setup errors when keeping failed members", func() {
		members := []sim.Member{{System: physics.NewLorenz(), Y0: dynamo.State{1}}}
		ens := sim.NewEnsemble(integrators.NewRKQC(), cfg(), 1)
		ens.KeepFailed = true
		_, err := ens.Run(ctx, members)
		Expect(err).To(MatchError(ContainSubstring("member 0")))
	})

	It("requires a stopping condition", func() {
		_, err := sim.NewEnsemble(integrators.NewRKQC(), sim.DefaultConfig(), 1).Run(ctx, nil)
		Expect(err).To(HaveOccurred())
	})
})
