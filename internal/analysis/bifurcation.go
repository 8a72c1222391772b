package analysis

import (
	"context"
	"fmt"
	"strings"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/sim"
)

// BifurcationPoint holds the maxima found for one parameter value.
type BifurcationPoint struct {
	Param  float64
	Values []float64
}

type BifurcationConfig struct {
	Param     string
	Values    []float64
	Index     int
	Transient float64
	// Run bounds each member; Duration must exceed Transient.
	Run     sim.Config
	Workers int
}

// Bifurcation runs sys once per parameter value and records the maxima
// of component Index after the transient. Members run concurrently.
func Bifurcation(
	ctx context.Context,
	sys dynamo.System,
	integ dynamo.AdaptiveIntegrator,
	y0 dynamo.State,
	cfg BifurcationConfig,
) ([]BifurcationPoint, error) {
	tunable, ok := sys.(dynamo.Configurable)
	if !ok {
		return nil, sim.ErrNotConfigurable
	}
	if cfg.Run.Duration <= cfg.Transient {
		return nil, fmt.Errorf("bifurcation: duration %g must exceed transient %g", cfg.Run.Duration, cfg.Transient)
	}
	if cfg.Index < 0 || cfg.Index >= sys.StateDim() {
		return nil, fmt.Errorf("bifurcation: index %d out of range", cfg.Index)
	}

	members := make([]sim.Member, len(cfg.Values))
	for i, v := range cfg.Values {
		next, err := tunable.WithParam(cfg.Param, v)
		if err != nil {
			return nil, err
		}
		members[i] = sim.Member{System: next, Y0: y0}
	}

	run := cfg.Run
	run.Record = true
	results, err := sim.NewEnsemble(integ, run, cfg.Workers).Run(ctx, members)
	if err != nil {
		return nil, err
	}

	points := make([]BifurcationPoint, len(results))
	for i, res := range results {
		settled := res.Samples
		for len(settled) > 0 && settled[0].T < cfg.Transient {
			settled = settled[1:]
		}
		points[i] = BifurcationPoint{
			Param:  cfg.Values[i],
			Values: ZMaxima(settled, cfg.Index),
		}
	}
	return points, nil
}

// Sweep returns n evenly spaced values from lo to hi inclusive.
func Sweep(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	return out
}

// BifurcationToASCII plots parameter across and recorded values up.
func BifurcationToASCII(data []BifurcationPoint, width, height int) string {
	if len(data) == 0 || width <= 0 || height <= 0 {
		return ""
	}

	var minVal, maxVal float64
	foundFirst := false
	for _, p := range data {
		for _, v := range p.Values {
			if !foundFirst {
				minVal, maxVal = v, v
				foundFirst = true
				continue
			}
			minVal = min(minVal, v)
			maxVal = max(maxVal, v)
		}
	}
	if !foundFirst {
		return ""
	}
	if maxVal == minVal {
		maxVal = minVal + 1
	}

	canvas := blankCanvas(width, height)
	for i, p := range data {
		col := i * width / len(data)
		if col >= width {
			col = width - 1
		}
		for _, v := range p.Values {
			row := height - 1 - int((v-minVal)/(maxVal-minVal)*float64(height-1))
			if row >= 0 && row < height {
				canvas[row][col] = '•'
			}
		}
	}
	return renderCanvas(canvas)
}

func blankCanvas(width, height int) [][]rune {
	canvas := make([][]rune, height)
	for i := range canvas {
		canvas[i] = make([]rune, width)
		for j := range canvas[i] {
			canvas[i][j] = ' '
		}
	}
	return canvas
}

func renderCanvas(canvas [][]rune) string {
	var sb strings.Builder
	for _, row := range canvas {
		sb.WriteString(string(row))
		sb.WriteRune('\n')
	}
	return sb.String()
}
