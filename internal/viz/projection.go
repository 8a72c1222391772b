package viz

import (
	"math"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/sim"
)

// Project views a state from angle beta about the vertical axis: the
// horizontal coordinate is x*cos(beta) + y*sin(beta) and the vertical one
// is z. Missing components count as zero.
func Project(y dynamo.State, beta float64) (u, v float64) {
	var x0, x1, x2 float64
	if len(y) > 0 {
		x0 = y[0]
	}
	if len(y) > 1 {
		x1 = y[1]
	}
	if len(y) > 2 {
		x2 = y[2]
	}
	return x0*math.Cos(beta) + x1*math.Sin(beta), x2
}

// Unproject picks the state of dimension dim that lies in the viewing plane
// at (u, v). Components past the third are zero.
func Unproject(u, v, beta float64, dim int) dynamo.State {
	y := make(dynamo.State, dim)
	if dim > 0 {
		y[0] = u * math.Cos(beta)
	}
	if dim > 1 {
		y[1] = u * math.Sin(beta)
	}
	if dim > 2 {
		y[2] = v
	}
	return y
}

// Viewport is the world rectangle mapped onto a canvas.
type Viewport struct {
	XMin, XMax float64
	YMin, YMax float64
}

// FitViewport bounds a trajectory for every viewing angle: the horizontal
// range is the largest distance from the vertical axis, the vertical range
// spans z. margin is a fraction of each span added on both sides.
func FitViewport(samples []sim.Sample, margin float64) Viewport {
	if len(samples) == 0 {
		return Viewport{XMin: -1, XMax: 1, YMin: -1, YMax: 1}
	}

	radius := 0.0
	zMin, zMax := math.Inf(1), math.Inf(-1)
	for _, s := range samples {
		u, _ := Project(s.Y, 0)
		w, z := Project(s.Y, math.Pi/2)
		radius = math.Max(radius, math.Hypot(u, w))
		zMin = math.Min(zMin, z)
		zMax = math.Max(zMax, z)
	}
	if radius == 0 {
		radius = 1
	}
	if zMax-zMin == 0 {
		zMin--
		zMax++
	}

	padX := 2 * radius * margin
	padY := (zMax - zMin) * margin
	return Viewport{
		XMin: -radius - padX,
		XMax: radius + padX,
		YMin: zMin - padY,
		YMax: zMax + padY,
	}
}

// ToPixel maps world (x, y) to canvas sub-pixels. ok is false when the
// point falls outside the viewport.
func (v Viewport) ToPixel(c *Canvas, x, y float64) (px, py int, ok bool) {
	if x < v.XMin || x > v.XMax || y < v.YMin || y > v.YMax || math.IsNaN(x) || math.IsNaN(y) {
		return 0, 0, false
	}
	w, h := c.Width*2, c.Height*4
	fx := (x - v.XMin) / (v.XMax - v.XMin)
	fy := (v.YMax - y) / (v.YMax - v.YMin)
	px = int(fx * float64(w-1))
	py = int(fy * float64(h-1))
	return px, py, true
}

// ToWorld is the inverse of ToPixel.
func (v Viewport) ToWorld(c *Canvas, px, py int) (x, y float64) {
	w, h := c.Width*2, c.Height*4
	x = v.XMin + float64(px)/float64(w-1)*(v.XMax-v.XMin)
	y = v.YMax - float64(py)/float64(h-1)*(v.YMax-v.YMin)
	return x, y
}
