package viz

import (
	"math"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/integrators"
	"github.com/san-kum/lorenz/internal/physics"
	"github.com/san-kum/lorenz/internal/sim"
)

func TestProject(t *testing.T) {
	y := dynamo.State{3, 4, 5}

	u, v := Project(y, 0)
	if u != 3 || v != 5 {
		t.Errorf("beta=0: got (%g, %g), want (3, 5)", u, v)
	}

	u, v = Project(y, math.Pi/2)
	if math.Abs(u-4) > 1e-12 || v != 5 {
		t.Errorf("beta=pi/2: got (%g, %g), want (4, 5)", u, v)
	}

	u, v = Project(dynamo.State{2}, math.Pi/3)
	if math.Abs(u-1) > 1e-12 || v != 0 {
		t.Errorf("short state: got (%g, %g), want (1, 0)", u, v)
	}
}

func TestUnprojectInverse(t *testing.T) {
	for _, beta := range []float64{0, math.Pi / 4, 1.3, -2} {
		y := Unproject(7.5, 12, beta, 3)
		u, v := Project(y, beta)
		if math.Abs(u-7.5) > 1e-12 || math.Abs(v-12) > 1e-12 {
			t.Errorf("beta=%g: round trip gave (%g, %g)", beta, u, v)
		}
	}
	if y := Unproject(1, 2, 0, 4); len(y) != 4 || y[3] != 0 {
		t.Errorf("dim 4: got %v", y)
	}
}

func TestViewportMapping(t *testing.T) {
	c := NewCanvas(10, 5)
	v := Viewport{XMin: -1, XMax: 1, YMin: 0, YMax: 2}

	px, py, ok := v.ToPixel(c, -1, 2)
	if !ok || px != 0 || py != 0 {
		t.Errorf("top-left: got (%d, %d, %v)", px, py, ok)
	}
	px, py, ok = v.ToPixel(c, 1, 0)
	if !ok || px != 19 || py != 19 {
		t.Errorf("bottom-right: got (%d, %d, %v)", px, py, ok)
	}
	if _, _, ok := v.ToPixel(c, 1.5, 1); ok {
		t.Error("point outside viewport should not map")
	}
	if _, _, ok := v.ToPixel(c, math.NaN(), 1); ok {
		t.Error("NaN should not map")
	}

	x, y := v.ToWorld(c, 19, 0)
	if math.Abs(x-1) > 1e-12 || math.Abs(y-2) > 1e-12 {
		t.Errorf("ToWorld corner: got (%g, %g)", x, y)
	}
}

func TestFitViewportCoversEveryAngle(t *testing.T) {
	samples := []sim.Sample{
		{Y: dynamo.State{3, 4, 10}},
		{Y: dynamo.State{-1, 0, 2}},
		{Y: dynamo.State{0, -2, 30}},
	}
	v := FitViewport(samples, 0.05)
	c := NewCanvas(40, 20)

	for beta := 0.0; beta < 2*math.Pi; beta += math.Pi / 16 {
		for _, s := range samples {
			u, z := Project(s.Y, beta)
			if _, _, ok := v.ToPixel(c, u, z); !ok {
				t.Fatalf("beta=%g: %v falls outside %+v", beta, s.Y, v)
			}
		}
	}

	empty := FitViewport(nil, 0.1)
	if empty.XMax <= empty.XMin || empty.YMax <= empty.YMin {
		t.Errorf("empty viewport is degenerate: %+v", empty)
	}
}

func TestCanvas(t *testing.T) {
	c := NewCanvas(4, 2)
	if c.Dots() != 0 {
		t.Fatalf("new canvas has %d dots", c.Dots())
	}

	c.Set(0, 0)
	c.Set(7, 7)
	c.Set(7, 7)
	c.Set(-1, 3)
	c.Set(8, 0)
	if c.Dots() != 2 {
		t.Errorf("expected 2 dots, got %d", c.Dots())
	}
	if !c.IsSet(7, 7) || c.IsSet(1, 1) {
		t.Error("IsSet disagrees with Set")
	}
	if c.Grid[0][0] != 0x2801 {
		t.Errorf("expected ⠁, got %q", c.Grid[0][0])
	}

	cl := c.Clone()
	cl.Box(3, 3)
	if c.Dots() != 2 {
		t.Error("drawing on a clone changed the original")
	}

	c.Clear()
	if c.Dots() != 0 {
		t.Errorf("clear left %d dots", c.Dots())
	}

	lines := strings.Split(strings.TrimSuffix(c.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 rows, got %d", len(lines))
	}
}

func TestCanvasAxes(t *testing.T) {
	c := NewCanvas(10, 5)
	c.Axes(Viewport{XMin: -1, XMax: 1, YMin: -1, YMax: 1})
	// One vertical and one horizontal line crossing once.
	if got, want := c.Dots(), 20+20-1; got != want {
		t.Errorf("expected %d dots, got %d", want, got)
	}

	c.Clear()
	c.Axes(Viewport{XMin: 1, XMax: 2, YMin: 1, YMax: 2})
	if c.Dots() != 0 {
		t.Error("axes outside the viewport should not be drawn")
	}
}

func TestThemes(t *testing.T) {
	if GetTheme("minimal").Name != "minimal" {
		t.Error("GetTheme did not find minimal")
	}
	if GetTheme("nope").Name != ThemePhosphor.Name {
		t.Error("unknown theme should fall back to phosphor")
	}
	names := ThemeNames()
	if NextTheme(names[len(names)-1]).Name != names[0] {
		t.Error("NextTheme should wrap around")
	}
}

func TestSparkline(t *testing.T) {
	st := NewStyles(ThemeMinimal)
	if got := st.Sparkline(nil, 5); got != "─────" {
		t.Errorf("empty sparkline: %q", got)
	}
	if got := st.Sparkline([]float64{0, 1, 2}, 10); !strings.Contains(got, "▁") || !strings.Contains(got, "█") {
		t.Errorf("sparkline missing extremes: %q", got)
	}
}

func newLorenzModel(t *testing.T, opts Options) Model {
	t.Helper()
	cfg := sim.DefaultConfig()
	sys := physics.NewLorenz()
	if opts.Param == "" {
		opts.Param = "r"
	}
	if opts.DeltaParam == 0 {
		opts.DeltaParam = 0.4
	}
	if opts.DeltaBeta == 0 {
		opts.DeltaBeta = math.Pi / 16
	}
	m, err := NewModel(sys, integrators.NewRKQC(), sys.DefaultState(), cfg, opts)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return nm, cmd
}

func key(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func TestModelTickAdvancesOneBlock(t *testing.T) {
	m := newLorenzModel(t, Options{Beta: math.Pi / 4})

	m, cmd := update(t, m, TickMsg{})
	if cmd == nil {
		t.Fatal("tick should schedule the next tick")
	}
	if m.Points() != 50 || m.Driver().Steps() != 50 {
		t.Errorf("expected one block of 50 steps, got %d points, %d steps", m.Points(), m.Driver().Steps())
	}
	if m.Driver().Time() <= 0 {
		t.Error("time did not advance")
	}

	m, _ = update(t, m, TickMsg{})
	if m.Points() != 100 {
		t.Errorf("expected 100 points after two ticks, got %d", m.Points())
	}
	if !strings.Contains(m.View(), "points") {
		t.Error("view is missing the stats panel")
	}
}

func TestModelPause(t *testing.T) {
	m := newLorenzModel(t, Options{})
	m, _ = update(t, m, key(" "))
	if m.Running() {
		t.Fatal("space should pause")
	}
	m, _ = update(t, m, TickMsg{})
	if m.Points() != 0 {
		t.Errorf("paused model advanced %d points", m.Points())
	}
	if !strings.Contains(m.View(), "PAUSED") {
		t.Error("view should show PAUSED")
	}
}

func TestModelQuit(t *testing.T) {
	for _, k := range []string{"q", "x"} {
		m := newLorenzModel(t, Options{})
		m, _ = update(t, m, TickMsg{})
		m, cmd := update(t, m, key(k))
		if !isQuit(cmd) {
			t.Errorf("%q should quit", k)
		}
		if m.Points() != 50 {
			t.Errorf("%q: quitting should not step, got %d points", k, m.Points())
		}
	}
}

func TestModelQuitWithFullQueue(t *testing.T) {
	m := newLorenzModel(t, Options{})
	m, _ = update(t, m, key(" "))
	for i := 0; i < queueSize+1; i++ {
		m, _ = update(t, m, key("c"))
	}
	if m.StatusMessage() != "command queue full" {
		t.Fatalf("status: %q", m.StatusMessage())
	}

	m, cmd := update(t, m, key("q"))
	if !isQuit(cmd) {
		t.Fatal("q should quit with a full queue")
	}
	want := 0.7 + float64(queueSize)*0.5
	if got := m.Driver().State()[2]; math.Abs(got-want) > 1e-12 {
		t.Errorf("queued nudges before quit: z = %v, want %v", got, want)
	}
}

func TestModelQuitAfterFailedCommand(t *testing.T) {
	m := newLorenzModel(t, Options{Param: "nope"})
	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, key("R"))
	m, cmd := update(t, m, key("q"))
	if !isQuit(cmd) {
		t.Fatal("q should quit even when a queued command fails")
	}
}

func TestModelAdjustParam(t *testing.T) {
	m := newLorenzModel(t, Options{})
	m, _ = update(t, m, key("R"))
	m, _ = update(t, m, key("R"))
	m, _ = update(t, m, key("r"))
	m, _ = update(t, m, TickMsg{})

	r := m.Driver().System().(dynamo.Configurable).Params()["r"]
	if math.Abs(r-25.4) > 1e-12 {
		t.Errorf("expected r=25.4, got %g", r)
	}
}

func TestModelUnknownParamKeepsRunning(t *testing.T) {
	m := newLorenzModel(t, Options{Param: "nope"})
	m, _ = update(t, m, key("R"))
	m, _ = update(t, m, TickMsg{})

	if m.Err() != nil {
		t.Errorf("unknown parameter should not be fatal: %v", m.Err())
	}
	if !m.Running() || !strings.Contains(m.StatusMessage(), "unknown parameter") {
		t.Errorf("expected status about the parameter, got %q", m.StatusMessage())
	}

	m, _ = update(t, m, TickMsg{})
	if m.Points() != 50 {
		t.Errorf("model should keep integrating, got %d points", m.Points())
	}
}

func TestModelRotateClears(t *testing.T) {
	m := newLorenzModel(t, Options{Beta: math.Pi / 4})
	axes := m.Canvas().Dots()
	m, _ = update(t, m, TickMsg{})
	if m.Canvas().Dots() <= axes {
		t.Fatal("tick plotted nothing")
	}

	m, _ = update(t, m, key("b"))
	if math.Abs(m.Beta()-3*math.Pi/16) > 1e-12 {
		t.Errorf("expected beta 3pi/16, got %g", m.Beta())
	}
	if m.Canvas().Dots() != axes {
		t.Error("rotating should clear the trajectory")
	}
	m, _ = update(t, m, key("B"))
	m, _ = update(t, m, key("B"))
	if math.Abs(m.Beta()-5*math.Pi/16) > 1e-12 {
		t.Errorf("expected beta 5pi/16, got %g", m.Beta())
	}
}

func TestModelNudge(t *testing.T) {
	m := newLorenzModel(t, Options{})
	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, key("c"))
	m, cmd := update(t, m, key("q"))
	if !isQuit(cmd) {
		t.Fatal("q should quit")
	}

	got := m.Driver().State()
	if math.Abs(got[2]-1.2) > 1e-12 || got[0] != 0.6 {
		t.Errorf("expected z nudged to 1.2, got %v", got)
	}
}

func TestModelRestartAtCursor(t *testing.T) {
	m := newLorenzModel(t, Options{Beta: math.Pi / 4})
	m, _ = update(t, m, key(" "))
	m, _ = update(t, m, key("left"))
	m, _ = update(t, m, key("i"))
	if !strings.Contains(m.StatusMessage(), "new starting point") {
		t.Errorf("status: %q", m.StatusMessage())
	}
	m, _ = update(t, m, key("q"))

	cx, cy := m.Cursor()
	u, v := m.opts.View.ToWorld(m.Canvas(), cx, cy)
	want := Unproject(u, v, math.Pi/4, 3)
	got := m.Driver().State()
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("expected restart at %v, got %v", want, got)
		}
	}
	if m.Driver().Time() != 0 {
		t.Errorf("restart should keep time, got %g", m.Driver().Time())
	}
}

func TestModelThemeCycle(t *testing.T) {
	m := newLorenzModel(t, Options{Theme: "phosphor"})
	m, _ = update(t, m, key("t"))
	if m.ThemeName() != NextTheme("phosphor").Name {
		t.Errorf("expected next theme, got %s", m.ThemeName())
	}
}

func TestModelInvalidConfig(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.Tolerance = 0
	sys := physics.NewLorenz()
	if _, err := NewModel(sys, integrators.NewRKQC(), sys.DefaultState(), cfg, Options{}); err == nil {
		t.Error("expected an error for zero tolerance")
	}
	if _, err := NewModel(sys, integrators.NewRKQC(), dynamo.State{1}, sim.DefaultConfig(), Options{}); err == nil {
		t.Error("expected an error for a short state")
	}
}
