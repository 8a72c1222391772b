package viz

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/lorenz/internal/dynamo"
	"github.com/san-kum/lorenz/internal/sim"
)

const (
	DefaultWidth  = 60
	DefaultHeight = 24
	DefaultFPS    = 30

	historyCapacity = 240
	queueSize       = 16
)

type TickMsg time.Time

type Options struct {
	Title string
	// Param is the parameter r/R move by DeltaParam.
	Param      string
	DeltaParam float64
	Beta       float64
	DeltaBeta  float64
	// NudgeZ is added to the vertical component by the c key.
	NudgeZ float64
	View   Viewport
	Width  int
	Height int
	Theme  string
	FPS    int
}

// Model is a live view of one trajectory. Every tick runs one block of
// BlockSize accepted steps; key presses become sim commands that the
// driver applies at the start of the next block.
type Model struct {
	driver *sim.Driver
	cmds   chan sim.Command
	opts   Options
	theme  Theme
	styles Styles

	beta    float64
	canvas  *Canvas
	cursorX int
	cursorY int
	running bool
	points  int
	hdid    []float64
	rejects []float64
	status  string
	err     error
	done    bool
}

// NewModel resets a driver to y0 for interactive use. cfg's stopping
// conditions are replaced: the view runs until the user quits.
func NewModel(sys dynamo.System, integ dynamo.AdaptiveIntegrator, y0 dynamo.State, cfg sim.Config, opts Options) (Model, error) {
	cfg.MaxSteps = cfg.BlockSize
	cfg.Duration = 0
	cfg.Record = true

	d, err := sim.New(sys, integ, cfg)
	if err != nil {
		return Model{}, err
	}
	if err := d.Reset(y0); err != nil {
		return Model{}, err
	}

	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.NudgeZ == 0 {
		opts.NudgeZ = 0.5
	}
	if opts.View == (Viewport{}) {
		opts.View = Viewport{XMin: -30, XMax: 30, YMin: 0, YMax: 60}
	}
	theme := GetTheme(opts.Theme)

	m := Model{
		driver:  d,
		cmds:    make(chan sim.Command, queueSize),
		opts:    opts,
		theme:   theme,
		styles:  NewStyles(theme),
		beta:    opts.Beta,
		canvas:  NewCanvas(opts.Width, opts.Height),
		cursorX: opts.Width,
		cursorY: opts.Height * 2,
		running: true,
		hdid:    make([]float64, 0, historyCapacity),
		rejects: make([]float64, 0, historyCapacity),
	}
	m.canvas.Axes(opts.View)
	return m, nil
}

func (m Model) Init() tea.Cmd {
	return m.tick()
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(time.Second/time.Duration(m.opts.FPS), func(t time.Time) tea.Msg { return TickMsg(t) })
}

// Update handles input events and steps the simulation.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		m = m.handleKey(msg.String())
		if m.done {
			return m, tea.Quit
		}
	case TickMsg:
		if m.running {
			m = m.advance()
		}
		if m.done {
			return m, tea.Quit
		}
		return m, m.tick()
	}
	return m, nil
}

func (m Model) handleKey(key string) Model {
	switch key {
	case "q", "x", "ctrl+c":
		// Quit skips the queue so a full queue cannot swallow it. The
		// final advance still applies whatever was queued before it.
		m.driver.Apply(sim.Quit{})
		m = m.advance()
		m.done = true
		return m
	case " ":
		m.running = !m.running
	case "r":
		m.send(sim.AdjustParam{Name: m.opts.Param, Delta: -m.opts.DeltaParam})
		m.clear()
	case "R":
		m.send(sim.AdjustParam{Name: m.opts.Param, Delta: m.opts.DeltaParam})
		m.clear()
	case "b":
		m.beta -= m.opts.DeltaBeta
		m.clear()
	case "B":
		m.beta += m.opts.DeltaBeta
		m.clear()
	case "i":
		u, v := m.opts.View.ToWorld(m.canvas, m.cursorX, m.cursorY)
		y0 := Unproject(u, v, m.beta, m.driver.System().StateDim())
		m.send(sim.Restart{State: y0})
		m.clear()
		m.status = "new starting point: " + formatState(y0)
	case "c":
		dim := m.driver.System().StateDim()
		m.send(sim.Nudge{Index: min(2, dim-1), Delta: m.opts.NudgeZ})
		m.clear()
	case "t":
		m.theme = NextTheme(m.theme.Name)
		m.styles = NewStyles(m.theme)
	case "left", "h":
		m.cursorX = max(0, m.cursorX-2)
	case "right", "l":
		m.cursorX = min(m.opts.Width*2-1, m.cursorX+2)
	case "up", "k":
		m.cursorY = max(0, m.cursorY-2)
	case "down", "j":
		m.cursorY = min(m.opts.Height*4-1, m.cursorY+2)
	}
	return m
}

func (m *Model) send(cmd sim.Command) {
	select {
	case m.cmds <- cmd:
	default:
		m.status = "command queue full"
	}
}

func (m *Model) clear() {
	m.canvas.Clear()
	m.canvas.Axes(m.opts.View)
}

// advance runs one block and plots every accepted step.
func (m Model) advance() Model {
	res, err := m.driver.Run(context.Background(), m.cmds)
	if res == nil {
		m.err = err
		m.running = false
		return m
	}

	blockRejects := 0
	for _, s := range res.Samples {
		u, v := Project(s.Y, m.beta)
		m.canvas.Plot(m.opts.View, u, v)
		m.points++
		m.hdid = appendCapped(m.hdid, s.HDid)
		blockRejects += s.Rejected
	}
	if len(res.Samples) > 0 {
		m.rejects = appendCapped(m.rejects, float64(blockRejects))
	}

	switch {
	case err == nil:
	case errors.Is(err, dynamo.ErrUnknownParam), errors.Is(err, sim.ErrNotConfigurable):
		m.status = err.Error()
	default:
		m.err = err
		m.running = false
	}
	if res.Stopped == sim.StopQuit {
		m.done = true
	}
	return m
}

func appendCapped(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > historyCapacity {
		xs = xs[1:]
	}
	return xs
}

func formatState(y dynamo.State) string {
	parts := make([]string, len(y))
	for i, v := range y {
		parts[i] = fmt.Sprintf("%.3g", v)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func (m Model) Points() int           { return m.points }
func (m Model) Beta() float64         { return m.beta }
func (m Model) Canvas() *Canvas       { return m.canvas }
func (m Model) Driver() *sim.Driver   { return m.driver }
func (m Model) Err() error            { return m.err }
func (m Model) Running() bool         { return m.running }
func (m Model) Cursor() (x, y int)    { return m.cursorX, m.cursorY }
func (m Model) ThemeName() string     { return m.theme.Name }
func (m Model) StatusMessage() string { return m.status }

// View renders the TUI interface.
func (m Model) View() string {
	st := m.styles

	frame := m.canvas.Clone()
	frame.Box(m.cursorX, m.cursorY)
	canvasView := st.Canvas.Render(frame.String())

	var s strings.Builder
	title := m.opts.Title
	if title == "" {
		title = "lorenz"
	}
	s.WriteString(st.Header.Render(strings.ToUpper(title)) + "\n")
	if m.running {
		s.WriteString("RUNNING\n\n")
	} else {
		s.WriteString(st.Paused.Render("PAUSED") + "\n\n")
	}

	if len(m.hdid) > 1 {
		chart := asciigraph.Plot(m.hdid, asciigraph.Height(4), asciigraph.Width(30), asciigraph.Caption("hdid"))
		s.WriteString(st.Graph.Render(chart) + "\n\n")
	}

	row := func(label, value string) {
		s.WriteString(st.Label.Render(label) + st.Value.Render(value) + "\n")
	}
	row("beta", fmt.Sprintf("%.2f°", m.beta*180/math.Pi))
	if cs, ok := m.driver.System().(dynamo.Configurable); ok {
		if v, ok := cs.Params()[m.opts.Param]; ok {
			row(m.opts.Param, fmt.Sprintf("%.4g", v))
		}
	}
	row("t", fmt.Sprintf("%.4f", m.driver.Time()))
	row("h", fmt.Sprintf("%.3e", m.driver.NextStep()))
	row("steps", fmt.Sprintf("%d", m.driver.Steps()))
	row("rejected", fmt.Sprintf("%d", m.driver.Rejections()))
	row("points", fmt.Sprintf("%d", m.points))
	row("rejects", st.Sparkline(m.rejects, 24))

	if m.status != "" {
		s.WriteString("\n" + st.Value.Render(m.status) + "\n")
	}
	if m.err != nil {
		s.WriteString("\n" + st.Error.Render(m.err.Error()) + "\n")
	}

	s.WriteString(st.Help.Render("─────────────────────\nSP:Pause Q/X:Quit T:Theme\nr/R:" + m.opts.Param + "∓ b/B:beta∓\nI:Restart at cursor C:Clear+nudge\n←↑↓→:Cursor"))
	statsView := st.Stats.Render(s.String())
	return lipgloss.JoinHorizontal(lipgloss.Top, canvasView, statsView)
}
