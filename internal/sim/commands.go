package sim

import "github.com/san-kum/lorenz/internal/dynamo"

// Command is a control message for a running Driver.
type Command interface {
	command()
}

// Quit stops Run at the next poll.
type Quit struct{}

// AdjustParam adds Delta to a parameter of the current system.
type AdjustParam struct {
	Name  string
	Delta float64
}

// SetParam replaces a parameter of the current system.
type SetParam struct {
	Name  string
	Value float64
}

// Restart moves the trajectory to a new initial condition at the current
// time and resets the trial step.
type Restart struct {
	State dynamo.State
}

// Nudge adds Delta to one state component, e.g. to push the trajectory
// off a fixed point.
type Nudge struct {
	Index int
	Delta float64
}

func (Quit) command()        {}
func (AdjustParam) command() {}
func (SetParam) command()    {}
func (Restart) command()     {}
func (Nudge) command()       {}
