// Package viz draws trajectories in the terminal.
//
// A trajectory is viewed from an angle beta about the vertical axis (see
// [Project]) and plotted on a Braille [Canvas]. [Model] is a Bubble Tea
// program that integrates while it draws:
//
//	q, x   - quit
//	r, R   - lower or raise the tuned parameter
//	b, B   - rotate the view
//	i      - restart from the point under the cursor
//	c      - clear the screen and nudge z off a fixed point
//	arrows - move the cursor
//	space  - pause
//	t      - cycle color themes
//
// Keys are turned into sim commands, so a change takes effect at the next
// block boundary, as it would for any other driver client.
package viz
