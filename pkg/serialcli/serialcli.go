// Package serialcli implements the device's line-oriented serial
// console: case-insensitive commands for tare, single- and two-point
// calibration, and resetting the factor to its default.
package serialcli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/autoscalehub/autoscale/pkg/calibration"
)

const usage = `commands: help, tare, cal <g>, cal1 <g>, cal2 <g>, solve, resetcal`

// CLI dispatches serial commands against a calibration.Engine. Two-point
// calibration is stateful across cal1/cal2/solve within one CLI
// instance.
type CLI struct {
	engine *calibration.Engine

	haveR1 bool
	r1     int32
	m1     float64
	haveR2 bool
	r2     int32
	m2     float64

	readStableRaw func() int32
}

// New returns a CLI bound to engine. readStableRaw captures a stable raw
// reading on demand (typically sampler.ReadStableRaw bound to the
// device's ADC).
func New(engine *calibration.Engine, readStableRaw func() int32) *CLI {
	return &CLI{engine: engine, readStableRaw: readStableRaw}
}

// Handle processes one line and returns the text to print.
func (c *CLI) Handle(line string) string {
	fields := strings.Fields(strings.TrimSpace(line))
	if len(fields) == 0 {
		return usage
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "help":
		return usage
	case "tare":
		return c.handleTare()
	case "cal":
		return c.handleSinglePoint(args)
	case "cal1":
		return c.handleCal1(args)
	case "cal2":
		return c.handleCal2(args)
	case "solve":
		return c.handleSolve()
	case "resetcal":
		c.engine.Reset()
		return "calibration reset to default"
	default:
		return fmt.Sprintf("unknown command: %s (try 'help')", cmd)
	}
}

func (c *CLI) handleTare() string {
	if err := c.engine.Tare(); err != nil {
		return fmt.Sprintf("tare failed: %v", err)
	}
	return fmt.Sprintf("tare ok, zero_offset=%d", c.engine.ZeroOffset)
}

func (c *CLI) handleSinglePoint(args []string) string {
	g, ok := parseGrams(args)
	if !ok {
		return "usage: cal <g>"
	}
	if err := c.engine.SinglePoint(g); err != nil {
		return fmt.Sprintf("calibration failed: %v", err)
	}
	return fmt.Sprintf("calibrated, counts_per_gram=%.4f", c.engine.CountsPerGram)
}

func (c *CLI) handleCal1(args []string) string {
	g, ok := parseGrams(args)
	if !ok {
		return "usage: cal1 <g>"
	}
	c.r1 = c.readStableRaw()
	c.m1 = g
	c.haveR1 = true
	return fmt.Sprintf("point 1 captured: raw=%d mass=%.2fg", c.r1, g)
}

func (c *CLI) handleCal2(args []string) string {
	g, ok := parseGrams(args)
	if !ok {
		return "usage: cal2 <g>"
	}
	c.r2 = c.readStableRaw()
	c.m2 = g
	c.haveR2 = true
	return fmt.Sprintf("point 2 captured: raw=%d mass=%.2fg", c.r2, g)
}

func (c *CLI) handleSolve() string {
	if !c.haveR1 || !c.haveR2 {
		return "solve requires cal1 and cal2 first"
	}
	if err := c.engine.TwoPoint(c.r1, c.m1, c.r2, c.m2); err != nil {
		return fmt.Sprintf("solve failed: %v", err)
	}
	c.haveR1, c.haveR2 = false, false
	return fmt.Sprintf("calibrated, counts_per_gram=%.4f", c.engine.CountsPerGram)
}

func parseGrams(args []string) (float64, bool) {
	if len(args) != 1 {
		return 0, false
	}
	g, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, false
	}
	return g, true
}
