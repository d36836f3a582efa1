package serialcli_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/autoscalehub/autoscale/pkg/adc"
	"github.com/autoscalehub/autoscale/pkg/calibration"
	"github.com/autoscalehub/autoscale/pkg/serialcli"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time       { return c.now }
func (c *fakeClock) Sleep(d time.Duration) { c.now = c.now.Add(d) }

func newTestCLI() *serialcli.CLI {
	r := adc.NewSimReader([]int32{1000})
	st := &calibration.MemStore{}
	eng := calibration.New(r, st, &fakeClock{now: time.Unix(0, 0)})
	return serialcli.New(eng, func() int32 { return 1000 })
}

func TestHelp(t *testing.T) {
	cli := newTestCLI()
	assert.Contains(t, strings.ToLower(cli.Handle("help")), "commands")
}

func TestCalWithoutArgumentPrintsUsage(t *testing.T) {
	cli := newTestCLI()
	assert.Contains(t, cli.Handle("cal"), "usage")
}

func TestTwoPointFlow(t *testing.T) {
	cli := newTestCLI()
	r1 := cli.Handle("cal1 100")
	assert.Contains(t, r1, "point 1")

	r2 := cli.Handle("cal2 500")
	assert.Contains(t, r2, "point 2")

	solved := cli.Handle("solve")
	assert.Contains(t, solved, "calibrated")
}

func TestSolveWithoutPointsFails(t *testing.T) {
	cli := newTestCLI()
	assert.Contains(t, cli.Handle("solve"), "requires")
}

func TestResetCal(t *testing.T) {
	cli := newTestCLI()
	assert.Contains(t, cli.Handle("resetcal"), "reset")
}

func TestUnknownCommand(t *testing.T) {
	cli := newTestCLI()
	assert.Contains(t, cli.Handle("frobnicate"), "unknown command")
}

func TestCaseInsensitive(t *testing.T) {
	cli := newTestCLI()
	assert.Contains(t, strings.ToLower(cli.Handle("HELP")), "commands")
}
