package shutdown_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/autoscalehub/autoscale/pkg/shutdown"
)

func TestTriggerClosesDoneAndRunsCallbacksOnce(t *testing.T) {
	c := shutdown.New()
	var calls int
	c.OnShutdown(func() { calls++ })

	c.Trigger("first")
	c.Trigger("second")

	select {
	case <-c.Done():
	default:
		t.Fatal("Done channel not closed after Trigger")
	}
	assert.Equal(t, 1, calls)
	assert.True(t, c.IsStopped())
}

func TestNotStoppedBeforeTrigger(t *testing.T) {
	c := shutdown.New()
	assert.False(t, c.IsStopped())
}
