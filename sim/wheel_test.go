package sim

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSensors struct {
	edges int
	drops int
}

func (c *countingSensors) OnPositionEdge() { c.edges++ }
func (c *countingSensors) OnDropEdge()     { c.drops++ }

func TestWheelEdgeOncePerRevolution(t *testing.T) {
	w := NewWheel(WheelConfig{})
	s := &countingSensors{}
	w.Attach(s)

	for range 2 * DefaultStepsPerRevolution {
		w.StepForward()
	}
	assert.Equal(t, 2, s.edges)

	for range DefaultStepsPerRevolution {
		w.StepReverse()
	}
	assert.Equal(t, 3, s.edges)
	assert.Equal(t, 3*DefaultStepsPerRevolution, w.Steps())
}

func TestWheelSensorFault(t *testing.T) {
	w := NewWheel(WheelConfig{SensorFault: true})
	s := &countingSensors{}
	w.Attach(s)

	for range DefaultStepsPerRevolution {
		w.StepForward()
	}
	assert.Zero(t, s.edges)
}

func TestWheelDropsEachCompartmentOnce(t *testing.T) {
	w := NewWheel(WheelConfig{})
	w.position = w.Home()
	s := &countingSensors{}
	w.Attach(s)
	w.Load()
	assert.Equal(t, DefaultCompartments-1, w.Loaded())

	for range 2 * DefaultStepsPerRevolution {
		w.StepForward()
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, w.Dropped())
	assert.Equal(t, 7, s.drops)
	assert.Zero(t, w.Loaded())
}

func TestWheelNoDropInReverse(t *testing.T) {
	w := NewWheel(WheelConfig{})
	w.position = w.Home()
	w.Load()

	for range DefaultStepsPerRevolution {
		w.StepReverse()
	}
	assert.Empty(t, w.Dropped())
}

func TestWheelTransitsCrossOneThreshold(t *testing.T) {
	// 4096 steps per revolution gives 519 steps per compartment
	const steps = 519

	w := NewWheel(WheelConfig{})
	w.position = w.Home()
	w.Load()

	for k := 1; k < DefaultCompartments; k++ {
		for range steps {
			w.StepForward()
		}
		assert.Len(t, w.Dropped(), k, "transit %d", k)
		assert.Equal(t, k, w.Dropped()[k-1])
	}
}

func TestCutPowerAfter(t *testing.T) {
	w := NewWheel(WheelConfig{})
	w.CutPowerAfter(10)

	lost := RunUntilPowerLoss(func() {
		for range 100 {
			w.StepForward()
		}
	})
	assert.True(t, lost)
	assert.Equal(t, 10, w.Steps())
	assert.Equal(t, 10, w.Position())

	// power is restored after the cut
	lost = RunUntilPowerLoss(func() {
		w.StepForward()
	})
	assert.False(t, lost)
	assert.Equal(t, 11, w.Steps())
}

func TestRunUntilPowerLossPassesOtherPanics(t *testing.T) {
	other := errors.New("other")
	assert.PanicsWithValue(t, other, func() {
		RunUntilPowerLoss(func() { panic(other) })
	})
}

func TestWheelStepDelay(t *testing.T) {
	c := NewClock(time.Time{}, 0)
	w := NewWheel(WheelConfig{StepDelay: 2 * time.Millisecond, Sleep: c.Sleep})

	for range 5 {
		w.StepForward()
	}
	assert.Equal(t, 10*time.Millisecond, c.Slept())
	assert.Equal(t, time.Time{}.Add(10*time.Millisecond), c.Now())
}

func TestLEDs(t *testing.T) {
	var l LEDs
	require.False(t, l.Lit())
	l.On()
	assert.True(t, l.Lit())
	l.Off()
	l.On()
	assert.Equal(t, 2, l.Ons())
}
