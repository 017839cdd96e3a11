package button

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDebouncer(t *testing.T) {
	tests := []struct {
		name     string
		samples  []bool
		expected int
	}{
		{"NoChange", []bool{true, true, true, true, true, true}, 0},
		{"ShortGlitch", []bool{false, false, false, false, true, false, false}, 0},
		{"Press", []bool{false, false, false, false, false}, 1},
		{"HeldCountsOnce", []bool{false, false, false, false, false, false, false, false}, 1},
		{"PressAndRelease", []bool{false, false, false, false, false, true, true, true, true, true}, 1},
		{"TwoPresses", []bool{
			false, false, false, false, false,
			true, true, true, true, true,
			false, false, false, false, false,
		}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(true)
			presses := 0
			for _, s := range tt.samples {
				if d.Sample(s) {
					presses++
				}
			}
			assert.Equal(t, tt.expected, presses)
		})
	}
}

func TestDebouncerActiveHigh(t *testing.T) {
	d := NewDebouncer(false)
	presses := 0
	for range DefaultFilter {
		if d.Sample(true) {
			presses++
		}
	}
	assert.Equal(t, 1, presses)
}

func TestSamplerTick(t *testing.T) {
	levelA, levelB := true, true
	pressesA, pressesB := 0, 0

	s := NewSampler(0, true,
		&Button{Get: func() bool { return levelA }, OnPress: func() { pressesA++ }},
		&Button{Get: func() bool { return levelB }, OnPress: func() { pressesB++ }},
	)
	assert.Equal(t, DefaultPeriod, s.period)

	levelA = false
	for range DefaultFilter {
		s.Tick()
	}
	assert.Equal(t, 1, pressesA)
	assert.Zero(t, pressesB)
}

func TestSamplerRun(t *testing.T) {
	var presses atomic.Int32
	s := NewSampler(time.Millisecond, true,
		&Button{Get: func() bool { return false }, OnPress: func() { presses.Add(1) }},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return presses.Load() == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done
	assert.Equal(t, int32(1), presses.Load())
}
