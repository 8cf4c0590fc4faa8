package sweeper_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ms-reservations/internal/logger"
	"ms-reservations/internal/sweeper"
)

func TestTasksRunOnTheirOwnCadence(t *testing.T) {
	var fast, slow int32

	s := sweeper.New(logger.NewLogger(),
		sweeper.Task{
			Name:     "fast",
			Interval: 20 * time.Millisecond,
			Run: func() (int, error) {
				atomic.AddInt32(&fast, 1)
				return 0, nil
			},
		},
		sweeper.Task{
			Name:     "slow",
			Interval: 500 * time.Millisecond,
			Run: func() (int, error) {
				atomic.AddInt32(&slow, 1)
				return 0, nil
			},
		},
	)
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&fast), int32(3))
	assert.LessOrEqual(t, atomic.LoadInt32(&slow), int32(1))
}

func TestPanicInOneTaskDoesNotKillTheOthers(t *testing.T) {
	var healthy int32

	s := sweeper.New(logger.NewLogger(),
		sweeper.Task{
			Name:     "panicky",
			Interval: 20 * time.Millisecond,
			Run: func() (int, error) {
				panic("boom")
			},
		},
		sweeper.Task{
			Name:     "healthy",
			Interval: 20 * time.Millisecond,
			Run: func() (int, error) {
				atomic.AddInt32(&healthy, 1)
				return 1, nil
			},
		},
	)
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, atomic.LoadInt32(&healthy), int32(3))
}

func TestStopWaitsForLoops(t *testing.T) {
	var runs int32
	s := sweeper.New(logger.NewLogger(),
		sweeper.Task{
			Name:     "counter",
			Interval: 10 * time.Millisecond,
			Run: func() (int, error) {
				atomic.AddInt32(&runs, 1)
				return 0, nil
			},
		},
	)
	s.Start()
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	after := atomic.LoadInt32(&runs)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, atomic.LoadInt32(&runs))
}
