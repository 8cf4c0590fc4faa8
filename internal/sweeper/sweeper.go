package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-reservations/internal/logger"
)

// Task is one recurring cleanup job. Run returns how many rows it
// settled; errors are logged and the task keeps its schedule.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func() (int, error)
}

// Sweeper drives each task on its own ticker and goroutine, so a slow
// or failing pass of one task never delays the others.
type Sweeper struct {
	Logger *logger.Logger

	tasks  []Task
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(log *logger.Logger, tasks ...Task) *Sweeper {
	return &Sweeper{Logger: log, tasks: tasks}
}

func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.Logger.LogSweeper("START", fmt.Sprintf("running %d tasks", len(s.tasks)))
}

// Stop cancels every task and waits for in-flight passes to finish.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.Logger.LogSweeper("STOP", "all tasks stopped")
}

func (s *Sweeper) loop(ctx context.Context, t Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(t)
		}
	}
}

// runOnce isolates a single pass: a panic inside one task is logged and
// swallowed so its schedule, and every other task, survives.
func (s *Sweeper) runOnce(t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.Logger.LogSweeper(t.Name, fmt.Sprintf("pass panicked: %v", r))
		}
	}()
	n, err := t.Run()
	if err != nil {
		s.Logger.LogSweeper(t.Name, "pass failed: "+err.Error())
		return
	}
	if n > 0 {
		s.Logger.LogSweeper(t.Name, fmt.Sprintf("settled %d rows", n))
	}
}
