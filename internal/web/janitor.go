package web

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/madhatter5501/leadboard/internal/auth"
)

// Housekeeping intervals.
const (
	sessionSweepInterval = 10 * time.Minute
	boardSweepInterval   = time.Minute
)

// TaskStatus is the last known state of a housekeeping task.
type TaskStatus struct {
	Name       string    `json:"name"`
	Status     string    `json:"status"` // "Idle", "Running", "Error", "Stopped"
	LastError  string    `json:"lastError,omitempty"`
	LastRunAt  time.Time `json:"lastRunAt"`
	CycleCount int       `json:"cycleCount"`
}

// Janitor runs periodic cleanup next to the server.
type Janitor struct {
	server *Server
	tasks  []*janitorTask
	wg     sync.WaitGroup
}

type janitorTask struct {
	name     string
	interval time.Duration
	run      func(context.Context) error

	mu     sync.RWMutex
	status TaskStatus
}

// NewJanitor registers the server's housekeeping tasks.
func NewJanitor(s *Server) *Janitor {
	j := &Janitor{server: s}
	j.register("sessions", sessionSweepInterval, j.purgeSessions)
	j.register("boards", boardSweepInterval, j.sweepBoards)
	return j
}

func (j *Janitor) register(name string, interval time.Duration, run func(context.Context) error) {
	j.tasks = append(j.tasks, &janitorTask{
		name:     name,
		interval: interval,
		run:      run,
		status:   TaskStatus{Name: name, Status: "Idle"},
	})
}

// Start runs every task until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	for _, task := range j.tasks {
		j.wg.Add(1)
		go j.loop(ctx, task)
	}
}

// Wait blocks until every task loop has returned.
func (j *Janitor) Wait() {
	j.wg.Wait()
}

// Statuses returns the state of every task.
func (j *Janitor) Statuses() []TaskStatus {
	statuses := make([]TaskStatus, 0, len(j.tasks))
	for _, task := range j.tasks {
		task.mu.RLock()
		statuses = append(statuses, task.status)
		task.mu.RUnlock()
	}
	return statuses
}

// RunOnce runs every task a single time.
func (j *Janitor) RunOnce(ctx context.Context) {
	for _, task := range j.tasks {
		j.execute(ctx, task)
	}
}

func (j *Janitor) loop(ctx context.Context, task *janitorTask) {
	defer j.wg.Done()

	ticker := time.NewTicker(task.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			task.setStatus("Stopped", "")
			return
		case <-ticker.C:
			j.execute(ctx, task)
		}
	}
}

func (j *Janitor) execute(ctx context.Context, task *janitorTask) {
	task.setStatus("Running", "")

	if err := task.run(ctx); err != nil {
		j.server.logger.Error("Housekeeping task failed", "task", task.name, "error", err)
		task.setStatus("Error", err.Error())
		return
	}

	task.mu.Lock()
	task.status.CycleCount++
	task.mu.Unlock()
	task.setStatus("Idle", "")
}

func (t *janitorTask) setStatus(status, lastErr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.Status = status
	t.status.LastError = lastErr
	t.status.LastRunAt = time.Now()
}

// purgeSessions deletes expired sessions from storage.
func (j *Janitor) purgeSessions(ctx context.Context) error {
	n, err := j.server.auth.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		j.server.logger.Info("Purged expired sessions", "count", n)
	}
	return nil
}

// sweepBoards closes boards whose login session has ended.
func (j *Janitor) sweepBoards(ctx context.Context) error {
	s := j.server

	s.boardsMu.Lock()
	tokens := make([]string, 0, len(s.boards))
	for token := range s.boards {
		tokens = append(tokens, token)
	}
	s.boardsMu.Unlock()

	for _, token := range tokens {
		_, err := s.auth.Session(ctx, token)
		switch {
		case errors.Is(err, auth.ErrNoSession):
			s.dropBoard(token)
			s.logger.Info("Closed board of expired session")
		case err != nil:
			return err
		}
	}
	return nil
}
