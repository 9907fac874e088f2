package testutil

import (
	"context"
	"sync"
	"time"
)

// Tracker records when sleeper runnables execute and how many overlap.
// It is shared by all sleepers of one test.
type Tracker struct {
	mu             sync.Mutex
	ExecutionTimes map[string]*ExecutionRecord
	order          []string
	running        int
	maxRunning     int
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{ExecutionTimes: make(map[string]*ExecutionRecord)}
}

// Sleeper returns a runnable named id that sleeps for d and then returns err.
func (t *Tracker) Sleeper(id string, d time.Duration, err error) *Sleeper {
	return &Sleeper{ID: id, Sleep: d, Err: err, tracker: t}
}

func (t *Tracker) enter(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running++
	t.maxRunning = max(t.maxRunning, t.running)
	t.order = append(t.order, id)
	t.ExecutionTimes[id] = &ExecutionRecord{Start: time.Now()}
}

func (t *Tracker) exit(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.running--
	t.ExecutionTimes[id].End = time.Now()
}

// MaxConcurrent returns the highest number of sleepers seen running at once.
func (t *Tracker) MaxConcurrent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxRunning
}

// Started returns sleeper IDs in the order they started.
func (t *Tracker) Started() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// Record returns the execution window of id, if it ran.
func (t *Tracker) Record(id string) (ExecutionRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.ExecutionTimes[id]
	if !ok {
		return ExecutionRecord{}, false
	}
	return *rec, true
}

// Sleeper is a node.Runnable that runs no process. It sleeps, honouring
// context cancellation, and reports its execution to its Tracker.
type Sleeper struct {
	ID      string
	Sleep   time.Duration
	Err     error
	Inputs  []string
	Outputs []string
	tracker *Tracker
}

func (s *Sleeper) Execute(ctx context.Context, _ string) error {
	s.tracker.enter(s.ID)
	defer s.tracker.exit(s.ID)

	select {
	case <-time.After(s.Sleep):
		return s.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Sleeper) InputFiles() []string  { return s.Inputs }
func (s *Sleeper) OutputFiles() []string { return s.Outputs }
func (s *Sleeper) String() string        { return "sleep " + s.ID }
