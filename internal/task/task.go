// Package task runs one table extraction at a time in the background and lets
// a polling caller watch it without blocking.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/dmirauta/table-ocr/internal/data"
	"github.com/dmirauta/table-ocr/internal/logger"
	"github.com/dmirauta/table-ocr/internal/ocr"
	"github.com/dmirauta/table-ocr/internal/pipeline"
	"github.com/google/uuid"
)

var (
	ErrRunInProgress = errors.New("an extraction is already running")
	ErrNotReady      = errors.New("no extraction parameters staged")
)

type State int

const (
	Idle State = iota
	Ready
	Running
	Finished
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Finished:
		return "finished"
	default:
		return "idle"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RunFunc executes a staged run; pipeline.Run in production.
type RunFunc func(ctx context.Context, params pipeline.Params, progress func()) (pipeline.Result, error)

type Status struct {
	State     State              `json:"state"`
	RunID     string             `json:"run_id,omitempty"`
	Completed int                `json:"completed"`
	Total     int                `json:"total"`
	Table     *data.Table        `json:"table,omitempty"`
	Failures  map[ocr.Cell]error `json:"-"`
	Err       error              `json:"-"`
}

type Task struct {
	run RunFunc

	mu     sync.Mutex
	state  State
	params pipeline.Params
	total  int
	runID  string
	result pipeline.Result
	err    error
	done   chan struct{}

	completed atomic.Int64
}

func New() *Task {
	return NewWithRunner(pipeline.Run)
}

func NewWithRunner(run RunFunc) *Task {
	return &Task{run: run}
}

// Stage snapshots params for the next run. The grid and image are copied, so
// later edits by the caller cannot reach an in-flight run. Staging while a run
// is in flight is refused and leaves that run untouched.
func (t *Task) Stage(params pipeline.Params) error {
	if params.Grid == nil || params.Image == nil {
		return fmt.Errorf("%w: grid and image are required", ErrNotReady)
	}
	if err := params.Grid.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Running {
		return ErrRunInProgress
	}

	params.Grid = params.Grid.Clone()
	params.Grid.Sort()
	params.Image = imaging.Clone(params.Image)

	t.params = params
	t.total = pipeline.Jobs(params.Grid)
	t.result = pipeline.Result{}
	t.err = nil
	t.runID = ""
	t.completed.Store(0)
	t.state = Ready
	return nil
}

// Start launches the staged run on its own goroutine and returns at once.
// The run is not cancelled when ctx is.
func (t *Task) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case Running:
		return ErrRunInProgress
	case Idle, Finished:
		return ErrNotReady
	}

	t.state = Running
	t.runID = uuid.NewString()
	t.done = make(chan struct{})
	params, runID, done, total := t.params, t.runID, t.done, t.total
	logger.InfoLog("[task]: run %s started: %d cells", runID, total)

	go func() {
		res, err := t.run(context.WithoutCancel(ctx), params, func() { t.completed.Add(1) })

		t.mu.Lock()
		t.result, t.err = res, err
		t.state = Finished
		t.mu.Unlock()
		close(done)

		if err != nil {
			logger.ErrorLog("[task]: run %s failed: %v", runID, err)
			return
		}
		logger.InfoLog("[task]: run %s finished: %d of %d cells failed", runID, len(res.Failures), total)
	}()
	return nil
}

// Poll never blocks on the run.
func (t *Task) Poll() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Status{
		State:     t.state,
		RunID:     t.runID,
		Completed: int(t.completed.Load()),
		Total:     t.total,
	}
	if t.state == Finished {
		st.Table = t.result.Table
		st.Failures = t.result.Failures
		st.Err = t.err
	}
	return st
}

// Wait blocks until the current run finishes or ctx is done.
func (t *Task) Wait(ctx context.Context) (Status, error) {
	t.mu.Lock()
	state, done := t.state, t.done
	t.mu.Unlock()
	if state != Running && state != Finished {
		return t.Poll(), ErrNotReady
	}

	select {
	case <-done:
		return t.Poll(), nil
	case <-ctx.Done():
		return t.Poll(), ctx.Err()
	}
}
