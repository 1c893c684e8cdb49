package render

import (
	"sync"

	"reelrender/internal/pkg/errors"
)

// State is a render job's lifecycle position.
type State int

const (
	StateCreated State = iota
	StateInputAcquired
	StatePipelineComposed
	StateRenderRunning
	StateRenderSucceeded
	StateRenderFailed
	StateCleanedUp
)

var stateNames = [...]string{
	"created",
	"input_acquired",
	"pipeline_composed",
	"render_running",
	"render_succeeded",
	"render_failed",
	"cleaned_up",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// A job can fail from any state before the renderer reports success, and
// every failure or success ends in CleanedUp.
var transitions = map[State][]State{
	StateCreated:          {StateInputAcquired, StateRenderFailed},
	StateInputAcquired:    {StatePipelineComposed, StateRenderFailed},
	StatePipelineComposed: {StateRenderRunning, StateRenderFailed},
	StateRenderRunning:    {StateRenderSucceeded, StateRenderFailed},
	StateRenderSucceeded:  {StateCleanedUp},
	StateRenderFailed:     {StateCleanedUp},
}

// Job is one render request. Temp paths are all derived from ID.
type Job struct {
	ID          string
	InputPath   string
	OutputPath  string
	CaptionPath string

	mu      sync.Mutex
	state   State
	history []State
}

func newJob(id string) *Job {
	return &Job{ID: id, state: StateCreated, history: []State{StateCreated}}
}

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// History returns every state the job has been in, oldest first.
func (j *Job) History() []State {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]State, len(j.history))
	copy(out, j.history)
	return out
}

// Advance moves the job to next. An illegal transition is a programming
// error and is reported as an internal error.
func (j *Job) Advance(next State) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	for _, allowed := range transitions[j.state] {
		if allowed == next {
			j.state = next
			j.history = append(j.history, next)
			return nil
		}
	}
	return errors.Internalf("illegal job transition %s -> %s", j.state, next).
		WithField("job_id", j.ID)
}

// fail moves the job to RenderFailed if it has not already finished rendering.
func (j *Job) fail() {
	if s := j.State(); s != StateRenderSucceeded && s != StateRenderFailed && s != StateCleanedUp {
		_ = j.Advance(StateRenderFailed)
	}
}
