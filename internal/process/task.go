// internal/process/task.go
package process

import (
	"errors"
	"fmt"
)

// TaskStatus represents the lifecycle state of a single key conversion.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusConverted TaskStatus = "converted"
	TaskStatusSkipped   TaskStatus = "skipped"
	TaskStatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusConverted || s == TaskStatusSkipped || s == TaskStatusFailed
}

var ErrInvalidTransition = errors.New("invalid state transition")

// Task tracks one source key through Pending -> Running -> terminal.
type Task struct {
	Key    string
	Status TaskStatus
	Error  string
}

func NewTask(key string) *Task {
	return &Task{Key: key, Status: TaskStatusPending}
}

func MarkRunning(t *Task) error { return transition(t, TaskStatusPending, TaskStatusRunning) }
func MarkConverted(t *Task) error {
	return transition(t, TaskStatusRunning, TaskStatusConverted)
}
func MarkSkipped(t *Task) error { return transition(t, TaskStatusRunning, TaskStatusSkipped) }
func MarkFailed(t *Task, err error) error {
	if terr := transition(t, TaskStatusRunning, TaskStatusFailed); terr != nil {
		return terr
	}
	if err != nil {
		t.Error = err.Error()
	}
	return nil
}

func transition(t *Task, from, to TaskStatus) error {
	if t.Status != from {
		return fmt.Errorf("%w: task %s is %s, cannot become %s", ErrInvalidTransition, t.Key, t.Status, to)
	}
	t.Status = to
	return nil
}

// BatchStatus represents the lifecycle of a whole run.
type BatchStatus string

const (
	BatchStatusIdle      BatchStatus = "idle"
	BatchStatusRunning   BatchStatus = "running"
	BatchStatusCompleted BatchStatus = "completed"
)

type Batch struct {
	RunID  string
	Status BatchStatus
}

func NewBatch(runID string) *Batch {
	return &Batch{RunID: runID, Status: BatchStatusIdle}
}

func StartBatch(b *Batch) error {
	if b.Status != BatchStatusIdle {
		return fmt.Errorf("%w: batch %s is %s, cannot start", ErrInvalidTransition, b.RunID, b.Status)
	}
	b.Status = BatchStatusRunning
	return nil
}

func CompleteBatch(b *Batch) error {
	if b.Status != BatchStatusRunning {
		return fmt.Errorf("%w: batch %s is %s, cannot complete", ErrInvalidTransition, b.RunID, b.Status)
	}
	b.Status = BatchStatusCompleted
	return nil
}
