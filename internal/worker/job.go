package worker

import (
	"context"
	"errors"
	"fmt"
)

// ErrDispatcherBusy is returned when the dispatcher cannot accept more work.
var ErrDispatcherBusy = errors.New("dispatcher busy")

// ErrDispatcherClosed is returned for work submitted after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

type JobType int

const (
	Run JobType = iota
	Stop
)

func (t JobType) String() string {
	switch t {
	case Run:
		return "run"
	case Stop:
		return "stop"
	default:
		return fmt.Sprintf("JobType(%d)", int(t))
	}
}

// Job is a unit of generation work bound to a fairness key.
type Job struct {
	Type JobType
	Key  string

	ctx  context.Context
	fn   func(context.Context) error
	done chan error
}

// execute runs the job and reports exactly once on done.
func (j Job) execute() {
	if err := j.ctx.Err(); err != nil {
		j.done <- err
		return
	}
	j.done <- j.call()
}

func (j Job) call() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Key, r)
		}
	}()
	return j.fn(j.ctx)
}
