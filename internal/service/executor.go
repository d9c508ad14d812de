package service

import (
	"context"
	"sync"
	"time"

	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/internal/util"
)

type StepRunner interface {
	ExecuteStep(
		ctx context.Context,
		env Environment,
		step Step,
		position int64,
		outputCh chan<- string,
	) (store.StepResult, error)
}

func NewStepExecutor(maxOutputBytes int64, defaultTimeout time.Duration) *StepExecutor {
	return &StepExecutor{
		maxOutputBytes: maxOutputBytes,
		defaultTimeout: defaultTimeout,
	}
}

// StepExecutor runs a single step inside an environment, streaming its
// output live while keeping a bounded tail of it on the step result.
type StepExecutor struct {
	maxOutputBytes int64
	defaultTimeout time.Duration
}

func (e *StepExecutor) ExecuteStep(
	ctx context.Context,
	env Environment,
	step Step,
	position int64,
	outputCh chan<- string,
) (store.StepResult, error) {
	startedOn := time.Now().UTC()
	sr := store.StepResult{
		Position:  position,
		Name:      step.Step,
		Command:   step.Command(),
		StartedOn: &startedOn,
	}

	timeout := e.defaultTimeout
	if step.TimeoutSeconds > 0 {
		timeout = time.Duration(step.TimeoutSeconds) * time.Second
	}

	tail := newTailBuffer(e.maxOutputBytes)
	lineCh := make(chan string)
	var wg sync.WaitGroup
	wg.Go(func() {
		for line := range lineCh {
			tail.WriteString(line)
			if outputCh != nil {
				outputCh <- line
			}
		}
	})

	exit, err := env.RunCommand(ctx, sr.Command, timeout, lineCh)
	close(lineCh)
	wg.Wait()

	sr.EndedOn = util.AsPtr(time.Now().UTC())
	if err != nil {
		sr.Status = store.StepFailed
		tail.WriteString(err.Error() + "\n")
	} else {
		sr.ExitCode = util.AsPtr(exit)
		if exit == 0 {
			sr.Status = store.StepSucceeded
		} else {
			sr.Status = store.StepFailed
		}
	}
	sr.Output = util.AsPtr(tail.String())
	return sr, err
}

func newTailBuffer(max int64) *tailBuffer {
	return &tailBuffer{max: max}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int64
	b   []byte
}

func (tb *tailBuffer) WriteString(s string) {
	tb.b = append(tb.b, s...)
	if tb.max > 0 && int64(len(tb.b)) > tb.max {
		tb.b = tb.b[int64(len(tb.b))-tb.max:]
	}
}

func (tb *tailBuffer) String() string {
	return string(tb.b)
}
