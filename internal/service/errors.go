package service

import "fmt"

type ErrRunQueueFull struct{}

func (e ErrRunQueueFull) Error() string {
	return "run queue is full"
}

func NewErrRunQueueFull() *ErrRunQueueFull {
	return &ErrRunQueueFull{}
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}

// ProvisionError marks a job environment that could not be set up.
// Stage is one of "workspace", "checkout", "runtime" or "dependencies".
type ProvisionError struct {
	Stage string
	Err   error
}

func (pe ProvisionError) Error() string {
	return fmt.Sprintf("provisioning failed during %s: %+v", pe.Stage, pe.Err)
}

func (pe ProvisionError) Unwrap() error {
	return pe.Err
}

// LaunchError marks a step command that could not start at all, as
// opposed to one that started and exited nonzero.
type LaunchError struct {
	Command string
	Err     error
}

func (le LaunchError) Error() string {
	return fmt.Sprintf("command '%s' could not start: %+v", le.Command, le.Err)
}

func (le LaunchError) Unwrap() error {
	return le.Err
}

type StepFailureError struct {
	Step     string
	ExitCode int64
}

func (sfe StepFailureError) Error() string {
	return fmt.Sprintf("step '%s' exited with code %d", sfe.Step, sfe.ExitCode)
}

// ConfigError marks an invalid workflow script, for example an
// unparseable gate expression or a step without a script.
type ConfigError struct {
	Message string
}

func (ce ConfigError) Error() string {
	return ce.Message
}
