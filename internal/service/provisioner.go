package service

import (
	"context"
	"fmt"
	"path"
	"time"

	"github.com/haatos/pipewright/internal/store"
	"github.com/haatos/pipewright/internal/util"
)

type Provisioner interface {
	Provision(
		ctx context.Context,
		prd *store.PipelineRunData,
		job *Job,
		workdir, branch string,
		outputCh chan<- string,
	) (Environment, error)
}

func NewEnvironmentProvisioner(timeout time.Duration) *EnvironmentProvisioner {
	return &EnvironmentProvisioner{timeout: timeout}
}

// EnvironmentProvisioner sets up a per-job working directory on the
// pipeline's agent: checkout of the repository at the triggering branch,
// a runtime presence check, then dependency installation from the job's
// manifest. On failure the partial environment is torn down before the
// error is returned, so the caller only ever tears down what it received.
type EnvironmentProvisioner struct {
	timeout time.Duration
}

func (p *EnvironmentProvisioner) Provision(
	ctx context.Context,
	prd *store.PipelineRunData,
	job *Job,
	workdir, branch string,
	outputCh chan<- string,
) (Environment, error) {
	jobDir := path.Join(prd.Workspace, workdir, util.RemoveNonAlphabetChars(job.Job))

	env, err := p.newEnvironment(prd, jobDir)
	if err != nil {
		return nil, ProvisionError{Stage: "workspace", Err: err}
	}

	installCmd, err := job.Runtime.InstallCommand()
	if err != nil {
		env.Teardown()
		return nil, ProvisionError{Stage: "dependencies", Err: err}
	}

	stages := []struct {
		stage   string
		command string
	}{
		{"checkout", fmt.Sprintf("git clone -b %s %s .", branch, prd.Repository)},
		{"runtime", job.Runtime.CheckCommand()},
		{"dependencies", installCmd},
	}
	for _, s := range stages {
		if s.command == "" {
			continue
		}
		if outputCh != nil {
			outputCh <- fmt.Sprintf("  |  %s: %s\n", s.stage, s.command)
		}
		exit, err := env.RunCommand(ctx, s.command, p.timeout, outputCh)
		if err != nil {
			env.Teardown()
			return nil, ProvisionError{Stage: s.stage, Err: err}
		}
		if exit != 0 {
			env.Teardown()
			return nil, ProvisionError{
				Stage: s.stage,
				Err:   fmt.Errorf("command '%s' exited with code %d", s.command, exit),
			}
		}
	}

	return env, nil
}

func (p *EnvironmentProvisioner) newEnvironment(
	prd *store.PipelineRunData,
	dir string,
) (Environment, error) {
	if prd.CredentialID == nil {
		return NewLocalEnvironment(dir)
	}
	if prd.Username == nil {
		return nil, fmt.Errorf("agent %d has a credential without a username", prd.AgentID)
	}
	client, err := dialSSH(*prd.Username, prd.Hostname, prd.SSHPrivateKey)
	if err != nil {
		return nil, err
	}
	return NewSSHEnvironment(client, dir)
}
