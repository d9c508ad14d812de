package service

import (
	"context"
	"testing"
	"time"

	"github.com/haatos/pipewright/internal/util"
	"github.com/stretchr/testify/assert"
)

func TestEnvironmentProvisioner_Provision(t *testing.T) {
	t.Run("failure - manifest without installer tears the environment down", func(t *testing.T) {
		// arrange
		prd := generatePipelineRunData()
		prd.Workspace = t.TempDir()
		job := &Job{
			Job:     "test",
			Runtime: Runtime{Language: "ruby", Version: "3.2", Manifest: "Gemfile"},
			Steps: []Step{
				{Step: "rspec", Script: "bundle exec rspec"},
			},
		}
		provisioner := NewEnvironmentProvisioner(time.Minute)

		// act
		env, err := provisioner.Provision(context.Background(), prd, job, "wd", "main", nil)

		// assert
		assert.Nil(t, env)
		assert.Error(t, err)
		pe, ok := err.(ProvisionError)
		assert.True(t, ok)
		assert.Equal(t, "dependencies", pe.Stage)

		exists, _ := util.PathExists(prd.Workspace + "/wd/test")
		assert.False(t, exists)
	})

	t.Run("failure - remote agent credential without username", func(t *testing.T) {
		// arrange
		prd := generatePipelineRunData()
		prd.CredentialID = util.AsPtr(int64(3))
		prd.Username = nil
		job := &Job{
			Job: "test",
			Steps: []Step{
				{Step: "pytest", Script: "python3.9 -m pytest"},
			},
		}
		provisioner := NewEnvironmentProvisioner(time.Minute)

		// act
		env, err := provisioner.Provision(context.Background(), prd, job, "wd", "main", nil)

		// assert
		assert.Nil(t, env)
		assert.Error(t, err)
		pe, ok := err.(ProvisionError)
		assert.True(t, ok)
		assert.Equal(t, "workspace", pe.Stage)
	})
}

func TestProvisionError(t *testing.T) {
	t.Run("error message names the stage", func(t *testing.T) {
		err := ProvisionError{Stage: "checkout", Err: assert.AnError}
		assert.Contains(t, err.Error(), "checkout")
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestStoreErrors(t *testing.T) {
	t.Run("step failure names step and exit code", func(t *testing.T) {
		err := StepFailureError{Step: "pytest", ExitCode: 2}
		assert.Equal(t, "step 'pytest' exited with code 2", err.Error())
	})

	t.Run("launch error wraps its cause", func(t *testing.T) {
		err := LaunchError{Command: "codecov", Err: assert.AnError}
		assert.Contains(t, err.Error(), "codecov")
		assert.ErrorIs(t, err, assert.AnError)
	})
}
