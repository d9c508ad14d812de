package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

// Environment is an isolated working directory a job's steps run in,
// either on the controller machine or on a remote agent. RunCommand
// returns the command's exit code; a nonzero exit is not an error.
// Teardown releases the directory and any connection behind it.
type Environment interface {
	Path() string
	RunCommand(
		ctx context.Context,
		command string,
		timeout time.Duration,
		outputCh chan<- string,
	) (int64, error)
	Download(remotePath, localPath string) error
	Teardown() error
}

func NewLocalEnvironment(dir string) (*LocalEnvironment, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, err
	}
	return &LocalEnvironment{dir: dir}, nil
}

// LocalEnvironment runs commands on the controller machine itself.
type LocalEnvironment struct {
	dir string
}

func (e *LocalEnvironment) Path() string {
	return e.dir
}

func (e *LocalEnvironment) RunCommand(
	ctx context.Context,
	command string,
	timeout time.Duration,
	outputCh chan<- string,
) (int64, error) {
	cmd := exec.Command("sh", "-c", command)
	cmd.Dir = e.dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cmd.Start(); err != nil {
		return -1, LaunchError{Command: command, Err: err}
	}

	doneCh := make(chan error, 1)
	go func() {
		var wg sync.WaitGroup
		wg.Go(func() {
			scanOutput(stdout, outputCh)
		})
		wg.Go(func() {
			scanOutput(stderr, outputCh)
		})
		wg.Wait()
		doneCh <- cmd.Wait()
	}()

	select {
	case <-timeoutCtx.Done():
		cmd.Process.Kill()
		<-doneCh
		if ctx.Err() != nil {
			return -1, RunCancelError{Message: "command cancelled by user"}
		}
		return -1, fmt.Errorf(
			"command '%s' timed out after %d seconds",
			command,
			int(timeout.Seconds()),
		)
	case err := <-doneCh:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return int64(exitErr.ExitCode()), nil
			}
			return -1, err
		}
		return 0, nil
	}
}

func (e *LocalEnvironment) Teardown() error {
	return os.RemoveAll(e.dir)
}

func NewSSHEnvironment(client *ssh.Client, dir string) (*SSHEnvironment, error) {
	env := &SSHEnvironment{client: client, dir: dir}
	exit, err := env.run(context.Background(), fmt.Sprintf("mkdir -p %s", dir), 10*time.Second, nil)
	if err != nil {
		client.Close()
		return nil, err
	}
	if exit != 0 {
		client.Close()
		return nil, fmt.Errorf("unable to create remote directory %s", dir)
	}
	return env, nil
}

// SSHEnvironment runs each command in its own session on a remote agent.
// It owns the client and closes it on Teardown.
type SSHEnvironment struct {
	client *ssh.Client
	dir    string
}

func (e *SSHEnvironment) Path() string {
	return e.dir
}

func (e *SSHEnvironment) RunCommand(
	ctx context.Context,
	command string,
	timeout time.Duration,
	outputCh chan<- string,
) (int64, error) {
	return e.run(ctx, fmt.Sprintf("cd %s && %s", e.dir, command), timeout, outputCh)
}

func (e *SSHEnvironment) run(
	ctx context.Context,
	command string,
	timeout time.Duration,
	outputCh chan<- string,
) (int64, error) {
	sess, err := e.client.NewSession()
	if err != nil {
		return -1, LaunchError{Command: command, Err: err}
	}
	defer sess.Close()

	stdout, err := sess.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := sess.StderrPipe()
	if err != nil {
		return -1, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := sess.Start(command); err != nil {
		return -1, LaunchError{Command: command, Err: err}
	}

	doneCh := make(chan error, 1)
	go func() {
		var wg sync.WaitGroup
		wg.Go(func() {
			scanOutput(stdout, outputCh)
		})
		wg.Go(func() {
			scanOutput(stderr, outputCh)
		})
		wg.Wait()
		doneCh <- sess.Wait()
	}()

	select {
	case <-timeoutCtx.Done():
		sess.Signal(ssh.SIGINT)
		if ctx.Err() != nil {
			return -1, RunCancelError{Message: "command cancelled by user"}
		}
		return -1, fmt.Errorf(
			"command '%s' timed out after %d seconds",
			command,
			int(timeout.Seconds()),
		)
	case err := <-doneCh:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return int64(exitErr.ExitStatus()), nil
			}
			return -1, err
		}
		return 0, nil
	}
}

func (e *SSHEnvironment) Teardown() error {
	_, err := e.run(
		context.Background(),
		fmt.Sprintf("rm -rf %s", e.dir),
		30*time.Second,
		nil,
	)
	closeErr := e.client.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func scanOutput(r io.Reader, outputCh chan<- string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if outputCh != nil {
			outputCh <- scanner.Text() + "\n"
		}
	}
}

func dialSSH(username, hostname string, privateKey []byte) (*ssh.Client, error) {
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, err
	}
	auth := ssh.PublicKeys(signer)
	cc := &ssh.ClientConfig{
		User:            username,
		Auth:            []ssh.AuthMethod{auth},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         10 * time.Second,
	}

	split := strings.Split(hostname, ":")
	if len(split) == 1 {
		hostname += ":22"
	}
	return ssh.Dial("tcp", hostname, cc)
}
