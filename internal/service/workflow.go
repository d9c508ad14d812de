package service

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"
)

type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
	EventSchedule    EventKind = "schedule"
)

// TriggerEvent is a repository event delivered to the scheduler, either
// by a forge webhook or synthesized for scheduled and manual runs.
type TriggerEvent struct {
	Kind       EventKind `json:"event"`
	Repository string    `json:"repository"`
	Branch     string    `json:"branch"`
}

type BranchFilter struct {
	Branches []string `yaml:"branches"`
}

type Triggers struct {
	Push        *BranchFilter `yaml:"push"`
	PullRequest *BranchFilter `yaml:"pull_request"`
}

// Matches reports whether an event of the given kind on the given branch
// activates the workflow. A trigger without a branch filter accepts
// every branch; an absent trigger accepts nothing.
func (t Triggers) Matches(kind EventKind, branch string) bool {
	var bf *BranchFilter
	switch kind {
	case EventPush:
		bf = t.Push
	case EventPullRequest:
		bf = t.PullRequest
	default:
		return false
	}
	if bf == nil {
		return false
	}
	if len(bf.Branches) == 0 {
		return true
	}
	return slices.Contains(bf.Branches, branch)
}

// TriggerSet is the denormalized form of Triggers stored on the pipeline
// row, so that event matching never reads the workflow script.
type TriggerSet map[EventKind][]string

func (t Triggers) Set() TriggerSet {
	ts := make(TriggerSet)
	if t.Push != nil {
		ts[EventPush] = t.Push.Branches
	}
	if t.PullRequest != nil {
		ts[EventPullRequest] = t.PullRequest.Branches
	}
	return ts
}

func (ts TriggerSet) Matches(kind EventKind, branch string) bool {
	branches, ok := ts[kind]
	if !ok {
		return false
	}
	if len(branches) == 0 {
		return true
	}
	return slices.Contains(branches, branch)
}

func (ts TriggerSet) JSON() (string, error) {
	b, err := json.Marshal(ts)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ParseTriggerSet(s string) (TriggerSet, error) {
	ts := make(TriggerSet)
	if err := json.Unmarshal([]byte(s), &ts); err != nil {
		return nil, ConfigError{Message: fmt.Sprintf("invalid trigger set '%s': %+v", s, err)}
	}
	return ts, nil
}

type Runtime struct {
	Language string `yaml:"language"`
	Version  string `yaml:"version"`
	Manifest string `yaml:"manifest"`
}

// Interpreter returns the versioned interpreter name, e.g. "python3.9".
func (rt Runtime) Interpreter() string {
	if rt.Language == "" {
		return ""
	}
	return rt.Language + rt.Version
}

func (rt Runtime) CheckCommand() string {
	if rt.Language == "" {
		return ""
	}
	return rt.Interpreter() + " --version"
}

func (rt Runtime) InstallCommand() (string, error) {
	if rt.Manifest == "" {
		return "", nil
	}
	if rt.Language != "python" {
		return "", ConfigError{
			Message: fmt.Sprintf("no dependency installer for language '%s'", rt.Language),
		}
	}
	return fmt.Sprintf("%s -m pip install -r %s", rt.Interpreter(), rt.Manifest), nil
}

type Step struct {
	Step            string            `yaml:"step"`
	Script          string            `yaml:"script"`
	With            map[string]string `yaml:"with"`
	ContinueOnError bool              `yaml:"continue_on_error"`
	TimeoutSeconds  int64             `yaml:"timeout_seconds"`
}

// FailsBuild reports whether a nonzero exit of this step fails the job.
// Setting fail_ci_if_error to "false" in the with block is equivalent
// to continue_on_error.
func (s Step) FailsBuild() bool {
	if s.ContinueOnError {
		return false
	}
	return s.With["fail_ci_if_error"] != "false"
}

// Command renders the shell command for the step: the script followed by
// the remaining with entries as --key value flags in key order.
func (s Step) Command() string {
	var sb strings.Builder
	sb.WriteString(s.Script)

	keys := make([]string, 0, len(s.With))
	for k := range s.With {
		if k == "fail_ci_if_error" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		sb.WriteString(fmt.Sprintf(" --%s %s", k, s.With[k]))
	}
	return sb.String()
}

type Job struct {
	Job       string  `yaml:"job"`
	If        string  `yaml:"if"`
	Runtime   Runtime `yaml:"runtime"`
	Steps     []Step  `yaml:"steps"`
	Artifacts string  `yaml:"artifacts"`
}

type Workflow struct {
	Name string   `yaml:"name"`
	On   Triggers `yaml:"on"`
	Jobs []Job    `yaml:"jobs"`
}

func ParseWorkflow(b []byte) (*Workflow, error) {
	ws := new(Workflow)
	if err := yaml.Unmarshal(b, ws); err != nil {
		return nil, ConfigError{Message: fmt.Sprintf("invalid workflow script: %+v", err)}
	}
	if err := ws.Validate(); err != nil {
		return nil, err
	}
	return ws, nil
}

func (w *Workflow) Validate() error {
	if len(w.Jobs) == 0 {
		return ConfigError{Message: "workflow has no jobs"}
	}
	seen := make(map[string]struct{}, len(w.Jobs))
	for _, job := range w.Jobs {
		if job.Job == "" {
			return ConfigError{Message: "workflow has a job without a name"}
		}
		if _, ok := seen[job.Job]; ok {
			return ConfigError{Message: fmt.Sprintf("duplicate job name '%s'", job.Job)}
		}
		seen[job.Job] = struct{}{}
		if len(job.Steps) == 0 {
			return ConfigError{Message: fmt.Sprintf("job '%s' has no steps", job.Job)}
		}
		for _, step := range job.Steps {
			if step.Script == "" {
				return ConfigError{
					Message: fmt.Sprintf("job '%s' has a step without a script", job.Job),
				}
			}
		}
	}
	return nil
}

// RepositorySlug reduces a clone URL to its owner/name form, the
// identity forge events carry, e.g. "git@github.com:openep/openep-py.git"
// becomes "openep/openep-py".
func RepositorySlug(repository string) string {
	s := strings.TrimSuffix(repository, ".git")
	s = strings.ReplaceAll(s, ":", "/")
	parts := strings.Split(s, "/")
	if len(parts) < 2 {
		return s
	}
	return strings.Join(parts[len(parts)-2:], "/")
}
