package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/haatos/pipewright/internal"
	"github.com/haatos/pipewright/internal/service"
	"github.com/haatos/pipewright/internal/store"
)

// pipewright runs a single workflow script on the local machine without a
// controller server, mirroring what a queued run would do for the
// controller agent.
func main() {
	scriptPath := flag.String("script", "", "path to the workflow script")
	repository := flag.String("repository", "", "repository the workflow builds")
	event := flag.String("event", string(service.EventPush), "trigger event kind")
	branch := flag.String("branch", "main", "git branch to check out")
	workspace := flag.String("workspace", "runs", "directory to run jobs under")
	flag.Parse()

	if *scriptPath == "" || *repository == "" {
		flag.Usage()
		os.Exit(2)
	}

	internal.InitializeConfiguration()

	scriptYaml, err := os.ReadFile(*scriptPath)
	if err != nil {
		log.Fatal("err reading workflow script: ", err)
	}
	ws, err := service.ParseWorkflow(scriptYaml)
	if err != nil {
		log.Fatal("err parsing workflow script: ", err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	jobRunner := service.NewJobRunner(
		service.NewPredicateGate(),
		service.NewEnvironmentProvisioner(internal.Config.ProvisionTimeout.Duration()),
		service.NewStepExecutor(
			internal.Config.MaxStepOutputBytes,
			internal.Config.DefaultStepTimeout.Duration(),
		),
	)

	prd := &store.PipelineRunData{
		Repository: *repository,
		ScriptPath: *scriptPath,
		Workspace:  *workspace,
	}
	ev := service.TriggerEvent{
		Kind:       service.EventKind(*event),
		Repository: service.RepositorySlug(*repository),
		Branch:     *branch,
	}
	workdir := time.Now().UTC().Format(internal.RunDirLayout)

	outputCh := make(chan string)
	outputDone := make(chan struct{})
	go func() {
		defer close(outputDone)
		for line := range outputCh {
			fmt.Print(line)
		}
	}()

	results := make([]store.JobResult, len(ws.Jobs))
	var wg sync.WaitGroup
	for i, job := range ws.Jobs {
		wg.Go(func() {
			results[i] = jobRunner.RunJob(ctx, prd, job, workdir, ev, outputCh)
		})
	}
	wg.Wait()
	close(outputCh)
	<-outputDone

	failed := false
	for _, jr := range results {
		fmt.Printf("%s: %s\n", jr.Name, jr.Status)
		if jr.Error != nil {
			fmt.Printf("  %s\n", *jr.Error)
		}
		if jr.Status == store.JobFailed {
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}
