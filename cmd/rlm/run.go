package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/rlmkit/rlm/internal/config"
	"github.com/rlmkit/rlm/internal/rlm/agent"
	"github.com/rlmkit/rlm/internal/rlm/capability"
	"github.com/rlmkit/rlm/internal/rlm/checkpoint"
	"github.com/rlmkit/rlm/internal/rlm/meta"
	"github.com/rlmkit/rlm/internal/rlm/task"
	"github.com/rlmkit/rlm/internal/rlm/transcript"
	"github.com/rlmkit/rlm/internal/rlm/transport"
)

var (
	runQuery       string
	runContextFile string
	runDatasetFile string
	runConfigFile  string
	runDatasetID   string
	runTaskID      string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one task (or a dataset of tasks) end to end",
	Long: `Run drives the agent loop against a configured LLM transport, printing
each task's final answer to stdout and writing a JSONL transcript.

A single task is given with --query and --context-file. A batch of tasks
is given with --dataset, a JSONL file of {dataset_id, task_id, query,
context} objects (spec.md §3's Task tuple).`,
	Example: `
  rlm run --query "what is the capital of France?" --context-file doc.txt
  rlm run --dataset tasks.jsonl --config rlm.yaml
`,
	RunE: runRLM,
}

func init() {
	runCmd.Flags().StringVar(&runQuery, "query", "", "task query (single-task form)")
	runCmd.Flags().StringVar(&runContextFile, "context-file", "", "path to the task's context text (single-task form)")
	runCmd.Flags().StringVar(&runDatasetFile, "dataset", "", "path to a JSONL dataset file (batch form)")
	runCmd.Flags().StringVar(&runConfigFile, "config", "", "path to a YAML config file")
	runCmd.Flags().StringVar(&runDatasetID, "dataset-id", "adhoc", "dataset_id recorded in the transcript (single-task form)")
	runCmd.Flags().StringVar(&runTaskID, "task-id", "task-1", "task_id recorded in the transcript (single-task form)")
}

func runRLM(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(runConfigFile)
	if err != nil {
		return &cliError{code: 2, err: err}
	}

	tasks, err := resolveTasks(cfg)
	if err != nil {
		return &cliError{code: 2, err: err}
	}

	loop, closeFn, err := buildLoop(cfg)
	if err != nil {
		return &cliError{code: 2, err: err}
	}
	defer closeFn()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	isTTY := isTerminal(os.Stdout)
	failures := 0
	for _, t := range tasks {
		result, err := loop.Run(ctx, t.DatasetID, t.TaskID, t.Query, t.Context, 0)
		if err != nil {
			fmt.Fprintf(os.Stderr, "task %s: transport error: %v\n", t.TaskID, err)
			failures++
			continue
		}
		if !result.OK {
			failures++
		}
		if isTTY {
			fmt.Printf("[%s] %s\n", renderOutcome(result.OK), t.TaskID)
		}
		fmt.Println(result.Answer)
	}

	if failures > 0 {
		return &cliError{code: 2, err: fmt.Errorf("%d of %d tasks did not complete successfully", failures, len(tasks))}
	}
	return nil
}

// resolveTasks builds the task list from either the single-task flags
// or a dataset file; exactly one form must be given.
func resolveTasks(cfg config.Config) ([]task.Task, error) {
	if runDatasetFile != "" {
		f, err := os.Open(runDatasetFile)
		if err != nil {
			return nil, fmt.Errorf("open dataset: %w", err)
		}
		defer f.Close()
		return task.LoadJSONL(f)
	}

	if runQuery == "" {
		return nil, fmt.Errorf("either --query or --dataset must be given")
	}
	contextText := ""
	if runContextFile != "" {
		data, err := os.ReadFile(runContextFile)
		if err != nil {
			return nil, fmt.Errorf("read context file: %w", err)
		}
		contextText = string(data)
	}
	return []task.Task{{DatasetID: runDatasetID, TaskID: runTaskID, Query: runQuery, Context: contextText}}, nil
}

// buildLoop wires a Config into a fully configured agent.Loop: an
// HTTP transport wrapped with retry, a model selector, a rotating
// JSONL transcript writer, and an optional durable checkpoint store.
// The returned func must be called to flush/close resources.
func buildLoop(cfg config.Config) (*agent.Loop, func(), error) {
	base := transport.NewHTTPClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey)
	client := transport.NewRetryingClient(base, transport.RetryConfig{
		Retries:     cfg.Retries,
		BackoffBase: cfg.RetryBackoff(),
	})

	models := meta.NewSelector(meta.Config{Root: cfg.Model, Sub: cfg.RecursiveModel})

	logger := &lumberjack.Logger{Filename: cfg.TranscriptPath, MaxSize: 100, MaxBackups: 5, Compress: true}
	tw := transcript.NewWriter(logger)

	var cp *checkpoint.Store
	if cfg.CheckpointDSN != "" {
		var err error
		cp, err = checkpoint.Open(cfg.CheckpointDSN)
		if err != nil {
			logger.Close()
			return nil, nil, fmt.Errorf("open checkpoint store: %w", err)
		}
	}

	loopCfg := agent.Config{
		MaxIterations:          cfg.MaxIterations,
		MaxDepth:               cfg.MaxDepth,
		LLMTimeout:             cfg.LLMTimeout(),
		MaxTokens:              cfg.LLMMaxTokens,
		Temperature:            cfg.Temperature,
		MaxContextChars:        cfg.MaxContextChars,
		MaxOutputChars:         cfg.MaxOutputChars,
		StrictCode:             cfg.StrictCode,
		ExecuteTimeout:         0,
		MaxSteps:               200_000,
		MaxBytes:               64 << 20,
		MaxStackDepth:          64,
		MaxConcurrentRecursion: 4,
		Capability: capability.Config{
			InjectB64Zlib:      cfg.InjectB64Zlib,
			ZlibMaxOutputBytes: cfg.ZlibMaxOutputBytes,
		},
	}

	loop := agent.New(loopCfg, client, models, tw, cp)
	closeFn := func() {
		logger.Close()
		if cp != nil {
			cp.Close()
		}
	}
	return loop, closeFn, nil
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
