package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conveyordev/conveyor/internal/agent"
	"github.com/conveyordev/conveyor/internal/checkpoint"
	"github.com/conveyordev/conveyor/internal/config"
	"github.com/conveyordev/conveyor/internal/db"
	"github.com/conveyordev/conveyor/internal/engine"
	"github.com/conveyordev/conveyor/internal/progress"
	"github.com/conveyordev/conveyor/internal/repoctx"
	"github.com/conveyordev/conveyor/internal/runner"
	"github.com/conveyordev/conveyor/internal/verify"
)

var runFlags struct {
	intent         string
	planFile       string
	feedback       string
	fromRun        string
	workDir        string
	verifyCommands []string
	maxAttempts    int
	verbose        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start a new pipeline run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return executePipeline(cmd, "", false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume an interrupted run from its checkpoint",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID := ""
		if len(args) > 0 {
			runID = args[0]
		}
		return executePipeline(cmd, runID, true)
	},
}

func executePipeline(cmd *cobra.Command, runID string, resume bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if errs := config.Validate(cfg); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(cmd.ErrOrStderr(), "config: %s\n", e)
		}
		return fmt.Errorf("config has %d validation error(s)", len(errs))
	}

	store, err := checkpoint.DefaultStore()
	if err != nil {
		return err
	}

	minLevel := progress.LevelInfo
	if runFlags.verbose {
		minLevel = progress.LevelDebug
	}
	reporter := progress.NewConsoleReporter(cmd.OutOrStdout(), minLevel)
	defer reporter.Close()

	// The event log is best-effort observability; a broken database must
	// not block the run.
	var events *db.DB
	if path, err := db.DefaultDBPath(); err == nil {
		if d, err := db.Open(path); err == nil {
			if err := d.Migrate(); err == nil {
				events = d
				defer d.Close()
			} else {
				d.Close()
			}
		}
	}
	if events == nil {
		progress.Logf(reporter, progress.LevelWarn, "event log unavailable, continuing without it")
	}

	workDir := runFlags.workDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}

	plan := ""
	if runFlags.planFile != "" {
		data, err := os.ReadFile(runFlags.planFile)
		if err != nil {
			return fmt.Errorf("read plan file: %w", err)
		}
		plan = string(data)
	}

	var sessionTimeout time.Duration
	if cfg.Pipeline.Defaults.SessionTimeout != "" {
		sessionTimeout, _ = time.ParseDuration(cfg.Pipeline.Defaults.SessionTimeout)
	}
	client := agent.NewExecClient(agentSpecs(cfg), sessionTimeout, workDir)

	eng := &engine.Engine{
		Config:   cfg,
		Client:   client,
		Store:    store,
		Reporter: reporter,
		Events:   events,
		Commands: &verify.ExecRunner{},
		WorkDir:  workDir,
	}

	// SIGINT/SIGTERM cancel the context: no new work starts, in-flight
	// checkpoint saves finish, and the run stays resumable.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repoContext := repoctx.Build(workDir, &repoctx.ExecGit{})

	attempt := func(ctx context.Context, resumeNow bool) error {
		return eng.Execute(ctx, engine.Options{
			Resume:         resumeNow,
			RunID:          runID,
			Intent:         runFlags.intent,
			RepoContext:    repoContext,
			Plan:           plan,
			Feedback:       runFlags.feedback,
			FromRun:        runFlags.fromRun,
			VerifyCommands: runFlags.verifyCommands,
		})
	}

	if err := runner.Run(ctx, attempt, resume, runFlags.maxAttempts, reporter); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Run completed.")
	return nil
}

// agentSpecs converts configured agents to the exec client's spec map.
func agentSpecs(cfg *config.PipelineConfig) map[string]agent.Spec {
	specs := make(map[string]agent.Spec, len(cfg.Pipeline.Agents))
	for id, a := range cfg.Pipeline.Agents {
		specs[id] = agent.Spec{
			ID:           id,
			Command:      a.Command,
			Model:        a.Model,
			Instructions: a.Instructions,
			Timeout:      a.Timeout,
		}
	}
	return specs
}

func init() {
	for _, cmd := range []*cobra.Command{runCmd, resumeCmd} {
		cmd.Flags().StringVarP(&runFlags.intent, "intent", "i", "", "what to build (drives the spec phase)")
		cmd.Flags().StringVar(&runFlags.planFile, "plan", "", "file with an externally written plan (skips conditioned spec phases)")
		cmd.Flags().StringVar(&runFlags.feedback, "feedback", "", "feedback text: re-runs implement with prior run context")
		cmd.Flags().StringVar(&runFlags.fromRun, "from-run", "", "run id to seed a feedback run from")
		cmd.Flags().StringVarP(&runFlags.workDir, "dir", "d", "", "project directory (default: cwd)")
		cmd.Flags().StringSliceVar(&runFlags.verifyCommands, "verify", nil, "override verify commands")
		cmd.Flags().IntVar(&runFlags.maxAttempts, "max-attempts", 1, "auto-resume attempts on failure")
		cmd.Flags().BoolVarP(&runFlags.verbose, "verbose", "v", false, "show debug log lines")
	}
}
