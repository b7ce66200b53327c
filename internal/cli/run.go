package cli

import (
	"bufio"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/constants"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/execution"
	"github.com/mrz1836/forge/internal/joblog"
	"github.com/mrz1836/forge/internal/queue"
	"github.com/mrz1836/forge/internal/signal"
)

// drainTimeout caps how long the agent waits for the upload queue to
// flush after a job finishes.
const drainTimeout = 30 * time.Second

// AddRunCommand adds the run command to the root command.
func AddRunCommand(root *cobra.Command, flags *GlobalFlags) {
	root.AddCommand(newRunCmd(flags))
}

// newRunCmd creates the run command.
func newRunCmd(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job-file>",
		Short: "Execute a pipeline job described by a job message file",
		Long: `Run executes a job message locally: it builds the job's execution
context tree, runs each step's script, streams masked log lines into
per-record pages, and reports timeline records through the upload queue.

Examples:
  forge run job.yaml
  forge run --verbose job.yaml
  forge run --config /etc/forge/config.yaml job.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), cmd.OutOrStdout(), args[0], flags)
		},
	}
}

// readJobMessage parses the job message file at path.
func readJobMessage(path string) (*domain.JobMessage, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is an explicit CLI argument
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var msg domain.JobMessage
	if err := yaml.Unmarshal(data, &msg); err != nil {
		return nil, forgeerrors.Wrap(forgeerrors.ErrInvalidJobMessage, err.Error())
	}
	return &msg, nil
}

// runJob loads settings, parses the job message, and drives the job to
// completion.
func runJob(ctx context.Context, out io.Writer, jobPath string, flags *GlobalFlags) error {
	logger := GetLogger()

	settings, err := config.Load(flags.ConfigPath)
	if err != nil {
		return err
	}
	if flags.Verbose {
		settings.Verbose = true
	}
	if err = config.Validate(settings); err != nil {
		return err
	}

	msg, err := readJobMessage(jobPath)
	if err != nil {
		return err
	}

	handler := signal.NewHandler(ctx)
	defer handler.Stop()

	// Local runs deliver to an in-memory orchestrator client; the
	// summary below reads back what would have been reported upstream.
	client := queue.NewMemoryClient()
	q := queue.New(client, logger)
	q.Start(ctx)

	pages := joblog.NewService(settings.WorkDir, sharedMasker, q, logger, settings.Verbose)

	job := execution.New(q, pages, sharedMasker, settings, logger)
	if err = job.InitializeJob(msg, handler.Context()); err != nil {
		return err
	}

	job.Start("Job started on " + settings.AgentName)
	result := runSteps(job, msg.Steps)
	final := job.Complete(&result, "")

	if cause := handler.Cause(); cause != nil && !stderrors.Is(cause, context.Canceled) {
		logger.Warn().Str("cause", cause.Error()).Msg("job scope canceled")
	}

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	if err = q.Drain(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("upload queue drain incomplete")
	}

	printSummary(out, client, msg)

	if final != constants.ResultSucceeded && final != constants.ResultSucceededWithIssues {
		return forgeerrors.Wrap(forgeerrors.ErrStepFailed, "job finished with result "+string(final))
	}
	return nil
}

// runSteps creates one child context per step on the driver goroutine,
// then executes the steps concurrently. The job's result is Failed if
// any step fails, Canceled if the job scope was canceled, and
// SucceededWithIssues if steps only raised warnings.
func runSteps(job *execution.ExecutionContext, steps []domain.StepDescriptor) constants.TaskResult {
	children := make([]*execution.ExecutionContext, len(steps))
	for i, step := range steps {
		children[i] = job.CreateChild(step.ID, step.Name, step.RefName, step.Variables)
	}

	results := make([]constants.TaskResult, len(steps))
	g := new(errgroup.Group)
	for i := range steps {
		g.Go(func() error {
			results[i] = executeStep(children[i], steps[i])
			return nil
		})
	}
	_ = g.Wait()

	final := constants.ResultSucceeded
	for _, r := range results {
		switch r {
		case constants.ResultFailed:
			return constants.ResultFailed
		case constants.ResultCanceled:
			final = constants.ResultCanceled
		case constants.ResultSucceededWithIssues:
			if final == constants.ResultSucceeded {
				final = constants.ResultSucceededWithIssues
			}
		case constants.ResultSucceeded, constants.ResultSkipped:
		}
	}
	if job.Context().Err() != nil {
		return constants.ResultCanceled
	}
	return final
}

// executeStep runs one step's script inside its execution context and
// completes the record with the observed result.
func executeStep(step *execution.ExecutionContext, desc domain.StepDescriptor) constants.TaskResult {
	step.Start("Running " + desc.Name)
	if desc.Timeout > 0 {
		step.SetTimeout(desc.Timeout)
	}

	if desc.Script == "" {
		step.Debug("no script, skipping")
		result := constants.ResultSkipped
		return step.Complete(&result, "")
	}

	script := step.Variables().Expand(desc.Script)
	step.Command(script)

	result := runScript(step, script)
	return step.Complete(&result, "")
}

// runScript launches the step's shell script under the step's cancel
// scope and streams its output into the step's log page. Stdout lines
// become plain output; stderr lines are recorded as error issues.
func runScript(step *execution.ExecutionContext, script string) constants.TaskResult {
	cmd := exec.CommandContext(step.Context(), "/bin/sh", "-c", script) //nolint:gosec // script comes from the job message
	cmd.Env = stepEnv(step)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		step.Error("failed to open stdout: " + err.Error())
		return constants.ResultFailed
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		step.Error("failed to open stderr: " + err.Error())
		return constants.ResultFailed
	}

	if err = cmd.Start(); err != nil {
		step.Error("failed to start script: " + err.Error())
		return constants.ResultFailed
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		scanLines(stdout, step.Output)
		return nil
	})
	g.Go(func() error {
		scanLines(stderr, step.Error)
		return nil
	})
	_ = g.Wait()

	waitErr := cmd.Wait()
	switch {
	case step.Context().Err() != nil:
		step.Warning("step canceled")
		return constants.ResultCanceled
	case waitErr != nil:
		step.Error("script failed: " + waitErr.Error())
		return constants.ResultFailed
	default:
		return constants.ResultSucceeded
	}
}

// scanLines feeds each line from r into sink.
func scanLines(r io.Reader, sink func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		sink(scanner.Text())
	}
}

// stepEnv builds the process environment for a step: the current
// environment with the step's prepend-path entries ahead of PATH.
func stepEnv(step *execution.ExecutionContext) []string {
	env := os.Environ()
	prepend := step.Paths().List()
	if len(prepend) == 0 {
		return env
	}

	joined := strings.Join(prepend, string(os.PathListSeparator))
	for i, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			env[i] = "PATH=" + joined + string(os.PathListSeparator) + strings.TrimPrefix(kv, "PATH=")
			return env
		}
	}
	return append(env, "PATH="+joined)
}

// printSummary writes a short human-readable report of what the queue
// delivered for this job.
func printSummary(out io.Writer, client *queue.MemoryClient, msg *domain.JobMessage) {
	records := client.Records(msg.TimelineID)
	fmt.Fprintf(out, "\nJob %s finished: %d timeline record update(s), %d console line(s), %d file upload(s)\n",
		msg.JobName, len(records), len(client.Lines()), len(client.Files()))

	// Last update per record id wins; earlier updates are superseded.
	latest := make(map[string]*domain.TimelineRecord)
	order := make([]string, 0, len(records))
	for _, rec := range records {
		key := rec.ID.String()
		if _, seen := latest[key]; !seen {
			order = append(order, key)
		}
		latest[key] = rec
	}
	for _, key := range order {
		rec := latest[key]
		result := "-"
		if rec.Result != nil {
			result = string(*rec.Result)
		}
		fmt.Fprintf(out, "  %-9s %-40s state=%s result=%s errors=%d warnings=%d\n",
			rec.Type, rec.Name, rec.State, result, rec.ErrorCount, rec.WarningCount)
	}
}
