package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/forge/internal/config"
	"github.com/mrz1836/forge/internal/domain"
	forgeerrors "github.com/mrz1836/forge/internal/errors"
	"github.com/mrz1836/forge/internal/execution"
	"github.com/mrz1836/forge/internal/joblog"
	"github.com/mrz1836/forge/internal/masker"
	"github.com/mrz1836/forge/internal/queue"
)

// runHarness wires a live execution context against in-memory collaborators.
type runHarness struct {
	job *execution.ExecutionContext
}

func newRunHarness(t *testing.T) *runHarness {
	t.Helper()

	m := masker.New()
	q := queue.New(queue.NewMemoryClient(), zerolog.Nop())
	q.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = q.Drain(ctx)
	})

	dir := t.TempDir()
	pages := joblog.NewService(dir, m, q, zerolog.Nop(), false)
	settings := &config.Settings{AgentName: "test-agent", WorkDir: dir}

	job := execution.New(q, pages, m, settings, zerolog.Nop())
	msg := &domain.JobMessage{
		JobID:      uuid.New(),
		JobName:    "Build",
		JobRefName: "__default",
		TimelineID: uuid.New(),
		Environment: &domain.JobEnvironment{
			Endpoints: []domain.Endpoint{},
			Variables: map[string]string{},
		},
		Plan: &domain.PlanDescriptor{PlanID: uuid.New(), PlanType: "Build"},
	}
	require.NoError(t, job.InitializeJob(msg, context.Background()))
	return &runHarness{job: job}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func jobFileYAML(script string) string {
	return `
job_id: ` + uuid.NewString() + `
job_name: Build
job_ref_name: __default
timeline_id: ` + uuid.NewString() + `
environment:
  endpoints: []
  variables:
    build.configuration: release
plan:
  plan_id: ` + uuid.NewString() + `
  plan_type: Build
steps:
  - id: ` + uuid.NewString() + `
    name: Step One
    ref_name: step_one
    script: ` + script + `
`
}

func TestReadJobMessage(t *testing.T) {
	dir := t.TempDir()

	path := writeFile(t, dir, "job.yaml", jobFileYAML("echo hello"))
	msg, err := readJobMessage(path)
	require.NoError(t, err)
	assert.Equal(t, "Build", msg.JobName)
	require.Len(t, msg.Steps, 1)
	assert.Equal(t, "echo hello", msg.Steps[0].Script)
}

func TestReadJobMessage_MalformedYAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "job.yaml", "job_name: [unterminated\n")
	_, err := readJobMessage(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrInvalidJobMessage)
}

func TestReadJobMessage_MissingFile(t *testing.T) {
	_, err := readJobMessage(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestRunJob_SucceedingStep(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.yaml", "agent_name: test-agent\nwork_dir: "+dir+"\n")
	jobPath := writeFile(t, dir, "job.yaml", jobFileYAML("echo building"))

	var out bytes.Buffer
	err := runJob(context.Background(), &out, jobPath, &GlobalFlags{ConfigPath: configPath})
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Job Build finished")
	assert.Contains(t, out.String(), "succeeded")
}

func TestRunJob_FailingStep(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.yaml", "work_dir: "+dir+"\n")
	jobPath := writeFile(t, dir, "job.yaml", jobFileYAML("exit 3"))

	var out bytes.Buffer
	err := runJob(context.Background(), &out, jobPath, &GlobalFlags{ConfigPath: configPath})
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrStepFailed)
	assert.Contains(t, out.String(), "failed")
}

func TestRunJob_InvalidJobMessage(t *testing.T) {
	dir := t.TempDir()
	configPath := writeFile(t, dir, "config.yaml", "work_dir: "+dir+"\n")
	jobPath := writeFile(t, dir, "job.yaml", "job_name: Incomplete\n")

	var out bytes.Buffer
	err := runJob(context.Background(), &out, jobPath, &GlobalFlags{ConfigPath: configPath})
	require.Error(t, err)
	assert.ErrorIs(t, err, forgeerrors.ErrInvalidJobMessage)
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "dev", formatVersion(BuildInfo{}))
	assert.Equal(t, "1.2.3", formatVersion(BuildInfo{Version: "1.2.3"}))
	assert.Equal(t, "1.2.3 (abc123)", formatVersion(BuildInfo{Version: "1.2.3", Commit: "abc123"}))
}

func TestStepEnv_PrependsPaths(t *testing.T) {
	t.Setenv("PATH", "/usr/bin:/bin")

	h := newRunHarness(t)
	job := h.job
	job.Paths().Prepend("/opt/tools/bin")

	env := stepEnv(job)
	found := false
	for _, kv := range env {
		if kv == "PATH=/opt/tools/bin:/usr/bin:/bin" {
			found = true
		}
	}
	assert.True(t, found, "prepended path must lead PATH, got %v", env)
}
