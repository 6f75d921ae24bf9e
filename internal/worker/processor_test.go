package worker_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/pipeline"
	"blood-report-service/internal/repository/memory"
	"blood-report-service/internal/worker"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	run   func(ctx context.Context) (*pipeline.Report, error)
}

func (f *fakeRunner) Run(ctx context.Context, filePath, _ string) (*pipeline.Report, error) {
	f.mu.Lock()
	f.calls = append(f.calls, filePath)
	f.mu.Unlock()
	return f.run(ctx)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func reportOf(md string) func(context.Context) (*pipeline.Report, error) {
	return func(context.Context) (*pipeline.Report, error) { return &pipeline.Report{Markdown: md}, nil }
}

type fakeStager struct {
	mu      sync.Mutex
	removed []string
}

func (s *fakeStager) Save(context.Context, string, io.Reader) (string, error) { return "", nil }

func (s *fakeStager) Open(_ context.Context, ref string) (string, func(), error) {
	return "/local/" + ref, func() {}, nil
}

func (s *fakeStager) Remove(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, ref)
	return nil
}

func (s *fakeStager) removedRefs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.removed...)
}

func setup(t *testing.T, status entity.TaskStatus) (*memory.TaskRepository, entity.Job) {
	t.Helper()
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	_, err := repo.Create(ctx, "t-1", "cbc.pdf", "q")
	require.NoError(t, err)

	switch status {
	case entity.StatusProcessing:
		require.NoError(t, repo.Update(ctx, "t-1", entity.StatusProcessing, nil))
	case entity.StatusCompleted:
		require.NoError(t, repo.Update(ctx, "t-1", entity.StatusProcessing, nil))
		done := "# earlier report"
		require.NoError(t, repo.Update(ctx, "t-1", entity.StatusCompleted, &done))
	}
	return repo, entity.Job{TaskID: "t-1", FilePath: "blood_test_report_a.pdf", Query: "q"}
}

func TestProcessor_CompletesPendingTask(t *testing.T) {
	repo, job := setup(t, entity.StatusPending)
	runner := &fakeRunner{run: reportOf("## Medical Analysis Summary\nfine")}
	stager := &fakeStager{}
	p := worker.NewProcessor(repo, runner, stager)

	require.NoError(t, p.Process(context.Background(), job))

	task, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "## Medical Analysis Summary\nfine", *task.Result)
	assert.Equal(t, []string{"/local/blood_test_report_a.pdf"}, runner.calls)
	assert.Equal(t, []string{job.FilePath}, stager.removedRefs())
}

func TestProcessor_RunnerErrorMarksFailed(t *testing.T) {
	repo, job := setup(t, entity.StatusPending)
	runner := &fakeRunner{run: func(context.Context) (*pipeline.Report, error) {
		return nil, errors.New("pipeline exploded")
	}}
	stager := &fakeStager{}
	p := worker.NewProcessor(repo, runner, stager)

	err := p.Process(context.Background(), job)
	require.Error(t, err)

	task, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, task.Status)
	require.NotNil(t, task.Result)
	assert.Equal(t, "pipeline exploded", *task.Result)
	assert.Len(t, stager.removedRefs(), 1)
}

func TestProcessor_TerminalTaskIsNoOp(t *testing.T) {
	repo, job := setup(t, entity.StatusCompleted)
	runner := &fakeRunner{run: reportOf("new")}
	stager := &fakeStager{}
	p := worker.NewProcessor(repo, runner, stager)

	require.NoError(t, p.Process(context.Background(), job))

	assert.Zero(t, runner.count())
	task, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, "# earlier report", *task.Result)
	assert.Len(t, stager.removedRefs(), 1, "the upload is still cleaned up")
}

func TestProcessor_ResumesProcessingTask(t *testing.T) {
	repo, job := setup(t, entity.StatusProcessing)
	runner := &fakeRunner{run: reportOf("resumed")}
	p := worker.NewProcessor(repo, runner, &fakeStager{})

	require.NoError(t, p.Process(context.Background(), job))

	task, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, task.Status)
	assert.Equal(t, "resumed", *task.Result)
}

func TestProcessor_UnknownTask(t *testing.T) {
	stager := &fakeStager{}
	p := worker.NewProcessor(memory.NewTaskRepository(), &fakeRunner{run: reportOf("x")}, stager)

	err := p.Process(context.Background(), entity.Job{TaskID: "ghost", FilePath: "f.pdf"})
	require.Error(t, err)
	assert.Equal(t, []string{"f.pdf"}, stager.removedRefs())
}

func TestProcessor_JobTimeoutMarksFailed(t *testing.T) {
	repo, job := setup(t, entity.StatusPending)
	runner := &fakeRunner{run: func(ctx context.Context) (*pipeline.Report, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p := worker.NewProcessor(repo, runner, &fakeStager{}, worker.WithJobTimeout(20*time.Millisecond))

	require.Error(t, p.Process(context.Background(), job))

	task, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, task.Status)
	assert.Contains(t, *task.Result, context.DeadlineExceeded.Error())
}

func TestProcessor_ShutdownLeavesTaskForRedelivery(t *testing.T) {
	repo, job := setup(t, entity.StatusPending)
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{run: func(runCtx context.Context) (*pipeline.Report, error) {
		cancel()
		<-runCtx.Done()
		return nil, runCtx.Err()
	}}
	stager := &fakeStager{}
	p := worker.NewProcessor(repo, runner, stager)

	require.Error(t, p.Process(ctx, job))

	task, err := repo.Get(context.Background(), "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, task.Status)
	assert.Nil(t, task.Result)
	assert.Empty(t, stager.removedRefs())
}
