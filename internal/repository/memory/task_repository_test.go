package memory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/repository"
	"blood-report-service/internal/repository/memory"
)

func strPtr(s string) *string { return &s }

func TestTaskRepository_CreateThenGet_IsPendingWithoutResult(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()

	created, err := repo.Create(ctx, "t-1", "report.pdf", "check my cholesterol")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, created.Status)

	got, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPending, got.Status)
	assert.Nil(t, got.Result)
	assert.Equal(t, "report.pdf", got.FileName)
	assert.Equal(t, "check my cholesterol", got.Query)
	assert.Equal(t, got.CreatedAt, got.UpdatedAt)
}

func TestTaskRepository_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()

	_, err := repo.Create(ctx, "t-1", "a.pdf", "q")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "t-1", "b.pdf", "q")
	assert.ErrorIs(t, err, repository.ErrDuplicateID)
}

func TestTaskRepository_GetUnknown(t *testing.T) {
	_, err := memory.NewTaskRepository().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	_, err := repo.Create(ctx, "t-1", "a.pdf", "q")
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, "t-1", entity.StatusProcessing, nil))
	got, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, got.Status)
	assert.Nil(t, got.Result, "result stays nil while processing")

	require.NoError(t, repo.Update(ctx, "t-1", entity.StatusCompleted, strPtr("# report")))
	got, err = repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "# report", *got.Result)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	// terminal: no regression, no second terminal write
	assert.ErrorIs(t, repo.Update(ctx, "t-1", entity.StatusProcessing, nil), repository.ErrInvalidTransition)
	assert.ErrorIs(t, repo.Update(ctx, "t-1", entity.StatusFailed, strPtr("late")), repository.ErrInvalidTransition)

	got, err = repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "# report", *got.Result)
}

func TestTaskRepository_UpdateRejectsSkippedStep(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	_, err := repo.Create(ctx, "t-1", "a.pdf", "q")
	require.NoError(t, err)

	err = repo.Update(ctx, "t-1", entity.StatusCompleted, strPtr("x"))
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)
}

func TestTaskRepository_TerminalWriteNeedsResult(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	_, err := repo.Create(ctx, "t-1", "a.pdf", "q")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, "t-1", entity.StatusProcessing, nil))

	assert.ErrorIs(t, repo.Update(ctx, "t-1", entity.StatusCompleted, nil), repository.ErrInvalidTransition)
	assert.ErrorIs(t, repo.Update(ctx, "t-1", entity.StatusFailed, nil), repository.ErrInvalidTransition)

	got, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusProcessing, got.Status)
	assert.Nil(t, got.Result)
}

func TestTaskRepository_DeletePending(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	_, err := repo.Create(ctx, "t-1", "a.pdf", "q")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "t-2", "b.pdf", "q")
	require.NoError(t, err)

	require.NoError(t, repo.DeletePending(ctx, "t-1"))
	_, err = repo.Get(ctx, "t-1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.DeletePending(ctx, "t-1"), repository.ErrNotFound)

	require.NoError(t, repo.Update(ctx, "t-2", entity.StatusProcessing, nil))
	assert.ErrorIs(t, repo.DeletePending(ctx, "t-2"), repository.ErrInvalidTransition)
	_, err = repo.Get(ctx, "t-2")
	assert.NoError(t, err)
}

func TestTaskRepository_UpdateUnknown(t *testing.T) {
	err := memory.NewTaskRepository().Update(context.Background(), "nope", entity.StatusProcessing, nil)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewTaskRepository()
	_, err := repo.Create(ctx, "t-1", "a.pdf", "q")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if repo.Update(ctx, "t-1", entity.StatusProcessing, nil) == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}
