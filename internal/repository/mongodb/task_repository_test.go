package mongodb_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"blood-report-service/internal/entity"
	"blood-report-service/internal/repository"
	"blood-report-service/internal/repository/mongodb"
)

// Needs a disposable server: BLOODREPORT_TEST_MONGO_URI=mongodb://localhost:27017
func newRepo(t *testing.T) *mongodb.TaskRepository {
	t.Helper()
	return mongodb.NewTaskRepository(newCollection(t))
}

func newCollection(t *testing.T) *mongo.Collection {
	t.Helper()
	uri := os.Getenv("BLOODREPORT_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("BLOODREPORT_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	client, err := mongodb.Connect(ctx, uri)
	require.NoError(t, err)

	db := client.Database("bloodreport_test_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return db.Collection(mongodb.Collection)
}

func TestTaskRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	id := uuid.NewString()

	_, err := repo.Create(ctx, id, "report.pdf", "q")
	require.NoError(t, err)
	_, err = repo.Create(ctx, id, "report.pdf", "q")
	assert.ErrorIs(t, err, repository.ErrDuplicateID)

	require.NoError(t, repo.Update(ctx, id, entity.StatusProcessing, nil))
	msg := "pipeline stopped after verification: context deadline exceeded"
	require.NoError(t, repo.Update(ctx, id, entity.StatusFailed, &msg))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusFailed, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, msg, *got.Result)

	assert.ErrorIs(t, repo.Update(ctx, id, entity.StatusCompleted, &msg), repository.ErrInvalidTransition)
	assert.ErrorIs(t, repo.DeletePending(ctx, id), repository.ErrInvalidTransition)
}

func TestTaskRepository_TerminalWriteNeedsResultAndDeletePending(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.Create(ctx, "t-1", "report.pdf", "q")
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, "t-1", entity.StatusProcessing, nil))
	assert.ErrorIs(t, repo.Update(ctx, "t-1", entity.StatusFailed, nil), repository.ErrInvalidTransition)

	_, err = repo.Create(ctx, "t-2", "report.pdf", "q")
	require.NoError(t, err)
	require.NoError(t, repo.DeletePending(ctx, "t-2"))
	_, err = repo.Get(ctx, "t-2")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository_Unknown(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, "missing", entity.StatusProcessing, nil), repository.ErrNotFound)
}

func TestTaskRepository_GetRejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	coll := newCollection(t)
	_, err := coll.InsertOne(ctx, bson.M{"_id": "legacy", "query": "q", "status": "DONE"})
	require.NoError(t, err)

	_, err = mongodb.NewTaskRepository(coll).Get(ctx, "legacy")
	assert.ErrorContains(t, err, `unknown stored status "DONE"`)
}
