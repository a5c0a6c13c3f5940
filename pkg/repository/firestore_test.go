package repository_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/chatterbox/pkg/repository"
)

func setupFirestore(t *testing.T) *repository.Firestore {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")

	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	// Random namespace keeps test runs apart
	repo, err := repository.NewFirestore(context.Background(), projectID, databaseID, "test-"+uuid.NewString())
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Clear(context.Background())
		_ = repo.Close()
	})

	return repo
}

func TestFirestore(t *testing.T) {
	testRepository(t, setupFirestore(t))
}
