package repository_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/chatterbox/pkg/repository"
)

func testRepository(t *testing.T, repo repository.Repository) {
	ctx := context.Background()

	t.Run("get missing key", func(t *testing.T) {
		_, ok, err := repo.Get(ctx, "missing")
		gt.NoError(t, err)
		gt.False(t, ok)
	})

	t.Run("set and get", func(t *testing.T) {
		gt.NoError(t, repo.Set(ctx, repository.KeyTheme, "dark"))
		v, ok, err := repo.Get(ctx, repository.KeyTheme)
		gt.NoError(t, err)
		gt.True(t, ok)
		gt.Equal(t, v, "dark")
	})

	t.Run("overwrite", func(t *testing.T) {
		gt.NoError(t, repo.Set(ctx, repository.KeyTheme, "light"))
		v, _, err := repo.Get(ctx, repository.KeyTheme)
		gt.NoError(t, err)
		gt.Equal(t, v, "light")
	})

	t.Run("delete", func(t *testing.T) {
		gt.NoError(t, repo.Delete(ctx, repository.KeyTheme))
		_, ok, err := repo.Get(ctx, repository.KeyTheme)
		gt.NoError(t, err)
		gt.False(t, ok)

		// deleting twice is fine
		gt.NoError(t, repo.Delete(ctx, repository.KeyTheme))
	})

	t.Run("clear", func(t *testing.T) {
		gt.NoError(t, repo.Set(ctx, "a", "1"))
		gt.NoError(t, repo.Set(ctx, "b", "2"))
		gt.NoError(t, repo.Clear(ctx))

		_, okA, err := repo.Get(ctx, "a")
		gt.NoError(t, err)
		_, okB, err := repo.Get(ctx, "b")
		gt.NoError(t, err)
		gt.False(t, okA)
		gt.False(t, okB)
	})
}

func TestMemory(t *testing.T) {
	testRepository(t, repository.NewMemory())
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "chatterbox.db")
	repo, err := repository.NewSQLite(path)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	testRepository(t, repo)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chatterbox.db")

	repo, err := repository.NewSQLite(path)
	gt.NoError(t, err)
	gt.NoError(t, repo.Set(ctx, repository.KeyCurrentSession, "1700000000000"))
	gt.NoError(t, repo.Close())

	reopened, err := repository.NewSQLite(path)
	gt.NoError(t, err)
	defer reopened.Close()

	v, ok, err := reopened.Get(ctx, repository.KeyCurrentSession)
	gt.NoError(t, err)
	gt.True(t, ok)
	gt.Equal(t, v, "1700000000000")
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := repository.NewSQLite("  ")
	gt.Error(t, err)
}
