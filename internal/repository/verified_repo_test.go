package repository

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amitvarma/ai-loan-processor/pkg/database"
)

func newTestRepo(t *testing.T) *VerifiedDocumentRepository {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{
		DSN:             filepath.Join(t.TempDir(), "ledger_test.db"),
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Minute,
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).Run())
	return NewVerifiedDocumentRepository(db, logger)
}

func TestVerifiedDocumentRepository_SaveVerified(t *testing.T) {
	ctx := context.Background()

	t.Run("first save creates an active record", func(t *testing.T) {
		repo := newTestRepo(t)

		id, err := repo.SaveVerified(ctx, "app-1", "payslip.png",
			map[string]string{"Gross Income": "85000"},
			map[string]string{"Gross Income": "85500"})

		require.NoError(t, err)
		assert.NotEmpty(t, id)

		records, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, id, records[0].ID)
		assert.Equal(t, "app-1", records[0].ApplicationID)
		assert.Equal(t, "payslip.png", records[0].Filename)
		assert.Equal(t, "85000", records[0].AIData["Gross Income"])
		assert.Equal(t, "85500", records[0].VerifiedData["Gross Income"])
		assert.True(t, records[0].IsActive)
		assert.Nil(t, records[0].EndDate)
	})

	t.Run("resubmission deactivates the previous version", func(t *testing.T) {
		repo := newTestRepo(t)

		const n = 4
		ids := make([]string, 0, n)
		for i := 0; i < n; i++ {
			id, err := repo.SaveVerified(ctx, "app-1", "payslip.png",
				map[string]string{"Net Pay": "70000"},
				map[string]string{"Net Pay": "correction " + strconv.Itoa(i)})
			require.NoError(t, err)
			ids = append(ids, id)
			time.Sleep(5 * time.Millisecond)
		}

		active, err := repo.ListActive(ctx)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, ids[n-1], active[0].ID)
		assert.Equal(t, "correction 3", active[0].VerifiedData["Net Pay"])

		all, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, n)

		var lastEnd time.Time
		for i, rec := range all {
			if i == n-1 {
				assert.True(t, rec.IsActive)
				assert.Nil(t, rec.EndDate)
				continue
			}
			assert.False(t, rec.IsActive)
			require.NotNil(t, rec.EndDate, "inactive record must carry an end date")
			assert.False(t, rec.EndDate.Before(lastEnd), "end dates must follow call order")
			lastEnd = *rec.EndDate
		}
	})

	t.Run("different keys do not interfere", func(t *testing.T) {
		repo := newTestRepo(t)

		_, err := repo.SaveVerified(ctx, "app-1", "payslip.png", nil, map[string]string{"A": "1"})
		require.NoError(t, err)
		_, err = repo.SaveVerified(ctx, "app-1", "pan.jpg", nil, map[string]string{"B": "2"})
		require.NoError(t, err)
		_, err = repo.SaveVerified(ctx, "app-2", "payslip.png", nil, map[string]string{"C": "3"})
		require.NoError(t, err)

		active, err := repo.ListActive(ctx)
		require.NoError(t, err)
		assert.Len(t, active, 3)
	})

	t.Run("concurrent saves for the same key leave exactly one active", func(t *testing.T) {
		repo := newTestRepo(t)

		const workers = 8
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := repo.SaveVerified(ctx, "app-racy", "statement.pdf",
					nil, map[string]string{"Balance": strconv.Itoa(i)})
				assert.NoError(t, err)
			}(i)
		}
		wg.Wait()

		all, err := repo.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, all, workers)

		activeCount := 0
		for _, rec := range all {
			if rec.IsActive {
				activeCount++
				assert.Nil(t, rec.EndDate)
			} else {
				assert.NotNil(t, rec.EndDate)
			}
		}
		assert.Equal(t, 1, activeCount)
	})
}

func TestVerifiedDocumentRepository_DeleteAll(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	_, err := repo.SaveVerified(ctx, "app-1", "payslip.png", nil, map[string]string{"A": "1"})
	require.NoError(t, err)
	_, err = repo.SaveVerified(ctx, "app-1", "payslip.png", nil, map[string]string{"A": "2"})
	require.NoError(t, err)

	require.NoError(t, repo.DeleteAll(ctx))

	active, err := repo.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
