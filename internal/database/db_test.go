package database

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/kamilpajak/commentguard/pkg/models"
)

var (
	containerOnce sync.Once
	container     *tcpostgres.PostgresContainer
	containerURL  string
	containerErr  error
)

// databaseURL returns DATABASE_URL, or starts one postgres container shared
// by the package. Integration tests are skipped under -short.
func databaseURL(t *testing.T) string {
	t.Helper()
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}
	if testing.Short() {
		t.Skip("integration test: set DATABASE_URL or run without -short")
	}

	containerOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
			tcpostgres.WithDatabase("commentguard"),
			tcpostgres.WithUsername("commentguard"),
			tcpostgres.WithPassword("commentguard"),
			tcpostgres.BasicWaitStrategies(),
		)
		container = ctr
		if err != nil {
			containerErr = err
			return
		}
		containerURL, containerErr = ctr.ConnectionString(ctx, "sslmode=disable")
	})
	if containerErr != nil {
		t.Skipf("postgres container unavailable: %v", containerErr)
	}
	return containerURL
}

// testDB returns a migrated, connected DB.
func testDB(t *testing.T) *DB {
	t.Helper()
	url := databaseURL(t)
	require.NoError(t, Migrate(url))

	db, err := New(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	return db
}

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = testcontainers.TerminateContainer(container)
	}
	os.Exit(code)
}

func kindeID() string {
	return "kp_" + uuid.New().String()[:8]
}

func TestMigrate_Idempotent(t *testing.T) {
	url := databaseURL(t)
	require.NoError(t, Migrate(url))
	require.NoError(t, Migrate(url))
}

func TestUsers(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	id := kindeID()
	user, err := db.CreateUser(ctx, id, "a@example.com", 25)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.DeleteUser(ctx, user.ID) })
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, 25, user.Credits)

	found, err := db.GetUserByKindeID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	same, err := db.GetOrCreateUser(ctx, id, "other@example.com", 99)
	require.NoError(t, err)
	assert.Equal(t, user.ID, same.ID)
	assert.Equal(t, 25, same.Credits)

	missing, err := db.GetUserByID(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetOrCreateUser_Concurrent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id := kindeID()

	var wg sync.WaitGroup
	ids := make([]uuid.UUID, 5)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u, err := db.GetOrCreateUser(ctx, id, "", 10)
			if assert.NoError(t, err) && assert.NotNil(t, u) {
				ids[i] = u.ID
			}
		}()
	}
	wg.Wait()
	t.Cleanup(func() { _ = db.DeleteUser(ctx, ids[0]) })

	for _, got := range ids {
		assert.Equal(t, ids[0], got)
	}
}

func TestAdjustCredits(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, kindeID(), "", 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.DeleteUser(ctx, user.ID) })

	run := uuid.New()
	entry, err := db.AdjustCredits(ctx, user.ID, -3, "scan", &run)
	require.NoError(t, err)
	assert.Equal(t, -3, entry.Delta)

	balance, err := db.GetCreditBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, balance)

	_, err = db.AdjustCredits(ctx, user.ID, -3, "scan", nil)
	assert.ErrorIs(t, err, ErrInsufficientCredits)

	balance, err = db.GetCreditBalance(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, balance, "failed deduction changes nothing")

	_, err = db.AdjustCredits(ctx, user.ID, 10, "top-up", nil)
	require.NoError(t, err)

	entries, err := db.ListLedger(ctx, user.ID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "top-up", entries[0].Reason)
	require.NotNil(t, entries[1].ScanRunID)
	assert.Equal(t, run, *entries[1].ScanRunID)
}

func TestAIConfiguration(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, err := db.CreateAIConfiguration(ctx, AIConfiguration{
		Name:   "first",
		Active: true,
		ScanA:  models.ScannerConfig{Provider: "openai", Model: "gpt-4o-mini", Prompt: "scan"},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.DeleteAIConfiguration(ctx, first.ID) })

	second, err := db.CreateAIConfiguration(ctx, AIConfiguration{
		Name:        "second",
		Active:      true,
		ScanB:       models.ScannerConfig{Provider: "anthropic", Model: "claude-3-5-haiku", Prompt: "scan b"},
		PostProcess: models.PostProcessConfig{RedactPrompt: "redact", PreferredBatchSize: 5},
		DefaultMode: models.ModeRephrase,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.DeleteAIConfiguration(ctx, second.ID) })

	active, err := db.GetActiveAIConfiguration(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, second.ID, active.ID)
	assert.Equal(t, "claude-3-5-haiku", active.ScanB.Model)
	assert.Equal(t, 5, active.PostProcess.PreferredBatchSize)
	assert.Equal(t, models.ModeRephrase, active.DefaultMode)
}

func TestScanRuns(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, kindeID(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.DeleteUser(ctx, user.ID) })

	id := uuid.New()
	created, err := db.CreateScanRun(ctx, ScanRun{ID: id, UserID: user.ID, Digest: "abc", Comments: 12})
	require.NoError(t, err)
	assert.False(t, created.CreatedAt.IsZero())

	run, err := db.GetScanRun(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, user.ID, run.UserID)
	assert.Equal(t, "abc", run.Digest)
	assert.Equal(t, 12, run.Comments)

	require.NoError(t, db.DeleteScanRun(ctx, id))
	require.NoError(t, db.DeleteScanRun(ctx, id))

	run, err = db.GetScanRun(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, run)
}
