// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/database"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification/record"
	"clinic-workers/internal/sequence"
)

// The suite runs against the services from docker-compose and is skipped
// unless E2E=1.
var cfg *config.Config

func TestMain(m *testing.M) {
	if os.Getenv("E2E") != "1" {
		fmt.Println("skipping e2e suite, set E2E=1 to run")
		os.Exit(0)
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		panic(fmt.Sprintf("config load failed: %v", err))
	}
	cfg.Database.Postgres.Host = envOr("E2E_POSTGRES_HOST", "localhost")
	cfg.Database.Redis.Address = envOr("E2E_REDIS_ADDR", "localhost:6379")
	cfg.Database.Mongo.URI = envOr("E2E_MONGO_URI", "mongodb://localhost:27017")

	os.Exit(m.Run())
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func uniqueOwner() string {
	return fmt.Sprintf("P-E2E%d", time.Now().UnixNano())
}

// allocateConcurrently checks N parallel allocations yield exactly {1..N}.
func allocateConcurrently(t *testing.T, store sequence.Store) {
	t.Helper()
	alloc := sequence.NewAllocator(store, nil, logger.NewTestLogger(t))
	owner := uniqueOwner()

	const n = 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, v, err := alloc.AllocateCode(context.Background(), sequence.KindTreatmentPlan, owner)
			if assert.NoError(t, err) {
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for i := int64(1); i <= n; i++ {
		assert.True(t, seen[i], "missing %d", i)
	}
}

func TestSequence_Postgres(t *testing.T) {
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()
	require.NoError(t, pg.Migrate(context.Background()))

	allocateConcurrently(t, sequence.NewPostgresStore(pg.DB))
}

func TestSequence_Redis(t *testing.T) {
	rc, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err)
	defer rc.Close()
	require.NoError(t, rc.Ping(context.Background()))

	allocateConcurrently(t, sequence.NewRedisStore(rc.Client))
}

func TestSequence_Mongo(t *testing.T) {
	ctx := context.Background()
	mc, err := database.NewMongo(ctx, cfg.Database.Mongo)
	require.NoError(t, err)
	defer mc.Close(ctx)

	store := sequence.NewMongoStore(mc.Database)
	require.NoError(t, store.EnsureIndexes(ctx))
	allocateConcurrently(t, store)
}

// exerciseRecordStore covers dedup, the due boundary and conditional marks.
func exerciseRecordStore(t *testing.T, store record.Store) {
	t.Helper()
	ctx := context.Background()
	patient := uniqueOwner()
	now := time.Now().UTC().Truncate(time.Millisecond)
	due := now.Add(-time.Minute)

	id, err := store.Create(ctx, &models.NotificationRecord{
		RecipientKind: models.RecipientPatient,
		RecipientID:   patient,
		TemplateKey:   models.TemplateEventReminder24h,
		Channel:       models.ChannelAuto,
		ScheduledFor:  &due,
		Meta:          map[string]interface{}{"eventCode": "EV-9001"},
	})
	require.NoError(t, err)

	exists, err := store.Exists(ctx, record.Filter{
		TemplateKey:    models.TemplateEventReminder24h,
		RecipientKind:  models.RecipientPatient,
		RecipientID:    patient,
		CorrelationKey: "EV-9001",
	})
	require.NoError(t, err)
	assert.True(t, exists)

	found, err := store.FindDue(ctx, now, 1000)
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, r := range found {
		ids[r.ID] = true
	}
	assert.True(t, ids[id])

	ok, err := store.MarkSent(ctx, id, models.ChannelEmail, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.MarkFailed(ctx, id, "late")
	require.NoError(t, err)
	assert.False(t, ok, "terminal records must not transition again")

	rec, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSent, rec.Status)
	assert.Equal(t, models.ChannelEmail, rec.Channel)
}

func TestRecords_Postgres(t *testing.T) {
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err)
	defer pg.Close()
	require.NoError(t, pg.Migrate(context.Background()))

	exerciseRecordStore(t, record.NewPostgresStore(pg.DB))
}

func TestRecords_Mongo(t *testing.T) {
	ctx := context.Background()
	mc, err := database.NewMongo(ctx, cfg.Database.Mongo)
	require.NoError(t, err)
	defer mc.Close(ctx)

	store := record.NewMongoStore(mc.Database)
	require.NoError(t, store.EnsureIndexes(ctx))
	exerciseRecordStore(t, store)
}
