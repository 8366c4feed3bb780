package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/models"
)

type countingDirectory struct {
	StaticDirectory
	calls int
}

func (d *countingDirectory) Lookup(ctx context.Context, kind models.RecipientKind, code string) (*models.Contact, error) {
	d.calls++
	return d.StaticDirectory.Lookup(ctx, kind, code)
}

func newBacking() *countingDirectory {
	return &countingDirectory{StaticDirectory: StaticDirectory{
		models.RecipientPatient: {"P-0001": {DisplayName: "Nimal", Email: "nimal@example.com"}},
	}}
}

func TestCachedDirectory_ReadThrough(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	backing := newBacking()
	d := NewCachedDirectory(backing, client, time.Minute, logger.NewTestLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		c, err := d.Lookup(ctx, models.RecipientPatient, "P-0001")
		require.NoError(t, err)
		assert.Equal(t, "nimal@example.com", c.Email)
	}
	assert.Equal(t, 1, backing.calls)
	assert.True(t, mr.Exists("contact:Patient:P-0001"))
	assert.Equal(t, time.Minute, mr.TTL("contact:Patient:P-0001"))

	mr.FastForward(2 * time.Minute)
	_, err = d.Lookup(ctx, models.RecipientPatient, "P-0001")
	require.NoError(t, err)
	assert.Equal(t, 2, backing.calls)
}

func TestCachedDirectory_MissNotCached(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	d := NewCachedDirectory(newBacking(), client, time.Minute, logger.NewTestLogger(t))

	_, err = d.Lookup(context.Background(), models.RecipientPatient, "P-0404")
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRecipientNotFound))
	assert.False(t, mr.Exists("contact:Patient:P-0404"))
}

func TestCachedDirectory_RedisDown(t *testing.T) {
	client, mock := redismock.NewClientMock()
	mock.ExpectGet("contact:Patient:P-0001").SetErr(errors.New("connection refused"))
	mock.Regexp().ExpectSet("contact:Patient:P-0001", `.*`, time.Minute).SetErr(errors.New("connection refused"))

	backing := newBacking()
	d := NewCachedDirectory(backing, client, time.Minute, logger.NewTestLogger(t))

	c, err := d.Lookup(context.Background(), models.RecipientPatient, "P-0001")
	require.NoError(t, err)
	assert.Equal(t, "Nimal", c.DisplayName)
	assert.Equal(t, 1, backing.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
