package database

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/errors"
)

func TestPostgresClient_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	pg := &PostgresClient{DB: db}

	mock.ExpectPing()
	assert.NoError(t, pg.Ping(context.Background()))

	mock.ExpectPing().WillReturnError(assert.AnError)
	err = pg.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabaseConnectionFailed))
	assert.True(t, errors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	rc, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer rc.Close()

	assert.NoError(t, rc.Ping(context.Background()))

	mr.Close()
	err = rc.Ping(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDatabaseConnectionFailed))
}
