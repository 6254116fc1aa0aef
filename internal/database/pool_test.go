package database

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{})
	require.NoError(t, err)

	return mockDB, mock, gormDB
}

func TestNewPoolManager(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	config := PoolConfig{
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 30 * time.Minute,
	}

	manager, err := NewPoolManager(gormDB, config, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, config, manager.config)
	assert.Equal(t, 10, manager.Stats().MaxOpenConnections)
}

func TestNewPoolManager_NilDB(t *testing.T) {
	_, err := NewPoolManager(nil, DefaultPoolConfig(), zap.NewNop())
	assert.Error(t, err)
}

func TestPoolManager_DB(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	assert.Equal(t, gormDB, manager.DB())
}

func TestPoolManager_Ping(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	assert.NoError(t, manager.Ping(context.Background()))
}

func TestPoolManager_PingAfterClose(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, manager.Close())

	assert.Error(t, manager.Ping(context.Background()))
	// Double close is a no-op.
	assert.NoError(t, manager.Close())
}

type recordedGauges struct {
	mu   sync.Mutex
	open int
	idle int
	hits int
}

func (r *recordedGauges) RecordDBConnections(database string, open, idle int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open, r.idle = open, idle
	r.hits++
}

func TestPoolManager_HealthCheckReportsGauges(t *testing.T) {
	mockDB, _, gormDB := setupTestDB(t)
	defer mockDB.Close()

	gauges := &recordedGauges{}
	manager, err := NewPoolManager(gormDB, PoolConfig{
		MaxOpenConns:        5,
		HealthCheckInterval: 10 * time.Millisecond,
	}, zap.NewNop(), WithConnectionGauges(gauges))
	require.NoError(t, err)
	defer manager.Close()

	assert.Eventually(t, func() bool {
		gauges.mu.Lock()
		defer gauges.mu.Unlock()
		return gauges.hits > 0
	}, time.Second, 5*time.Millisecond)
}

func TestPoolManager_WithTransaction(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	mock.ExpectBegin()
	mock.ExpectCommit()

	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return nil
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPoolManager_WithTransaction_RollbackOnError(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("constraint violated")
	err = manager.WithTransaction(context.Background(), func(tx *gorm.DB) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
}

func TestPoolManager_WithTransactionRetry_NonRetryable(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	calls := 0
	err = manager.WithTransactionRetry(context.Background(), 3, func(tx *gorm.DB) error {
		calls++
		return errors.New("unique constraint violation")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPoolManager_WithTransactionRetry_RetriesDeadlock(t *testing.T) {
	mockDB, mock, gormDB := setupTestDB(t)
	defer mockDB.Close()

	manager, err := NewPoolManager(gormDB, PoolConfig{MaxOpenConns: 5}, zap.NewNop())
	require.NoError(t, err)
	defer manager.Close()

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectRollback()
	}
	mock.ExpectBegin()
	mock.ExpectCommit()

	calls := 0
	err = manager.WithTransactionRetry(context.Background(), 5, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return errors.New("deadlock detected")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestIsRetryableError(t *testing.T) {
	t.Parallel()

	retryable := []string{
		"deadlock detected",
		"serialization failure",
		"ERROR 40001",
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"lock wait timeout exceeded",
		"driver: bad connection",
	}
	for _, msg := range retryable {
		assert.True(t, isRetryableError(errors.New(msg)), msg)
	}

	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(errors.New("unique constraint violation")))
	assert.False(t, isRetryableError(errors.New("syntax error")))
}
