package database

import (
	"context"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tick-archive/internal/symbols"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestEnsureCreatesTableOnce(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS `eurusd` (`Timestamp` BIGINT NOT NULL")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	p := NewTableProvisioner(db, quietLogger())
	ctx := context.Background()

	require.NoError(t, p.Ensure(ctx, "eurusd"))
	require.NoError(t, p.Ensure(ctx, "eurusd"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureFailureIsRetriedNextCall(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnError(errors.New("disk full"))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))

	p := NewTableProvisioner(db, quietLogger())
	ctx := context.Background()

	err = p.Ensure(ctx, "gbpusd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	require.NoError(t, p.Ensure(ctx, "gbpusd"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureRejectsUnsafeName(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	p := NewTableProvisioner(db, quietLogger())
	err = p.Ensure(context.Background(), "eurusd`; DROP TABLE x; --")
	assert.ErrorIs(t, err, symbols.ErrInvalidSymbol)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTableStats(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("information_schema.tables").
		WithArgs("eurusd").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM `eurusd`")).
		WillReturnRows(sqlmock.NewRows([]string{"count", "min", "max"}).AddRow(42, 1704067200000, 1704153599000))

	stats, err := QueryTableStats(context.Background(), db, "eurusd")
	require.NoError(t, err)
	assert.True(t, stats.Exists)
	assert.Equal(t, int64(42), stats.Rows)
	assert.Equal(t, int64(1704067200000), stats.FirstTimestamp)
	assert.Equal(t, int64(1704153599000), stats.LastTimestamp)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryTableStatsMissingTable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("information_schema.tables").
		WithArgs("xauusd").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	stats, err := QueryTableStats(context.Background(), db, "xauusd")
	require.NoError(t, err)
	assert.False(t, stats.Exists)
	assert.Zero(t, stats.Rows)
	require.NoError(t, mock.ExpectationsWereMet())
}
