package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tick-archive/pkg/models"
)

type countingEnsurer struct {
	calls int
	err   error
}

func (c *countingEnsurer) Ensure(ctx context.Context, symbol string) error {
	c.calls++
	return c.err
}

func makeTicks(n int) []models.Tick {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	ticks := make([]models.Tick, n)
	for i := range ticks {
		ticks[i] = models.Tick{
			Timestamp: base + int64(i)*250,
			BidPrice:  1.10001 + float64(i)*1e-5,
			AskPrice:  1.10011 + float64(i)*1e-5,
			BidVolume: 1.5,
			AskVolume: 2.25,
		}
	}
	return ticks
}

func TestWriteEmptyIsNoop(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ensurer := &countingEnsurer{}
	w := NewTickWriter(db, ensurer, 10, quietLogger())

	require.NoError(t, w.Write(context.Background(), "eurusd", nil))
	assert.Zero(t, ensurer.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteUsesUpsert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ticks := makeTicks(2)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `eurusd` (`Timestamp`, `BidPrice`, `AskPrice`, `BidVolume`, `AskVolume`) VALUES (?, ?, ?, ?, ?), (?, ?, ?, ?, ?) ON DUPLICATE KEY UPDATE `BidPrice` = VALUES(`BidPrice`)")).
		WithArgs(
			ticks[0].Timestamp, ticks[0].BidPrice, ticks[0].AskPrice, ticks[0].BidVolume, ticks[0].AskVolume,
			ticks[1].Timestamp, ticks[1].BidPrice, ticks[1].AskPrice, ticks[1].BidVolume, ticks[1].AskVolume,
		).
		WillReturnResult(sqlmock.NewResult(0, 2))

	ensurer := &countingEnsurer{}
	w := NewTickWriter(db, ensurer, 10, quietLogger())

	require.NoError(t, w.Write(context.Background(), "eurusd", ticks))
	assert.Equal(t, 1, ensurer.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteChunkBoundary(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	const chunk = 4
	ticks := makeTicks(chunk + 1)

	// first statement carries a full chunk, second the single remainder
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `eurusd`")).
		WithArgs(anyArgs(chunk * 5)...).
		WillReturnResult(sqlmock.NewResult(0, chunk))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `eurusd`")).
		WithArgs(ticks[chunk].Timestamp, ticks[chunk].BidPrice, ticks[chunk].AskPrice, ticks[chunk].BidVolume, ticks[chunk].AskVolume).
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := NewTickWriter(db, &countingEnsurer{}, chunk, quietLogger())
	require.NoError(t, w.Write(context.Background(), "eurusd", ticks))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteDefaultChunkSize(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewTickWriter(db, &countingEnsurer{}, 0, quietLogger())
	assert.Equal(t, DefaultChunkSize, w.ChunkSize())

	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, DefaultChunkSize))
	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, w.Write(context.Background(), "eurusd", makeTicks(DefaultChunkSize+1)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWritePartialChunkFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("INSERT INTO").WillReturnError(errors.New("lock wait timeout"))

	w := NewTickWriter(db, &countingEnsurer{}, 2, quietLogger())
	err = w.Write(context.Background(), "eurusd", makeTicks(5))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunk 2/3")
	assert.Contains(t, err.Error(), "lock wait timeout")
	// third chunk is never attempted
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWriteEnsureFailureStopsWrite(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w := NewTickWriter(db, &countingEnsurer{err: errors.New("denied")}, 2, quietLogger())
	err = w.Write(context.Background(), "eurusd", makeTicks(3))

	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildUpsertShape(t *testing.T) {
	query, args := buildUpsert("btcusd", makeTicks(3))

	assert.Equal(t, 3, strings.Count(query, "(?, ?, ?, ?, ?)"))
	assert.Len(t, args, 15)
	assert.Contains(t, query, "`AskVolume` = VALUES(`AskVolume`)")
	assert.NotContains(t, query, "`Timestamp` = VALUES")
}

func anyArgs(n int) []driver.Value {
	args := make([]driver.Value, n)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	return args
}
