package exposure

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCurrentExposureSumsOpenTrades(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COALESCE\(SUM\(suggested_size\), 0\)`).
		WithArgs("BTC").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(450.0))

	s := NewStore(db)
	total, err := s.CurrentExposure(context.Background(), "BTC")
	require.NoError(t, err)
	assert.Equal(t, 450.0, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentDuplicateTrue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("mkt-1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	s := NewStore(db)
	dup, err := s.RecentDuplicate(context.Background(), "mkt-1", 60*time.Second)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestRecordTradeInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO trades`).
		WithArgs("BTC", "crypto", "mkt-1", 100.0, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	s := NewStore(db)
	err = s.RecordTrade(context.Background(), "BTC", "crypto", "mkt-1", 100.0, time.Now())
	require.NoError(t, err)
}

func TestMarkSettledErrorsWhenNoOpenTrade(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE trades SET settled_at`).
		WithArgs(sqlmock.AnyArg(), "mkt-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	s := NewStore(db)
	err = s.MarkSettled(context.Background(), "mkt-1", time.Now())
	assert.Error(t, err)
}
