package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/forecast-cache/internal/weather"
)

// setupMockStore wires a SQLiteStore to a sqlmock connection for failure-path tests.
func setupMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock, *recordingPublisher) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	pub := &recordingPublisher{}
	return newSQLiteStore(db, pub), mock, pub
}

func expectPreImage(mock sqlmock.Sqlmock, dates ...int64) {
	rows := sqlmock.NewRows([]string{"date"})
	for _, d := range dates {
		rows.AddRow(d)
	}
	mock.ExpectQuery(regexp.QuoteMeta("SELECT date FROM weather")).WillReturnRows(rows)
}

func TestReplaceAll_InsertFailureRollsBack(t *testing.T) {
	s, mock, pub := setupMockStore(t)

	mock.ExpectBegin()
	expectPreImage(mock, day(1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM weather")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO weather").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO weather").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := s.ReplaceAll(context.Background(), []weather.ForecastRecord{rec(1, 800), rec(2, 800)})
	require.Error(t, err)

	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert", se.Op)
	assert.False(t, se.Unavailable)
	assert.Empty(t, pub.all())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll_CommitFailure(t *testing.T) {
	s, mock, pub := setupMockStore(t)

	mock.ExpectBegin()
	expectPreImage(mock)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM weather")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO weather").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM weather")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO sync_meta").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("disk I/O error"))

	_, err := s.ReplaceAll(context.Background(), []weather.ForecastRecord{rec(1, 800)})
	require.Error(t, err)
	assert.True(t, weather.IsStorage(err))

	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "commit", se.Op)
	assert.True(t, se.Unavailable)
	assert.Empty(t, pub.all())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll_Success(t *testing.T) {
	s, mock, pub := setupMockStore(t)

	mock.ExpectBegin()
	expectPreImage(mock, day(0))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM weather")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO weather").
		WithArgs(day(1), 800, 1.0, 11.0, 60.0, 1012.5, 4.2, 270.0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM weather")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO sync_meta").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	n, err := s.ReplaceAll(context.Background(), []weather.ForecastRecord{rec(1, 800)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, pub.all(), 1)
	assert.Equal(t, []int64{day(0), day(1)}, pub.all()[0].Dates)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll_LockedDatabase(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("database is locked"))

	_, err := s.ReplaceAll(context.Background(), []weather.ForecastRecord{rec(1, 800)})
	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "begin", se.Op)
	assert.True(t, se.Unavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceAll_ValidationTouchesNothing(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	_, err := s.ReplaceAll(context.Background(), []weather.ForecastRecord{{Date: 12345}})
	assert.True(t, weather.IsValidation(err))
	// no statements were expected, so any database access would fail here
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteAll_FailureRollsBack(t *testing.T) {
	s, mock, pub := setupMockStore(t)

	mock.ExpectBegin()
	expectPreImage(mock, day(1), day(2))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM weather")).WillReturnError(errors.New("attempt to write a readonly database"))
	mock.ExpectRollback()

	_, err := s.DeleteAll(context.Background())
	var se *weather.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "delete", se.Op)
	assert.True(t, se.Unavailable)
	assert.Empty(t, pub.all())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_StorageFailure(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	mock.ExpectQuery("SELECT date, weather_id").WillReturnError(errors.New("no such table: weather"))

	_, err := s.Query(context.Background(), weather.Since(day(1)), weather.SortAscending)
	require.Error(t, err)
	assert.True(t, weather.IsStorage(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuery_BuildsExpectedSQL(t *testing.T) {
	s, mock, _ := setupMockStore(t)

	cols := []string{"date", "weather_id", "min", "max", "humidity", "pressure", "wind", "degrees"}
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + " WHERE date >= ? ORDER BY date DESC")).
		WithArgs(day(2)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(day(3), 800, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0).
			AddRow(day(2), 500, 1.0, 2.0, 3.0, 4.0, 5.0, 6.0))
	mock.ExpectQuery(regexp.QuoteMeta(selectColumns + " WHERE date = ?")).
		WithArgs(day(9)).
		WillReturnRows(sqlmock.NewRows(cols))

	rs, err := s.Query(context.Background(), weather.Since(day(2)), weather.SortDescending)
	require.NoError(t, err)
	assert.Equal(t, []int64{day(3), day(2)}, rs.Dates())

	rs, err = s.Query(context.Background(), weather.OnDate(day(9)), weather.SortAscending)
	require.NoError(t, err)
	assert.NotNil(t, rs)
	assert.Empty(t, rs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
