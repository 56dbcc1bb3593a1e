package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*Logger, sqlmock.Sqlmock) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return New(sqlDB, zerolog.Nop()), mock
}

func TestRecord_AssignsNextSequenceAndCommits(t *testing.T) {
	l, mock := newTestLogger(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(3))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	event, err := l.Record(context.Background(), Entry{
		ActorUserID: "user1", Subject: "evidence:ev1", Action: "upload", Outcome: "granted",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), event.Sequence)
	assert.NotEmpty(t, event.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_RollsBackOnInsertFailure(t *testing.T) {
	l, mock := newTestLogger(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(1))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := l.Record(context.Background(), Entry{ActorUserID: "user1", Subject: "evidence:ev1", Action: "upload"})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrect_RecordsCorrectionReferencingOriginal(t *testing.T) {
	l, mock := newTestLogger(t)

	mock.ExpectQuery("SELECT subject FROM audit_events WHERE id").WithArgs("orig-1").
		WillReturnRows(sqlmock.NewRows([]string{"subject"}).AddRow("evidence:ev1"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(2))
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	event, err := l.Correct(context.Background(), "orig-1", "admin1", "mistaken denial")
	require.NoError(t, err)
	assert.Equal(t, "correction", event.Action)
	assert.Equal(t, "orig-1", event.ReferencesEventID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCorrect_UnknownOriginalEventErrors(t *testing.T) {
	l, mock := newTestLogger(t)

	mock.ExpectQuery("SELECT subject FROM audit_events WHERE id").WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := l.Correct(context.Background(), "missing", "admin1", "typo")
	require.Error(t, err)
}

func TestForSubject_ReturnsEventsInSequenceOrder(t *testing.T) {
	l, mock := newTestLogger(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "day_partition", "sequence", "actor_user_id", "subject",
		"subject_content_digest", "action", "outcome", "request_fingerprint", "references_event_id", "timestamp"}).
		AddRow("e1", "2026-07-30", int64(1), "user1", "evidence:ev1", "digest1", "upload", "granted", "", "", now).
		AddRow("e2", "2026-07-30", int64(2), "user1", "evidence:ev1", "digest1", "process", "granted", "", "", now)

	mock.ExpectQuery("SELECT (.+) FROM audit_events WHERE subject").WithArgs("evidence:ev1").WillReturnRows(rows)

	events, err := l.ForSubject(context.Background(), "evidence:ev1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Sequence)
	assert.Equal(t, int64(2), events[1].Sequence)
}

func TestVerify_ProducesStableDigestForSameChain(t *testing.T) {
	l, mock := newTestLogger(t)

	now := time.Now()
	rowsFor := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"id", "day_partition", "sequence", "actor_user_id", "subject", "action", "outcome", "timestamp"}).
			AddRow("e1", "2026-07-30", int64(1), "user1", "evidence:ev1", "upload", "granted", now)
	}

	mock.ExpectQuery("SELECT (.+) FROM audit_events").WithArgs("2026-07-30", "2026-07-30").WillReturnRows(rowsFor())
	events1, digest1, err := l.Verify(context.Background(), "2026-07-30", "2026-07-30")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT (.+) FROM audit_events").WithArgs("2026-07-30", "2026-07-30").WillReturnRows(rowsFor())
	events2, digest2, err := l.Verify(context.Background(), "2026-07-30", "2026-07-30")
	require.NoError(t, err)

	assert.Equal(t, digest1, digest2)
	assert.NotEmpty(t, digest1)
	require.Len(t, events1, 1)
	assert.Equal(t, "e1", events1[0].ID)
	assert.Equal(t, events1, events2)
}
