package repository

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"turnero/internal/db"
	apperrors "turnero/internal/errors"
)

func testAppointment() *db.Appointment {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	return &db.Appointment{
		ID:                "appt-1",
		TenantID:          "tenant-1",
		ClientID:          "client-1",
		ResourceID:        "resource-1",
		AppointmentTypeID: "type-1",
		Status:            db.AppointmentStatusBooked,
		StartAt:           start,
		EndAt:             start.Add(30 * time.Minute),
	}
}

func TestCreateAppointmentIgnoresExpiredHolds(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	repo := NewSchedulingRepository(database)
	appt := testAppointment()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs(appt.ResourceID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	// The re-check only treats live holds as occupying. An expired hold the
	// reaper has not swept yet must not block the insert.
	mock.ExpectQuery(regexp.QuoteMeta(`(status = 'booked' OR hold_expires_at IS NULL OR hold_expires_at > NOW())`)).
		WithArgs(appt.TenantID, appt.ResourceID, appt.StartAt, appt.EndAt).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO appointments").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateAppointment(appt))
	require.NoError(t, mock.ExpectationsWereMet())
	require.Equal(t, now, appt.CreatedAt)
}

func TestGetWorkingSegmentsFromWeeklyRules(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	repo := NewSchedulingRepository(database)
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) // a Tuesday

	mock.ExpectQuery("FROM schedule_exceptions").
		WithArgs("tenant-1", "resource-1", "2026-03-10").
		WillReturnRows(sqlmock.NewRows([]string{"id", "is_closed", "start_local_time", "end_local_time"}))
	mock.ExpectQuery("FROM schedules").
		WithArgs("tenant-1", "resource-1", 2).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "resource_id", "weekday", "start_local_time", "end_local_time", "is_working",
		}).AddRow("rule-1", "tenant-1", "resource-1", 2, "09:00:00", "17:00:00", true))

	segments, err := repo.GetWorkingSegments("tenant-1", "resource-1", day, time.UTC)
	require.NoError(t, err)
	require.Len(t, segments, 1)
	require.Equal(t, day.Add(9*time.Hour), segments[0].Start)
	require.Equal(t, day.Add(17*time.Hour), segments[0].End)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAppointmentActiveOverlapIsConflict(t *testing.T) {
	database, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer database.Close()

	repo := NewSchedulingRepository(database)
	appt := testAppointment()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT pg_advisory_xact_lock(hashtext($1))`)).
		WithArgs(appt.ResourceID).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`(status = 'booked' OR hold_expires_at IS NULL OR hold_expires_at > NOW())`)).
		WithArgs(appt.TenantID, appt.ResourceID, appt.StartAt, appt.EndAt).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err = repo.CreateAppointment(appt)
	require.Error(t, err)
	require.True(t, apperrors.IsKind(err, apperrors.KindConflict))
	require.NoError(t, mock.ExpectationsWereMet())
}
