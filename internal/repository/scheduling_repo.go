package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"turnero/internal/availability"
	"turnero/internal/db"
	apperrors "turnero/internal/errors"
)

type SchedulingRepository struct {
	DB *sql.DB
}

func NewSchedulingRepository(database *sql.DB) *SchedulingRepository {
	return &SchedulingRepository{DB: database}
}

func (r *SchedulingRepository) GetTenant(tenantID string) (*db.Tenant, error) {
	var t db.Tenant
	query := `
		SELECT id, name, slug, timezone, slot_granularity_minutes, settings_jsonb, created_at, updated_at
		FROM tenants WHERE id = $1`
	err := r.DB.QueryRow(query, tenantID).Scan(
		&t.ID, &t.Name, &t.Slug, &t.Timezone, &t.SlotGranularityMinutes, &t.Settings, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("tenant %s not found", tenantID)
		}
		return nil, fmt.Errorf("error querying tenant: %w", err)
	}
	return &t, nil
}

func (r *SchedulingRepository) GetAppointmentType(tenantID, appointmentTypeID string) (*db.AppointmentType, error) {
	var at db.AppointmentType
	query := `
		SELECT id, tenant_id, name, duration_minutes, buffer_before_min, buffer_after_min,
		       COALESCE(price_cents, 0), is_active
		FROM appointment_types
		WHERE id = $1 AND tenant_id = $2 AND is_active = TRUE`
	err := r.DB.QueryRow(query, appointmentTypeID, tenantID).Scan(
		&at.ID, &at.TenantID, &at.Name, &at.DurationMinutes, &at.BufferBeforeMinutes,
		&at.BufferAfterMinutes, &at.PriceCents, &at.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("appointment type %s not found", appointmentTypeID)
		}
		return nil, fmt.Errorf("error querying appointment type: %w", err)
	}
	return &at, nil
}

func (r *SchedulingRepository) GetResource(tenantID, resourceID string) (*db.Resource, error) {
	var res db.Resource
	query := `
		SELECT id, tenant_id, display_name, is_default, is_active
		FROM resources WHERE id = $1 AND tenant_id = $2 AND is_active = TRUE`
	err := r.DB.QueryRow(query, resourceID, tenantID).Scan(
		&res.ID, &res.TenantID, &res.DisplayName, &res.IsDefault, &res.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("resource %s not found", resourceID)
		}
		return nil, fmt.Errorf("error querying resource: %w", err)
	}
	return &res, nil
}

func (r *SchedulingRepository) GetDefaultResource(tenantID string) (*db.Resource, error) {
	var res db.Resource
	query := `
		SELECT id, tenant_id, display_name, is_default, is_active
		FROM resources WHERE tenant_id = $1 AND is_default = TRUE AND is_active = TRUE`
	err := r.DB.QueryRow(query, tenantID).Scan(
		&res.ID, &res.TenantID, &res.DisplayName, &res.IsDefault, &res.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("default resource not found for tenant %s", tenantID)
		}
		return nil, fmt.Errorf("error querying default resource: %w", err)
	}
	return &res, nil
}

func localClockToInstant(day time.Time, localTime string, loc *time.Location) (time.Time, bool) {
	var hour, min, sec int
	n, err := fmt.Sscanf(localTime, "%d:%d:%d", &hour, &min, &sec)
	if err != nil && n < 2 {
		return time.Time{}, false
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, sec, 0, loc), true
}

// GetWorkingSegments returns the working intervals for one calendar day.
// day must be midnight of that date in loc. A weekday with no working rule
// yields zero segments; a schedule exception for that date overrides the
// weekly rules entirely.
func (r *SchedulingRepository) GetWorkingSegments(tenantID, resourceID string, day time.Time, loc *time.Location) ([]availability.TimeInterval, error) {
	dayEnd := day.AddDate(0, 0, 1)

	exceptions, err := r.getScheduleExceptions(tenantID, resourceID, day.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}
	if len(exceptions) > 0 {
		var segments []availability.TimeInterval
		for _, exc := range exceptions {
			if exc.IsClosed {
				return nil, nil
			}
			start, okStart := localClockToInstant(day, exc.StartLocalTime, loc)
			end, okEnd := localClockToInstant(day, exc.EndLocalTime, loc)
			if !okStart || !okEnd || !end.After(start) {
				continue
			}
			segments = append(segments, availability.TimeInterval{Start: start, End: end})
		}
		return segments, nil
	}

	weekday := int(day.Weekday())
	query := `
		SELECT id, tenant_id, resource_id, weekday, start_local_time, end_local_time, is_working
		FROM schedules
		WHERE tenant_id = $1 AND resource_id = $2 AND weekday = $3 AND is_working = TRUE`
	rows, err := r.DB.Query(query, tenantID, resourceID, weekday)
	if err != nil {
		return nil, fmt.Errorf("error querying schedule rules: %w", err)
	}
	defer rows.Close()

	var segments []availability.TimeInterval
	for rows.Next() {
		var rule db.ScheduleRule
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.ResourceID, &rule.Weekday,
			&rule.StartLocalTime, &rule.EndLocalTime, &rule.IsWorking); err != nil {
			return nil, fmt.Errorf("error scanning schedule rule: %w", err)
		}
		start, okStart := localClockToInstant(day, rule.StartLocalTime, loc)
		end, okEnd := localClockToInstant(day, rule.EndLocalTime, loc)
		if !okStart || !okEnd {
			continue
		}
		if !end.After(start) {
			// Compatibility quirk: a rule whose end is not after its start
			// opens the whole day. Kept from the source system; should be a
			// config-time validation error instead.
			log.Printf("schedule rule for resource %s weekday %d has end <= start, treating day as fully open", resourceID, weekday)
			segments = append(segments, availability.TimeInterval{Start: day, End: dayEnd})
			continue
		}
		segments = append(segments, availability.TimeInterval{Start: start, End: end})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule rules: %w", err)
	}
	return segments, nil
}

func (r *SchedulingRepository) getScheduleExceptions(tenantID, resourceID, dateLocal string) ([]db.ScheduleException, error) {
	query := `
		SELECT id, is_closed, COALESCE(start_local_time::text, ''), COALESCE(end_local_time::text, '')
		FROM schedule_exceptions
		WHERE tenant_id = $1 AND resource_id = $2 AND date_local = $3`
	rows, err := r.DB.Query(query, tenantID, resourceID, dateLocal)
	if err != nil {
		return nil, fmt.Errorf("error querying schedule exceptions: %w", err)
	}
	defer rows.Close()

	var exceptions []db.ScheduleException
	for rows.Next() {
		var exc db.ScheduleException
		if err := rows.Scan(&exc.ID, &exc.IsClosed, &exc.StartLocalTime, &exc.EndLocalTime); err != nil {
			return nil, fmt.Errorf("error scanning schedule exception: %w", err)
		}
		exceptions = append(exceptions, exc)
	}
	return exceptions, rows.Err()
}

// GetBusySegments returns busy blocks plus hold/booked appointments
// overlapping [dayStart, dayEnd). Canceled and completed appointments never
// block.
func (r *SchedulingRepository) GetBusySegments(tenantID, resourceID string, dayStart, dayEnd time.Time) ([]availability.TimeInterval, error) {
	query := `
		SELECT start_at, end_at FROM busy_blocks
		WHERE tenant_id = $1 AND resource_id = $2 AND start_at < $4 AND end_at > $3
		UNION ALL
		SELECT start_at, end_at FROM appointments
		WHERE tenant_id = $1 AND resource_id = $2 AND status IN ('hold', 'booked')
		  AND start_at < $4 AND end_at > $3`
	rows, err := r.DB.Query(query, tenantID, resourceID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("error querying busy segments: %w", err)
	}
	defer rows.Close()

	var busy []availability.TimeInterval
	for rows.Next() {
		var x availability.TimeInterval
		if err := rows.Scan(&x.Start, &x.End); err != nil {
			return nil, fmt.Errorf("error scanning busy segment: %w", err)
		}
		busy = append(busy, x)
	}
	return busy, rows.Err()
}

// GetOrCreateClient upserts a client by the (tenant, phone) uniqueness
// constraint and returns the surviving row.
func (r *SchedulingRepository) GetOrCreateClient(tenantID, phone, name, email string) (*db.Client, error) {
	if name == "" {
		name = phone
	}
	var c db.Client
	query := `
		INSERT INTO clients (id, tenant_id, phone_e164, name, email)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		ON CONFLICT (tenant_id, phone_e164) DO UPDATE SET updated_at = NOW()
		RETURNING id, tenant_id, phone_e164, name, COALESCE(email, '')`
	err := r.DB.QueryRow(query, newID(), tenantID, phone, name, email).Scan(
		&c.ID, &c.TenantID, &c.PhoneE164, &c.Name, &c.Email,
	)
	if err != nil {
		return nil, fmt.Errorf("error upserting client: %w", err)
	}
	return &c, nil
}

// CreateAppointment inserts a hold or booking. The insert runs inside a
// transaction holding a per-resource advisory lock, and re-checks for an
// overlapping active appointment so two concurrent writes for the same slot
// cannot both land.
func (r *SchedulingRepository) CreateAppointment(appt *db.Appointment) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`SELECT pg_advisory_xact_lock(hashtext($1))`, appt.ResourceID); err != nil {
		return fmt.Errorf("error locking resource %s: %w", appt.ResourceID, err)
	}

	// A hold past its TTL no longer occupies the slot for writes, even if
	// the reaper has not swept it yet.
	var overlapping bool
	overlapQuery := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE tenant_id = $1 AND resource_id = $2 AND status IN ('hold', 'booked')
			  AND (status = 'booked' OR hold_expires_at IS NULL OR hold_expires_at > NOW())
			  AND start_at < $4 AND end_at > $3
		)`
	if err := tx.QueryRow(overlapQuery, appt.TenantID, appt.ResourceID, appt.StartAt, appt.EndAt).Scan(&overlapping); err != nil {
		return fmt.Errorf("error checking appointment overlap: %w", err)
	}
	if overlapping {
		return apperrors.Conflict("slot %s is no longer available", appt.StartAt.Format(time.RFC3339))
	}

	insert := `
		INSERT INTO appointments
		(id, tenant_id, client_id, resource_id, appointment_type_id, status, start_at, end_at,
		 hold_expires_at, buffer_before_min, buffer_after_min, reason_for_visit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULLIF($12, ''))
		RETURNING created_at, updated_at`
	err = tx.QueryRow(insert,
		appt.ID, appt.TenantID, appt.ClientID, appt.ResourceID, appt.AppointmentTypeID,
		appt.Status, appt.StartAt, appt.EndAt, appt.HoldExpiresAt,
		appt.BufferBeforeMin, appt.BufferAfterMin, appt.ReasonForVisit,
	).Scan(&appt.CreatedAt, &appt.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return apperrors.Conflict("appointment conflicts with an existing one")
		}
		return fmt.Errorf("error inserting appointment: %w", err)
	}

	return tx.Commit()
}

func (r *SchedulingRepository) GetAppointment(tenantID, appointmentID string) (*db.Appointment, error) {
	var a db.Appointment
	query := `
		SELECT id, tenant_id, client_id, resource_id, appointment_type_id, status,
		       start_at, end_at, hold_expires_at, buffer_before_min, buffer_after_min,
		       COALESCE(reason_for_visit, ''), canceled_at, COALESCE(cancel_reason, ''),
		       COALESCE(rescheduled_from_appointment_id::text, ''), COALESCE(deposit_session_id, ''),
		       created_at, updated_at
		FROM appointments WHERE id = $1 AND tenant_id = $2`
	err := r.DB.QueryRow(query, appointmentID, tenantID).Scan(
		&a.ID, &a.TenantID, &a.ClientID, &a.ResourceID, &a.AppointmentTypeID, &a.Status,
		&a.StartAt, &a.EndAt, &a.HoldExpiresAt, &a.BufferBeforeMin, &a.BufferAfterMin,
		&a.ReasonForVisit, &a.CanceledAt, &a.CancelReason, &a.RescheduledFromID,
		&a.DepositSessionID, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NotFound("appointment %s not found", appointmentID)
		}
		return nil, fmt.Errorf("error querying appointment: %w", err)
	}
	return &a, nil
}

// CancelAppointment is a single conditional update: it only touches rows
// that are not already canceled. Zero rows affected collapses "missing" and
// "already canceled" into one conflict-class error; the end effect is
// idempotent either way.
func (r *SchedulingRepository) CancelAppointment(tenantID, appointmentID, reason string) error {
	if reason == "" {
		reason = "client_requested"
	}
	query := `
		UPDATE appointments
		SET status = 'canceled', canceled_at = NOW(), cancel_reason = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status <> 'canceled'`
	result, err := r.DB.Exec(query, appointmentID, tenantID, reason)
	if err != nil {
		return fmt.Errorf("error canceling appointment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading cancel result: %w", err)
	}
	if affected == 0 {
		return apperrors.Conflict("appointment %s not found or already canceled", appointmentID)
	}
	return nil
}

// RescheduleAppointment moves a booked appointment to a new range, recording
// lineage. Rows not currently in status booked are rejected.
func (r *SchedulingRepository) RescheduleAppointment(tenantID, appointmentID string, startAt, endAt time.Time, rescheduledFromID string) (*db.Appointment, error) {
	query := `
		UPDATE appointments
		SET start_at = $3, end_at = $4, updated_at = NOW(),
		    rescheduled_from_appointment_id = COALESCE(NULLIF($5, '')::uuid, rescheduled_from_appointment_id, id)
		WHERE id = $1 AND tenant_id = $2 AND status = 'booked'
		RETURNING id`
	var id string
	err := r.DB.QueryRow(query, appointmentID, tenantID, startAt, endAt, rescheduledFromID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Conflict("appointment %s is not in booked status", appointmentID)
		}
		return nil, fmt.Errorf("error rescheduling appointment: %w", err)
	}
	return r.GetAppointment(tenantID, appointmentID)
}

// SetAppointmentDepositSession records the checkout session backing an
// appointment's deposit, so a later cancellation can refund it.
func (r *SchedulingRepository) SetAppointmentDepositSession(tenantID, appointmentID, sessionID string) error {
	query := `
		UPDATE appointments SET deposit_session_id = $3, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2`
	if _, err := r.DB.Exec(query, appointmentID, tenantID, sessionID); err != nil {
		return fmt.Errorf("error storing deposit session for appointment %s: %w", appointmentID, err)
	}
	return nil
}

// CleanupExpiredHolds cancels every hold whose TTL elapsed. Each row
// transition is an atomic conditional update, so concurrent sweeps are
// harmless and re-running finds nothing to do.
func (r *SchedulingRepository) CleanupExpiredHolds(now time.Time) (int64, error) {
	query := `
		UPDATE appointments
		SET status = 'canceled', cancel_reason = 'hold_expired', canceled_at = $1, updated_at = $1
		WHERE status = 'hold' AND hold_expires_at <= $1`
	result, err := r.DB.Exec(query, now)
	if err != nil {
		return 0, fmt.Errorf("error cleaning up expired holds: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error reading cleanup result: %w", err)
	}
	return affected, nil
}

func (r *SchedulingRepository) ListAppointments(tenantID string, from, to time.Time) ([]db.Appointment, error) {
	query := `
		SELECT id, tenant_id, client_id, resource_id, appointment_type_id, status,
		       start_at, end_at, hold_expires_at, buffer_before_min, buffer_after_min,
		       COALESCE(reason_for_visit, ''), canceled_at, COALESCE(cancel_reason, ''),
		       COALESCE(rescheduled_from_appointment_id::text, ''), COALESCE(deposit_session_id, ''),
		       created_at, updated_at
		FROM appointments
		WHERE tenant_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY start_at`
	rows, err := r.DB.Query(query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("error listing appointments: %w", err)
	}
	defer rows.Close()

	var appointments []db.Appointment
	for rows.Next() {
		var a db.Appointment
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.ClientID, &a.ResourceID, &a.AppointmentTypeID, &a.Status,
			&a.StartAt, &a.EndAt, &a.HoldExpiresAt, &a.BufferBeforeMin, &a.BufferAfterMin,
			&a.ReasonForVisit, &a.CanceledAt, &a.CancelReason, &a.RescheduledFromID,
			&a.DepositSessionID, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning appointment: %w", err)
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

func (r *SchedulingRepository) CreateBusyBlock(block *db.BusyBlock) error {
	query := `
		INSERT INTO busy_blocks (id, tenant_id, resource_id, start_at, end_at, reason, source)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)`
	if block.Source == "" {
		block.Source = "manual"
	}
	_, err := r.DB.Exec(query, block.ID, block.TenantID, block.ResourceID, block.StartAt, block.EndAt, block.Reason, block.Source)
	if err != nil {
		return fmt.Errorf("error inserting busy block: %w", err)
	}
	return nil
}

func (r *SchedulingRepository) DeleteBusyBlock(tenantID, blockID string) error {
	result, err := r.DB.Exec(`DELETE FROM busy_blocks WHERE id = $1 AND tenant_id = $2`, blockID, tenantID)
	if err != nil {
		return fmt.Errorf("error deleting busy block: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return apperrors.NotFound("busy block %s not found", blockID)
	}
	return nil
}

func (r *SchedulingRepository) ListBusyBlocks(tenantID string, from, to time.Time) ([]db.BusyBlock, error) {
	query := `
		SELECT id, tenant_id, resource_id, start_at, end_at, COALESCE(reason, ''), source
		FROM busy_blocks
		WHERE tenant_id = $1 AND start_at < $3 AND end_at > $2
		ORDER BY start_at`
	rows, err := r.DB.Query(query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("error listing busy blocks: %w", err)
	}
	defer rows.Close()

	var blocks []db.BusyBlock
	for rows.Next() {
		var b db.BusyBlock
		if err := rows.Scan(&b.ID, &b.TenantID, &b.ResourceID, &b.StartAt, &b.EndAt, &b.Reason, &b.Source); err != nil {
			return nil, fmt.Errorf("error scanning busy block: %w", err)
		}
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}
