package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"turnero/internal/db"
	"turnero/internal/entities"
	apperrors "turnero/internal/errors"
)

type fakeBookingStore struct {
	tenant          *db.Tenant
	appointmentType *db.AppointmentType
	resource        *db.Resource
	client          *db.Client

	created      []*db.Appointment
	createErr    error
	canceled     []string
	cancelErr    error
	rescheduled  *db.Appointment
	expiredHolds int64
	sweeps       int
}

func (f *fakeBookingStore) GetTenant(tenantID string) (*db.Tenant, error) {
	if f.tenant == nil {
		return nil, apperrors.NotFound("tenant %s not found", tenantID)
	}
	return f.tenant, nil
}

func (f *fakeBookingStore) GetAppointmentType(tenantID, id string) (*db.AppointmentType, error) {
	if f.appointmentType == nil {
		return nil, apperrors.NotFound("appointment type %s not found", id)
	}
	return f.appointmentType, nil
}

func (f *fakeBookingStore) GetResource(tenantID, id string) (*db.Resource, error) {
	return f.resource, nil
}

func (f *fakeBookingStore) GetDefaultResource(tenantID string) (*db.Resource, error) {
	return f.resource, nil
}

func (f *fakeBookingStore) GetOrCreateClient(tenantID, phone, name, email string) (*db.Client, error) {
	if f.client == nil {
		f.client = &db.Client{ID: "client-1", TenantID: tenantID, PhoneE164: phone, Name: name, Email: email}
	}
	return f.client, nil
}

func (f *fakeBookingStore) CreateAppointment(appt *db.Appointment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, appt)
	return nil
}

func (f *fakeBookingStore) GetAppointment(tenantID, id string) (*db.Appointment, error) {
	for _, appt := range f.created {
		if appt.ID == id {
			return appt, nil
		}
	}
	return nil, apperrors.NotFound("appointment %s not found", id)
}

func (f *fakeBookingStore) CancelAppointment(tenantID, id, reason string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.canceled = append(f.canceled, id)
	return nil
}

func (f *fakeBookingStore) RescheduleAppointment(tenantID, id string, startAt, endAt time.Time, fromID string) (*db.Appointment, error) {
	if f.rescheduled == nil {
		return nil, apperrors.Conflict("appointment %s is not in booked status", id)
	}
	f.rescheduled.StartAt = startAt
	f.rescheduled.EndAt = endAt
	return f.rescheduled, nil
}

func (f *fakeBookingStore) CleanupExpiredHolds(now time.Time) (int64, error) {
	f.sweeps++
	expired := f.expiredHolds
	f.expiredHolds = 0
	return expired, nil
}

func (f *fakeBookingStore) ListAppointments(tenantID string, from, to time.Time) ([]db.Appointment, error) {
	var out []db.Appointment
	for _, appt := range f.created {
		out = append(out, *appt)
	}
	return out, nil
}

func (f *fakeBookingStore) SetAppointmentDepositSession(tenantID, id, sessionID string) error {
	appt, err := f.GetAppointment(tenantID, id)
	if err != nil {
		return err
	}
	appt.DepositSessionID = sessionID
	return nil
}

func (f *fakeBookingStore) CreateBusyBlock(block *db.BusyBlock) error { return nil }

func (f *fakeBookingStore) DeleteBusyBlock(tenantID, blockID string) error { return nil }

func (f *fakeBookingStore) ListBusyBlocks(tenantID string, from, to time.Time) ([]db.BusyBlock, error) {
	return nil, nil
}

type fakeGateway struct {
	url       string
	err       error
	refundErr error
	refunded  []string
}

func (f *fakeGateway) CreateCheckoutSession(amountCents int64, currency, description, customerEmail string) (string, string, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return f.url, "cs_test_1", nil
}

func (f *fakeGateway) RefundDepositBySessionID(sessionID string) error {
	if f.refundErr != nil {
		return f.refundErr
	}
	f.refunded = append(f.refunded, sessionID)
	return nil
}

func newBookingStore() *fakeBookingStore {
	return &fakeBookingStore{
		tenant: &db.Tenant{ID: "tenant-1", Timezone: "UTC", SlotGranularityMinutes: 15},
		appointmentType: &db.AppointmentType{
			ID:              "type-1",
			TenantID:        "tenant-1",
			Name:            "Consultation",
			DurationMinutes: 45,
			IsActive:        true,
		},
		resource: &db.Resource{ID: "resource-1", TenantID: "tenant-1", IsDefault: true, IsActive: true},
	}
}

func TestCreateBookingComputesEndFromDuration(t *testing.T) {
	store := newBookingStore()
	svc := NewBookingService(store, nil)

	resp, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		Client:            entities.ClientInfo{Phone: "+15551234567", Name: "Dana"},
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.NoError(t, err)
	require.Equal(t, db.AppointmentStatusBooked, resp.Status)
	require.Equal(t, time.Date(2026, 3, 10, 14, 45, 0, 0, time.UTC), resp.EndAt)
	require.Nil(t, resp.HoldExpiresAt)
	require.Len(t, store.created, 1)
	require.Equal(t, "resource-1", store.created[0].ResourceID)
}

func TestCreateBookingRequiresPhone(t *testing.T) {
	svc := NewBookingService(newBookingStore(), nil)

	_, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}

func TestCreateBookingAttachesDepositCheckout(t *testing.T) {
	store := newBookingStore()
	store.appointmentType.PriceCents = 2500
	svc := NewBookingService(store, &fakeGateway{url: "https://checkout.stripe.com/c/pay/cs_test_1"})

	resp, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		Client:            entities.ClientInfo{Phone: "+15551234567", Email: "dana@example.com"},
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.NoError(t, err)
	require.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", resp.DepositCheckoutURL)
	require.Equal(t, "cs_test_1", store.created[0].DepositSessionID)
}

func TestCancelBookingRefundsDeposit(t *testing.T) {
	store := newBookingStore()
	store.appointmentType.PriceCents = 2500
	gateway := &fakeGateway{url: "https://checkout.stripe.com/c/pay/cs_test_1"}
	svc := NewBookingService(store, gateway)

	resp, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		Client:            entities.ClientInfo{Phone: "+15551234567"},
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelBooking("tenant-1", resp.ID, "client_requested"))
	require.Equal(t, []string{resp.ID}, store.canceled)
	require.Equal(t, []string{"cs_test_1"}, gateway.refunded)
}

func TestCancelBookingWithoutDepositSkipsRefund(t *testing.T) {
	store := newBookingStore()
	gateway := &fakeGateway{}
	svc := NewBookingService(store, gateway)

	_, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		Client:            entities.ClientInfo{Phone: "+15551234567"},
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelBooking("tenant-1", store.created[0].ID, ""))
	require.Empty(t, gateway.refunded)
}

func TestCancelBookingStandsWhenRefundFails(t *testing.T) {
	store := newBookingStore()
	store.appointmentType.PriceCents = 2500
	gateway := &fakeGateway{
		url:       "https://checkout.stripe.com/c/pay/cs_test_1",
		refundErr: apperrors.Transient("stripe unavailable", nil),
	}
	svc := NewBookingService(store, gateway)

	resp, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		Client:            entities.ClientInfo{Phone: "+15551234567"},
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.NoError(t, err)

	require.NoError(t, svc.CancelBooking("tenant-1", resp.ID, ""))
	require.Equal(t, []string{resp.ID}, store.canceled)
}

func TestCreateBookingSurvivesCheckoutFailure(t *testing.T) {
	store := newBookingStore()
	store.appointmentType.PriceCents = 2500
	svc := NewBookingService(store, &fakeGateway{err: apperrors.Transient("stripe unavailable", nil)})

	resp, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		Client:            entities.ClientInfo{Phone: "+15551234567"},
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.NoError(t, err)
	require.Empty(t, resp.DepositCheckoutURL)
	require.Len(t, store.created, 1)
}

func TestCreateHoldClampsTTL(t *testing.T) {
	store := newBookingStore()
	svc := NewBookingService(store, nil)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.Now = func() time.Time { return now }

	cases := []struct {
		name    string
		ttl     int
		expires time.Time
	}{
		{"default when zero", 0, now.Add(10 * time.Minute)},
		{"explicit in range", 5, now.Add(5 * time.Minute)},
		{"clamped to max", 120, now.Add(30 * time.Minute)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := svc.CreateHold(entities.HoldRequest{
				TenantID:          "tenant-1",
				Client:            entities.ClientInfo{Phone: "+15551234567"},
				AppointmentTypeID: "type-1",
				SlotStartAt:       "2026-03-10T14:00:00Z",
				TTLMinutes:        tc.ttl,
			})
			require.NoError(t, err)
			require.Equal(t, db.AppointmentStatusHold, resp.Status)
			require.NotNil(t, resp.HoldExpiresAt)
			require.Equal(t, tc.expires, *resp.HoldExpiresAt)
		})
	}
}

func TestCreateBookingPropagatesSlotConflict(t *testing.T) {
	store := newBookingStore()
	store.createErr = apperrors.Conflict("slot is no longer available")
	svc := NewBookingService(store, nil)

	_, err := svc.CreateBooking(entities.BookingRequest{
		TenantID:          "tenant-1",
		Client:            entities.ClientInfo{Phone: "+15551234567"},
		AppointmentTypeID: "type-1",
		SlotStartAt:       "2026-03-10T14:00:00Z",
	})
	require.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestCancelBookingPropagatesConflict(t *testing.T) {
	store := newBookingStore()
	store.cancelErr = apperrors.Conflict("appointment not found or already canceled")
	svc := NewBookingService(store, nil)

	err := svc.CancelBooking("tenant-1", "appt-1", "")
	require.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestRescheduleRecomputesEndFromType(t *testing.T) {
	store := newBookingStore()
	store.rescheduled = &db.Appointment{
		ID:       "appt-1",
		TenantID: "tenant-1",
		Status:   db.AppointmentStatusBooked,
	}
	svc := NewBookingService(store, nil)

	resp, err := svc.RescheduleBooking("appt-1", entities.RescheduleRequest{
		TenantID:          "tenant-1",
		AppointmentTypeID: "type-1",
		NewSlotStartAt:    "2026-03-11T09:00:00Z",
	})
	require.NoError(t, err)
	require.Equal(t, time.Date(2026, 3, 11, 9, 45, 0, 0, time.UTC), resp.EndAt)
}

func TestRescheduleNonBookedRejected(t *testing.T) {
	svc := NewBookingService(newBookingStore(), nil)

	_, err := svc.RescheduleBooking("appt-1", entities.RescheduleRequest{
		TenantID:          "tenant-1",
		AppointmentTypeID: "type-1",
		NewSlotStartAt:    "2026-03-11T09:00:00Z",
	})
	require.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestHoldReaperSweepIsIdempotent(t *testing.T) {
	store := newBookingStore()
	store.expiredHolds = 3
	reaper := NewHoldReaper(store)

	first, err := reaper.Sweep()
	require.NoError(t, err)
	require.EqualValues(t, 3, first)

	second, err := reaper.Sweep()
	require.NoError(t, err)
	require.Zero(t, second)
	require.Equal(t, 2, store.sweeps)
}
