package service

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"turnero/internal/db"
	"turnero/internal/entities"
	apperrors "turnero/internal/errors"
	"turnero/internal/metrics"
)

const (
	defaultHoldTTLMinutes = 10
	maxHoldTTLMinutes     = 30
)

// BookingStore is the slice of the scheduling repository the booking
// lifecycle needs.
type BookingStore interface {
	GetTenant(tenantID string) (*db.Tenant, error)
	GetAppointmentType(tenantID, appointmentTypeID string) (*db.AppointmentType, error)
	GetResource(tenantID, resourceID string) (*db.Resource, error)
	GetDefaultResource(tenantID string) (*db.Resource, error)
	GetOrCreateClient(tenantID, phone, name, email string) (*db.Client, error)
	CreateAppointment(appt *db.Appointment) error
	GetAppointment(tenantID, appointmentID string) (*db.Appointment, error)
	SetAppointmentDepositSession(tenantID, appointmentID, sessionID string) error
	CancelAppointment(tenantID, appointmentID, reason string) error
	RescheduleAppointment(tenantID, appointmentID string, startAt, endAt time.Time, rescheduledFromID string) (*db.Appointment, error)
	CleanupExpiredHolds(now time.Time) (int64, error)
	ListAppointments(tenantID string, from, to time.Time) ([]db.Appointment, error)
	CreateBusyBlock(block *db.BusyBlock) error
	DeleteBusyBlock(tenantID, blockID string) error
	ListBusyBlocks(tenantID string, from, to time.Time) ([]db.BusyBlock, error)
}

// PaymentGateway creates deposit checkout sessions and refunds them by
// session id when a deposit-backed booking is canceled.
type PaymentGateway interface {
	CreateCheckoutSession(amountCents int64, currency, description, customerEmail string) (string, string, error)
	RefundDepositBySessionID(sessionID string) error
}

type BookingService struct {
	Repo     BookingStore
	Payments PaymentGateway
	Now      func() time.Time
}

func NewBookingService(repo BookingStore, payments PaymentGateway) *BookingService {
	return &BookingService{Repo: repo, Payments: payments, Now: time.Now}
}

// CreateBooking inserts a directly-booked appointment. When the appointment
// type carries a price and a checkout provider is configured, a deposit
// checkout session is attached to the response; checkout failure never undoes
// the booking.
func (s *BookingService) CreateBooking(req entities.BookingRequest) (*entities.AppointmentResponse, error) {
	appt, client, appointmentType, err := s.createAppointment(
		req.TenantID, req.Client, req.AppointmentTypeID, req.ResourceID, req.SlotStartAt,
		db.AppointmentStatusBooked, 0, req.ReasonForVisit,
	)
	if err != nil {
		return nil, err
	}
	metrics.AppointmentsCreated.WithLabelValues(db.AppointmentStatusBooked).Inc()

	response := toAppointmentResponse(appt)
	if appointmentType.PriceCents > 0 && s.Payments != nil {
		currency := os.Getenv("DEPOSIT_CURRENCY")
		if currency == "" {
			currency = "usd"
		}
		description := fmt.Sprintf("Deposit for %s on %s", appointmentType.Name, appt.StartAt.UTC().Format(time.RFC3339))
		url, sessionID, err := s.Payments.CreateCheckoutSession(int64(appointmentType.PriceCents), currency, description, client.Email)
		if err != nil {
			log.Printf("booking %s created but deposit checkout failed: %v", appt.ID, err)
		} else {
			log.Printf("deposit checkout session %s created for booking %s", sessionID, appt.ID)
			response.DepositCheckoutURL = url
			// The session id is kept on the row so a later cancellation can
			// refund the deposit.
			if err := s.Repo.SetAppointmentDepositSession(appt.TenantID, appt.ID, sessionID); err != nil {
				log.Printf("booking %s: failed to store deposit session %s: %v", appt.ID, sessionID, err)
			}
		}
	}
	return response, nil
}

// CreateHold inserts a provisional appointment that the reaper cancels once
// its TTL elapses. TTL is clamped to [1, 30] minutes; zero means the default.
func (s *BookingService) CreateHold(req entities.HoldRequest) (*entities.AppointmentResponse, error) {
	ttl := req.TTLMinutes
	if ttl <= 0 {
		ttl = defaultHoldTTLMinutes
	}
	if ttl > maxHoldTTLMinutes {
		ttl = maxHoldTTLMinutes
	}
	appt, _, _, err := s.createAppointment(
		req.TenantID, req.Client, req.AppointmentTypeID, req.ResourceID, req.SlotStartAt,
		db.AppointmentStatusHold, ttl, "",
	)
	if err != nil {
		return nil, err
	}
	metrics.AppointmentsCreated.WithLabelValues(db.AppointmentStatusHold).Inc()
	return toAppointmentResponse(appt), nil
}

func (s *BookingService) createAppointment(
	tenantID string, clientInfo entities.ClientInfo, appointmentTypeID, resourceID, slotStartAt,
	status string, ttlMinutes int, reasonForVisit string,
) (*db.Appointment, *db.Client, *db.AppointmentType, error) {
	if clientInfo.Phone == "" {
		return nil, nil, nil, apperrors.Validation("client.phone is required")
	}
	if _, err := s.Repo.GetTenant(tenantID); err != nil {
		return nil, nil, nil, err
	}
	appointmentType, err := s.Repo.GetAppointmentType(tenantID, appointmentTypeID)
	if err != nil {
		return nil, nil, nil, err
	}

	var resource *db.Resource
	if resourceID != "" {
		resource, err = s.Repo.GetResource(tenantID, resourceID)
	} else {
		resource, err = s.Repo.GetDefaultResource(tenantID)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	startAt, err := time.Parse(time.RFC3339, slotStartAt)
	if err != nil {
		return nil, nil, nil, apperrors.Validation("invalid slot_start_at %q", slotStartAt)
	}
	endAt := startAt.Add(time.Duration(appointmentType.DurationMinutes) * time.Minute)

	client, err := s.Repo.GetOrCreateClient(tenantID, clientInfo.Phone, clientInfo.Name, clientInfo.Email)
	if err != nil {
		return nil, nil, nil, err
	}

	appt := &db.Appointment{
		ID:                uuid.NewString(),
		TenantID:          tenantID,
		ClientID:          client.ID,
		ResourceID:        resource.ID,
		AppointmentTypeID: appointmentType.ID,
		Status:            status,
		StartAt:           startAt.UTC(),
		EndAt:             endAt.UTC(),
		BufferBeforeMin:   appointmentType.BufferBeforeMinutes,
		BufferAfterMin:    appointmentType.BufferAfterMinutes,
		ReasonForVisit:    reasonForVisit,
	}
	if status == db.AppointmentStatusHold {
		expiresAt := s.Now().UTC().Add(time.Duration(ttlMinutes) * time.Minute)
		appt.HoldExpiresAt = &expiresAt
	}
	if err := s.Repo.CreateAppointment(appt); err != nil {
		return nil, nil, nil, err
	}
	return appt, client, appointmentType, nil
}

// CancelBooking cancels a hold or booking. Canceling a hold whose TTL already
// elapsed but that the reaper has not swept yet still succeeds. A booking that
// carries a deposit session gets its deposit refunded; refund failure is
// logged but the cancellation stands.
func (s *BookingService) CancelBooking(tenantID, appointmentID, reason string) error {
	if err := s.Repo.CancelAppointment(tenantID, appointmentID, reason); err != nil {
		return err
	}
	metrics.AppointmentsCanceled.Inc()

	if s.Payments != nil {
		appt, err := s.Repo.GetAppointment(tenantID, appointmentID)
		if err != nil {
			log.Printf("canceled appointment %s but could not load it for refund: %v", appointmentID, err)
			return nil
		}
		if appt.DepositSessionID != "" {
			if err := s.Payments.RefundDepositBySessionID(appt.DepositSessionID); err != nil {
				log.Printf("canceled appointment %s but deposit refund failed: %v", appointmentID, err)
			} else {
				log.Printf("refunded deposit session %s for canceled appointment %s", appt.DepositSessionID, appointmentID)
			}
		}
	}
	return nil
}

// RescheduleBooking moves a booked appointment to a new start, recomputing the
// end from the given appointment type's duration. Holds and canceled rows are
// rejected by the conditional update underneath.
func (s *BookingService) RescheduleBooking(appointmentID string, req entities.RescheduleRequest) (*entities.AppointmentResponse, error) {
	appointmentType, err := s.Repo.GetAppointmentType(req.TenantID, req.AppointmentTypeID)
	if err != nil {
		return nil, err
	}
	startAt, err := time.Parse(time.RFC3339, req.NewSlotStartAt)
	if err != nil {
		return nil, apperrors.Validation("invalid new_slot_start_at %q", req.NewSlotStartAt)
	}
	endAt := startAt.Add(time.Duration(appointmentType.DurationMinutes) * time.Minute)

	appt, err := s.Repo.RescheduleAppointment(req.TenantID, appointmentID, startAt.UTC(), endAt.UTC(), req.PreviousAppointmentID)
	if err != nil {
		return nil, err
	}
	metrics.AppointmentsRescheduled.Inc()
	return toAppointmentResponse(appt), nil
}

func (s *BookingService) GetAppointment(tenantID, appointmentID string) (*entities.AppointmentResponse, error) {
	appt, err := s.Repo.GetAppointment(tenantID, appointmentID)
	if err != nil {
		return nil, err
	}
	return toAppointmentResponse(appt), nil
}

func (s *BookingService) ListAppointments(tenantID string, from, to time.Time) ([]entities.AppointmentResponse, error) {
	appointments, err := s.Repo.ListAppointments(tenantID, from, to)
	if err != nil {
		return nil, err
	}
	responses := make([]entities.AppointmentResponse, 0, len(appointments))
	for i := range appointments {
		responses = append(responses, *toAppointmentResponse(&appointments[i]))
	}
	return responses, nil
}

func (s *BookingService) CreateBusyBlock(req entities.BusyBlockRequest) (*db.BusyBlock, error) {
	if !req.EndAt.After(req.StartAt) {
		return nil, apperrors.Validation("end_at must be after start_at")
	}
	block := &db.BusyBlock{
		ID:         uuid.NewString(),
		TenantID:   req.TenantID,
		ResourceID: req.ResourceID,
		StartAt:    req.StartAt.UTC(),
		EndAt:      req.EndAt.UTC(),
		Reason:     req.Reason,
	}
	if err := s.Repo.CreateBusyBlock(block); err != nil {
		return nil, err
	}
	return block, nil
}

func (s *BookingService) DeleteBusyBlock(tenantID, blockID string) error {
	return s.Repo.DeleteBusyBlock(tenantID, blockID)
}

func (s *BookingService) ListBusyBlocks(tenantID string, from, to time.Time) ([]db.BusyBlock, error) {
	return s.Repo.ListBusyBlocks(tenantID, from, to)
}

func toAppointmentResponse(appt *db.Appointment) *entities.AppointmentResponse {
	return &entities.AppointmentResponse{
		ID:                appt.ID,
		TenantID:          appt.TenantID,
		ClientID:          appt.ClientID,
		ResourceID:        appt.ResourceID,
		AppointmentTypeID: appt.AppointmentTypeID,
		Status:            appt.Status,
		StartAt:           appt.StartAt,
		EndAt:             appt.EndAt,
		HoldExpiresAt:     appt.HoldExpiresAt,
		CancelReason:      appt.CancelReason,
		RescheduledFromID: appt.RescheduledFromID,
	}
}
