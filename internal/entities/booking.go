package entities

import "time"

type ClientInfo struct {
	Phone string `json:"phone"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type BookingRequest struct {
	TenantID          string     `json:"tenant_id"`
	Client            ClientInfo `json:"client"`
	AppointmentTypeID string     `json:"appointment_type_id"`
	ResourceID        string     `json:"resource_id"`
	SlotStartAt       string     `json:"slot_start_at"`
	ReasonForVisit    string     `json:"reason_for_visit,omitempty"`
}

type HoldRequest struct {
	TenantID          string     `json:"tenant_id"`
	Client            ClientInfo `json:"client"`
	AppointmentTypeID string     `json:"appointment_type_id"`
	ResourceID        string     `json:"resource_id"`
	SlotStartAt       string     `json:"slot_start_at"`
	TTLMinutes        int        `json:"ttl_minutes"`
}

type CancelRequest struct {
	TenantID string `json:"tenant_id"`
	Reason   string `json:"reason,omitempty"`
}

type RescheduleRequest struct {
	TenantID              string `json:"tenant_id"`
	AppointmentTypeID     string `json:"appointment_type_id"`
	NewSlotStartAt        string `json:"new_slot_start_at"`
	PreviousAppointmentID string `json:"previous_appointment_id,omitempty"`
}

type AppointmentResponse struct {
	ID                 string     `json:"id"`
	TenantID           string     `json:"tenant_id"`
	ClientID           string     `json:"client_id"`
	ResourceID         string     `json:"resource_id"`
	AppointmentTypeID  string     `json:"appointment_type_id"`
	Status             string     `json:"status"`
	StartAt            time.Time  `json:"start_at"`
	EndAt              time.Time  `json:"end_at"`
	HoldExpiresAt      *time.Time `json:"hold_expires_at,omitempty"`
	CancelReason       string     `json:"cancel_reason,omitempty"`
	RescheduledFromID  string     `json:"rescheduled_from_id,omitempty"`
	DepositCheckoutURL string     `json:"deposit_checkout_url,omitempty"`
}

type BusyBlockRequest struct {
	TenantID   string    `json:"tenant_id"`
	ResourceID string    `json:"resource_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
	Reason     string    `json:"reason,omitempty"`
}
