package db

import (
	"encoding/json"
	"time"
)

const (
	AppointmentStatusHold     = "hold"
	AppointmentStatusBooked   = "booked"
	AppointmentStatusCanceled = "canceled"

	MessageDirectionInbound  = "inbound"
	MessageDirectionOutbound = "outbound"

	ProviderMetaWhatsApp = "meta_whatsapp"

	EventTypeMessage = "message"
	EventTypeStatus  = "status"
	EventTypeOther   = "other"
)

type Tenant struct {
	ID                     string
	Name                   string
	Slug                   string
	Timezone               string
	SlotGranularityMinutes int
	Settings               json.RawMessage
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type Resource struct {
	ID          string
	TenantID    string
	DisplayName string
	IsDefault   bool
	IsActive    bool
}

type Client struct {
	ID        string
	TenantID  string
	PhoneE164 string
	Name      string
	Email     string
	Timezone  string
}

type AppointmentType struct {
	ID                  string
	TenantID            string
	Name                string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	PriceCents          int
	IsActive            bool
}

// ScheduleRule is one weekly working-hours rule for a resource. Weekday uses
// Sunday = 0 through Saturday = 6.
type ScheduleRule struct {
	ID             string
	TenantID       string
	ResourceID     string
	Weekday        int
	StartLocalTime string
	EndLocalTime   string
	IsWorking      bool
}

// ScheduleException overrides the weekly rules for a single local date.
type ScheduleException struct {
	ID             string
	TenantID       string
	ResourceID     string
	DateLocal      string
	IsClosed       bool
	StartLocalTime string
	EndLocalTime   string
	Label          string
}

type BusyBlock struct {
	ID         string
	TenantID   string
	ResourceID string
	StartAt    time.Time
	EndAt      time.Time
	Reason     string
	Source     string
}

type Appointment struct {
	ID                string
	TenantID          string
	ClientID          string
	ResourceID        string
	AppointmentTypeID string
	Status            string
	StartAt           time.Time
	EndAt             time.Time
	HoldExpiresAt     *time.Time
	BufferBeforeMin   int
	BufferAfterMin    int
	ReasonForVisit    string
	CanceledAt        *time.Time
	CancelReason      string
	RescheduledFromID string
	DepositSessionID  string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type MessageThread struct {
	ID                string
	TenantID          string
	Channel           string
	ClientID          string
	WhatsAppChannelID string
	Status            string
}

type Message struct {
	ID                string
	TenantID          string
	ThreadID          string
	Direction         string
	Text              string
	ProviderMessageID string
	RawPayload        json.RawMessage
	DeliveryStatus    string
	ReceivedAt        *time.Time
	SentAt            *time.Time
}

// ConversationState is the per-(tenant, phone) singleton driving what the
// agent may do next for that client.
type ConversationState struct {
	TenantID   string
	ThreadID   string
	PhoneE164  string
	State      string
	Context    json.RawMessage
	LastIntent string
	ExpiresAt  *time.Time
}

// InboxEvent is one durable row in the webhook landing zone. The
// (Provider, DedupKey) pair is globally unique; redelivery of the same
// provider event is absorbed on insert.
type InboxEvent struct {
	ID            string
	Provider      string
	EventType     string
	DedupKey      string
	PhoneNumberID string
	Payload       json.RawMessage
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
	AttemptCount  int
	LastError     string
}

type AdminUser struct {
	ID           string
	Email        string
	PasswordHash string
}
