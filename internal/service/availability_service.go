package service

import (
	"encoding/json"
	"fmt"
	"time"

	"turnero/internal/availability"
	"turnero/internal/db"
	"turnero/internal/entities"
	apperrors "turnero/internal/errors"
)

const defaultLeadTimeMinutes = 60

// maxQueryDays bounds how many days one availability query may walk.
const maxQueryDays = 31

// AvailabilityStore is the slice of the scheduling repository the
// availability computation needs.
type AvailabilityStore interface {
	GetTenant(tenantID string) (*db.Tenant, error)
	GetAppointmentType(tenantID, appointmentTypeID string) (*db.AppointmentType, error)
	GetResource(tenantID, resourceID string) (*db.Resource, error)
	GetDefaultResource(tenantID string) (*db.Resource, error)
	GetWorkingSegments(tenantID, resourceID string, day time.Time, loc *time.Location) ([]availability.TimeInterval, error)
	GetBusySegments(tenantID, resourceID string, dayStart, dayEnd time.Time) ([]availability.TimeInterval, error)
}

type AvailabilityService struct {
	Repo AvailabilityStore
	Now  func() time.Time
}

func NewAvailabilityService(repo AvailabilityStore) *AvailabilityService {
	return &AvailabilityService{Repo: repo, Now: time.Now}
}

type tenantSettings struct {
	LeadTimeMinutes *int `json:"lead_time_minutes"`
}

func leadTimeFromSettings(raw json.RawMessage) int {
	var settings tenantSettings
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &settings); err == nil && settings.LeadTimeMinutes != nil {
			return *settings.LeadTimeMinutes
		}
	}
	return defaultLeadTimeMinutes
}

// GetAvailability resolves the tenant context for a request, walks the date
// range day by day in the effective timezone, and delegates slot generation.
// An empty result is not an error; it carries reason codes instead.
func (s *AvailabilityService) GetAvailability(req entities.AvailabilityRequest) (*entities.AvailabilityResponse, error) {
	tenant, err := s.Repo.GetTenant(req.TenantID)
	if err != nil {
		return nil, err
	}
	appointmentType, err := s.Repo.GetAppointmentType(req.TenantID, req.AppointmentTypeID)
	if err != nil {
		return nil, err
	}

	var resource *db.Resource
	if req.ResourceID != "" {
		resource, err = s.Repo.GetResource(req.TenantID, req.ResourceID)
	} else {
		resource, err = s.Repo.GetDefaultResource(req.TenantID)
	}
	if err != nil {
		return nil, err
	}

	timezone := tenant.Timezone
	if req.Timezone != "" {
		timezone = req.Timezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, apperrors.Validation("unknown timezone %q", timezone)
	}

	startDay, err := time.ParseInLocation("2006-01-02", req.DateRange.Start, loc)
	if err != nil {
		return nil, apperrors.Validation("invalid date_range.start %q", req.DateRange.Start)
	}
	endDay, err := time.ParseInLocation("2006-01-02", req.DateRange.End, loc)
	if err != nil {
		return nil, apperrors.Validation("invalid date_range.end %q", req.DateRange.End)
	}
	if endDay.Before(startDay) {
		return nil, apperrors.Validation("date_range.end is before date_range.start")
	}
	if endDay.Sub(startDay) > maxQueryDays*24*time.Hour {
		return nil, apperrors.Validation("date range exceeds %d days", maxQueryDays)
	}

	var days []availability.DayPayload
	for cursor := startDay; !cursor.After(endDay); cursor = cursor.AddDate(0, 0, 1) {
		dayEnd := cursor.AddDate(0, 0, 1)
		working, err := s.Repo.GetWorkingSegments(req.TenantID, resource.ID, cursor, loc)
		if err != nil {
			return nil, fmt.Errorf("loading working segments for %s: %w", cursor.Format("2006-01-02"), err)
		}
		busy, err := s.Repo.GetBusySegments(req.TenantID, resource.ID, cursor, dayEnd)
		if err != nil {
			return nil, fmt.Errorf("loading busy segments for %s: %w", cursor.Format("2006-01-02"), err)
		}
		days = append(days, availability.DayPayload{WorkingSegments: working, BusySegments: busy})
	}

	slotReq := availability.SlotRequest{
		ResourceID:          resource.ID,
		DurationMinutes:     appointmentType.DurationMinutes,
		BufferBeforeMinutes: appointmentType.BufferBeforeMinutes,
		BufferAfterMinutes:  appointmentType.BufferAfterMinutes,
		GranularityMinutes:  tenant.SlotGranularityMinutes,
		LeadTimeMinutes:     leadTimeFromSettings(tenant.Settings),
		Location:            loc,
	}
	if req.PreferenceWindow != nil {
		slotReq.Preference = &availability.PreferenceWindow{TimeOfDay: req.PreferenceWindow.TimeOfDay}
	}

	slots := availability.GenerateCandidateSlots(slotReq, days, s.Now().UTC())

	response := &entities.AvailabilityResponse{Slots: []entities.SlotResponse{}, ReasonCodes: []string{}}
	for _, slot := range slots {
		response.Slots = append(response.Slots, entities.SlotResponse{
			StartAt:    slot.StartAt.UTC().Format(time.RFC3339),
			EndAt:      slot.EndAt.UTC().Format(time.RFC3339),
			ResourceID: slot.ResourceID,
		})
	}
	if len(slots) == 0 {
		response.ReasonCodes = []string{entities.ReasonNoCapacityInWindow, entities.ReasonSuggestExpandRange}
	}
	return response, nil
}
