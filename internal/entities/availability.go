package entities

type PreferenceWindow struct {
	TimeOfDay string `json:"time_of_day,omitempty"`
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type AvailabilityRequest struct {
	TenantID          string            `json:"tenant_id"`
	AppointmentTypeID string            `json:"appointment_type_id"`
	ResourceID        string            `json:"resource_id,omitempty"`
	DateRange         DateRange         `json:"date_range"`
	Timezone          string            `json:"timezone,omitempty"`
	PreferenceWindow  *PreferenceWindow `json:"preference_window,omitempty"`
}

type SlotResponse struct {
	StartAt    string `json:"start_at"`
	EndAt      string `json:"end_at"`
	ResourceID string `json:"resource_id"`
}

type AvailabilityResponse struct {
	Slots       []SlotResponse `json:"slots"`
	ReasonCodes []string       `json:"reason_codes"`
}

const (
	ReasonNoCapacityInWindow = "NO_CAPACITY_IN_WINDOW"
	ReasonSuggestExpandRange = "SUGGEST_EXPAND_DATE_RANGE"
)
