package availability

import (
	"sort"
	"time"
)

// MaxCandidates caps how many slots a single query returns. This is a UX
// cap, not a correctness bound: callers wanting more expand the date range.
const MaxCandidates = 5

// defaultGranularityMinutes backstops a tenant row whose granularity is
// missing or zero, matching the schema default.
const defaultGranularityMinutes = 15

const (
	TimeOfDayAny       = "any"
	TimeOfDayMorning   = "morning"
	TimeOfDayAfternoon = "afternoon"
	TimeOfDayEvening   = "evening"
)

// PreferenceWindow narrows candidates to a named time-of-day band.
type PreferenceWindow struct {
	TimeOfDay string
}

// SlotRequest carries everything the generator needs besides the per-day
// working/busy segments.
type SlotRequest struct {
	ResourceID          string
	DurationMinutes     int
	BufferBeforeMinutes int
	BufferAfterMinutes  int
	GranularityMinutes  int
	LeadTimeMinutes     int
	Location            *time.Location
	Preference          *PreferenceWindow
}

// DayPayload holds one day's working and busy segments, already converted to
// absolute instants.
type DayPayload struct {
	WorkingSegments []TimeInterval
	BusySegments    []TimeInterval
}

type CandidateSlot struct {
	StartAt    time.Time
	EndAt      time.Time
	ResourceID string
	Score      int
}

func alignToGranularity(t time.Time, granularityMinutes int) time.Time {
	step := int64(granularityMinutes) * 60_000
	ms := t.UnixMilli()
	aligned := ((ms + step - 1) / step) * step
	return time.UnixMilli(aligned).UTC()
}

func passesLeadTime(now, slotStart time.Time, leadTimeMinutes int) bool {
	minStart := now.Add(time.Duration(leadTimeMinutes) * time.Minute)
	return !slotStart.Before(minStart)
}

// preferenceScore returns 1 for no preference, 2 for a slot inside the
// requested band and 0 outside it. Zero-scored slots are filtered out.
func preferenceScore(slot time.Time, loc *time.Location, pref *PreferenceWindow) int {
	if pref == nil || pref.TimeOfDay == "" || pref.TimeOfDay == TimeOfDayAny {
		return 1
	}
	hour := slot.In(loc).Hour()
	switch pref.TimeOfDay {
	case TimeOfDayMorning:
		if hour >= 8 && hour < 12 {
			return 2
		}
		return 0
	case TimeOfDayAfternoon:
		if hour >= 12 && hour < 17 {
			return 2
		}
		return 0
	case TimeOfDayEvening:
		if hour >= 17 && hour < 21 {
			return 2
		}
		return 0
	}
	return 1
}

// GenerateCandidateSlots computes the ranked candidate starts for a request
// over a set of per-day segment payloads. Candidates align to the granularity
// grid, fit duration plus both buffers inside a free segment, respect the
// lead time relative to now, and are ranked by score descending with earlier
// starts winning ties.
func GenerateCandidateSlots(req SlotRequest, days []DayPayload, now time.Time) []CandidateSlot {
	totalSpan := time.Duration(req.DurationMinutes+req.BufferBeforeMinutes+req.BufferAfterMinutes) * time.Minute
	duration := time.Duration(req.DurationMinutes) * time.Minute
	granularity := req.GranularityMinutes
	if granularity <= 0 {
		granularity = defaultGranularityMinutes
	}

	var output []CandidateSlot
	for _, day := range days {
		freeSegments := Subtract(day.WorkingSegments, day.BusySegments)

		for _, free := range freeSegments {
			cursor := alignToGranularity(free.Start, granularity)
			for !cursor.Add(totalSpan).After(free.End) {
				if passesLeadTime(now, cursor, req.LeadTimeMinutes) {
					if score := preferenceScore(cursor, req.Location, req.Preference); score > 0 {
						output = append(output, CandidateSlot{
							StartAt:    cursor,
							EndAt:      cursor.Add(duration),
							ResourceID: req.ResourceID,
							Score:      score,
						})
					}
				}
				cursor = cursor.Add(time.Duration(granularity) * time.Minute)
			}
		}
	}

	sort.SliceStable(output, func(i, j int) bool {
		if output[i].Score != output[j].Score {
			return output[i].Score > output[j].Score
		}
		return output[i].StartAt.Before(output[j].StartAt)
	})
	if len(output) > MaxCandidates {
		output = output[:MaxCandidates]
	}
	return output
}
