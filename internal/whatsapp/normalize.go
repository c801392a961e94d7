package whatsapp

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const (
	EventTypeMessage = "message"
	EventTypeStatus  = "status"
	EventTypeOther   = "other"
)

// NormalizedEvent is the flat internal form of one provider event. Message
// events fill FromPhone/Text/ReceivedAt; status events fill Status,
// RecipientPhone and Timestamp. Raw keeps the original provider object for
// durable storage.
type NormalizedEvent struct {
	EventType          string
	ExternalID         string
	PhoneNumberID      string
	DisplayPhoneNumber string
	FromPhone          string
	Text               string
	ReceivedAt         time.Time
	Status             string
	RecipientPhone     string
	Timestamp          time.Time
	Raw                json.RawMessage
}

type metaMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

type metaStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

type metaChangeValue struct {
	Metadata struct {
		DisplayPhoneNumber string `json:"display_phone_number"`
		PhoneNumberID      string `json:"phone_number_id"`
	} `json:"metadata"`
	Messages []json.RawMessage `json:"messages"`
	Statuses []json.RawMessage `json:"statuses"`
}

type metaPayload struct {
	Entry []struct {
		Changes []struct {
			Value metaChangeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

var unixSecondsRe = regexp.MustCompile(`^\d+$`)

// timeFromUnixSeconds parses the provider's unix-seconds string timestamp.
// Malformed or missing values fall back to now rather than failing the batch.
func timeFromUnixSeconds(raw string, now time.Time) time.Time {
	if !unixSecondsRe.MatchString(raw) {
		return now
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return now
	}
	return time.Unix(secs, 0).UTC()
}

// NormalizePayload maps a raw provider webhook body onto the flat event
// union. Unparseable bodies are an error; individual malformed timestamps
// are not.
func NormalizePayload(raw []byte, now time.Time) ([]NormalizedEvent, error) {
	var payload metaPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parsing webhook payload: %w", err)
	}

	var events []NormalizedEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for _, rawMsg := range value.Messages {
				var msg metaMessage
				if err := json.Unmarshal(rawMsg, &msg); err != nil {
					continue
				}
				text := ""
				if msg.Text != nil {
					text = msg.Text.Body
				}
				events = append(events, NormalizedEvent{
					EventType:          EventTypeMessage,
					ExternalID:         msg.ID,
					PhoneNumberID:      value.Metadata.PhoneNumberID,
					DisplayPhoneNumber: value.Metadata.DisplayPhoneNumber,
					FromPhone:          msg.From,
					Text:               text,
					ReceivedAt:         timeFromUnixSeconds(msg.Timestamp, now),
					Raw:                rawMsg,
				})
			}

			for _, rawStatus := range value.Statuses {
				var status metaStatus
				if err := json.Unmarshal(rawStatus, &status); err != nil {
					continue
				}
				events = append(events, NormalizedEvent{
					EventType:          EventTypeStatus,
					ExternalID:         status.ID,
					PhoneNumberID:      value.Metadata.PhoneNumberID,
					DisplayPhoneNumber: value.Metadata.DisplayPhoneNumber,
					Status:             status.Status,
					RecipientPhone:     status.RecipientID,
					Timestamp:          timeFromUnixSeconds(status.Timestamp, now),
					Raw:                rawStatus,
				})
			}
		}
	}

	return events, nil
}

// DedupKey derives the stable per-event key used for the inbox uniqueness
// constraint. Distinct delivery-status transitions for one message id must
// each land, so status and timestamp are part of the status key.
func DedupKey(e NormalizedEvent) string {
	if e.EventType == EventTypeMessage {
		return fmt.Sprintf("message:%s", e.ExternalID)
	}
	return fmt.Sprintf("status:%s:%s:%s", e.ExternalID, e.Status, e.Timestamp.UTC().Format(time.RFC3339))
}

// ExtractPhoneNumberIDs collects every distinct phone-number id referenced in
// a payload. Used only to pick signature-verification candidates before the
// payload is trusted.
func ExtractPhoneNumberIDs(raw []byte) []string {
	var payload metaPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			id := change.Value.Metadata.PhoneNumberID
			if id != "" && !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
