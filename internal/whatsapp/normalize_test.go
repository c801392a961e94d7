package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var samplePayload = []byte(`{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "entry-1",
    "changes": [{
      "field": "messages",
      "value": {
        "metadata": {"display_phone_number": "15550001111", "phone_number_id": "pn-123"},
        "messages": [{
          "from": "15559992222",
          "id": "wamid.ABC",
          "timestamp": "1767200400",
          "type": "text",
          "text": {"body": "I want to book a haircut"}
        }],
        "statuses": [{
          "id": "wamid.OUT1",
          "status": "delivered",
          "timestamp": "1767200500",
          "recipient_id": "15559992222"
        }]
      }
    }]
  }]
}`)

func TestNormalizePayload(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	events, err := NormalizePayload(samplePayload, now)
	require.NoError(t, err)
	require.Len(t, events, 2)

	msg := events[0]
	require.Equal(t, EventTypeMessage, msg.EventType)
	require.Equal(t, "wamid.ABC", msg.ExternalID)
	require.Equal(t, "pn-123", msg.PhoneNumberID)
	require.Equal(t, "15550001111", msg.DisplayPhoneNumber)
	require.Equal(t, "15559992222", msg.FromPhone)
	require.Equal(t, "I want to book a haircut", msg.Text)
	require.Equal(t, time.Unix(1767200400, 0).UTC(), msg.ReceivedAt)
	require.NotEmpty(t, msg.Raw)

	status := events[1]
	require.Equal(t, EventTypeStatus, status.EventType)
	require.Equal(t, "wamid.OUT1", status.ExternalID)
	require.Equal(t, "delivered", status.Status)
	require.Equal(t, "15559992222", status.RecipientPhone)
	require.Equal(t, time.Unix(1767200500, 0).UTC(), status.Timestamp)
}

func TestNormalizePayloadMalformedTimestampFallsBack(t *testing.T) {
	payload := []byte(`{"entry":[{"changes":[{"value":{
	  "metadata":{"phone_number_id":"pn-1"},
	  "messages":[{"from":"1555","id":"wamid.X","timestamp":"not-a-number","text":{"body":"hi"}}]
	}}]}]}`)

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	events, err := NormalizePayload(payload, now)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, now, events[0].ReceivedAt)
}

func TestNormalizePayloadRejectsGarbage(t *testing.T) {
	_, err := NormalizePayload([]byte("not json"), time.Now())
	require.Error(t, err)
}

func TestNormalizePayloadEmpty(t *testing.T) {
	events, err := NormalizePayload([]byte(`{"entry":[]}`), time.Now())
	require.NoError(t, err)
	require.Empty(t, events)
}

func TestDedupKeys(t *testing.T) {
	msg := NormalizedEvent{EventType: EventTypeMessage, ExternalID: "wamid.ABC"}
	require.Equal(t, "message:wamid.ABC", DedupKey(msg))

	ts := time.Unix(1767200500, 0).UTC()
	status := NormalizedEvent{EventType: EventTypeStatus, ExternalID: "wamid.OUT1", Status: "delivered", Timestamp: ts}
	require.Equal(t, "status:wamid.OUT1:delivered:"+ts.Format(time.RFC3339), DedupKey(status))

	// Distinct status transitions for one message id get distinct keys.
	read := status
	read.Status = "read"
	require.NotEqual(t, DedupKey(status), DedupKey(read))
}

func TestExtractPhoneNumberIDs(t *testing.T) {
	ids := ExtractPhoneNumberIDs(samplePayload)
	require.Equal(t, []string{"pn-123"}, ids)

	multi := []byte(`{"entry":[
	  {"changes":[{"value":{"metadata":{"phone_number_id":"a"}}}]},
	  {"changes":[{"value":{"metadata":{"phone_number_id":"b"}}},{"value":{"metadata":{"phone_number_id":"a"}}}]}
	]}`)
	require.Equal(t, []string{"a", "b"}, ExtractPhoneNumberIDs(multi))

	require.Empty(t, ExtractPhoneNumberIDs([]byte(`{}`)))
}
