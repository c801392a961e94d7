package service

import (
	"log"
	"os"
	"time"

	"turnero/internal/db"
	apperrors "turnero/internal/errors"
	"turnero/internal/metrics"
	"turnero/internal/secrets"
	"turnero/internal/whatsapp"
)

// SecretSource lists the encrypted app secrets that could have signed a
// delivery mentioning the given phone number ids.
type SecretSource interface {
	ListAppSecrets(phoneNumberIDs []string) ([]string, error)
}

// InboxWriter appends normalized events to the durable inbox.
type InboxWriter interface {
	InsertEvents(events []db.InboxEvent) (int, error)
}

// IngestService is the synchronous half of webhook handling: authenticate,
// normalize, persist, ack. All business side effects happen later, off the
// inbox.
type IngestService struct {
	Inbox   InboxWriter
	Secrets SecretSource
	Codec   *secrets.Codec
	Now     func() time.Time
}

func NewIngestService(inbox InboxWriter, secretSource SecretSource, codec *secrets.Codec) *IngestService {
	return &IngestService{Inbox: inbox, Secrets: secretSource, Codec: codec, Now: time.Now}
}

// candidateSecrets decrypts every integration secret that could apply to
// this delivery, plus the platform-wide fallback secret if configured.
// Undecryptable rows are skipped with a log line rather than failing the
// whole delivery.
func (s *IngestService) candidateSecrets(phoneNumberIDs []string) ([]string, error) {
	encrypted, err := s.Secrets.ListAppSecrets(phoneNumberIDs)
	if err != nil {
		return nil, err
	}
	var plain []string
	for _, enc := range encrypted {
		secret, err := s.Codec.Decrypt(enc)
		if err != nil {
			log.Printf("skipping undecryptable app secret: %v", err)
			continue
		}
		plain = append(plain, secret)
	}
	if fallback := os.Getenv("META_APP_SECRET"); fallback != "" {
		plain = append(plain, fallback)
	}
	return plain, nil
}

// Ingest verifies the delivery signature against the raw body, normalizes
// the payload and stores each event exactly once. Returns how many rows were
// new; replayed deliveries insert zero rows and are still a success.
func (s *IngestService) Ingest(rawBody []byte, signatureHeader string) (int, error) {
	phoneNumberIDs := whatsapp.ExtractPhoneNumberIDs(rawBody)
	candidates, err := s.candidateSecrets(phoneNumberIDs)
	if err != nil {
		return 0, err
	}
	if !whatsapp.VerifySignatureAny(rawBody, signatureHeader, candidates) {
		metrics.WebhookAuthFailures.Inc()
		return 0, apperrors.Authentication("webhook signature verification failed")
	}

	events, err := whatsapp.NormalizePayload(rawBody, s.Now().UTC())
	if err != nil {
		return 0, apperrors.Validation("unrecognized webhook payload: %v", err)
	}

	rows := make([]db.InboxEvent, 0, len(events))
	for _, e := range events {
		// The row carries the event's own provider timestamp, not delivery
		// time, so out-of-order redeliveries still drain in event order.
		receivedAt := e.ReceivedAt
		if e.EventType == whatsapp.EventTypeStatus {
			receivedAt = e.Timestamp
		}
		rows = append(rows, db.InboxEvent{
			Provider:      db.ProviderMetaWhatsApp,
			EventType:     e.EventType,
			DedupKey:      whatsapp.DedupKey(e),
			PhoneNumberID: e.PhoneNumberID,
			Payload:       e.Raw,
			ReceivedAt:    receivedAt,
		})
		metrics.WebhookEventsIngested.WithLabelValues(e.EventType).Inc()
	}

	inserted, err := s.Inbox.InsertEvents(rows)
	if err != nil {
		return inserted, err
	}
	if deduped := len(rows) - inserted; deduped > 0 {
		metrics.WebhookEventsDeduped.Add(float64(deduped))
		log.Printf("webhook delivery replayed %d of %d events", deduped, len(rows))
	}
	return inserted, nil
}
