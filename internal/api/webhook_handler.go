package api

import (
	"io"
	"log"
	"net/http"
	"os"

	apperrors "turnero/internal/errors"
	"turnero/internal/service"
)

// WebhookHandler is the synchronous edge of the message pipeline: verify the
// subscription on GET, authenticate and persist deliveries on POST. All
// processing happens later off the inbox, so the provider gets a fast 200.
type WebhookHandler struct {
	Ingest *service.IngestService
}

func NewWebhookHandler(ingest *service.IngestService) *WebhookHandler {
	return &WebhookHandler{Ingest: ingest}
}

// Verify answers the provider's one-time GET subscription handshake by
// echoing hub.challenge when the verify token matches.
func (h *WebhookHandler) Verify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	expected := os.Getenv("META_VERIFY_TOKEN")
	if mode != "subscribe" || expected == "" || token != expected {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// Receive authenticates one delivery against the raw body and stores its
// events. Replays return 200 with zero new rows; only a bad signature or a
// storage failure is an error.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	inserted, err := h.Ingest.Ingest(body, r.Header.Get("X-Hub-Signature-256"))
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindAuthentication) {
			log.Printf("webhook delivery rejected: %v", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stored": inserted})
}
