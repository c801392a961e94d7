package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"turnero/internal/db"
	"turnero/internal/entities"
	"turnero/internal/service"
)

// PoisonLister exposes inbox rows parked after exhausting retries.
type PoisonLister interface {
	ListPoison(limit int) ([]db.InboxEvent, error)
}

// ThreadLister exposes a tenant's conversation history.
type ThreadLister interface {
	ListThreads(tenantID string) ([]db.MessageThread, error)
	ListMessages(tenantID, threadID string) ([]db.Message, error)
}

type AdminHandler struct {
	Booking *service.BookingService
	Inbox   PoisonLister
	Threads ThreadLister
}

func NewAdminHandler(booking *service.BookingService, inbox PoisonLister, threads ThreadLister) *AdminHandler {
	return &AdminHandler{Booking: booking, Inbox: inbox, Threads: threads}
}

// timeWindow parses the optional from/to query params, defaulting to the
// next 30 days.
func timeWindow(r *http.Request) (time.Time, time.Time, bool) {
	from := time.Now().UTC()
	to := from.AddDate(0, 0, 30)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, false
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, false
		}
		to = parsed
	}
	return from, to, true
}

func (h *AdminHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	from, to, ok := timeWindow(r)
	if !ok {
		http.Error(w, "Invalid time window", http.StatusBadRequest)
		return
	}
	appointments, err := h.Booking.ListAppointments(tenantID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointments)
}

func (h *AdminHandler) ListPoisonEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 500 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	events, err := h.Inbox.ListPoison(limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []db.InboxEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

func (h *AdminHandler) ListThreads(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	threads, err := h.Threads.ListThreads(tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	if threads == nil {
		threads = []db.MessageThread{}
	}
	writeJSON(w, http.StatusOK, threads)
}

func (h *AdminHandler) ListThreadMessages(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	threadID := mux.Vars(r)["id"]
	messages, err := h.Threads.ListMessages(tenantID, threadID)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []db.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *AdminHandler) CreateBusyBlock(w http.ResponseWriter, r *http.Request) {
	var req entities.BusyBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	block, err := h.Booking.CreateBusyBlock(req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, block)
}

func (h *AdminHandler) DeleteBusyBlock(w http.ResponseWriter, r *http.Request) {
	blockID := mux.Vars(r)["id"]
	tenantID := r.URL.Query().Get("tenant_id")
	if err := h.Booking.DeleteBusyBlock(tenantID, blockID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *AdminHandler) ListBusyBlocks(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	from, to, ok := timeWindow(r)
	if !ok {
		http.Error(w, "Invalid time window", http.StatusBadRequest)
		return
	}
	blocks, err := h.Booking.ListBusyBlocks(tenantID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, blocks)
}
