package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"turnero/internal/db"
)

type fakeThreadLister struct {
	threads  []db.MessageThread
	messages []db.Message

	messagesTenant string
	messagesThread string
}

func (f *fakeThreadLister) ListThreads(tenantID string) ([]db.MessageThread, error) {
	return f.threads, nil
}

func (f *fakeThreadLister) ListMessages(tenantID, threadID string) ([]db.Message, error) {
	f.messagesTenant = tenantID
	f.messagesThread = threadID
	return f.messages, nil
}

func TestListThreadsRequiresTenant(t *testing.T) {
	h := NewAdminHandler(nil, nil, &fakeThreadLister{})

	rec := httptest.NewRecorder()
	h.ListThreads(rec, httptest.NewRequest(http.MethodGet, "/admin/threads", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListThreadsReturnsTenantThreads(t *testing.T) {
	lister := &fakeThreadLister{threads: []db.MessageThread{
		{ID: "thread-1", TenantID: "tenant-1", Channel: "whatsapp", ClientID: "client-1", Status: "open"},
	}}
	h := NewAdminHandler(nil, nil, lister)

	rec := httptest.NewRecorder()
	h.ListThreads(rec, httptest.NewRequest(http.MethodGet, "/admin/threads?tenant_id=tenant-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var threads []db.MessageThread
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &threads))
	require.Len(t, threads, 1)
	require.Equal(t, "thread-1", threads[0].ID)
}

func TestListThreadMessagesUsesPathThreadID(t *testing.T) {
	lister := &fakeThreadLister{messages: []db.Message{
		{ID: "msg-1", ThreadID: "thread-1", Direction: db.MessageDirectionInbound, Text: "hola"},
	}}
	h := NewAdminHandler(nil, nil, lister)

	r := mux.NewRouter()
	r.HandleFunc("/admin/threads/{id}/messages", h.ListThreadMessages).Methods("GET")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/threads/thread-1/messages?tenant_id=tenant-1", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "tenant-1", lister.messagesTenant)
	require.Equal(t, "thread-1", lister.messagesThread)
	var messages []db.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &messages))
	require.Len(t, messages, 1)
	require.Equal(t, "hola", messages[0].Text)
}
