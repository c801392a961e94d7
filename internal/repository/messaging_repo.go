package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"turnero/internal/db"
	apperrors "turnero/internal/errors"
)

// ChannelRuntime is everything the processor needs to act on behalf of the
// tenant owning a phone number id. The access token is still encrypted.
type ChannelRuntime struct {
	TenantID       string
	ChannelID      string
	PhoneNumberID  string
	TokenEncrypted string
}

type MessagingRepository struct {
	DB *sql.DB
}

func NewMessagingRepository(database *sql.DB) *MessagingRepository {
	return &MessagingRepository{DB: database}
}

// ResolveChannelRuntime maps a provider phone number id to its active
// channel and integration. Unknown or inactive channels are a not-found
// error; the processor treats that as retryable since activation may lag.
func (r *MessagingRepository) ResolveChannelRuntime(phoneNumberID string) (*ChannelRuntime, error) {
	var rt ChannelRuntime
	query := `
		SELECT c.tenant_id, c.id, c.phone_number_id, COALESCE(i.system_user_token_encrypted, '')
		FROM whatsapp_channels c
		JOIN whatsapp_integrations i ON i.id = c.integration_id AND i.tenant_id = c.tenant_id
		WHERE c.phone_number_id = $1 AND c.is_active = TRUE AND i.status = 'active'`
	err := r.DB.QueryRow(query, phoneNumberID).Scan(&rt.TenantID, &rt.ChannelID, &rt.PhoneNumberID, &rt.TokenEncrypted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperrors.NotFound("no active channel for phone number id %s", phoneNumberID)
		}
		return nil, fmt.Errorf("error resolving channel runtime: %w", err)
	}
	if rt.TokenEncrypted == "" {
		return nil, apperrors.NotFound("channel %s has no access token configured", rt.ChannelID)
	}
	return &rt, nil
}

// ListAppSecrets returns the encrypted app secrets of every active
// integration whose channel matches one of the phone number ids. Used to
// build the signature-verification candidate pool.
func (r *MessagingRepository) ListAppSecrets(phoneNumberIDs []string) ([]string, error) {
	if len(phoneNumberIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT DISTINCT COALESCE(i.meta_app_secret_encrypted, '')
		FROM whatsapp_channels c
		JOIN whatsapp_integrations i ON i.id = c.integration_id AND i.tenant_id = c.tenant_id
		WHERE c.phone_number_id = ANY($1) AND c.is_active = TRUE AND i.status = 'active'`
	rows, err := r.DB.Query(query, pq.Array(phoneNumberIDs))
	if err != nil {
		return nil, fmt.Errorf("error querying integration secrets: %w", err)
	}
	defer rows.Close()

	var secrets []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("error scanning integration secret: %w", err)
		}
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets, rows.Err()
}

// UpsertThread finds or creates the open thread for (tenant, channel,
// client), keyed by the (tenant, channel, client) uniqueness constraint.
func (r *MessagingRepository) UpsertThread(tenantID, clientID, whatsappChannelID string) (string, error) {
	var threadID string
	query := `
		INSERT INTO message_threads (id, tenant_id, channel, client_id, whatsapp_channel_id, status)
		VALUES ($1, $2, 'whatsapp', $3, $4, 'open')
		ON CONFLICT (tenant_id, channel, client_id)
		DO UPDATE SET whatsapp_channel_id = EXCLUDED.whatsapp_channel_id, updated_at = NOW()
		RETURNING id`
	err := r.DB.QueryRow(query, newID(), tenantID, clientID, whatsappChannelID).Scan(&threadID)
	if err != nil {
		return "", fmt.Errorf("error upserting thread: %w", err)
	}
	return threadID, nil
}

// InsertInboundMessage persists an inbound message idempotently on the
// provider message id. Redundant inserts are silently absorbed.
func (r *MessagingRepository) InsertInboundMessage(tenantID, threadID, text, providerMessageID string, raw json.RawMessage, receivedAt time.Time) error {
	query := `
		INSERT INTO messages
		(id, tenant_id, thread_id, direction, text, provider_message_id, raw_payload, delivery_status, received_at)
		VALUES ($1, $2, $3, 'inbound', $4, $5, $6, 'received', $7)
		ON CONFLICT (provider_message_id) DO NOTHING`
	if _, err := r.DB.Exec(query, newID(), tenantID, threadID, text, providerMessageID, raw, receivedAt); err != nil {
		return fmt.Errorf("error inserting inbound message: %w", err)
	}
	return nil
}

func (r *MessagingRepository) InsertOutboundMessage(tenantID, threadID, text, providerMessageID string, sentAt time.Time) error {
	query := `
		INSERT INTO messages
		(id, tenant_id, thread_id, direction, text, provider_message_id, delivery_status, sent_at)
		VALUES ($1, $2, $3, 'outbound', $4, NULLIF($5, ''), 'sent', $6)`
	if _, err := r.DB.Exec(query, newID(), tenantID, threadID, text, providerMessageID, sentAt); err != nil {
		return fmt.Errorf("error inserting outbound message: %w", err)
	}
	return nil
}

// ListThreads returns a tenant's message threads, most recently updated
// first.
func (r *MessagingRepository) ListThreads(tenantID string) ([]db.MessageThread, error) {
	query := `
		SELECT id, tenant_id, channel, client_id, COALESCE(whatsapp_channel_id::text, ''), status
		FROM message_threads
		WHERE tenant_id = $1
		ORDER BY updated_at DESC`
	rows, err := r.DB.Query(query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("error listing threads: %w", err)
	}
	defer rows.Close()

	var threads []db.MessageThread
	for rows.Next() {
		var th db.MessageThread
		if err := rows.Scan(&th.ID, &th.TenantID, &th.Channel, &th.ClientID, &th.WhatsAppChannelID, &th.Status); err != nil {
			return nil, fmt.Errorf("error scanning thread: %w", err)
		}
		threads = append(threads, th)
	}
	return threads, rows.Err()
}

// ListMessages returns a thread's messages in chronological order.
func (r *MessagingRepository) ListMessages(tenantID, threadID string) ([]db.Message, error) {
	query := `
		SELECT id, tenant_id, thread_id, direction, COALESCE(text, ''),
		       COALESCE(provider_message_id, ''), COALESCE(delivery_status, ''),
		       received_at, sent_at
		FROM messages
		WHERE tenant_id = $1 AND thread_id = $2
		ORDER BY created_at`
	rows, err := r.DB.Query(query, tenantID, threadID)
	if err != nil {
		return nil, fmt.Errorf("error listing messages: %w", err)
	}
	defer rows.Close()

	var messages []db.Message
	for rows.Next() {
		var m db.Message
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ThreadID, &m.Direction, &m.Text,
			&m.ProviderMessageID, &m.DeliveryStatus, &m.ReceivedAt, &m.SentAt); err != nil {
			return nil, fmt.Errorf("error scanning message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// UpdateMessageStatus sets the delivery status for the message matching a
// provider message id. A status for a message that has not landed yet
// updates zero rows; that is not an error.
func (r *MessagingRepository) UpdateMessageStatus(providerMessageID, status string, raw json.RawMessage) error {
	query := `
		UPDATE messages
		SET delivery_status = $2, raw_payload = $3, updated_at = NOW()
		WHERE provider_message_id = $1`
	if _, err := r.DB.Exec(query, providerMessageID, status, raw); err != nil {
		return fmt.Errorf("error updating message status: %w", err)
	}
	return nil
}

// GetConversationState returns the per-(tenant, phone) state row, or nil
// when the client has no conversation yet.
func (r *MessagingRepository) GetConversationState(tenantID, phoneE164 string) (*db.ConversationState, error) {
	var cs db.ConversationState
	query := `
		SELECT tenant_id, thread_id, phone_e164, state, context_jsonb, COALESCE(last_intent, '')
		FROM conversation_state
		WHERE tenant_id = $1 AND phone_e164 = $2`
	err := r.DB.QueryRow(query, tenantID, phoneE164).Scan(
		&cs.TenantID, &cs.ThreadID, &cs.PhoneE164, &cs.State, &cs.Context, &cs.LastIntent,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("error querying conversation state: %w", err)
	}
	return &cs, nil
}

// UpsertConversationState overwrites the singleton row for (tenant, phone).
// Concurrent turns for the same client serialize through this upsert,
// last write wins.
func (r *MessagingRepository) UpsertConversationState(state *db.ConversationState) error {
	context := state.Context
	if len(context) == 0 {
		context = json.RawMessage(`{}`)
	}
	query := `
		INSERT INTO conversation_state (tenant_id, thread_id, phone_e164, state, context_jsonb, last_intent)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		ON CONFLICT (tenant_id, phone_e164)
		DO UPDATE SET thread_id = EXCLUDED.thread_id, state = EXCLUDED.state,
		              context_jsonb = EXCLUDED.context_jsonb, last_intent = EXCLUDED.last_intent,
		              updated_at = NOW()`
	if _, err := r.DB.Exec(query, state.TenantID, state.ThreadID, state.PhoneE164, state.State, context, state.LastIntent); err != nil {
		return fmt.Errorf("error upserting conversation state: %w", err)
	}
	return nil
}
