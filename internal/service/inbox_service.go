package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"turnero/internal/conversation"
	"turnero/internal/db"
	"turnero/internal/metrics"
	"turnero/internal/repository"
	"turnero/internal/secrets"
	"turnero/internal/whatsapp"
)

const (
	defaultBatchSize    = 20
	defaultReplyTimeout = 25 * time.Second
)

// InboxStore is the inbox repository surface the processor drains.
type InboxStore interface {
	ListPending(limit int) ([]db.InboxEvent, error)
	MarkProcessed(eventID string, attemptCount int) error
	MarkFailed(eventID string, attemptCount int, lastError string) error
}

// MessagingStore covers thread, message and conversation-state persistence
// plus channel resolution.
type MessagingStore interface {
	ResolveChannelRuntime(phoneNumberID string) (*repository.ChannelRuntime, error)
	UpsertThread(tenantID, clientID, whatsappChannelID string) (string, error)
	InsertInboundMessage(tenantID, threadID, text, providerMessageID string, raw json.RawMessage, receivedAt time.Time) error
	InsertOutboundMessage(tenantID, threadID, text, providerMessageID string, sentAt time.Time) error
	UpdateMessageStatus(providerMessageID, status string, raw json.RawMessage) error
	GetConversationState(tenantID, phoneE164 string) (*db.ConversationState, error)
	UpsertConversationState(state *db.ConversationState) error
}

// ClientStore resolves-or-creates the client behind an inbound phone number.
type ClientStore interface {
	GetOrCreateClient(tenantID, phone, name, email string) (*db.Client, error)
}

// PoisonAlerter is notified once per row parked after exhausting retries.
type PoisonAlerter interface {
	PoisonEvent(event db.InboxEvent)
}

// InboxProcessor drains the webhook inbox: each pending row is handled
// independently, so one bad event never blocks its neighbors. Rows that keep
// failing are parked after the retry budget and surfaced to an operator.
type InboxProcessor struct {
	Inbox        InboxStore
	Messaging    MessagingStore
	Clients      ClientStore
	Codec        *secrets.Codec
	Sender       whatsapp.Sender
	Responder    conversation.Responder
	Alerter      PoisonAlerter
	BatchSize    int
	ReplyTimeout time.Duration
	Now          func() time.Time
}

func NewInboxProcessor(
	inbox InboxStore, messaging MessagingStore, clients ClientStore,
	codec *secrets.Codec, sender whatsapp.Sender, responder conversation.Responder,
	alerter PoisonAlerter,
) *InboxProcessor {
	return &InboxProcessor{
		Inbox:        inbox,
		Messaging:    messaging,
		Clients:      clients,
		Codec:        codec,
		Sender:       sender,
		Responder:    responder,
		Alerter:      alerter,
		BatchSize:    defaultBatchSize,
		ReplyTimeout: defaultReplyTimeout,
		Now:          time.Now,
	}
}

// ProcessBatch handles one poll cycle. Returns how many rows succeeded and
// how many failed this cycle.
func (p *InboxProcessor) ProcessBatch(ctx context.Context) (int, int, error) {
	events, err := p.Inbox.ListPending(p.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("listing pending inbox events: %w", err)
	}

	processed, failed := 0, 0
	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		attempt := event.AttemptCount + 1
		if err := p.processOne(ctx, event); err != nil {
			failed++
			metrics.InboxRowsFailed.Inc()
			log.Printf("inbox event %s (%s) attempt %d failed: %v", event.ID, event.DedupKey, attempt, err)
			if markErr := p.Inbox.MarkFailed(event.ID, attempt, err.Error()); markErr != nil {
				log.Printf("inbox event %s: recording failure: %v", event.ID, markErr)
			}
			if attempt >= repository.MaxRetries {
				metrics.InboxRowsPoisoned.Inc()
				log.Printf("inbox event %s parked after %d attempts", event.ID, attempt)
				if p.Alerter != nil {
					event.AttemptCount = attempt
					event.LastError = err.Error()
					p.Alerter.PoisonEvent(event)
				}
			}
			continue
		}
		processed++
		metrics.InboxRowsProcessed.WithLabelValues(event.EventType).Inc()
		if err := p.Inbox.MarkProcessed(event.ID, attempt); err != nil {
			log.Printf("inbox event %s: recording success: %v", event.ID, err)
		}
	}
	return processed, failed, nil
}

// Run is the cron entrypoint for one poll cycle.
func (p *InboxProcessor) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if _, _, err := p.ProcessBatch(ctx); err != nil {
		log.Printf("inbox poll failed: %v", err)
	}
}

func (p *InboxProcessor) processOne(ctx context.Context, event db.InboxEvent) error {
	switch event.EventType {
	case db.EventTypeMessage:
		return p.processMessage(ctx, event)
	case db.EventTypeStatus:
		return p.processStatus(event)
	default:
		// Unrecognized provider noise is acked without side effects.
		return nil
	}
}

// inboundMessage is the stored raw provider message object, reparsed at
// processing time.
type inboundMessage struct {
	From      string `json:"from"`
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Text      *struct {
		Body string `json:"body"`
	} `json:"text"`
}

type statusUpdate struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func wantsHuman(text string) bool {
	lower := strings.ToLower(text)
	return strings.Contains(lower, "human") || strings.Contains(lower, "real person") ||
		strings.Contains(lower, "speak to someone") || strings.Contains(lower, "operator")
}

func (p *InboxProcessor) processMessage(ctx context.Context, event db.InboxEvent) error {
	var msg inboundMessage
	if err := json.Unmarshal(event.Payload, &msg); err != nil {
		return fmt.Errorf("parsing stored message payload: %w", err)
	}
	if msg.From == "" || msg.ID == "" {
		return fmt.Errorf("stored message payload missing from or id")
	}
	text := ""
	if msg.Text != nil {
		text = msg.Text.Body
	}

	rt, err := p.Messaging.ResolveChannelRuntime(event.PhoneNumberID)
	if err != nil {
		return err
	}
	accessToken, err := p.Codec.Decrypt(rt.TokenEncrypted)
	if err != nil {
		return err
	}

	client, err := p.Clients.GetOrCreateClient(rt.TenantID, msg.From, "", "")
	if err != nil {
		return err
	}
	threadID, err := p.Messaging.UpsertThread(rt.TenantID, client.ID, rt.ChannelID)
	if err != nil {
		return err
	}
	receivedAt := event.ReceivedAt
	if secs, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil && secs > 0 {
		receivedAt = time.Unix(secs, 0).UTC()
	}
	if err := p.Messaging.InsertInboundMessage(rt.TenantID, threadID, text, msg.ID, event.Payload, receivedAt); err != nil {
		return err
	}

	current := conversation.StateNew
	stored, err := p.Messaging.GetConversationState(rt.TenantID, msg.From)
	if err != nil {
		return err
	}
	if stored != nil {
		current = conversation.State(stored.State)
	}
	intent := conversation.DetectIntent(text)
	next := conversation.NextState(conversation.TransitionInput{
		State:    current,
		Intent:   intent,
		Escalate: wantsHuman(text),
	})

	reply := p.reply(ctx, conversation.ReplyInput{
		ThreadID: threadID,
		TenantID: rt.TenantID,
		Text:     text,
		State:    next,
	})
	if reply != "" {
		result, err := p.Sender.SendText(ctx, rt.PhoneNumberID, accessToken, msg.From, reply)
		if err != nil {
			metrics.OutboundMessages.WithLabelValues("error").Inc()
			return fmt.Errorf("sending reply: %w", err)
		}
		metrics.OutboundMessages.WithLabelValues("sent").Inc()
		if err := p.Messaging.InsertOutboundMessage(rt.TenantID, threadID, reply, result.ProviderMessageID, p.Now().UTC()); err != nil {
			return err
		}
	}

	return p.Messaging.UpsertConversationState(&db.ConversationState{
		TenantID:   rt.TenantID,
		ThreadID:   threadID,
		PhoneE164:  msg.From,
		State:      string(next),
		LastIntent: intent,
	})
}

// reply asks the responder for the outbound text under a deadline. Any
// responder failure degrades to the canned fallback so the client is never
// left hanging; the failure is logged, not retried.
func (p *InboxProcessor) reply(ctx context.Context, input conversation.ReplyInput) string {
	if input.State == conversation.StateEscalated {
		return conversation.FallbackReply
	}
	replyCtx, cancel := context.WithTimeout(ctx, p.ReplyTimeout)
	defer cancel()

	text, err := p.Responder.Respond(replyCtx, input)
	if err != nil {
		log.Printf("responder failed for thread %s: %v", input.ThreadID, err)
		return conversation.FallbackReply
	}
	return text
}

// processStatus updates delivery state for a previously sent message. A
// status for a message we never recorded updates nothing; that is a success,
// not a retryable failure.
func (p *InboxProcessor) processStatus(event db.InboxEvent) error {
	var status statusUpdate
	if err := json.Unmarshal(event.Payload, &status); err != nil {
		return fmt.Errorf("parsing stored status payload: %w", err)
	}
	if status.ID == "" || status.Status == "" {
		return fmt.Errorf("stored status payload missing id or status")
	}
	return p.Messaging.UpdateMessageStatus(status.ID, status.Status, event.Payload)
}
