package service

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"turnero/internal/db"
)

// SendAlertEmail delivers an operator email through SendGrid. Missing
// configuration is an error, not a crash; callers decide whether alerting is
// best-effort.
func SendAlertEmail(toEmailAddress, subject, plainTextContent string) error {
	sendgridAPIKey := os.Getenv("SENDGRID_API_KEY")
	if sendgridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is not configured")
	}
	fromEmail := os.Getenv("SENDGRID_FROM_EMAIL")
	if fromEmail == "" {
		return fmt.Errorf("SENDGRID_FROM_EMAIL is not configured")
	}
	fromName := os.Getenv("SENDGRID_FROM_NAME")
	if fromName == "" {
		fromName = "Turnero"
	}

	from := mail.NewEmail(fromName, fromEmail)
	to := mail.NewEmail("", toEmailAddress)
	message := mail.NewSingleEmail(from, subject, to, plainTextContent, "")

	client := sendgrid.NewSendClient(sendgridAPIKey)
	response, err := client.Send(message)
	if err != nil {
		return fmt.Errorf("sending email through SendGrid: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return fmt.Errorf("SendGrid returned status %d: %s", response.StatusCode, response.Body)
	}
	log.Printf("alert email sent to %s (subject: %s)", toEmailAddress, subject)
	return nil
}

// SendAlertSMS delivers an operator SMS through Twilio.
func SendAlertSMS(toNumber, messageBody string) error {
	accountSid := os.Getenv("TWILIO_ACCOUNT_SID")
	authToken := os.Getenv("TWILIO_AUTH_TOKEN")
	fromNumber := os.Getenv("TWILIO_FROM_NUMBER")
	if accountSid == "" || authToken == "" || fromNumber == "" {
		return fmt.Errorf("Twilio credentials are not fully configured")
	}
	if !strings.HasPrefix(toNumber, "+") {
		log.Printf("alert SMS destination %q is not E.164, delivery may fail", toNumber)
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   accountSid,
		Password:   authToken,
		AccountSid: accountSid,
	})

	params := &openapi.CreateMessageParams{}
	params.SetTo(toNumber)
	params.SetFrom(fromNumber)
	params.SetBody(messageBody)

	resp, err := client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("sending SMS through Twilio: %w", err)
	}
	if resp != nil && resp.Sid != nil {
		log.Printf("alert SMS sent to %s, message sid %s", toNumber, *resp.Sid)
	}
	return nil
}

// AlertService notifies operators about events that need a human: webhook
// rows parked as poison. Delivery is best-effort and asynchronous; an alert
// failure is logged and never propagates into event processing.
type AlertService struct {
	OperatorPhone string
	OperatorEmail string
}

func NewAlertService() *AlertService {
	return &AlertService{
		OperatorPhone: os.Getenv("ALERT_OPERATOR_PHONE"),
		OperatorEmail: os.Getenv("ALERT_OPERATOR_EMAIL"),
	}
}

func (s *AlertService) PoisonEvent(event db.InboxEvent) {
	summary := fmt.Sprintf("Webhook event %s (%s) parked after %d attempts. Last error: %s",
		event.ID, event.DedupKey, event.AttemptCount, event.LastError)

	if s.OperatorPhone != "" {
		go func() {
			if err := SendAlertSMS(s.OperatorPhone, summary); err != nil {
				log.Printf("poison alert SMS failed: %v", err)
			}
		}()
	}
	if s.OperatorEmail != "" {
		body := fmt.Sprintf(
			"A webhook event exhausted its retry budget and was parked.\n\n"+
				"Event id: %s\nDedup key: %s\nEvent type: %s\nPhone number id: %s\n"+
				"Attempts: %d\nLast error: %s\nReceived at: %s\n\n"+
				"Inspect it via the admin poison-event listing.",
			event.ID, event.DedupKey, event.EventType, event.PhoneNumberID,
			event.AttemptCount, event.LastError, event.ReceivedAt.UTC().Format("2006-01-02 15:04:05 MST"),
		)
		go func() {
			if err := SendAlertEmail(s.OperatorEmail, "Webhook event parked as poison", body); err != nil {
				log.Printf("poison alert email failed: %v", err)
			}
		}()
	}
	if s.OperatorPhone == "" && s.OperatorEmail == "" {
		log.Printf("no operator alert contacts configured; poison event %s only logged", event.ID)
	}
}
