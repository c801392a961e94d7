package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultGraphBaseURL = "https://graph.facebook.com/v22.0"

// SendResult reports the provider-assigned id of an accepted outbound
// message.
type SendResult struct {
	ProviderMessageID string
}

// Sender is the outbound messaging boundary.
type Sender interface {
	SendText(ctx context.Context, phoneNumberID, accessToken, to, text string) (SendResult, error)
}

// GraphClient sends text messages through the Meta Graph API.
type GraphClient struct {
	HTTP    *http.Client
	BaseURL string
}

func NewGraphClient() *GraphClient {
	return &GraphClient{
		HTTP:    &http.Client{Timeout: 15 * time.Second},
		BaseURL: defaultGraphBaseURL,
	}
}

type sendTextRequest struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             sendText `json:"text"`
}

type sendText struct {
	Body string `json:"body"`
}

type sendTextResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

func (c *GraphClient) SendText(ctx context.Context, phoneNumberID, accessToken, to, text string) (SendResult, error) {
	body, err := json.Marshal(sendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             sendText{Body: text},
	})
	if err != nil {
		return SendResult{}, err
	}

	url := fmt.Sprintf("%s/%s/messages", c.BaseURL, phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return SendResult{}, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return SendResult{}, fmt.Errorf("sending whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return SendResult{}, fmt.Errorf("whatsapp send failed: %d %s", resp.StatusCode, respBody)
	}

	var parsed sendTextResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return SendResult{}, fmt.Errorf("parsing send response: %w", err)
	}

	result := SendResult{}
	if len(parsed.Messages) > 0 {
		result.ProviderMessageID = parsed.Messages[0].ID
	}
	return result, nil
}
