package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/zapgatehq/zapgate/internal/circuitbreaker"
)

// Credentials is a decrypted routing key and send token for one call.
type Credentials struct {
	PhoneNumberID string
	AccessToken   string
}

// Client dispatches messages through the WhatsApp Cloud API. Success
// or failure is this collaborator's concern; callers treat a returned
// error as "this unit of work did not complete" and never crash on it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	logger     *zap.Logger
}

// ClientConfig holds dispatch client settings.
type ClientConfig struct {
	BaseURL string        // Graph API base (default https://graph.facebook.com/v19.0)
	Timeout time.Duration // per-call HTTP timeout
}

// NewClient creates a dispatch client. The circuit breaker is
// optional; without one every call goes straight to the provider.
func NewClient(cfg ClientConfig, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// SendText delivers one text message to a recipient phone number.
func (c *Client) SendText(ctx context.Context, creds Credentials, toPhone, body string) error {
	if c.breaker != nil && !c.breaker.Allow() {
		c.logger.Warn("dispatch rejected by circuit breaker",
			zap.String("state", c.breaker.GetState().String()),
		)
		return fmt.Errorf("%w: whatsapp dispatch unavailable", circuitbreaker.ErrCircuitOpen)
	}

	err := c.sendText(ctx, creds, toPhone, body)
	if c.breaker != nil {
		if err != nil {
			c.breaker.RecordFailure()
		} else {
			c.breaker.RecordSuccess()
		}
	}

	return err
}

func (c *Client) sendText(ctx context.Context, creds Credentials, toPhone, body string) error {
	payload := SendMessageRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               toPhone,
		Type:             "text",
		Text:             TextContent{Body: body},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read send response: %w", err)
	}

	var sendResp SendMessageResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		// Non-JSON bodies still carry the status code.
		sendResp = SendMessageResponse{}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if sendResp.Error != nil {
			return fmt.Errorf("provider rejected send: %s (%s, code %d)",
				sendResp.Error.Message, sendResp.Error.Type, sendResp.Error.Code)
		}
		return fmt.Errorf("provider returned non-2xx status: %d", resp.StatusCode)
	}

	providerMessageID := ""
	if len(sendResp.Messages) > 0 {
		providerMessageID = sendResp.Messages[0].ID
	}

	c.logger.Info("message dispatched",
		zap.String("phone_number_id", creds.PhoneNumberID),
		zap.String("provider_message_id", providerMessageID),
		zap.Int("status_code", resp.StatusCode),
	)

	return nil
}
