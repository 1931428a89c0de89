package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SMSClient sends SMS through the Africa's Talking messaging API.
type SMSClient struct {
	baseURL  string
	username string
	apiKey   string
	sender   string
	client   *http.Client
	log      zerolog.Logger
}

// NewSMSClient builds the SMS client. With empty credentials every
// send fails, which the dispatcher records as a failed delivery.
func NewSMSClient(baseURL, username, apiKey, sender string, log zerolog.Logger) *SMSClient {
	return &SMSClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiKey:   apiKey,
		sender:   sender,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With().Str("component", "sms").Logger(),
	}
}

// Configured reports whether credentials are present.
func (c *SMSClient) Configured() bool {
	return c.username != "" && c.apiKey != ""
}

type smsResponse struct {
	SMSMessageData struct {
		Recipients []struct {
			Number string `json:"number"`
			Status string `json:"status"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

// SendSMS sends one message to one phone number.
func (c *SMSClient) SendSMS(ctx context.Context, phone, message string) error {
	if !c.Configured() {
		return fmt.Errorf("sms gateway not configured")
	}

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("to", phone)
	form.Set("message", message)
	if c.sender != "" {
		form.Set("from", c.sender)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/version1/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apiKey", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	var parsed smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("decoding sms response: %w", err)
	}
	for _, r := range parsed.SMSMessageData.Recipients {
		if !strings.EqualFold(r.Status, "Success") {
			return fmt.Errorf("sms to %s rejected: %s", r.Number, r.Status)
		}
	}

	c.log.Debug().Str("to", phone).Msg("sms sent")
	return nil
}
