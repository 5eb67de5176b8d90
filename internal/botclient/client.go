package botclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"otpattend/internal/render"
)

// Client pushes rendered code payloads to the external chat-bot delivery
// service. The bot itself is outside this repo; this is the whole coupling
// surface.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client. With skip set, Send becomes a no-op so the service
// runs without a bot in dev.
func New(baseURL string, skip bool) *Client {
	return &Client{
		BaseURL: baseURL,
		Skip:    skip,
		HTTP: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Health probes the bot service.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bot service unhealthy: %s", resp.Status)
	}
	return nil
}

// Send pushes one rendered payload to the bot for delivery.
func (c *Client) Send(ctx context.Context, p render.Payload) error {
	if c.Skip {
		return nil
	}
	body, err := json.Marshal(map[string]any{
		"code":       p.Code,
		"link":       p.Link,
		"qr_png":     base64.StdEncoding.EncodeToString(p.PNG),
		"expires_at": p.ExpiresAt.Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/send", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("bot send failed: %s", resp.Status)
	}
	return nil
}
