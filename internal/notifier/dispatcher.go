package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPDispatcher delivers notifications through an external gateway's REST
// API. Push and normal messages go to separate endpoints.
type HTTPDispatcher struct {
	baseURL string
	client  *http.Client
}

func NewHTTPDispatcher(baseURL string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type dispatchPayload struct {
	MSISDN  string `json:"msisdn"`
	Message string `json:"message"`
}

func (d *HTTPDispatcher) SendPush(ctx context.Context, msisdn, message string) error {
	return d.post(ctx, d.baseURL + "/push", msisdn, message)
}

func (d *HTTPDispatcher) SendNormal(ctx context.Context, msisdn, message string) error {
	return d.post(ctx, d.baseURL + "/messages", msisdn, message)
}

func (d *HTTPDispatcher) post(ctx context.Context, url, msisdn, message string) error {
	body, err := json.Marshal(dispatchPayload{MSISDN: msisdn, Message: message})
	if err != nil {
		return fmt.Errorf("couldn't marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("couldn't create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	return nil
}
