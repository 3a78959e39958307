// Package telemetryapi posts telemetry events to a remote collection
// endpoint.
package telemetryapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"edittrack/logger"
	"edittrack/telemetry"

	"github.com/andybalholm/brotli"
)

// DefaultTimeout bounds a single event POST.
const DefaultTimeout = 10 * time.Second

// eventPayload is the wire format for one event.
type eventPayload struct {
	EventName string           `json:"event_name"`
	DeviceID  string           `json:"device_id"`
	Timestamp int64            `json:"timestamp"` // Unix epoch milliseconds
	Fields    telemetry.Fields `json:"fields"`
}

// Client posts events over HTTP. It implements telemetry.Sink; send
// failures are logged and dropped, since retry belongs to the collection
// service's own contract, not this client.
type Client struct {
	HTTPClient *http.Client
	URL        string
	AuthToken  string
}

// NewClient creates a client for the given endpoint.
func NewClient(url, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		URL:        url,
		AuthToken:  authToken,
	}
}

// Send implements telemetry.Sink.
func (c *Client) Send(ctx context.Context, event telemetry.Event) {
	if err := c.post(ctx, event); err != nil {
		logger.Warn("telemetryapi: failed to send %s: %v", event.Name, err)
	}
}

func (c *Client) post(ctx context.Context, event telemetry.Event) error {
	defer logger.Trace("telemetryapi.post")()

	payload := eventPayload{
		EventName: event.Name,
		DeviceID:  event.DeviceID,
		Timestamp: event.Timestamp.UnixMilli(),
		Fields:    event.Fields,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// Compress with brotli (quality 1 for speed)
	var compressed bytes.Buffer
	bw := brotli.NewWriterLevel(&compressed, 1)
	if _, err := bw.Write(jsonData); err != nil {
		return fmt.Errorf("failed to compress event: %w", err)
	}
	if err := bw.Close(); err != nil {
		return fmt.Errorf("failed to close brotli writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.URL, &compressed)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Content-Encoding", "br")
	if c.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.AuthToken)
	}

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
