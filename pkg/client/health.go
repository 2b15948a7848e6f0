package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
)

// Health queries the configured health URL. The returned map always carries
// "status", "_status_code" and "_ok"; a non-200 answer is reported through
// "_ok" rather than as an error. Health checks never use the cache.
func (t *Transport) Health(ctx context.Context) (map[string]any, error) {
	if t.config.HealthURL == "" {
		return nil, fmt.Errorf("health url is not configured")
	}

	resp, err := t.roundTrip(ctx, t.config.HealthURL, nil)
	if err != nil {
		return nil, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read health response: %w", err)
	}

	return healthPayload(resp, body), nil
}

// healthPayload normalizes a health response body.
func healthPayload(resp *http.Response, body []byte) map[string]any {
	var payload map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = nil
		}
	}
	if payload == nil {
		payload = map[string]any{"status_text": string(body)}
	}

	if _, ok := payload["status"]; !ok {
		if text, ok := payload["status_text"]; ok {
			payload["status"] = text
		} else {
			payload["status"] = "unknown"
		}
	}
	payload["_status_code"] = resp.StatusCode
	payload["_ok"] = resp.StatusCode == http.StatusOK
	return payload
}
