package cttso_pieriandx_gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const slackTimeout = 60 * time.Second

// NotifyViaSlack posts an operator alert to the configured incoming-webhook
// URL. Alerts are best effort: callers log a failed notification and move on.
func NotifyViaSlack(ctx context.Context, message, slackURL string) error {

	slackCtx, cancel := context.WithTimeout(ctx, slackTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"text": message})
	if err != nil {
		return fmt.Errorf("Failed to encode Slack message: %v", err)
	}

	req, err := http.NewRequestWithContext(slackCtx, http.MethodPost, slackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("Failed to notify Slack: webhook returned %s", resp.Status)
	}
	return nil
}
