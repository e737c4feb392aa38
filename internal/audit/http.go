package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/withObsrvr/obsrvr-meme-minter/internal/logging"
	"github.com/withObsrvr/obsrvr-meme-minter/internal/retry"
)

// httpPoster sends events to an HTTP endpoint.
type httpPoster struct {
	endpoint string
	client   *http.Client
	policy   retry.Policy
	sleeper  retry.Sleeper
	logger   *slog.Logger
}

func newHTTPPoster(cfg Config) *httpPoster {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.Exponential(3, time.Second, 4*time.Second)
	}
	return &httpPoster{
		endpoint: cfg.Endpoint,
		client:   client,
		policy:   policy,
		sleeper:  cfg.Sleeper,
		logger:   logging.Component("audit"),
	}
}

// post sends evt, retrying transport errors and 5xx responses.
func (p *httpPoster) post(ctx context.Context, evt *Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	attempts, err := retry.Do(ctx, p.policy, p.sleeper, func(attempt int) error {
		err := p.postOnce(ctx, body)
		if err != nil {
			p.logger.Warn("audit post failed", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("after %d attempts: %w", attempts, err)
	}
	return nil
}

func (p *httpPoster) postOnce(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		p.logger.Debug("audit event posted", "endpoint", p.endpoint, "status", resp.StatusCode)
		return nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	err = fmt.Errorf("http %d: %s", resp.StatusCode, string(respBody))
	if resp.StatusCode < 500 {
		return retry.Permanent(err)
	}
	return err
}
