package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

const (
	keepAliveInitialDelay = 30 * time.Second
	keepAliveInterval     = 5 * time.Minute
)

// RunKeepAlive pings the service's own health endpoint so free-tier hosts do
// not idle the instance out. Failures are retried with exponential backoff
// and logged, never fatal. Returns when ctx is canceled.
func RunKeepAlive(ctx context.Context, log *zap.Logger, baseURL string) {
	url := baseURL + "/api/health"
	client := &http.Client{Timeout: 10 * time.Second}
	log.Info("keepalive enabled", zap.String("url", url))

	select {
	case <-ctx.Done():
		return
	case <-time.After(keepAliveInitialDelay):
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		ping := func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return backoff.Permanent(err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return nil
		}

		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		if err := backoff.Retry(ping, policy); err != nil {
			log.Warn("keepalive ping failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
