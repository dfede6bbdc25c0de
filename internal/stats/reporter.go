// Package stats sends a one-shot attach report to an HTTP collector.
// Reporting is best-effort: callers log failures and carry on.
package stats

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Report describes one successful attach.
type Report struct {
	SessionID uuid.UUID
	TargetIP  string
	PID       int
	Version   string
	AgentID   string
	AppName   string
}

// Reporter delivers reports to a collector endpoint.
type Reporter struct {
	endpoint string
	http     *retryablehttp.Client
	logger   *slog.Logger
}

// NewReporter creates a reporter for endpoint with a small retry budget.
func NewReporter(endpoint string, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 2
	retryClient.RetryWaitMin = 200 * time.Millisecond
	retryClient.RetryWaitMax = 2 * time.Second
	retryClient.HTTPClient.Timeout = 5 * time.Second
	retryClient.Logger = nil // suppress default logging

	return &Reporter{
		endpoint: endpoint,
		http:     retryClient,
		logger:   logger,
	}
}

// Send issues GET <endpoint>?ip=&pid=&version=&session=&agentId=&appName=.
// Existing query parameters on the endpoint are kept.
func (r *Reporter) Send(ctx context.Context, rep Report) error {
	target, err := r.reportURL(rep)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("create stats request: %w", err)
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return fmt.Errorf("send stats report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("stats endpoint returned %s", resp.Status)
	}
	r.logger.Debug("stats report sent", "session", rep.SessionID, "status", resp.StatusCode)
	return nil
}

func (r *Reporter) reportURL(rep Report) (string, error) {
	u, err := url.Parse(r.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse stats url %q: %w", r.endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("stats url %q: unsupported scheme %q", r.endpoint, u.Scheme)
	}

	q := u.Query()
	q.Set("ip", rep.TargetIP)
	q.Set("pid", strconv.Itoa(rep.PID))
	q.Set("version", rep.Version)
	q.Set("session", rep.SessionID.String())
	if rep.AgentID != "" {
		q.Set("agentId", rep.AgentID)
	}
	if rep.AppName != "" {
		q.Set("appName", rep.AppName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
