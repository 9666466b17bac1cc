// Package remote fetches usage records from an HTTP records service.
//
// The service is queried with
//
//	GET {base}/usage?user_id=..&provider_id=..&start=RFC3339&end=RFC3339
//
// and answers with {"records": [...]} where each record is a usage.Record in
// its JSON form.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gopkg.in/resty.v1"

	"github.com/xraph/finance/usage"
)

// compile-time interface check
var _ usage.Source = (*Source)(nil)

// Config configures the client.
type Config struct {
	BaseURL    string        `json:"base_url" yaml:"base_url" mapstructure:"base_url"`
	Token      string        `json:"token" yaml:"token" mapstructure:"token"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	RetryCount int           `json:"retry_count" yaml:"retry_count" mapstructure:"retry_count"`
}

type response struct {
	Records []usage.Record `json:"records"`
}

// Source is a usage.Source backed by the records service.
type Source struct {
	client *resty.Client
}

// New creates a Source for cfg.
func New(cfg Config) *Source {
	client := resty.New().
		SetHostURL(cfg.BaseURL).
		SetHeader("Accept", "application/json")
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.RetryCount > 0 {
		client.SetRetryCount(cfg.RetryCount)
	}
	if cfg.Token != "" {
		client.SetAuthToken(cfg.Token)
	}
	return &Source{client: client}
}

// UsageRecords queries the service for the records of one user.
func (s *Source) UsageRecords(ctx context.Context, userID, providerID string, start, end time.Time) ([]usage.Record, error) {
	var out response
	resp, err := s.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"user_id":     userID,
			"provider_id": providerID,
			"start":       start.UTC().Format(time.RFC3339Nano),
			"end":         end.UTC().Format(time.RFC3339Nano),
		}).
		SetResult(&out).
		Get("/usage")
	if err != nil {
		return nil, fmt.Errorf("usage/remote: request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("usage/remote: unexpected status %d: %s", resp.StatusCode(), string(resp.Body()))
	}
	return out.Records, nil
}
