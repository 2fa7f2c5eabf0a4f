package reports

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/oftrelay/covertchan/oflog"
)

// HTTPFetcherConfig configures an HTTPFetcher.
type HTTPFetcherConfig struct {
	// Endpoint is the reports service's fetch URL.
	Endpoint string
	// HTTPClient is reused across requests if set; when it is nil,
	// NewHTTPFetcher builds its own with a 10-second timeout.
	HTTPClient *http.Client
	// MaxElapsedTime bounds how long the retry loop may run for a
	// single FetchAndDecrypt call before giving up.
	MaxElapsedTime time.Duration
}

// HTTPFetcher is a production Fetcher backed by an HTTP reports
// service, rate-limited and retried the way the teacher's device
// package rate-limits handshake attempts and the manager package
// retries dial attempts (see DESIGN.md).
type HTTPFetcher struct {
	cfg     HTTPFetcherConfig
	client  *http.Client
	limiter *RateLimiter[string]
	log     *oflog.Logger
}

// NewHTTPFetcher builds an HTTPFetcher against cfg.
func NewHTTPFetcher(cfg HTTPFetcherConfig, log *oflog.Logger) *HTTPFetcher {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if log == nil {
		log = oflog.NewDiscard()
	}
	return &HTTPFetcher{
		cfg:     cfg,
		client:  client,
		limiter: NewRateLimiter[string](),
		log:     log,
	}
}

type wireRequest struct {
	RequestID string   `json:"requestId"`
	Ids       []string `json:"ids"`
}

type wireReport struct {
	ID      string `json:"id"`
	Payload struct {
		Location struct {
			Status byte `json:"status"`
		} `json:"location"`
	} `json:"payload"`
}

// FetchAndDecrypt posts the window's ids to the reports service and
// decodes whatever it reports back. A 4xx response is treated as
// permanent (retrying won't help a malformed or rejected request); a
// network error or 5xx is retried with exponential backoff, per
// spec.md §6's "fetch failure is fatal to the call, not silently
// ignored" rule — callers still see the final error if retries are
// exhausted.
func (f *HTTPFetcher) FetchAndDecrypt(ctx context.Context, pairs []KeyIDPair) ([]Report, error) {
	if err := f.limiter.Wait(ctx, f.cfg.Endpoint); err != nil {
		return nil, err
	}

	ids := make([]string, len(pairs))
	byID := make(map[string][32]byte, len(pairs))
	for i, p := range pairs {
		enc := base64.StdEncoding.EncodeToString(p.ID[:])
		ids[i] = enc
		byID[enc] = p.ID
	}

	reqBody, err := json.Marshal(wireRequest{
		RequestID: uuid.NewString(),
		Ids:       ids,
	})
	if err != nil {
		return nil, fmt.Errorf("reports: encode request: %w", err)
	}

	var wireReports []wireReport

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.Endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("reports: build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := f.client.Do(req)
		if err != nil {
			f.log.Verbosef("reports: fetch attempt failed: %v", err)
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("reports: server error %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return backoff.Permanent(fmt.Errorf("reports: request rejected: %d: %s", resp.StatusCode, body))
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("reports: unexpected redirect status %d", resp.StatusCode))
		}

		wireReports = nil
		if err := json.Unmarshal(body, &wireReports); err != nil {
			return backoff.Permanent(fmt.Errorf("reports: decode response: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	if f.cfg.MaxElapsedTime > 0 {
		bo.MaxElapsedTime = f.cfg.MaxElapsedTime
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, fmt.Errorf("reports: fetch: %w", err)
	}

	out := make([]Report, 0, len(wireReports))
	for _, wr := range wireReports {
		id, ok := byID[wr.ID]
		if !ok {
			decoded, err := base64.StdEncoding.DecodeString(wr.ID)
			if err != nil || len(decoded) != 32 {
				f.log.Verbosef("reports: dropping report with unrecognized id %q", wr.ID)
				continue
			}
			copy(id[:], decoded)
		}
		out = append(out, Report{
			ID:      id,
			Payload: ReportPayload{Location: LocationPayload{Status: wr.Payload.Location.Status}},
		})
	}
	return out, nil
}
