package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fyrsmithlabs/finplan/internal/jobs"
)

// Transport talks to a job service.
type Transport interface {
	Submit(ctx context.Context, typ string, data json.RawMessage) (string, error)
	Status(ctx context.Context, id string) (jobs.JobStatus, error)
	Cancel(ctx context.Context, id string) error
}

// HTTPTransport speaks the finplan job API.
type HTTPTransport struct {
	baseURL string
	client  *http.Client
}

// NewHTTPTransport creates a transport for baseURL. A nil client gets a
// client with a 30s timeout.
func NewHTTPTransport(baseURL string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

func (t *HTTPTransport) Submit(ctx context.Context, typ string, data json.RawMessage) (string, error) {
	body, err := json.Marshal(jobs.SubmitRequest{Type: typ, Data: data})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	var out jobs.SubmitResponse
	if err := t.do(ctx, http.MethodPost, "/api/v1/jobs", body, http.StatusAccepted, &out); err != nil {
		return "", err
	}
	if out.JobID == "" {
		return "", fmt.Errorf("job service returned no job id")
	}
	return out.JobID, nil
}

func (t *HTTPTransport) Status(ctx context.Context, id string) (jobs.JobStatus, error) {
	var out jobs.JobStatus
	err := t.do(ctx, http.MethodGet, "/api/v1/jobs/"+url.PathEscape(id), nil, http.StatusOK, &out)
	return out, err
}

func (t *HTTPTransport) Cancel(ctx context.Context, id string) error {
	return t.do(ctx, http.MethodPost, "/api/v1/jobs/"+url.PathEscape(id)+"/cancel", nil, http.StatusNoContent, nil)
}

func (t *HTTPTransport) do(ctx context.Context, method, path string, body []byte, want int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody jobs.ErrorResponse
		if json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&errBody) == nil {
			apiErr.Message = errBody.Error
		}
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%w: %w", jobs.ErrJobNotFound, apiErr)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
