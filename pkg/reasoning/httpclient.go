package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/growthlabs/campaignd/pkg/apperr"
)

// HTTPClient implements Service against an external reasoning endpoint over
// plain HTTP/JSON. It stands in for the teacher's grpc-backed LLM client:
// the generated protobuf stubs that client depended on have no source of
// truth in this module, so the boundary is re-expressed as a JSON POST per
// operation instead (see SPEC_FULL.md's DOMAIN STACK table).
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewHTTPClient builds a client against baseURL (e.g. "http://reasoning:8090").
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

func (c *HTTPClient) Context(ctx context.Context, req ContextRequest) (ContextResult, error) {
	var out ContextResult
	err := c.post(ctx, "/v1/context", req, &out)
	return out, err
}

func (c *HTTPClient) Strategy(ctx context.Context, req StrategyRequest) (StrategyResult, error) {
	var out StrategyResult
	err := c.post(ctx, "/v1/strategy", req, &out)
	return out, err
}

func (c *HTTPClient) Forensics(ctx context.Context, req ForensicsRequest) (ForensicsResult, error) {
	var out ForensicsResult
	err := c.post(ctx, "/v1/forensics", req, &out)
	return out, err
}

func (c *HTTPClient) Planner(ctx context.Context, req PlannerRequest) (PlannerResult, error) {
	var out PlannerResult
	err := c.post(ctx, "/v1/planner", req, &out)
	return out, err
}

func (c *HTTPClient) Content(ctx context.Context, req ContentRequest) (ContentResult, error) {
	var out ContentResult
	err := c.post(ctx, "/v1/content", req, &out)
	return out, err
}

func (c *HTTPClient) Outcome(ctx context.Context, req OutcomeRequest) (OutcomeResult, error) {
	var out OutcomeResult
	err := c.post(ctx, "/v1/outcome", req, &out)
	return out, err
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal reasoning request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build reasoning request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apperr.NewTransientDependencyError(fmt.Errorf("reasoning request to %s failed: %w", path, err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return apperr.NewTransientDependencyError(fmt.Errorf("reasoning endpoint %s returned %d: %s", path, resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode >= 400 {
		return apperr.NewPermanentDependencyError(fmt.Errorf("reasoning endpoint %s returned %d: %s", path, resp.StatusCode, string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return apperr.NewPermanentDependencyError(fmt.Errorf("decode reasoning response from %s: %w", path, err))
	}
	return nil
}
