package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPConfig configures the remote HTTP-API provider.
type HTTPConfig struct {
	ProviderID string
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	Limits     Limits
	HTTPClient *http.Client
}

// HTTPProvider implements Provider against a remote HTTP embedding API:
// POST {base_url}/embeddings with {model, input: [texts...]}, expecting
// {data: [{embedding: [...]}, ...]}.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

var _ Provider = (*HTTPProvider)(nil)

// NewHTTPProvider constructs a remote HTTP provider. cfg.Dimension must be
// known up front; unlike the teacher's Ollama adapter this provider does
// not probe for dimension, since the wire protocol gives no cheap way to
// ask without first paying for an embedding call.
func NewHTTPProvider(cfg HTTPConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embed: HTTPProvider requires a base URL")
	}
	if cfg.Limits.MaxBatchSize <= 0 {
		cfg.Limits.MaxBatchSize = 32
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPProvider{cfg: cfg, client: client}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingDatum struct {
	Embedding []float32 `json:"embedding"`
}

type embeddingResponse struct {
	Data []embeddingDatum `json:"data"`
}

func (p *HTTPProvider) ID() string        { return p.cfg.ProviderID }
func (p *HTTPProvider) Dimension() int    { return p.cfg.Dimension }
func (p *HTTPProvider) ModelID() string   { return p.cfg.Model }
func (p *HTTPProvider) Limits() Limits    { return p.cfg.Limits }

// Embed sends one request per call; the embedding pipeline (C6) owns
// batch sizing, so a provider never re-batches internally.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Failure{Kind: FailureNetwork, Message: "request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &Failure{Kind: FailureRateLimit, Message: "rate limited", RetryAfterMS: parseRetryAfterMS(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &Failure{Kind: FailureAuth, Message: "authentication failed"}
	case resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &Failure{Kind: FailureProvider, Message: fmt.Sprintf("server error %d: %s", resp.StatusCode, string(respBody))}
	case resp.StatusCode != http.StatusOK:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &Failure{Kind: FailureProvider, Message: fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, string(respBody))}
	}

	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "failed to decode response", Cause: err}
	}
	if len(out.Data) != len(texts) {
		return nil, &Failure{Kind: FailureProvider, Message: fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(out.Data))}
	}

	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}
	return vectors, nil
}

// IsReady performs a lightweight GET against the base URL. A provider
// with no health endpoint is assumed ready; failure classification on the
// next real Embed call is what actually gates traffic.
func (p *HTTPProvider) IsReady(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/health", nil)
	if err != nil {
		return true
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode < 500
}

func parseRetryAfterMS(header string) int64 {
	if header == "" {
		return 0
	}
	if secs, err := strconv.ParseInt(header, 10, 64); err == nil {
		return secs * 1000
	}
	return 0
}
