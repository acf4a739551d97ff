package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// LocalConfig configures a local embedding service (e.g. a model server
// running on localhost, reached over HTTP like a remote provider but
// exempt from auth and rate-limit handling).
type LocalConfig struct {
	ProviderID string
	Endpoint   string
	Model      string
	Dimension  int
	Limits     Limits
	HTTPClient *http.Client
}

// LocalProvider implements Provider against a local model-serving
// process. Grounded on the teacher's MLX adapter's health-check
// endpoint convention (GET {endpoint}/health -> {status}), generalized
// to any local server speaking the same shape rather than one
// hardcoded to MLX specifically.
type LocalProvider struct {
	cfg    LocalConfig
	client *http.Client
}

var _ Provider = (*LocalProvider)(nil)

type healthResponse struct {
	Status string `json:"status"`
}

// NewLocalProvider constructs a local-service provider. It does not probe
// the service during construction; callers call IsReady explicitly, so
// that startup never blocks on a service that simply hasn't started yet.
func NewLocalProvider(cfg LocalConfig) (*LocalProvider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embed: LocalProvider requires an endpoint")
	}
	if cfg.Limits.MaxBatchSize <= 0 {
		cfg.Limits.MaxBatchSize = 32
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &LocalProvider{cfg: cfg, client: client}, nil
}

func (p *LocalProvider) ID() string      { return p.cfg.ProviderID }
func (p *LocalProvider) Dimension() int  { return p.cfg.Dimension }
func (p *LocalProvider) ModelID() string { return p.cfg.Model }
func (p *LocalProvider) Limits() Limits  { return p.cfg.Limits }

func (p *LocalProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: p.cfg.Model, Input: texts})
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.Endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, &Failure{Kind: FailureProvider, Message: "failed to build request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, &Failure{Kind: FailureNetwork, Message: "local service unreachable", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &Failure{Kind: FailureProvider, Message: fmt.Sprintf("local service error %d: %s", resp.StatusCode, string(respBody))}
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

// IsReady checks {endpoint}/health for a {"status": "healthy"} body,
// exactly the teacher's MLX health-check contract.
func (p *LocalProvider) IsReady(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.Endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "healthy"
}
