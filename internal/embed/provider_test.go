package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProviderEmbedSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embeddingResponse{Data: make([]embeddingDatum, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = embeddingDatum{Embedding: []float32{0.1, 0.2, 0.3}}
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	p, err := NewHTTPProvider(HTTPConfig{ProviderID: "test", BaseURL: server.URL, Model: "m", Dimension: 3})
	require.NoError(t, err)

	vecs, err := p.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[0])
}

func TestHTTPProviderRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	p, err := NewHTTPProvider(HTTPConfig{ProviderID: "test", BaseURL: server.URL, Model: "m", Dimension: 3})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	f := AsFailure(err)
	require.NotNil(t, f)
	assert.Equal(t, FailureRateLimit, f.Kind)
	assert.Equal(t, int64(5000), f.RetryAfterMS)
}

func TestHTTPProviderAuthFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p, err := NewHTTPProvider(HTTPConfig{ProviderID: "test", BaseURL: server.URL, Model: "m", Dimension: 3})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, FailureAuth, AsFailure(err).Kind)
}

func TestHTTPProviderNetworkFailure(t *testing.T) {
	p, err := NewHTTPProvider(HTTPConfig{ProviderID: "test", BaseURL: "http://127.0.0.1:1", Model: "m", Dimension: 3})
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Equal(t, FailureNetwork, AsFailure(err).Kind)
}

func TestCachedProviderServesCacheOnRepeat(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := embeddingResponse{Data: make([]embeddingDatum, len(req.Input))}
		for i := range req.Input {
			resp.Data[i] = embeddingDatum{Embedding: []float32{1, 2}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	inner, err := NewHTTPProvider(HTTPConfig{ProviderID: "test", BaseURL: server.URL, Model: "m", Dimension: 2})
	require.NoError(t, err)
	cached := NewCachedProvider(inner, 10)

	_, err = cached.Embed(context.Background(), []string{"same text"})
	require.NoError(t, err)
	_, err = cached.Embed(context.Background(), []string{"same text"})
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestLocalProviderIsReady(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(healthResponse{Status: "healthy"}))
	}))
	defer server.Close()

	p, err := NewLocalProvider(LocalConfig{ProviderID: "local", Endpoint: server.URL, Model: "m", Dimension: 3})
	require.NoError(t, err)
	assert.True(t, p.IsReady(context.Background()))
}
