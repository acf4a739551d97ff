package fallback

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aman-cerp/semindex/internal/embed"
)

type stubProvider struct {
	id      string
	model   string
	dim     int
	embedFn func(ctx context.Context, texts []string) ([][]float32, error)
}

func (s *stubProvider) ID() string        { return s.id }
func (s *stubProvider) Dimension() int    { return s.dim }
func (s *stubProvider) ModelID() string   { return s.model }
func (s *stubProvider) Limits() embed.Limits { return embed.Limits{MaxBatchSize: 32} }
func (s *stubProvider) IsReady(ctx context.Context) bool { return true }
func (s *stubProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return s.embedFn(ctx, texts)
}

func TestCoordinatorSucceedsOnPrimary(t *testing.T) {
	primary := &stubProvider{id: "primary", model: "m1", dim: 3, embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 2, 3}}, nil
	}}
	c := New([]embed.Provider{primary})

	vecs, providerID, modelID, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "primary", providerID)
	assert.Equal(t, "m1", modelID)
	assert.Len(t, vecs, 1)
}

func TestCoordinatorFallsBackOnAuthFailure(t *testing.T) {
	primary := &stubProvider{id: "primary", model: "m1", dim: 3, embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, &embed.Failure{Kind: embed.FailureAuth, Message: "bad key"}
	}}
	secondary := &stubProvider{id: "secondary", model: "m2", dim: 3, embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{4, 5, 6}}, nil
	}}
	c := New([]embed.Provider{primary, secondary})

	vecs, providerID, _, err := c.Embed(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "secondary", providerID)
	assert.Len(t, vecs, 1)

	assert.True(t, c.Healthy("primary"), "a single failure must not mark a provider unhealthy")
}

func TestCoordinatorAllProvidersFailed(t *testing.T) {
	failing := &stubProvider{id: "p1", model: "m1", dim: 3, embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, &embed.Failure{Kind: embed.FailureProvider, Message: "down"}
	}}
	c := New([]embed.Provider{failing})

	_, _, _, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
}

func TestCoordinatorMarksUnhealthyAfterThreeFailures(t *testing.T) {
	calls := 0
	failing := &stubProvider{id: "p1", model: "m1", dim: 3, embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		return nil, &embed.Failure{Kind: embed.FailureProvider, Message: "down"}
	}}
	c := New([]embed.Provider{failing})

	for i := 0; i < 3; i++ {
		_, _, _, err := c.Embed(context.Background(), []string{"x"})
		require.Error(t, err)
	}
	assert.False(t, c.Healthy("p1"))

	// A 4th attempt should skip the now-unhealthy provider entirely.
	before := calls
	_, _, _, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, before, calls)
}

func TestCoordinatorRateLimitCooldownSkipsProvider(t *testing.T) {
	calls := 0
	rateLimited := &stubProvider{id: "p1", model: "m1", dim: 3, embedFn: func(ctx context.Context, texts []string) ([][]float32, error) {
		calls++
		return nil, &embed.Failure{Kind: embed.FailureRateLimit, RetryAfterMS: 1000}
	}}
	c := New([]embed.Provider{rateLimited})
	c.now = func() time.Time { return time.Unix(0, 0) }

	_, _, _, err := c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	_, _, _, err = c.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "second attempt should be skipped, still in cooldown")
}
