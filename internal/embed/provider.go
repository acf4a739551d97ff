// Package embed implements the Embedding Provider Adapter (C5): a uniform
// interface over remote HTTP-API and local-service embedding backends,
// sharing one failure taxonomy the pipeline and fallback coordinator key
// their retry/escalation decisions on.
package embed

import (
	"context"
	"fmt"
)

// Limits describes a provider's operational ceilings, used by the
// embedding pipeline's adaptive batch sizing and the fallback
// coordinator's rate-limit bookkeeping.
type Limits struct {
	MaxBatchSize        int
	MaxTokensPerRequest int
	RequestsPerMinute   int
}

// Provider is the uniform contract every embedding backend satisfies.
type Provider interface {
	// ID identifies this provider instance for fallback ordering and
	// telemetry (e.g. "openai", "ollama-local").
	ID() string

	// Embed computes one vector per input text, in order. All vectors
	// share Dimension().
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding width this provider's model produces.
	Dimension() int

	// ModelID returns the model identifier stamped into repository metadata.
	ModelID() string

	// IsReady reports whether the provider can currently serve requests,
	// without mutating any retry/cooldown state — that is the fallback
	// coordinator's job, not the provider's.
	IsReady(ctx context.Context) bool

	// Limits returns the provider's batch/token/rate ceilings.
	Limits() Limits
}

// FailureKind tags a Failure by the taxonomy the pipeline's retry policy
// and the fallback coordinator's cooldown rules key off of.
type FailureKind int

const (
	FailureUnknown FailureKind = iota
	FailureRateLimit
	FailureAuth
	FailureNetwork
	FailureProvider
)

func (k FailureKind) String() string {
	switch k {
	case FailureRateLimit:
		return "rate_limit"
	case FailureAuth:
		return "auth"
	case FailureNetwork:
		return "network"
	case FailureProvider:
		return "provider"
	default:
		return "unknown"
	}
}

// Failure is the typed error every Provider.Embed call returns on
// failure, wrapping the taxonomy described by the spec's four failure
// variants.
type Failure struct {
	Kind         FailureKind
	RetryAfterMS int64 // populated for FailureRateLimit, 0 if the server didn't say
	Message      string
	Cause        error
}

func (f *Failure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Kind, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Cause }

// AsFailure unwraps err into a *Failure, or synthesizes a FailureProvider
// wrapping it if the provider implementation didn't classify it.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if ok := asFailure(err, &f); ok {
		return f
	}
	return &Failure{Kind: FailureProvider, Message: "unclassified provider error", Cause: err}
}

func asFailure(err error, out **Failure) bool {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if f, ok := err.(*Failure); ok {
			*out = f
			return true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
