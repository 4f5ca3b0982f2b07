// Package embeddings defines the Provider interface for vector embedding
// backends.
//
// An embeddings provider maps text strings to dense float32 vectors (e.g.,
// OpenAI text-embedding-3 or a local Ollama model). The history store uses
// these vectors to find past interview exchanges semantically similar to the
// current question, so near-duplicate questions can reuse earlier answers as
// context.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different Provider
// instances must not be mixed in the same similarity computation unless both
// use the same model.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails
	// or ctx is cancelled. Text is passed to the model verbatim; any
	// model-specific prefixing is the caller's responsibility.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of texts in a single
	// provider call. The returned slice has the same length as texts, with
	// result[i] corresponding to texts[i]. On error the entire result is nil;
	// partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier (e.g.,
	// "text-embedding-3-small"). Useful for logging and for detecting model
	// mismatches against vectors already stored in the history database.
	ModelID() string
}
