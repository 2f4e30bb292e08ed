package llm

import (
	"context"
)

// Client is the upstream generation service in provider-shaped but
// SDK-neutral form. Implementations handle transport details; they do not
// classify errors or interpret finish reasons, both of which belong to
// the Generator.
type Client interface {
	// GenerateContent performs one single-shot generation call.
	GenerateContent(ctx context.Context, req *Request) (*Response, error)

	// StreamGenerateContent opens a streamed generation. Implementations
	// must not return until the connection is established (first byte
	// received or buffered), so connection failures surface here and
	// remain retryable.
	StreamGenerateContent(ctx context.Context, req *Request) (Stream, error)
}

// Stream is a provider-shaped stream of generation increments.
type Stream interface {
	// Next advances to the next chunk. Returns false when the stream is
	// exhausted or failed.
	Next() bool

	// Chunk returns the current chunk. Valid only after Next() returned true.
	Chunk() *Chunk

	// Err returns the error that terminated the stream, if any.
	Err() error

	// Close releases the underlying connection. Safe to call more than once.
	Close() error
}
