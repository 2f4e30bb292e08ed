package llm

import (
	"context"
	"time"
)

// FinishReason explains why generation stopped, normalized across the
// provider's own finish-reason vocabulary.
type FinishReason string

const (
	FinishReasonStop   FinishReason = "stop"
	FinishReasonLength FinishReason = "length"
	FinishReasonSafety FinishReason = "safety"
	FinishReasonOther  FinishReason = "other"
)

// Prompt is an immutable generation request payload. The adapter never
// mutates a Prompt; callers own it before and after the call.
type Prompt struct {
	ID       string
	Text     string
	Metadata PromptMetadata
}

// PromptMetadata carries caller-supplied context for a prompt.
type PromptMetadata struct {
	CreatedAt time.Time
	UserID    string
	SessionID string
}

// Hooks are caller-supplied lifecycle callbacks. OnStart runs before the
// protected operation, OnComplete after it. Both are optional, both may
// return an error, and a failing or panicking hook never changes the
// outcome of the call it wraps.
type Hooks struct {
	OnStart    func(ctx context.Context) error
	OnComplete func(ctx context.Context) error
}

// GenerationOptions are per-call overrides. Zero-valued fields fall back
// to the generator's configured defaults.
type GenerationOptions struct {
	// Model overrides the generator's default model identifier.
	Model string

	// Temperature overrides sampling temperature when non-nil.
	Temperature *float64

	// MaxOutputTokens caps the completion length. Zero means provider default.
	MaxOutputTokens int32

	// Timeout bounds a single upstream call (each retry attempt gets the
	// full budget). Zero means the generator default.
	Timeout time.Duration

	// SafetyThresholds maps provider harm categories (e.g.
	// "HARM_CATEGORY_HATE_SPEECH") to block thresholds (e.g.
	// "BLOCK_MEDIUM_AND_ABOVE").
	SafetyThresholds map[string]string

	// Hooks fire once per logical call, not once per retry attempt.
	Hooks Hooks
}

// Usage counts tokens consumed by a request. Counters the provider omits
// are reported as zero.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// GenerationResult is the outcome of a successful single-shot generation.
type GenerationResult struct {
	Text         string
	Model        string
	Usage        Usage
	FinishReason FinishReason

	// Timestamp is when the logical call started; Duration is wall-clock
	// time including retries and backoff waits.
	Timestamp time.Time
	Duration  time.Duration
}

// StreamChunk is one increment of a streamed generation. Usage and
// FinishReason are populated only on the terminal chunk (Done == true),
// and Usage only best-effort.
type StreamChunk struct {
	Text         string
	Done         bool
	Model        string
	FinishReason FinishReason
	Usage        *Usage
}

// Request is the provider-shaped form of a single generation call, built
// from a Prompt plus resolved GenerationOptions.
type Request struct {
	Model           string
	Parts           []string
	Temperature     *float64
	MaxOutputTokens int32
	SafetySettings  []SafetySetting
}

// SafetySetting asks the provider to block content in a harm category at
// or above a probability threshold.
type SafetySetting struct {
	Category  string
	Threshold string
}

// SafetyRating is the provider's harm assessment for one category.
type SafetyRating struct {
	Category    string // e.g. "HARM_CATEGORY_HATE_SPEECH"
	Probability string // e.g. "HIGH", "MEDIUM", "LOW", "NEGLIGIBLE"
}

// Response is the provider-shaped result of a single-shot call, before
// interpretation. FinishReason carries the provider's own vocabulary
// ("STOP", "MAX_TOKENS", "SAFETY", "RECITATION", ...).
type Response struct {
	Text          string
	Model         string
	FinishReason  string
	SafetyRatings []SafetyRating
	Usage         *Usage // nil when the provider omits usage metadata
}

// Chunk is one provider-shaped streaming increment.
type Chunk struct {
	Text          string
	Model         string
	FinishReason  string
	SafetyRatings []SafetyRating
	Usage         *Usage
}
