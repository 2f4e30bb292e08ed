package llm

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// DefaultTimeout bounds a single upstream attempt when no per-call
	// timeout is configured.
	DefaultTimeout = 60 * time.Second

	// healthCheckPrompt and healthCheckMaxTokens define the degenerate
	// generation used by HealthCheck.
	healthCheckPrompt    = "ping"
	healthCheckMaxTokens = 10
)

// Provider finish-reason vocabulary the interpreter understands.
const (
	providerFinishStop      = "STOP"
	providerFinishMaxTokens = "MAX_TOKENS"
	providerFinishSafety    = "SAFETY"
	providerFinishRecite    = "RECITATION"
)

const harmCategoryPrefix = "HARM_CATEGORY_"

// GeneratorConfig configures a Generator.
type GeneratorConfig struct {
	// Model is the default model identifier; required.
	Model string

	// MaxRetries caps re-invocations per logical call (attempts = MaxRetries+1).
	MaxRetries int

	// BaseDelay seeds the retry backoff schedule.
	BaseDelay time.Duration

	// Timeout is the default per-attempt deadline.
	Timeout time.Duration

	// Defaults are merged under per-call GenerationOptions.
	Defaults GenerationOptions

	Logger zerolog.Logger
}

// Generator is the resilient adapter over an upstream generation Client.
// It owns no cross-call state: retry counters and timers belong to each
// logical call, so concurrent calls never contend.
type Generator struct {
	client   Client
	model    string
	timeout  time.Duration
	defaults GenerationOptions
	retryer  *Retryer
	logger   zerolog.Logger
}

// NewGenerator creates a Generator over client.
func NewGenerator(client Client, cfg GeneratorConfig) (*Generator, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	logger := cfg.Logger.With().Str("component", "generator").Logger()
	return &Generator{
		client:   client,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		defaults: cfg.Defaults,
		retryer: NewRetryer(RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			Logger:     cfg.Logger,
		}),
		logger: logger,
	}, nil
}

// Generate performs one resilient single-shot generation. The upstream
// call runs under the per-attempt timeout, the whole of which runs under
// the retry loop; lifecycle hooks wrap the outermost loop and fire once
// per logical call. Every failure returns a classified *Error; Generate
// never panics across its boundary.
func (g *Generator) Generate(ctx context.Context, prompt Prompt, opts *GenerationOptions) (*GenerationResult, error) {
	o := g.resolveOptions(opts)
	start := time.Now()

	runHook(ctx, g.logger, "onStart", o.Hooks.OnStart)
	defer runHook(ctx, g.logger, "onComplete", o.Hooks.OnComplete)

	req := g.buildRequest(prompt, o)
	g.logger.Debug().
		Str("prompt_id", prompt.ID).
		Str("model", req.Model).
		Int("prompt_length", len(prompt.Text)).
		Msg("Starting generation")

	var resp *Response
	err := g.retryer.Do(ctx, "generate", func(ctx context.Context) error {
		return runWithTimeout(ctx, o.Timeout, "generate", func(ctx context.Context) error {
			r, callErr := g.client.GenerateContent(ctx, req)
			if callErr != nil {
				return callErr
			}
			resp = r
			return nil
		})
	})
	if err != nil {
		return nil, Classify(err)
	}

	result, interpErr := g.interpret(resp, req.Model, start)
	if interpErr != nil {
		return nil, interpErr
	}
	g.logger.Debug().
		Str("prompt_id", prompt.ID).
		Str("finish_reason", string(result.FinishReason)).
		Int64("total_tokens", result.Usage.TotalTokens).
		Dur("duration", result.Duration).
		Msg("Generation complete")
	return result, nil
}

// GenerateStream opens a resilient streamed generation. Retries protect
// only connection setup; once the first byte has arrived the stream fails
// fast rather than silently duplicating or losing delivered text. The
// OnComplete hook fires exactly once however the stream ends, including
// early Close by the consumer.
func (g *Generator) GenerateStream(ctx context.Context, prompt Prompt, opts *GenerationOptions) (*GenerationStream, error) {
	o := g.resolveOptions(opts)

	runHook(ctx, g.logger, "onStart", o.Hooks.OnStart)

	req := g.buildRequest(prompt, o)
	g.logger.Debug().
		Str("prompt_id", prompt.ID).
		Str("model", req.Model).
		Msg("Opening generation stream")

	var ps Stream
	err := g.retryer.Do(ctx, "stream connect", func(ctx context.Context) error {
		s, connErr := g.connectStream(ctx, o.Timeout, req)
		if connErr != nil {
			return connErr
		}
		ps = s
		return nil
	})
	if err != nil {
		runHook(ctx, g.logger, "onComplete", o.Hooks.OnComplete)
		return nil, Classify(err)
	}

	return newGenerationStream(ctx, ps, req.Model, o.Hooks, g.logger), nil
}

// HealthCheck runs a degenerate generation through the same retry,
// timeout, and classification machinery. Healthy means any non-empty text
// came back.
func (g *Generator) HealthCheck(ctx context.Context) error {
	prompt := Prompt{ID: "health-check", Text: healthCheckPrompt}
	result, err := g.Generate(ctx, prompt, &GenerationOptions{
		MaxOutputTokens: healthCheckMaxTokens,
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(result.Text) == "" {
		return NewError(ErrorCodeUnknown, "health check returned empty content", nil)
	}
	return nil
}

// connectStream races connection setup against the per-attempt deadline.
// A connection that completes after the deadline is closed in the
// background so the handle is not leaked.
func (g *Generator) connectStream(ctx context.Context, d time.Duration, req *Request) (Stream, error) {
	if d <= 0 {
		return g.client.StreamGenerateContent(ctx, req)
	}

	type connResult struct {
		stream Stream
		err    error
	}
	done := make(chan connResult, 1)
	go func() {
		s, err := g.client.StreamGenerateContent(ctx, req)
		done <- connResult{stream: s, err: err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.stream, r.err
	case <-timer.C:
		go func() {
			if r := <-done; r.stream != nil {
				_ = r.stream.Close()
			}
		}()
		return nil, timeoutError("stream connect", d)
	case <-ctx.Done():
		go func() {
			if r := <-done; r.stream != nil {
				_ = r.stream.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// resolveOptions merges per-call options over the generator defaults.
func (g *Generator) resolveOptions(opts *GenerationOptions) GenerationOptions {
	o := GenerationOptions{}
	if opts != nil {
		o = *opts
	}
	if err := mergo.Merge(&o, g.defaults); err != nil {
		g.logger.Warn().Err(err).Msg("Failed to merge default options")
	}
	if o.Model == "" {
		o.Model = g.model
	}
	if o.Timeout <= 0 {
		o.Timeout = g.timeout
	}
	return o
}

// buildRequest assembles the provider-shaped request.
func (g *Generator) buildRequest(prompt Prompt, o GenerationOptions) *Request {
	req := &Request{
		Model:           o.Model,
		Parts:           []string{prompt.Text},
		Temperature:     o.Temperature,
		MaxOutputTokens: o.MaxOutputTokens,
	}
	// Stable order keeps request shapes deterministic for logging and tests.
	categories := lo.Keys(o.SafetyThresholds)
	sort.Strings(categories)
	for _, category := range categories {
		req.SafetySettings = append(req.SafetySettings, SafetySetting{
			Category:  category,
			Threshold: o.SafetyThresholds[category],
		})
	}
	return req
}

// interpret turns a provider-shaped response into a typed result or a
// classified, non-retryable failure.
func (g *Generator) interpret(resp *Response, model string, start time.Time) (*GenerationResult, error) {
	if resp == nil {
		return nil, NewError(ErrorCodeUnknown, "no content generated", nil)
	}
	switch resp.FinishReason {
	case providerFinishSafety:
		return nil, safetyBlockError(resp.SafetyRatings)
	case providerFinishRecite:
		return nil, NewError(ErrorCodeContentFiltered, "content blocked due to recitation of protected material", nil)
	}
	if resp.Text == "" {
		return nil, NewError(ErrorCodeUnknown, "no content generated", nil)
	}

	usedModel := resp.Model
	if usedModel == "" {
		usedModel = model
	}
	return &GenerationResult{
		Text:         resp.Text,
		Model:        usedModel,
		Usage:        normalizeUsage(resp.Usage),
		FinishReason: mapFinishReason(resp.FinishReason),
		Timestamp:    start,
		Duration:     time.Since(start),
	}, nil
}

// safetyBlockError builds the CONTENT_FILTERED failure for a safety
// block, listing the triggered categories with the provider prefix
// stripped, restricted to high and medium probability ratings.
func safetyBlockError(ratings []SafetyRating) *Error {
	triggered := lo.FilterMap(ratings, func(r SafetyRating, _ int) (string, bool) {
		probability := strings.ToUpper(r.Probability)
		if probability != "HIGH" && probability != "MEDIUM" {
			return "", false
		}
		category := strings.ToLower(strings.TrimPrefix(r.Category, harmCategoryPrefix))
		return fmt.Sprintf("%s (%s)", category, strings.ToLower(probability)), true
	})
	summary := "unspecified safety concerns"
	if len(triggered) > 0 {
		summary = strings.Join(triggered, ", ")
	}
	return NewError(ErrorCodeContentFiltered, fmt.Sprintf("content blocked by safety filters: %s", summary), nil)
}

// mapFinishReason normalizes the provider vocabulary into the closed enum.
func mapFinishReason(reason string) FinishReason {
	switch reason {
	case providerFinishStop:
		return FinishReasonStop
	case providerFinishMaxTokens:
		return FinishReasonLength
	case providerFinishSafety, providerFinishRecite:
		return FinishReasonSafety
	default:
		return FinishReasonOther
	}
}

// normalizeUsage defaults omitted counters to zero and clamps negatives.
func normalizeUsage(u *Usage) Usage {
	if u == nil {
		return Usage{}
	}
	normalized := *u
	if normalized.PromptTokens < 0 {
		normalized.PromptTokens = 0
	}
	if normalized.CompletionTokens < 0 {
		normalized.CompletionTokens = 0
	}
	if normalized.TotalTokens < 0 {
		normalized.TotalTokens = 0
	}
	return normalized
}
