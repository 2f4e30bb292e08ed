package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeClient scripts GenerateContent outcomes per call; when the script
// runs out the last entry repeats.
type fakeClient struct {
	calls    int
	script   []fakeCall
	lastReq  *Request
	streamFn func(ctx context.Context, req *Request) (Stream, error)
}

type fakeCall struct {
	resp *Response
	err  error
}

func (f *fakeClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	f.calls++
	f.lastReq = req
	i := f.calls - 1
	if i >= len(f.script) {
		i = len(f.script) - 1
	}
	call := f.script[i]
	return call.resp, call.err
}

func (f *fakeClient) StreamGenerateContent(ctx context.Context, req *Request) (Stream, error) {
	f.calls++
	f.lastReq = req
	if f.streamFn == nil {
		return nil, errors.New("streaming not scripted")
	}
	return f.streamFn(ctx, req)
}

func okResponse(text string) *Response {
	return &Response{
		Text:         text,
		Model:        "gemini-2.0-flash",
		FinishReason: "STOP",
		Usage:        &Usage{PromptTokens: 5, CompletionTokens: 10, TotalTokens: 15},
	}
}

func newTestGenerator(t *testing.T, client Client, cfg GeneratorConfig) *Generator {
	t.Helper()
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	cfg.Logger = zerolog.Nop()
	g, err := NewGenerator(client, cfg)
	if err != nil {
		t.Fatalf("NewGenerator failed: %v", err)
	}
	// Tests never wait out real backoff delays.
	g.retryer.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return g
}

func TestNewGeneratorValidation(t *testing.T) {
	if _, err := NewGenerator(nil, GeneratorConfig{Model: "m"}); err == nil {
		t.Error("Expected error for nil client")
	}
	if _, err := NewGenerator(&fakeClient{}, GeneratorConfig{}); err == nil {
		t.Error("Expected error for missing model")
	}
}

func TestGenerateSuccess(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: okResponse("hello world")}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 3})

	result, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "say hello"}, nil)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result.Text != "hello world" {
		t.Errorf("Expected text %q, got %q", "hello world", result.Text)
	}
	if result.FinishReason != FinishReasonStop {
		t.Errorf("Expected finish reason stop, got %s", result.FinishReason)
	}
	if result.Usage.TotalTokens != 15 {
		t.Errorf("Expected 15 total tokens, got %d", result.Usage.TotalTokens)
	}
	if client.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", client.calls)
	}
}

func TestGenerateRetriesRateLimitThenSucceeds(t *testing.T) {
	client := &fakeClient{script: []fakeCall{
		{err: errors.New("429 Too Many Requests")},
		{resp: okResponse("recovered")},
	}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 3})

	result, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("Expected success after retry, got %v", err)
	}
	if result.Text != "recovered" {
		t.Errorf("Expected recovered text, got %q", result.Text)
	}
	if client.calls != 2 {
		t.Errorf("Expected 2 upstream calls, got %d", client.calls)
	}
}

func TestGenerateDoesNotRetryAuthFailure(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{err: errors.New("API key not valid")}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 3})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err == nil {
		t.Fatal("Expected error")
	}
	if CodeOf(err) != ErrorCodeAuthenticationFailed {
		t.Errorf("Expected AUTHENTICATION_FAILED, got %s", CodeOf(err))
	}
	if client.calls != 1 {
		t.Errorf("Expected no retries for auth failure, got %d calls", client.calls)
	}
}

func TestGenerateExhaustsRetries(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{err: errors.New("Failed to fetch")}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 3})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err == nil {
		t.Fatal("Expected error after exhaustion")
	}
	if client.calls != 4 {
		t.Errorf("Expected 4 upstream calls, got %d", client.calls)
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatal("Expected *Error")
	}
	if apiErr.Code != ErrorCodeNetwork {
		t.Errorf("Expected NETWORK_ERROR, got %s", apiErr.Code)
	}
	if apiErr.Retries == nil || apiErr.Retries.Attempts != 4 {
		t.Errorf("Expected retry metadata with 4 attempts, got %+v", apiErr.Retries)
	}
}

func TestGenerateSafetyBlock(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: &Response{
		FinishReason: "SAFETY",
		SafetyRatings: []SafetyRating{
			{Category: "HARM_CATEGORY_HATE_SPEECH", Probability: "HIGH"},
			{Category: "HARM_CATEGORY_HARASSMENT", Probability: "NEGLIGIBLE"},
		},
	}}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 3})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err == nil {
		t.Fatal("Expected safety block error")
	}
	if CodeOf(err) != ErrorCodeContentFiltered {
		t.Errorf("Expected CONTENT_FILTERED, got %s", CodeOf(err))
	}
	if !strings.Contains(err.Error(), "hate_speech (high)") {
		t.Errorf("Expected triggered category in message, got %q", err.Error())
	}
	if strings.Contains(err.Error(), "harassment") {
		t.Errorf("Expected negligible rating excluded, got %q", err.Error())
	}
	if client.calls != 1 {
		t.Errorf("Expected no retries for safety block, got %d calls", client.calls)
	}
}

func TestGenerateSafetyBlockNoRatings(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: &Response{FinishReason: "SAFETY"}}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err == nil {
		t.Fatal("Expected safety block error")
	}
	if !strings.Contains(err.Error(), "unspecified safety concerns") {
		t.Errorf("Expected fallback summary, got %q", err.Error())
	}
}

func TestGenerateRecitationBlock(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: &Response{FinishReason: "RECITATION"}}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if CodeOf(err) != ErrorCodeContentFiltered {
		t.Errorf("Expected CONTENT_FILTERED for recitation, got %v", err)
	}
}

func TestGenerateEmptyContent(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: &Response{FinishReason: "STOP"}}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err == nil {
		t.Fatal("Expected error for empty content")
	}
	if CodeOf(err) != ErrorCodeUnknown {
		t.Errorf("Expected UNKNOWN_ERROR, got %s", CodeOf(err))
	}
	if !strings.Contains(err.Error(), "no content generated") {
		t.Errorf("Unexpected message: %q", err.Error())
	}
}

func TestGenerateUsageDefaultsToZero(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: &Response{
		Text:         "ok",
		FinishReason: "STOP",
	}}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	result, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result.Usage != (Usage{}) {
		t.Errorf("Expected zero usage when provider omits it, got %+v", result.Usage)
	}
}

func TestGenerateMaxTokensFinish(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: &Response{
		Text:         "truncated",
		FinishReason: "MAX_TOKENS",
	}}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	result, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result.FinishReason != FinishReasonLength {
		t.Errorf("Expected finish reason length, got %s", result.FinishReason)
	}
}

func TestGenerateHooksFireOncePerLogicalCall(t *testing.T) {
	client := &fakeClient{script: []fakeCall{
		{err: errors.New("internal server error")},
		{err: errors.New("internal server error")},
		{resp: okResponse("done")},
	}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 3})

	starts, completes := 0, 0
	opts := &GenerationOptions{Hooks: Hooks{
		OnStart:    func(ctx context.Context) error { starts++; return nil },
		OnComplete: func(ctx context.Context) error { completes++; return nil },
	}}
	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, opts)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if client.calls != 3 {
		t.Errorf("Expected 3 upstream calls, got %d", client.calls)
	}
	if starts != 1 {
		t.Errorf("Expected OnStart once, got %d", starts)
	}
	if completes != 1 {
		t.Errorf("Expected OnComplete once, got %d", completes)
	}
}

func TestGenerateHookFailuresDoNotChangeOutcome(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: okResponse("fine")}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	opts := &GenerationOptions{Hooks: Hooks{
		OnStart:    func(ctx context.Context) error { return errors.New("start hook failed") },
		OnComplete: func(ctx context.Context) error { panic("complete hook panicked") },
	}}
	result, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, opts)
	if err != nil {
		t.Fatalf("Expected hook failures to be swallowed, got %v", err)
	}
	if result.Text != "fine" {
		t.Errorf("Expected result text, got %q", result.Text)
	}
}

func TestGenerateHooksFireOnFailureToo(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{err: errors.New("API key not valid")}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 3})

	completes := 0
	opts := &GenerationOptions{Hooks: Hooks{
		OnComplete: func(ctx context.Context) error { completes++; return nil },
	}}
	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, opts)
	if err == nil {
		t.Fatal("Expected error")
	}
	if completes != 1 {
		t.Errorf("Expected OnComplete once on failure, got %d", completes)
	}
}

func TestGenerateOptionResolution(t *testing.T) {
	temp := 0.9
	client := &fakeClient{script: []fakeCall{{resp: okResponse("ok")}}}
	g := newTestGenerator(t, client, GeneratorConfig{
		Model:      "gemini-2.0-flash",
		MaxRetries: 0,
		Defaults: GenerationOptions{
			MaxOutputTokens: 256,
			SafetyThresholds: map[string]string{
				"HARM_CATEGORY_HATE_SPEECH":       "BLOCK_MEDIUM_AND_ABOVE",
				"HARM_CATEGORY_DANGEROUS_CONTENT": "BLOCK_ONLY_HIGH",
			},
		},
	})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, &GenerationOptions{
		Model:       "gemini-2.0-pro",
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}

	req := client.lastReq
	if req.Model != "gemini-2.0-pro" {
		t.Errorf("Expected per-call model override, got %q", req.Model)
	}
	if req.Temperature == nil || *req.Temperature != 0.9 {
		t.Errorf("Expected temperature 0.9, got %v", req.Temperature)
	}
	if req.MaxOutputTokens != 256 {
		t.Errorf("Expected default max tokens 256, got %d", req.MaxOutputTokens)
	}
	if len(req.SafetySettings) != 2 {
		t.Fatalf("Expected 2 safety settings, got %d", len(req.SafetySettings))
	}
	// Sorted by category for deterministic request shapes.
	if req.SafetySettings[0].Category != "HARM_CATEGORY_DANGEROUS_CONTENT" {
		t.Errorf("Expected sorted categories, got %q first", req.SafetySettings[0].Category)
	}
}

func TestGenerateTimeoutClassified(t *testing.T) {
	slow := &slowClient{delay: 5 * time.Second}
	g := newTestGenerator(t, slow, GeneratorConfig{MaxRetries: 0, Timeout: 20 * time.Millisecond})

	_, err := g.Generate(context.Background(), Prompt{ID: "p1", Text: "hi"}, nil)
	if err == nil {
		t.Fatal("Expected timeout error")
	}
	if CodeOf(err) != ErrorCodeTimeout {
		t.Errorf("Expected TIMEOUT, got %s", CodeOf(err))
	}
}

// slowClient blocks until the call context is cancelled.
type slowClient struct {
	delay time.Duration
}

func (s *slowClient) GenerateContent(ctx context.Context, req *Request) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
		return okResponse("late"), nil
	}
}

func (s *slowClient) StreamGenerateContent(ctx context.Context, req *Request) (Stream, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(s.delay):
		return nil, errors.New("too late")
	}
}

func TestHealthCheck(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{resp: okResponse("pong")}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	if err := g.HealthCheck(context.Background()); err != nil {
		t.Fatalf("Expected healthy, got %v", err)
	}
	if client.lastReq.MaxOutputTokens != healthCheckMaxTokens {
		t.Errorf("Expected capped health check tokens, got %d", client.lastReq.MaxOutputTokens)
	}
}

func TestHealthCheckFailure(t *testing.T) {
	client := &fakeClient{script: []fakeCall{{err: errors.New("API key not valid")}}}
	g := newTestGenerator(t, client, GeneratorConfig{MaxRetries: 0})

	err := g.HealthCheck(context.Background())
	if CodeOf(err) != ErrorCodeAuthenticationFailed {
		t.Errorf("Expected AUTHENTICATION_FAILED, got %v", err)
	}
}
