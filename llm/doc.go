// Package llm turns a single logical "generate content from a prompt"
// request into a robust network operation against an upstream generation
// service.
//
// # Core Concepts
//
//  1. Generator: the public adapter. Generate performs a single-shot call,
//     GenerateStream yields token-streamed partial results, and HealthCheck
//     runs a minimal generation through the same machinery.
//
//  2. Errors: every failure leaving this package is a *Error from a closed
//     taxonomy with an explicit Retryable flag. Classify normalizes
//     arbitrary upstream failures (free-text messages, status codes buried
//     in strings, typed network errors) before any other component sees them.
//
//  3. Retry: Retryer re-invokes an operation with exponential backoff and
//     jitter while the classified error is retryable and attempts remain.
//     Streamed calls are retried only until the first byte arrives.
//
//  4. Hooks: callers may supply OnStart/OnComplete lifecycle callbacks per
//     call. Hook failures are logged and swallowed; they never change the
//     call's outcome, and OnComplete fires exactly once per logical call.
//
//  5. Client interface: the upstream service is consumed through the opaque
//     Client interface over provider-shaped neutral types. The gemini
//     subpackage implements it for the Gemini API.
//
// # Usage Example
//
//	client, err := gemini.NewClient(ctx, apiKey, logger)
//	gen, err := llm.NewGenerator(client, llm.GeneratorConfig{
//	    Model:      "gemini-2.0-flash",
//	    MaxRetries: 3,
//	    Logger:     logger,
//	})
//
//	result, err := gen.Generate(ctx, llm.Prompt{ID: id, Text: text}, nil)
//
//	stream, err := gen.GenerateStream(ctx, prompt, nil)
//	if err == nil {
//	    defer stream.Close()
//	    for stream.Next() {
//	        fmt.Print(stream.Chunk().Text)
//	    }
//	    if err := stream.Err(); err != nil { ... }
//	}
package llm
