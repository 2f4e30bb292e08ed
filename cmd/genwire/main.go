package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/kalder/genwire/config"
	"github.com/kalder/genwire/llm"
	"github.com/kalder/genwire/llm/gemini"
	genwirelogger "github.com/kalder/genwire/logger"
	"github.com/kalder/genwire/monitor"
)

const usage = `Usage: genwire <command> [flags]

Commands:
  generate   Generate text from a prompt
  stream     Generate text, printing chunks as they arrive
  health     Run a single health check
  watch      Run scheduled health checks until interrupted
`

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("no command given")
	}
	command := os.Args[1]

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	var (
		configPath = flags.String("config", "genwire.yaml", "Path to YAML config file")
		logFile    = flags.String("logfile", "", "Path to log file. If not set, logs to stderr")
		pretty     = flags.Bool("pretty", false, "Use pretty console output (only valid when logfile is not set)")
		promptText = flags.String("prompt", "", "Prompt text (generate and stream commands)")
		model      = flags.String("model", "", "Model identifier override")
		timeout    = flags.Duration("timeout", 0, "Per-attempt timeout override")
		schedule   = flags.String("schedule", "", "Health check schedule override (watch command)")
	)
	if err := flags.Parse(os.Args[2:]); err != nil {
		return err
	}
	if *logFile != "" && *pretty {
		return fmt.Errorf("--logfile and --pretty are mutually exclusive")
	}

	log, err := genwirelogger.InitWithOptions(*logFile, *pretty)
	if err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if cfg.Gemini.APIKey == "" {
		return fmt.Errorf("no API key configured: set GEMINI_API_KEY or gemini.api_key in %s", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen, err := buildGenerator(ctx, cfg, log)
	if err != nil {
		return err
	}

	opts := &llm.GenerationOptions{
		Model:   *model,
		Timeout: *timeout,
	}

	switch command {
	case "generate":
		return runGenerate(ctx, gen, *promptText, opts)
	case "stream":
		return runStream(ctx, gen, *promptText, opts)
	case "health":
		return runHealth(ctx, gen)
	case "watch":
		return runWatch(ctx, gen, cfg, *schedule, log)
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command: %s", command)
	}
}

func buildGenerator(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*llm.Generator, error) {
	client, err := gemini.NewClient(ctx, cfg.Gemini.APIKey, log)
	if err != nil {
		return nil, err
	}
	return llm.NewGenerator(client, llm.GeneratorConfig{
		Model:      cfg.Gemini.Model,
		MaxRetries: cfg.Generation.MaxRetries,
		BaseDelay:  cfg.Generation.RetryBaseDelay(),
		Timeout:    cfg.Generation.Timeout(),
		Defaults: llm.GenerationOptions{
			Temperature:      cfg.Generation.Temperature,
			MaxOutputTokens:  cfg.Generation.MaxOutputTokens,
			SafetyThresholds: cfg.Generation.SafetyThresholds,
		},
		Logger: log,
	})
}

func runGenerate(ctx context.Context, gen *llm.Generator, text string, opts *llm.GenerationOptions) error {
	if text == "" {
		return fmt.Errorf("--prompt is required")
	}
	result, err := gen.Generate(ctx, newPrompt(text), opts)
	if err != nil {
		return err
	}
	fmt.Println(result.Text)
	fmt.Fprintf(os.Stderr, "model=%s finish=%s tokens=%d duration=%s\n",
		result.Model, result.FinishReason, result.Usage.TotalTokens, result.Duration.Round(time.Millisecond))
	return nil
}

func runStream(ctx context.Context, gen *llm.Generator, text string, opts *llm.GenerationOptions) error {
	if text == "" {
		return fmt.Errorf("--prompt is required")
	}
	stream, err := gen.GenerateStream(ctx, newPrompt(text), opts)
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	for stream.Next() {
		chunk := stream.Chunk()
		fmt.Print(chunk.Text)
		if chunk.Done {
			fmt.Println()
			if chunk.Usage != nil {
				fmt.Fprintf(os.Stderr, "finish=%s tokens=%d\n", chunk.FinishReason, chunk.Usage.TotalTokens)
			}
		}
	}
	return stream.Err()
}

func runHealth(ctx context.Context, gen *llm.Generator) error {
	if err := gen.HealthCheck(ctx); err != nil {
		return err
	}
	fmt.Println("healthy")
	return nil
}

func runWatch(ctx context.Context, gen *llm.Generator, cfg *config.Config, override string, log zerolog.Logger) error {
	schedule := cfg.Health.Schedule
	if override != "" {
		schedule = override
	}
	mon, err := monitor.New(gen, schedule, cfg.Generation.Timeout(), log)
	if err != nil {
		return err
	}
	mon.Run(ctx)
	return nil
}

func newPrompt(text string) llm.Prompt {
	return llm.Prompt{
		ID:   fmt.Sprintf("cli-%d", time.Now().UnixNano()),
		Text: text,
		Metadata: llm.PromptMetadata{
			CreatedAt: time.Now(),
		},
	}
}
