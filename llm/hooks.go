package llm

import (
	"context"

	"github.com/rs/zerolog"
)

// runHook invokes one lifecycle hook, recovering panics and swallowing
// errors. Hook failures are logged and never alter the outcome of the
// operation the hook wraps.
func runHook(ctx context.Context, logger zerolog.Logger, name string, hook func(ctx context.Context) error) {
	if hook == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warn().
				Str("hook", name).
				Interface("panic", rec).
				Msg("Lifecycle hook panicked")
		}
	}()
	if err := hook(ctx); err != nil {
		logger.Warn().
			Str("hook", name).
			Err(err).
			Msg("Lifecycle hook failed")
	}
}
