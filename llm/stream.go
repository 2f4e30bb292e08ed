package llm

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// GenerationStream is a lazy, ordered, single-pass sequence of stream
// chunks. It is not restartable and not safe for concurrent Next calls.
// A chunk with Done set is always the last chunk; a mid-stream failure is
// classified, surfaced once through Err, and ends the sequence. No
// retries happen once streaming has begun.
type GenerationStream struct {
	ctx    context.Context
	ps     Stream
	model  string
	hooks  Hooks
	logger zerolog.Logger

	cur       *StreamChunk
	err       error
	done      bool
	doneAfter bool
	complete  sync.Once
}

func newGenerationStream(ctx context.Context, ps Stream, model string, hooks Hooks, logger zerolog.Logger) *GenerationStream {
	return &GenerationStream{
		ctx:    ctx,
		ps:     ps,
		model:  model,
		hooks:  hooks,
		logger: logger.With().Str("component", "stream").Logger(),
	}
}

// Next advances to the next chunk, returning false when the stream has
// ended. After Next returns false, Err reports whether the stream failed.
func (s *GenerationStream) Next() bool {
	if s.done {
		return false
	}
	if s.doneAfter {
		s.finish()
		return false
	}

	for {
		if !s.ps.Next() {
			if perr := s.ps.Err(); perr != nil {
				s.err = Classify(perr)
			}
			s.finish()
			return false
		}

		c := s.ps.Chunk()
		if c == nil {
			continue
		}

		switch c.FinishReason {
		case providerFinishSafety:
			s.err = safetyBlockError(c.SafetyRatings)
			s.finish()
			return false
		case providerFinishRecite:
			s.err = NewError(ErrorCodeContentFiltered, "content blocked due to recitation of protected material", nil)
			s.finish()
			return false
		}

		chunk := &StreamChunk{
			Text:  c.Text,
			Model: s.chunkModel(c),
		}
		if c.FinishReason == providerFinishStop || c.FinishReason == providerFinishMaxTokens {
			chunk.Done = true
			chunk.FinishReason = mapFinishReason(c.FinishReason)
			// Aggregate usage is best-effort on the terminal chunk; a
			// provider that omits it simply leaves Usage nil.
			if c.Usage != nil {
				u := normalizeUsage(c.Usage)
				chunk.Usage = &u
			}
			s.cur = chunk
			s.doneAfter = true
			return true
		}

		if c.Text == "" {
			// Only increments that carry text become chunks.
			continue
		}
		s.cur = chunk
		return true
	}
}

// Chunk returns the current chunk. Valid only after Next returned true.
func (s *GenerationStream) Chunk() *StreamChunk {
	return s.cur
}

// Err returns the classified failure that ended the stream, or nil.
func (s *GenerationStream) Err() error {
	return s.err
}

// Close releases the stream. A consumer that stops iterating early must
// call Close; the OnComplete hook still fires exactly once.
func (s *GenerationStream) Close() error {
	if s.done {
		return nil
	}
	s.finish()
	return nil
}

func (s *GenerationStream) finish() {
	s.done = true
	if err := s.ps.Close(); err != nil {
		s.logger.Debug().Err(err).Msg("Closing upstream stream failed")
	}
	s.complete.Do(func() {
		runHook(s.ctx, s.logger, "onComplete", s.hooks.OnComplete)
	})
}

func (s *GenerationStream) chunkModel(c *Chunk) string {
	if c.Model != "" {
		return c.Model
	}
	return s.model
}
