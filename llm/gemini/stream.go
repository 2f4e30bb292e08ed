package gemini

import (
	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/kalder/genwire/llm"
)

// geminiStream implements the llm.Stream interface over a pulled genai
// stream iterator. The first increment arrives pre-fetched from
// connection setup.
type geminiStream struct {
	next   func() (*genai.GenerateContentResponse, error, bool)
	stop   func()
	logger zerolog.Logger

	first  *llm.Chunk
	cur    *llm.Chunk
	err    error
	closed bool
}

// Next advances to the next increment in the stream.
func (s *geminiStream) Next() bool {
	if s.closed || s.err != nil {
		return false
	}
	if s.first != nil {
		s.cur = s.first
		s.first = nil
		return true
	}

	resp, err, ok := s.next()
	if err != nil {
		s.err = err
		return false
	}
	if !ok {
		return false
	}
	s.cur = FromStreamResponse(resp)
	return true
}

// Chunk returns the current increment.
func (s *geminiStream) Chunk() *llm.Chunk {
	return s.cur
}

// Err returns any error that occurred during streaming.
func (s *geminiStream) Err() error {
	return s.err
}

// Close releases the underlying iterator. Safe to call more than once.
func (s *geminiStream) Close() error {
	if !s.closed {
		s.closed = true
		s.stop()
	}
	return nil
}

var _ llm.Stream = (*geminiStream)(nil)
