package gemini

import (
	"github.com/samber/lo"
	"google.golang.org/genai"

	"github.com/kalder/genwire/llm"
)

// toGenAIRequest converts a provider-neutral request into genai contents
// plus generation config.
func toGenAIRequest(req *llm.Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	parts := lo.Map(req.Parts, func(text string, _ int) *genai.Part {
		return genai.NewPartFromText(text)
	})
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{}
	if req.Temperature != nil {
		t := float32(*req.Temperature)
		config.Temperature = &t
	}
	if req.MaxOutputTokens > 0 {
		config.MaxOutputTokens = req.MaxOutputTokens
	}
	if len(req.SafetySettings) > 0 {
		config.SafetySettings = lo.Map(req.SafetySettings, func(s llm.SafetySetting, _ int) *genai.SafetySetting {
			return &genai.SafetySetting{
				Category:  genai.HarmCategory(s.Category),
				Threshold: genai.HarmBlockThreshold(s.Threshold),
			}
		})
	}
	return contents, config
}

// FromResponse converts a genai response into the provider-neutral shape.
func FromResponse(resp *genai.GenerateContentResponse) *llm.Response {
	if resp == nil {
		return &llm.Response{}
	}

	out := &llm.Response{
		Model: resp.ModelVersion,
		Usage: fromUsage(resp.UsageMetadata),
	}
	if len(resp.Candidates) == 0 {
		return out
	}

	cand := resp.Candidates[0]
	out.FinishReason = string(cand.FinishReason)
	out.SafetyRatings = fromSafetyRatings(cand.SafetyRatings)
	out.Text = candidateText(cand)
	return out
}

// FromStreamResponse converts one streamed genai increment into a chunk.
func FromStreamResponse(resp *genai.GenerateContentResponse) *llm.Chunk {
	if resp == nil {
		return &llm.Chunk{}
	}

	chunk := &llm.Chunk{
		Model: resp.ModelVersion,
		Usage: fromUsage(resp.UsageMetadata),
	}
	if len(resp.Candidates) == 0 {
		return chunk
	}

	cand := resp.Candidates[0]
	chunk.FinishReason = string(cand.FinishReason)
	chunk.SafetyRatings = fromSafetyRatings(cand.SafetyRatings)
	chunk.Text = candidateText(cand)
	return chunk
}

func candidateText(cand *genai.Candidate) string {
	if cand == nil || cand.Content == nil {
		return ""
	}
	text := ""
	for _, part := range cand.Content.Parts {
		if part != nil {
			text += part.Text
		}
	}
	return text
}

func fromSafetyRatings(ratings []*genai.SafetyRating) []llm.SafetyRating {
	return lo.FilterMap(ratings, func(r *genai.SafetyRating, _ int) (llm.SafetyRating, bool) {
		if r == nil {
			return llm.SafetyRating{}, false
		}
		return llm.SafetyRating{
			Category:    string(r.Category),
			Probability: string(r.Probability),
		}, true
	})
}

func fromUsage(u *genai.GenerateContentResponseUsageMetadata) *llm.Usage {
	if u == nil {
		return nil
	}
	return &llm.Usage{
		PromptTokens:     int64(u.PromptTokenCount),
		CompletionTokens: int64(u.CandidatesTokenCount),
		TotalTokens:      int64(u.TotalTokenCount),
	}
}
