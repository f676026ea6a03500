// Package llm implements the Gemini-backed critique scorer.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"storyguard/internal/guard"
)

const critiquePrompt = `%s

----
당신은 프로 소설 감정단입니다. 1~10점으로
  • 재미(흥미·몰입)
  • 개연성(설정·인과)
을 평가하고 JSON 으로만 답하세요: {"fun": n, "logic": n, "comment": "..."}`

// GeminiScorer scores drafts with Gemini.
type GeminiScorer struct {
	client *genai.Client
	model  string
}

// NewGeminiScorer creates a scorer using the given API key and model.
func NewGeminiScorer(ctx context.Context, apiKey, model string) (*GeminiScorer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if model == "" {
		model = "gemini-2.5-pro"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiScorer{client: client, model: model}, nil
}

// Score evaluates a draft on the fun and logic dimensions.
func (s *GeminiScorer) Score(ctx context.Context, text string) (guard.Critique, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf(critiquePrompt, text), genai.RoleUser),
	}

	result, err := s.client.Models.GenerateContent(ctx,
		s.model,
		contents,
		&genai.GenerateContentConfig{
			Temperature:     genai.Ptr[float32](0.2),
			MaxOutputTokens: 512,
		},
	)
	if err != nil {
		return guard.Critique{}, fmt.Errorf("Gemini critique failed: %w", err)
	}

	raw := strings.TrimSpace(result.Text())
	if raw == "" {
		return guard.Critique{}, fmt.Errorf("empty response from Gemini")
	}

	critique, err := parseCritique(raw)
	if err != nil {
		return guard.Critique{}, fmt.Errorf("invalid critique response: %w", err)
	}
	return critique, nil
}

// parseCritique decodes the model's JSON answer, tolerating markdown
// code fences around it.
func parseCritique(raw string) (guard.Critique, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var c guard.Critique
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return guard.Critique{}, err
	}
	if c.Fun < 1 || c.Fun > 10 || c.Logic < 1 || c.Logic > 10 {
		return guard.Critique{}, fmt.Errorf("scores out of range: fun=%.1f, logic=%.1f", c.Fun, c.Logic)
	}
	return c, nil
}
