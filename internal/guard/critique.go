package guard

import (
	"context"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// Critique is an LLM quality evaluation: fun and logic on a 1-10 scale
// plus a free-form comment.
type Critique struct {
	Fun     float64 `json:"fun"`
	Logic   float64 `json:"logic"`
	Comment string  `json:"comment"`
}

// Scorer evaluates a draft's entertainment value and plausibility.
// Implementations call an LLM; tests use a stub.
type Scorer interface {
	Score(ctx context.Context, text string) (Critique, error)
}

// CritiqueGuard gates drafts on LLM critique scores. The lower of the
// fun and logic scores must reach the configured minimum. A nil scorer
// disables the check: the guard passes and reports itself skipped.
type CritiqueGuard struct {
	scorer   Scorer
	minScore float64
	log      *zap.Logger
}

// NewCritiqueGuard builds the critique guard from the configured scorer
// and minimum score.
func NewCritiqueGuard(d Deps) Guard {
	return &CritiqueGuard{
		scorer:   d.Scorer,
		minScore: d.Settings.Normalize().CritiqueMinScore,
		log:      d.logger(),
	}
}

func (g *CritiqueGuard) Name() string  { return "critique_guard" }
func (g *CritiqueGuard) Kind() ArgKind { return KindTextOnly }

func (g *CritiqueGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	if g.scorer == nil {
		return pass(g.Name(), map[string]any{"skipped": "no scorer configured"}), nil
	}

	critique, err := g.scorer.Score(ctx, in.Text)
	if err != nil {
		// Scoring failures are retryable: transient API trouble should
		// not crash the chain.
		return nil, NewViolation(g.Name(),
			fmt.Sprintf("Critique evaluation failed: %v", err), nil)
	}

	if critique.Fun < 1 || critique.Fun > 10 || critique.Logic < 1 || critique.Logic > 10 {
		return nil, NewViolation(g.Name(),
			fmt.Sprintf("Invalid critique response format: scores out of range (fun=%.1f, logic=%.1f)",
				critique.Fun, critique.Logic), nil)
	}

	lowest := math.Min(critique.Fun, critique.Logic)
	if lowest < g.minScore {
		flags := map[string]any{
			"critique_failure": map[string]any{
				"fun_score":   critique.Fun,
				"logic_score": critique.Logic,
				"min_score":   g.minScore,
				"comment":     critique.Comment,
			},
		}
		msg := fmt.Sprintf("Critique scores too low: fun=%.1f, logic=%.1f (min=%.1f). Comment: %s",
			critique.Fun, critique.Logic, g.minScore, critique.Comment)
		return nil, NewViolation(g.Name(), msg, flags)
	}

	g.log.Info("critique guard: pass",
		zap.Float64("fun", critique.Fun),
		zap.Float64("logic", critique.Logic))

	return pass(g.Name(), map[string]any{
		"fun_score":   critique.Fun,
		"logic_score": critique.Logic,
		"comment":     critique.Comment,
		"min_score":   g.minScore,
	}), nil
}
