package guard

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"storyguard/internal/storage"
)

const rulesDoc = "rules.json"

// Rule is a forbidden-pattern entry: a regular expression and the
// message to surface when the draft matches it.
type Rule struct {
	ID      string `json:"id"`
	Pattern string `json:"pattern"`
	Message string `json:"message"`
}

// RuleGuard checks the draft against the project's forbidden patterns.
// Rules run in file order and the first match wins; an invalid pattern
// is skipped rather than failing the chain.
type RuleGuard struct {
	project string
	store   storage.Store
	log     *zap.Logger
}

// NewRuleGuard builds the rule guard bound to the project's store.
func NewRuleGuard(d Deps) Guard {
	return &RuleGuard{project: d.Project, store: d.Store, log: d.logger()}
}

func (g *RuleGuard) Name() string  { return "rule_guard" }
func (g *RuleGuard) Kind() ArgKind { return KindTextOnly }

func (g *RuleGuard) loadRules(ctx context.Context) ([]Rule, error) {
	var rules []Rule
	if err := g.store.Load(ctx, g.project, rulesDoc, &rules); err != nil {
		if storage.IsEmptyState(err) {
			return nil, nil
		}
		return nil, err
	}
	valid := rules[:0]
	for _, r := range rules {
		if r.ID != "" && r.Pattern != "" && r.Message != "" {
			valid = append(valid, r)
		}
	}
	return valid, nil
}

func (g *RuleGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	rules, err := g.loadRules(ctx)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(in.Text) == "" {
		return pass(g.Name(), map[string]any{"rules_checked": len(rules)}), nil
	}

	for _, rule := range rules {
		re, err := regexp.Compile("(?i)" + rule.Pattern)
		if err != nil {
			g.log.Warn("rule guard: invalid pattern skipped",
				zap.String("rule_id", rule.ID), zap.Error(err))
			continue
		}
		loc := re.FindStringIndex(in.Text)
		if loc == nil {
			continue
		}
		matched := in.Text[loc[0]:loc[1]]
		flags := map[string]any{
			"rule_violation": map[string]any{
				"rule_id":      rule.ID,
				"pattern":      rule.Pattern,
				"matched_text": matched,
				"position":     loc[0],
				"message":      rule.Message,
			},
		}
		return nil, NewViolation(g.Name(), rule.Message, flags)
	}

	return pass(g.Name(), map[string]any{"rules_checked": len(rules)}), nil
}
