package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// wordRe tokenizes on unicode word characters so Korean and Latin text
// both split sensibly.
var wordRe = regexp.MustCompile(`[\p{L}\p{N}_]+`)

func tokenize(text string) []string {
	return wordRe.FindAllString(strings.ToLower(text), -1)
}

const (
	ttrThreshold        = 0.17
	trigramDupThreshold = 0.06
)

// LexicalGuard checks lexical diversity of the draft: type-token ratio
// and trigram duplication rate.
type LexicalGuard struct{}

// NewLexicalGuard builds the lexical guard; it holds no state.
func NewLexicalGuard(Deps) Guard { return &LexicalGuard{} }

func (g *LexicalGuard) Name() string  { return "lexical_guard" }
func (g *LexicalGuard) Kind() ArgKind { return KindTextOnly }

// TypeTokenRatio returns unique/total over case-folded word tokens.
// Empty text is vacuously diverse and scores 1.0.
func TypeTokenRatio(text string) float64 {
	words := tokenize(text)
	if len(words) == 0 {
		return 1.0
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique)) / float64(len(words))
}

// TrigramDuplicationRate returns (total − unique)/total over token
// 3-grams. Texts shorter than 3 tokens score 0.0.
func TrigramDuplicationRate(text string) float64 {
	words := tokenize(text)
	if len(words) < 3 {
		return 0.0
	}
	total := len(words) - 2
	unique := make(map[[3]string]struct{}, total)
	for i := 0; i+2 < len(words); i++ {
		unique[[3]string{words[i], words[i+1], words[i+2]}] = struct{}{}
	}
	return float64(total-len(unique)) / float64(total)
}

func (g *LexicalGuard) Check(_ context.Context, in *Input) (*Result, error) {
	ttr := TypeTokenRatio(in.Text)
	dup := TrigramDuplicationRate(in.Text)

	flags := map[string]any{}
	var messages []string

	if ttr < ttrThreshold {
		msg := fmt.Sprintf("TTR %.3f below threshold %.2f", ttr, ttrThreshold)
		flags["too_repetitive"] = map[string]any{
			"value":     ttr,
			"threshold": ttrThreshold,
			"message":   msg,
		}
		messages = append(messages, msg)
	}
	if dup > trigramDupThreshold {
		msg := fmt.Sprintf("3-gram duplication rate %.3f above threshold %.2f", dup, trigramDupThreshold)
		flags["duplicate_phrases"] = map[string]any{
			"value":     dup,
			"threshold": trigramDupThreshold,
			"message":   msg,
		}
		messages = append(messages, msg)
	}

	if len(flags) > 0 {
		return nil, NewViolation(g.Name(),
			"Lexical quality issues detected: "+strings.Join(messages, "; "), flags)
	}

	return pass(g.Name(), map[string]any{
		"ttr":              ttr,
		"trigram_dup_rate": dup,
	}), nil
}
