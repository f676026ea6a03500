package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"storyguard/internal/storage"
)

const anchorsDoc = "anchors.json"

// Anchor is a planned core story event that must surface in the text
// near its target episode.
type Anchor struct {
	ID       string `json:"id"`
	Goal     string `json:"goal"`
	AnchorEp int    `json:"anchor_ep"`
}

// Korean particles and suffixes stripped from goal words before keyword
// matching, plus the standalone stopword set.
var (
	anchorStopwords = map[string]struct{}{
		"이": {}, "가": {}, "를": {}, "을": {}, "의": {}, "에": {},
		"와": {}, "과": {}, "로": {}, "으로": {}, "는": {}, "은": {},
		"한다": {}, "다": {}, "고": {}, "도": {},
	}
	anchorWordRe     = regexp.MustCompile(`[\p{L}\p{N}_]+`)
	anchorParticleRe = regexp.MustCompile(`(이|가|를|을|의|에|와|과|로|으로|는|은|다)$`)
)

// AnchorKeywords extracts searchable keywords from an anchor goal:
// trailing particles are stripped, stopwords and single characters are
// dropped. An unsplittable goal falls back to the whole string.
func AnchorKeywords(goal string) []string {
	var keywords []string
	for _, word := range anchorWordRe.FindAllString(goal, -1) {
		cleaned := anchorParticleRe.ReplaceAllString(word, "")
		if len([]rune(cleaned)) < 2 {
			continue
		}
		if _, stop := anchorStopwords[cleaned]; stop {
			continue
		}
		keywords = append(keywords, cleaned)
	}
	if len(keywords) == 0 {
		keywords = []string{goal}
	}
	return keywords
}

func keywordsFound(content string, keywords []string) bool {
	if content == "" {
		return false
	}
	lower := strings.ToLower(content)
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

// AnchorGuard checks that anchor events land in the text near their
// target episode. An anchor is due in every episode within anchor_ep ±1
// and compliance means at least one goal keyword appears in the draft.
type AnchorGuard struct {
	project string
	store   storage.Store
}

// NewAnchorGuard builds the anchor guard bound to the project's store.
func NewAnchorGuard(d Deps) Guard {
	return &AnchorGuard{project: d.Project, store: d.Store}
}

func (g *AnchorGuard) Name() string  { return "anchor_guard" }
func (g *AnchorGuard) Kind() ArgKind { return KindTextAndEpisode }

func (g *AnchorGuard) loadAnchors(ctx context.Context) ([]Anchor, error) {
	var anchors []Anchor
	if err := g.store.Load(ctx, g.project, anchorsDoc, &anchors); err != nil {
		if storage.IsEmptyState(err) {
			return nil, nil
		}
		return nil, err
	}
	return anchors, nil
}

func (g *AnchorGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	anchors, err := g.loadAnchors(ctx)
	if err != nil {
		return nil, err
	}

	type anchorCheck struct {
		ID       string   `json:"id"`
		Goal     string   `json:"goal"`
		AnchorEp int      `json:"anchor_ep"`
		Keywords []string `json:"keywords"`
		Found    bool     `json:"found"`
	}
	var checked, missing []anchorCheck

	for _, a := range anchors {
		if a.Goal == "" || a.AnchorEp == 0 {
			continue
		}
		gap := in.Episode - a.AnchorEp
		if gap < -1 || gap > 1 {
			continue
		}
		keywords := AnchorKeywords(a.Goal)
		found := keywordsFound(in.Text, keywords)
		check := anchorCheck{ID: a.ID, Goal: a.Goal, AnchorEp: a.AnchorEp, Keywords: keywords, Found: found}
		checked = append(checked, check)
		if !found {
			missing = append(missing, check)
		}
	}

	if len(missing) > 0 {
		details := make([]string, len(missing))
		missingMaps := make([]map[string]any, len(missing))
		for i, m := range missing {
			details[i] = fmt.Sprintf("'%s' (anchor_ep %d, keywords: %v)", m.Goal, m.AnchorEp, m.Keywords)
			missingMaps[i] = map[string]any{
				"id": m.ID, "goal": m.Goal, "anchor_ep": m.AnchorEp,
				"keywords": m.Keywords, "found": m.Found,
			}
		}
		flags := map[string]any{
			"anchor_compliance": map[string]any{
				"episode_num":     in.Episode,
				"missing_anchors": missingMaps,
				"total_checked":   len(checked),
			},
		}
		msg := fmt.Sprintf("Anchor compliance failure in episode %d: Missing %d required anchor event(s): %s",
			in.Episode, len(missing), strings.Join(details, ", "))
		return nil, NewViolation(g.Name(), msg, flags)
	}

	return pass(g.Name(), map[string]any{
		"anchors_checked": len(checked),
		"episode_num":     in.Episode,
	}), nil
}
