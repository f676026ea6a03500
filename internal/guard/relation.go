package guard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"storyguard/internal/storage"
)

const relationMatrixDoc = "relation_matrix.json"

// RelationEpisode is one episode's entry in the relation matrix: the
// relationship label for each character pair ("A,B") as of that episode.
type RelationEpisode struct {
	Ep        int               `json:"ep"`
	Relations map[string]string `json:"relations"`
}

// opposingRelations are relationship labels that cannot flip into each
// other within the tolerance window.
var opposingRelations = map[[2]string]struct{}{
	{"친구", "적"}: {},
	{"적", "친구"}: {},
}

func isOpposing(prev, curr string) bool {
	_, ok := opposingRelations[[2]string{prev, curr}]
	return ok
}

// normalizePair sorts "B,A" into "A,B" so both orderings name the same
// relationship.
func normalizePair(pair string) string {
	chars := strings.Split(pair, ",")
	sort.Strings(chars)
	return strings.Join(chars, ",")
}

// RelationGuard detects relationships flipping between opposing states
// faster than the tolerance window allows. A flip from 친구 to 적 (or
// back) is a violation when the episode gap is smaller than the
// tolerance; slower drifts pass.
type RelationGuard struct {
	project   string
	store     storage.Store
	tolerance int
}

// NewRelationGuard builds the relation guard from the configured
// tolerance window.
func NewRelationGuard(d Deps) Guard {
	return &RelationGuard{
		project:   d.Project,
		store:     d.Store,
		tolerance: d.Settings.Normalize().RelationTolerance,
	}
}

func (g *RelationGuard) Name() string  { return "relation_guard" }
func (g *RelationGuard) Kind() ArgKind { return KindEpisodeOnly }

func (g *RelationGuard) loadMatrix(ctx context.Context) ([]RelationEpisode, error) {
	var matrix []RelationEpisode
	if err := g.store.Load(ctx, g.project, relationMatrixDoc, &matrix); err != nil {
		if storage.IsEmptyState(err) {
			return nil, nil
		}
		return nil, err
	}
	return matrix, nil
}

// lastRelationBefore finds the most recent episode strictly before
// episode that records a relationship for the pair, in either ordering.
func lastRelationBefore(matrix []RelationEpisode, pair string, episode int) (int, string) {
	norm := normalizePair(pair)
	chars := strings.Split(norm, ",")
	reverse := strings.Join([]string{chars[len(chars)-1], chars[0]}, ",")

	bestEp, bestRel := -1, ""
	for _, entry := range matrix {
		if entry.Ep >= episode {
			continue
		}
		var rel string
		if v, ok := entry.Relations[pair]; ok {
			rel = v
		} else if v, ok := entry.Relations[norm]; ok {
			rel = v
		} else if v, ok := entry.Relations[reverse]; ok {
			rel = v
		}
		if rel != "" && entry.Ep > bestEp {
			bestEp, bestRel = entry.Ep, rel
		}
	}
	return bestEp, bestRel
}

func (g *RelationGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	matrix, err := g.loadMatrix(ctx)
	if err != nil {
		return nil, err
	}

	var current map[string]string
	for _, entry := range matrix {
		if entry.Ep == in.Episode {
			current = entry.Relations
			break
		}
	}
	if len(current) == 0 {
		return pass(g.Name(), map[string]any{"skipped": "no relations for episode"}), nil
	}

	// Sorted pair order keeps which-violation-fires-first deterministic.
	pairs := make([]string, 0, len(current))
	for pair := range current {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	for _, pair := range pairs {
		currentRel := current[pair]
		prevEp, prevRel := lastRelationBefore(matrix, pair, in.Episode)
		if prevEp <= 0 || prevRel == "" {
			continue
		}
		gap := in.Episode - prevEp
		if gap < g.tolerance && isOpposing(prevRel, currentRel) {
			msg := fmt.Sprintf("Relationship %s changed from '%s' to '%s' between episodes %d and %d (gap: %d, tolerance: %d)",
				pair, prevRel, currentRel, prevEp, in.Episode, gap, g.tolerance)
			flags := map[string]any{
				"relation_violation": map[string]any{
					"char_pair":         pair,
					"previous_episode":  prevEp,
					"previous_relation": prevRel,
					"current_episode":   in.Episode,
					"current_relation":  currentRel,
					"episode_gap":       gap,
					"tolerance_ep":      g.tolerance,
				},
			}
			return nil, NewViolation(g.Name(), msg, flags)
		}
	}

	return pass(g.Name(), map[string]any{
		"pairs_checked": len(pairs),
		"episode":       in.Episode,
		"tolerance_ep":  g.tolerance,
	}), nil
}
