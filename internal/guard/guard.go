// Package guard implements the guard chain validation engine: a registry
// of ordered validators that inspect generated episode text and story
// state against narrative-consistency invariants, plus the retry protocol
// that turns recoverable quality failures into bounded re-attempts.
package guard

import (
	"context"

	"go.uber.org/zap"

	"storyguard/internal/storage"
)

// ArgKind describes the argument shape a guard consumes. The pipeline
// dispatches episode data structurally on this tag instead of branching
// on guard names.
type ArgKind int

const (
	// KindTextOnly: the current draft text.
	KindTextOnly ArgKind = iota
	// KindSpanPair: previous and current text spans.
	KindSpanPair
	// KindScenesAndEpisode: per-scene texts plus the episode number.
	KindScenesAndEpisode
	// KindEpisodeOnly: just the episode number.
	KindEpisodeOnly
	// KindContextAndEpisode: the episode context map plus episode number.
	KindContextAndEpisode
	// KindTextAndEpisode: draft text plus the episode number.
	KindTextAndEpisode
	// KindCharacterData: the current character sheet.
	KindCharacterData
)

// Input carries everything a guard invocation may need. The pipeline
// populates the fields required by the guard's ArgKind; guards read only
// what their kind declares.
type Input struct {
	Project    string
	Episode    int
	Text       string
	PrevText   string
	Scenes     []string
	Context    map[string]any
	Characters map[string]map[string]any
}

// Result is the outcome of a passing (or trivially-skipped) check.
// Guards signal violations by returning a *Violation error instead.
type Result struct {
	GuardName string
	Passed    bool
	// Details holds guard-specific diagnostics (metrics, what was
	// checked, whether state was initialized on this run).
	Details map[string]any
}

func pass(name string, details map[string]any) *Result {
	if details == nil {
		details = map[string]any{}
	}
	return &Result{GuardName: name, Passed: true, Details: details}
}

// Guard is the capability contract every validator implements.
// Check either returns a Result or a *Violation describing the breach;
// any other error is a programming or I/O fault and is never retried.
type Guard interface {
	Name() string
	Kind() ArgKind
	Check(ctx context.Context, in *Input) (*Result, error)
}

// Settings carries the tunable thresholds shared across guard
// construction. Zero values are replaced by defaults in Normalize.
type Settings struct {
	PacingTolerance  float64
	PacingWindow     int
	RelationTolerance int
	CritiqueMinScore float64
	TotalEpisodes    int
}

// Normalize fills unset settings with their defaults.
func (s Settings) Normalize() Settings {
	if s.PacingTolerance <= 0 {
		s.PacingTolerance = 0.25
	}
	if s.PacingWindow <= 0 {
		s.PacingWindow = 10
	}
	if s.RelationTolerance <= 0 {
		s.RelationTolerance = 3
	}
	if s.CritiqueMinScore <= 0 {
		s.CritiqueMinScore = 7.0
	}
	if s.TotalEpisodes <= 0 {
		s.TotalEpisodes = 250
	}
	return s
}

// Deps bundles what guard factories need to build an instance for one
// project. Store may be nil only for guards whose kind carries all state
// in the Input.
type Deps struct {
	Project  string
	Store    storage.Store
	Logger   *zap.Logger
	Scorer   Scorer
	Settings Settings
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// Factory builds a guard instance for one validation run.
type Factory func(Deps) Guard
