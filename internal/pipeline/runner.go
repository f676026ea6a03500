// Package pipeline drives the guard chain over an episode draft: it
// builds guard instances from the registry, dispatches the right input
// shape to each guard, and wraps every check in the retry protocol.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storyguard/internal/guard"
	"storyguard/internal/storage"
)

const charactersDoc = "characters.json"

// neutralPrevText stands in for the previous episode when no earlier
// text is available, so span-pair guards always have a baseline.
const neutralPrevText = "This is neutral content from previous episode."

// Episode is one draft to validate.
type Episode struct {
	Project  string
	Number   int
	Draft    string
	PrevText string
	Scenes   []string
	Context  map[string]any
}

// Runner executes the guard chain for episodes of one deployment.
type Runner struct {
	Registry *guard.Registry
	Store    storage.Store
	Logger   *zap.Logger
	Scorer   guard.Scorer
	Settings guard.Settings
	Retry    guard.RetryOptions

	// Strict makes a violation fail the run instead of only being
	// reported. The full chain still executes either way.
	Strict bool
}

// ErrChainFailed is returned by a strict-mode run when any guard ended
// in violation.
var ErrChainFailed = errors.New("guard chain failed")

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func (r *Runner) registry() *guard.Registry {
	if r.Registry == nil {
		return guard.Default()
	}
	return r.Registry
}

// buildInput assembles the guard input for one episode, applying the
// fallbacks the chain relies on: a neutral previous span when none is
// known, and draft thirds as scenes when the caller gave no scene split.
func buildInput(ep Episode) *guard.Input {
	in := &guard.Input{
		Project:  ep.Project,
		Episode:  ep.Number,
		Text:     ep.Draft,
		PrevText: ep.PrevText,
		Scenes:   ep.Scenes,
		Context:  ep.Context,
	}
	if in.PrevText == "" {
		in.PrevText = neutralPrevText
	}
	if len(in.Scenes) == 0 && len(ep.Draft) > 0 {
		n := len(ep.Draft)
		in.Scenes = []string{
			ep.Draft[:n/3],
			ep.Draft[n/3 : 2*n/3],
			ep.Draft[2*n/3:],
		}
	}
	if in.Context == nil {
		in.Context = map[string]any{}
	}
	return in
}

// loadCharacters fetches the character sheet; a missing document means
// character guards are skipped, not failed.
func (r *Runner) loadCharacters(ctx context.Context, project string) (map[string]map[string]any, bool, error) {
	chars := map[string]map[string]any{}
	err := r.Store.Load(ctx, project, charactersDoc, &chars)
	if err != nil {
		if storage.IsEmptyState(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return chars, true, nil
}

// Run executes the full guard chain against one episode. Every guard
// runs regardless of earlier violations; the report collects all
// outcomes. In strict mode a report with violations also yields
// ErrChainFailed.
func (r *Runner) Run(ctx context.Context, ep Episode) (*Report, error) {
	log := r.logger()
	in := buildInput(ep)

	chars, haveChars, err := r.loadCharacters(ctx, ep.Project)
	if err != nil {
		return nil, err
	}
	in.Characters = chars

	deps := guard.Deps{
		Project:  ep.Project,
		Store:    r.Store,
		Logger:   log,
		Scorer:   r.Scorer,
		Settings: r.Settings,
	}

	report := &Report{
		Project:     ep.Project,
		Episode:     ep.Number,
		GeneratedAt: time.Now().UTC(),
		Passed:      true,
	}

	for _, entry := range r.registry().Sorted() {
		g := entry.New(deps)

		if g.Kind() == guard.KindCharacterData && !haveChars {
			log.Warn("guard skipped: no character data",
				zap.String("guard", entry.Name), zap.Int("order", entry.Order))
			report.Outcomes = append(report.Outcomes, Outcome{
				Order: entry.Order, Guard: entry.Name, Passed: true, Skipped: "no character data",
			})
			continue
		}

		res, err := guard.RunWithRetry(ctx, log, r.Retry, entry.Name,
			func(ctx context.Context) (*guard.Result, error) {
				return g.Check(ctx, in)
			})

		switch {
		case err == nil:
			log.Info("guard passed",
				zap.String("guard", entry.Name), zap.Int("order", entry.Order))
			report.Outcomes = append(report.Outcomes, Outcome{
				Order: entry.Order, Guard: entry.Name, Passed: true, Details: res.Details,
			})
		default:
			var v *guard.Violation
			if !errors.As(err, &v) {
				// Not a quality signal: infrastructure errors abort the run.
				return nil, fmt.Errorf("guard %s: %w", entry.Name, err)
			}
			log.Warn("guard violation",
				zap.String("guard", entry.Name),
				zap.Int("order", entry.Order),
				zap.Int("attempts", v.Attempts),
				zap.String("violation", v.Error()))
			report.Passed = false
			report.Outcomes = append(report.Outcomes, Outcome{
				Order:     entry.Order,
				Guard:     entry.Name,
				Passed:    false,
				Violation: v.Message,
				Flags:     v.Flags,
				Attempts:  v.Attempts,
				History:   v.History,
			})
		}
	}

	if r.Strict && !report.Passed {
		return report, fmt.Errorf("%w: project %s episode %d", ErrChainFailed, ep.Project, ep.Number)
	}
	return report, nil
}

// RunBatch validates several episodes concurrently and returns reports
// in input order. The first infrastructure error cancels the batch;
// strict-mode chain failures surface per episode after all finish.
func (r *Runner) RunBatch(ctx context.Context, episodes []Episode) ([]*Report, error) {
	reports := make([]*Report, len(episodes))
	chainErrs := make([]error, len(episodes))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, ep := range episodes {
		g.Go(func() error {
			rep, err := r.Run(ctx, ep)
			if err != nil && !errors.Is(err, ErrChainFailed) {
				return err
			}
			reports[i] = rep
			chainErrs[i] = err
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, errors.Join(chainErrs...)
}
