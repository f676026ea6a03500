package guard

import (
	"context"
	"fmt"

	"storyguard/internal/foreshadow"
	"storyguard/internal/storage"
)

// ScheduleGuard fails an episode when any planted foreshadow is past its
// due episode without a recorded payoff.
type ScheduleGuard struct {
	ledger *foreshadow.Ledger
}

// NewScheduleGuard builds the schedule guard over the project's
// foreshadow ledger.
func NewScheduleGuard(d Deps) Guard {
	return &ScheduleGuard{
		ledger: foreshadow.NewLedger(d.Store, d.Project, d.Settings.Normalize().TotalEpisodes),
	}
}

// NewScheduleGuardWithLedger wires an existing ledger, for callers that
// already hold one.
func NewScheduleGuardWithLedger(ledger *foreshadow.Ledger) Guard {
	return &ScheduleGuard{ledger: ledger}
}

func (g *ScheduleGuard) Name() string  { return "schedule_guard" }
func (g *ScheduleGuard) Kind() ArgKind { return KindEpisodeOnly }

func (g *ScheduleGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	overdue, err := g.ledger.Overdue(ctx, in.Episode)
	if err != nil {
		if storage.IsEmptyState(err) {
			return pass(g.Name(), map[string]any{"overdue": 0}), nil
		}
		return nil, err
	}

	if len(overdue) > 0 {
		details := make([]map[string]any, len(overdue))
		for i, f := range overdue {
			details[i] = map[string]any{
				"id":               f.ID,
				"hint":             f.Hint,
				"introduced":       f.Introduced,
				"due":              f.Due,
				"episodes_overdue": in.Episode - f.Due,
			}
		}
		msg := fmt.Sprintf("%d foreshadow(s) past due episode without resolution", len(overdue))
		flags := map[string]any{
			"overdue_foreshadows": map[string]any{
				"count":   len(overdue),
				"details": details,
				"message": msg,
			},
		}
		return nil, NewViolation(g.Name(), "Foreshadow schedule violations: "+msg, flags)
	}

	return pass(g.Name(), map[string]any{
		"overdue":         0,
		"current_episode": in.Episode,
	}), nil
}
