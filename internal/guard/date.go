package guard

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storyguard/internal/storage"
)

// dateLogDoc is the persisted episode-number to date-string mapping.
// JSON object keys are strings, so episode numbers round-trip as strings.
const dateLogDoc = "episode_dates.json"

// DateGuard ensures the story timeline never moves backwards: each
// episode's in-world date must be on or after the date of the most
// recent earlier episode on record.
type DateGuard struct {
	project string
	store   storage.Store
	log     *zap.Logger
}

// NewDateGuard builds the date guard bound to the project's store.
func NewDateGuard(d Deps) Guard {
	return &DateGuard{project: d.Project, store: d.Store, log: d.logger()}
}

func (g *DateGuard) Name() string  { return "date_guard" }
func (g *DateGuard) Kind() ArgKind { return KindContextAndEpisode }

// parseStoryDate accepts YYYY-MM-DD and YYYY/MM/DD.
func parseStoryDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// extractEpisodeDate pulls the episode date from the context, checking
// "date", then "meta.date", then "episode_date".
func extractEpisodeDate(context map[string]any) string {
	if v, ok := context["date"].(string); ok {
		return v
	}
	if meta, ok := context["meta"].(map[string]any); ok {
		if v, ok := meta["date"].(string); ok {
			return v
		}
	}
	if v, ok := context["episode_date"].(string); ok {
		return v
	}
	return ""
}

func (g *DateGuard) loadLog(ctx context.Context) (map[string]string, error) {
	dateLog := map[string]string{}
	err := g.store.Load(ctx, g.project, dateLogDoc, &dateLog)
	if err != nil {
		if storage.IsEmptyState(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	return dateLog, nil
}

func (g *DateGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	currentStr := extractEpisodeDate(in.Context)
	if currentStr == "" {
		// Dateless episodes are allowed; there is nothing to compare.
		return pass(g.Name(), map[string]any{"skipped": "no date in context"}), nil
	}

	current, ok := parseStoryDate(currentStr)
	if !ok {
		// Unparseable dates are not a chronology problem.
		g.log.Debug("date guard: unparseable date", zap.String("date", currentStr))
		return pass(g.Name(), map[string]any{"skipped": "unparseable date", "current_date": currentStr}), nil
	}

	dateLog, err := g.loadLog(ctx)
	if err != nil {
		return nil, err
	}

	// Most recent episode strictly before this one.
	prevEp := 0
	prevStr := ""
	for key, val := range dateLog {
		var ep int
		if _, err := fmt.Sscanf(key, "%d", &ep); err != nil {
			continue
		}
		if ep < in.Episode && ep > prevEp {
			prevEp, prevStr = ep, val
		}
	}

	record := func(details map[string]any) (*Result, error) {
		dateLog[fmt.Sprintf("%d", in.Episode)] = currentStr
		if err := g.store.Save(ctx, g.project, dateLogDoc, dateLog); err != nil {
			return nil, err
		}
		return pass(g.Name(), details), nil
	}

	if prevEp == 0 {
		created := len(dateLog) == 0
		return record(map[string]any{
			"current_date":     currentStr,
			"date_log_created": created,
		})
	}

	prev, ok := parseStoryDate(prevStr)
	if !ok {
		return record(map[string]any{
			"current_date":  currentStr,
			"previous_date": prevStr,
			"skipped":       "unparseable previous date",
		})
	}

	if current.Before(prev) {
		daysBackward := int(prev.Sub(current).Hours() / 24)
		flags := map[string]any{
			"date_backstep": map[string]any{
				"current_date":     currentStr,
				"previous_date":    prevStr,
				"current_episode":  in.Episode,
				"previous_episode": prevEp,
				"days_backward":    daysBackward,
				"message": fmt.Sprintf("Episode %d date %s is %d days before episode %d date %s",
					in.Episode, currentStr, daysBackward, prevEp, prevStr),
			},
		}
		msg := fmt.Sprintf("Date backstep: Episode %d (%s) goes back %d days from Episode %d (%s)",
			in.Episode, currentStr, daysBackward, prevEp, prevStr)
		return nil, NewViolation(g.Name(), msg, flags)
	}

	return record(map[string]any{
		"current_date":     currentStr,
		"previous_date":    prevStr,
		"previous_episode": prevEp,
	})
}
