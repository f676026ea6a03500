package guard

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strings"

	"storyguard/internal/storage"
)

// Korean past-tense action verbs marking an action beat in a sentence.
var actionKeywords = []string{
	"달렸다", "때렸다", "꺼냈다", "던졌다", "잡았다", "쳤다", "뛰었다",
	"싸웠다", "공격했다", "방어했다", "피했다", "숨었다", "뛰어갔다",
	"달려갔다", "움직였다", "행동했다", "실행했다", "수행했다", "진행했다",
	"시작했다", "끝냈다", "완료했다", "했다", "갔다", "왔다", "봤다",
	"들었다", "말했다", "외쳤다", "소리쳤다",
}

// Korean cognition and feeling verbs marking internal monolog.
var monologKeywords = []string{
	"생각했다", "느꼈다", "깨달았다", "알았다", "믿었다", "의심했다",
	"확신했다", "추측했다", "상상했다", "기억했다", "잊었다", "회상했다",
	"반성했다", "후회했다", "바랐다", "원했다", "희망했다", "걱정했다",
	"두려워했다", "안심했다", "놀랐다", "의아했다", "궁금했다", "이해했다",
	"납득했다", "받아들였다", "거부했다", "결심했다", "다짐했다",
	"계획했다", "예상했다", "기대했다", "실망했다",
}

var (
	dialogRe       = regexp.MustCompile(`"([^"]*)"`)
	sentenceSplitRe = regexp.MustCompile(`[.!?。！？]+`)
)

// PacingRatios holds the action/dialog/monolog distribution of a span,
// each in [0,1] and summing to 1 when any content units were found.
type PacingRatios struct {
	Action  float64 `json:"action"`
	Dialog  float64 `json:"dialog"`
	Monolog float64 `json:"monolog"`
}

// AnalyzePacing classifies a span into action, dialog, and monolog
// content units. Dialog is quoted text; the remaining sentences are
// monolog when they contain a cognition verb (checked first, being the
// more specific signal), otherwise action when they contain an action
// verb. Sentences matching neither are not counted.
func AnalyzePacing(text string) PacingRatios {
	if strings.TrimSpace(text) == "" {
		return PacingRatios{}
	}

	var action, dialog, monolog int

	for _, m := range dialogRe.FindAllStringSubmatch(text, -1) {
		if strings.TrimSpace(m[1]) != "" {
			dialog++
		}
	}

	rest := dialogRe.ReplaceAllString(text, "")
	for _, sent := range sentenceSplitRe.Split(rest, -1) {
		sent = strings.TrimSpace(sent)
		if sent == "" {
			continue
		}
		if containsAny(sent, monologKeywords) {
			monolog++
			continue
		}
		if containsAny(sent, actionKeywords) {
			action++
		}
	}

	total := action + dialog + monolog
	if total == 0 {
		return PacingRatios{}
	}
	return PacingRatios{
		Action:  float64(action) / float64(total),
		Dialog:  float64(dialog) / float64(total),
		Monolog: float64(monolog) / float64(total),
	}
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// pacingBaseline is the canonical distribution rolling averages blend
// toward: 30% action, 40% dialog, 30% monolog.
var pacingBaseline = PacingRatios{Action: 0.3, Dialog: 0.4, Monolog: 0.3}

// pacingConfigDoc optionally overrides tolerance and window per project.
const pacingConfigDoc = "pacing_config.json"

type pacingConfig struct {
	Tolerance float64 `json:"tolerance"`
	Window    int     `json:"window"`
}

// PacingGuard validates action/dialog/monolog balance of an episode's
// scenes against a rolling baseline.
type PacingGuard struct {
	project   string
	store     storage.Store
	tolerance float64
	window    int
}

// NewPacingGuard builds the pacing guard from the configured tolerance
// and window. A pacing_config.json in the project's data directory
// overrides both.
func NewPacingGuard(d Deps) Guard {
	s := d.Settings.Normalize()
	return &PacingGuard{
		project:   d.Project,
		store:     d.Store,
		tolerance: s.PacingTolerance,
		window:    s.PacingWindow,
	}
}

// applyProjectConfig layers the optional per-project override on top of
// the configured thresholds. A missing or corrupt document leaves them
// untouched.
func (g *PacingGuard) applyProjectConfig(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	var cfg pacingConfig
	if err := g.store.Load(ctx, g.project, pacingConfigDoc, &cfg); err != nil {
		if storage.IsEmptyState(err) {
			return nil
		}
		return err
	}
	if cfg.Tolerance > 0 {
		g.tolerance = cfg.Tolerance
	}
	if cfg.Window > 0 {
		g.window = cfg.Window
	}
	return nil
}

func (g *PacingGuard) Name() string  { return "pacing_guard" }
func (g *PacingGuard) Kind() ArgKind { return KindScenesAndEpisode }

// rollingAverage blends the baseline distribution (70%) with the mean
// of up to window scene distributions (30%). With no usable scenes it
// returns the baseline unchanged.
func (g *PacingGuard) rollingAverage(scenes []string) PacingRatios {
	var sum PacingRatios
	analyzed := 0
	limit := len(scenes)
	if g.window < limit {
		limit = g.window
	}
	for _, scene := range scenes[:limit] {
		if strings.TrimSpace(scene) == "" {
			continue
		}
		r := AnalyzePacing(scene)
		sum.Action += r.Action
		sum.Dialog += r.Dialog
		sum.Monolog += r.Monolog
		analyzed++
	}
	if analyzed == 0 {
		return pacingBaseline
	}
	n := float64(analyzed)
	return PacingRatios{
		Action:  pacingBaseline.Action*0.7 + sum.Action/n*0.3,
		Dialog:  pacingBaseline.Dialog*0.7 + sum.Dialog/n*0.3,
		Monolog: pacingBaseline.Monolog*0.7 + sum.Monolog/n*0.3,
	}
}

func (g *PacingGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	if len(in.Scenes) == 0 {
		return pass(g.Name(), map[string]any{"skipped": "no scenes"}), nil
	}
	if err := g.applyProjectConfig(ctx); err != nil {
		return nil, err
	}

	current := AnalyzePacing(strings.Join(in.Scenes, " "))
	average := g.rollingAverage(in.Scenes)

	type pair struct {
		name             string
		current, average float64
	}
	pairs := []pair{
		{"action", current.Action, average.Action},
		{"dialog", current.Dialog, average.Dialog},
		{"monolog", current.Monolog, average.Monolog},
	}

	deviations := map[string]float64{}
	var violations []map[string]any

	for _, p := range pairs {
		abs := math.Abs(p.current - p.average)
		var rel float64
		if p.average > 0.05 {
			rel = abs / p.average
		} else {
			// Near-zero averages would make relative deviation explode;
			// measure against the tolerance instead.
			rel = abs / g.tolerance
		}
		deviations[p.name] = rel

		// The relative threshold alone over-triggers on small ratios, so
		// a minimum absolute gap of 15 points is also required.
		if rel > g.tolerance && abs > 0.15 {
			violations = append(violations, map[string]any{
				"content_type":  p.name,
				"current_ratio": p.current,
				"average_ratio": p.average,
				"deviation":     rel,
				"tolerance":     g.tolerance,
				"message": fmt.Sprintf("%s ratio %.1f%% deviates %.1f%% from average %.1f%% (tolerance: %.1f%%)",
					p.name, p.current*100, rel*100, p.average*100, g.tolerance*100),
			})
		}
	}

	if len(violations) > 0 {
		flags := map[string]any{
			"pacing_violation": map[string]any{
				"violations":     violations,
				"current_ratios": current,
				"average_ratios": average,
				"tolerance":      g.tolerance,
			},
		}
		msg := fmt.Sprintf("Pacing violation: %s", violations[0]["message"])
		return nil, NewViolation(g.Name(), msg, flags)
	}

	return pass(g.Name(), map[string]any{
		"current_ratios": current,
		"average_ratios": average,
		"deviations":     deviations,
	}), nil
}
