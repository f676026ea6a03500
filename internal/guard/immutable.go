package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"storyguard/internal/storage"
)

const immutableSnapshotDoc = "immutable_snapshot.json"

// ImmutableGuard protects character fields declared immutable. Each
// character sheet may carry an "immutable" list naming fields whose
// values are frozen at first sight; any later change is a breach.
type ImmutableGuard struct {
	project string
	store   storage.Store
	log     *zap.Logger
}

// NewImmutableGuard builds the immutable guard bound to the project's
// store.
func NewImmutableGuard(d Deps) Guard {
	return &ImmutableGuard{project: d.Project, store: d.Store, log: d.logger()}
}

func (g *ImmutableGuard) Name() string  { return "immutable_guard" }
func (g *ImmutableGuard) Kind() ArgKind { return KindCharacterData }

// extractImmutable collects, per character, the values of the fields its
// "immutable" list names. Characters with no immutable list, and listed
// fields absent from the sheet, are skipped.
func extractImmutable(characters map[string]map[string]any) map[string]map[string]any {
	out := map[string]map[string]any{}
	for charID, sheet := range characters {
		rawList, ok := sheet["immutable"].([]any)
		if !ok || len(rawList) == 0 {
			continue
		}
		frozen := map[string]any{}
		for _, raw := range rawList {
			field, ok := raw.(string)
			if !ok {
				continue
			}
			if val, present := sheet[field]; present {
				frozen[field] = val
			}
		}
		if len(frozen) > 0 {
			out[charID] = frozen
		}
	}
	return out
}

// jsonEqual compares values through their JSON encoding. Snapshot values
// round-trip through JSON, so 17 and 17.0 must count as equal.
func jsonEqual(a, b any) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)
	if aerr != nil || berr != nil {
		return false
	}
	return bytes.Equal(aj, bj)
}

func (g *ImmutableGuard) Check(ctx context.Context, in *Input) (*Result, error) {
	current := extractImmutable(in.Characters)

	snapshot := map[string]map[string]any{}
	if err := g.store.Load(ctx, g.project, immutableSnapshotDoc, &snapshot); err != nil {
		if !storage.IsEmptyState(err) {
			return nil, err
		}
		snapshot = map[string]map[string]any{}
	}

	// First sight freezes the current values.
	if len(snapshot) == 0 {
		if err := g.store.Save(ctx, g.project, immutableSnapshotDoc, current); err != nil {
			return nil, err
		}
		return pass(g.Name(), map[string]any{"snapshot_created": true}), nil
	}

	type breach struct {
		Character     string `json:"character"`
		Field         string `json:"field"`
		OriginalValue any    `json:"original_value"`
		CurrentValue  any    `json:"current_value"`
	}
	var violations []breach

	charIDs := make([]string, 0, len(current))
	for id := range current {
		charIDs = append(charIDs, id)
	}
	sort.Strings(charIDs)

	for _, charID := range charIDs {
		frozen := current[charID]
		snapChar, known := snapshot[charID]
		if !known {
			// New character: freeze it now.
			snapshot[charID] = frozen
			continue
		}
		fields := make([]string, 0, len(frozen))
		for f := range frozen {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, field := range fields {
			currentVal := frozen[field]
			snapVal, seen := snapChar[field]
			if !seen {
				// Field newly marked immutable: freeze its value.
				snapChar[field] = currentVal
				continue
			}
			if !jsonEqual(currentVal, snapVal) {
				violations = append(violations, breach{
					Character:     charID,
					Field:         field,
					OriginalValue: snapVal,
					CurrentValue:  currentVal,
				})
			}
		}
	}

	// Persist additions even when the check fails, so new characters and
	// fields stay frozen across retries.
	if err := g.store.Save(ctx, g.project, immutableSnapshotDoc, snapshot); err != nil {
		return nil, err
	}

	if len(violations) > 0 {
		details := make([]map[string]any, len(violations))
		lines := make([]string, len(violations))
		for i, v := range violations {
			details[i] = map[string]any{
				"character":      v.Character,
				"field":          v.Field,
				"original_value": v.OriginalValue,
				"current_value":  v.CurrentValue,
			}
			lines[i] = fmt.Sprintf("%s.%s: %v -> %v", v.Character, v.Field, v.OriginalValue, v.CurrentValue)
		}
		flags := map[string]any{
			"immutable_breach": map[string]any{
				"count":   len(violations),
				"details": details,
				"message": fmt.Sprintf("%d immutable field violation(s) detected", len(violations)),
			},
		}
		g.log.Warn("immutable guard: breach detected",
			zap.String("project", g.project), zap.Int("count", len(violations)))
		return nil, NewViolation(g.Name(),
			"Immutable field violations: "+strings.Join(lines, "; "), flags)
	}

	return pass(g.Name(), map[string]any{
		"checked_characters": len(current),
	}), nil
}
