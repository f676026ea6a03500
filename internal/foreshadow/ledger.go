// Package foreshadow manages planted-hint bookkeeping: each hint is
// recorded when introduced, assigned a due episode, and marked resolved
// when its payoff appears in the text.
package foreshadow

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"storyguard/internal/storage"
)

// Doc is the persisted document name for the foreshadow ledger.
const Doc = "foreshadow.json"

// DefaultTotalEpisodes caps due episodes when the caller gives no cap.
const DefaultTotalEpisodes = 250

// Record is one planted hint. Payoff is nil until resolved, then holds
// the resolving episode.
type Record struct {
	ID         string `json:"id"`
	Hint       string `json:"hint"`
	Introduced int    `json:"introduced"`
	Due        int    `json:"due"`
	Payoff     *int   `json:"payoff"`
}

// Document is the persisted ledger shape.
type Document struct {
	Foreshadows []Record `json:"foreshadows"`
}

// resolvedRe matches explicit payoff markers like [RESOLVED:f3a91bc].
var resolvedRe = regexp.MustCompile(`\[RESOLVED:([^\]]+)\]`)

// Ledger is the project-scoped foreshadow store.
type Ledger struct {
	project       string
	store         storage.Store
	totalEpisodes int
}

// NewLedger creates a ledger for the project. totalEpisodes caps due
// episodes; zero or negative uses DefaultTotalEpisodes.
func NewLedger(store storage.Store, project string, totalEpisodes int) *Ledger {
	if totalEpisodes <= 0 {
		totalEpisodes = DefaultTotalEpisodes
	}
	return &Ledger{project: project, store: store, totalEpisodes: totalEpisodes}
}

func (l *Ledger) load(ctx context.Context) (*Document, error) {
	var doc Document
	if err := l.store.Load(ctx, l.project, Doc, &doc); err != nil {
		if storage.IsEmptyState(err) {
			return &Document{}, nil
		}
		return nil, err
	}
	return &doc, nil
}

func (l *Ledger) save(ctx context.Context, doc *Document) error {
	return l.store.Save(ctx, l.project, Doc, doc)
}

// newID produces an id like "f3a91bc": "f" plus six hex characters,
// unique within the ledger.
func newID(existing map[string]struct{}) string {
	for i := 0; i < 100; i++ {
		raw := strings.ReplaceAll(uuid.NewString(), "-", "")
		id := "f" + raw[:6]
		if _, taken := existing[id]; !taken {
			return id
		}
	}
	// Practically unreachable; sequence numbering breaks the collision.
	return fmt.Sprintf("f%06d", len(existing))
}

// Schedule records a new hint introduced at the given episode. The due
// episode is introduced plus a random 10 to 30 episode offset, capped at
// the story's total episode count.
func (l *Ledger) Schedule(ctx context.Context, hint string, introducedEp int) (Record, error) {
	doc, err := l.load(ctx)
	if err != nil {
		return Record{}, err
	}

	existing := make(map[string]struct{}, len(doc.Foreshadows))
	for _, f := range doc.Foreshadows {
		existing[f.ID] = struct{}{}
	}

	due := introducedEp + 10 + rand.Intn(21)
	if due > l.totalEpisodes {
		due = l.totalEpisodes
	}

	rec := Record{
		ID:         newID(existing),
		Hint:       hint,
		Introduced: introducedEp,
		Due:        due,
	}
	doc.Foreshadows = append(doc.Foreshadows, rec)
	if err := l.save(ctx, doc); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// TrackPayoff scans content for [RESOLVED:<id>] markers and marks the
// matching unresolved records as paid off at the given episode. Already
// resolved records keep their original payoff. Returns whether anything
// was newly resolved.
func (l *Ledger) TrackPayoff(ctx context.Context, episode int, content string) (bool, error) {
	matches := resolvedRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return false, nil
	}
	ids := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		ids[m[1]] = struct{}{}
	}

	doc, err := l.load(ctx)
	if err != nil {
		return false, err
	}

	resolved := false
	for i := range doc.Foreshadows {
		f := &doc.Foreshadows[i]
		if _, hit := ids[f.ID]; hit && f.Payoff == nil {
			ep := episode
			f.Payoff = &ep
			resolved = true
		}
	}
	if !resolved {
		return false, nil
	}
	return true, l.save(ctx, doc)
}

// Resolve marks one record as paid off at the given episode. It returns
// false when the id is unknown or the record is already resolved.
func (l *Ledger) Resolve(ctx context.Context, id string, episode int) (bool, error) {
	doc, err := l.load(ctx)
	if err != nil {
		return false, err
	}
	for i := range doc.Foreshadows {
		f := &doc.Foreshadows[i]
		if f.ID != id {
			continue
		}
		if f.Payoff != nil {
			return false, nil
		}
		ep := episode
		f.Payoff = &ep
		return true, l.save(ctx, doc)
	}
	return false, nil
}

// All returns every record in the ledger.
func (l *Ledger) All(ctx context.Context) ([]Record, error) {
	doc, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	return doc.Foreshadows, nil
}

// Unresolved returns records with no payoff yet.
func (l *Ledger) Unresolved(ctx context.Context) ([]Record, error) {
	doc, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, f := range doc.Foreshadows {
		if f.Payoff == nil {
			out = append(out, f)
		}
	}
	return out, nil
}

// Overdue returns unresolved records whose due episode is strictly
// before the current episode. An episode equal to the due episode is the
// last chance, not yet overdue.
func (l *Ledger) Overdue(ctx context.Context, currentEpisode int) ([]Record, error) {
	unresolved, err := l.Unresolved(ctx)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, f := range unresolved {
		if currentEpisode > f.Due {
			out = append(out, f)
		}
	}
	return out, nil
}
