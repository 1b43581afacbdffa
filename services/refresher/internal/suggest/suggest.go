// Package suggest asks the generative backend for candidate titles and
// validates its output at a strict parse-or-reject boundary.
package suggest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/genai"
)

// ErrNotGenerated is returned for categories that never use the generator.
var ErrNotGenerated = errors.New("suggest: category does not use generated suggestions")

// SchemaError means the generator output did not have the required shape.
// No partial result accompanies it.
type SchemaError struct {
	Category domain.RefreshCategory
	Reason   string
	Err      error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("suggest: %s output rejected: %s: %v", e.Category, e.Reason, e.Err)
	}
	return fmt.Sprintf("suggest: %s output rejected: %s", e.Category, e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ChallengePlan is the generator's themed set for a weekly challenge.
type ChallengePlan struct {
	Theme     string
	Rationale string
	Items     []domain.RawSuggestion
}

// ReleasePick is one upcoming release chosen by the generator.
type ReleasePick struct {
	ID     int64
	Kind   domain.MediaKind
	Reason string
}

type Orchestrator struct {
	Gen genai.Generator
	Log *zap.Logger
	Loc *time.Location
}

func New(gen genai.Generator, log *zap.Logger, loc *time.Location) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Orchestrator{Gen: gen, Log: log, Loc: loc}
}

// RequestSuggestions returns the grouped candidates for category. Only
// CuratedWeekly produces a flat grouped list; the other generated categories
// have dedicated methods.
func (o *Orchestrator) RequestSuggestions(ctx context.Context, category domain.RefreshCategory, profile domain.TasteProfile, exclude []string) ([]domain.RawSuggestion, error) {
	if category != domain.CuratedWeekly {
		return nil, fmt.Errorf("%w: %s", ErrNotGenerated, category)
	}
	raw, err := o.Gen.Generate(ctx, curatedPrompt(profile, exclude), curatedSchema)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", category, err)
	}
	out, groups, err := parseCurated(raw)
	if err != nil {
		return nil, err
	}
	if len(out) != CuratedItems || groups != CuratedGroups {
		o.Log.Warn("curated list shape differs from request",
			zap.Int("items", len(out)), zap.Int("groups", groups))
	}
	return out, nil
}

func (o *Orchestrator) RequestChallenge(ctx context.Context, profile domain.TasteProfile, exclude []string, now time.Time) (ChallengePlan, error) {
	raw, err := o.Gen.Generate(ctx, challengePrompt(profile, exclude, now.In(o.Loc)), challengeSchema)
	if err != nil {
		return ChallengePlan{}, fmt.Errorf("generate %s: %w", domain.WeeklyChallenge, err)
	}
	return parseChallenge(raw)
}

// RequestRelevantReleases picks from releases. Ids not present in releases
// are dropped, so the result is always a subset of the input.
func (o *Orchestrator) RequestRelevantReleases(ctx context.Context, profile domain.TasteProfile, releases []ReleaseCandidate) ([]ReleasePick, error) {
	if len(releases) == 0 {
		return nil, nil
	}
	raw, err := o.Gen.Generate(ctx, releasesPrompt(profile, releases), releasesSchema)
	if err != nil {
		return nil, fmt.Errorf("generate %s: %w", domain.RelevantReleases, err)
	}
	picks, err := parseReleases(raw)
	if err != nil {
		return nil, err
	}

	offered := make(map[int64]domain.MediaKind, len(releases))
	for _, r := range releases {
		offered[r.ID] = r.Kind
	}
	out := make([]ReleasePick, 0, len(picks))
	seen := make(map[int64]struct{}, len(picks))
	for _, p := range picks {
		kind, ok := offered[p.ID]
		if !ok {
			o.Log.Warn("generator picked a release outside the offered list", zap.Int64("id", p.ID))
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		p.Kind = kind
		out = append(out, p)
		if len(out) == MaxReleases {
			break
		}
	}
	return out, nil
}

type wireItem struct {
	Title     string `json:"title"`
	Year      int    `json:"year"`
	MediaKind string `json:"media_kind"`
	Rationale string `json:"rationale"`
}

func (w wireItem) toRaw(group string) (domain.RawSuggestion, error) {
	title := strings.TrimSpace(w.Title)
	if title == "" {
		return domain.RawSuggestion{}, errors.New("item without title")
	}
	kind, err := domain.ParseMediaKind(w.MediaKind)
	if err != nil {
		return domain.RawSuggestion{}, fmt.Errorf("item %q: %w", title, err)
	}
	if w.Year < 0 {
		return domain.RawSuggestion{}, fmt.Errorf("item %q: negative year", title)
	}
	return domain.RawSuggestion{
		Group:     group,
		Title:     title,
		Year:      w.Year,
		Kind:      kind,
		Rationale: strings.TrimSpace(w.Rationale),
	}, nil
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("trailing data after JSON value")
	}
	return nil
}

func parseCurated(raw json.RawMessage) ([]domain.RawSuggestion, int, error) {
	var wire struct {
		Groups []struct {
			Name  string     `json:"name"`
			Items []wireItem `json:"items"`
		} `json:"groups"`
	}
	reject := func(reason string, err error) ([]domain.RawSuggestion, int, error) {
		return nil, 0, &SchemaError{Category: domain.CuratedWeekly, Reason: reason, Err: err}
	}
	if err := decodeStrict(raw, &wire); err != nil {
		return reject("invalid JSON", err)
	}
	if len(wire.Groups) == 0 {
		return reject("no groups", nil)
	}
	var out []domain.RawSuggestion
	for i, g := range wire.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return reject(fmt.Sprintf("group %d has no name", i), nil)
		}
		if len(g.Items) == 0 {
			return reject(fmt.Sprintf("group %q has no items", name), nil)
		}
		for _, it := range g.Items {
			rs, err := it.toRaw(name)
			if err != nil {
				return reject(fmt.Sprintf("group %q", name), err)
			}
			out = append(out, rs)
		}
	}
	return out, len(wire.Groups), nil
}

func parseChallenge(raw json.RawMessage) (ChallengePlan, error) {
	var wire struct {
		Theme     string     `json:"theme"`
		Rationale string     `json:"rationale"`
		Items     []wireItem `json:"items"`
	}
	reject := func(reason string, err error) (ChallengePlan, error) {
		return ChallengePlan{}, &SchemaError{Category: domain.WeeklyChallenge, Reason: reason, Err: err}
	}
	if err := decodeStrict(raw, &wire); err != nil {
		return reject("invalid JSON", err)
	}
	plan := ChallengePlan{Theme: strings.TrimSpace(wire.Theme), Rationale: strings.TrimSpace(wire.Rationale)}
	if plan.Theme == "" {
		return reject("missing theme", nil)
	}
	if n := len(wire.Items); n == 0 || n > domain.MaxChallengeSteps {
		return reject(fmt.Sprintf("%d items, want 1..%d", n, domain.MaxChallengeSteps), nil)
	}
	for _, it := range wire.Items {
		rs, err := it.toRaw(plan.Theme)
		if err != nil {
			return reject("bad item", err)
		}
		plan.Items = append(plan.Items, rs)
	}
	return plan, nil
}

func parseReleases(raw json.RawMessage) ([]ReleasePick, error) {
	var wire struct {
		Picks []struct {
			ID        int64  `json:"id"`
			MediaKind string `json:"media_kind"`
			Reason    string `json:"reason"`
		} `json:"picks"`
	}
	reject := func(reason string, err error) ([]ReleasePick, error) {
		return nil, &SchemaError{Category: domain.RelevantReleases, Reason: reason, Err: err}
	}
	if err := decodeStrict(raw, &wire); err != nil {
		return reject("invalid JSON", err)
	}
	out := make([]ReleasePick, 0, len(wire.Picks))
	for _, p := range wire.Picks {
		if p.ID <= 0 {
			return reject("pick without id", nil)
		}
		kind, err := domain.ParseMediaKind(p.MediaKind)
		if err != nil {
			return reject(fmt.Sprintf("pick %d", p.ID), err)
		}
		out = append(out, ReleasePick{ID: p.ID, Kind: kind, Reason: strings.TrimSpace(p.Reason)})
	}
	return out, nil
}
