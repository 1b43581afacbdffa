// Package domain holds the types shared by every refresh stage.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// MediaKind is the catalog's media type.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
)

func (k MediaKind) Valid() bool { return k == KindMovie || k == KindTV }

// ParseMediaKind accepts the catalog names plus the common aliases a
// generator tends to emit.
func ParseMediaKind(s string) (MediaKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "film", "filme":
		return KindMovie, nil
	case "tv", "series", "serie", "série", "show":
		return KindTV, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

// CatalogReference identifies an item by its canonical catalog id.
type CatalogReference struct {
	ID     int64     `json:"id"`
	Kind   MediaKind `json:"media_kind"`
	Title  string    `json:"title"`
	Genre  string    `json:"genre,omitempty"`
	Format string    `json:"format,omitempty"`
}

// Rating buckets of the taste profile.
type Rating string

const (
	RatingLoved    Rating = "loved"
	RatingLiked    Rating = "liked"
	RatingNeutral  Rating = "neutral"
	RatingDisliked Rating = "disliked"
)

// ParseRating maps stored ratings to a bucket; anything unknown is neutral.
func ParseRating(s string) Rating {
	switch Rating(strings.ToLower(strings.TrimSpace(s))) {
	case RatingLoved:
		return RatingLoved
	case RatingLiked:
		return RatingLiked
	case RatingDisliked:
		return RatingDisliked
	}
	return RatingNeutral
}

// TasteProfile is the user's history bucketed by rating. Read-only input.
type TasteProfile struct {
	Loved    []CatalogReference
	Liked    []CatalogReference
	Neutral  []CatalogReference
	Disliked []CatalogReference
}

func (p *TasteProfile) Add(r Rating, ref CatalogReference) {
	switch r {
	case RatingLoved:
		p.Loved = append(p.Loved, ref)
	case RatingLiked:
		p.Liked = append(p.Liked, ref)
	case RatingDisliked:
		p.Disliked = append(p.Disliked, ref)
	default:
		p.Neutral = append(p.Neutral, ref)
	}
}

func (p TasteProfile) All() []CatalogReference {
	out := make([]CatalogReference, 0, p.Len())
	out = append(out, p.Loved...)
	out = append(out, p.Liked...)
	out = append(out, p.Neutral...)
	out = append(out, p.Disliked...)
	return out
}

func (p TasteProfile) Len() int {
	return len(p.Loved) + len(p.Liked) + len(p.Neutral) + len(p.Disliked)
}

// Titles returns every title in the profile, the exclusion list handed to
// the generator.
func (p TasteProfile) Titles() []string {
	all := p.All()
	out := make([]string, 0, len(all))
	for _, r := range all {
		out = append(out, r.Title)
	}
	return out
}

// IDs returns the set of canonical ids already seen by the user.
func (p TasteProfile) IDs() map[int64]struct{} {
	out := make(map[int64]struct{}, p.Len())
	for _, r := range p.All() {
		if r.ID > 0 {
			out[r.ID] = struct{}{}
		}
	}
	return out
}

// RefreshCategory names one derived collection with its own staleness policy.
type RefreshCategory string

const (
	FastTrending     RefreshCategory = "fast_trending"
	CuratedWeekly    RefreshCategory = "curated_weekly"
	WeeklyChallenge  RefreshCategory = "weekly_challenge"
	RelevantReleases RefreshCategory = "relevant_releases"
)

// Categories lists every category in scheduling order.
var Categories = []RefreshCategory{FastTrending, CuratedWeekly, WeeklyChallenge, RelevantReleases}

func ParseCategory(s string) (RefreshCategory, error) {
	c := RefreshCategory(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Categories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown refresh category %q", s)
}

// StalenessRecord is the last successful publish of a category.
type StalenessRecord struct {
	Category     RefreshCategory `json:"category"`
	LastUpdate   time.Time       `json:"last_update"`
	RunStartedAt time.Time       `json:"run_started_at"`
}

// RawSuggestion is one unvalidated item from the generator.
type RawSuggestion struct {
	Group     string    `json:"group,omitempty"`
	Title     string    `json:"title"`
	Year      int       `json:"year,omitempty"`
	Kind      MediaKind `json:"media_kind"`
	Rationale string    `json:"rationale,omitempty"`
}

// ResolvedCandidate is a suggestion matched to the catalog and enriched.
type ResolvedCandidate struct {
	RawSuggestion
	CanonicalID  int64     `json:"canonical_id"`
	MatchedKind  MediaKind `json:"matched_kind"`
	DisplayTitle string    `json:"display_title"`
	PosterURL    string    `json:"poster_url,omitempty"`
	Genre        string    `json:"genre,omitempty"`
	Synopsis     string    `json:"synopsis,omitempty"`
	ReleaseDate  string    `json:"release_date,omitempty"`
}

// CacheEntry is one published item of a category. A category's entries are
// always replaced as a whole.
type CacheEntry struct {
	Category    RefreshCategory `json:"category"`
	CanonicalID int64           `json:"canonical_id"`
	Kind        MediaKind       `json:"media_kind"`
	Title       string          `json:"title"`
	PosterURL   string          `json:"poster_url,omitempty"`
	Genre       string          `json:"genre,omitempty"`
	Synopsis    string          `json:"synopsis,omitempty"`
	Rationale   string          `json:"rationale,omitempty"`
	Group       string          `json:"group,omitempty"`
	Rank        int             `json:"rank,omitempty"`
	ListType    string          `json:"list_type,omitempty"`
	ProviderID  int             `json:"provider_id,omitempty"`
	ReleaseDate string          `json:"release_date,omitempty"`
}

// Collection is a category's published snapshot.
type Collection struct {
	Category   RefreshCategory `json:"category"`
	LastUpdate *time.Time      `json:"last_update,omitempty"`
	Entries    []CacheEntry    `json:"entries"`
}
