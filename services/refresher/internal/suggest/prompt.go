package suggest

import (
	"fmt"
	"strings"
	"time"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

// Requested shape of the curated weekly list.
const (
	CuratedItems  = 50
	CuratedGroups = 5
	MaxReleases   = 20
)

// FormatProfile renders the taste profile as prompt text, one bucket per
// heading. Empty buckets read "none".
func FormatProfile(p domain.TasteProfile) string {
	var b strings.Builder
	section := func(heading string, refs []domain.CatalogReference) {
		b.WriteString(heading)
		b.WriteString("\n")
		if len(refs) == 0 {
			b.WriteString("- none\n")
		}
		for _, r := range refs {
			fmt.Fprintf(&b, "- %s (format: %s, genre: %s)\n", r.Title, orDash(r.Format), orDash(r.Genre))
		}
		b.WriteString("\n")
	}
	section("LOVED (perfect for me, main source of inspiration):", p.Loved)
	section("LIKED (very good, hints of what was missing for a love):", p.Liked)
	section("NEUTRAL (average, traps to avoid):", p.Neutral)
	section("DISLIKED (elements to exclude entirely):", p.Disliked)
	return strings.TrimSpace(b.String())
}

func formatExclusions(titles []string) string {
	if len(titles) == 0 {
		return "- none"
	}
	var b strings.Builder
	for _, t := range titles {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func curatedPrompt(p domain.TasteProfile, exclude []string) string {
	return fmt.Sprintf(`You are a personal film and TV curator. Study the TASTE PROFILE and produce a list of EXACTLY %d already released movies and series that this person is likely to love.

TASTE PROFILE:
%s

EXCLUSION LIST (never include any of these titles):
%s

RULES:
1. Excluded titles are forbidden, no exceptions.
2. Only titles that can be watched today. No upcoming releases.
3. Exactly %d creative thematic groups with %d titles each. At least one group must contain series only.
4. Use the official title as listed on TMDb, the release year, and media_kind "movie" or "tv".
5. Each item gets a one sentence rationale tied to the profile.`,
		CuratedItems, FormatProfile(p), formatExclusions(exclude),
		CuratedGroups, CuratedItems/CuratedGroups)
}

func challengePrompt(p domain.TasteProfile, exclude []string, now time.Time) string {
	return fmt.Sprintf(`Today is %s. You are a personal film and TV curator. Create ONE creative, themed weekly challenge for this person.

ALREADY WATCHED (never suggest these):
%s

RULES:
1. Be creative: a director marathon, seasonal classics that fit today's date, a hidden gem from an actor they love, a trilogy.
2. The challenge is a single title or an ordered set of up to %d titles.
3. Connect it to what they already love while pushing them out of their comfort zone.
4. The rationale is short and sparks curiosity.
5. Use the official title as listed on TMDb, the release year, and media_kind "movie" or "tv".

TASTE PROFILE:
%s`,
		now.Format("January 2"), formatExclusions(exclude), domain.MaxChallengeSteps, FormatProfile(p))
}

// ReleaseCandidate is an upcoming item offered to the generator.
type ReleaseCandidate struct {
	ID          int64
	Kind        domain.MediaKind
	Title       string
	ReleaseDate string
	Overview    string
}

func releasesPrompt(p domain.TasteProfile, releases []ReleaseCandidate) string {
	var b strings.Builder
	for _, r := range releases {
		fmt.Fprintf(&b, "- id=%d media_kind=%s title=%q date=%s: %s\n", r.ID, r.Kind, r.Title, r.ReleaseDate, truncate(r.Overview, 200))
	}
	return fmt.Sprintf(`Study the taste profile and the list of upcoming releases, then pick up to %d releases this person will care about most. Only pick ids from the list.

TASTE PROFILE:
%s

RELEASES:
%s`, MaxReleases, FormatProfile(p), strings.TrimSpace(b.String()))
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
