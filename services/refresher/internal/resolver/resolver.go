// Package resolver matches a free-text title to one canonical catalog item.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/tmdb"
)

// ErrNotFound means no catalog item matched. It is recoverable per item.
var ErrNotFound = errors.New("resolver: no catalog match")

var (
	trailingParen = regexp.MustCompile(`\s*\([^()]*\)\s*$`)
	trailingYear  = regexp.MustCompile(`\((\d{4})\)\s*$`)
)

// Searcher is the part of the catalog the resolver needs.
type Searcher interface {
	Search(ctx context.Context, query string) ([]tmdb.Result, error)
}

// Match is the chosen catalog item.
type Match struct {
	ID          int64
	Kind        domain.MediaKind
	Title       string
	ReleaseDate string
	PosterPath  string
	Overview    string
}

type Resolver struct {
	Catalog Searcher
	Log     *zap.Logger
}

func New(catalog Searcher, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{Catalog: catalog, Log: log}
}

// Resolve searches title and picks the best match:
//   - zero hits and a trailing parenthetical: strip it, search once more
//   - keep only kind, when given
//   - with a year (given, or read from a trailing "(YYYY)"), the first hit
//     released that year wins
//   - otherwise the most popular hit wins, ties going to the earlier one
func (r *Resolver) Resolve(ctx context.Context, title string, year int, kind domain.MediaKind) (Match, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Match{}, ErrNotFound
	}
	if year == 0 {
		year = YearFromTitle(title)
	}

	results, err := r.Catalog.Search(ctx, title)
	if err != nil {
		return Match{}, fmt.Errorf("search %q: %w", title, err)
	}
	if len(results) == 0 {
		if stripped := StripParenthetical(title); stripped != title && stripped != "" {
			r.Log.Debug("resolver: retrying without parenthetical",
				zap.String("title", title), zap.String("query", stripped))
			results, err = r.Catalog.Search(ctx, stripped)
			if err != nil {
				return Match{}, fmt.Errorf("search %q: %w", stripped, err)
			}
		}
	}

	best, ok := pick(results, year, kind)
	if !ok {
		return Match{}, fmt.Errorf("%w: %q", ErrNotFound, title)
	}
	return Match{
		ID:          best.ID,
		Kind:        best.Kind(),
		Title:       best.DisplayTitle(),
		ReleaseDate: best.Date(),
		PosterPath:  best.PosterPath,
		Overview:    best.Overview,
	}, nil
}

func pick(results []tmdb.Result, year int, kind domain.MediaKind) (tmdb.Result, bool) {
	candidates := results[:0:0]
	for _, res := range results {
		if !res.Kind().Valid() || (kind != "" && res.Kind() != kind) {
			continue
		}
		candidates = append(candidates, res)
	}
	if len(candidates) == 0 {
		return tmdb.Result{}, false
	}

	if year > 0 {
		for _, c := range candidates {
			if c.Year() == year {
				return c, true
			}
		}
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.Popularity > best.Popularity {
			best = c
		}
	}
	return best, true
}

// StripParenthetical removes one trailing "( ... )" group.
func StripParenthetical(title string) string {
	return strings.TrimSpace(trailingParen.ReplaceAllString(title, ""))
}

// YearFromTitle reads a trailing "(YYYY)", 0 when absent.
func YearFromTitle(title string) int {
	m := trailingYear.FindStringSubmatch(title)
	if m == nil {
		return 0
	}
	y, _ := strconv.Atoi(m[1])
	return y
}
