package tmdb

import (
	"strconv"
	"strings"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

// ImageBaseURL prefixes poster paths.
const ImageBaseURL = "https://image.tmdb.org/t/p/w500"

// Streaming provider ids used for the "top on provider" lists.
const (
	ProviderNetflix = 8
	ProviderPrime   = 119
	ProviderMax     = 1899
	ProviderDisney  = 337
)

// Result is an item of a search or list response. Movies carry Title and
// ReleaseDate, TV carries Name and FirstAirDate.
type Result struct {
	ID           int64   `json:"id"`
	MediaType    string  `json:"media_type"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Popularity   float64 `json:"popularity"`
	PosterPath   string  `json:"poster_path"`
	Overview     string  `json:"overview"`
}

func (r Result) Kind() domain.MediaKind { return domain.MediaKind(r.MediaType) }

func (r Result) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.Name
}

func (r Result) Date() string {
	if r.ReleaseDate != "" {
		return r.ReleaseDate
	}
	return r.FirstAirDate
}

// Year is the release year, 0 when unknown.
func (r Result) Year() int { return yearOf(r.Date()) }

type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Details is the canonical metadata of one item.
type Details struct {
	ID           int64   `json:"id"`
	Title        string  `json:"title"`
	Name         string  `json:"name"`
	Overview     string  `json:"overview"`
	PosterPath   string  `json:"poster_path"`
	ReleaseDate  string  `json:"release_date"`
	FirstAirDate string  `json:"first_air_date"`
	Genres       []Genre `json:"genres"`
}

func (d Details) DisplayTitle() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Name
}

func (d Details) Date() string {
	if d.ReleaseDate != "" {
		return d.ReleaseDate
	}
	return d.FirstAirDate
}

// PrimaryGenre is the first listed genre, empty when none.
func (d Details) PrimaryGenre() string {
	if len(d.Genres) == 0 {
		return ""
	}
	return d.Genres[0].Name
}

// PosterURL returns the absolute poster URL for path, empty when path is empty.
func PosterURL(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}
	return ImageBaseURL + path
}

type page struct {
	Page    int      `json:"page"`
	Results []Result `json:"results"`
}

func yearOf(date string) int {
	if len(date) < 4 {
		return 0
	}
	y, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return y
}
