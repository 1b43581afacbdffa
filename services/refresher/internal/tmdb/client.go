package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/example/media-platform/services/refresher/internal/domain"
	"github.com/example/media-platform/services/refresher/internal/metrics"
)

// StatusError is a non-200 catalog response.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tmdb: %s: status %d body=%q", e.Endpoint, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a catalog 404.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// ClientConfig holds per-request catalog settings.
type ClientConfig struct {
	APIKey   string
	Language string
	Region   string
}

// Client talks to the TMDb v3 API. It never retries; the next scheduled
// refresh is the retry.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Config     ClientConfig
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

// Option configures the Client.
type Option func(*Client)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) Option {
	return func(c *Client) { c.CB = cb }
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.Log = log }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

func New(baseURL string, cfg ClientConfig, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}
	if cfg.Language == "" {
		cfg.Language = "pt-BR"
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Config:     cfg,
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchMulti searches movies and TV by title; people are filtered out.
func (c *Client) SearchMulti(ctx context.Context, query string) ([]Result, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("include_adult", "false")
	p, err := doWithBreaker[page](ctx, c, "search", "/search/multi", q)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(p.Results))
	for _, r := range p.Results {
		if r.Kind().Valid() {
			out = append(out, r)
		}
	}
	return out, nil
}

// Details fetches one item. An empty language uses the client default.
func (c *Client) Details(ctx context.Context, id int64, kind domain.MediaKind, language string) (*Details, error) {
	if id <= 0 {
		return nil, fmt.Errorf("tmdb: id required")
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("tmdb: invalid media kind %q", kind)
	}
	q := url.Values{}
	if language != "" {
		q.Set("language", language)
	}
	return doWithBreaker[Details](ctx, c, "details", "/"+string(kind)+"/"+strconv.FormatInt(id, 10), q)
}

func (c *Client) NowPlaying(ctx context.Context) ([]Result, error) {
	return c.list(ctx, "now_playing", "/movie/now_playing", nil, domain.KindMovie)
}

func (c *Client) TrendingWeek(ctx context.Context) ([]Result, error) {
	return c.list(ctx, "trending", "/trending/all/week", nil, "")
}

// DiscoverByProvider lists the most popular movies streaming on providerID
// in the configured region.
func (c *Client) DiscoverByProvider(ctx context.Context, providerID int) ([]Result, error) {
	q := url.Values{}
	q.Set("with_watch_providers", strconv.Itoa(providerID))
	q.Set("watch_region", c.region())
	q.Set("sort_by", "popularity.desc")
	return c.list(ctx, "discover", "/discover/movie", q, domain.KindMovie)
}

func (c *Client) Upcoming(ctx context.Context) ([]Result, error) {
	return c.list(ctx, "upcoming", "/movie/upcoming", nil, domain.KindMovie)
}

func (c *Client) OnTheAir(ctx context.Context) ([]Result, error) {
	return c.list(ctx, "on_the_air", "/tv/on_the_air", nil, domain.KindTV)
}

// list fetches the first page of a list endpoint. Endpoints that only return
// one media type omit media_type, so kind fills it in.
func (c *Client) list(ctx context.Context, endpoint, path string, q url.Values, kind domain.MediaKind) ([]Result, error) {
	p, err := doWithBreaker[page](ctx, c, endpoint, path, q)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(p.Results))
	for _, r := range p.Results {
		if r.MediaType == "" {
			r.MediaType = string(kind)
		}
		if r.Kind().Valid() {
			out = append(out, r)
		}
	}
	return out, nil
}

func (c *Client) region() string {
	if c.Config.Region == "" {
		return "BR"
	}
	return c.Config.Region
}

func doWithBreaker[T any](ctx context.Context, c *Client, endpoint, path string, q url.Values) (*T, error) {
	var (
		out *T
		err error
	)
	if c.CB == nil {
		out, err = doJSON[T](ctx, c, path, q)
	} else {
		var res interface{}
		res, err = c.CB.Execute(func() (interface{}, error) {
			return doJSON[T](ctx, c, path, q)
		})
		if err == nil {
			out = res.(*T)
		}
	}
	metrics.RecordCatalogRequest(endpoint, err)
	if err != nil {
		c.Log.Debug("tmdb request failed", zap.String("endpoint", endpoint), zap.Error(err))
		return nil, err
	}
	return out, nil
}

func doJSON[T any](ctx context.Context, c *Client, path string, q url.Values) (*T, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("api_key", c.Config.APIKey)
	if q.Get("language") == "" {
		q.Set("language", c.Config.Language)
	}
	if q.Get("region") == "" && c.Config.Region != "" {
		q.Set("region", c.Config.Region)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "media-platform-refresher/1.0")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Keep the api key out of logs.
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = c.BaseURL + path
		}
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Endpoint: path, StatusCode: resp.StatusCode, Body: string(b[:min(len(b), 200)])}
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("tmdb: decode %s: %w body=%q", path, err, string(b[:min(len(b), 200)]))
	}
	return &out, nil
}
