package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/media-platform/services/refresher/internal/domain"
)

// Schema creates the tables used by Postgres. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS staleness_records (
	category       text PRIMARY KEY,
	last_update    timestamptz NOT NULL,
	run_started_at timestamptz NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS cache_entries (
	category     text    NOT NULL,
	position     integer NOT NULL,
	canonical_id bigint  NOT NULL,
	doc          jsonb   NOT NULL,
	PRIMARY KEY (category, position)
)`,
	`CREATE TABLE IF NOT EXISTS challenges (
	week_id    text PRIMARY KEY,
	doc        jsonb NOT NULL,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
)`,
	`CREATE TABLE IF NOT EXISTS watched_items (
	id         bigint NOT NULL,
	media_kind text   NOT NULL,
	title      text   NOT NULL,
	format     text   NOT NULL DEFAULT '',
	genre      text   NOT NULL DEFAULT '',
	rating     text,
	PRIMARY KEY (id, media_kind)
)`,
	`CREATE TABLE IF NOT EXISTS refresh_locks (
	lock_key   text PRIMARY KEY,
	token      text NOT NULL,
	expires_at timestamptz NOT NULL
)`,
}

// Postgres is the production Store.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

var _ Store = (*Postgres)(nil)

func (s *Postgres) GetStaleness(ctx context.Context, category domain.RefreshCategory) (domain.StalenessRecord, bool, error) {
	rec := domain.StalenessRecord{Category: category}
	err := s.db.QueryRow(ctx,
		`SELECT last_update, run_started_at FROM staleness_records WHERE category=$1`, string(category),
	).Scan(&rec.LastUpdate, &rec.RunStartedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StalenessRecord{}, false, nil
	}
	if err != nil {
		return domain.StalenessRecord{}, false, fmt.Errorf("read staleness %s: %w", category, err)
	}
	return rec, true, nil
}

func (s *Postgres) ChallengeExists(ctx context.Context, weekID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM challenges WHERE week_id=$1)`, weekID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("read challenge %s: %w", weekID, err)
	}
	return exists, nil
}

func (s *Postgres) ReplaceCategory(ctx context.Context, entries []domain.CacheEntry, rec domain.StalenessRecord) error {
	category := string(rec.Category)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin publish %s: %w", category, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Serializes publishers of one category, including the first one when no
	// record row exists yet.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('publish:' || $1))`, category); err != nil {
		return fmt.Errorf("lock publish %s: %w", category, err)
	}

	var cur domain.StalenessRecord
	err = tx.QueryRow(ctx,
		`SELECT last_update, run_started_at FROM staleness_records WHERE category=$1`, category,
	).Scan(&cur.LastUpdate, &cur.RunStartedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return fmt.Errorf("read staleness %s: %w", category, err)
	default:
		if err := checkMonotonic(cur, rec); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM cache_entries WHERE category=$1`, category); err != nil {
		return fmt.Errorf("clear %s: %w", category, err)
	}

	if len(entries) > 0 {
		b := &pgx.Batch{}
		for i, e := range entries {
			doc, err := json.Marshal(e)
			if err != nil {
				return fmt.Errorf("encode entry %d: %w", e.CanonicalID, err)
			}
			b.Queue(`INSERT INTO cache_entries (category, position, canonical_id, doc) VALUES ($1,$2,$3,$4::jsonb)`,
				category, i, e.CanonicalID, string(doc))
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return fmt.Errorf("insert %s entries: %w", category, err)
		}
	}

	if _, err := tx.Exec(ctx, `
INSERT INTO staleness_records (category, last_update, run_started_at)
VALUES ($1,$2,$3)
ON CONFLICT (category) DO UPDATE SET
  last_update = EXCLUDED.last_update,
  run_started_at = EXCLUDED.run_started_at`,
		category, rec.LastUpdate.UTC(), rec.RunStartedAt.UTC()); err != nil {
		return fmt.Errorf("write staleness %s: %w", category, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish %s: %w", category, err)
	}
	return nil
}

func (s *Postgres) GetCollection(ctx context.Context, category domain.RefreshCategory) (domain.Collection, error) {
	c := domain.Collection{Category: category, Entries: []domain.CacheEntry{}}

	var last time.Time
	err := s.db.QueryRow(ctx, `SELECT last_update FROM staleness_records WHERE category=$1`, string(category)).Scan(&last)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return domain.Collection{}, fmt.Errorf("read staleness %s: %w", category, err)
	default:
		c.LastUpdate = &last
	}

	rows, err := s.db.Query(ctx, `SELECT doc FROM cache_entries WHERE category=$1 ORDER BY position`, string(category))
	if err != nil {
		return domain.Collection{}, fmt.Errorf("read %s entries: %w", category, err)
	}
	defer rows.Close()
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return domain.Collection{}, fmt.Errorf("scan %s entry: %w", category, err)
		}
		var e domain.CacheEntry
		if err := json.Unmarshal(doc, &e); err != nil {
			return domain.Collection{}, fmt.Errorf("decode %s entry: %w", category, err)
		}
		c.Entries = append(c.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return domain.Collection{}, fmt.Errorf("read %s entries: %w", category, err)
	}
	return c, nil
}

func (s *Postgres) CreateChallengeIfAbsent(ctx context.Context, c domain.Challenge) (bool, error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return false, fmt.Errorf("encode challenge %s: %w", c.WeekID, err)
	}
	tag, err := s.db.Exec(ctx, `
INSERT INTO challenges (week_id, doc, created_at, updated_at)
VALUES ($1,$2::jsonb,$3,$3)
ON CONFLICT (week_id) DO NOTHING`,
		c.WeekID, string(doc), c.CreatedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("create challenge %s: %w", c.WeekID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Postgres) GetChallenge(ctx context.Context, weekID string) (domain.Challenge, error) {
	return scanChallenge(s.db.QueryRow(ctx, `SELECT doc FROM challenges WHERE week_id=$1`, weekID), weekID)
}

func (s *Postgres) UpdateChallenge(ctx context.Context, weekID string, mutate func(*domain.Challenge) error) (domain.Challenge, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("begin challenge update: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	c, err := scanChallenge(tx.QueryRow(ctx, `SELECT doc FROM challenges WHERE week_id=$1 FOR UPDATE`, weekID), weekID)
	if err != nil {
		return domain.Challenge{}, err
	}
	if err := mutate(&c); err != nil {
		return domain.Challenge{}, err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("encode challenge %s: %w", weekID, err)
	}
	if _, err := tx.Exec(ctx, `UPDATE challenges SET doc=$2::jsonb, updated_at=$3 WHERE week_id=$1`,
		weekID, string(doc), c.UpdatedAt.UTC()); err != nil {
		return domain.Challenge{}, fmt.Errorf("update challenge %s: %w", weekID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.Challenge{}, fmt.Errorf("commit challenge %s: %w", weekID, err)
	}
	return c, nil
}

func (s *Postgres) LoadTasteProfile(ctx context.Context) (domain.TasteProfile, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, media_kind, title, format, genre, COALESCE(rating, '')
FROM watched_items ORDER BY title`)
	if err != nil {
		return domain.TasteProfile{}, fmt.Errorf("read watched items: %w", err)
	}
	defer rows.Close()

	var items []WatchedItem
	for rows.Next() {
		var it WatchedItem
		var kind, rating string
		if err := rows.Scan(&it.ID, &kind, &it.Title, &it.Format, &it.Genre, &rating); err != nil {
			return domain.TasteProfile{}, fmt.Errorf("scan watched item: %w", err)
		}
		it.Kind = domain.MediaKind(kind)
		it.Rating = domain.ParseRating(rating)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return domain.TasteProfile{}, fmt.Errorf("read watched items: %w", err)
	}
	return profileOf(items), nil
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func scanChallenge(row pgx.Row, weekID string) (domain.Challenge, error) {
	var doc []byte
	if err := row.Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Challenge{}, ErrNoChallenge
		}
		return domain.Challenge{}, fmt.Errorf("read challenge %s: %w", weekID, err)
	}
	var c domain.Challenge
	if err := json.Unmarshal(doc, &c); err != nil {
		return domain.Challenge{}, fmt.Errorf("decode challenge %s: %w", weekID, err)
	}
	return c, nil
}
