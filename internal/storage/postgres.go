package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/models"
)

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS articles (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	subtitle       TEXT NOT NULL DEFAULT '',
	preview        TEXT NOT NULL DEFAULT '',
	raw_content    TEXT NOT NULL DEFAULT '',
	substack_url   TEXT NOT NULL DEFAULT '',
	image_url      TEXT NOT NULL DEFAULT '',
	hashtags       TEXT[] NOT NULL DEFAULT '{}',
	published_date TIMESTAMPTZ NOT NULL,
	views          BIGINT NOT NULL DEFAULT 0 CHECK (views >= 0),
	likes          BIGINT NOT NULL DEFAULT 0 CHECK (likes >= 0),
	reading_time   INT NOT NULL DEFAULT 0,
	optimized_images JSONB,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS articles_hashtags_idx ON articles USING GIN (hashtags);
CREATE INDEX IF NOT EXISTS articles_published_idx ON articles (published_date DESC);
CREATE INDEX IF NOT EXISTS articles_search_idx ON articles
	USING GIN (to_tsvector('english', title || ' ' || subtitle || ' ' || preview));
CREATE TABLE IF NOT EXISTS analytics_events (
	id         UUID PRIMARY KEY,
	article_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	metadata   JSONB,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS analytics_events_article_idx ON analytics_events (article_id, created_at);
`

const articleColumns = `id, title, subtitle, preview, raw_content, substack_url, image_url,
	hashtags, published_date, views, likes, reading_time, optimized_images`

const upsertArticleSQL = `INSERT INTO articles (id, title, subtitle, preview, raw_content, substack_url,
	image_url, hashtags, published_date, reading_time)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO UPDATE SET
	title = EXCLUDED.title,
	subtitle = EXCLUDED.subtitle,
	preview = EXCLUDED.preview,
	raw_content = EXCLUDED.raw_content,
	substack_url = EXCLUDED.substack_url,
	image_url = EXCLUDED.image_url,
	hashtags = EXCLUDED.hashtags,
	published_date = EXCLUDED.published_date,
	reading_time = EXCLUDED.reading_time,
	updated_at = now()`

// PostgresStore persists articles and events in PostgreSQL.
type PostgresStore struct {
	db DB
}

// NewPostgresStore connects a pool and makes sure the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pool: %v", apperr.ErrStorage, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", apperr.ErrStorage, err)
	}

	s := NewPostgresStoreWithDB(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStoreWithDB wraps an existing pool or mock.
func NewPostgresStoreWithDB(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates tables and indexes if they are missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to apply schema: %v", apperr.ErrStorage, err)
	}
	return nil
}

func upsertArgs(a models.Article) []any {
	hashtags := a.Hashtags
	if hashtags == nil {
		hashtags = []string{}
	}
	return []any{a.ID, a.Title, a.Subtitle, a.Preview, a.RawContent, a.SubstackURL,
		a.ImageURL, hashtags, a.PublishedDate, a.ReadingTime}
}

// ReplaceAll upserts the synced set in a single transaction.
func (s *PostgresStore) ReplaceAll(ctx context.Context, articles []models.Article, policy RetentionPolicy) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", apperr.ErrStorage, err)
	}

	ids := make([]string, 0, len(articles))
	for _, a := range articles {
		if _, err := tx.Exec(ctx, upsertArticleSQL, upsertArgs(a)...); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: failed to upsert article %q: %v", apperr.ErrStorage, a.ID, err)
		}
		ids = append(ids, a.ID)
	}

	if policy == PruneMissing {
		if _, err := tx.Exec(ctx, `DELETE FROM articles WHERE NOT (id = ANY($1))`, ids); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("%w: failed to prune articles: %v", apperr.ErrStorage, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: failed to commit sync: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) Upsert(ctx context.Context, article models.Article) error {
	if _, err := s.db.Exec(ctx, upsertArticleSQL, upsertArgs(article)...); err != nil {
		return fmt.Errorf("%w: failed to upsert article %q: %v", apperr.ErrStorage, article.ID, err)
	}
	return nil
}

func scanArticle(row pgx.Row) (models.Article, error) {
	var (
		a         models.Article
		optimized []byte
	)
	err := row.Scan(&a.ID, &a.Title, &a.Subtitle, &a.Preview, &a.RawContent, &a.SubstackURL,
		&a.ImageURL, &a.Hashtags, &a.PublishedDate, &a.Views, &a.Likes, &a.ReadingTime, &optimized)
	if err != nil {
		return a, err
	}
	if len(optimized) > 0 {
		if err := json.Unmarshal(optimized, &a.OptimizedImages); err != nil {
			return a, fmt.Errorf("failed to decode optimized images: %w", err)
		}
	}
	if a.Hashtags == nil {
		a.Hashtags = []string{}
	}
	return a, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Article, error) {
	row := s.db.QueryRow(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	a, err := scanArticle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: article %q", apperr.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load article %q: %v", apperr.ErrStorage, id, err)
	}
	return &a, nil
}

func (s *PostgresStore) queryArticles(ctx context.Context, sql string, args ...any) ([]models.Article, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query articles: %v", apperr.ErrStorage, err)
	}
	defer rows.Close()

	out := []models.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan article: %v", apperr.ErrStorage, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read articles: %v", apperr.ErrStorage, err)
	}
	return out, nil
}

// Query filters by hashtag and a case-insensitive substring over title,
// subtitle and preview, newest first.
func (s *PostgresStore) Query(ctx context.Context, q models.ArticleQuery) (models.ArticlePage, error) {
	q = normalizeQuery(q)

	var (
		conds []string
		args  []any
	)
	if q.Hashtag != "" {
		args = append(args, q.Hashtag)
		conds = append(conds, fmt.Sprintf("$%d = ANY(hashtags)", len(args)))
	}
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR subtitle ILIKE $%d OR preview ILIKE $%d)", n, n, n))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM articles`+where, args...).Scan(&total); err != nil {
		return models.ArticlePage{}, fmt.Errorf("%w: failed to count articles: %v", apperr.ErrStorage, err)
	}

	listArgs := append(append([]any{}, args...), q.Limit, q.Offset)
	sql := fmt.Sprintf(`SELECT %s FROM articles%s ORDER BY published_date DESC, id LIMIT $%d OFFSET $%d`,
		articleColumns, where, len(args)+1, len(args)+2)
	articles, err := s.queryArticles(ctx, sql, listArgs...)
	if err != nil {
		return models.ArticlePage{}, err
	}

	return models.ArticlePage{
		Articles: articles,
		Total:    total,
		Limit:    q.Limit,
		Offset:   q.Offset,
		HasMore:  q.Offset+len(articles) < total,
	}, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]models.Article, error) {
	return s.queryArticles(ctx, `SELECT `+articleColumns+` FROM articles ORDER BY published_date DESC, id`)
}

// Search ranks matches with the weighted full-text index.
func (s *PostgresStore) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return []models.SearchResult{}, nil
	}
	if limit <= 0 {
		limit = 20
	}

	const sql = `SELECT ` + articleColumns + `,
	ts_rank(
		setweight(to_tsvector('english', title), 'A') ||
		setweight(to_tsvector('english', subtitle), 'B') ||
		setweight(to_tsvector('english', preview), 'C'),
		plainto_tsquery('english', $1)
	) AS rank
FROM articles
WHERE to_tsvector('english', title || ' ' || subtitle || ' ' || preview) @@ plainto_tsquery('english', $1)
ORDER BY rank DESC, published_date DESC
LIMIT $2`

	rows, err := s.db.Query(ctx, sql, query, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to search articles: %v", apperr.ErrStorage, err)
	}
	defer rows.Close()

	out := []models.SearchResult{}
	for rows.Next() {
		var (
			r         models.SearchResult
			optimized []byte
			score     float32
		)
		a := &r.Article
		if err := rows.Scan(&a.ID, &a.Title, &a.Subtitle, &a.Preview, &a.RawContent, &a.SubstackURL,
			&a.ImageURL, &a.Hashtags, &a.PublishedDate, &a.Views, &a.Likes, &a.ReadingTime, &optimized, &score); err != nil {
			return nil, fmt.Errorf("%w: failed to scan search result: %v", apperr.ErrStorage, err)
		}
		if len(optimized) > 0 {
			_ = json.Unmarshal(optimized, &a.OptimizedImages)
		}
		r.Rank = float64(score)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to read search results: %v", apperr.ErrStorage, err)
	}
	return out, nil
}

func (s *PostgresStore) execOne(ctx context.Context, id, sql string, args ...any) error {
	tag, err := s.db.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%w: failed to update article %q: %v", apperr.ErrStorage, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: article %q", apperr.ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) IncrementViews(ctx context.Context, id string) error {
	return s.execOne(ctx, id, `UPDATE articles SET views = views + 1 WHERE id = $1`, id)
}

func (s *PostgresStore) IncrementLikes(ctx context.Context, id string) error {
	return s.execOne(ctx, id, `UPDATE articles SET likes = likes + 1 WHERE id = $1`, id)
}

func (s *PostgresStore) SetHashtags(ctx context.Context, id string, hashtags []string) error {
	if hashtags == nil {
		hashtags = []string{}
	}
	return s.execOne(ctx, id, `UPDATE articles SET hashtags = $2, updated_at = now() WHERE id = $1`, id, hashtags)
}

func (s *PostgresStore) SetOptimizedImages(ctx context.Context, id string, images map[string]string) error {
	data, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("%w: failed to encode optimized images: %v", apperr.ErrStorage, err)
	}
	return s.execOne(ctx, id, `UPDATE articles SET optimized_images = $2, updated_at = now() WHERE id = $1`, id, data)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event models.AnalyticsEvent) error {
	var metadata []byte
	if len(event.Metadata) > 0 {
		var err error
		if metadata, err = json.Marshal(event.Metadata); err != nil {
			return fmt.Errorf("%w: failed to encode event metadata: %v", apperr.ErrStorage, err)
		}
	}

	_, err := s.db.Exec(ctx,
		`INSERT INTO analytics_events (id, article_id, event_type, metadata, created_at) VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.ArticleID, string(event.EventType), metadata, event.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: failed to insert event: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) Events(ctx context.Context, articleID string, since time.Time) ([]models.AnalyticsEvent, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id::text, article_id, event_type, metadata, created_at FROM analytics_events
		WHERE article_id = $1 AND created_at >= $2 ORDER BY created_at`, articleID, since)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query events: %v", apperr.ErrStorage, err)
	}
	defer rows.Close()

	out := []models.AnalyticsEvent{}
	for rows.Next() {
		var (
			ev        models.AnalyticsEvent
			eventType string
			metadata  []byte
		)
		if err := rows.Scan(&ev.ID, &ev.ArticleID, &eventType, &metadata, &ev.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: failed to scan event: %v", apperr.ErrStorage, err)
		}
		ev.EventType = models.EventType(eventType)
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &ev.Metadata)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrStorage, err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}
