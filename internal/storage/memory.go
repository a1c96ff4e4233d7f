package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bilgisen/synchronicity/internal/apperr"
	"github.com/bilgisen/synchronicity/internal/models"
)

const (
	snapshotFile = "articles.json"
	eventsFile   = "events.jsonl"
)

// MemoryStore keeps articles in memory and, when basePath is set, mirrors them to
// a JSON snapshot plus an append-only events log on disk.
type MemoryStore struct {
	basePath string
	mu       sync.RWMutex
	articles map[string]models.Article
	events   []models.AnalyticsEvent
}

// NewMemoryStore creates the store and loads any previous snapshot from basePath.
// An empty basePath disables persistence.
func NewMemoryStore(basePath string) (*MemoryStore, error) {
	s := &MemoryStore{
		basePath: basePath,
		articles: make(map[string]models.Article),
	}
	if basePath == "" {
		return s, nil
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := s.loadEvents(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MemoryStore) loadSnapshot() error {
	data, err := os.ReadFile(filepath.Join(s.basePath, snapshotFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var articles []models.Article
	if err := json.Unmarshal(data, &articles); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	for _, a := range articles {
		s.articles[a.ID] = a
	}
	return nil
}

func (s *MemoryStore) loadEvents() error {
	f, err := os.Open(filepath.Join(s.basePath, eventsFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open events log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev models.AnalyticsEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			// a torn trailing line from a crash is skipped
			continue
		}
		s.events = append(s.events, ev)
	}
	return scanner.Err()
}

// persist writes the snapshot atomically. Callers must hold the write lock.
func (s *MemoryStore) persist() error {
	if s.basePath == "" {
		return nil
	}

	articles := make([]models.Article, 0, len(s.articles))
	for _, a := range s.articles {
		articles = append(articles, a)
	}
	sortByPublishedDesc(articles)

	data, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to marshal snapshot: %v", apperr.ErrStorage, err)
	}

	tmp := filepath.Join(s.basePath, snapshotFile+".tmp")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write snapshot: %v", apperr.ErrStorage, err)
	}
	if err := os.Rename(tmp, filepath.Join(s.basePath, snapshotFile)); err != nil {
		return fmt.Errorf("%w: failed to replace snapshot: %v", apperr.ErrStorage, err)
	}
	return nil
}

// ReplaceAll upserts the synced set in one step. Under PruneMissing, ids absent
// from articles are removed.
func (s *MemoryStore) ReplaceAll(ctx context.Context, articles []models.Article, policy RetentionPolicy) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]models.Article, len(s.articles)+len(articles))
	if policy != PruneMissing {
		for id, a := range s.articles {
			next[id] = a
		}
	}
	for _, a := range articles {
		var existing *models.Article
		if prev, ok := s.articles[a.ID]; ok {
			existing = &prev
		}
		next[a.ID] = mergeExisting(a.Clone(), existing)
	}

	prev := s.articles
	s.articles = next
	if err := s.persist(); err != nil {
		s.articles = prev
		return err
	}
	return nil
}

func (s *MemoryStore) Upsert(ctx context.Context, article models.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var existing *models.Article
	if prev, ok := s.articles[article.ID]; ok {
		existing = &prev
	}
	s.articles[article.ID] = mergeExisting(article.Clone(), existing)
	return s.persist()
}

// Get returns a copy of the article or apperr.ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, id string) (*models.Article, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.articles[id]
	if !ok {
		return nil, fmt.Errorf("%w: article %q", apperr.ErrNotFound, id)
	}
	out := a.Clone()
	return &out, nil
}

func (s *MemoryStore) Query(ctx context.Context, q models.ArticleQuery) (models.ArticlePage, error) {
	all, err := s.All(ctx)
	if err != nil {
		return models.ArticlePage{}, err
	}
	return paginate(all, q), nil
}

// All returns every article, newest first.
func (s *MemoryStore) All(ctx context.Context) ([]models.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Article, 0, len(s.articles))
	for _, a := range s.articles {
		out = append(out, a.Clone())
	}
	sortByPublishedDesc(out)
	return out, nil
}

func (s *MemoryStore) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return rank(all, query, limit), nil
}

func (s *MemoryStore) IncrementViews(ctx context.Context, id string) error {
	return s.update(ctx, id, func(a *models.Article) { a.Views++ })
}

func (s *MemoryStore) IncrementLikes(ctx context.Context, id string) error {
	return s.update(ctx, id, func(a *models.Article) { a.Likes++ })
}

func (s *MemoryStore) SetHashtags(ctx context.Context, id string, hashtags []string) error {
	tags := append([]string{}, hashtags...)
	return s.update(ctx, id, func(a *models.Article) { a.Hashtags = tags })
}

func (s *MemoryStore) SetOptimizedImages(ctx context.Context, id string, images map[string]string) error {
	copied := make(map[string]string, len(images))
	for k, v := range images {
		copied[k] = v
	}
	return s.update(ctx, id, func(a *models.Article) { a.OptimizedImages = copied })
}

func (s *MemoryStore) update(ctx context.Context, id string, mutate func(*models.Article)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.articles[id]
	if !ok {
		return fmt.Errorf("%w: article %q", apperr.ErrNotFound, id)
	}
	mutate(&a)
	s.articles[id] = a
	return s.persist()
}

// AppendEvent records an analytics event. Events are never rewritten.
func (s *MemoryStore) AppendEvent(ctx context.Context, event models.AnalyticsEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.basePath != "" {
		line, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("%w: failed to marshal event: %v", apperr.ErrStorage, err)
		}
		f, err := os.OpenFile(filepath.Join(s.basePath, eventsFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("%w: failed to open events log: %v", apperr.ErrStorage, err)
		}
		_, err = f.Write(append(line, '\n'))
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("%w: failed to append event: %v", apperr.ErrStorage, err)
		}
	}

	s.events = append(s.events, event)
	return nil
}

// Events returns the events of one article at or after since, oldest first.
func (s *MemoryStore) Events(ctx context.Context, articleID string, since time.Time) ([]models.AnalyticsEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.AnalyticsEvent{}
	for _, ev := range s.events {
		if ev.ArticleID == articleID && !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}
