package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/metrics"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

const (
	historyKeyPrefix = "search:history:"
	popularKey       = "search:popular"
	minTermLength    = 2
	maxTermLength    = 200
)

// HistoryOptions bounds the per-user history and the popularity counter.
type HistoryOptions struct {
	MaxSize    int
	HistoryTTL time.Duration
	PopularTTL time.Duration
}

// HistoryOptionsFrom reads the history settings from the search config.
func HistoryOptionsFrom(cfg config.SearchConfig) HistoryOptions {
	return HistoryOptions{
		MaxSize:    cfg.HistoryMaxSize,
		HistoryTTL: cfg.HistoryTTL,
		PopularTTL: cfg.PopularTTL,
	}
}

// PopularTerm is a search term with the number of times it was saved.
type PopularTerm struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// HistoryService keeps each user's recent search terms and a global
// popularity counter in sorted sets. History is scored by save time, so
// saving a term again moves it to the front instead of duplicating it.
type HistoryService struct {
	store   repository.SortedSetStore
	opts    HistoryOptions
	now     func() time.Time
	metrics *metrics.Metrics
	logger  logger.Logger
}

func NewHistoryService(
	store repository.SortedSetStore,
	opts HistoryOptions,
	metrics *metrics.Metrics,
	logger logger.Logger,
) *HistoryService {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 50
	}
	if opts.HistoryTTL <= 0 {
		opts.HistoryTTL = 30 * 24 * time.Hour
	}
	if opts.PopularTTL <= 0 {
		opts.PopularTTL = 7 * 24 * time.Hour
	}
	return &HistoryService{
		store:   store,
		opts:    opts,
		now:     time.Now,
		metrics: metrics,
		logger:  logger,
	}
}

// WithClock replaces the clock used to score history entries.
func (s *HistoryService) WithClock(now func() time.Time) *HistoryService {
	s.now = now
	return s
}

// NormalizeTerm trims, collapses inner whitespace and lowercases term.
// It returns false for terms too short to be worth remembering.
func NormalizeTerm(term string) (string, bool) {
	term = strings.ToLower(normalizeTerm(term))
	n := utf8.RuneCountInString(term)
	if n < minTermLength || n > maxTermLength {
		return "", false
	}
	return term, true
}

// SaveSearchHistory records term for userID and bumps its popularity.
// Terms shorter than two characters are ignored.
func (s *HistoryService) SaveSearchHistory(ctx context.Context, userID int64, term string) error {
	if userID <= 0 {
		return ErrUserRequired
	}
	term, ok := NormalizeTerm(term)
	if !ok {
		return nil
	}

	key := historyKey(userID)
	err := s.saveHistory(ctx, key, term)
	s.record("save", err)
	if err != nil {
		return err
	}
	return s.UpdatePopularSearchTerms(ctx, term)
}

// nextScore is the save time in milliseconds, raised above the newest entry
// in key so that saves within the same millisecond keep their order.
func (s *HistoryService) nextScore(ctx context.Context, key string) (float64, error) {
	score := float64(s.now().UnixMilli())
	top, err := s.store.ZRevRangeWithScores(ctx, key, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to read search history: %w", err)
	}
	if len(top) > 0 && top[0].Score >= score {
		score = top[0].Score + 1
	}
	return score, nil
}

func (s *HistoryService) saveHistory(ctx context.Context, key, term string) error {
	score, err := s.nextScore(ctx, key)
	if err != nil {
		return err
	}
	if err := s.store.ZAdd(ctx, key, score, term); err != nil {
		return fmt.Errorf("failed to save search history: %w", err)
	}

	size, err := s.store.ZCard(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to read search history size: %w", err)
	}
	if excess := size - int64(s.opts.MaxSize); excess > 0 {
		// Lowest scores are the oldest entries.
		if err := s.store.ZRemRangeByRank(ctx, key, 0, excess-1); err != nil {
			return fmt.Errorf("failed to trim search history: %w", err)
		}
	}

	if err := s.store.Expire(ctx, key, s.opts.HistoryTTL); err != nil {
		return fmt.Errorf("failed to refresh search history ttl: %w", err)
	}
	return nil
}

// RecordSearch is SaveSearchHistory for the query path: failures are
// logged and never reach the caller.
func (s *HistoryService) RecordSearch(ctx context.Context, userID int64, term string) {
	if err := s.SaveSearchHistory(ctx, userID, term); err != nil {
		s.logger.Warn("Failed to record search history", "user_id", userID, "error", err)
	}
}

// GetSearchHistory returns up to limit terms, newest first.
func (s *HistoryService) GetSearchHistory(ctx context.Context, userID int64, limit int) ([]string, error) {
	if userID <= 0 {
		return nil, ErrUserRequired
	}
	if limit <= 0 || limit > s.opts.MaxSize {
		limit = s.opts.MaxSize
	}

	members, err := s.store.ZRevRangeWithScores(ctx, historyKey(userID), 0, int64(limit-1))
	s.record("get", err)
	if err != nil {
		return nil, fmt.Errorf("failed to load search history: %w", err)
	}

	terms := make([]string, 0, len(members))
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		if _, dup := seen[m.Member]; dup {
			continue
		}
		seen[m.Member] = struct{}{}
		terms = append(terms, m.Member)
	}
	return terms, nil
}

// ClearSearchHistory removes every history entry of userID.
func (s *HistoryService) ClearSearchHistory(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return ErrUserRequired
	}
	err := s.store.Delete(ctx, historyKey(userID))
	s.record("clear", err)
	if err != nil {
		return fmt.Errorf("failed to clear search history: %w", err)
	}
	return nil
}

// RemoveSearchHistoryItem removes a single term from the history of userID.
func (s *HistoryService) RemoveSearchHistoryItem(ctx context.Context, userID int64, term string) error {
	if userID <= 0 {
		return ErrUserRequired
	}
	term, ok := NormalizeTerm(term)
	if !ok {
		return nil
	}
	err := s.store.ZRem(ctx, historyKey(userID), term)
	s.record("remove", err)
	if err != nil {
		return fmt.Errorf("failed to remove search history item: %w", err)
	}
	return nil
}

// UpdatePopularSearchTerms increments the global counter for term.
func (s *HistoryService) UpdatePopularSearchTerms(ctx context.Context, term string) error {
	term, ok := NormalizeTerm(term)
	if !ok {
		return nil
	}
	err := s.store.ZIncrBy(ctx, popularKey, 1, term)
	if err == nil {
		err = s.store.Expire(ctx, popularKey, s.opts.PopularTTL)
	}
	s.record("popular", err)
	if err != nil {
		return fmt.Errorf("failed to update popular search terms: %w", err)
	}
	return nil
}

// GetPopularSearchTerms returns the most saved terms, most popular first.
func (s *HistoryService) GetPopularSearchTerms(ctx context.Context, limit int) ([]PopularTerm, error) {
	if limit <= 0 {
		limit = 10
	}
	members, err := s.store.ZRevRangeWithScores(ctx, popularKey, 0, int64(limit-1))
	s.record("get_popular", err)
	if err != nil {
		return nil, fmt.Errorf("failed to load popular search terms: %w", err)
	}

	terms := make([]PopularTerm, 0, len(members))
	for _, m := range members {
		terms = append(terms, PopularTerm{Term: m.Member, Count: int64(m.Score)})
	}
	return terms, nil
}

func (s *HistoryService) record(op string, err error) {
	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	s.metrics.HistoryOperations.WithLabelValues(op, outcome).Inc()
}

func historyKey(userID int64) string {
	return historyKeyPrefix + strconv.FormatInt(userID, 10)
}
