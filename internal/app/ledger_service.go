package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"concrete-quiz-service/internal/domain"
)

// MaxUsernameLength matches the width of the users.username column.
const MaxUsernameLength = 50

// LedgerStore persists ledger entries and the attempt log.
type LedgerStore interface {
	// Get returns the entry with its attempts, matching username case-insensitively.
	Get(ctx context.Context, username string) (domain.LedgerEntry, error)
	// Create returns the existing entry for username or inserts a zeroed one.
	Create(ctx context.Context, username string) (domain.LedgerEntry, error)
	// ListAll returns every entry with its attempts.
	ListAll(ctx context.Context) ([]domain.LedgerEntry, error)
	// ListAttempts returns the attempts of username, newest first.
	ListAttempts(ctx context.Context, username string) ([]domain.Attempt, error)
	// WithinUser runs fn while holding exclusive access to username's entry.
	// Writes made through tx become visible together when fn returns nil and
	// are discarded otherwise.
	WithinUser(ctx context.Context, username string, fn func(ctx context.Context, tx LedgerTx) error) error
	// ResetAll deletes every attempt and zeroes every entry.
	ResetAll(ctx context.Context) error
}

// LedgerTx is the view of one user's entry inside WithinUser.
type LedgerTx interface {
	Entry() domain.LedgerEntry
	AppendAttempt(ctx context.Context, attempt domain.Attempt) error
	Update(ctx context.Context, entry domain.LedgerEntry) error
	ListAttempts(ctx context.Context) ([]domain.Attempt, error)
}

// LedgerService is the reward transaction engine.
type LedgerService struct {
	store  LedgerStore
	now    func() time.Time
	logger *slog.Logger
}

func NewLedgerService(store LedgerStore, logger *slog.Logger) *LedgerService {
	return NewLedgerServiceWithClock(store, logger, time.Now)
}

// NewLedgerServiceWithClock allows deterministic attempt timestamps in tests.
func NewLedgerServiceWithClock(store LedgerStore, logger *slog.Logger, now func() time.Time) *LedgerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LedgerService{store: store, now: now, logger: logger}
}

// Login returns the entry for username, creating it on first sight.
func (s *LedgerService) Login(ctx context.Context, username string) (domain.LedgerEntry, error) {
	username = strings.TrimSpace(username)
	if username == "" || len(username) > MaxUsernameLength {
		return domain.LedgerEntry{}, domain.ErrInvalidUsername
	}
	entry, err := s.store.Create(ctx, username)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	s.logger.Debug("user logged in", slog.String("username", entry.Username))
	return entry, nil
}

// Get returns the entry for username.
func (s *LedgerService) Get(ctx context.Context, username string) (domain.LedgerEntry, error) {
	return s.store.Get(ctx, strings.TrimSpace(username))
}

// RecordAttempt applies one session result to the user's entry and returns
// the updated entry with its full attempt history.
func (s *LedgerService) RecordAttempt(ctx context.Context, username string, score, totalQuestions int) (domain.LedgerEntry, error) {
	if err := domain.ValidateAttempt(score, totalQuestions); err != nil {
		return domain.LedgerEntry{}, err
	}

	var updated domain.LedgerEntry
	err := s.store.WithinUser(ctx, username, func(ctx context.Context, tx LedgerTx) error {
		current := tx.Entry()
		attempt := domain.Attempt{
			Username:       current.Username,
			Score:          score,
			TotalQuestions: totalQuestions,
			Date:           s.now(),
		}
		if err := tx.AppendAttempt(ctx, attempt); err != nil {
			return err
		}

		next := domain.ApplyAttempt(current, score, totalQuestions)
		next.UpdatedAt = attempt.Date
		if err := tx.Update(ctx, next); err != nil {
			return err
		}

		attempts, err := tx.ListAttempts(ctx)
		if err != nil {
			return err
		}
		next.Attempts = attempts
		updated = next
		return nil
	})
	if err != nil {
		s.logger.Warn("record attempt failed",
			slog.String("username", username),
			slog.Int("score", score),
			slog.Int("total", totalQuestions),
			slog.String("error", err.Error()))
		return domain.LedgerEntry{}, err
	}

	s.logger.Info("attempt recorded",
		slog.String("username", updated.Username),
		slog.Int("score", score),
		slog.Int("total", totalQuestions),
		slog.Int("stars", updated.Stars),
		slog.Int("crowns", updated.Crowns),
		slog.Int("streak", updated.ConsecutivePerfectScores))
	return updated, nil
}

// ResetAll clears every attempt and zeroes every entry, keeping usernames.
func (s *LedgerService) ResetAll(ctx context.Context) error {
	if err := s.store.ResetAll(ctx); err != nil {
		return err
	}
	s.logger.Info("leaderboard reset")
	return nil
}

// ListAll returns every entry ordered by best score, then username.
func (s *LedgerService) ListAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	entries, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortEntries(entries)
	return entries, nil
}

// Leaderboard returns every entry ordered by crowns, stars, best score and
// username, without attempt history.
func (s *LedgerService) Leaderboard(ctx context.Context) ([]domain.LedgerEntry, error) {
	entries, err := s.store.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range entries {
		entries[i].Attempts = []domain.Attempt{}
	}
	domain.SortLeaderboard(entries)
	return entries, nil
}
