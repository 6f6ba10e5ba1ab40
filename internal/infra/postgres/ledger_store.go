package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"concrete-quiz-service/internal/app"
	"concrete-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

// DefaultQueryTimeout bounds every ledger operation, transactions included.
const DefaultQueryTimeout = 10 * time.Second

// snapshotTx makes a user row and its attempts come from the same snapshot.
var snapshotTx = &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}

// LedgerStore is the Postgres implementation of app.LedgerStore. Per-user
// exclusion comes from SELECT ... FOR UPDATE on the users row.
type LedgerStore struct {
	db      *bun.DB
	timeout time.Duration
	now     func() time.Time
}

func NewLedgerStore(db *bun.DB, timeout time.Duration) *LedgerStore {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &LedgerStore{db: db, timeout: timeout, now: time.Now}
}

func (s *LedgerStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *LedgerStore) Get(ctx context.Context, username string) (domain.LedgerEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var entry domain.LedgerEntry
	err := s.db.RunInTx(ctx, snapshotTx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		entry, err = readEntry(ctx, tx, username)
		return err
	})
	if err != nil {
		return domain.LedgerEntry{}, domain.NewStorageError("get user", err)
	}
	return entry, nil
}

func (s *LedgerStore) Create(ctx context.Context, username string) (domain.LedgerEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	now := s.now().UTC()
	row := &userRow{Username: strings.TrimSpace(username), CreatedAt: now, UpdatedAt: now}
	if _, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT ((lower(username))) DO NOTHING").
		Returning("NULL").
		Exec(ctx); err != nil {
		return domain.LedgerEntry{}, domain.NewStorageError("create user", err)
	}
	return s.Get(ctx, username)
}

func (s *LedgerStore) ListAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		users []userRow
		rows  []attemptRow
	)
	err := s.db.RunInTx(ctx, snapshotTx, func(ctx context.Context, tx bun.Tx) error {
		if err := tx.NewSelect().Model(&users).Scan(ctx); err != nil {
			return err
		}
		return tx.NewSelect().
			Model(&rows).
			OrderExpr("qa.created_at DESC, qa.id DESC").
			Scan(ctx)
	})
	if err != nil {
		return nil, domain.NewStorageError("list users", err)
	}

	byUser := make(map[string][]domain.Attempt, len(users))
	for i := range rows {
		byUser[rows[i].Username] = append(byUser[rows[i].Username], rows[i].toDomain())
	}
	entries := make([]domain.LedgerEntry, 0, len(users))
	for i := range users {
		entry := users[i].toDomain()
		entry.Attempts = byUser[entry.Username]
		if entry.Attempts == nil {
			entry.Attempts = []domain.Attempt{}
		}
		entries = append(entries, entry)
	}
	domain.SortEntries(entries)
	return entries, nil
}

func (s *LedgerStore) ListAttempts(ctx context.Context, username string) ([]domain.Attempt, error) {
	entry, err := s.Get(ctx, username)
	if err != nil {
		return nil, err
	}
	return entry.Attempts, nil
}

func (s *LedgerStore) WithinUser(ctx context.Context, username string, fn func(ctx context.Context, tx app.LedgerTx) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var fnErr error
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row, err := selectUser(ctx, tx, username, true)
		if err != nil {
			return domain.NewStorageError("lock user", err)
		}
		fnErr = fn(ctx, &ledgerTx{tx: tx, entry: row.toDomain()})
		return fnErr
	})
	if err != nil {
		if fnErr != nil {
			return fnErr
		}
		return domain.NewStorageError("commit", err)
	}
	return nil
}

// ResetAll zeroes every user before deleting attempts, so the row locks it
// takes wait out any reward transaction in flight.
func (s *LedgerStore) ResetAll(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewUpdate().
			Model((*userRow)(nil)).
			Set("best_score = 0").
			Set("stars = 0").
			Set("crowns = 0").
			Set("consecutive_perfect_scores = 0").
			Set("updated_at = ?", s.now().UTC()).
			Where("TRUE").
			Exec(ctx); err != nil {
			return err
		}
		_, err := tx.NewDelete().
			Model((*attemptRow)(nil)).
			Where("TRUE").
			Exec(ctx)
		return err
	})
	return domain.NewStorageError("reset", err)
}

type ledgerTx struct {
	tx    bun.Tx
	entry domain.LedgerEntry
}

func (t *ledgerTx) Entry() domain.LedgerEntry {
	return t.entry
}

func (t *ledgerTx) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := &attemptRow{
		Username:       t.entry.Username,
		Score:          attempt.Score,
		TotalQuestions: attempt.TotalQuestions,
		CreatedAt:      attempt.Date.UTC(),
	}
	_, err := t.tx.NewInsert().Model(row).Returning("id").Exec(ctx)
	return domain.NewStorageError("insert attempt", err)
}

func (t *ledgerTx) Update(ctx context.Context, entry domain.LedgerEntry) error {
	row := &userRow{
		Username:                 t.entry.Username,
		BestScore:                entry.BestScore,
		Stars:                    entry.Stars,
		Crowns:                   entry.Crowns,
		ConsecutivePerfectScores: entry.ConsecutivePerfectScores,
		UpdatedAt:                entry.UpdatedAt.UTC(),
	}
	_, err := t.tx.NewUpdate().
		Model(row).
		Column("best_score", "stars", "crowns", "consecutive_perfect_scores", "updated_at").
		WherePK().
		Exec(ctx)
	return domain.NewStorageError("update user", err)
}

func (t *ledgerTx) ListAttempts(ctx context.Context) ([]domain.Attempt, error) {
	attempts, err := selectAttempts(ctx, t.tx, t.entry.Username)
	if err != nil {
		return nil, domain.NewStorageError("list attempts", err)
	}
	return attempts, nil
}

// readEntry loads a user together with its attempt history.
func readEntry(ctx context.Context, db bun.IDB, username string) (domain.LedgerEntry, error) {
	row, err := selectUser(ctx, db, username, false)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	attempts, err := selectAttempts(ctx, db, row.Username)
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	entry := row.toDomain()
	entry.Attempts = attempts
	return entry, nil
}

func selectUser(ctx context.Context, db bun.IDB, username string, forUpdate bool) (*userRow, error) {
	row := new(userRow)
	q := db.NewSelect().
		Model(row).
		Where("lower(u.username) = lower(?)", strings.TrimSpace(username))
	if forUpdate {
		q = q.For("UPDATE")
	}
	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return row, nil
}

func selectAttempts(ctx context.Context, db bun.IDB, username string) ([]domain.Attempt, error) {
	var rows []attemptRow
	if err := db.NewSelect().
		Model(&rows).
		Where("qa.username = ?", username).
		OrderExpr("qa.created_at DESC, qa.id DESC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return attemptsToDomain(rows), nil
}
