package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"concrete-quiz-service/internal/app"
	"concrete-quiz-service/internal/domain"
)

// LedgerStore is an in-memory implementation of app.LedgerStore.
//
// Lock order: global, then the per-user key, then mu. Transactions share
// global; ResetAll takes it exclusively so it never interleaves with one.
type LedgerStore struct {
	now    func() time.Time
	global sync.RWMutex
	locks  *keyedMutex

	mu       sync.RWMutex
	users    map[string]domain.LedgerEntry
	attempts map[string][]domain.Attempt
	nextID   int64
}

func NewLedgerStore() *LedgerStore {
	return NewLedgerStoreWithClock(time.Now)
}

// NewLedgerStoreWithClock allows deterministic timestamps in tests.
func NewLedgerStoreWithClock(now func() time.Time) *LedgerStore {
	return &LedgerStore{
		now:      now,
		locks:    newKeyedMutex(),
		users:    make(map[string]domain.LedgerEntry),
		attempts: make(map[string][]domain.Attempt),
	}
}

func userKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func (s *LedgerStore) Get(ctx context.Context, username string) (domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerEntry{}, domain.NewStorageError("get user", err)
	}
	key := userKey(username)

	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.users[key]
	if !ok {
		return domain.LedgerEntry{}, domain.ErrUserNotFound
	}
	entry.Attempts = newestFirst(s.attempts[key])
	return entry, nil
}

func (s *LedgerStore) Create(ctx context.Context, username string) (domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.LedgerEntry{}, domain.NewStorageError("create user", err)
	}
	key := userKey(username)

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.users[key]
	if !ok {
		now := s.now()
		entry = domain.LedgerEntry{Username: username, CreatedAt: now, UpdatedAt: now}
		s.users[key] = entry
	}
	entry.Attempts = newestFirst(s.attempts[key])
	return entry, nil
}

func (s *LedgerStore) ListAll(ctx context.Context) ([]domain.LedgerEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("list users", err)
	}

	s.mu.RLock()
	entries := make([]domain.LedgerEntry, 0, len(s.users))
	for key, entry := range s.users {
		entry.Attempts = newestFirst(s.attempts[key])
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	domain.SortEntries(entries)
	return entries, nil
}

func (s *LedgerStore) ListAttempts(ctx context.Context, username string) ([]domain.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("list attempts", err)
	}
	key := userKey(username)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.users[key]; !ok {
		return nil, domain.ErrUserNotFound
	}
	return newestFirst(s.attempts[key]), nil
}

func (s *LedgerStore) WithinUser(ctx context.Context, username string, fn func(ctx context.Context, tx app.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("begin", err)
	}
	key := userKey(username)

	s.global.RLock()
	defer s.global.RUnlock()
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.RLock()
	entry, ok := s.users[key]
	s.mu.RUnlock()
	if !ok {
		return domain.ErrUserNotFound
	}

	tx := &ledgerTx{store: s, key: key, entry: entry, next: entry}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("commit", err)
	}

	s.mu.Lock()
	s.attempts[key] = append(s.attempts[key], tx.staged...)
	next := tx.next
	next.Username = entry.Username
	next.CreatedAt = entry.CreatedAt
	next.Attempts = nil
	s.users[key] = next
	s.mu.Unlock()
	return nil
}

func (s *LedgerStore) ResetAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("reset", err)
	}

	s.global.Lock()
	defer s.global.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for key, entry := range s.users {
		entry = entry.Reset()
		entry.UpdatedAt = now
		s.users[key] = entry
	}
	s.attempts = make(map[string][]domain.Attempt)
	return nil
}

// ledgerTx stages writes until WithinUser commits them.
type ledgerTx struct {
	store  *LedgerStore
	key    string
	entry  domain.LedgerEntry
	next   domain.LedgerEntry
	staged []domain.Attempt
}

func (t *ledgerTx) Entry() domain.LedgerEntry {
	return t.entry
}

func (t *ledgerTx) AppendAttempt(ctx context.Context, attempt domain.Attempt) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("insert attempt", err)
	}
	t.store.mu.Lock()
	t.store.nextID++
	attempt.ID = t.store.nextID
	t.store.mu.Unlock()

	attempt.Username = t.entry.Username
	if attempt.Date.IsZero() {
		attempt.Date = t.store.now()
	}
	t.staged = append(t.staged, attempt)
	return nil
}

func (t *ledgerTx) Update(ctx context.Context, entry domain.LedgerEntry) error {
	if err := ctx.Err(); err != nil {
		return domain.NewStorageError("update user", err)
	}
	t.next = entry
	return nil
}

func (t *ledgerTx) ListAttempts(ctx context.Context) ([]domain.Attempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, domain.NewStorageError("list attempts", err)
	}
	t.store.mu.RLock()
	committed := t.store.attempts[t.key]
	all := make([]domain.Attempt, 0, len(committed)+len(t.staged))
	all = append(all, committed...)
	t.store.mu.RUnlock()
	all = append(all, t.staged...)
	return newestFirst(all), nil
}

// newestFirst returns a sorted copy, latest date first and higher IDs first on ties.
func newestFirst(attempts []domain.Attempt) []domain.Attempt {
	out := make([]domain.Attempt, len(attempts))
	copy(out, attempts)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
