package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"concrete-quiz-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// QuestionLoader fetches a question bank from a backing store (files, Postgres, S3).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, bankID string) ([]domain.Question, error)
}

// QuestionBankRepository keeps validated banks in process memory for ttl.
// Callers always receive their own copy of a bank.
type QuestionBankRepository struct {
	loader QuestionLoader
	ttl    time.Duration
	clock  func() time.Time
	loads  singleflight.Group

	mu    sync.Mutex
	rnd   *rand.Rand
	banks map[string]bankEntry
}

type bankEntry struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBankRepository(loader QuestionLoader, ttl time.Duration) *QuestionBankRepository {
	return &QuestionBankRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		banks:  make(map[string]bankEntry),
	}
}

// GetBank returns bankID from memory, loading and validating it on a miss.
// Concurrent misses for one bank share a single load.
func (r *QuestionBankRepository) GetBank(ctx context.Context, bankID string) ([]domain.Question, error) {
	if questions, ok := r.lookup(bankID); ok {
		return domain.CloneQuestions(questions), nil
	}

	v, err, _ := r.loads.Do(bankID, func() (interface{}, error) {
		if questions, ok := r.lookup(bankID); ok {
			return questions, nil
		}
		questions, err := r.loader.LoadQuestions(ctx, bankID)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateQuestions(questions); err != nil {
			return nil, err
		}
		questions = domain.CloneQuestions(questions)
		r.store(bankID, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return domain.CloneQuestions(v.([]domain.Question)), nil
}

func (r *QuestionBankRepository) lookup(bankID string) ([]domain.Question, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.banks[bankID]
	if !ok {
		return nil, false
	}
	if !entry.expiresAt.After(r.clock()) {
		delete(r.banks, bankID)
		return nil, false
	}
	return entry.questions, true
}

func (r *QuestionBankRepository) store(bankID string, questions []domain.Question) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ttl := r.ttl
	if ttl > 0 {
		// up to 10% jitter spreads reloads of banks cached together
		ttl += time.Duration(r.rnd.Int63n(int64(ttl)/10 + 1))
	}
	r.banks[bankID] = bankEntry{questions: questions, expiresAt: r.clock().Add(ttl)}
}

// StaticQuestionLoader serves banks from a fixed map.
type StaticQuestionLoader struct {
	banks map[string][]domain.Question
}

func NewStaticQuestionLoader(banks map[string][]domain.Question) *StaticQuestionLoader {
	return &StaticQuestionLoader{banks: banks}
}

func (l *StaticQuestionLoader) LoadQuestions(_ context.Context, bankID string) ([]domain.Question, error) {
	questions, ok := l.banks[bankID]
	if !ok {
		return nil, domain.ErrBankNotFound
	}
	return domain.CloneQuestions(questions), nil
}
