package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"concrete-quiz-service/internal/domain"
	"concrete-quiz-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionBankRepository caches validated question banks in Redis and falls
// back to a loader on cache miss.
// Banks are stored as: SET quiz:bank:{bankID} <json array of questions> EX ttl
type QuestionBankRepository struct {
	client *redis.Client
	loader memory.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	logger *slog.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuestionBankRepository(client *redis.Client, loader memory.QuestionLoader, ttl time.Duration, logger *slog.Logger) *QuestionBankRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuestionBankRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		logger: logger,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *QuestionBankRepository) GetBank(ctx context.Context, bankID string) ([]domain.Question, error) {
	if questions, ok := r.cached(ctx, bankID); ok {
		return questions, nil
	}

	result, err, _ := r.sf.Do(bankID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if questions, ok := r.cached(ctx, bankID); ok {
			return questions, nil
		}

		questions, err := r.loader.LoadQuestions(ctx, bankID)
		if err != nil {
			return nil, err
		}
		if err := domain.ValidateQuestions(questions); err != nil {
			return nil, err
		}

		payload, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		// a failed write only costs a reload later
		if err := r.client.Set(ctx, r.key(bankID), payload, r.ttlWithJitter()).Err(); err != nil {
			r.logger.Warn("caching question bank failed",
				slog.String("bank_id", bankID),
				slog.String("error", err.Error()))
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Invalidate drops the cached copy of bankID.
func (r *QuestionBankRepository) Invalidate(ctx context.Context, bankID string) error {
	return r.client.Del(ctx, r.key(bankID)).Err()
}

// cached reports a hit only for a readable, still valid bank. Corrupt entries
// are treated as misses and overwritten by the next load.
func (r *QuestionBankRepository) cached(ctx context.Context, bankID string) ([]domain.Question, bool) {
	payload, err := r.client.Get(ctx, r.key(bankID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("reading question bank cache failed",
				slog.String("bank_id", bankID),
				slog.String("error", err.Error()))
		}
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(payload, &questions); err != nil {
		return nil, false
	}
	if err := domain.ValidateQuestions(questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (r *QuestionBankRepository) key(bankID string) string {
	return "quiz:bank:" + bankID
}

func (r *QuestionBankRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
