package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"concrete-quiz-service/internal/domain"
	"concrete-quiz-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestQuestionBankRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"general": sampleBank(12),
		}),
	}
	repo := NewQuestionBankRepository(newClient(mr), loader, time.Minute, nil)

	questions, err := repo.GetBank(context.Background(), "general")
	if err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if len(questions) != 12 {
		t.Fatalf("expected 12 questions, got %d", len(questions))
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if !mr.Exists("quiz:bank:general") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:bank:general"); ttl < time.Minute || ttl > time.Minute+6*time.Second {
		t.Fatalf("expected ttl with at most 10%% jitter, got %v", ttl)
	}

	// Second call should hit cache, loader not incremented.
	cached, err := repo.GetBank(context.Background(), "general")
	if err != nil {
		t.Fatalf("get cached bank: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached[4].Text != questions[4].Text || cached[4].Answer != questions[4].Answer {
		t.Fatalf("cached bank differs: %+v vs %+v", cached[4], questions[4])
	}
}

func TestQuestionBankRepositoryReloadsCorruptEntry(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	if err := mr.Set("quiz:bank:general", "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	loader := &countingLoader{
		QuestionLoader: memory.NewStaticQuestionLoader(map[string][]domain.Question{
			"general": sampleBank(10),
		}),
	}
	repo := NewQuestionBankRepository(newClient(mr), loader, time.Minute, nil)

	if _, err := repo.GetBank(context.Background(), "general"); err != nil {
		t.Fatalf("get bank: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected reload, loader calls=%d", loader.calls)
	}

	if err := repo.Invalidate(context.Background(), "general"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("quiz:bank:general") {
		t.Fatalf("expected redis key to be removed")
	}
}

func TestQuestionBankRepositoryDoesNotCacheInvalidBank(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	bad := sampleBank(10)
	bad[2].Options = []string{"only one"}
	loader := memory.NewStaticQuestionLoader(map[string][]domain.Question{"bad": bad})
	repo := NewQuestionBankRepository(newClient(mr), loader, time.Minute, nil)

	if _, err := repo.GetBank(context.Background(), "bad"); !errors.Is(err, domain.ErrInvalidQuestion) {
		t.Fatalf("expected ErrInvalidQuestion, got %v", err)
	}
	if _, err := repo.GetBank(context.Background(), "missing"); !errors.Is(err, domain.ErrBankNotFound) {
		t.Fatalf("expected ErrBankNotFound, got %v", err)
	}
	if mr.Exists("quiz:bank:bad") {
		t.Fatalf("invalid bank must not be cached")
	}
}

type countingLoader struct {
	memory.QuestionLoader
	calls int
}

func (l *countingLoader) LoadQuestions(ctx context.Context, bankID string) ([]domain.Question, error) {
	l.calls++
	return l.QuestionLoader.LoadQuestions(ctx, bankID)
}

func sampleBank(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			Text:    fmt.Sprintf("What is %d + %d?", i, i),
			Options: []string{fmt.Sprint(2 * i), fmt.Sprint(2*i + 1)},
			Answer:  fmt.Sprint(2 * i),
		})
	}
	return questions
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}
