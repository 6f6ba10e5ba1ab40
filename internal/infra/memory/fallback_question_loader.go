package memory

import (
	"context"
	"errors"
	"log/slog"

	"concrete-quiz-service/internal/domain"
)

// FallbackQuestionLoader reads from primary and only consults fallback for
// banks primary does not have. Other primary errors are returned as is.
type FallbackQuestionLoader struct {
	primary  QuestionLoader
	fallback QuestionLoader
	logger   *slog.Logger
}

func NewFallbackQuestionLoader(primary, fallback QuestionLoader, logger *slog.Logger) *FallbackQuestionLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackQuestionLoader{primary: primary, fallback: fallback, logger: logger}
}

func (l *FallbackQuestionLoader) LoadQuestions(ctx context.Context, bankID string) ([]domain.Question, error) {
	questions, err := l.primary.LoadQuestions(ctx, bankID)
	if !errors.Is(err, domain.ErrBankNotFound) {
		return questions, err
	}
	questions, fbErr := l.fallback.LoadQuestions(ctx, bankID)
	if fbErr != nil {
		if errors.Is(fbErr, domain.ErrBankNotFound) {
			return nil, err
		}
		return nil, fbErr
	}
	l.logger.Warn("question bank missing from primary source, serving the local copy; run import-banks to publish it",
		slog.String("bank_id", bankID))
	return questions, nil
}
