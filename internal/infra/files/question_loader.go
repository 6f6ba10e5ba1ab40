package files

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"concrete-quiz-service/internal/domain"
)

// QuestionLoader reads question banks from {dir}/{bankID}.json.
type QuestionLoader struct {
	dir string
}

func NewQuestionLoader(dir string) *QuestionLoader {
	return &QuestionLoader{dir: dir}
}

func (l *QuestionLoader) LoadQuestions(ctx context.Context, bankID string) ([]domain.Question, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bankID == "" || bankID != filepath.Base(bankID) || strings.HasPrefix(bankID, ".") {
		return nil, fmt.Errorf("%w: %q", domain.ErrBankNotFound, bankID)
	}

	raw, err := os.ReadFile(filepath.Join(l.dir, bankID+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBankNotFound, bankID)
	}
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("%w: bank %s: %v", domain.ErrInvalidQuestion, bankID, err)
	}
	return questions, nil
}

// ListBanks returns the IDs of the banks found in the directory.
func (l *QuestionLoader) ListBanks() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list question banks: %w", err)
	}
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	return ids, nil
}
