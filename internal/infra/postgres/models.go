package postgres

import (
	"time"

	"concrete-quiz-service/internal/domain"
	"github.com/uptrace/bun"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	Username                 string `bun:"username,pk"`
	BestScore                int    `bun:"best_score,notnull,default:0"`
	Stars                    int    `bun:"stars,notnull,default:0"`
	Crowns                   int    `bun:"crowns,notnull,default:0"`
	ConsecutivePerfectScores int    `bun:"consecutive_perfect_scores,notnull,default:0"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:qa"`

	ID             int64     `bun:"id,pk,autoincrement"`
	Username       string    `bun:"username,notnull"`
	Score          int       `bun:"score,notnull"`
	TotalQuestions int       `bun:"total_questions,notnull"`
	CreatedAt      time.Time `bun:"created_at,notnull"`
}

func (r *userRow) toDomain() domain.LedgerEntry {
	return domain.LedgerEntry{
		Username:                 r.Username,
		BestScore:                r.BestScore,
		Stars:                    r.Stars,
		Crowns:                   r.Crowns,
		ConsecutivePerfectScores: r.ConsecutivePerfectScores,
		CreatedAt:                r.CreatedAt,
		UpdatedAt:                r.UpdatedAt,
	}
}

func (r *attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:             r.ID,
		Username:       r.Username,
		Score:          r.Score,
		TotalQuestions: r.TotalQuestions,
		Date:           r.CreatedAt,
	}
}

func attemptsToDomain(rows []attemptRow) []domain.Attempt {
	attempts := make([]domain.Attempt, 0, len(rows))
	for i := range rows {
		attempts = append(attempts, rows[i].toDomain())
	}
	return attempts
}
