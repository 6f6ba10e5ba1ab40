package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"concrete-quiz-service/internal/config"
	"concrete-quiz-service/internal/domain"
	"concrete-quiz-service/internal/infra/files"
	"concrete-quiz-service/internal/infra/postgres"
	infraredis "concrete-quiz-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/spf13/cobra"
)

// NewImportBanksCmd copies the JSON question banks on disk into Postgres.
func NewImportBanksCmd(configPath *string) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "import-banks",
		Short: "Load every {id}.json question bank from a directory into Postgres",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImportBanks(cmd.Context(), *configPath, dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "directory of question banks (defaults to quiz.questions_dir)")
	return cmd
}

type bankSource interface {
	ListBanks() ([]string, error)
	LoadQuestions(ctx context.Context, bankID string) ([]domain.Question, error)
}

type bankSink interface {
	SaveBank(ctx context.Context, bankID string, questions []domain.Question) error
}

// bankCache is the shared cache running servers read banks through.
type bankCache interface {
	Invalidate(ctx context.Context, bankID string) error
}

func runImportBanks(ctx context.Context, configPath, dir string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)
	if dir == "" {
		dir = cfg.Quiz.QuestionsDir
	}
	if dir == "" {
		dir = "questions"
	}

	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := migrateDB(ctx, db, logger); err != nil {
		return err
	}

	pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()
	target := postgres.NewQuestionLoader(pool)

	var cache bankCache
	if client := newRedisClient(cfg); client != nil {
		defer client.Close()
		cache = infraredis.NewQuestionBankRepository(client, target, config.Duration(cfg.Quiz.BankTTL, 10*time.Minute), logger)
	}

	return importBanks(ctx, files.NewQuestionLoader(dir), target, cache, logger)
}

// importBanks saves every bank of source into sink and evicts it from cache,
// so servers pick up the new content on their next load.
func importBanks(ctx context.Context, source bankSource, sink bankSink, cache bankCache, logger *slog.Logger) error {
	ids, err := source.ListBanks()
	if err != nil {
		return err
	}
	for _, id := range ids {
		questions, err := source.LoadQuestions(ctx, id)
		if err != nil {
			return fmt.Errorf("bank %s: %w", id, err)
		}
		if err := sink.SaveBank(ctx, id, questions); err != nil {
			return fmt.Errorf("bank %s: %w", id, err)
		}
		if cache != nil {
			if err := cache.Invalidate(ctx, id); err != nil {
				logger.Warn("evicting cached question bank failed, old copy expires with its ttl",
					slog.String("bank_id", id),
					slog.String("error", err.Error()))
			}
		}
		logger.Info("question bank imported", slog.String("bank_id", id), slog.Int("questions", len(questions)))
	}
	return nil
}
