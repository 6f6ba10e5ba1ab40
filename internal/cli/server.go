package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concrete-quiz-service/internal/app"
	"concrete-quiz-service/internal/config"
	"concrete-quiz-service/internal/infra/files"
	"concrete-quiz-service/internal/infra/memory"
	"concrete-quiz-service/internal/infra/postgres"
	infraredis "concrete-quiz-service/internal/infra/redis"
	infras3 "concrete-quiz-service/internal/infra/s3"
	transport "concrete-quiz-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var ledger *app.LedgerService
	if cfg.Postgres.URL != "" {
		var closeLedger func()
		ledger, closeLedger, err = openLedger(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLedger()
	} else {
		logger.Warn("postgres url not configured, ledger is kept in memory")
		ledger = app.NewLedgerService(memory.NewLedgerStore(), logger)
	}

	redisClient := newRedisClient(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}
	redisTTL := config.Duration(cfg.Redis.TTL, 10*time.Minute)

	loader, closeLoader, err := newQuestionLoader(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeLoader()

	bankTTL := config.Duration(cfg.Quiz.BankTTL, 10*time.Minute)
	var banks app.QuestionBankRepository
	if redisClient != nil {
		banks = infraredis.NewQuestionBankRepository(redisClient, loader, bankTTL, logger)
	} else {
		banks = memory.NewQuestionBankRepository(loader, bankTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = infraredis.NewSessionStore(redisClient, redisTTL, logger)
	} else {
		store = memory.NewSessionStore()
	}

	quizzes := app.NewQuizService(store, banks, ledger, app.QuizOptions{
		Session: app.SessionConfig{
			QuestionTimeout: config.Duration(cfg.Quiz.QuestionTimeout, app.DefaultQuestionTimeout),
			RevealDelay:     config.Duration(cfg.Quiz.RevealDelay, app.DefaultRevealDelay),
		},
		ResultRetention: config.Duration(cfg.Quiz.ResultRetention, app.DefaultResultRetention),
		Logger:          logger,
	})
	wsHandler := transport.NewWSHandler(quizzes, ledger, cfg.Quiz.DefaultBank, logger)

	mux := http.NewServeMux()
	transport.NewAPIHandler(ledger, logger).Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting quiz service", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", slog.String("error", err.Error()))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newQuestionLoader picks the question bank source: S3 when a bucket is set,
// then Postgres, then JSON files on disk. Remote sources fall back to the
// files for banks they do not hold yet.
func newQuestionLoader(ctx context.Context, cfg config.Config, logger *slog.Logger) (memory.QuestionLoader, func(), error) {
	dir := cfg.Quiz.QuestionsDir
	if dir == "" {
		dir = "questions"
	}
	local := files.NewQuestionLoader(dir)

	if cfg.S3.Bucket != "" {
		client, err := infras3.NewClient(ctx, infras3.ClientConfig{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Info("loading question banks from s3", slog.String("bucket", cfg.S3.Bucket), slog.String("fallback_dir", dir))
		remote := infras3.NewQuestionLoader(client, cfg.S3.Bucket, cfg.S3.Prefix)
		return memory.NewFallbackQuestionLoader(remote, local, logger), func() {}, nil
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("loading question banks from postgres", slog.String("fallback_dir", dir))
		remote := postgres.NewQuestionLoader(pool)
		return memory.NewFallbackQuestionLoader(remote, local, logger), pool.Close, nil
	}

	logger.Info("loading question banks from files", slog.String("dir", dir))
	return local, func() {}, nil
}

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}
