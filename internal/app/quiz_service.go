package app

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"concrete-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// SessionRepository abstracts where live quiz sessions are registered (in-memory, Redis, etc).
type SessionRepository interface {
	Add(session *Session)
	Get(sessionID string) (*Session, bool)
	Delete(sessionID string)
}

// QuestionBankRepository loads question banks (from cache/backing store).
type QuestionBankRepository interface {
	GetBank(ctx context.Context, bankID string) ([]domain.Question, error)
}

// AttemptRecorder receives the results of finished sessions.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, username string, score, totalQuestions int) (domain.LedgerEntry, error)
}

// DefaultResultRetention is how long a finished session waits for Complete
// or Abandon before it is dropped.
const DefaultResultRetention = 30 * time.Minute

// QuizOptions tunes a QuizService. Zero values select the defaults.
type QuizOptions struct {
	Session         SessionConfig
	ResultRetention time.Duration
	Clock           Clock
	Rand            *rand.Rand
	Logger          *slog.Logger
}

// QuizService contains the quiz session use cases.
type QuizService struct {
	sessions SessionRepository
	banks    QuestionBankRepository
	ledger   AttemptRecorder
	cfg      SessionConfig
	retain   time.Duration
	clock    Clock
	logger   *slog.Logger

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewQuizService(store SessionRepository, banks QuestionBankRepository, ledger AttemptRecorder, opts QuizOptions) *QuizService {
	svc := &QuizService{
		sessions: store,
		banks:    banks,
		ledger:   ledger,
		cfg:      opts.Session.withDefaults(),
		retain:   opts.ResultRetention,
		clock:    opts.Clock,
		logger:   opts.Logger,
		rnd:      opts.Rand,
	}
	if svc.clock == nil {
		svc.clock = SystemClock
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.retain <= 0 {
		svc.retain = DefaultResultRetention
	}
	if svc.rnd == nil {
		svc.rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return svc
}

// StartSession selects QuestionsPerSession questions from the supplied bank
// and starts a timed session for username.
func (s *QuizService) StartSession(_ context.Context, username string, questions []domain.Question) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.ErrInvalidUsername
	}
	if len(questions) < domain.QuestionsPerSession {
		return nil, domain.ErrInsufficientQuestions
	}
	if err := domain.ValidateQuestions(questions); err != nil {
		return nil, err
	}

	session := NewSession(uuid.NewString(), username, s.pick(questions), s.cfg, s.clock)
	session.OnFinished(func(res domain.SessionResult) {
		s.logger.Info("quiz session finished",
			slog.String("session_id", res.SessionID),
			slog.String("username", res.Username),
			slog.Int("score", res.Score),
			slog.Int("total", res.TotalQuestions))
		s.clock.AfterFunc(s.retain, func() { s.evict(session) })
	})
	s.sessions.Add(session)
	session.Start()

	s.logger.Info("quiz session started",
		slog.String("session_id", session.ID()),
		slog.String("username", username))
	return session, nil
}

// StartBankSession loads bankID and starts a session from it.
func (s *QuizService) StartBankSession(ctx context.Context, username, bankID string) (*Session, error) {
	questions, err := s.banks.GetBank(ctx, bankID)
	if err != nil {
		return nil, err
	}
	return s.StartSession(ctx, username, questions)
}

// Answer submits a choice for the current question of a session.
func (s *QuizService) Answer(_ context.Context, sessionID, choice string) (domain.AnswerOutcome, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.AnswerOutcome{}, domain.ErrSessionNotFound
	}
	return session.Answer(choice)
}

// Subscribe returns a channel that receives the events of a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, sessionID string) (<-chan domain.SessionEvent, func(), error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// Abandon stops a session that has not been recorded and forgets it.
// Finished but unrecorded results are discarded as well.
func (s *QuizService) Abandon(_ context.Context, sessionID string) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return
	}
	if session.Abandon() {
		s.logger.Info("quiz session abandoned",
			slog.String("session_id", sessionID),
			slog.String("username", session.Username()))
	}
	s.sessions.Delete(sessionID)
}

// Result returns the final result of a finished session.
func (s *QuizService) Result(_ context.Context, sessionID string) (domain.SessionResult, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.SessionResult{}, domain.ErrSessionNotFound
	}
	res, ok := session.Result()
	if !ok {
		return domain.SessionResult{}, domain.ErrSessionNotFinished
	}
	return res, nil
}

// Complete hands the result of a finished session to the reward ledger.
// On failure the session keeps its result so the call can be retried.
func (s *QuizService) Complete(ctx context.Context, sessionID string) (domain.LedgerEntry, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return domain.LedgerEntry{}, domain.ErrSessionNotFound
	}

	session.recordMu.Lock()
	defer session.recordMu.Unlock()

	res, ok := session.Result()
	if !ok {
		return domain.LedgerEntry{}, domain.ErrSessionNotFinished
	}
	if session.recorded {
		return domain.LedgerEntry{}, domain.ErrAttemptAlreadyRecorded
	}

	entry, err := s.ledger.RecordAttempt(ctx, res.Username, res.Score, res.TotalQuestions)
	if err != nil {
		s.logger.Error("recording quiz result failed",
			slog.String("session_id", sessionID),
			slog.String("username", res.Username),
			slog.String("error", err.Error()))
		return domain.LedgerEntry{}, err
	}
	session.recorded = true
	s.sessions.Delete(sessionID)
	return entry, nil
}

// evict drops a finished session nobody completed or abandoned in time.
func (s *QuizService) evict(session *Session) {
	session.recordMu.Lock()
	defer session.recordMu.Unlock()
	if session.recorded {
		return
	}
	current, ok := s.sessions.Get(session.ID())
	if !ok || current != session {
		return
	}
	s.sessions.Delete(session.ID())
	s.logger.Warn("unrecorded quiz result expired",
		slog.String("session_id", session.ID()),
		slog.String("username", session.Username()))
}

// pick shuffles a copy of questions and keeps the first QuestionsPerSession.
func (s *QuizService) pick(questions []domain.Question) []domain.Question {
	shuffled := make([]domain.Question, len(questions))
	copy(shuffled, questions)

	s.rndMu.Lock()
	s.rnd.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	s.rndMu.Unlock()

	return shuffled[:domain.QuestionsPerSession]
}
