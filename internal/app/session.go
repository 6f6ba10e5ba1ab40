package app

import (
	"sync"
	"time"

	"concrete-quiz-service/internal/domain"
)

const (
	DefaultQuestionTimeout = 30 * time.Second
	DefaultRevealDelay     = 2 * time.Second
)

// SessionConfig holds the per-question timing of a session.
type SessionConfig struct {
	QuestionTimeout time.Duration
	RevealDelay     time.Duration
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.QuestionTimeout <= 0 {
		c.QuestionTimeout = DefaultQuestionTimeout
	}
	if c.RevealDelay <= 0 {
		c.RevealDelay = DefaultRevealDelay
	}
	return c
}

// SessionState is a point-in-time view of a session.
type SessionState struct {
	ID       string              `json:"id"`
	Username string              `json:"username"`
	Phase    domain.SessionPhase `json:"phase"`
	Index    int                 `json:"index"`
	Total    int                 `json:"total"`
	Score    int                 `json:"score"`
	Deadline time.Time           `json:"deadline"`
}

// Session is one timed playthrough. Every transition happens under mu,
// whether it is driven by Answer, Abandon or a timer callback.
type Session struct {
	id         string
	username   string
	questions  []domain.Question
	cfg        SessionConfig
	clock      Clock
	onFinished func(domain.SessionResult)

	mu          sync.Mutex
	started     bool
	phase       domain.SessionPhase
	index       int
	score       int
	deadline    time.Time
	timer       Timer
	gen         uint64
	result      *domain.SessionResult
	last        domain.SessionEvent
	done        chan struct{}
	subscribers map[chan domain.SessionEvent]struct{}

	// recordMu serializes hand-off of the result to the ledger.
	recordMu sync.Mutex
	recorded bool
}

// NewSession builds a session over questions, which must already be the
// final selection. The session does not run until Start is called.
func NewSession(id, username string, questions []domain.Question, cfg SessionConfig, clock Clock) *Session {
	if clock == nil {
		clock = SystemClock
	}
	return &Session{
		id:          id,
		username:    username,
		questions:   questions,
		cfg:         cfg.withDefaults(),
		clock:       clock,
		phase:       domain.PhaseAwaitingAnswer,
		done:        make(chan struct{}),
		subscribers: make(map[chan domain.SessionEvent]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Username returns the player the session belongs to.
func (s *Session) Username() string { return s.username }

// OnFinished registers f to receive the result once the last question resolves.
// It must be called before Start.
func (s *Session) OnFinished(f func(domain.SessionResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFinished = f
}

// Start presents the first question and arms its deadline.
func (s *Session) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.phase != domain.PhaseAwaitingAnswer {
		return
	}
	s.started = true
	s.askLocked()
}

// Answer submits choice for the current question. Calls made while the
// question is already answered, or after the session ended, are ignored and
// reported with Accepted=false.
func (s *Session) Answer(choice string) (domain.AnswerOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	outcome := domain.AnswerOutcome{Index: s.index, Score: s.score}
	if !s.started || s.phase != domain.PhaseAwaitingAnswer {
		return outcome, nil
	}
	question := s.questions[s.index]
	if choice != domain.NoAnswer && !question.HasOption(choice) {
		return outcome, domain.ErrOptionNotFound
	}

	correct := s.resolveLocked(choice, false)
	outcome.Accepted = true
	outcome.Correct = correct
	outcome.Score = s.score
	return outcome, nil
}

// Abandon discards a running session and releases its timer. It reports
// false when the session had already finished or been abandoned.
func (s *Session) Abandon() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase == domain.PhaseFinished || s.phase == domain.PhaseAbandoned {
		return false
	}
	s.stopTimerLocked()
	s.gen++
	s.phase = domain.PhaseAbandoned
	s.broadcastLocked(domain.SessionEvent{Type: domain.EventAbandoned, Index: s.index, Score: s.score})
	close(s.done)
	return true
}

// Done is closed when the session finishes or is abandoned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Result returns the final score once the session has finished.
func (s *Session) Result() (domain.SessionResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return domain.SessionResult{}, false
	}
	return *s.result, true
}

// State returns a snapshot of the session.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionState{
		ID:       s.id,
		Username: s.username,
		Phase:    s.phase,
		Index:    s.index,
		Total:    len(s.questions),
		Score:    s.score,
		Deadline: s.deadline,
	}
}

// Subscribe returns a channel of session events, starting with the latest one.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, 8)

	s.mu.Lock()
	if s.last.Type != "" {
		ch <- s.last
	}
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) askLocked() {
	s.phase = domain.PhaseAwaitingAnswer
	s.deadline = s.clock.Now().Add(s.cfg.QuestionTimeout)
	gen := s.nextGenLocked()
	s.timer = s.clock.AfterFunc(s.cfg.QuestionTimeout, func() { s.expire(gen) })

	q := s.questions[s.index]
	options := make([]string, len(q.Options))
	copy(options, q.Options)
	s.broadcastLocked(domain.SessionEvent{
		Type:     domain.EventQuestion,
		Index:    s.index,
		Score:    s.score,
		Question: &domain.QuestionView{Text: q.Text, Options: options},
		Deadline: s.deadline,
	})
}

// resolveLocked scores the current question and schedules the move past it.
func (s *Session) resolveLocked(choice string, timedOut bool) bool {
	s.stopTimerLocked()
	q := s.questions[s.index]
	correct := choice == q.Answer
	if correct {
		s.score++
	}
	s.phase = domain.PhaseRevealing

	gen := s.nextGenLocked()
	s.timer = s.clock.AfterFunc(s.cfg.RevealDelay, func() { s.advance(gen) })

	s.broadcastLocked(domain.SessionEvent{
		Type:  domain.EventReveal,
		Index: s.index,
		Score: s.score,
		Reveal: &domain.Reveal{
			Choice:   choice,
			Answer:   q.Answer,
			Correct:  correct,
			TimedOut: timedOut,
		},
	})
	return correct
}

// expire auto-submits NoAnswer when the deadline of generation gen elapses.
func (s *Session) expire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.phase != domain.PhaseAwaitingAnswer {
		return
	}
	s.timer = nil
	s.resolveLocked(domain.NoAnswer, true)
}

// advance ends the reveal of generation gen.
func (s *Session) advance(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.phase != domain.PhaseRevealing {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	if s.index < len(s.questions)-1 {
		s.index++
		s.askLocked()
		s.mu.Unlock()
		return
	}

	result := domain.SessionResult{
		SessionID:      s.id,
		Username:       s.username,
		Score:          s.score,
		TotalQuestions: len(s.questions),
	}
	s.result = &result
	s.phase = domain.PhaseFinished
	s.deadline = time.Time{}
	s.broadcastLocked(domain.SessionEvent{Type: domain.EventFinished, Index: s.index, Score: s.score})
	close(s.done)
	onFinished := s.onFinished
	s.mu.Unlock()

	if onFinished != nil {
		onFinished(result)
	}
}

func (s *Session) nextGenLocked() uint64 {
	s.gen++
	return s.gen
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) broadcastLocked(ev domain.SessionEvent) {
	ev.SessionID = s.id
	ev.Total = len(s.questions)
	s.last = ev
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
			// drop the oldest pending event so a slow reader never blocks a transition
			select {
			case <-ch:
			default:
			}
			ch <- ev
		}
	}
}
