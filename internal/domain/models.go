package domain

import "time"

// QuestionsPerSession is the fixed number of questions played in one session.
const QuestionsPerSession = 10

// NoAnswer is the choice recorded when a question's deadline expires.
const NoAnswer = ""

// Question models an MCQ question whose answer is one of its options.
type Question struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
	Answer  string   `json:"answer"`
}

// HasOption reports whether choice is one of the question's options.
func (q Question) HasOption(choice string) bool {
	for _, opt := range q.Options {
		if opt == choice {
			return true
		}
	}
	return false
}

// CloneQuestions deep-copies questions so the copy shares no option slices.
func CloneQuestions(questions []Question) []Question {
	if questions == nil {
		return nil
	}
	out := make([]Question, len(questions))
	for i, q := range questions {
		out[i] = q
		out[i].Options = append([]string(nil), q.Options...)
	}
	return out
}

// LedgerEntry is the durable reward state of one user.
type LedgerEntry struct {
	Username                 string    `json:"username"`
	BestScore                int       `json:"bestScore"`
	Stars                    int       `json:"stars"`
	Crowns                   int       `json:"crowns"`
	ConsecutivePerfectScores int       `json:"consecutivePerfectScores"`
	Attempts                 []Attempt `json:"attempts"`
	CreatedAt                time.Time `json:"createdAt"`
	UpdatedAt                time.Time `json:"updatedAt"`
}

// Attempt is an immutable record of one completed session.
type Attempt struct {
	ID             int64     `json:"id"`
	Username       string    `json:"-"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"totalQuestions"`
	Date           time.Time `json:"date"`
}

// SessionResult is what a finished session yields to its owner.
type SessionResult struct {
	SessionID      string `json:"sessionId"`
	Username       string `json:"username"`
	Score          int    `json:"score"`
	TotalQuestions int    `json:"totalQuestions"`
}

// SessionPhase is the state of a quiz session.
type SessionPhase string

const (
	PhaseAwaitingAnswer SessionPhase = "awaiting_answer"
	PhaseRevealing      SessionPhase = "revealing"
	PhaseFinished       SessionPhase = "finished"
	PhaseAbandoned      SessionPhase = "abandoned"
)

// SessionEventType discriminates SessionEvent payloads.
type SessionEventType string

const (
	EventQuestion  SessionEventType = "question"
	EventReveal    SessionEventType = "reveal"
	EventFinished  SessionEventType = "finished"
	EventAbandoned SessionEventType = "abandoned"
)

// SessionEvent is broadcast to session subscribers on every transition.
// Only the fields relevant to Type are set.
type SessionEvent struct {
	Type      SessionEventType `json:"type"`
	SessionID string           `json:"sessionId"`
	Index     int              `json:"index"`
	Total     int              `json:"total"`
	Score     int              `json:"score"`
	Question  *QuestionView    `json:"question,omitempty"`
	Deadline  time.Time        `json:"deadline,omitempty"`
	Reveal    *Reveal          `json:"reveal,omitempty"`
}

// QuestionView is the client-facing form of a question; it never carries the answer.
type QuestionView struct {
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// Reveal exposes the outcome of a question for display only.
type Reveal struct {
	Choice   string `json:"choice"`
	Answer   string `json:"answer"`
	Correct  bool   `json:"correct"`
	TimedOut bool   `json:"timedOut"`
}

// AnswerOutcome summarizes a submission. Accepted is false when the question
// had already been answered and the call was ignored.
type AnswerOutcome struct {
	Index    int  `json:"index"`
	Accepted bool `json:"accepted"`
	Correct  bool `json:"correct"`
	Score    int  `json:"score"`
}
