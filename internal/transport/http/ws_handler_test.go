package http

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"concrete-quiz-service/internal/app"
	"concrete-quiz-service/internal/domain"
	"concrete-quiz-service/internal/infra/memory"
	"github.com/gorilla/websocket"
)

func TestWebSocketPerfectSessionIsRecorded(t *testing.T) {
	server, ledger := newWSServer(t)
	defer server.Close()

	conn := dialWS(t, server, "Alice")
	defer conn.Close()

	// Expect the ledger entry first.
	if typ, _ := readNext(conn, t, "ledger"); typ != "ledger" {
		t.Fatalf("expected ledger, got %s", typ)
	}

	start := map[string]any{
		"type":    "start",
		"payload": map[string]any{"questions": sampleQuestions(12)},
	}
	if err := conn.WriteJSON(start); err != nil {
		t.Fatalf("write start: %v", err)
	}
	_, started := readNext(conn, t, "started")
	if started["total"] != float64(domain.QuestionsPerSession) {
		t.Fatalf("expected %d questions, got %v", domain.QuestionsPerSession, started["total"])
	}

	answered := 0
	finished := false
	for {
		typ, payload := readNext(conn, t, "")
		switch typ {
		case "question":
			question := payload["question"].(map[string]any)
			choice := question["options"].([]any)[0].(string)
			if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"choice": choice}}); err != nil {
				t.Fatalf("write answer: %v", err)
			}
			answered++
		case "reveal":
			reveal := payload["reveal"].(map[string]any)
			if reveal["correct"] != true {
				t.Fatalf("expected correct reveal, got %v", reveal)
			}
		case "finished":
			if payload["score"] != float64(10) {
				t.Fatalf("expected score 10, got %v", payload["score"])
			}
			finished = true
		case "ledger":
			if !finished {
				t.Fatalf("ledger update before finish")
			}
			if payload["stars"] != float64(1) || payload["bestScore"] != float64(10) {
				t.Fatalf("unexpected ledger entry %v", payload)
			}
			if answered != domain.QuestionsPerSession {
				t.Fatalf("expected %d answers, sent %d", domain.QuestionsPerSession, answered)
			}
			entry, err := ledger.Get(context.Background(), "alice")
			if err != nil || entry.Stars != 1 || len(entry.Attempts) != 1 {
				t.Fatalf("expected stored attempt, got %+v err=%v", entry, err)
			}
			return
		case "error":
			t.Fatalf("unexpected error message %v", payload)
		}
	}
}

func TestWebSocketRejectsBadInput(t *testing.T) {
	server, _ := newWSServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without username, got %d", resp.StatusCode)
	}

	conn := dialWS(t, server, "bob")
	defer conn.Close()
	readNext(conn, t, "ledger")

	if err := conn.WriteJSON(map[string]any{"type": "answer", "payload": map[string]any{"choice": "x"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")

	short := map[string]any{"type": "start", "payload": map[string]any{"questions": sampleQuestions(3)}}
	if err := conn.WriteJSON(short); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, payload := readNext(conn, t, "error")
	if payload["message"] != domain.ErrInsufficientQuestions.Error() {
		t.Fatalf("unexpected error %v", payload)
	}

	if err := conn.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readNext(conn, t, "error")
}

func TestWebSocketDisconnectAbandonsSession(t *testing.T) {
	store := memory.NewSessionStore()
	server, ledger := newWSServerWithStore(t, store)
	defer server.Close()

	conn := dialWS(t, server, "carol")
	readNext(conn, t, "ledger")
	if err := conn.WriteJSON(map[string]any{"type": "start", "payload": map[string]any{"questions": sampleQuestions(10)}}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readNext(conn, t, "started")
	conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for store.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
	entry, err := ledger.Get(context.Background(), "carol")
	if err != nil || len(entry.Attempts) != 0 {
		t.Fatalf("abandoned session must not be recorded, got %+v err=%v", entry, err)
	}
}

func newWSServer(t *testing.T) (*httptest.Server, *app.LedgerService) {
	t.Helper()
	return newWSServerWithStore(t, memory.NewSessionStore())
}

func newWSServerWithStore(t *testing.T, store *memory.SessionStore) (*httptest.Server, *app.LedgerService) {
	t.Helper()
	ledger := app.NewLedgerService(memory.NewLedgerStore(), nil)
	banks := memory.NewQuestionBankRepository(memory.NewStaticQuestionLoader(map[string][]domain.Question{
		"general": sampleQuestions(10),
	}), time.Minute)
	quizzes := app.NewQuizService(store, banks, ledger, app.QuizOptions{
		Session: app.SessionConfig{QuestionTimeout: 5 * time.Second, RevealDelay: 5 * time.Millisecond},
		Rand:    rand.New(rand.NewSource(1)),
	})
	wsHandler := NewWSHandler(quizzes, ledger, "general", nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	return httptest.NewServer(mux), ledger
}

func dialWS(t *testing.T, server *httptest.Server, username string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?username=" + username
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s (%v)", expect, msg.Type, msg.Payload)
	}
	return msg.Type, msg.Payload
}

// sampleQuestions lists the correct answer first in every question.
func sampleQuestions(n int) []domain.Question {
	questions := make([]domain.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, domain.Question{
			Text:    fmt.Sprintf("What is %d + 1?", i),
			Options: []string{fmt.Sprint(i + 1), fmt.Sprint(i + 2), fmt.Sprint(i + 3)},
			Answer:  fmt.Sprint(i + 1),
		})
	}
	return questions
}
