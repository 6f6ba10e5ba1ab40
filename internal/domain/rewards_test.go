package domain

import "testing"

func TestApplyAttemptAliceScenario(t *testing.T) {
	entry := LedgerEntry{Username: "alice"}

	steps := []struct {
		score  int
		best   int
		stars  int
		crowns int
		streak int
	}{
		{10, 10, 1, 0, 1},
		{10, 10, 2, 0, 2},
		{10, 10, 3, 1, 0},
		{5, 10, 3, 1, 0},
	}
	for i, step := range steps {
		entry = ApplyAttempt(entry, step.score, 10)
		if entry.BestScore != step.best || entry.Stars != step.stars || entry.Crowns != step.crowns || entry.ConsecutivePerfectScores != step.streak {
			t.Fatalf("step %d: got best=%d stars=%d crowns=%d streak=%d", i, entry.BestScore, entry.Stars, entry.Crowns, entry.ConsecutivePerfectScores)
		}
	}
}

func TestApplyAttemptFourthPerfectStartsNewStreak(t *testing.T) {
	entry := LedgerEntry{Username: "bob"}
	for i := 0; i < 4; i++ {
		entry = ApplyAttempt(entry, 10, 10)
	}
	if entry.Crowns != 1 || entry.ConsecutivePerfectScores != 1 || entry.Stars != 4 {
		t.Fatalf("expected 1 crown, streak 1, 4 stars; got %+v", entry)
	}
}

func TestApplyAttemptNonPerfectBreaksStreak(t *testing.T) {
	entry := LedgerEntry{Username: "carol", Stars: 7, Crowns: 2, ConsecutivePerfectScores: 2, BestScore: 10}
	entry = ApplyAttempt(entry, 9, 10)
	if entry.ConsecutivePerfectScores != 0 {
		t.Fatalf("expected streak reset, got %d", entry.ConsecutivePerfectScores)
	}
	if entry.Stars != 7 || entry.Crowns != 2 || entry.BestScore != 10 {
		t.Fatalf("counters must not change on a non-perfect attempt: %+v", entry)
	}
}

func TestApplyAttemptBestScoreIsRunningMax(t *testing.T) {
	entry := LedgerEntry{Username: "dave"}
	best := 0
	for _, score := range []int{3, 7, 2, 7, 0, 9, 4} {
		entry = ApplyAttempt(entry, score, 10)
		if score > best {
			best = score
		}
		if entry.BestScore != best {
			t.Fatalf("after score %d: best=%d want %d", score, entry.BestScore, best)
		}
	}
}

func TestApplyAttemptZeroScoreOfZeroIsNotPossible(t *testing.T) {
	if err := ValidateAttempt(0, 0); err != ErrInvalidAnswerData {
		t.Fatalf("expected ErrInvalidAnswerData, got %v", err)
	}
	if err := ValidateAttempt(11, 10); err != ErrInvalidAnswerData {
		t.Fatalf("expected ErrInvalidAnswerData, got %v", err)
	}
	if err := ValidateAttempt(-1, 10); err != ErrInvalidAnswerData {
		t.Fatalf("expected ErrInvalidAnswerData, got %v", err)
	}
	if err := ValidateAttempt(10, 10); err != nil {
		t.Fatalf("expected valid attempt, got %v", err)
	}
}

func TestResetKeepsIdentity(t *testing.T) {
	entry := LedgerEntry{Username: "Eve", BestScore: 8, Stars: 3, Crowns: 1, ConsecutivePerfectScores: 2, Attempts: []Attempt{{Score: 8}}}
	reset := entry.Reset()
	if reset.Username != "Eve" {
		t.Fatalf("username changed: %q", reset.Username)
	}
	if reset.BestScore != 0 || reset.Stars != 0 || reset.Crowns != 0 || reset.ConsecutivePerfectScores != 0 || len(reset.Attempts) != 0 {
		t.Fatalf("expected zeroed entry, got %+v", reset)
	}
}
