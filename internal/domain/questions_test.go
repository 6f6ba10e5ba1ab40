package domain

import (
	"errors"
	"testing"
)

func TestValidateQuestions(t *testing.T) {
	valid := Question{Text: "2 + 2?", Options: []string{"3", "4"}, Answer: "4"}

	tests := []struct {
		name    string
		q       Question
		wantErr bool
	}{
		{"valid", valid, false},
		{"empty text", Question{Text: "  ", Options: []string{"a", "b"}, Answer: "a"}, true},
		{"one option", Question{Text: "q", Options: []string{"a"}, Answer: "a"}, true},
		{"duplicate option", Question{Text: "q", Options: []string{"a", "a"}, Answer: "a"}, true},
		{"empty option", Question{Text: "q", Options: []string{"a", ""}, Answer: "a"}, true},
		{"answer missing", Question{Text: "q", Options: []string{"a", "b"}, Answer: "c"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestions([]Question{valid, tt.q})
			if tt.wantErr && !errors.Is(err, ErrInvalidQuestion) {
				t.Fatalf("expected ErrInvalidQuestion, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestSortOrders(t *testing.T) {
	entries := []LedgerEntry{
		{Username: "carol", BestScore: 8, Stars: 1},
		{Username: "Bob", BestScore: 10, Crowns: 0, Stars: 2},
		{Username: "alice", BestScore: 10, Crowns: 1, Stars: 3},
		{Username: "dave", BestScore: 8, Stars: 5},
	}

	SortEntries(entries)
	want := []string{"alice", "Bob", "carol", "dave"}
	for i, name := range want {
		if entries[i].Username != name {
			t.Fatalf("SortEntries position %d: got %s want %s", i, entries[i].Username, name)
		}
	}

	SortLeaderboard(entries)
	want = []string{"alice", "dave", "Bob", "carol"}
	for i, name := range want {
		if entries[i].Username != name {
			t.Fatalf("SortLeaderboard position %d: got %s want %s", i, entries[i].Username, name)
		}
	}
}

func TestStorageErrorMatchesSentinel(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewStorageError("update user", cause)
	if !errors.Is(err, ErrStorageFailure) {
		t.Fatalf("expected storage failure, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
	if NewStorageError("get", ErrUserNotFound) != ErrUserNotFound {
		t.Fatalf("sentinels must pass through unwrapped")
	}
}
