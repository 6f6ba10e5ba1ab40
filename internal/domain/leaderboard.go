package domain

import (
	"sort"
	"strings"
)

// SortEntries orders entries by best score descending, then username ascending.
func SortEntries(entries []LedgerEntry) {
	sortEntries(entries, func(a, b LedgerEntry) int {
		return b.BestScore - a.BestScore
	})
}

// SortLeaderboard orders entries by crowns, stars and best score descending,
// then username ascending.
func SortLeaderboard(entries []LedgerEntry) {
	sortEntries(entries, func(a, b LedgerEntry) int {
		if a.Crowns != b.Crowns {
			return b.Crowns - a.Crowns
		}
		if a.Stars != b.Stars {
			return b.Stars - a.Stars
		}
		return b.BestScore - a.BestScore
	})
}

// sortEntries sorts by cmp and breaks ties on the case-folded username.
func sortEntries(entries []LedgerEntry, cmp func(a, b LedgerEntry) int) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := cmp(entries[i], entries[j]); c != 0 {
			return c < 0
		}
		return strings.ToLower(entries[i].Username) < strings.ToLower(entries[j].Username)
	})
}
