package domain

// CrownStreak is the number of consecutive perfect sessions that earns a crown.
const CrownStreak = 3

// ValidateAttempt checks the inputs of a reward transaction.
func ValidateAttempt(score, totalQuestions int) error {
	if totalQuestions <= 0 || score < 0 || score > totalQuestions {
		return ErrInvalidAnswerData
	}
	return nil
}

// ApplyAttempt returns the entry that results from recording one session
// score against the current entry. The input is not modified.
func ApplyAttempt(entry LedgerEntry, score, totalQuestions int) LedgerEntry {
	next := entry
	next.Attempts = nil
	if score > next.BestScore {
		next.BestScore = score
	}

	if score == totalQuestions {
		next.Stars++
		next.ConsecutivePerfectScores++
		if next.ConsecutivePerfectScores == CrownStreak {
			next.Crowns++
			next.ConsecutivePerfectScores = 0
		}
	} else {
		next.ConsecutivePerfectScores = 0
	}
	return next
}

// Reset zeroes every reward counter while keeping the identity.
func (e LedgerEntry) Reset() LedgerEntry {
	e.BestScore = 0
	e.Stars = 0
	e.Crowns = 0
	e.ConsecutivePerfectScores = 0
	e.Attempts = nil
	return e
}
