package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientQuestions is returned when a session is started with fewer than QuestionsPerSession questions.
	ErrInsufficientQuestions = errors.New("at least 10 questions are required")
	// ErrInvalidQuestion indicates a question failed the shape check.
	ErrInvalidQuestion = errors.New("invalid question")
	// ErrInvalidAnswerData is returned for malformed score/totalQuestions input.
	ErrInvalidAnswerData = errors.New("invalid attempt data")
	// ErrInvalidUsername is returned when a username is empty after trimming.
	ErrInvalidUsername = errors.New("username is required")
	// ErrUserNotFound is returned when a ledger entry does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrStorageFailure marks any failure of the ledger store to complete a read or write.
	ErrStorageFailure = errors.New("storage failure")
	// ErrSessionNotFound is returned when a quiz session is unknown or already discarded.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionNotFinished is returned when completing a session that is still running.
	ErrSessionNotFinished = errors.New("quiz session not finished")
	// ErrAttemptAlreadyRecorded is returned when a finished session was already recorded.
	ErrAttemptAlreadyRecorded = errors.New("attempt already recorded")
	// ErrOptionNotFound indicates a submitted choice is not one of the question's options.
	ErrOptionNotFound = errors.New("option not found")
	// ErrBankNotFound indicates the question bank could not be loaded.
	ErrBankNotFound = errors.New("question bank not found")
)

// StorageError wraps a driver error raised by a ledger store operation.
// It matches ErrStorageFailure under errors.Is.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageFailure
}

// NewStorageError wraps err unless it is nil or already a domain sentinel.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrStorageFailure) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
