package domain

import "errors"

var (
	// ErrEmptyPool is returned when question selection runs against a class
	// with no questions at all. Fatal to selection; the teacher must see it.
	ErrEmptyPool = errors.New("question pool is empty")
	// ErrAlreadyMutated is returned when Hydrate is called after a local Set.
	ErrAlreadyMutated = errors.New("assignment store already mutated locally")
	// ErrClassNotFound indicates the roster for a class could not be loaded.
	ErrClassNotFound = errors.New("class not found")
	// ErrQuestionNotFound indicates a question id is unknown to the bank.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrPersistFailed is terminal: the upsert was retried and still failed.
	// The optimistic local value is kept regardless.
	ErrPersistFailed = errors.New("attendance upsert failed after retries")
)
