package pipeline

import "errors"

var (
	ErrNotRetriable  = errors.New("only note, summary, practice and flashcards can be retried")
	ErrRunSuperseded = errors.New("run was superseded before the result could be applied")
	ErrEmptySpan     = errors.New("nothing selected to clarify")
)
