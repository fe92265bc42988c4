package store

import "errors"

var (
	ErrUploadSetFull     = errors.New("max images reached")
	ErrNoImages          = errors.New("no images uploaded")
	ErrImageNotFound     = errors.New("image not found")
	ErrNoCompletedRun    = errors.New("no completed extraction for this session")
	ErrOperationInFlight = errors.New("operation already in progress")
	ErrArtifactPresent   = errors.New("artifact already generated for this run")
	ErrUnknownQuestion   = errors.New("question is not part of the active batch")
	ErrInvalidOption     = errors.New("option must be one of A, B, C, D")
	ErrExamNotAtEnd      = errors.New("exam can only be finished from the last question")
	ErrBatchOutOfRange   = errors.New("batch index out of range")
	ErrInvalidTab        = errors.New("unknown tab")
	ErrInvalidLanguage   = errors.New("language must be BN or EN")
	ErrSessionNotFound   = errors.New("session not found")
)
