package dto

import (
	"studykit-be/internal/entity"
	"studykit-be/pkg/store"
)

type CreateSessionResponse struct {
	Id        string `json:"id"`
	MaxImages int    `json:"max_images"`
}

// ImageFile is one uploaded file as read from a multipart form.
type ImageFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type UploadImagesResponse struct {
	store.AddResult
	Images []entity.ImagePayload `json:"images"`
}

type StartRunRequest struct {
	Language string `json:"language" validate:"required,oneof=BN EN bn en"`
}

type StartRunResponse struct {
	RunId   string        `json:"run_id"`
	Session store.Session `json:"session"`
}

type RetryArtifactResponse struct {
	Artifact string `json:"artifact"`
	RunId    string `json:"run_id"`
}

// ExtendBatchResponse has a zero BatchNumber and a Notice when no new
// questions could be produced.
type ExtendBatchResponse struct {
	BatchNumber int           `json:"batch_number"`
	Notice      *store.Notice `json:"notice,omitempty"`
}

// ExtensionResponse carries the session after an extension; Notice is set
// when the extension produced nothing new.
type ExtensionResponse struct {
	Session store.Session `json:"session"`
	Notice  *store.Notice `json:"notice,omitempty"`
}

type SelectBatchRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
}

type ClarifyRequest struct {
	Span     string `json:"span" validate:"required,max=500"`
	Context  string `json:"context" validate:"max=8000"`
	Language string `json:"language" validate:"required,oneof=BN EN bn en"`
}

type RecordAnswerRequest struct {
	QuestionId string `json:"question_id" validate:"required"`
	Option     string `json:"option" validate:"required,oneof=A B C D a b c d"`
}

type RecordAnswerResponse struct {
	Recorded bool        `json:"recorded"`
	Correct  bool        `json:"correct"`
	Score    store.Score `json:"score"`
}

type NavigateRequest struct {
	Direction int `json:"direction" validate:"required,oneof=-1 1"`
}

type NavigateResponse struct {
	CurrentQuestionIndex int `json:"current_question_index"`
}

type UpdateViewRequest struct {
	Tab      *string `json:"tab" validate:"omitempty,oneof=note summary practice flashcards text"`
	Language *string `json:"language" validate:"omitempty,oneof=BN EN bn en"`
}
