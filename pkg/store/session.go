package store

import (
	"time"

	"studykit-be/internal/entity"
)

// ArtifactKind names one in-flight operation that owns a loading flag.
type ArtifactKind string

const (
	KindExtraction     ArtifactKind = "extraction"
	KindNote           ArtifactKind = "note"
	KindSummary        ArtifactKind = "summary"
	KindPractice       ArtifactKind = "practice"
	KindFlashcards     ArtifactKind = "flashcards"
	KindClarification  ArtifactKind = "clarification"
	KindBonusExtension ArtifactKind = "bonus_extension"
	KindBatchExtension ArtifactKind = "batch_extension"
)

// Derivations are the four calls fanned out after extraction.
var Derivations = []ArtifactKind{KindNote, KindSummary, KindPractice, KindFlashcards}

func (k ArtifactKind) IsDerivation() bool {
	for _, d := range Derivations {
		if d == k {
			return true
		}
	}
	return false
}

type LoadingFlags struct {
	Extraction     bool `json:"extraction"`
	Note           bool `json:"note"`
	Summary        bool `json:"summary"`
	Practice       bool `json:"practice"`
	Flashcards     bool `json:"flashcards"`
	Clarification  bool `json:"clarification"`
	BonusExtension bool `json:"bonus_extension"`
	BatchExtension bool `json:"batch_extension"`
}

func (f *LoadingFlags) flag(k ArtifactKind) *bool {
	switch k {
	case KindExtraction:
		return &f.Extraction
	case KindNote:
		return &f.Note
	case KindSummary:
		return &f.Summary
	case KindPractice:
		return &f.Practice
	case KindFlashcards:
		return &f.Flashcards
	case KindClarification:
		return &f.Clarification
	case KindBonusExtension:
		return &f.BonusExtension
	case KindBatchExtension:
		return &f.BatchExtension
	}
	return nil
}

// Get reports the flag for k; unknown kinds read as false.
func (f LoadingFlags) Get(k ArtifactKind) bool {
	if p := f.flag(k); p != nil {
		return *p
	}
	return false
}

func (f *LoadingFlags) Set(k ArtifactKind, v bool) {
	if p := f.flag(k); p != nil {
		*p = v
	}
}

// Pipeline reports whether any run-stage flag is still pending.
func (f LoadingFlags) Pipeline() bool {
	return f.Extraction || f.Note || f.Summary || f.Practice || f.Flashcards
}

func (f LoadingFlags) Any() bool {
	return f.Pipeline() || f.Clarification || f.BonusExtension || f.BatchExtension
}

// Notice is a dismissable, non-fatal message about an extension or clarification.
type Notice struct {
	Operation ArtifactKind `json:"operation"`
	Kind      string       `json:"kind"`
	Message   string       `json:"message"`
}

type Score struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
	Total    int `json:"total"`
}

// Session is the state of one study session. Values handed out by
// ArtifactStore.Snapshot are copies and safe to read without locking.
type Session struct {
	ID    string `json:"id"`
	RunID string `json:"run_id"`

	// RunLanguage is fixed when a run starts; Language is the view language
	// and may change at any time.
	Language    entity.Language `json:"language"`
	RunLanguage entity.Language `json:"run_language,omitempty"`
	ActiveTab   entity.Tab      `json:"active_tab"`

	Uploads []entity.ImagePayload `json:"uploads"`

	Extraction *entity.ExtractionResult `json:"extraction"`
	MasterNote *entity.MasterNote       `json:"master_note"`
	Summary    *string                  `json:"summary"`
	Batches    []entity.MCQBatch        `json:"batches"`
	Flashcards []entity.Flashcard       `json:"flashcards"`

	ActiveBatch          int                      `json:"active_batch"`
	CurrentQuestionIndex int                      `json:"current_question_index"`
	UserAnswers          map[string]entity.Option `json:"user_answers"`
	ExamFinished         bool                     `json:"exam_finished"`
	Score                Score                    `json:"score"`

	Loading LoadingFlags `json:"loading"`
	Error   *string      `json:"error"`
	Notice  *Notice      `json:"notice"`

	UpdatedAt time.Time `json:"updated_at"`
}

// RunContext is the language and extraction captured when a run began.
type RunContext struct {
	RunID      string
	Epoch      uint64 // store generation at start; Reset bumps it
	Language   entity.Language
	Extraction entity.ExtractionResult
}

func (s *Session) activeQuestions() []entity.MCQQuestion {
	if s.ActiveBatch < 0 || s.ActiveBatch >= len(s.Batches) {
		return nil
	}
	return s.Batches[s.ActiveBatch].Questions
}

func (s *Session) clone() Session {
	c := *s
	c.Uploads = append([]entity.ImagePayload(nil), s.Uploads...)
	if s.Extraction != nil {
		x := *s.Extraction
		c.Extraction = &x
	}
	if s.MasterNote != nil {
		n := *s.MasterNote
		c.MasterNote = &n
	}
	if s.Summary != nil {
		v := *s.Summary
		c.Summary = &v
	}
	if s.Batches != nil {
		c.Batches = make([]entity.MCQBatch, len(s.Batches))
		for i, b := range s.Batches {
			b.Questions = append([]entity.MCQQuestion(nil), b.Questions...)
			c.Batches[i] = b
		}
	}
	if s.Flashcards != nil {
		c.Flashcards = append([]entity.Flashcard(nil), s.Flashcards...)
	}
	c.UserAnswers = make(map[string]entity.Option, len(s.UserAnswers))
	for k, v := range s.UserAnswers {
		c.UserAnswers[k] = v
	}
	if s.Error != nil {
		e := *s.Error
		c.Error = &e
	}
	if s.Notice != nil {
		n := *s.Notice
		c.Notice = &n
	}
	c.Score = s.score()
	return c
}

func (s *Session) score() Score {
	qs := s.activeQuestions()
	sc := Score{Total: len(qs)}
	for _, q := range qs {
		if a, ok := s.UserAnswers[q.Id]; ok {
			sc.Answered++
			if a == q.CorrectAnswer {
				sc.Correct++
			}
		}
	}
	return sc
}
