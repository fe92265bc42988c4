package store

import (
	"strings"
	"sync"
	"time"

	"studykit-be/internal/entity"
)

// ArtifactStore is the single source of truth for one session. Every
// run-scoped transition carries the run id it was dispatched for and is
// dropped when that run is no longer current, so a completion from a
// superseded run can never overwrite newer state. Each transition replaces
// or appends a whole artifact under one lock.
type ArtifactStore struct {
	id      string
	mu      sync.RWMutex
	s       Session
	uploads *UploadSet
	epoch   uint64
}

func NewArtifactStore(id string, maxImages int) *ArtifactStore {
	a := &ArtifactStore{id: id, uploads: NewUploadSet(maxImages)}
	a.s = freshSession(id)
	return a
}

func freshSession(id string) Session {
	return Session{
		ID:          id,
		Language:    entity.LanguageEN,
		ActiveTab:   entity.TabNote,
		UserAnswers: map[string]entity.Option{},
		UpdatedAt:   time.Now(),
	}
}

func (a *ArtifactStore) ID() string {
	return a.id
}

func (a *ArtifactStore) Snapshot() Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c := a.s.clone()
	c.Uploads = a.uploads.Items()
	return c
}

func (a *ArtifactStore) touch() { a.s.UpdatedAt = time.Now() }

// --- uploads ---

func (a *ArtifactStore) AddImages(images ...entity.ImagePayload) (AddResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, err := a.uploads.Add(images...)
	a.touch()
	return res, err
}

func (a *ArtifactStore) RemoveImage(id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.uploads.Remove(id); err != nil {
		return err
	}
	a.touch()
	return nil
}

func (a *ArtifactStore) Images() []entity.ImagePayload {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.uploads.Items()
}

// --- run lifecycle ---

// BeginRun clears every derivable artifact and marks the five run stages
// pending under a new run id. A clarification in flight is not run-scoped
// and keeps its flag.
func (a *ArtifactStore) BeginRun(runID string, lang entity.Language) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.uploads.Len() == 0 {
		return ErrNoImages
	}
	a.clearArtifacts()
	a.s.RunID = runID
	a.s.Language = lang
	a.s.RunLanguage = lang
	a.s.Loading = LoadingFlags{
		Extraction:    true,
		Note:          true,
		Summary:       true,
		Practice:      true,
		Flashcards:    true,
		Clarification: a.s.Loading.Clarification,
	}
	a.touch()
	return nil
}

func (a *ArtifactStore) clearArtifacts() {
	a.s.Extraction = nil
	a.s.MasterNote = nil
	a.s.Summary = nil
	a.s.Batches = nil
	a.s.Flashcards = nil
	a.s.Error = nil
	a.s.Notice = nil
	a.resetExam(0)
}

func (a *ArtifactStore) resetExam(active int) {
	a.s.ActiveBatch = active
	a.s.CurrentQuestionIndex = 0
	a.s.UserAnswers = map[string]entity.Option{}
	a.s.ExamFinished = false
}

func (a *ArtifactStore) current(runID string) bool {
	return runID != "" && a.s.RunID == runID
}

func (a *ArtifactStore) IsCurrent(runID string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.current(runID)
}

// CurrentRun returns the context of the latest run whose extraction succeeded.
func (a *ArtifactStore) CurrentRun() (RunContext, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.s.Extraction == nil {
		return RunContext{}, ErrNoCompletedRun
	}
	return RunContext{RunID: a.s.RunID, Language: a.s.RunLanguage, Extraction: *a.s.Extraction}, nil
}

func (a *ArtifactStore) SetExtraction(runID string, res entity.ExtractionResult) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return false
	}
	a.s.Extraction = &res
	a.s.Loading.Extraction = false
	a.touch()
	return true
}

// FailRun aborts a run after a fatal extraction failure.
func (a *ArtifactStore) FailRun(runID, message string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return false
	}
	a.clearArtifacts()
	a.s.Loading.Extraction = false
	for _, k := range Derivations {
		a.s.Loading.Set(k, false)
	}
	a.s.Error = &message
	a.touch()
	return true
}

func (a *ArtifactStore) SetNote(runID string, note entity.MasterNote) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return false
	}
	a.s.MasterNote = &note
	a.s.Loading.Note = false
	a.touch()
	return true
}

func (a *ArtifactStore) SetSummary(runID, summary string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return false
	}
	a.s.Summary = &summary
	a.s.Loading.Summary = false
	a.touch()
	return true
}

func (a *ArtifactStore) SetBatches(runID string, batches []entity.MCQBatch) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return false
	}
	a.s.Batches = append([]entity.MCQBatch(nil), batches...)
	a.s.Loading.Practice = false
	a.resetExam(0)
	a.touch()
	return true
}

func (a *ArtifactStore) SetFlashcards(runID string, cards []entity.Flashcard) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return false
	}
	a.s.Flashcards = append([]entity.Flashcard(nil), cards...)
	a.s.Loading.Flashcards = false
	a.touch()
	return true
}

// SettleFailure clears the loading flag of a failed derivation and leaves
// its artifact untouched.
func (a *ArtifactStore) SettleFailure(runID string, kind ArtifactKind) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return false
	}
	a.s.Loading.Set(kind, false)
	a.touch()
	return true
}

// BeginRetry marks a missing derivation of the current run pending again.
func (a *ArtifactStore) BeginRetry(kind ArtifactKind) (RunContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s.Extraction == nil {
		return RunContext{}, ErrNoCompletedRun
	}
	if a.s.Loading.Get(kind) || (kind == KindPractice && a.s.Loading.BatchExtension) {
		return RunContext{}, ErrOperationInFlight
	}
	if a.hasArtifact(kind) {
		return RunContext{}, ErrArtifactPresent
	}
	a.s.Loading.Set(kind, true)
	a.touch()
	return RunContext{RunID: a.s.RunID, Language: a.s.RunLanguage, Extraction: *a.s.Extraction}, nil
}

func (a *ArtifactStore) hasArtifact(kind ArtifactKind) bool {
	switch kind {
	case KindNote:
		return a.s.MasterNote != nil
	case KindSummary:
		return a.s.Summary != nil
	case KindPractice:
		return len(a.s.Batches) > 0
	case KindFlashcards:
		return a.s.Flashcards != nil
	}
	return false
}

// --- extensions and clarification ---

// BeginOperation raises the flag of an extension or clarification. Extensions
// need a completed extraction; clarification does not.
func (a *ArtifactStore) BeginOperation(kind ArtifactKind) (RunContext, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.s.Loading.Get(kind) {
		return RunContext{}, ErrOperationInFlight
	}
	rc := RunContext{RunID: a.s.RunID, Epoch: a.epoch, Language: a.s.RunLanguage}
	if kind != KindClarification {
		if a.s.Extraction == nil {
			return RunContext{}, ErrNoCompletedRun
		}
		if kind == KindBonusExtension && a.s.MasterNote == nil {
			return RunContext{}, ErrNoCompletedRun
		}
		if kind == KindBatchExtension && a.s.Loading.Practice {
			return RunContext{}, ErrOperationInFlight
		}
		rc.Extraction = *a.s.Extraction
	}
	a.s.Loading.Set(kind, true)
	if a.s.Notice != nil && a.s.Notice.Operation == kind {
		a.s.Notice = nil
	}
	a.touch()
	return rc, nil
}

// SettleOperation clears an extension or clarification flag and records n
// as the transient notice when non-nil. Settles from before a Reset are
// dropped; extension settles must also belong to the current run.
func (a *ArtifactStore) SettleOperation(runID string, epoch uint64, kind ArtifactKind, n *Notice) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if epoch != a.epoch {
		return false
	}
	if kind != KindClarification && !a.current(runID) {
		return false
	}
	a.s.Loading.Set(kind, false)
	if n != nil {
		a.s.Notice = n
	}
	a.touch()
	return true
}

// AppendBonus grows layer3 without touching its existing content.
func (a *ArtifactStore) AppendBonus(runID, text string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) || a.s.MasterNote == nil {
		return false
	}
	note := *a.s.MasterNote
	if note.Layer3 == "" {
		note.Layer3 = text
	} else {
		note.Layer3 = note.Layer3 + "\n\n" + text
	}
	a.s.MasterNote = &note
	a.s.Loading.BonusExtension = false
	a.touch()
	return true
}

// AppendBatch numbers the batch previousCount+1, appends it and makes it the
// batch being taken.
func (a *ArtifactStore) AppendBatch(runID string, batch entity.MCQBatch) (int, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.current(runID) {
		return 0, false
	}
	batch.BatchNumber = len(a.s.Batches) + 1
	a.s.Batches = append(a.s.Batches, batch)
	a.resetExam(len(a.s.Batches) - 1)
	a.s.ActiveTab = entity.TabPractice
	a.s.Loading.BatchExtension = false
	a.touch()
	return batch.BatchNumber, true
}

// Reset discards every artifact, flag, upload and the current run together.
func (a *ArtifactStore) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	lang := a.s.Language
	a.s = freshSession(a.id)
	a.s.Language = lang
	a.uploads.Clear()
	a.epoch++
}

// --- interaction ---

func (a *ArtifactStore) SetLanguage(lang entity.Language) error {
	if !lang.Valid() {
		return ErrInvalidLanguage
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.Language = lang
	a.touch()
	return nil
}

func (a *ArtifactStore) SetActiveTab(tab entity.Tab) error {
	if !tab.Valid() {
		return ErrInvalidTab
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.ActiveTab = tab
	a.touch()
	return nil
}

func (a *ArtifactStore) DismissNotice() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.s.Notice = nil
	a.touch()
}

// SelectBatch switches the batch being taken; answers are scoped to it.
func (a *ArtifactStore) SelectBatch(index int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if index < 0 || index >= len(a.s.Batches) {
		return ErrBatchOutOfRange
	}
	if index != a.s.ActiveBatch {
		a.resetExam(index)
	}
	a.touch()
	return nil
}

// RecordAnswer stores the first answer given to a question of the active
// batch. It reports false when an answer was already recorded.
func (a *ArtifactStore) RecordAnswer(questionID string, opt entity.Option) (bool, error) {
	if _, ok := entity.ParseOption(string(opt)); !ok {
		return false, ErrInvalidOption
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	found := false
	for _, q := range a.s.activeQuestions() {
		if q.Id == questionID {
			found = true
			break
		}
	}
	if !found {
		return false, ErrUnknownQuestion
	}
	if _, done := a.s.UserAnswers[questionID]; done {
		return false, nil
	}
	a.s.UserAnswers[questionID] = opt
	a.touch()
	return true, nil
}

// AdvanceQuestion moves the cursor by direction, clamped to the active batch.
func (a *ArtifactStore) AdvanceQuestion(direction int) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	qs := a.s.activeQuestions()
	if len(qs) == 0 {
		return 0, ErrBatchOutOfRange
	}
	idx := a.s.CurrentQuestionIndex
	switch {
	case direction > 0:
		idx++
	case direction < 0:
		idx--
	}
	if idx < 0 {
		idx = 0
	}
	if idx > len(qs)-1 {
		idx = len(qs) - 1
	}
	a.s.CurrentQuestionIndex = idx
	a.touch()
	return idx, nil
}

func (a *ArtifactStore) FinishExam() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	qs := a.s.activeQuestions()
	if len(qs) == 0 {
		return ErrBatchOutOfRange
	}
	if a.s.CurrentQuestionIndex != len(qs)-1 {
		return ErrExamNotAtEnd
	}
	a.s.ExamFinished = true
	a.touch()
	return nil
}

// Export returns the read-only kit consumed by offline renderers.
func (a *ArtifactStore) Export() (entity.ExportKit, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.s.Extraction == nil {
		return entity.ExportKit{}, ErrNoCompletedRun
	}
	c := a.s.clone()
	kit := entity.ExportKit{
		Subject:    c.Extraction.Subject,
		Language:   c.RunLanguage,
		MasterNote: c.MasterNote,
		Summary:    c.Summary,
		BatchCount: len(c.Batches),
	}
	for _, b := range c.Batches {
		kit.AllQuestions = append(kit.AllQuestions, b.Questions...)
	}
	return kit, nil
}

// QuestionTexts lists every generated question, oldest batch first.
func (a *ArtifactStore) QuestionTexts() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []string
	for _, b := range a.s.Batches {
		for _, q := range b.Questions {
			if t := strings.TrimSpace(q.QuestionText); t != "" {
				out = append(out, t)
			}
		}
	}
	return out
}
