package store

import (
	"strings"
	"testing"

	"studykit-be/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func batch(ids ...string) entity.MCQBatch {
	b := entity.MCQBatch{}
	for _, id := range ids {
		b.Questions = append(b.Questions, entity.MCQQuestion{
			Id:            id,
			QuestionText:  "question " + id,
			CorrectAnswer: entity.OptionA,
		})
	}
	return b
}

// startedRun returns a store whose run "run" has a completed extraction.
func startedRun(t *testing.T) *ArtifactStore {
	t.Helper()
	a := NewArtifactStore("s", DefaultMaxImages)
	_, err := a.AddImages(images(t, "p", 1)...)
	require.NoError(t, err)
	require.NoError(t, a.BeginRun("run", entity.LanguageBN))
	require.True(t, a.SetExtraction("run", entity.ExtractionResult{Text: "text", Subject: entity.SubjectGK}))
	return a
}

func TestArtifactStore_UploadScenario(t *testing.T) {
	a := NewArtifactStore("s", DefaultMaxImages)
	res, err := a.AddImages(images(t, "a", 5)...)
	require.NoError(t, err)
	assert.True(t, res.MaxReached)

	res, err = a.AddImages(images(t, "b", 1)...)
	assert.ErrorIs(t, err, ErrUploadSetFull)
	assert.True(t, res.MaxReached)
	assert.Len(t, a.Snapshot().Uploads, 5)
}

func TestArtifactStore_BeginRun(t *testing.T) {
	a := NewArtifactStore("s", DefaultMaxImages)
	assert.ErrorIs(t, a.BeginRun("run", entity.LanguageEN), ErrNoImages)

	a = startedRun(t)
	snap := a.Snapshot()
	assert.False(t, snap.Loading.Extraction)
	assert.True(t, snap.Loading.Note)
	assert.True(t, snap.Loading.Summary)
	assert.True(t, snap.Loading.Practice)
	assert.True(t, snap.Loading.Flashcards)
	assert.Equal(t, entity.LanguageBN, snap.RunLanguage)
}

func TestArtifactStore_StaleSettersAreIgnored(t *testing.T) {
	a := startedRun(t)
	require.NoError(t, a.BeginRun("newer", entity.LanguageEN))

	assert.False(t, a.SetNote("run", entity.MasterNote{Layer1: "x"}))
	assert.False(t, a.SetSummary("run", "x"))
	assert.False(t, a.SetBatches("run", []entity.MCQBatch{batch("q")}))
	assert.False(t, a.SetFlashcards("run", []entity.Flashcard{{Id: "f"}}))
	assert.False(t, a.SettleFailure("run", KindNote))
	assert.False(t, a.FailRun("run", "boom"))
	assert.False(t, a.SetNote("", entity.MasterNote{}))

	snap := a.Snapshot()
	assert.Nil(t, snap.MasterNote)
	assert.Nil(t, snap.Error)
	assert.True(t, snap.Loading.Extraction)
	assert.True(t, snap.Loading.Note)
}

func TestArtifactStore_FailRun(t *testing.T) {
	a := NewArtifactStore("s", DefaultMaxImages)
	_, _ = a.AddImages(images(t, "p", 1)...)
	require.NoError(t, a.BeginRun("run", entity.LanguageEN))

	require.True(t, a.FailRun("run", "could not read the pages"))
	snap := a.Snapshot()
	require.NotNil(t, snap.Error)
	assert.Equal(t, "could not read the pages", *snap.Error)
	assert.False(t, snap.Loading.Any())

	// a new run clears the error
	require.NoError(t, a.BeginRun("again", entity.LanguageEN))
	assert.Nil(t, a.Snapshot().Error)
}

func TestArtifactStore_AppendBonus(t *testing.T) {
	tests := []struct {
		name     string
		existing string
		bonus    string
		want     string
	}{
		{"appends after blank line", "L", "B", "L\n\nB"},
		{"empty layer takes bonus", "", "B", "B"},
		{"keeps multi-line prefix", "one\ntwo", "three", "one\ntwo\n\nthree"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := startedRun(t)
			require.True(t, a.SetNote("run", entity.MasterNote{Layer1: "1", Layer3: tt.existing}))
			_, err := a.BeginOperation(KindBonusExtension)
			require.NoError(t, err)

			require.True(t, a.AppendBonus("run", tt.bonus))
			snap := a.Snapshot()
			assert.Equal(t, tt.want, snap.MasterNote.Layer3)
			assert.True(t, strings.HasPrefix(snap.MasterNote.Layer3, tt.existing))
			assert.Equal(t, "1", snap.MasterNote.Layer1)
			assert.False(t, snap.Loading.BonusExtension)
		})
	}
}

func TestArtifactStore_AppendBatchNumbering(t *testing.T) {
	a := startedRun(t)
	require.True(t, a.SetBatches("run", []entity.MCQBatch{{BatchNumber: 1, Questions: batch("a").Questions}}))

	for want := 2; want <= 4; want++ {
		n, ok := a.AppendBatch("run", batch("q"))
		require.True(t, ok)
		assert.Equal(t, want, n)
	}
	_, ok := a.AppendBatch("old-run", batch("z"))
	assert.False(t, ok)

	snap := a.Snapshot()
	require.Len(t, snap.Batches, 4)
	for i, b := range snap.Batches {
		assert.Equal(t, i+1, b.BatchNumber)
	}
	assert.Equal(t, 3, snap.ActiveBatch)
}

func TestArtifactStore_RecordAnswerOnce(t *testing.T) {
	a := startedRun(t)
	require.True(t, a.SetBatches("run", []entity.MCQBatch{batch("q1", "q2")}))

	ok, err := a.RecordAnswer("q1", entity.OptionA)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = a.RecordAnswer("q1", entity.OptionC)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, entity.OptionA, a.Snapshot().UserAnswers["q1"])

	_, err = a.RecordAnswer("nope", entity.OptionA)
	assert.ErrorIs(t, err, ErrUnknownQuestion)
	_, err = a.RecordAnswer("q2", entity.Option("E"))
	assert.ErrorIs(t, err, ErrInvalidOption)

	assert.Equal(t, Score{Answered: 1, Correct: 1, Total: 2}, a.Snapshot().Score)
}

func TestArtifactStore_ExamProgression(t *testing.T) {
	a := startedRun(t)
	require.True(t, a.SetBatches("run", []entity.MCQBatch{batch("q1", "q2", "q3")}))

	idx, err := a.AdvanceQuestion(-1)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	assert.ErrorIs(t, a.FinishExam(), ErrExamNotAtEnd)

	for i := 0; i < 5; i++ {
		idx, err = a.AdvanceQuestion(1)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, idx)

	require.NoError(t, a.FinishExam())
	assert.True(t, a.Snapshot().ExamFinished)
}

func TestArtifactStore_SelectBatchResetsExam(t *testing.T) {
	a := startedRun(t)
	require.True(t, a.SetBatches("run", []entity.MCQBatch{batch("q1", "q2")}))
	_, ok := a.AppendBatch("run", batch("r1"))
	require.True(t, ok)
	_, err := a.RecordAnswer("r1", entity.OptionB)
	require.NoError(t, err)

	require.NoError(t, a.SelectBatch(1))
	assert.Len(t, a.Snapshot().UserAnswers, 1, "selecting the active batch keeps answers")

	require.NoError(t, a.SelectBatch(0))
	snap := a.Snapshot()
	assert.Equal(t, 0, snap.ActiveBatch)
	assert.Empty(t, snap.UserAnswers)
	assert.False(t, snap.ExamFinished)
	assert.ErrorIs(t, a.SelectBatch(2), ErrBatchOutOfRange)
}

func TestArtifactStore_BeginRetry(t *testing.T) {
	a := NewArtifactStore("s", DefaultMaxImages)
	_, err := a.BeginRetry(KindNote)
	assert.ErrorIs(t, err, ErrNoCompletedRun)

	a = startedRun(t)
	_, err = a.BeginRetry(KindNote)
	assert.ErrorIs(t, err, ErrOperationInFlight)

	require.True(t, a.SettleFailure("run", KindNote))
	rc, err := a.BeginRetry(KindNote)
	require.NoError(t, err)
	assert.Equal(t, "run", rc.RunID)
	assert.Equal(t, entity.LanguageBN, rc.Language)
	assert.Equal(t, "text", rc.Extraction.Text)

	require.True(t, a.SetNote("run", entity.MasterNote{Layer1: "x"}))
	_, err = a.BeginRetry(KindNote)
	assert.ErrorIs(t, err, ErrArtifactPresent)
}

func TestArtifactStore_BeginOperation(t *testing.T) {
	a := NewArtifactStore("s", DefaultMaxImages)
	_, err := a.BeginOperation(KindBatchExtension)
	assert.ErrorIs(t, err, ErrNoCompletedRun)
	_, err = a.BeginOperation(KindClarification)
	require.NoError(t, err)
	_, err = a.BeginOperation(KindClarification)
	assert.ErrorIs(t, err, ErrOperationInFlight)

	a = startedRun(t)
	_, err = a.BeginOperation(KindBatchExtension)
	assert.ErrorIs(t, err, ErrOperationInFlight, "first batch still pending")

	require.True(t, a.SetBatches("run", []entity.MCQBatch{batch("q")}))
	rc, err := a.BeginOperation(KindBatchExtension)
	require.NoError(t, err)
	require.True(t, a.SettleOperation(rc.RunID, rc.Epoch, KindBatchExtension, &Notice{Operation: KindBatchExtension, Kind: "EMPTY_RESULT"}))
	require.NotNil(t, a.Snapshot().Notice)

	_, err = a.BeginOperation(KindBatchExtension)
	require.NoError(t, err)
	assert.Nil(t, a.Snapshot().Notice)
}

func TestArtifactStore_ClarificationAcrossReset(t *testing.T) {
	a := startedRun(t)
	rc, err := a.BeginOperation(KindClarification)
	require.NoError(t, err)

	a.Reset()
	settled := a.SettleOperation(rc.RunID, rc.Epoch, KindClarification, &Notice{Operation: KindClarification, Kind: "TRANSPORT_FAILURE"})
	assert.False(t, settled, "a clarification started before Reset must not settle after it")

	snap := a.Snapshot()
	assert.Nil(t, snap.Notice)
	assert.False(t, snap.Loading.Clarification)
}

func TestArtifactStore_ClarificationAcrossNewRun(t *testing.T) {
	a := startedRun(t)
	rc, err := a.BeginOperation(KindClarification)
	require.NoError(t, err)

	require.NoError(t, a.BeginRun("run-2", entity.LanguageEN))
	assert.True(t, a.Snapshot().Loading.Clarification, "a new run keeps an in-flight clarification")
	_, err = a.BeginOperation(KindClarification)
	assert.ErrorIs(t, err, ErrOperationInFlight)

	require.True(t, a.SettleOperation(rc.RunID, rc.Epoch, KindClarification, nil))
	assert.False(t, a.Snapshot().Loading.Clarification)
	_, err = a.BeginOperation(KindClarification)
	assert.NoError(t, err)
}

func TestArtifactStore_ViewContext(t *testing.T) {
	a := startedRun(t)
	assert.ErrorIs(t, a.SetActiveTab(entity.Tab("nope")), ErrInvalidTab)
	require.NoError(t, a.SetActiveTab(entity.TabFlashcards))
	assert.ErrorIs(t, a.SetLanguage(entity.Language("FR")), ErrInvalidLanguage)
	require.NoError(t, a.SetLanguage(entity.LanguageEN))

	snap := a.Snapshot()
	assert.Equal(t, entity.TabFlashcards, snap.ActiveTab)
	assert.Equal(t, entity.LanguageEN, snap.Language)
	assert.Equal(t, entity.LanguageBN, snap.RunLanguage)

	rc, err := a.CurrentRun()
	require.NoError(t, err)
	assert.Equal(t, entity.LanguageBN, rc.Language)
}

func TestArtifactStore_ResetAndExport(t *testing.T) {
	a := startedRun(t)
	require.True(t, a.SetSummary("run", "sum"))
	require.True(t, a.SetBatches("run", []entity.MCQBatch{batch("q1")}))
	_, ok := a.AppendBatch("run", batch("q2", "q3"))
	require.True(t, ok)

	kit, err := a.Export()
	require.NoError(t, err)
	assert.Equal(t, entity.SubjectGK, kit.Subject)
	assert.Equal(t, 2, kit.BatchCount)
	assert.Len(t, kit.AllQuestions, 3)
	assert.Equal(t, "sum", *kit.Summary)
	assert.Equal(t, []string{"question q1", "question q2", "question q3"}, a.QuestionTexts())

	a.Reset()
	snap := a.Snapshot()
	assert.Equal(t, "s", snap.ID)
	assert.Empty(t, snap.RunID)
	assert.Empty(t, snap.Uploads)
	assert.Nil(t, snap.Extraction)
	assert.Empty(t, snap.Batches)
	assert.False(t, snap.Loading.Any())
	assert.False(t, a.SetSummary("run", "late"))

	_, err = a.Export()
	assert.ErrorIs(t, err, ErrNoCompletedRun)
}
