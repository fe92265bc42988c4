package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"studykit-be/internal/entity"
	"studykit-be/pkg/events"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRuns struct {
	mu      sync.Mutex
	settled []store.Session
}

func (r *recordingRuns) RunStarted(context.Context, string, string, int, string) {}
func (r *recordingRuns) RunFailed(context.Context, string, string, string) {}
func (r *recordingRuns) RunSettled(_ context.Context, snap store.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settled = append(r.settled, snap)
}

func newReducerFixture(t *testing.T) (*store.ArtifactStore, *Reducer, *recordingRuns) {
	t.Helper()
	st := store.NewArtifactStore("s", 5)
	img, err := store.NewImagePayload([]byte("img"), "image/png")
	require.NoError(t, err)
	_, err = st.AddImages(img)
	require.NoError(t, err)
	runs := &recordingRuns{}
	r := NewReducer(func(id string) (*store.ArtifactStore, bool) { return st, id == "s" }, runs, nil)
	return st, r, runs
}

func TestReducer_DiscardsStaleRun(t *testing.T) {
	st, r, _ := newReducerFixture(t)
	require.NoError(t, st.BeginRun("run-1", entity.LanguageEN))
	require.True(t, r.Apply(succeeded("s", "run-1", store.KindExtraction, entity.ExtractionResult{Text: "a"})).Applied)
	require.NoError(t, st.BeginRun("run-2", entity.LanguageEN))

	res := r.Apply(succeeded("s", "run-1", store.KindSummary, "stale"))
	assert.False(t, res.Applied)
	snap := st.Snapshot()
	assert.Nil(t, snap.Summary)
	assert.True(t, snap.Loading.Summary)
}

func TestReducer_UnknownSession(t *testing.T) {
	_, r, _ := newReducerFixture(t)
	res := r.Apply(succeeded("other", "run", store.KindSummary, "x"))
	assert.False(t, res.Applied)
}

func TestReducer_UndecodablePayloadSettlesAsFailure(t *testing.T) {
	st, r, _ := newReducerFixture(t)
	require.NoError(t, st.BeginRun("run", entity.LanguageEN))
	require.True(t, r.Apply(succeeded("s", "run", store.KindExtraction, entity.ExtractionResult{Text: "a"})).Applied)

	ev := succeeded("s", "run", store.KindNote, "not a note object")
	res := r.Apply(ev)
	assert.True(t, res.Applied)
	snap := st.Snapshot()
	assert.Nil(t, snap.MasterNote)
	assert.False(t, snap.Loading.Note)
}

func TestReducer_NotifiesAndReportsSettle(t *testing.T) {
	st, r, runs := newReducerFixture(t)

	var seen []string
	r.Subscribe(func(id string, snap store.Session) { seen = append(seen, id) })

	require.NoError(t, st.BeginRun("run", entity.LanguageEN))
	r.Apply(succeeded("s", "run", store.KindExtraction, entity.ExtractionResult{Text: "a", Subject: entity.SubjectGK}))
	r.Apply(succeeded("s", "run", store.KindNote, entity.MasterNote{Layer1: "1"}))
	r.Apply(succeeded("s", "run", store.KindSummary, "sum"))
	r.Apply(failedEvent("s", "run", store.KindPractice, llm.ErrTransportFailure))
	assert.Empty(t, runs.settled)

	r.Apply(succeeded("s", "run", store.KindFlashcards, []entity.Flashcard{{Id: "f", QuestionText: "q"}}))

	assert.Len(t, seen, 5)
	require.Len(t, runs.settled, 1)
	assert.Equal(t, "run", runs.settled[0].RunID)
}

func TestFailedEvent(t *testing.T) {
	ev := failedEvent("s", "r", store.KindSummary, errors.Join(errors.New("x"), llm.ErrQuotaOrAuthFailure))
	assert.Equal(t, events.OutcomeFailed, ev.Outcome)
	assert.Equal(t, string(llm.KindQuotaOrAuth), ev.ErrorKind)
	assert.NotEmpty(t, ev.Message)
	assert.Equal(t, "ARTIFACT_FAILED", ev.EventType())
}
