package commands

import (
	"context"
	"errors"
	"testing"
	"time"

	"studykit-be/internal/entity"
	"studykit-be/pkg/events"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/store"

	"github.com/stretchr/testify/assert"
)

func TestArtifactReport(t *testing.T) {
	summary := "one two three"
	snap := store.Session{
		MasterNote: &entity.MasterNote{Layer1: "x"},
		Summary:    &summary,
		Batches: []entity.MCQBatch{
			{BatchNumber: 1, Questions: make([]entity.MCQQuestion, 3)},
			{BatchNumber: 2, Questions: make([]entity.MCQQuestion, 2)},
		},
	}

	lines := artifactReport(snap)
	assert.Equal(t, []reportLine{
		{true, "Master note"},
		{true, "Summary (3 words)"},
		{true, "Practice exam: 5 question(s) in 2 batch(es)"},
		{false, "Flashcards unavailable"},
	}, lines)
}

func TestPendingMessage(t *testing.T) {
	tests := []struct {
		name  string
		flags store.LoadingFlags
		want  string
	}{
		{"extraction", store.LoadingFlags{Extraction: true, Note: true}, "Reading pages..."},
		{"some derivations", store.LoadingFlags{Note: true, Flashcards: true}, "Generating note, flashcards..."},
		{"settled", store.LoadingFlags{BonusExtension: true}, "Done"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pendingMessage(tt.flags))
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "b", firstNonEmpty("", "b", "c"))
	assert.Equal(t, "", firstNonEmpty("", ""))
}

func TestFormatEvent(t *testing.T) {
	ev := events.RunEvent{
		Type:       events.RunStarted,
		SessionID:  "s1",
		RunID:      "r1",
		Fields:     map[string]interface{}{"images": 2},
		OccurredAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, "09:30:00 RUN_STARTED images=2 run_id=r1 session_id=s1", formatEvent(ev))
}

type closingGateway struct {
	closed int
	err    error
}

func (g *closingGateway) Name() string { return "closing" }

func (g *closingGateway) Invoke(context.Context, llm.Request, ...llm.Option) (*llm.Response, error) {
	return nil, llm.ErrTransportFailure
}

func (g *closingGateway) Close() error {
	g.closed++
	return g.err
}

type plainGateway struct{}

func (plainGateway) Name() string { return "plain" }

func (plainGateway) Invoke(context.Context, llm.Request, ...llm.Option) (*llm.Response, error) {
	return nil, llm.ErrTransportFailure
}

func TestCloseGateway(t *testing.T) {
	gw := &closingGateway{}
	closeGateway(gw)
	assert.Equal(t, 1, gw.closed)

	failing := &closingGateway{err: errors.New("already closed")}
	assert.NotPanics(t, func() { closeGateway(failing) })
	assert.Equal(t, 1, failing.closed)

	assert.NotPanics(t, func() { closeGateway(plainGateway{}) })
}
