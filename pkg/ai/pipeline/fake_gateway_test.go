package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"studykit-be/internal/entity"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/prompt"
	"studykit-be/pkg/store"

	"github.com/stretchr/testify/require"
)

type handlerFunc func(req llm.Request) (*llm.Response, error)

type call struct {
	Op       string
	Prompt   string
	Images   int
	IssuedAt time.Time
}

// fakeGateway returns scripted responses per operation and records every
// call in issue order.
type fakeGateway struct {
	mu       sync.Mutex
	calls    []call
	handlers map[string]handlerFunc
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{handlers: map[string]handlerFunc{}}
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) on(op string, h handlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[op] = h
}

func (f *fakeGateway) Invoke(ctx context.Context, req llm.Request, _ ...llm.Option) (*llm.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{Op: req.Operation, Prompt: req.Prompt, Images: len(req.Images), IssuedAt: time.Now()})
	h := f.handlers[req.Operation]
	f.mu.Unlock()

	if h == nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, "fake", req.Operation, errors.New("no script"))
	}
	return h(req)
}

func (f *fakeGateway) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeGateway) ops() []string {
	var out []string
	for _, c := range f.recorded() {
		out = append(out, c.Op)
	}
	return out
}

func (f *fakeGateway) lastPrompt(op string) string {
	calls := f.recorded()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Op == op {
			return calls[i].Prompt
		}
	}
	return ""
}

func jsonReply(v interface{}) handlerFunc {
	return func(llm.Request) (*llm.Response, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Data: data}, nil
	}
}

func textReply(s string) handlerFunc {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: s}, nil
	}
}

func failWith(sentinel error) handlerFunc {
	return func(req llm.Request) (*llm.Response, error) {
		return nil, llm.Wrap(sentinel, "fake", req.Operation, nil)
	}
}

func questions(prefix string, n int) map[string]interface{} {
	qs := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, map[string]interface{}{
			"question_text":  fmt.Sprintf("%s question %d?", prefix, i+1),
			"options":        map[string]string{"A": "one", "B": "two", "C": "three", "D": "four"},
			"correct_answer": "b",
			"explanation":    "because",
			"source_tag":     "p1",
			"covered_topics": []string{"topic", "Topic", ""},
		})
	}
	return map[string]interface{}{
		"questions":       qs,
		"coverage_report": map[string]interface{}{"covered_topics": []string{"topic"}, "uncovered_topics": []string{}},
	}
}

func flashcards(n int) map[string]interface{} {
	cards := make([]map[string]string, 0, n)
	for i := 0; i < n; i++ {
		cards = append(cards, map[string]string{"question_text": fmt.Sprintf("card %d", i+1)})
	}
	return map[string]interface{}{"flashcards": cards}
}

// scriptHappyPath makes every operation succeed.
func scriptHappyPath(gw *fakeGateway) {
	gw.on(prompt.Extraction, jsonReply(map[string]string{"text": "The area of a circle is pi r squared.", "subject": "mathematics"}))
	gw.on(prompt.Note, jsonReply(map[string]string{"layer1": "L1", "layer2": "L2", "layer3": "L3"}))
	gw.on(prompt.Summary, textReply("A circle summary."))
	gw.on(prompt.Practice, jsonReply(questions("first", 3)))
	gw.on(prompt.Flashcards, jsonReply(flashcards(12)))
	gw.on(prompt.Bonus, textReply("Bonus material."))
	gw.on(prompt.Clarify, jsonReply(map[string]string{"definition": "a round shape", "full_explanation": "longer"}))
}

type harness struct {
	gw      *fakeGateway
	st      *store.ArtifactStore
	reducer *Reducer
	orch    *Orchestrator
	ext     *ExtensionEngine
	clar    *Clarifier
}

func newHarness(t *testing.T, gw *fakeGateway) *harness {
	t.Helper()
	st := store.NewArtifactStore("session-1", store.DefaultMaxImages)
	reducer := NewReducer(func(id string) (*store.ArtifactStore, bool) {
		return st, id == st.ID()
	}, nil, nil)
	d := Deps{Gateway: gw, Reducer: reducer, Config: DefaultConfig()}
	return &harness{
		gw:      gw,
		st:      st,
		reducer: reducer,
		orch:    NewOrchestrator(d),
		ext:     NewExtensionEngine(d),
		clar:    NewClarifier(d),
	}
}

func (h *harness) addImages(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		img, err := store.NewImagePayload([]byte(fmt.Sprintf("page-%d", i)), "image/jpeg")
		require.NoError(t, err)
		_, err = h.st.AddImages(img)
		require.NoError(t, err)
	}
}

// completedRun runs the happy path to completion.
func (h *harness) completedRun(t *testing.T) store.Session {
	t.Helper()
	h.addImages(t, 2)
	_, err := h.orch.StartRun(context.Background(), h.st, entity.LanguageEN)
	require.NoError(t, err)
	h.orch.Wait()
	return h.st.Snapshot()
}
