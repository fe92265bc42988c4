// Package llmtest provides a scripted llm.Gateway for tests of code that
// sits above the generation backends.
package llmtest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"studykit-be/pkg/llm"
	"studykit-be/pkg/prompt"
)

type Handler func(req llm.Request) (*llm.Response, error)

// Gateway answers each operation with the handler registered for it and
// records the operations it was asked for.
type Gateway struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []string
}

func New() *Gateway {
	return &Gateway{handlers: make(map[string]Handler)}
}

func (g *Gateway) Name() string { return "llmtest" }

func (g *Gateway) On(op string, h Handler) *Gateway {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.handlers[op] = h
	return g
}

func (g *Gateway) Invoke(ctx context.Context, req llm.Request, _ ...llm.Option) (*llm.Response, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.Operation)
	h := g.handlers[req.Operation]
	g.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, g.Name(), req.Operation, err)
	}
	if h == nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, g.Name(), req.Operation, fmt.Errorf("no handler scripted"))
	}
	return h(req)
}

// Calls returns the operations invoked so far, in order.
func (g *Gateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.calls...)
}

func JSON(v interface{}) Handler {
	return func(llm.Request) (*llm.Response, error) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return &llm.Response{Data: data}, nil
	}
}

func Text(s string) Handler {
	return func(llm.Request) (*llm.Response, error) {
		return &llm.Response{Text: s}, nil
	}
}

func Fail(sentinel error) Handler {
	return func(req llm.Request) (*llm.Response, error) {
		return nil, llm.Wrap(sentinel, "llmtest", req.Operation, nil)
	}
}

// Questions builds a practice batch response of n valid questions whose
// correct answer is B.
func Questions(prefix string, n int) map[string]interface{} {
	qs := make([]map[string]interface{}, 0, n)
	for i := 0; i < n; i++ {
		qs = append(qs, map[string]interface{}{
			"question_text":  fmt.Sprintf("%s question %d?", prefix, i+1),
			"options":        map[string]string{"A": "one", "B": "two", "C": "three", "D": "four"},
			"correct_answer": "B",
			"explanation":    "because",
		})
	}
	return map[string]interface{}{
		"questions":       qs,
		"coverage_report": map[string]interface{}{"covered_topics": []string{"topic"}},
	}
}

// HappyPath scripts a successful answer for every operation of the kit.
func HappyPath() *Gateway {
	cards := make([]map[string]string, 0, 4)
	for i := 0; i < 4; i++ {
		cards = append(cards, map[string]string{"question_text": fmt.Sprintf("card %d", i+1)})
	}
	return New().
		On(prompt.Extraction, JSON(map[string]string{"text": "Photosynthesis turns light into sugar.", "subject": "GK"})).
		On(prompt.Note, JSON(map[string]string{"layer1": "L1", "layer2": "L2", "layer3": "L3"})).
		On(prompt.Summary, Text("Plants make food from light.")).
		On(prompt.Practice, JSON(Questions("first", 3))).
		On(prompt.Flashcards, JSON(map[string]interface{}{"flashcards": cards})).
		On(prompt.Bonus, Text("Bonus material.")).
		On(prompt.Clarify, JSON(map[string]string{"definition": "making food from light", "full_explanation": "longer"}))
}
