package pipeline

import (
	"fmt"
	"strings"

	"studykit-be/internal/entity"
	"studykit-be/pkg/llm"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type extractionShape struct {
	Text    string `json:"text"`
	Subject string `json:"subject"`
}

type noteShape struct {
	Layer1 string `json:"layer1"`
	Layer2 string `json:"layer2"`
	Layer3 string `json:"layer3"`
}

type questionShape struct {
	QuestionText  string            `json:"question_text"`
	Options       entity.MCQOptions `json:"options"`
	CorrectAnswer string            `json:"correct_answer"`
	Explanation   string            `json:"explanation"`
	SourceTag     string            `json:"source_tag"`
	CoveredTopics []string          `json:"covered_topics"`
}

type batchShape struct {
	Questions      []questionShape       `json:"questions"`
	CoverageReport entity.CoverageReport `json:"coverage_report"`
}

type flashcardShape struct {
	Flashcards []struct {
		QuestionText string `json:"question_text"`
	} `json:"flashcards"`
}

type clarifyShape struct {
	Definition      string `json:"definition"`
	FullExplanation string `json:"full_explanation"`
}

func malformed(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", llm.ErrMalformedResponse, fmt.Sprintf(format, args...))
}

func toExtraction(resp *llm.Response) (entity.ExtractionResult, error) {
	s, err := llm.Decode[extractionShape](resp)
	if err != nil {
		return entity.ExtractionResult{}, err
	}
	text := strings.TrimSpace(s.Text)
	if text == "" {
		return entity.ExtractionResult{}, fmt.Errorf("no readable text in images: %w", llm.ErrEmptyResult)
	}
	return entity.ExtractionResult{Text: text, Subject: entity.ParseSubject(s.Subject)}, nil
}

func toMasterNote(resp *llm.Response) (entity.MasterNote, error) {
	s, err := llm.Decode[noteShape](resp)
	if err != nil {
		return entity.MasterNote{}, err
	}
	note := entity.MasterNote{
		Layer1: strings.TrimSpace(s.Layer1),
		Layer2: strings.TrimSpace(s.Layer2),
		Layer3: strings.TrimSpace(s.Layer3),
	}
	if note.Layer1 == "" && note.Layer2 == "" && note.Layer3 == "" {
		return entity.MasterNote{}, malformed("note has no layers")
	}
	return note, nil
}

// toBatch validates every question; one broken question rejects the whole
// batch. Zero questions is ErrEmptyResult. BatchNumber is left for the store.
func toBatch(resp *llm.Response) (entity.MCQBatch, error) {
	s, err := llm.Decode[batchShape](resp)
	if err != nil {
		return entity.MCQBatch{}, err
	}
	if len(s.Questions) == 0 {
		return entity.MCQBatch{}, fmt.Errorf("no questions returned: %w", llm.ErrEmptyResult)
	}

	batch := entity.MCQBatch{CoverageReport: s.CoverageReport}
	for i, q := range s.Questions {
		text := strings.TrimSpace(q.QuestionText)
		if text == "" {
			return entity.MCQBatch{}, malformed("question %d has no text", i)
		}
		if !q.Options.Complete() {
			return entity.MCQBatch{}, malformed("question %d is missing options", i)
		}
		answer, ok := entity.ParseOption(q.CorrectAnswer)
		if !ok {
			return entity.MCQBatch{}, malformed("question %d has invalid answer %q", i, q.CorrectAnswer)
		}
		id, err := gonanoid.New()
		if err != nil {
			return entity.MCQBatch{}, err
		}
		batch.Questions = append(batch.Questions, entity.MCQQuestion{
			Id:            id,
			QuestionText:  text,
			Options:       q.Options,
			CorrectAnswer: answer,
			Explanation:   strings.TrimSpace(q.Explanation),
			SourceTag:     strings.TrimSpace(q.SourceTag),
			CoveredTopics: dedupe(q.CoveredTopics),
		})
	}
	return batch, nil
}

func toFlashcards(resp *llm.Response, limit int) ([]entity.Flashcard, error) {
	s, err := llm.Decode[flashcardShape](resp)
	if err != nil {
		return nil, err
	}
	var cards []entity.Flashcard
	for _, c := range s.Flashcards {
		text := strings.TrimSpace(c.QuestionText)
		if text == "" {
			continue
		}
		if limit > 0 && len(cards) == limit {
			break
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, err
		}
		cards = append(cards, entity.Flashcard{Id: id, QuestionText: text})
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("no flashcards returned: %w", llm.ErrEmptyResult)
	}
	return cards, nil
}

func toClarification(resp *llm.Response, term string) (entity.Clarification, error) {
	s, err := llm.Decode[clarifyShape](resp)
	if err != nil {
		return entity.Clarification{}, err
	}
	if strings.TrimSpace(s.Definition) == "" {
		return entity.Clarification{}, malformed("clarification has no definition")
	}
	return entity.Clarification{
		Term:            term,
		Definition:      strings.TrimSpace(s.Definition),
		FullExplanation: strings.TrimSpace(s.FullExplanation),
	}, nil
}

// dedupe keeps the first occurrence of each non-blank topic.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		key := strings.ToLower(s)
		if s == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// truncateRunes returns at most n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// usedFactsHint joins question texts newest first until max runes would be
// exceeded; older questions are dropped first.
func usedFactsHint(texts []string, max int) string {
	var b strings.Builder
	used := 0
	for i := len(texts) - 1; i >= 0; i-- {
		line := "- " + texts[i]
		n := len([]rune(line)) + 1
		if max > 0 && used+n > max {
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
		used += n
	}
	return strings.TrimRight(b.String(), "\n")
}
