package entity

import "strings"

type Subject string

const (
	SubjectBangla  Subject = "BANGLA"
	SubjectEnglish Subject = "ENGLISH"
	SubjectMath    Subject = "MATH"
	SubjectGK      Subject = "GK"
	SubjectUnknown Subject = "UNKNOWN"
)

// ParseSubject maps a model-provided label onto the known subjects.
func ParseSubject(s string) Subject {
	switch Subject(strings.ToUpper(strings.TrimSpace(s))) {
	case SubjectBangla:
		return SubjectBangla
	case SubjectEnglish:
		return SubjectEnglish
	case SubjectMath, "MATHEMATICS":
		return SubjectMath
	case SubjectGK, "GENERAL KNOWLEDGE":
		return SubjectGK
	default:
		return SubjectUnknown
	}
}

type Language string

const (
	LanguageBN Language = "BN"
	LanguageEN Language = "EN"
)

func (l Language) Valid() bool {
	return l == LanguageBN || l == LanguageEN
}

// Name is the human-readable language name used inside prompts.
func (l Language) Name() string {
	if l == LanguageBN {
		return "Bangla"
	}
	return "English"
}

type Tab string

const (
	TabNote       Tab = "note"
	TabSummary    Tab = "summary"
	TabPractice   Tab = "practice"
	TabFlashcards Tab = "flashcards"
	TabText       Tab = "text"
)

func (t Tab) Valid() bool {
	switch t {
	case TabNote, TabSummary, TabPractice, TabFlashcards, TabText:
		return true
	}
	return false
}

type Option string

const (
	OptionA Option = "A"
	OptionB Option = "B"
	OptionC Option = "C"
	OptionD Option = "D"
)

func ParseOption(s string) (Option, bool) {
	o := Option(strings.ToUpper(strings.TrimSpace(s)))
	switch o {
	case OptionA, OptionB, OptionC, OptionD:
		return o, true
	}
	return "", false
}

// ImagePayload is one uploaded page photograph.
type ImagePayload struct {
	Id       string `json:"id"`
	MIMEType string `json:"mime_type"`
	Size     int    `json:"size"`
	Digest   string `json:"digest"`
	Data     []byte `json:"-"`
}

type ExtractionResult struct {
	Text    string  `json:"text"`
	Subject Subject `json:"subject"`
}

type MasterNote struct {
	Layer1 string `json:"layer1"`
	Layer2 string `json:"layer2"`
	Layer3 string `json:"layer3"`
}

type MCQOptions struct {
	A string `json:"A"`
	B string `json:"B"`
	C string `json:"C"`
	D string `json:"D"`
}

// Complete reports whether all four options carry text.
func (o MCQOptions) Complete() bool {
	return strings.TrimSpace(o.A) != "" && strings.TrimSpace(o.B) != "" &&
		strings.TrimSpace(o.C) != "" && strings.TrimSpace(o.D) != ""
}

type MCQQuestion struct {
	Id            string     `json:"id"`
	QuestionText  string     `json:"question_text"`
	Options       MCQOptions `json:"options"`
	CorrectAnswer Option     `json:"correct_answer"`
	Explanation   string     `json:"explanation"`
	SourceTag     string     `json:"source_tag"`
	CoveredTopics []string   `json:"covered_topics"`
}

type CoverageReport struct {
	CoveredTopics   []string `json:"covered_topics"`
	UncoveredTopics []string `json:"uncovered_topics"`
	Notes           string   `json:"notes,omitempty"`
}

type MCQBatch struct {
	BatchNumber    int            `json:"batch_number"`
	Questions      []MCQQuestion  `json:"questions"`
	CoverageReport CoverageReport `json:"coverage_report"`
}

type Flashcard struct {
	Id           string `json:"id"`
	QuestionText string `json:"question_text"`
}

type Clarification struct {
	Term            string `json:"term"`
	Definition      string `json:"definition"`
	FullExplanation string `json:"full_explanation"`
}

// ExportKit is the read-only view handed to an offline renderer.
type ExportKit struct {
	Subject      Subject       `json:"subject"`
	Language     Language      `json:"language"`
	MasterNote   *MasterNote   `json:"master_note"`
	Summary      *string       `json:"summary"`
	AllQuestions []MCQQuestion `json:"all_questions"`
	BatchCount   int           `json:"batch_count"`
}
