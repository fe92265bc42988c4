package prompt

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"studykit-be/pkg/llm"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultCatalog []byte

const (
	Extraction = "extraction"
	Note       = "note"
	Summary    = "summary"
	Practice   = "practice"
	Flashcards = "flashcards"
	Bonus      = "bonus"
	Clarify    = "clarify"
)

type entry struct {
	Kind     string `yaml:"kind"`
	Template string `yaml:"template"`
}

type file struct {
	Version int              `yaml:"version"`
	Prompts map[string]entry `yaml:"prompts"`
}

// Vars is the data every template renders against. Fields a prompt does
// not reference are ignored.
type Vars struct {
	Subject        string
	Language       string
	Text           string
	QuestionCount  int
	FlashcardCount int
	UsedFacts      string
	Existing       string
	Span           string
	Context        string
}

type compiled struct {
	kind llm.TaskKind
	tmpl *template.Template
}

type Catalog struct {
	prompts map[string]compiled
}

// Default parses the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// MustDefault is Default for package init paths.
func MustDefault() *Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	c := &Catalog{prompts: make(map[string]compiled, len(f.Prompts))}
	for name, e := range f.Prompts {
		var kind llm.TaskKind
		switch e.Kind {
		case "structured":
			kind = llm.TaskStructured
		case "freeform", "":
			kind = llm.TaskFreeform
		default:
			return nil, fmt.Errorf("prompt %q: unknown kind %q", name, e.Kind)
		}
		t, err := template.New(name).Option("missingkey=error").Parse(e.Template)
		if err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
		c.prompts[name] = compiled{kind: kind, tmpl: t}
	}
	return c, nil
}

// Request renders the named prompt into a gateway request.
func (c *Catalog) Request(name string, vars Vars, images ...llm.Image) (llm.Request, error) {
	p, ok := c.prompts[name]
	if !ok {
		return llm.Request{}, fmt.Errorf("prompt %q not found", name)
	}
	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, vars); err != nil {
		return llm.Request{}, fmt.Errorf("render prompt %q: %w", name, err)
	}
	return llm.Request{
		Kind:      p.kind,
		Images:    images,
		Prompt:    buf.String(),
		Operation: name,
	}, nil
}
