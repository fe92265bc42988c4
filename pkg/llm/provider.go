package llm

import (
	"context"
	"encoding/json"
)

// TaskKind selects between a free-text answer and a JSON answer.
type TaskKind int

const (
	TaskFreeform TaskKind = iota
	TaskStructured
)

func (k TaskKind) String() string {
	if k == TaskStructured {
		return "structured"
	}
	return "freeform"
}

// Image is one inline image part sent with a request.
type Image struct {
	MIMEType string
	Data     []byte
}

// Request is the single request type every backend understands.
type Request struct {
	Kind   TaskKind
	Images []Image
	Prompt string
	// Operation labels the call in logs and errors (e.g. "extraction").
	Operation string
}

// Response carries Text for freeform calls and Data for structured ones.
// Data is always valid JSON with any code-fence wrapping removed.
type Response struct {
	Text string
	Data json.RawMessage
}

// Option allows for optional parameters like Temperature, MaxTokens, etc.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string // Override default model
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithModel(model string) Option {
	return func(o *Options) {
		o.Model = model
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// ApplyOptions folds opts over the given defaults.
func ApplyOptions(defaults Options, opts ...Option) Options {
	for _, opt := range opts {
		opt(&defaults)
	}
	return defaults
}

// Gateway is the contract for any generation backend. Implementations
// never retry; they either return the requested shape or an error wrapping
// one of the taxonomy sentinels in errors.go.
type Gateway interface {
	Name() string
	Invoke(ctx context.Context, req Request, options ...Option) (*Response, error)
}
