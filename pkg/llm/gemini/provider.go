package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"studykit-be/pkg/llm"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const DefaultModel = "gemini-1.5-flash"

type GeminiProvider struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
}

var _ llm.Gateway = &GeminiProvider{}

// NewGeminiProvider builds a provider whose calls are each bounded by
// timeout (120s when zero). opts are appended to the client options.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string, timeout time.Duration, opts ...option.ClientOption) (*GeminiProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("GOOGLE_GEMINI_API_KEY is empty")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModel
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cl, err := genai.NewClient(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: cl, modelName: strings.TrimSpace(modelName), timeout: timeout}, nil
}

func (g *GeminiProvider) Name() string { return "gemini" }

func (g *GeminiProvider) Close() error { return g.client.Close() }

func (g *GeminiProvider) Invoke(ctx context.Context, req llm.Request, opts ...llm.Option) (*llm.Response, error) {
	options := llm.ApplyOptions(llm.Options{Model: g.modelName, Temperature: 0.4}, opts...)

	m := g.client.GenerativeModel(options.Model)
	if m == nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, g.Name(), req.Operation, errors.New("model is nil"))
	}
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(float32(options.Temperature)),
	}
	if options.MaxTokens > 0 {
		n := int32(options.MaxTokens)
		m.GenerationConfig.MaxOutputTokens = &n
	}
	if req.Kind == llm.TaskStructured {
		m.GenerationConfig.ResponseMIMEType = "application/json"
	}

	parts := make([]genai.Part, 0, len(req.Images)+1)
	for _, img := range req.Images {
		parts = append(parts, &genai.Blob{MIMEType: img.MIMEType, Data: img.Data})
	}
	parts = append(parts, genai.Text(req.Prompt))

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, llm.Wrap(classify(err), g.Name(), req.Operation, err)
	}
	return llm.NewResponse(req.Kind, g.Name(), req.Operation, firstText(resp))
}

// classify maps a genai error onto the gateway taxonomy.
func classify(err error) error {
	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return llm.ErrMalformedResponse
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return llm.ClassifyStatus(gerr.Code)
	}
	switch status.Code(err) {
	case codes.Unauthenticated, codes.PermissionDenied, codes.ResourceExhausted:
		return llm.ErrQuotaOrAuthFailure
	}
	return llm.ErrTransportFailure
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}

func ptrFloat32(v float32) *float32 { return &v }
