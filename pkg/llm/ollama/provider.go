package ollama

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"studykit-be/pkg/llm"
)

type OllamaProvider struct {
	BaseURL   string
	ModelName string
	Client    *http.Client
}

// Ensure OllamaProvider implements Gateway
var _ llm.Gateway = &OllamaProvider{}

func NewOllamaProvider(baseURL, modelName string, timeout time.Duration) *OllamaProvider {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaProvider{
		BaseURL:   baseURL,
		ModelName: modelName,
		Client: &http.Client{
			Timeout: timeout,
		},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Model   string        `json:"model"`
	Message ollamaMessage `json:"message"`
	Done    bool          `json:"done"`
}

func (o *OllamaProvider) Name() string { return "ollama" }

func (o *OllamaProvider) Invoke(ctx context.Context, in llm.Request, opts ...llm.Option) (*llm.Response, error) {
	// 1. Process Options
	options := llm.ApplyOptions(llm.Options{Temperature: 0.7, Model: o.ModelName}, opts...)

	// 2. Build the single user message; images travel base64 encoded
	msg := ollamaMessage{Role: "user", Content: in.Prompt}
	for _, img := range in.Images {
		msg.Images = append(msg.Images, base64.StdEncoding.EncodeToString(img.Data))
	}

	reqPayload := ollamaChatRequest{
		Model:    options.Model,
		Messages: []ollamaMessage{msg},
		Stream:   false,
		Options: &ollamaOptions{
			Temperature: options.Temperature,
		},
	}
	if in.Kind == llm.TaskStructured {
		reqPayload.Format = "json"
	}
	if options.MaxTokens > 0 {
		reqPayload.Options.NumPredict = options.MaxTokens
	}

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	// 3. Send Request
	url := o.BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.Client.Do(req)
	if err != nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, o.Name(), in.Operation, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, o.Name(), in.Operation, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, llm.Wrap(llm.ClassifyStatus(resp.StatusCode), o.Name(), in.Operation,
			fmt.Errorf("status %d, body: %s", resp.StatusCode, string(bodyBytes)))
	}

	// 4. Parse Response
	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(bodyBytes, &ollamaResp); err != nil {
		return nil, llm.Wrap(llm.ErrMalformedResponse, o.Name(), in.Operation, err)
	}

	return llm.NewResponse(in.Kind, o.Name(), in.Operation, ollamaResp.Message.Content)
}
