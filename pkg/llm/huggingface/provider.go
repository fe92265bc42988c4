package huggingface

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

type HuggingFaceProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

var _ llm.Gateway = &HuggingFaceProvider{}

// Request Payload Structure (OpenAI Compatible)
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewHuggingFaceProvider(apiKey, baseURL, model string, timeout time.Duration) *HuggingFaceProvider {
	if baseURL == "" {
		baseURL = "https://router.huggingface.co/v1" // Default Router URL
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &HuggingFaceProvider{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *HuggingFaceProvider) Name() string { return "huggingface" }

// dataURL inlines image bytes the way OpenAI-compatible vision endpoints expect.
func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (p *HuggingFaceProvider) Invoke(ctx context.Context, in llm.Request, options ...llm.Option) (*llm.Response, error) {
	opts := llm.ApplyOptions(llm.Options{
		Model:     p.model,
		MaxTokens: 4096,
	}, options...)

	parts := make([]contentPart, 0, len(in.Images)+1)
	for _, img := range in.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: dataURL(img.MIMEType, img.Data)}})
	}
	parts = append(parts, contentPart{Type: "text", Text: in.Prompt})

	reqBody := chatRequest{
		Model:       opts.Model,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	}
	if in.Kind == llm.TaskStructured {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/chat/completions", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", p.apiKey))
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, p.Name(), in.Operation, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, llm.Wrap(llm.ClassifyStatus(resp.StatusCode), p.Name(), in.Operation,
			fmt.Errorf("status %d: %s", resp.StatusCode, string(bodyBytes)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(bodyBytes, &chatResp); err != nil {
		return nil, llm.Wrap(llm.ErrMalformedResponse, p.Name(), in.Operation, err)
	}

	if chatResp.Error != nil {
		return nil, llm.Wrap(llm.ErrTransportFailure, p.Name(), in.Operation, fmt.Errorf("%s", chatResp.Error.Message))
	}

	if len(chatResp.Choices) == 0 {
		return nil, llm.Wrap(llm.ErrMalformedResponse, p.Name(), in.Operation, fmt.Errorf("empty choices"))
	}

	return llm.NewResponse(in.Kind, p.Name(), in.Operation, chatResp.Choices[0].Message.Content)
}
