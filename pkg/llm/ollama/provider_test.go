package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"studykit-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Invoke(t *testing.T) {
	tests := []struct {
		name       string
		kind       llm.TaskKind
		status     int
		content    string
		wantErr    error
		wantText   string
		wantData   string
		wantFormat string
	}{
		{
			name:     "freeform text",
			kind:     llm.TaskFreeform,
			status:   http.StatusOK,
			content:  "  A short summary.  ",
			wantText: "A short summary.",
		},
		{
			name:    "freeform blank",
			kind:    llm.TaskFreeform,
			status:  http.StatusOK,
			content: " \n ",
			wantErr: llm.ErrEmptyResult,
		},
		{
			name:       "structured with fences",
			kind:       llm.TaskStructured,
			status:     http.StatusOK,
			content:    "```json\n{\"text\":\"x\",\"subject\":\"MATH\"}\n```",
			wantData:   `{"text":"x","subject":"MATH"}`,
			wantFormat: "json",
		},
		{
			name:       "structured not json",
			kind:       llm.TaskStructured,
			status:     http.StatusOK,
			content:    "sorry, I cannot",
			wantErr:    llm.ErrMalformedResponse,
			wantFormat: "json",
		},
		{
			name:    "rate limited",
			kind:    llm.TaskFreeform,
			status:  http.StatusTooManyRequests,
			wantErr: llm.ErrQuotaOrAuthFailure,
		},
		{
			name:    "server error",
			kind:    llm.TaskFreeform,
			status:  http.StatusBadGateway,
			wantErr: llm.ErrTransportFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/chat", r.URL.Path)
				var body ollamaChatRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
				assert.Equal(t, tt.wantFormat, body.Format)
				require.Len(t, body.Messages, 1)
				assert.Len(t, body.Messages[0].Images, 1)

				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(ollamaChatResponse{
					Message: ollamaMessage{Role: "assistant", Content: tt.content},
					Done:    true,
				})
			}))
			defer srv.Close()

			p := NewOllamaProvider(srv.URL, "llava", time.Second)
			resp, err := p.Invoke(context.Background(), llm.Request{
				Kind:      tt.kind,
				Images:    []llm.Image{{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}},
				Prompt:    "read this",
				Operation: "test",
			})

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, resp.Text)
			if tt.wantData != "" {
				assert.JSONEq(t, tt.wantData, string(resp.Data))
			}
		})
	}
}

func TestOllamaProvider_Unreachable(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:1", "llava", 200*time.Millisecond)
	_, err := p.Invoke(context.Background(), llm.Request{Prompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, llm.KindTransport, llm.KindOf(err))
}
