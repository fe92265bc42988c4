package controller

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"studykit-be/internal/pkg/logger"
	"studykit-be/internal/pkg/serverutils"
	"studykit-be/internal/repository/memory"
	"studykit-be/internal/service"
	"studykit-be/pkg/ai/pipeline"
	"studykit-be/pkg/llm"
	"studykit-be/pkg/llm/llmtest"
	"studykit-be/pkg/prompt"
	"studykit-be/pkg/store"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	app  *fiber.App
	orch *pipeline.Orchestrator
}

func newTestServer(t *testing.T, gw llm.Gateway) *testServer {
	t.Helper()
	repo := memory.NewSessionRepository(0, store.DefaultMaxImages)
	reducer := pipeline.NewReducer(repo.Lookup, nil, nil)
	d := pipeline.Deps{Gateway: gw, Reducer: reducer, Config: pipeline.DefaultConfig()}
	orch := pipeline.NewOrchestrator(d)
	svc := service.NewStudyService(repo, orch, pipeline.NewExtensionEngine(d), pipeline.NewClarifier(d), reducer, store.DefaultMaxImages, logger.NopLogger{})

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	NewStudyController(svc).RegisterRoutes(app.Group("/api"))
	return &testServer{app: app, orch: orch}
}

func (s *testServer) do(t *testing.T, req *http.Request) (int, envelope) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(body, &env), string(body))
	return resp.StatusCode, env
}

func (s *testServer) json(t *testing.T, method, path string, body interface{}) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(t, req)
}

func (s *testServer) upload(t *testing.T, path string, n int, contentType string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for i := 0; i < n; i++ {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="images[]"; filename="p%d.jpg"`, i))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(fmt.Sprintf("page-%d", i)))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.do(t, req)
}

func (s *testServer) createSession(t *testing.T) string {
	t.Helper()
	code, env := s.json(t, http.MethodPost, "/api/study/v1/sessions", nil)
	require.Equal(t, http.StatusCreated, code)
	var data struct {
		Id string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	return data.Id
}

func base(id string) string { return "/api/study/v1/sessions/" + id }

func TestStudyController_SessionNotFound(t *testing.T) {
	s := newTestServer(t, llmtest.HappyPath())
	code, env := s.json(t, http.MethodGet, base("nope"), nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.False(t, env.Success)
	assert.Equal(t, http.StatusNotFound, env.Code)
}

func TestStudyController_Upload(t *testing.T) {
	s := newTestServer(t, llmtest.HappyPath())
	id := s.createSession(t)

	code, env := s.upload(t, base(id)+"/images", 6, "image/jpeg")
	require.Equal(t, http.StatusOK, code)
	var res struct {
		Added      int  `json:"added"`
		Dropped    int  `json:"dropped"`
		MaxReached bool `json:"max_reached"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, 5, res.Added)
	assert.Equal(t, 1, res.Dropped)
	assert.True(t, res.MaxReached)

	code, _ = s.upload(t, base(id)+"/images", 1, "image/jpeg")
	assert.Equal(t, http.StatusConflict, code)

	other := s.createSession(t)
	code, _ = s.upload(t, base(other)+"/images", 1, "application/pdf")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStudyController_RunAndInteract(t *testing.T) {
	s := newTestServer(t, llmtest.HappyPath())
	id := s.createSession(t)

	code, _ := s.json(t, http.MethodPost, base(id)+"/runs", map[string]string{"language": "en"})
	assert.Equal(t, http.StatusConflict, code, "no images yet")

	_, _ = s.upload(t, base(id)+"/images", 2, "image/png")
	code, env := s.json(t, http.MethodPost, base(id)+"/runs", map[string]string{"language": "en"})
	require.Equal(t, http.StatusAccepted, code, env.Message)
	s.orch.Wait()

	code, env = s.json(t, http.MethodGet, base(id), nil)
	require.Equal(t, http.StatusOK, code)
	var snap store.Session
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Len(t, snap.Batches, 1)
	qid := snap.Batches[0].Questions[0].Id

	code, env = s.json(t, http.MethodPost, base(id)+"/answers", map[string]string{"question_id": qid, "option": "B"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Answer recorded", env.Message)
	code, env = s.json(t, http.MethodPost, base(id)+"/answers", map[string]string{"question_id": qid, "option": "C"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Question already answered", env.Message)

	code, _ = s.json(t, http.MethodPost, base(id)+"/navigate", map[string]int{"direction": 2})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.json(t, http.MethodPost, base(id)+"/finish", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.json(t, http.MethodPost, base(id)+"/batches", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Batch 2 generated", env.Message)

	code, _ = s.json(t, http.MethodPut, base(id)+"/batches/active", map[string]int{"index": 0})
	assert.Equal(t, http.StatusOK, code)
	code, _ = s.json(t, http.MethodPut, base(id)+"/batches/active", map[string]int{"index": 9})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.json(t, http.MethodGet, base(id)+"/export", nil)
	require.Equal(t, http.StatusOK, code)
	var kit struct {
		BatchCount int `json:"batch_count"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &kit))
	assert.Equal(t, 2, kit.BatchCount)
}

func TestStudyController_Validation(t *testing.T) {
	s := newTestServer(t, llmtest.HappyPath())
	id := s.createSession(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
	}{
		{"language missing", http.MethodPost, "/runs", map[string]string{}},
		{"language unknown", http.MethodPost, "/runs", map[string]string{"language": "fr"}},
		{"span missing", http.MethodPost, "/clarify", map[string]string{"language": "en"}},
		{"option invalid", http.MethodPost, "/answers", map[string]string{"question_id": "q", "option": "E"}},
		{"index missing", http.MethodPut, "/batches/active", map[string]string{}},
		{"tab invalid", http.MethodPut, "/view", map[string]string{"tab": "settings"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.json(t, tt.method, base(id)+tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.False(t, env.Success)
		})
	}
}

func TestStudyController_GatewayErrorStatus(t *testing.T) {
	tests := []struct {
		name     string
		sentinel error
		want     int
	}{
		{"quota", llm.ErrQuotaOrAuthFailure, http.StatusTooManyRequests},
		{"malformed", llm.ErrMalformedResponse, http.StatusBadGateway},
		{"transport", llm.ErrTransportFailure, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := llmtest.HappyPath().On(prompt.Extraction, llmtest.Fail(tt.sentinel))
			s := newTestServer(t, gw)
			id := s.createSession(t)
			_, _ = s.upload(t, base(id)+"/images", 1, "image/jpeg")

			code, env := s.json(t, http.MethodPost, base(id)+"/runs", map[string]string{"language": "bn"})
			assert.Equal(t, tt.want, code)
			assert.Equal(t, llm.UserMessage(tt.sentinel), env.Message)
		})
	}
}

func TestStudyController_EmptyBonusIsNotice(t *testing.T) {
	gw := llmtest.HappyPath()
	s := newTestServer(t, gw)
	id := s.createSession(t)
	_, _ = s.upload(t, base(id)+"/images", 1, "image/jpeg")
	code, _ := s.json(t, http.MethodPost, base(id)+"/runs", map[string]string{"language": "en"})
	require.Equal(t, http.StatusAccepted, code)
	s.orch.Wait()

	gw.On(prompt.Bonus, llmtest.Text(""))
	code, env := s.json(t, http.MethodPost, base(id)+"/bonus", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)
	assert.Equal(t, llm.UserMessage(llm.ErrEmptyResult), env.Message)

	code, env = s.json(t, http.MethodDelete, base(id)+"/notice", nil)
	assert.Equal(t, http.StatusOK, code)
	var snap store.Session
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Nil(t, snap.Notice)
}
