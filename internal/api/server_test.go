package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/DocChat/internal/blob"
	"github.com/dharsanguruparan/DocChat/internal/chat"
	"github.com/dharsanguruparan/DocChat/internal/completion"
	"github.com/dharsanguruparan/DocChat/internal/config"
	"github.com/dharsanguruparan/DocChat/internal/extract"
	"github.com/dharsanguruparan/DocChat/internal/jobstore"
	"github.com/dharsanguruparan/DocChat/internal/lifecycle"
	"github.com/dharsanguruparan/DocChat/internal/model"
	"github.com/dharsanguruparan/DocChat/internal/signing"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubModel struct {
	converseErr error
	prompts     []string
}

func (s *stubModel) Summarize(_ context.Context, text string) (string, error) {
	return "Summary: " + text, nil
}

func (s *stubModel) Converse(_ context.Context, doc string, _ []model.ChatTurn, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.converseErr != nil {
		return "", s.converseErr
	}
	return "The document says " + doc, nil
}

type noopScheduler struct{}

func (noopScheduler) Schedule(context.Context, string) error { return nil }

type harness struct {
	handler http.Handler
	ctrl    *lifecycle.Controller
	store   *jobstore.MemoryStore
	model   *stubModel
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := jobstore.NewMemoryStore()
	blobs := blob.NewMemoryStore()
	extractor := extract.New(blobs)
	stub := &stubModel{}
	ctrl := lifecycle.New(store, blobs, extractor, stub, noopScheduler{}, nil)
	cfg := &config.Config{
		Env:          "test",
		MaxFileSize:  1 << 10,
		SignedURLTTL: time.Minute,
		CORSOrigins:  []string{"http://localhost:5173"},
	}
	srv := New(cfg, Deps{
		Jobs:      ctrl,
		Reader:    store,
		Chat:      chat.New(store, extractor, stub, nil),
		Documents: blobs,
		Signer:    signing.NewSigner([]byte("test-secret")),
	}, nil)
	return &harness{handler: srv.Handler(), ctrl: ctrl, store: store, model: stub}
}

func (h *harness) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, target, filename, body string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(documentField, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, method, target string, payload interface{}) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobResponse {
	t.Helper()
	var out jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var out errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out.Error
}

// submit uploads body and runs processing to completion.
func (h *harness) submit(t *testing.T, filename, body string) jobResponse {
	t.Helper()
	rec := h.do(t, uploadRequest(t, "/jobs/", filename, body))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decodeJob(t, rec)
	h.ctrl.Process(context.Background(), job.ID)
	return job
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestCreateJob(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, uploadRequest(t, "/jobs/", "report.txt", "quarterly numbers"))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	job := decodeJob(t, rec)
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, model.StatusPending, job.Status)
	assert.Nil(t, job.Result)
	require.NotNil(t, job.Document)
	assert.Contains(t, *job.Document, "/jobs/"+job.ID+"/document?")

	h.ctrl.Process(context.Background(), job.ID)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJob(t, rec)
	assert.Equal(t, model.StatusSuccess, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "Summary: quarterly numbers", *got.Result)
}

func TestCreateJobWithoutDocument(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, httptest.NewRequest(http.MethodPost, "/jobs", nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	job := decodeJob(t, rec)
	assert.Nil(t, job.Document)

	h.ctrl.Process(context.Background(), job.ID)
	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil))
	got := decodeJob(t, rec)
	assert.Equal(t, model.StatusFailed, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, "No document attached to job.", *got.Result)
}

func TestCreateJobRejectsOversizedFile(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, uploadRequest(t, "/jobs/", "big.txt", strings.Repeat("a", 2<<10)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, decodeError(t, rec), "exceeds limit")

	jobs, err := h.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestGetMissingJob(t *testing.T) {
	h := newHarness(t)
	for _, target := range []string{"/jobs/nope/", "/jobs/nope"} {
		rec := h.do(t, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, msgNotFound, decodeError(t, rec))
	}
}

func TestListNewestFirst(t *testing.T) {
	h := newHarness(t)
	first := h.submit(t, "a.txt", "first")
	time.Sleep(2 * time.Millisecond)
	second := h.submit(t, "b.txt", "second")

	rec := h.do(t, httptest.NewRequest(http.MethodGet, "/jobs/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out []jobResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, second.ID, out[0].ID)
	assert.Equal(t, first.ID, out[1].ID)
}

func TestDeleteJob(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "a.txt", "text")

	rec := h.do(t, httptest.NewRequest(http.MethodDelete, "/jobs/"+job.ID+"/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID+"/", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.do(t, httptest.NewRequest(http.MethodDelete, "/jobs/"+job.ID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestChat(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "a.txt", "cats are mammals")

	rec := h.do(t, jsonRequest(t, http.MethodPost, "/jobs/"+job.ID+"/chat", map[string]interface{}{
		"prompt":  "What is this about?",
		"history": []model.ChatTurn{{Role: "user", Content: "hi"}, {Role: "assistant", Content: "hello"}},
	}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out chatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "The document says cats are mammals", out.Reply)

	stored, err := h.store.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, stored.Status)
	assert.Equal(t, "Summary: cats are mammals", stored.Result)
}

func TestChatErrors(t *testing.T) {
	h := newHarness(t)
	ready := h.submit(t, "a.txt", "text")
	rec := h.do(t, uploadRequest(t, "/jobs/", "b.txt", "pending text"))
	pending := decodeJob(t, rec)

	cases := []struct {
		name    string
		target  string
		payload interface{}
		status  int
		message string
	}{
		{"missing job", "/jobs/nope/chat", map[string]string{"prompt": "hi"}, http.StatusNotFound, msgNotFound},
		{"not ready", "/jobs/" + pending.ID + "/chat", map[string]string{"prompt": "hi"}, http.StatusBadRequest, msgNotReady},
		{"missing prompt", "/jobs/" + ready.ID + "/chat", map[string]string{}, http.StatusBadRequest, ""},
		{"blank prompt", "/jobs/" + ready.ID + "/chat", map[string]string{"prompt": "   "}, http.StatusBadRequest, ""},
		{"bad role", "/jobs/" + ready.ID + "/chat", map[string]interface{}{
			"prompt":  "hi",
			"history": []model.ChatTurn{{Role: "system", Content: "x"}},
		}, http.StatusBadRequest, ""},
		{"blank history content", "/jobs/" + ready.ID + "/chat", map[string]interface{}{
			"prompt":  "hi",
			"history": []model.ChatTurn{{Role: "user", Content: "  "}},
		}, http.StatusBadRequest, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := h.do(t, jsonRequest(t, http.MethodPost, tc.target, tc.payload))
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			msg := decodeError(t, rec)
			if tc.message != "" {
				assert.Equal(t, tc.message, msg)
			} else {
				assert.NotEmpty(t, msg)
			}
		})
	}
	assert.Empty(t, h.model.prompts)
}

func TestChatUpstreamFailureIsGeneric(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "a.txt", "text")
	h.model.converseErr = &completion.UpstreamError{Op: "converse", StatusCode: 401, Detail: "Incorrect API key sk-123"}

	rec := h.do(t, jsonRequest(t, http.MethodPost, "/jobs/"+job.ID+"/chat/", map[string]string{"prompt": "hi"}))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, msgInternalError, decodeError(t, rec))
	assert.NotContains(t, rec.Body.String(), "sk-123")
}

func TestSignedDocumentDownload(t *testing.T) {
	h := newHarness(t)
	job := h.submit(t, "notes.txt", "original bytes")
	require.NotNil(t, job.Document)

	link, err := url.Parse(*job.Document)
	require.NoError(t, err)
	rec := h.do(t, httptest.NewRequest(http.MethodGet, link.RequestURI(), nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "original bytes", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes.txt")

	q := link.Query()
	q.Set("signature", strings.Repeat("0", 64))
	rec = h.do(t, httptest.NewRequest(http.MethodGet, link.Path+"?"+q.Encode(), nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/jobs/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := h.do(t, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
