package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"jurisai-go/internal/config"
	"jurisai-go/internal/middleware"
	"jurisai-go/internal/model"
	"jurisai-go/internal/service"
	"jurisai-go/internal/session"
	"jurisai-go/pkg/token"
)

type memSessionRepo struct {
	mu        sync.Mutex
	active    map[string]string
	blacklist map[string]bool
}

func (r *memSessionRepo) GetOrCreateActiveConversation(_ context.Context, username string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.active[username]; ok {
		return id, nil
	}
	id := model.NewConversationID()
	r.active[username] = id
	return id, nil
}

func (r *memSessionRepo) SetActiveConversation(_ context.Context, username, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active[username] = id
	return nil
}

func (r *memSessionRepo) ClearActiveConversation(_ context.Context, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, username)
	return nil
}

func (r *memSessionRepo) BlacklistToken(_ context.Context, tok string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blacklist[tok] = true
	return nil
}

func (r *memSessionRepo) IsTokenBlacklisted(_ context.Context, tok string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.blacklist[tok], nil
}

// memCases 只实现处理器测试需要的案件操作。
type memCases struct {
	mu    sync.Mutex
	cases map[string]model.Conversation
}

func (m *memCases) Save(_ context.Context, conv model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cases[conv.ID] = conv
	return nil
}

func (m *memCases) LoadAll(_ context.Context, username string) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Conversation
	for _, c := range m.cases {
		if c.Username == username {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memCases) Load(_ context.Context, username, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cases[id]
	if !ok || c.Username != username {
		return nil, &model.NotFoundError{Resource: "case", ID: id}
	}
	return &c, nil
}

func (m *memCases) Delete(_ context.Context, username, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.cases[id]; !ok || c.Username != username {
		return &model.NotFoundError{Resource: "case", ID: id}
	}
	delete(m.cases, id)
	return nil
}

func (m *memCases) LoadUser(_ context.Context, username string) (*model.User, error) {
	return &model.User{Username: username}, nil
}

func (m *memCases) SaveUser(context.Context, *model.User) error { return nil }

type testServer struct {
	router *gin.Engine
	jwt    *token.JWTManager
	repo   *memSessionRepo
	cases  *memCases
}

func newTestServer() *testServer {
	gin.SetMode(gin.TestMode)
	s := &testServer{
		jwt:   token.NewJWTManager("test-secret", 1, 7),
		repo:  &memSessionRepo{active: map[string]string{}, blacklist: map[string]bool{}},
		cases: &memCases{cases: map[string]model.Conversation{}},
	}
	sessions := session.NewManager(s.repo)
	conversations := service.NewConversationService(sessions, s.cases, service.NewIngestService(config.IngestConfig{BatchSize: 2}))

	attachments := NewAttachmentHandler(conversations)
	caseHandler := NewCaseHandler(conversations, service.NewSearchService(nil))
	convHandler := NewConversationHandler(conversations, nil)

	r := gin.New()
	auth := r.Group("/api/v1")
	auth.Use(middleware.AuthMiddleware(s.jwt, s.repo, sessions, conversations))
	{
		auth.POST("/attachments", attachments.Upload)
		auth.GET("/attachments", attachments.List)
		auth.DELETE("/attachments", attachments.Clear)
		auth.GET("/conversation", convHandler.GetConversation)
		auth.PUT("/conversation/messages/:id", convHandler.EditMessage)
		auth.GET("/cases", caseHandler.List)
		auth.POST("/cases/:id/open", caseHandler.Open)
		auth.DELETE("/cases/:id", caseHandler.Delete)
	}
	s.router = r
	return s
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *testServer) do(t *testing.T, username string, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if username != "" {
		tok, err := s.jwt.GenerateToken(username)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return w, env
}

func multipartBody(t *testing.T, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for name, content := range files {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer()

	w, _ := s.do(t, "", httptest.NewRequest(http.MethodGet, "/api/v1/attachments", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	refresh, err := s.jwt.GenerateRefreshToken("ana")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/attachments", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	w, _ = s.do(t, "", req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBlacklistedTokenRejected(t *testing.T) {
	s := newTestServer()
	tok, err := s.jwt.GenerateToken("ana")
	require.NoError(t, err)
	s.repo.blacklist[tok] = true

	req := httptest.NewRequest(http.MethodGet, "/api/v1/conversation", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w, _ := s.do(t, "", req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUploadListAndClearAttachments(t *testing.T) {
	s := newTestServer()
	body, contentType := multipartBody(t, map[string]string{"a.txt": "uno", "b.txt": "dos", "c.txt": "tres"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments", body)
	req.Header.Set("Content-Type", contentType)

	w, env := s.do(t, "ana", req)
	require.Equal(t, http.StatusOK, w.Code)
	var upload struct {
		Accepted []model.AttachmentView `json:"accepted"`
		Pending  []model.AttachmentView `json:"pending"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &upload))
	assert.Len(t, upload.Accepted, 3)
	assert.Len(t, upload.Pending, 3)

	w, env = s.do(t, "ana", httptest.NewRequest(http.MethodGet, "/api/v1/attachments", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var pending []model.AttachmentView
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Len(t, pending, 3)

	w, _ = s.do(t, "ana", httptest.NewRequest(http.MethodDelete, "/api/v1/attachments", nil))
	require.Equal(t, http.StatusOK, w.Code)
	_, env = s.do(t, "ana", httptest.NewRequest(http.MethodGet, "/api/v1/attachments", nil))
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Empty(t, pending)
}

func TestUploadWithoutFiles(t *testing.T) {
	s := newTestServer()
	body, contentType := multipartBody(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/attachments", body)
	req.Header.Set("Content-Type", contentType)

	w, _ := s.do(t, "ana", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCasesOpenAndDelete(t *testing.T) {
	s := newTestServer()
	msgs := []model.Message{{ID: "u1", Role: model.RoleUser, Text: "Despido sin justa causa"}}
	s.cases.cases["c1"] = model.Conversation{ID: "c1", Username: "ana", Title: model.DeriveTitle(msgs), Messages: msgs, UpdatedAt: time.Now()}

	w, env := s.do(t, "ana", httptest.NewRequest(http.MethodGet, "/api/v1/cases", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []model.CaseSummary
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Despido sin justa causa", list[0].Title)

	w, env = s.do(t, "ana", httptest.NewRequest(http.MethodPost, "/api/v1/cases/c1/open", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var view service.ConversationView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "c1", view.ID)
	assert.Len(t, view.Messages, 1)
	assert.Equal(t, "c1", s.repo.active["ana"])

	w, _ = s.do(t, "luis", httptest.NewRequest(http.MethodPost, "/api/v1/cases/c1/open", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = s.do(t, "ana", httptest.NewRequest(http.MethodDelete, "/api/v1/cases/c1", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = s.do(t, "ana", httptest.NewRequest(http.MethodDelete, "/api/v1/cases/c1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEditMessage(t *testing.T) {
	s := newTestServer()
	msgs := []model.Message{{ID: "u1", Role: model.RoleUser, Text: "original"}}
	s.cases.cases["c1"] = model.Conversation{ID: "c1", Username: "ana", Messages: msgs}
	s.do(t, "ana", httptest.NewRequest(http.MethodPost, "/api/v1/cases/c1/open", nil))

	req := httptest.NewRequest(http.MethodPut, "/api/v1/conversation/messages/u1", bytes.NewBufferString(`{"text":"editado"}`))
	req.Header.Set("Content-Type", "application/json")
	w, env := s.do(t, "ana", req)
	require.Equal(t, http.StatusOK, w.Code)
	var view service.ConversationView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	require.Len(t, view.Messages, 1)
	assert.Equal(t, "editado", view.Messages[0].Text)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/conversation/messages/zz", bytes.NewBufferString(`{"text":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ = s.do(t, "ana", req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/v1/conversation/messages/u1", bytes.NewBufferString(`{}`))
	req.Header.Set("Content-Type", "application/json")
	w, _ = s.do(t, "ana", req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
