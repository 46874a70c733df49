package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"homeai/internal/ai"
	"homeai/internal/app"
	"homeai/internal/model"
	"homeai/internal/pkg/jwtutil"
	"homeai/internal/transport/http/middleware"
	"homeai/internal/transport/http/response"
	"homeai/internal/vectorstore"
)

const testJWTSecret = "handler-test-secret"

// In-memory stores backing the real services under test.

type memUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[uuid.UUID]model.User)}
}

func (m *memUserStore) Create(u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *memUserStore) GetByEmail(email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (m *memUserStore) GetByID(id uuid.UUID) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *memUserStore) Update(u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

type memConversationStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]model.Conversation
}

func newMemConversationStore() *memConversationStore {
	return &memConversationStore{conversations: make(map[uuid.UUID]model.Conversation)}
}

func (m *memConversationStore) Create(c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = *c
	return nil
}

func (m *memConversationStore) GetByID(id uuid.UUID) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (m *memConversationStore) GetByIDAndUserID(id, userID uuid.UUID) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok && c.UserID == userID {
		return &c, nil
	}
	return nil, nil
}

func (m *memConversationStore) ListByUserID(userID uuid.UUID) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Conversation
	for _, c := range m.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (m *memConversationStore) Update(c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[c.ID] = *c
	return nil
}

func (m *memConversationStore) DeleteByIDAndUserID(id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok && c.UserID == userID {
		delete(m.conversations, id)
	}
	return nil
}

func (m *memConversationStore) ListByUserIDWithDocument(userID, documentID uuid.UUID) ([]model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Conversation
	for _, c := range m.conversations {
		if c.UserID != userID {
			continue
		}
		for _, id := range c.SelectedDocumentIDs() {
			if id == documentID {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

type memMessageStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]model.Message
}

func newMemMessageStore() *memMessageStore {
	return &memMessageStore{messages: make(map[uuid.UUID][]model.Message)}
}

func (m *memMessageStore) add(msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
}

func (m *memMessageStore) ListByConversationID(conversationID uuid.UUID, limit int) ([]model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := append([]model.Message(nil), m.messages[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (m *memMessageStore) DeleteByConversationID(conversationID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.messages, conversationID)
	return nil
}

type memDocumentStore struct {
	mu        sync.Mutex
	documents map[uuid.UUID]model.Document
}

func newMemDocumentStore() *memDocumentStore {
	return &memDocumentStore{documents: make(map[uuid.UUID]model.Document)}
}

func (m *memDocumentStore) Create(d *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[d.ID] = *d
	return nil
}

func (m *memDocumentStore) GetByID(id uuid.UUID) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.documents[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (m *memDocumentStore) GetByIDAndUserID(id, userID uuid.UUID) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.documents[id]; ok && d.UserID == userID {
		return &d, nil
	}
	return nil, nil
}

func (m *memDocumentStore) GetByUserIDAndChecksum(userID uuid.UUID, checksum string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.documents {
		if d.UserID == userID && d.Checksum == checksum {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (m *memDocumentStore) ListByUserID(userID uuid.UUID) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Document
	for _, d := range m.documents {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocumentStore) CountByUserIDAndIDs(userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, id := range ids {
		if d, ok := m.documents[id]; ok && d.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memDocumentStore) DeleteByIDAndUserID(id, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.documents[id]; ok && d.UserID == userID {
		delete(m.documents, id)
	}
	return nil
}

type stubLLM struct{}

func (stubLLM) Chat(context.Context, ai.Config, []ai.ChatMessage) (*ai.ChatResult, error) {
	return &ai.ChatResult{Content: "stub reply", EvalCount: 5}, nil
}

func (stubLLM) Generate(context.Context, ai.Config, string) (string, error) {
	return "🏠 Stub Title", nil
}

func (stubLLM) Embed(context.Context, ai.Config, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (stubLLM) EmbedBatch(_ context.Context, _ ai.Config, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

type stubVectorIndex struct{}

func (stubVectorIndex) Add([]vectorstore.Chunk) error      { return nil }
func (stubVectorIndex) DeleteByDocumentID(uuid.UUID) error { return nil }

func (stubVectorIndex) Search(uuid.UUID, []uuid.UUID, []float32, int) ([]vectorstore.ScoredChunk, error) {
	return nil, nil
}

// directPublisher writes straight into the message store, standing in for the
// broker plus worker pair.
type directPublisher struct {
	sink *memMessageStore
}

func (p *directPublisher) Publish(_ context.Context, msg model.Message) error {
	p.sink.add(msg)
	return nil
}

type testEnv struct {
	router        *gin.Engine
	users         *memUserStore
	conversations *memConversationStore
	messages      *memMessageStore
	documents     *memDocumentStore
	auth          *app.AuthService
}

// newTestEnv assembles real services over in-memory stores behind the same
// routes the server mounts.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		users:         newMemUserStore(),
		conversations: newMemConversationStore(),
		messages:      newMemMessageStore(),
		documents:     newMemDocumentStore(),
	}

	llmConfig := ai.Config{Model: "test-model"}
	env.auth = app.NewAuthService(env.users, testJWTSecret, "HS256", time.Hour)
	conversationService := app.NewConversationService(
		env.conversations, env.messages, env.documents,
		&directPublisher{sink: env.messages}, nil, stubLLM{}, stubVectorIndex{}, llmConfig,
	)
	documentService := app.NewDocumentService(
		env.documents, env.conversations, stubVectorIndex{}, stubLLM{}, llmConfig, t.TempDir(),
	)

	authHandler := NewAuthHandler(env.auth)
	userHandler := NewUserHandler(env.auth)
	conversationHandler := NewConversationHandler(conversationService)
	documentHandler := NewDocumentHandler(documentService)

	r := gin.New()
	r.POST("/auth/register", authHandler.Register)
	r.POST("/auth/login", authHandler.Login)

	api := r.Group("/", middleware.AuthJWT(testJWTSecret))
	{
		api.GET("/users/me/details", userHandler.MyDetails)
		api.PUT("/users/me/profile", userHandler.UpdateMyProfile)
		api.PUT("/users/me/password", userHandler.ChangeMyPassword)
		admin := api.Group("/users", middleware.RequireAdmin())
		{
			admin.PUT("/:user_id/profile", userHandler.UpdateProfile)
			admin.PUT("/:user_id/password", userHandler.ChangePassword)
		}

		api.POST("/conversations", conversationHandler.Create)
		api.GET("/conversations/me", conversationHandler.ListMine)
		api.GET("/conversations/:id", conversationHandler.Get)
		api.DELETE("/conversations/:id", conversationHandler.Delete)
		api.GET("/conversations/:id/messages", conversationHandler.GetMessages)
		api.POST("/conversations/:id/continue", conversationHandler.Continue)

		api.POST("/documents/upload", documentHandler.Upload)
		api.GET("/documents/me", documentHandler.ListMine)
		api.GET("/documents/:id", documentHandler.Get)
		api.DELETE("/documents/:id", documentHandler.Delete)
	}

	env.router = r
	return env
}

// registerUser creates an account directly through the service and returns a
// bearer token for it.
func (e *testEnv) registerUser(t *testing.T, email, role string) (uuid.UUID, string) {
	t.Helper()
	result, err := e.auth.Register(app.RegisterInput{
		FirstName: "Test",
		LastName:  "User",
		Email:     email,
		Password:  "Str0ng!pass",
	})
	require.NoError(t, err)

	user := result.User
	if role != model.RoleUser {
		user.Role = role
		require.NoError(t, e.users.Update(user))
	}
	token, err := jwtutil.GenerateToken(testJWTSecret, "HS256", time.Hour, user.ID, role)
	require.NoError(t, err)
	return user.ID, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) upload(t *testing.T, token string, files map[string][]byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for name, data := range files {
		part, err := writer.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) response.APIResponse {
	t.Helper()
	var resp response.APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func dataAsMap(t *testing.T, resp response.APIResponse) map[string]interface{} {
	t.Helper()
	m, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return m
}
