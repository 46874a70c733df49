package app

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"

	"homeai/internal/ai"
	"homeai/internal/model"
	"homeai/internal/vectorstore"
)

// In-memory store implementations shared by the service tests.

type fakeUserStore struct {
	mu    sync.Mutex
	users map[uuid.UUID]model.User
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[uuid.UUID]model.User)}
}

func (f *fakeUserStore) Create(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.ID] = *user
	return nil
}

func (f *fakeUserStore) GetByEmail(email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (f *fakeUserStore) GetByID(id uuid.UUID) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (f *fakeUserStore) Update(user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[user.ID]; !ok {
		return errors.New("user not found")
	}
	f.users[user.ID] = *user
	return nil
}

type fakeConversationStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]model.Conversation
	updateErr     error
}

func newFakeConversationStore() *fakeConversationStore {
	return &fakeConversationStore{conversations: make(map[uuid.UUID]model.Conversation)}
}

func (f *fakeConversationStore) Create(c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = *c
	return nil
}

func (f *fakeConversationStore) GetByID(id uuid.UUID) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.conversations[id]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeConversationStore) GetByIDAndUserID(id, userID uuid.UUID) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.conversations[id]; ok && c.UserID == userID {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeConversationStore) ListByUserID(userID uuid.UUID) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out, nil
}

func (f *fakeConversationStore) Update(c *model.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.conversations[c.ID]; !ok {
		return errors.New("conversation not found")
	}
	f.conversations[c.ID] = *c
	return nil
}

func (f *fakeConversationStore) DeleteByIDAndUserID(id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.conversations[id]; ok && c.UserID == userID {
		delete(f.conversations, id)
	}
	return nil
}

func (f *fakeConversationStore) ListByUserIDWithDocument(userID, documentID uuid.UUID) ([]model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Conversation
	for _, c := range f.conversations {
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

type fakeMessageStore struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]model.Message
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{messages: make(map[uuid.UUID][]model.Message)}
}

func (f *fakeMessageStore) add(msg model.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[msg.ConversationID] = append(f.messages[msg.ConversationID], msg)
}

func (f *fakeMessageStore) ListByConversationID(conversationID uuid.UUID, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := append([]model.Message(nil), f.messages[conversationID]...)
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].CreatedAt.Before(msgs[j].CreatedAt) })
	if limit > 0 && limit < len(msgs) {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

func (f *fakeMessageStore) DeleteByConversationID(conversationID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.messages, conversationID)
	return nil
}

type fakeDocumentStore struct {
	mu        sync.Mutex
	documents map[uuid.UUID]model.Document
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{documents: make(map[uuid.UUID]model.Document)}
}

func (f *fakeDocumentStore) Create(d *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.documents[d.ID] = *d
	return nil
}

func (f *fakeDocumentStore) GetByID(id uuid.UUID) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.documents[id]; ok {
		return &d, nil
	}
	return nil, nil
}

func (f *fakeDocumentStore) GetByIDAndUserID(id, userID uuid.UUID) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.documents[id]; ok && d.UserID == userID {
		return &d, nil
	}
	return nil, nil
}

func (f *fakeDocumentStore) GetByUserIDAndChecksum(userID uuid.UUID, checksum string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.documents {
		if d.UserID == userID && d.Checksum == checksum {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (f *fakeDocumentStore) ListByUserID(userID uuid.UUID) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Document
	for _, d := range f.documents {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeDocumentStore) CountByUserIDAndIDs(userID uuid.UUID, ids []uuid.UUID) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, id := range ids {
		if d, ok := f.documents[id]; ok && d.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (f *fakeDocumentStore) DeleteByIDAndUserID(id, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.documents[id]; ok && d.UserID == userID {
		delete(f.documents, id)
	}
	return nil
}

// fakeLLM returns canned responses and records prompts for assertions.
type fakeLLM struct {
	mu            sync.Mutex
	chatResult    *ai.ChatResult
	chatErr       error
	generateText  string
	generateErr   error
	embedErr      error
	lastChat      []ai.ChatMessage
	generateCalls int
}

func (f *fakeLLM) Chat(_ context.Context, _ ai.Config, messages []ai.ChatMessage) (*ai.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastChat = append([]ai.ChatMessage(nil), messages...)
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	if f.chatResult != nil {
		return f.chatResult, nil
	}
	return &ai.ChatResult{Content: "fake answer", EvalCount: 7}, nil
}

func (f *fakeLLM) Generate(_ context.Context, _ ai.Config, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generateCalls++
	if f.generateErr != nil {
		return "", f.generateErr
	}
	if f.generateText != "" {
		return f.generateText, nil
	}
	return "🤖 Fake Chat Title", nil
}

func (f *fakeLLM) Embed(_ context.Context, _ ai.Config, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return embedWord(text), nil
}

func (f *fakeLLM) EmbedBatch(ctx context.Context, cfg ai.Config, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := f.Embed(ctx, cfg, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// embedWord maps text onto a tiny deterministic vector so similarity
// ordering is predictable in tests.
func embedWord(text string) []float32 {
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r % 13)
	}
	return v
}

type fakeVectorIndex struct {
	mu     sync.Mutex
	chunks []vectorstore.Chunk
	hits   []vectorstore.ScoredChunk
}

func (f *fakeVectorIndex) Add(chunks []vectorstore.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeVectorIndex) DeleteByDocumentID(documentID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.chunks[:0]
	for _, c := range f.chunks {
		if c.DocumentID != documentID {
			kept = append(kept, c)
		}
	}
	f.chunks = kept
	return nil
}

func (f *fakeVectorIndex) Search(_ uuid.UUID, _ []uuid.UUID, _ []float32, topK int) ([]vectorstore.ScoredChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if topK > len(f.hits) {
		topK = len(f.hits)
	}
	return f.hits[:topK], nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []model.Message
	err       error
	sink      *fakeMessageStore
}

func (f *fakePublisher) Publish(_ context.Context, msg model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, msg)
	if f.sink != nil {
		f.sink.add(msg)
	}
	return nil
}

type fakeHistoryCache struct {
	mu      sync.Mutex
	history map[uuid.UUID][]model.Message
	dirty   map[uuid.UUID]bool
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{
		history: make(map[uuid.UUID][]model.Message),
		dirty:   make(map[uuid.UUID]bool),
	}
}

func (f *fakeHistoryCache) GetHistory(_ context.Context, id uuid.UUID) ([]model.Message, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs, ok := f.history[id]
	return msgs, ok, nil
}

func (f *fakeHistoryCache) SetHistory(_ context.Context, id uuid.UUID, msgs []model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history[id] = append([]model.Message(nil), msgs...)
	return nil
}

func (f *fakeHistoryCache) DeleteHistory(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.history, id)
	return nil
}

func (f *fakeHistoryCache) MarkDirty(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dirty[id] = true
	return nil
}

func (f *fakeHistoryCache) IsDirty(_ context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty[id], nil
}
