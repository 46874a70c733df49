package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"homeai/internal/ai"
	"homeai/internal/model"
	"homeai/internal/pkg/logging"
	"homeai/internal/vectorstore"
)

const retrievalTopK = 3

const assistantSystemPrompt = "You are Home AI assistant. Your job is to assist house members for question-answering tasks. " +
	"Your native language is English, but you can speak other languages too."

var (
	ErrConversationNotFound = errors.New("conversation not found or closed")
	ErrDocumentNotFound     = errors.New("one or more documents does not exist")
	ErrInvalidDocumentID    = errors.New("invalid document id format")
	ErrMessageEmpty         = errors.New("message content is empty")
	ErrMessageEnqueue       = errors.New("message enqueue failed")
	ErrLLMFailure           = errors.New("failed to generate AI response")
)

type ConversationStore interface {
	Create(conversation *model.Conversation) error
	GetByID(id uuid.UUID) (*model.Conversation, error)
	GetByIDAndUserID(id, userID uuid.UUID) (*model.Conversation, error)
	ListByUserID(userID uuid.UUID) ([]model.Conversation, error)
	Update(conversation *model.Conversation) error
	DeleteByIDAndUserID(id, userID uuid.UUID) error
	ListByUserIDWithDocument(userID, documentID uuid.UUID) ([]model.Conversation, error)
}

type MessageStore interface {
	ListByConversationID(conversationID uuid.UUID, limit int) ([]model.Message, error)
	DeleteByConversationID(conversationID uuid.UUID) error
}

// LLMClient abstracts the Ollama client for the services that prompt it.
type LLMClient interface {
	Chat(ctx context.Context, cfg ai.Config, messages []ai.ChatMessage) (*ai.ChatResult, error)
	Generate(ctx context.Context, cfg ai.Config, prompt string) (string, error)
	Embed(ctx context.Context, cfg ai.Config, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, cfg ai.Config, texts []string) ([][]float32, error)
}

// VectorIndex abstracts the embedded vector store.
type VectorIndex interface {
	Add(chunks []vectorstore.Chunk) error
	DeleteByDocumentID(documentID uuid.UUID) error
	Search(userID uuid.UUID, documentIDs []uuid.UUID, query []float32, topK int) ([]vectorstore.ScoredChunk, error)
}

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, conversationID uuid.UUID) ([]model.Message, bool, error)
	SetHistory(ctx context.Context, conversationID uuid.UUID, messages []model.Message) error
	DeleteHistory(ctx context.Context, conversationID uuid.UUID) error
	MarkDirty(ctx context.Context, conversationID uuid.UUID) error
	IsDirty(ctx context.Context, conversationID uuid.UUID) (bool, error)
}

type ConversationService struct {
	conversations ConversationStore
	messages      MessageStore
	documents     DocumentStore
	publisher     AsyncMessagePublisher
	historyCache  HistoryCache
	llm           LLMClient
	vectors       VectorIndex
	llmConfig     ai.Config
}

func NewConversationService(
	conversations ConversationStore,
	messages MessageStore,
	documents DocumentStore,
	publisher AsyncMessagePublisher,
	historyCache HistoryCache,
	llm LLMClient,
	vectors VectorIndex,
	llmConfig ai.Config,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		messages:      messages,
		documents:     documents,
		publisher:     publisher,
		historyCache:  historyCache,
		llm:           llm,
		vectors:       vectors,
		llmConfig:     llmConfig,
	}
}

func (s *ConversationService) Create(userID uuid.UUID) (*model.Conversation, error) {
	conversation := &model.Conversation{
		ID:        uuid.New(),
		UserID:    userID,
		Status:    model.ConversationActive,
		StartTime: time.Now().UTC(),
	}
	conversation.SetSelectedDocumentIDs(nil)
	if err := s.conversations.Create(conversation); err != nil {
		return nil, err
	}
	return conversation, nil
}

// Get returns the conversation when the caller owns it or is an admin.
func (s *ConversationService) Get(callerID uuid.UUID, isAdmin bool, id uuid.UUID) (*model.Conversation, error) {
	conversation, err := s.conversations.GetByID(id)
	if err != nil {
		return nil, err
	}
	if conversation == nil || (!isAdmin && conversation.UserID != callerID) {
		return nil, ErrConversationNotFound
	}
	return conversation, nil
}

func (s *ConversationService) ListMine(userID uuid.UUID) ([]model.Conversation, error) {
	return s.conversations.ListByUserID(userID)
}

// Delete removes the conversation together with its messages.
func (s *ConversationService) Delete(userID, id uuid.UUID) error {
	conversation, err := s.conversations.GetByIDAndUserID(id, userID)
	if err != nil {
		return err
	}
	if conversation == nil {
		return ErrConversationNotFound
	}
	if err := s.messages.DeleteByConversationID(id); err != nil {
		return err
	}
	if err := s.conversations.DeleteByIDAndUserID(id, userID); err != nil {
		return err
	}
	if s.historyCache != nil {
		_ = s.historyCache.DeleteHistory(context.Background(), id)
	}
	return nil
}

func (s *ConversationService) GetMessages(ctx context.Context, userID, id uuid.UUID, limit int) ([]model.Message, error) {
	conversation, err := s.conversations.GetByIDAndUserID(id, userID)
	if err != nil {
		return nil, err
	}
	if conversation == nil {
		return nil, ErrConversationNotFound
	}

	if s.historyCache != nil {
		dirty, err := s.historyCache.IsDirty(ctx, id)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.historyCache.GetHistory(ctx, id); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	// Cache the full history regardless of limit so a later unlimited read
	// served from cache is not stuck with a truncated list.
	messages, err := s.messages.ListByConversationID(id, 0)
	if err != nil {
		return nil, err
	}
	if s.historyCache != nil {
		if dirty, dirtyErr := s.historyCache.IsDirty(ctx, id); dirtyErr == nil && !dirty {
			_ = s.historyCache.SetHistory(ctx, id, messages)
		}
	}
	return trimMessages(messages, limit), nil
}

type ContinueInput struct {
	UserID         uuid.UUID
	ConversationID uuid.UUID
	Message        string
	// SelectedDocuments replaces the conversation's pinned document set when
	// non-empty; raw strings so malformed ids can be rejected explicitly.
	SelectedDocuments []string
}

// Continue runs one exchange: resolve the retrieval scope, prompt the model
// with the conversation history, enqueue both messages for persistence, and
// return the assistant reply.
func (s *ConversationService) Continue(ctx context.Context, input ContinueInput) (*model.Message, error) {
	content := strings.TrimSpace(input.Message)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	conversation, err := s.conversations.GetByIDAndUserID(input.ConversationID, input.UserID)
	if err != nil {
		return nil, err
	}
	if conversation == nil || conversation.Status != model.ConversationActive {
		return nil, ErrConversationNotFound
	}

	selection, err := s.resolveSelection(conversation, input)
	if err != nil {
		return nil, err
	}

	systemPrompt, err := s.buildSystemPrompt(ctx, input.UserID, selection, content)
	if err != nil {
		return nil, err
	}

	history, err := s.messages.ListByConversationID(input.ConversationID, 0)
	if err != nil {
		return nil, err
	}

	promptMessages := make([]ai.ChatMessage, 0, len(history)+2)
	promptMessages = append(promptMessages, ai.ChatMessage{Role: "system", Content: systemPrompt})
	for _, msg := range history {
		role := "user"
		if msg.FromAssistant() {
			role = "assistant"
		}
		promptMessages = append(promptMessages, ai.ChatMessage{Role: role, Content: msg.Content})
	}
	promptMessages = append(promptMessages, ai.ChatMessage{Role: "user", Content: content})

	start := time.Now()
	result, err := s.llm.Chat(ctx, s.llmConfig, promptMessages)
	if err != nil {
		logging.L().Errorw("llm chat failed", "conversation_id", input.ConversationID, "error", err)
		return nil, ErrLLMFailure
	}
	responseTime := time.Since(start).Seconds()

	answer := strings.TrimSpace(result.Content)
	tokens := result.EvalCount
	if tokens == 0 {
		tokens = len(strings.Fields(answer))
	}

	now := time.Now().UTC()
	userMessage := model.Message{
		ID:             uuid.New(),
		ConversationID: input.ConversationID,
		SenderID:       input.UserID,
		Content:        content,
		LLMModel:       s.llmConfig.Model,
		CreatedAt:      now,
	}
	assistantMessage := model.Message{
		ID:              uuid.New(),
		ConversationID:  input.ConversationID,
		SenderID:        model.AssistantID,
		Content:         answer,
		LLMModel:        s.llmConfig.Model,
		TokensGenerated: tokens,
		ResponseTime:    responseTime,
		CreatedAt:       now.Add(time.Millisecond),
	}

	if s.publisher == nil {
		return nil, ErrMessageEnqueue
	}
	if s.historyCache != nil {
		_ = s.historyCache.MarkDirty(ctx, input.ConversationID)
		_ = s.historyCache.DeleteHistory(ctx, input.ConversationID)
	}
	if err := s.publisher.Publish(ctx, userMessage); err != nil {
		return nil, ErrMessageEnqueue
	}
	if err := s.publisher.Publish(ctx, assistantMessage); err != nil {
		return nil, ErrMessageEnqueue
	}

	if conversation.Title == "" {
		s.generateTitle(ctx, conversation, content, answer)
	}

	return &assistantMessage, nil
}

// resolveSelection validates a new document selection and stores it on the
// conversation, or falls back to the previously pinned set.
func (s *ConversationService) resolveSelection(conversation *model.Conversation, input ContinueInput) ([]uuid.UUID, error) {
	if len(input.SelectedDocuments) == 0 {
		return conversation.SelectedDocumentIDs(), nil
	}

	ids := make([]uuid.UUID, 0, len(input.SelectedDocuments))
	for _, raw := range input.SelectedDocuments {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, ErrInvalidDocumentID
		}
		ids = append(ids, id)
	}

	owned, err := s.documents.CountByUserIDAndIDs(input.UserID, ids)
	if err != nil {
		return nil, err
	}
	if owned != int64(len(ids)) {
		return nil, ErrDocumentNotFound
	}

	conversation.SetSelectedDocumentIDs(ids)
	if err := s.conversations.Update(conversation); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *ConversationService) buildSystemPrompt(ctx context.Context, userID uuid.UUID, selection []uuid.UUID, question string) (string, error) {
	if len(selection) == 0 {
		return assistantSystemPrompt, nil
	}

	queryEmbedding, err := s.llm.Embed(ctx, s.llmConfig, question)
	if err != nil {
		logging.L().Errorw("query embedding failed", "error", err)
		return assistantSystemPrompt, nil
	}

	scored, err := s.vectors.Search(userID, selection, queryEmbedding, retrievalTopK)
	if err != nil {
		logging.L().Errorw("vector search failed", "error", err)
		return assistantSystemPrompt, nil
	}
	if len(scored) == 0 {
		return assistantSystemPrompt, nil
	}

	contents := make([]string, len(scored))
	for i, sc := range scored {
		contents[i] = sc.Chunk.Content
	}
	return assistantSystemPrompt +
		"\nUse the following pieces of retrieved context to answer the question. If you don't know the answer, say that you don't know.\n\nDocuments:\n" +
		strings.Join(contents, "\n\n"), nil
}

func (s *ConversationService) generateTitle(ctx context.Context, conversation *model.Conversation, userMessage, aiResponse string) {
	prompt := "Generate a short 3-4 word title with an emoji at the start of the title for a conversation based on the following messages. Print ONLY the title.\n" +
		"User: " + userMessage + "\n" +
		"AI: " + aiResponse + "\n" +
		"Title:"
	title, err := s.llm.Generate(ctx, s.llmConfig, prompt)
	if err != nil {
		logging.L().Errorw("title generation failed", "conversation_id", conversation.ID, "error", err)
		return
	}

	words := strings.Fields(strings.TrimSpace(title))
	if len(words) > 4 {
		words = words[:4]
	}
	conversation.Title = strings.Join(words, " ")
	if err := s.conversations.Update(conversation); err != nil {
		logging.L().Errorw("store conversation title failed", "conversation_id", conversation.ID, "error", err)
	}
}

const maxMessageLimit = 500

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}
