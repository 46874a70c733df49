package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"homeai/internal/ai"
	"homeai/internal/model"
	"homeai/internal/pkg/logging"
	"homeai/internal/pkg/pdfextract"
	"homeai/internal/vectorstore"
)

const (
	chunkSize          = 500
	chunkOverlap       = 200
	embeddingBatchSize = 10
)

var (
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrDocumentIngest  = errors.New("failed to process documents")
	ErrNoFiles         = errors.New("no files provided")
)

type DocumentStore interface {
	Create(document *model.Document) error
	GetByID(id uuid.UUID) (*model.Document, error)
	GetByIDAndUserID(id, userID uuid.UUID) (*model.Document, error)
	GetByUserIDAndChecksum(userID uuid.UUID, checksum string) (*model.Document, error)
	ListByUserID(userID uuid.UUID) ([]model.Document, error)
	CountByUserIDAndIDs(userID uuid.UUID, ids []uuid.UUID) (int64, error)
	DeleteByIDAndUserID(id, userID uuid.UUID) error
}

type DocumentService struct {
	documents     DocumentStore
	conversations ConversationStore
	vectors       VectorIndex
	llm           LLMClient
	llmConfig     ai.Config
	documentsDir  string
}

func NewDocumentService(
	documents DocumentStore,
	conversations ConversationStore,
	vectors VectorIndex,
	llm LLMClient,
	llmConfig ai.Config,
	documentsDir string,
) *DocumentService {
	return &DocumentService{
		documents:     documents,
		conversations: conversations,
		vectors:       vectors,
		llm:           llm,
		llmConfig:     llmConfig,
		documentsDir:  documentsDir,
	}
}

// UploadFile is one file from a multipart upload, fully read.
type UploadFile struct {
	Name string
	Data []byte
}

// Upload stores new files (duplicates by per-user checksum are skipped),
// then extracts, chunks, embeds and indexes their text. Returns the stored
// document records; empty when every file was a duplicate.
func (s *DocumentService) Upload(ctx context.Context, userID uuid.UUID, files []UploadFile) ([]model.Document, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	for _, file := range files {
		if !supportedExtension(filepath.Ext(file.Name)) {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(file.Name))
		}
	}

	userDir := filepath.Join(s.documentsDir, userID.String())
	if err := os.MkdirAll(userDir, 0o755); err != nil {
		return nil, fmt.Errorf("create user documents directory failed: %w", err)
	}

	var stored []model.Document
	for _, file := range files {
		sum := sha256.Sum256(file.Data)
		checksum := hex.EncodeToString(sum[:])

		existing, err := s.documents.GetByUserIDAndChecksum(userID, checksum)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			logging.L().Infow("document already exists, skipping upload",
				"user_id", userID, "file_name", file.Name)
			continue
		}

		document := model.Document{
			ID:         uuid.New(),
			UserID:     userID,
			FileName:   file.Name,
			UploadTime: time.Now().UTC(),
			Size:       float64(len(file.Data)) / (1024 * 1024),
			Checksum:   checksum,
		}
		document.FilePath = filepath.Join(userDir, document.ID.String()+"_"+filepath.Base(file.Name))

		if err := os.WriteFile(document.FilePath, file.Data, 0o644); err != nil {
			return nil, fmt.Errorf("write document file failed: %w", err)
		}
		if err := s.documents.Create(&document); err != nil {
			return nil, err
		}
		stored = append(stored, document)
	}

	if len(stored) == 0 {
		return nil, nil
	}

	for i := range stored {
		if err := s.ingest(ctx, &stored[i]); err != nil {
			logging.L().Errorw("document ingest failed",
				"document_id", stored[i].ID, "file_name", stored[i].FileName, "error", err)
			return nil, ErrDocumentIngest
		}
	}
	return stored, nil
}

// ingest extracts the document text, chunks it with overlap, embeds every
// chunk and writes them to the vector store.
func (s *DocumentService) ingest(ctx context.Context, document *model.Document) error {
	data, err := os.ReadFile(document.FilePath)
	if err != nil {
		return fmt.Errorf("read document file failed: %w", err)
	}

	text, err := extractText(document.FileName, data)
	if err != nil {
		return err
	}

	chunks := chunkText(text, chunkSize, chunkOverlap)
	if len(chunks) == 0 {
		return nil
	}

	var embeddings [][]float32
	for i := 0; i < len(chunks); i += embeddingBatchSize {
		end := i + embeddingBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batched, err := s.llm.EmbedBatch(ctx, s.llmConfig, chunks[i:end])
		if err != nil {
			return err
		}
		embeddings = append(embeddings, batched...)
	}
	if len(embeddings) != len(chunks) {
		return errors.New("embedding count mismatch")
	}

	records := make([]vectorstore.Chunk, len(chunks))
	for i := range chunks {
		records[i] = vectorstore.Chunk{
			UserID:     document.UserID,
			DocumentID: document.ID,
			FileName:   document.FileName,
			Content:    chunks[i],
			Embedding:  embeddings[i],
		}
	}
	return s.vectors.Add(records)
}

func (s *DocumentService) ListMine(userID uuid.UUID) ([]model.Document, error) {
	return s.documents.ListByUserID(userID)
}

// Get returns the document when the caller owns it or is an admin.
func (s *DocumentService) Get(callerID uuid.UUID, isAdmin bool, id uuid.UUID) (*model.Document, error) {
	document, err := s.documents.GetByID(id)
	if err != nil {
		return nil, err
	}
	if document == nil || (!isAdmin && document.UserID != callerID) {
		return nil, ErrDocumentNotFound
	}
	return document, nil
}

// Delete removes the stored file, the indexed chunks, the id from any
// conversation selection, and finally the record.
func (s *DocumentService) Delete(userID, id uuid.UUID) error {
	document, err := s.documents.GetByIDAndUserID(id, userID)
	if err != nil {
		return err
	}
	if document == nil {
		return ErrDocumentNotFound
	}

	if err := os.Remove(document.FilePath); err != nil && !os.IsNotExist(err) {
		logging.L().Errorw("remove document file failed", "path", document.FilePath, "error", err)
	}

	if err := s.vectors.DeleteByDocumentID(id); err != nil {
		return err
	}

	conversations, err := s.conversations.ListByUserIDWithDocument(userID, id)
	if err != nil {
		return err
	}
	for i := range conversations {
		remaining := conversations[i].SelectedDocumentIDs()
		filtered := remaining[:0]
		for _, docID := range remaining {
			if docID != id {
				filtered = append(filtered, docID)
			}
		}
		conversations[i].SetSelectedDocumentIDs(filtered)
		if err := s.conversations.Update(&conversations[i]); err != nil {
			return err
		}
	}

	return s.documents.DeleteByIDAndUserID(id, userID)
}

func supportedExtension(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".csv", ".pdf":
		return true
	default:
		return false
	}
}

func extractText(fileName string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".txt", ".md", ".csv":
		return string(data), nil
	case ".pdf":
		text, err := pdfextract.ExtractText(data)
		if err != nil {
			return "", fmt.Errorf("extract pdf text failed: %w", err)
		}
		return text, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFile, filepath.Ext(fileName))
	}
}

// chunkText splits text into overlapping chunks by rune count.
func chunkText(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = chunkSize
	}
	if overlap >= size {
		overlap = size / 2
	}
	var chunks []string
	runes := []rune(text)
	for i := 0; i < len(runes); {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
		i += size - overlap
	}
	return chunks
}
