package vectorstore

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
)

// Chunk is one embedded slice of a document, persisted on disk together with
// the metadata retrieval filters on.
type Chunk struct {
	ID         string `badgerhold:"key"`
	UserID     uuid.UUID
	DocumentID uuid.UUID `badgerholdIndex:"DocumentID"`
	FileName   string
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredChunk pairs a retrieved chunk with its similarity to the query.
type ScoredChunk struct {
	Chunk Chunk
	Score float32
}

// Store is the embedded vector store persisted under the configured
// persistence directory. It fills the role ChromaDB plays in the deployment
// contract: chunk embeddings with per-user collections and document filters.
type Store struct {
	store *badgerhold.Store
}

func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create vector store directory failed: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Options = badger.DefaultOptions(dir).WithLogger(nil)

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open vector store failed: %w", err)
	}
	return &Store{store: store}, nil
}

func (s *Store) Close() error {
	return s.store.Close()
}

// Ping verifies the underlying database still accepts reads.
func (s *Store) Ping() error {
	db := s.store.Badger()
	if db.IsClosed() {
		return errors.New("vector store closed")
	}
	return db.View(func(*badger.Txn) error { return nil })
}

// Add persists chunks for a document.
func (s *Store) Add(chunks []Chunk) error {
	for i := range chunks {
		if chunks[i].ID == "" {
			chunks[i].ID = uuid.NewString()
		}
		if chunks[i].CreatedAt.IsZero() {
			chunks[i].CreatedAt = time.Now()
		}
		if err := s.store.Upsert(chunks[i].ID, &chunks[i]); err != nil {
			return fmt.Errorf("store chunk failed: %w", err)
		}
	}
	return nil
}

// DeleteByDocumentID removes every chunk belonging to the document.
func (s *Store) DeleteByDocumentID(documentID uuid.UUID) error {
	if err := s.store.DeleteMatching(&Chunk{}, badgerhold.Where("DocumentID").Eq(documentID).Index("DocumentID")); err != nil {
		return fmt.Errorf("delete chunks failed: %w", err)
	}
	return nil
}

// Search returns the top-k chunks owned by the user within the given
// documents, ranked by cosine similarity to the query embedding.
func (s *Store) Search(userID uuid.UUID, documentIDs []uuid.UUID, query []float32, topK int) ([]ScoredChunk, error) {
	if topK <= 0 || len(query) == 0 || len(documentIDs) == 0 {
		return nil, nil
	}

	allowed := make(map[uuid.UUID]bool, len(documentIDs))
	for _, id := range documentIDs {
		allowed[id] = true
	}

	var candidates []Chunk
	if err := s.store.Find(&candidates, badgerhold.Where("UserID").Eq(userID)); err != nil {
		return nil, fmt.Errorf("query chunks failed: %w", err)
	}

	scored := make([]ScoredChunk, 0, len(candidates))
	for _, c := range candidates {
		if !allowed[c.DocumentID] {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: c, Score: cosineSimilarity(query, c.Embedding)})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if topK > len(scored) {
		topK = len(scored)
	}
	return scored[:topK], nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
