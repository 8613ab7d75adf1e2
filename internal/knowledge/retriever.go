// Package knowledge implements the retrieval collaborator: a vector store of
// agronomy passages queried per expert invocation.
package knowledge

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

// Passage is one retrieved knowledge snippet.
type Passage struct {
	ID         string
	Content    string
	Source     string
	Crop       string
	Similarity float32
}

// Document is a passage to index.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// EmbedFunc produces an embedding for text. It matches the language-model
// client's Embed method so the two can share a provider.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Config holds retriever configuration.
type Config struct {
	PersistPath   string  // empty = in-memory
	Collection    string  // defaults to "agronomy"
	TopK          int     // defaults to 5
	MinSimilarity float32 // defaults to 0.3
}

// Retriever performs similarity search over the passage store.
type Retriever struct {
	db         *chromem.DB
	collection *chromem.Collection
	config     Config
}

// NewRetriever opens (or creates) the passage collection.
func NewRetriever(config Config, embed EmbedFunc) (*Retriever, error) {
	if config.Collection == "" {
		config.Collection = "agronomy"
	}
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.MinSimilarity <= 0 {
		config.MinSimilarity = 0.3
	}

	var db *chromem.DB
	var err error
	if config.PersistPath != "" {
		persistFile := filepath.Join(config.PersistPath, "knowledge.gob")
		db, err = chromem.NewPersistentDB(persistFile, false)
		if err != nil {
			return nil, fmt.Errorf("create persistent DB: %w", err)
		}
	} else {
		db = chromem.NewDB()
	}

	embeddingFunc := chromem.EmbeddingFunc(embed)
	collection, err := db.GetOrCreateCollection(config.Collection, nil, embeddingFunc)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	return &Retriever{db: db, collection: collection, config: config}, nil
}

// Add indexes documents.
func (r *Retriever) Add(ctx context.Context, docs []Document) error {
	for _, doc := range docs {
		err := r.collection.AddDocument(ctx, chromem.Document{
			ID:       doc.ID,
			Content:  doc.Content,
			Metadata: doc.Metadata,
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}
	return nil
}

// Count returns the number of indexed documents.
func (r *Retriever) Count() int {
	return r.collection.Count()
}

// Retrieve returns up to k passages relevant to query. k <= 0 uses the
// configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]Passage, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	if k <= 0 {
		k = r.config.TopK
	}
	if count := r.collection.Count(); count < k {
		if count == 0 {
			return nil, nil
		}
		k = count
	}

	results, err := r.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}

	passages := make([]Passage, 0, len(results))
	for _, res := range results {
		if res.Similarity < r.config.MinSimilarity {
			continue
		}
		passages = append(passages, Passage{
			ID:         res.ID,
			Content:    res.Content,
			Source:     res.Metadata["source"],
			Crop:       res.Metadata["crop"],
			Similarity: res.Similarity,
		})
	}
	return passages, nil
}

// FormatCompact renders passages for attachment to an expert prompt.
func FormatCompact(passages []Passage) string {
	if len(passages) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, p := range passages {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		if p.Source != "" {
			sb.WriteString(fmt.Sprintf("[%s] ", p.Source))
		}
		sb.WriteString(strings.TrimSpace(p.Content))
	}
	return sb.String()
}
