// Package knowledge — векторный индекс фрагментов руководства по обслуживанию лифтов.
package knowledge

import (
	"context"
	"fmt"
	"os"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"github.com/psds-microservice/field-service/internal/errs"
	"github.com/tmc/langchaingo/embeddings"
)

const collectionName = "manual_kb"

// Fragment — фрагмент руководства. Score заполняется только при поиске.
type Fragment struct {
	ID      string  `yaml:"id" json:"id"`
	Section string  `yaml:"section" json:"section"`
	Title   string  `yaml:"title" json:"title"`
	Content string  `yaml:"content" json:"content"`
	Score   float32 `yaml:"-" json:"score,omitempty"`
}

// Retriever возвращает до k фрагментов, наиболее близких к запросу.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Fragment, error)
}

type Index struct {
	mu  sync.RWMutex
	col *chromem.Collection
}

// NewIndex открывает персистентную коллекцию в dir; пустой dir — индекс в памяти.
func NewIndex(dir string, embed chromem.EmbeddingFunc) (*Index, error) {
	var db *chromem.DB
	if dir == "" {
		db = chromem.NewDB()
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create vector dir: %w", err)
		}
		var err error
		if db, err = chromem.NewPersistentDB(dir, false); err != nil {
			return nil, fmt.Errorf("open vector db: %w", err)
		}
	}
	col, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("collection %s: %w", collectionName, err)
	}
	return &Index{col: col}, nil
}

// EmbeddingFunc адаптирует langchaingo-embedder к chromem.
func EmbeddingFunc(e embeddings.Embedder) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedQuery(ctx, text)
	}
}

// AddFragments добавляет (или перезаписывает по ID) фрагменты.
func (x *Index) AddFragments(ctx context.Context, frags []Fragment) error {
	if len(frags) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(frags))
	for _, f := range frags {
		docs = append(docs, chromem.Document{
			ID:      f.ID,
			Content: f.Content,
			Metadata: map[string]string{
				"section": f.Section,
				"title":   f.Title,
			},
		})
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if err := x.col.AddDocuments(ctx, docs, 4); err != nil {
		return fmt.Errorf("index fragments: %w", err)
	}
	return nil
}

func (x *Index) Retrieve(ctx context.Context, query string, k int) ([]Fragment, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	n := x.col.Count()
	if n == 0 || k <= 0 {
		return []Fragment{}, nil
	}
	if k > n {
		k = n
	}
	res, err := x.col.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, errs.Retrieval(query, err)
	}
	out := make([]Fragment, 0, len(res))
	for _, r := range res {
		out = append(out, Fragment{
			ID:      r.ID,
			Section: r.Metadata["section"],
			Title:   r.Metadata["title"],
			Content: r.Content,
			Score:   r.Similarity,
		})
	}
	return out, nil
}

func (x *Index) Count() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.col.Count()
}
