package index

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

const fileFormatVersion = 1

// File is the on-disk layout of a local index.
type File struct {
	Version        int          `json:"version"`
	EmbeddingModel string       `json:"embedding_model"`
	Dimension      int          `json:"dimension"`
	Entries        []StoredItem `json:"entries"`
}

type StoredItem struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Embedding []float32         `json:"embedding"`
}

// LocalIndex holds every embedding in memory and ranks by cosine
// similarity. It is immutable after LoadLocal returns.
type LocalIndex struct {
	dimension int
	items     []StoredItem
	norms     []float64
}

func LoadLocal(path string) (*LocalIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read index file: %w", err)
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode index file: %w", err)
	}
	return NewLocal(f)
}

func NewLocal(f File) (*LocalIndex, error) {
	if f.Version != fileFormatVersion {
		return nil, fmt.Errorf("unsupported index version %d", f.Version)
	}

	idx := &LocalIndex{
		dimension: f.Dimension,
		items:     f.Entries,
		norms:     make([]float64, len(f.Entries)),
	}
	for i, item := range f.Entries {
		if len(item.Embedding) != f.Dimension {
			return nil, fmt.Errorf("entry %q has dimension %d, want %d", item.ID, len(item.Embedding), f.Dimension)
		}
		idx.norms[i] = norm(item.Embedding)
	}
	return idx, nil
}

func (l *LocalIndex) Search(ctx context.Context, vector []float32, k int) ([]Fragment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(l.items) == 0 || k <= 0 {
		return []Fragment{}, nil
	}
	if len(vector) != l.dimension {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vector), l.dimension)
	}

	qNorm := norm(vector)
	type scored struct {
		i     int
		score float64
	}
	scores := make([]scored, len(l.items))
	for i, item := range l.items {
		scores[i] = scored{i: i, score: cosine(item.Embedding, vector, l.norms[i], qNorm)}
	}
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	if k > len(scores) {
		k = len(scores)
	}
	out := make([]Fragment, 0, k)
	for _, s := range scores[:k] {
		item := l.items[s.i]
		out = append(out, Fragment{Content: item.Content, Metadata: item.Metadata, Score: s.score})
	}
	return out, nil
}

func (l *LocalIndex) Len() int { return len(l.items) }

func (l *LocalIndex) Close() error { return nil }

// WriteLocal stores f at path, replacing any previous index atomically.
func WriteLocal(path string, f File) error {
	f.Version = fileFormatVersion
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure index dir: %w", err)
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode index: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return os.Rename(tmp, path)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, aNorm, bNorm float64) float64 {
	if aNorm == 0 || bNorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (aNorm * bNorm)
}
