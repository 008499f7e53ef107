package seeder

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ericyu4real/mscac-chatbot/internal/index"
	"github.com/ericyu4real/mscac-chatbot/internal/llm"
	"github.com/ericyu4real/mscac-chatbot/pkg/utils"
	"github.com/sirupsen/logrus"
)

type BuilderConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// Builder turns crawled documents into embedded index entries
type Builder struct {
	embedder  llm.Embedder
	processor *ContentProcessor
	cfg       BuilderConfig
	logger    *logrus.Logger
}

func NewBuilder(embedder llm.Embedder, processor *ContentProcessor, cfg BuilderConfig, logger *logrus.Logger) *Builder {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkSize < MinChunkSize {
		logger.WithField("chunk_size", cfg.ChunkSize).Warnf("Chunk size raised to %d", MinChunkSize)
		cfg.ChunkSize = MinChunkSize
	}
	return &Builder{embedder: embedder, processor: processor, cfg: cfg, logger: logger}
}

// Build chunks and embeds every document. Identical chunks are stored once.
func (b *Builder) Build(ctx context.Context, docs []Document) ([]index.StoredItem, error) {
	seen := make(map[string]bool)
	var items []index.StoredItem

	for _, doc := range docs {
		chunks := b.processor.SplitIntoChunks(doc.Content, b.cfg.ChunkSize, b.cfg.ChunkOverlap)
		for i, chunk := range chunks {
			id := utils.MD5Hash(chunk)
			if seen[id] {
				continue
			}
			seen[id] = true

			vector, err := b.embedder.Embed(ctx, chunk)
			if err != nil {
				return nil, fmt.Errorf("failed to embed chunk %d of %s: %w", i, doc.Page.Title, err)
			}

			items = append(items, index.StoredItem{
				ID:      id,
				Content: chunk,
				Metadata: map[string]string{
					"title":    doc.Page.Title,
					"source":   doc.Page.URL,
					"chunk":    strconv.Itoa(i),
					"category": b.processor.Categorize(chunk),
				},
				Embedding: vector,
			})
		}

		b.logger.WithFields(logrus.Fields{
			"page":   doc.Page.Title,
			"chunks": len(chunks),
		}).Debug("Document embedded")
	}

	return items, nil
}
