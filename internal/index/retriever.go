package index

import (
	"context"
	"fmt"
	"time"

	"github.com/ericyu4real/mscac-chatbot/internal/llm"
	"github.com/ericyu4real/mscac-chatbot/pkg/utils"
	"github.com/sirupsen/logrus"
)

// ResultCache stores retrieval results keyed by normalized question.
type ResultCache interface {
	CacheRetrieval(ctx context.Context, key string, results interface{}, expiration time.Duration) error
	GetCachedRetrieval(ctx context.Context, key string, result interface{}) error
}

// Retriever embeds a question and returns its nearest fragments.
type Retriever struct {
	embedder llm.Embedder
	index    Index
	cache    ResultCache
	cacheTTL time.Duration
	logger   *logrus.Logger
}

func NewRetriever(embedder llm.Embedder, idx Index, logger *logrus.Logger) *Retriever {
	return &Retriever{
		embedder: embedder,
		index:    idx,
		logger:   logger,
	}
}

// WithCache enables result caching; a nil cache leaves it disabled.
func (r *Retriever) WithCache(cache ResultCache, ttl time.Duration) *Retriever {
	r.cache = cache
	r.cacheTTL = ttl
	return r
}

func (r *Retriever) SimilaritySearch(ctx context.Context, question string, k int) ([]Fragment, error) {
	key := fmt.Sprintf("%d:%s", k, utils.NormalizedHash(question))

	if r.cache != nil {
		var cached []Fragment
		if err := r.cache.GetCachedRetrieval(ctx, key, &cached); err == nil {
			r.logger.WithField("fragments", len(cached)).Debug("Retrieval served from cache")
			return cached, nil
		}
	}

	vector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}

	fragments, err := r.index.Search(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"k":         k,
		"fragments": len(fragments),
	}).Debug("Retrieved fragments")

	if r.cache != nil {
		if err := r.cache.CacheRetrieval(ctx, key, fragments, r.cacheTTL); err != nil {
			r.logger.WithError(err).Warn("Failed to cache retrieval results")
		}
	}

	return fragments, nil
}

func (r *Retriever) IndexSize() int { return r.index.Len() }
