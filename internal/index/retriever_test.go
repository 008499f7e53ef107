package index

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vector []float32
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return f.vector, f.err
}

type mapCache struct {
	data map[string][]byte
}

func (m *mapCache) CacheRetrieval(ctx context.Context, key string, results interface{}, expiration time.Duration) error {
	b, err := json.Marshal(results)
	if err != nil {
		return err
	}
	m.data[key] = b
	return nil
}

func (m *mapCache) GetCachedRetrieval(ctx context.Context, key string, result interface{}) error {
	b, ok := m.data[key]
	if !ok {
		return errors.New("miss")
	}
	return json.Unmarshal(b, result)
}

func TestRetriever_SimilaritySearch(t *testing.T) {
	idx, err := NewLocal(sampleFile())
	require.NoError(t, err)

	emb := &fakeEmbedder{vector: []float32{1, 0}}
	r := NewRetriever(emb, idx, logrus.New())

	frags, err := r.SimilaritySearch(context.Background(), "When is the deadline?", 1)
	require.NoError(t, err)
	require.Len(t, frags, 1)
	assert.Equal(t, "Applications close in January.", frags[0].Content)
	assert.Equal(t, 3, r.IndexSize())
}

func TestRetriever_EmbeddingFailure(t *testing.T) {
	idx, err := NewLocal(sampleFile())
	require.NoError(t, err)

	r := NewRetriever(&fakeEmbedder{err: errors.New("provider down")}, idx, logrus.New())

	_, err = r.SimilaritySearch(context.Background(), "q", 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding question")
}

func TestRetriever_UsesCache(t *testing.T) {
	idx, err := NewLocal(sampleFile())
	require.NoError(t, err)

	emb := &fakeEmbedder{vector: []float32{0, 1}}
	r := NewRetriever(emb, idx, logrus.New()).WithCache(&mapCache{data: map[string][]byte{}}, time.Minute)

	first, err := r.SimilaritySearch(context.Background(), "Course timetable?", 1)
	require.NoError(t, err)
	second, err := r.SimilaritySearch(context.Background(), "  course TIMETABLE? ", 1)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, emb.calls)
}
