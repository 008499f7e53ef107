package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFile() File {
	return File{
		Version:        1,
		EmbeddingModel: "test",
		Dimension:      2,
		Entries: []StoredItem{
			{ID: "deadline", Content: "Applications close in January.", Embedding: []float32{1, 0}, Metadata: map[string]string{"source": "admissions"}},
			{ID: "courses", Content: "Course timetable is online.", Embedding: []float32{0, 1}},
			{ID: "mixed", Content: "Internship starts in May.", Embedding: []float32{0.7, 0.7}},
		},
	}
}

func TestLocalIndex_SearchOrdersBySimilarity(t *testing.T) {
	idx, err := NewLocal(sampleFile())
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())

	frags, err := idx.Search(context.Background(), []float32{0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, frags, 2)
	assert.Equal(t, "Applications close in January.", frags[0].Content)
	assert.Equal(t, "admissions", frags[0].Metadata["source"])
	assert.Equal(t, "Internship starts in May.", frags[1].Content)
	assert.GreaterOrEqual(t, frags[0].Score, frags[1].Score)
}

func TestLocalIndex_KLargerThanIndex(t *testing.T) {
	idx, err := NewLocal(sampleFile())
	require.NoError(t, err)

	frags, err := idx.Search(context.Background(), []float32{0, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, frags, 3)
}

func TestLocalIndex_DimensionMismatch(t *testing.T) {
	idx, err := NewLocal(sampleFile())
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNewLocal_RejectsBadEntries(t *testing.T) {
	f := sampleFile()
	f.Entries[1].Embedding = []float32{1}
	_, err := NewLocal(f)
	assert.Error(t, err)

	f = sampleFile()
	f.Version = 99
	_, err = NewLocal(f)
	assert.Error(t, err)
}

func TestWriteAndLoadLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.json")

	f := sampleFile()
	f.Version = 0
	require.NoError(t, WriteLocal(path, f))

	idx, err := LoadLocal(path)
	require.NoError(t, err)
	assert.Equal(t, 3, idx.Len())
}

func TestLoadLocal_MissingFile(t *testing.T) {
	_, err := LoadLocal(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
