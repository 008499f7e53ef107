package messagelog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_AppendAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "messages.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	entries, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, store.Append(context.Background(), Entry{Datetime: "01/01/2024 09:00:00 AM", Message: "first", ClientAddress: "1.1.1.1"}))
	require.NoError(t, store.Append(context.Background(), Entry{Datetime: "01/01/2024 09:01:00 AM", Message: "second", ClientAddress: "2.2.2.2"}))

	entries, err = store.Load()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "second", entries[1].Message)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"datetime": "01/01/2024 09:00:00 AM"`)
	assert.Contains(t, string(raw), `"message": "first"`)
}

func TestFileStore_ConcurrentAppendsLoseNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	log, err := New(store, "America/Toronto", logrus.New())
	require.NoError(t, err)

	const m = 50
	var wg sync.WaitGroup
	for i := 0; i < m; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.True(t, log.Record(context.Background(), "10.0.0.1", fmt.Sprintf("User: q%d; Bot: a%d", i, i)))
		}(i)
	}
	wg.Wait()

	entries, err := store.Load()
	require.NoError(t, err)
	require.Len(t, entries, m)

	seen := make(map[string]bool, m)
	for _, e := range entries {
		seen[e.Message] = true
		assert.Regexp(t, timestampPattern, e.Datetime)
	}
	assert.Len(t, seen, m)
}

func TestFileStore_RefusesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "messages.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	err = store.Append(context.Background(), Entry{Datetime: "d", Message: "m"})
	require.Error(t, err)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(raw))
}

func TestFileStore_UnwritableDirectory(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "messages.json"))
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	log, err := New(store, "America/Toronto", logrus.New())
	require.NoError(t, err)

	assert.False(t, log.Record(context.Background(), "10.0.0.1", "User: a; Bot: b"))
	assert.Error(t, store.Ping(context.Background()))
}
