package index

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/sirupsen/logrus"
)

const (
	payloadContentKey = "content"
	countTimeout      = 5 * time.Second
)

type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantIndex searches a Qdrant collection whose points carry the fragment
// text under "content" and string metadata under the remaining keys.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	logger     *logrus.Logger

	// size is the last observed point count.
	size atomic.Int64
}

func NewQdrant(ctx context.Context, cfg QdrantConfig, logger *logrus.Logger) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	q := &QdrantIndex{client: client, collection: cfg.Collection, logger: logger}

	size, err := q.count(ctx)
	if err != nil {
		client.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"collection": cfg.Collection,
		"points":     size,
	}).Info("Connected to qdrant index")

	return q, nil
}

func (q *QdrantIndex) Search(ctx context.Context, vector []float32, k int) ([]Fragment, error) {
	if k <= 0 {
		return []Fragment{}, nil
	}

	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	out := make([]Fragment, 0, len(points))
	for _, p := range points {
		frag := Fragment{Score: float64(p.GetScore()), Metadata: map[string]string{}}
		for key, value := range p.GetPayload() {
			if key == payloadContentKey {
				frag.Content = value.GetStringValue()
				continue
			}
			frag.Metadata[key] = value.GetStringValue()
		}
		out = append(out, frag)
	}
	return out, nil
}

// Upsert creates the collection on first use and stores items as points
// numbered from offset.
func (q *QdrantIndex) Upsert(ctx context.Context, items []StoredItem, offset uint64) error {
	if len(items) == 0 {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(len(items[0].Embedding)),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}
	}

	points := make([]*qdrant.PointStruct, 0, len(items))
	for i, item := range items {
		payload := map[string]any{payloadContentKey: item.Content, "id": item.ID}
		for key, value := range item.Metadata {
			payload[key] = value
		}
		values, err := qdrant.TryValueMap(payload)
		if err != nil {
			return fmt.Errorf("invalid payload for %s: %w", item.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(offset + uint64(i)),
			Vectors: qdrant.NewVectors(item.Embedding...),
			Payload: values,
		})
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	q.size.Add(int64(len(points)))
	return nil
}

// Reset drops the collection so a rebuild leaves no stale points behind.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if !exists {
		return nil
	}
	if err := q.client.DeleteCollection(ctx, q.collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	q.size.Store(0)
	return nil
}

// count asks qdrant for the exact number of points. A missing collection
// counts as empty.
func (q *QdrantIndex) count(ctx context.Context) (int, error) {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return 0, fmt.Errorf("failed to reach qdrant: %w", err)
	}
	if !exists {
		q.size.Store(0)
		return 0, nil
	}
	n, err := q.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: q.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count qdrant points: %w", err)
	}
	q.size.Store(int64(n))
	return int(n), nil
}

// Len counts the collection on every call, so a rebuild by the indexer is
// visible without a restart. When qdrant is unreachable the last observed
// count is returned.
func (q *QdrantIndex) Len() int {
	ctx, cancel := context.WithTimeout(context.Background(), countTimeout)
	defer cancel()

	n, err := q.count(ctx)
	if err != nil {
		q.logger.WithError(err).Warn("Falling back to last known qdrant point count")
		return int(q.size.Load())
	}
	return n
}

func (q *QdrantIndex) Close() error { return q.client.Close() }
