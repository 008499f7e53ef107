package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct{ err error }

func (f fakeStore) Ping(ctx context.Context) error { return f.err }

type switchStore struct {
	mu  sync.Mutex
	err error
}

func (s *switchStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *switchStore) fail(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

type fakeRedis struct{ err error }

func (f fakeRedis) PingRedis() error { return f.err }

type fakeIndex struct{ size int }

func (f fakeIndex) IndexSize() int { return f.size }

func TestCheckAll_Healthy(t *testing.T) {
	h := NewHealthChecker(fakeStore{}, fakeRedis{}, fakeIndex{size: 10}, logrus.New())

	res := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Len(t, res.Services, 3)

	last := h.Last()
	require.NotNil(t, last)
	assert.Equal(t, StatusHealthy, last.Status)
}

func TestCheckAll_WithoutRedis(t *testing.T) {
	h := NewHealthChecker(fakeStore{}, nil, fakeIndex{size: 1}, logrus.New())

	res := h.CheckAll(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Len(t, res.Services, 2)
}

func TestCheckAll_RedisDownDegrades(t *testing.T) {
	h := NewHealthChecker(fakeStore{}, fakeRedis{err: errors.New("refused")}, fakeIndex{size: 1}, logrus.New())

	res := h.CheckAll(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
}

func TestCheckAll_StoreDownIsUnhealthy(t *testing.T) {
	h := NewHealthChecker(fakeStore{err: errors.New("no route to host")}, fakeRedis{}, fakeIndex{size: 1}, logrus.New())

	res := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "no route to host", res.Services[0].Error)
}

func TestCheckAll_EmptyIndexIsUnhealthy(t *testing.T) {
	h := NewHealthChecker(fakeStore{}, nil, fakeIndex{}, logrus.New())

	res := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
}

func TestPeriodicHealthCheck_LogsStatusChange(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := &switchStore{}
	h := NewHealthChecker(store, nil, fakeIndex{size: 1}, logger)

	assert.Nil(t, h.Last())
	require.Equal(t, StatusHealthy, h.CheckAll(context.Background()).Status)

	store.fail(errors.New("connection reset"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.PeriodicHealthCheck(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		for _, e := range hook.AllEntries() {
			if e.Message == "Health status changed" {
				return e.Data["previous"] == StatusHealthy && e.Data["status"] == StatusUnhealthy
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, StatusUnhealthy, h.Last().Status)
}
