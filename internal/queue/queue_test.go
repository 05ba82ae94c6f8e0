package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"crm_syncer/internal/domain"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]domain.ActionEvent
	err     error
}

func (s *recordingSink) Accept(_ context.Context, batch []domain.ActionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *recordingSink) sizes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.batches))
	for i, b := range s.batches {
		out[i] = len(b)
	}
	return out
}

type QueueSuite struct {
	suite.Suite
	ctx    context.Context
	sink   *recordingSink
	logger *slog.Logger
}

func (s *QueueSuite) SetupTest() {
	s.ctx = context.Background()
	s.sink = &recordingSink{}
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestQueueSuite(t *testing.T) {
	suite.Run(t, new(QueueSuite))
}

func event(i int) domain.ActionEvent {
	return domain.ActionEvent{HubID: "hub-1", ActionName: "Contact Created", Identity: strconv.Itoa(i)}
}

func (s *QueueSuite) TestFlushOnThreshold() {
	q := New(s.sink, 2000, s.logger)

	for i := 0; i < 2001; i++ {
		q.Push(s.ctx, event(i))
	}
	s.Equal(0, q.Len())

	s.NoError(q.Drain(s.ctx))
	s.Equal([]int{2001}, s.sink.sizes())
}

func (s *QueueSuite) TestDrainFlushesRemainder() {
	q := New(s.sink, 2000, s.logger)

	for i := 0; i < 1999; i++ {
		q.Push(s.ctx, event(i))
	}
	s.Empty(s.sink.sizes())

	s.NoError(q.Drain(s.ctx))
	s.Equal([]int{1999}, s.sink.sizes())

	s.NoError(q.Drain(s.ctx))
	s.Equal([]int{1999}, s.sink.sizes(), "empty drain must not call the sink")
}

func (s *QueueSuite) TestEveryEventDeliveredOnce() {
	q := New(s.sink, 10, s.logger)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				q.Push(s.ctx, event(w*1000+i))
			}
		}()
	}
	wg.Wait()
	s.NoError(q.Drain(s.ctx))

	seen := make(map[string]int)
	s.sink.mu.Lock()
	for _, b := range s.sink.batches {
		for _, ev := range b {
			seen[ev.Identity]++
		}
	}
	s.sink.mu.Unlock()

	s.Len(seen, 1000)
	for id, n := range seen {
		s.Equal(1, n, id)
	}
}

func (s *QueueSuite) TestBatchNotMutatedAfterFlush() {
	q := New(s.sink, 2, s.logger)

	for i := 0; i < 3; i++ {
		q.Push(s.ctx, event(i))
	}
	s.NoError(q.Drain(s.ctx))
	for i := 3; i < 5; i++ {
		q.Push(s.ctx, event(i))
	}
	s.NoError(q.Drain(s.ctx))

	s.sink.mu.Lock()
	defer s.sink.mu.Unlock()
	s.Require().Len(s.sink.batches, 2)
	s.Equal("0", s.sink.batches[0][0].Identity)
	s.Equal("2", s.sink.batches[0][2].Identity)
	s.Equal("3", s.sink.batches[1][0].Identity)
}

type slowSink struct {
	recordingSink
	active    atomic.Int32
	maxActive atomic.Int32
}

func (s *slowSink) Accept(ctx context.Context, batch []domain.ActionEvent) error {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		m := s.maxActive.Load()
		if n <= m || s.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(time.Millisecond)
	return s.recordingSink.Accept(ctx, batch)
}

func (s *QueueSuite) TestBatchesReachSinkInPushOrder() {
	sink := &slowSink{}
	q := New(sink, 2, s.logger)

	for i := 0; i < 60; i++ {
		q.Push(s.ctx, event(i))
	}
	s.NoError(q.Drain(s.ctx))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	next := 0
	for _, b := range sink.batches {
		for _, ev := range b {
			s.Equal(strconv.Itoa(next), ev.Identity)
			next++
		}
	}
	s.Equal(60, next)
	s.Equal(int32(1), sink.maxActive.Load())
}

func TestQueue_DrainReportsSinkErrors(t *testing.T) {
	sink := &recordingSink{err: errors.New("broker down")}
	q := New(sink, 1, slog.New(slog.NewTextHandler(io.Discard, nil)))

	q.Push(context.Background(), event(1))
	q.Push(context.Background(), event(2))
	q.Push(context.Background(), event(3))

	err := q.Drain(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
	assert.Equal(t, []int{2, 1}, sink.sizes())

	assert.NoError(t, q.Drain(context.Background()))
}
