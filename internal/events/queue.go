package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ListPusher appends values to a named list. *redis.Client satisfies it.
type ListPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

// QueueSinkConfig controls the concurrency characteristics of the sink.
type QueueSinkConfig struct {
	Queue     string
	QueueSize int
	Workers   int
}

// QueueSink forwards events to a Redis list from a background worker pool so
// that publishers never wait on the network.
type QueueSink struct {
	client ListPusher
	queue  string
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	jobs   chan Event
	wg     sync.WaitGroup
}

var errSinkClosed = errors.New("event queue sink closed")

// NewQueueSink starts the worker pool.
func NewQueueSink(client ListPusher, cfg QueueSinkConfig, logger *slog.Logger) *QueueSink {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.Queue == "" {
		cfg.Queue = "kinship:events"
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &QueueSink{
		client: client,
		queue:  cfg.Queue,
		logger: logger,
		jobs:   make(chan Event, cfg.QueueSize),
	}

	s.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go s.worker()
	}
	return s
}

// Enqueue implements Sink. It fails fast when the buffer is full.
func (s *QueueSink) Enqueue(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errSinkClosed
	}

	select {
	case s.jobs <- evt:
		return nil
	default:
		return fmt.Errorf("event queue full, dropping %s", evt.Topic)
	}
}

// Shutdown stops accepting events and waits for queued ones to be pushed.
func (s *QueueSink) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.jobs)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (s *QueueSink) worker() {
	defer s.wg.Done()
	for evt := range s.jobs {
		s.push(evt)
	}
}

func (s *QueueSink) push(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		s.logger.Error("encode event", "topic", evt.Topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.client.RPush(ctx, s.queue, data).Err(); err != nil {
		s.logger.Error("push event", "topic", evt.Topic, "queue", s.queue, "error", err)
	}
}
