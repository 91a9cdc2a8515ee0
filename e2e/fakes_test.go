package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/episodeline/pipeline/internal/client"
	"github.com/episodeline/pipeline/internal/model"
)

type memQueue struct {
	mu      sync.Mutex
	sent    []client.OutboundMessage
	sendErr error
}

func (q *memQueue) Send(ctx context.Context, msg client.OutboundMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sendErr != nil {
		return "", q.sendErr
	}
	q.sent = append(q.sent, msg)
	return fmt.Sprintf("msg-%d", len(q.sent)), nil
}

func (q *memQueue) Receive(ctx context.Context, maxMessages, waitSeconds, visibilityTimeout int) ([]client.InboundMessage, error) {
	return nil, nil
}

func (q *memQueue) Delete(ctx context.Context, receiptHandle string) error { return nil }

func (q *memQueue) ChangeVisibility(ctx context.Context, receiptHandle string, seconds int) error {
	return nil
}

func (q *memQueue) Attributes(ctx context.Context, target client.QueueTarget) (*client.QueueAttributes, error) {
	if target == client.QueueDeadLetter {
		return &client.QueueAttributes{Visible: 1}, nil
	}
	return &client.QueueAttributes{Visible: len(q.sent)}, nil
}

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (s *memStorage) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *memStorage) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, client.ErrObjectNotFound
	}
	return bytes.Clone(data), nil
}

func (s *memStorage) Delete(ctx context.Context, bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *memStorage) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.storage.test/%s", bucket, key), nil
}

// stubAnalyzer reports a 30 second video with cuts at 10 and 20 seconds.
type stubAnalyzer struct{}

func (stubAnalyzer) Probe(ctx context.Context, path string) (*model.VideoMetadata, error) {
	return &model.VideoMetadata{Duration: 30, Width: 1280, Height: 720, FrameRate: 25}, nil
}

func (stubAnalyzer) DetectCuts(ctx context.Context, path string, threshold float64) ([]model.CutEvent, error) {
	return []model.CutEvent{
		{Number: 1, Timestamp: 10, ChangeScore: 0.8},
		{Number: 2, Timestamp: 20, ChangeScore: 0.8},
	}, nil
}

func (stubAnalyzer) ExtractFrame(ctx context.Context, path string, at float64, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte("jpeg"), 0o644)
}

func (stubAnalyzer) AverageLuma(ctx context.Context, path string, start, duration float64) (float64, error) {
	return 120, nil
}

type unconfiguredAI struct{}

func (unconfiguredAI) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	return "", client.ErrAIUnavailable
}

func (unconfiguredAI) IsConfigured() bool { return false }

type memLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func (l *memLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = map[string]bool{}
	}
	if l.held[name] {
		return nil, false, nil
	}
	l.held[name] = true
	return func() {
		l.mu.Lock()
		delete(l.held, name)
		l.mu.Unlock()
	}, true, nil
}

type memEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (e *memEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(e.tasks)), Type: task.Type()}, nil
}

func (s *memStorage) has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok
}
