package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"github.com/episodeline/pipeline/internal/client"
	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/repository"
)

type testStores struct {
	db       *repository.DB
	jobs     *repository.JobRepository
	scenes   *repository.SceneRepository
	episodes *repository.EpisodeRepository
	cues     *repository.CueRepository
}

func openStores(t *testing.T) *testStores {
	t.Helper()
	db, err := repository.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &testStores{
		db:       db,
		jobs:     repository.NewJobRepository(db),
		scenes:   repository.NewSceneRepository(db),
		episodes: repository.NewEpisodeRepository(db),
		cues:     repository.NewCueRepository(db),
	}
}

func (s *testStores) seedEpisode(t *testing.T, id, title string) {
	t.Helper()
	if err := s.episodes.CreateEpisode(context.Background(), &model.Episode{ID: id, Title: title, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateEpisode() error = %v", err)
	}
}

func (s *testStores) seedScene(t *testing.T, episodeID string, number int, name string, start, end float64, meta model.SceneMetadata) {
	t.Helper()
	err := s.scenes.Create(context.Background(), &model.Scene{
		ID:          fmt.Sprintf("%s-scene-%d", episodeID, number),
		EpisodeID:   episodeID,
		SceneNumber: number,
		Name:        name,
		StartTime:   start,
		EndTime:     end,
		Duration:    end - start,
		Metadata:    meta,
		Source:      model.SceneSourceManual,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		t.Fatalf("Create scene error = %v", err)
	}
}

// fixedClock returns a clock that advances by step on every call.
func fixedClock(start time.Time, step time.Duration) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t := now
		now = now.Add(step)
		return t
	}
}

type fakeQueue struct {
	mu         sync.Mutex
	sent       []client.OutboundMessage
	sendErr    error
	inbox      []client.InboundMessage
	receiveErr error
	deleted    []string
	visibility map[string]int
	attrs      map[client.QueueTarget]*client.QueueAttributes
	waits      []int
}

func (q *fakeQueue) Send(ctx context.Context, msg client.OutboundMessage) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sendErr != nil {
		return "", q.sendErr
	}
	q.sent = append(q.sent, msg)
	return fmt.Sprintf("msg-%d", len(q.sent)), nil
}

func (q *fakeQueue) Receive(ctx context.Context, maxMessages, waitSeconds, visibilityTimeout int) ([]client.InboundMessage, error) {
	q.mu.Lock()
	q.waits = append(q.waits, waitSeconds)
	if q.receiveErr != nil {
		err := q.receiveErr
		q.mu.Unlock()
		return nil, err
	}
	if len(q.inbox) > 0 {
		n := maxMessages
		if n > len(q.inbox) {
			n = len(q.inbox)
		}
		out := q.inbox[:n]
		q.inbox = q.inbox[n:]
		q.mu.Unlock()
		return out, nil
	}
	q.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
		return nil, nil
	}
}

func (q *fakeQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *fakeQueue) ChangeVisibility(ctx context.Context, receiptHandle string, seconds int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.visibility == nil {
		q.visibility = map[string]int{}
	}
	q.visibility[receiptHandle] = seconds
	return nil
}

func (q *fakeQueue) Attributes(ctx context.Context, target client.QueueTarget) (*client.QueueAttributes, error) {
	if a, ok := q.attrs[target]; ok {
		return a, nil
	}
	return &client.QueueAttributes{}, nil
}

func (q *fakeQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type fakeStorage struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
	deleteErr error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}, types: map[string]string{}}
}

func (s *fakeStorage) Upload(ctx context.Context, bucket, key string, body io.Reader, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	s.types[bucket+"/"+key] = contentType
	return nil
}

func (s *fakeStorage) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, client.ErrObjectNotFound
	}
	return bytes.Clone(data), nil
}

func (s *fakeStorage) Delete(ctx context.Context, bucket, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, bucket+"/"+key)
	return nil
}

func (s *fakeStorage) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("https://%s.example.test/%s?expires=%d", bucket, key, int(expiry.Seconds())), nil
}

func (s *fakeStorage) has(bucket, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok
}

// fakeAnalyzer reports every candidate cut whose score beats the threshold.
type fakeAnalyzer struct {
	meta     model.VideoMetadata
	probeErr error
	cuts     []model.CutEvent
	cutsErr  error
	frameErr error
	luma     float64
	lumaErr  error

	mu        sync.Mutex
	lumaCalls []float64
	probed    []string
}

func (a *fakeAnalyzer) Probe(ctx context.Context, path string) (*model.VideoMetadata, error) {
	a.mu.Lock()
	a.probed = append(a.probed, path)
	a.mu.Unlock()
	if a.probeErr != nil {
		return nil, a.probeErr
	}
	m := a.meta
	return &m, nil
}

func (a *fakeAnalyzer) DetectCuts(ctx context.Context, path string, threshold float64) ([]model.CutEvent, error) {
	if a.cutsErr != nil {
		return nil, a.cutsErr
	}
	var out []model.CutEvent
	for _, c := range a.cuts {
		if c.ChangeScore > threshold {
			c.Number = len(out) + 1
			out = append(out, c)
		}
	}
	return out, nil
}

func (a *fakeAnalyzer) ExtractFrame(ctx context.Context, path string, at float64, outPath string) error {
	if a.frameErr != nil {
		return a.frameErr
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(outPath, []byte(fmt.Sprintf("frame@%.2f", at)), 0o644)
}

func (a *fakeAnalyzer) AverageLuma(ctx context.Context, path string, start, duration float64) (float64, error) {
	a.mu.Lock()
	a.lumaCalls = append(a.lumaCalls, duration)
	a.mu.Unlock()
	if a.lumaErr != nil {
		return 0, a.lumaErr
	}
	return a.luma, nil
}

type fakeAI struct {
	configured bool
	reply      string
	err        error
	calls      int
	lastPrompt string
}

func (f *fakeAI) ChatCompletion(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.lastPrompt = user
	return f.reply, f.err
}

func (f *fakeAI) IsConfigured() bool {
	return f.configured
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	err  error
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, false, l.err
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

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (e *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.tasks = append(e.tasks, task)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(e.tasks)), Type: task.Type()}, nil
}
