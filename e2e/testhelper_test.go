package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/episodeline/pipeline/internal/config"
	"github.com/episodeline/pipeline/internal/handler"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/middleware"
	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/repository"
	"github.com/episodeline/pipeline/internal/service"
)

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	db       *repository.DB
	queue    *memQueue
	storage  *memStorage
	tasks    *memEnqueuer
	episodes *repository.EpisodeRepository
}

// setupApp creates a Fiber app routed like main.go, backed by a temporary
// SQLite database and in-memory stand-ins for SQS, S3, ffmpeg and Redis.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	log := logging.Discard()
	db, err := repository.Open(filepath.Join(t.TempDir(), "e2e.db"), log)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	queue := &memQueue{}
	storage := newMemStorage()
	tasks := &memEnqueuer{}
	validate := service.NewValidator()

	jobs := repository.NewJobRepository(db)
	scenes := repository.NewSceneRepository(db)
	episodes := repository.NewEpisodeRepository(db)
	cues := repository.NewCueRepository(db)

	queueCfg := &config.QueueConfig{WaitSeconds: 1, VisibilityTimeout: 60}
	buckets := &config.BucketConfig{RawFootage: "raw", ProcessedVideo: "processed", TrainingVideo: "training", FrameThumbnail: "thumbs"}
	mediaCfg := &config.MediaConfig{MaxConcurrent: 2, WorkDir: t.TempDir(), DefaultThreshold: 0.4}

	queueService := service.NewQueueService(queue, queueCfg, log)
	jobService := service.NewJobService(jobs, queueService, validate, log)
	artifactService := service.NewArtifactService(storage, buckets, log)
	segmentService := service.NewSegmentService(stubAnalyzer{}, artifactService, scenes, episodes, mediaCfg, validate, log)
	cueService := service.NewCueService(cues, scenes, episodes, unconfiguredAI{}, &memLocker{}, validate, log)
	dispatcher := service.NewTaskDispatcher(tasks, validate, log)

	jobHandler := handler.NewJobHandler(jobService)
	segmentHandler := handler.NewSegmentHandler(segmentService, dispatcher)
	cueHandler := handler.NewCueHandler(cueService, dispatcher)
	artifactHandler := handler.NewArtifactHandler(artifactService, validate)

	// No Redis: the limiter lets every request through.
	rateLimiter := middleware.NewRateLimiter(nil, log)

	app := fiber.New(fiber.Config{
		BodyLimit: 50 * 1024 * 1024,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	jobsAPI := api.Group("/jobs")
	jobsAPI.Post("/", rateLimiter.JobsLimit(10000), jobHandler.Create)
	jobsAPI.Get("/stats", jobHandler.Stats)
	jobsAPI.Get("/:jobId", jobHandler.Get)
	jobsAPI.Post("/:jobId/start", jobHandler.Start)
	jobsAPI.Post("/:jobId/progress", jobHandler.Progress)
	jobsAPI.Post("/:jobId/complete", jobHandler.Complete)
	jobsAPI.Post("/:jobId/fail", jobHandler.Fail)

	generateLimit := rateLimiter.GenerateLimit(10000)
	episodesAPI := api.Group("/episodes/:episodeId")
	episodesAPI.Get("/jobs", jobHandler.ListByEpisode)
	episodesAPI.Post("/segment", generateLimit, segmentHandler.Segment)
	episodesAPI.Get("/scenes", segmentHandler.Scenes)
	episodesAPI.Post("/icon-cues/generate", generateLimit, cueHandler.Generate)
	episodesAPI.Post("/icon-cues/regenerate", generateLimit, cueHandler.Regenerate)
	episodesAPI.Get("/icon-cues", cueHandler.List)
	episodesAPI.Post("/icon-cues", cueHandler.Create)
	episodesAPI.Get("/icon-cues/anchors", cueHandler.Anchors)
	episodesAPI.Get("/icon-cues/export", cueHandler.Export)
	episodesAPI.Post("/icon-cues/approve-all", cueHandler.ApproveAll)
	episodesAPI.Post("/icon-cues/reject-all", cueHandler.RejectAll)

	cuesAPI := api.Group("/icon-cues")
	cuesAPI.Get("/:cueId", cueHandler.Get)
	cuesAPI.Put("/:cueId", cueHandler.Update)
	cuesAPI.Delete("/:cueId", cueHandler.Delete)
	cuesAPI.Post("/:cueId/approve", cueHandler.Approve)
	cuesAPI.Post("/:cueId/reject", cueHandler.Reject)
	cuesAPI.Post("/:cueId/anchor", cueHandler.SetAnchor)
	cuesAPI.Delete("/:cueId/anchor", cueHandler.RemoveAnchor)

	artifactsAPI := api.Group("/artifacts")
	artifactsAPI.Post("/footage", rateLimiter.UploadLimit(10000), artifactHandler.UploadFootage)
	artifactsAPI.Post("/presign", artifactHandler.Presign)
	artifactsAPI.Delete("/", artifactHandler.Delete)

	return &testApp{
		app:      app,
		db:       db,
		queue:    queue,
		storage:  storage,
		tasks:    tasks,
		episodes: episodes,
	}
}

// seedEpisode inserts an episode directly into the datastore.
func (ta *testApp) seedEpisode(t *testing.T, id, title string) {
	t.Helper()
	if err := ta.episodes.CreateEpisode(context.Background(), &model.Episode{ID: id, Title: title, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("failed to seed episode: %v", err)
	}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// mustRequest performs a request and fails the test on transport errors.
func mustRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode extracts error.code from an error response.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	result := parseJSON(t, resp)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object, got %v", result)
	}
	code, _ := errObj["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}
