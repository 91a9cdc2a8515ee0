package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/client"
	"github.com/episodeline/pipeline/internal/config"
	"github.com/episodeline/pipeline/internal/handler"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/media"
	"github.com/episodeline/pipeline/internal/middleware"
	"github.com/episodeline/pipeline/internal/repository"
	"github.com/episodeline/pipeline/internal/service"
	"github.com/episodeline/pipeline/internal/worker"
	"github.com/episodeline/pipeline/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logging.New(cfg.Server.LogLevel, cfg.Server.LogFormat)
	ctx := context.Background()

	db, err := repository.Open(cfg.Database.Path, log)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("Redis not available")
	}

	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	// External clients
	s3Client, err := client.NewS3Client(ctx, &cfg.AWS)
	if err != nil {
		log.Fatalf("Failed to create S3 client: %v", err)
	}

	var queue client.MessageQueue
	if sqsClient, err := client.NewSQSClient(ctx, &cfg.AWS, &cfg.Queue); err != nil {
		log.WithError(err).Warn("Job queue disabled")
	} else {
		queue = sqsClient
	}

	groqClient := client.NewGroqClient(&cfg.Groq)
	if !cfg.AIEnabled() {
		log.Info("GROQ_API_KEY not set, AI cue suggestions disabled")
	}

	analyzer := media.NewFFmpeg(media.Options{
		FFmpegPath:    cfg.Media.FFmpegPath,
		FFprobePath:   cfg.Media.FFprobePath,
		MaxConcurrent: cfg.Media.MaxConcurrent,
		Timeout:       cfg.Media.Timeout,
		Logger:        log,
	})

	validate := service.NewValidator()

	// Stores
	jobs := repository.NewJobRepository(db)
	scenes := repository.NewSceneRepository(db)
	episodes := repository.NewEpisodeRepository(db)
	cues := repository.NewCueRepository(db)

	// Services
	queueService := service.NewQueueService(queue, &cfg.Queue, log)
	jobService := service.NewJobService(jobs, queueService, validate, log)
	artifactService := service.NewArtifactService(s3Client, &cfg.Buckets, log)
	segmentService := service.NewSegmentService(analyzer, artifactService, scenes, episodes, &cfg.Media, validate, log)
	cueService := service.NewCueService(cues, scenes, episodes, groqClient, client.NewRedisLocker(redisClient, log), validate, log)
	dispatcher := service.NewTaskDispatcher(asynqClient, validate, log)

	// Handlers
	jobHandler := handler.NewJobHandler(jobService)
	segmentHandler := handler.NewSegmentHandler(segmentService, dispatcher)
	cueHandler := handler.NewCueHandler(cueService, dispatcher)
	artifactHandler := handler.NewArtifactHandler(artifactService, validate)

	rateLimiter := middleware.NewRateLimiter(redisClient, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    512 * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"queue": queue != nil,
				"ai":    groqClient.IsConfigured(),
			},
		})
	})

	api := app.Group("/api")

	// Render jobs
	jobsAPI := api.Group("/jobs")
	jobsAPI.Post("/", rateLimiter.JobsLimit(cfg.RateLimit.JobsPerMin), jobHandler.Create)
	jobsAPI.Get("/stats", jobHandler.Stats)
	jobsAPI.Get("/:jobId", jobHandler.Get)
	jobsAPI.Post("/:jobId/start", jobHandler.Start)
	jobsAPI.Post("/:jobId/progress", jobHandler.Progress)
	jobsAPI.Post("/:jobId/complete", jobHandler.Complete)
	jobsAPI.Post("/:jobId/fail", jobHandler.Fail)

	// Episodes: segmentation and cue generation
	generateLimit := rateLimiter.GenerateLimit(cfg.RateLimit.GeneratePerMin)
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

	// Individual cues
	cuesAPI := api.Group("/icon-cues")
	cuesAPI.Get("/:cueId", cueHandler.Get)
	cuesAPI.Put("/:cueId", cueHandler.Update)
	cuesAPI.Delete("/:cueId", cueHandler.Delete)
	cuesAPI.Post("/:cueId/approve", cueHandler.Approve)
	cuesAPI.Post("/:cueId/reject", cueHandler.Reject)
	cuesAPI.Post("/:cueId/anchor", cueHandler.SetAnchor)
	cuesAPI.Delete("/:cueId/anchor", cueHandler.RemoveAnchor)

	// Artifacts
	artifactsAPI := api.Group("/artifacts")
	artifactsAPI.Post("/footage", rateLimiter.UploadLimit(cfg.RateLimit.UploadPerHour), artifactHandler.UploadFootage)
	artifactsAPI.Post("/presign", artifactHandler.Presign)
	artifactsAPI.Delete("/", artifactHandler.Delete)

	srv := newWorkerServer(cfg, redisOpt, log)
	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeSegment, worker.NewSegmentWorker(segmentService, dispatcher, log).ProcessTask)
	mux.HandleFunc(service.TaskTypeCues, worker.NewCueWorker(cueService, log).ProcessTask)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.WithError(err).Error("Asynq worker error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("Shutting down server...")
		srv.Shutdown()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("Server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Infof("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

func newWorkerServer(cfg *config.Config, redisOpt asynq.RedisClientOpt, log *logrus.Logger) *asynq.Server {
	concurrency := cfg.Worker.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			service.QueueSegment: 6,
			service.QueueCues:    4,
		},
		Logger: log,
	})
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return response.Error(c, code, response.CodeServiceError, message, nil)
}
