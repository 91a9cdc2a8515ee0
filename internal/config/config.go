package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Database  DatabaseConfig
	AWS       AWSConfig
	Buckets   BucketConfig
	Queue     QueueConfig
	Groq      GroqConfig
	Media     MediaConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type DatabaseConfig struct {
	Path string
}

// AWSConfig covers both S3 and SQS. Endpoint is set for S3-compatible or
// local stacks and left empty for AWS proper.
type AWSConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

type BucketConfig struct {
	RawFootage     string
	ProcessedVideo string
	TrainingVideo  string
	FrameThumbnail string
}

type QueueConfig struct {
	URL               string
	DeadLetterURL     string
	VisibilityTimeout int // seconds
	WaitSeconds       int
	MaxMessages       int
}

type GroqConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout int // seconds
}

type MediaConfig struct {
	FFmpegPath       string
	FFprobePath      string
	MaxConcurrent    int
	Timeout          time.Duration
	WorkDir          string
	DefaultThreshold float64
}

type RateLimitConfig struct {
	JobsPerMin     int
	GeneratePerMin int
	UploadPerHour  int
}

type WorkerConfig struct {
	Concurrency int
}

// AIEnabled reports whether AI-assisted cue generation can run.
func (c *Config) AIEnabled() bool {
	return c.Groq.APIKey != ""
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("AWS_ACCESS_KEY_ID")
	readSecret("AWS_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	bindings := map[string]string{
		"server.port":              "SERVER_PORT",
		"server.env":               "SERVER_ENV",
		"server.log_level":         "LOG_LEVEL",
		"server.log_format":        "LOG_FORMAT",
		"redis.addr":               "REDIS_ADDR",
		"redis.password":           "REDIS_PASSWORD",
		"redis.db":                 "REDIS_DB",
		"database.path":            "DATABASE_PATH",
		"aws.region":               "AWS_REGION",
		"aws.endpoint":             "AWS_ENDPOINT_URL",
		"aws.access_key_id":        "AWS_ACCESS_KEY_ID",
		"aws.secret_access_key":    "AWS_SECRET_ACCESS_KEY",
		"aws.force_path_style":     "AWS_FORCE_PATH_STYLE",
		"buckets.raw_footage":      "S3_RAW_FOOTAGE_BUCKET",
		"buckets.processed_video":  "S3_PROCESSED_VIDEOS_BUCKET",
		"buckets.training_video":   "S3_TRAINING_DATA_BUCKET",
		"buckets.frame_thumbnail":  "S3_THUMBNAIL_BUCKET",
		"queue.url":                "SQS_QUEUE_URL",
		"queue.dead_letter_url":    "SQS_DLQ_URL",
		"queue.visibility_timeout": "SQS_VISIBILITY_TIMEOUT",
		"queue.wait_seconds":       "SQS_WAIT_SECONDS",
		"queue.max_messages":       "SQS_MAX_MESSAGES",
		"groq.api_key":             "GROQ_API_KEY",
		"groq.base_url":            "GROQ_BASE_URL",
		"groq.model":               "GROQ_MODEL",
		"groq.timeout":             "GROQ_TIMEOUT",
		"media.ffmpeg_path":        "FFMPEG_PATH",
		"media.ffprobe_path":       "FFPROBE_PATH",
		"media.max_concurrent":     "MEDIA_MAX_CONCURRENT",
		"media.timeout":            "MEDIA_TIMEOUT",
		"media.work_dir":           "MEDIA_WORK_DIR",
		"media.default_threshold":  "SCENE_THRESHOLD",
		"worker.concurrency":       "WORKER_CONCURRENCY",
	}
	for key, env := range bindings {
		_ = v.BindEnv(key, env)
	}

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("database.path", "./data/pipeline.db")
	v.SetDefault("aws.region", "us-east-1")
	v.SetDefault("aws.force_path_style", false)
	v.SetDefault("buckets.raw_footage", "episode-raw-footage")
	v.SetDefault("buckets.processed_video", "episode-processed-videos")
	v.SetDefault("buckets.training_video", "episode-training-data")
	v.SetDefault("buckets.frame_thumbnail", "episode-training-data")
	v.SetDefault("queue.visibility_timeout", 300)
	v.SetDefault("queue.wait_seconds", 20)
	v.SetDefault("queue.max_messages", 10)
	v.SetDefault("ratelimit.jobs_per_min", 30)
	v.SetDefault("ratelimit.generate_per_min", 10)
	v.SetDefault("ratelimit.upload_per_hour", 50)
	v.SetDefault("worker.concurrency", 4)

	// Groq defaults
	v.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("groq.model", "llama-3.3-70b-versatile")
	v.SetDefault("groq.timeout", 60)

	// Media defaults
	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.max_concurrent", 2)
	v.SetDefault("media.timeout", "10m")
	v.SetDefault("media.work_dir", os.TempDir())
	v.SetDefault("media.default_threshold", 0.4)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      v.GetString("server.port"),
			Env:       v.GetString("server.env"),
			LogLevel:  v.GetString("server.log_level"),
			LogFormat: v.GetString("server.log_format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Database: DatabaseConfig{
			Path: v.GetString("database.path"),
		},
		AWS: AWSConfig{
			Region:          v.GetString("aws.region"),
			Endpoint:        v.GetString("aws.endpoint"),
			AccessKeyID:     v.GetString("aws.access_key_id"),
			SecretAccessKey: v.GetString("aws.secret_access_key"),
			ForcePathStyle:  v.GetBool("aws.force_path_style"),
		},
		Buckets: BucketConfig{
			RawFootage:     v.GetString("buckets.raw_footage"),
			ProcessedVideo: v.GetString("buckets.processed_video"),
			TrainingVideo:  v.GetString("buckets.training_video"),
			FrameThumbnail: v.GetString("buckets.frame_thumbnail"),
		},
		Queue: QueueConfig{
			URL:               v.GetString("queue.url"),
			DeadLetterURL:     v.GetString("queue.dead_letter_url"),
			VisibilityTimeout: v.GetInt("queue.visibility_timeout"),
			WaitSeconds:       v.GetInt("queue.wait_seconds"),
			MaxMessages:       v.GetInt("queue.max_messages"),
		},
		Groq: GroqConfig{
			APIKey:  v.GetString("groq.api_key"),
			BaseURL: v.GetString("groq.base_url"),
			Model:   v.GetString("groq.model"),
			Timeout: v.GetInt("groq.timeout"),
		},
		Media: MediaConfig{
			FFmpegPath:       v.GetString("media.ffmpeg_path"),
			FFprobePath:      v.GetString("media.ffprobe_path"),
			MaxConcurrent:    v.GetInt("media.max_concurrent"),
			Timeout:          v.GetDuration("media.timeout"),
			WorkDir:          v.GetString("media.work_dir"),
			DefaultThreshold: v.GetFloat64("media.default_threshold"),
		},
		RateLimit: RateLimitConfig{
			JobsPerMin:     v.GetInt("ratelimit.jobs_per_min"),
			GeneratePerMin: v.GetInt("ratelimit.generate_per_min"),
			UploadPerHour:  v.GetInt("ratelimit.upload_per_hour"),
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("worker.concurrency"),
		},
	}

	if cfg.Media.MaxConcurrent < 1 {
		cfg.Media.MaxConcurrent = 1
	}

	return cfg, nil
}
