package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/internal/client"
	"github.com/episodeline/pipeline/internal/config"
	"github.com/episodeline/pipeline/internal/model"
)

const (
	defaultPresignTTL   = time.Hour
	processedVideoTTL   = 7 * 24 * time.Hour
	contentTypeFallback = "application/octet-stream"
)

var contentTypes = map[string]string{
	"mp4":  "video/mp4",
	"mov":  "video/quicktime",
	"avi":  "video/x-msvideo",
	"webm": "video/webm",
}

// ContentTypeFor maps a file name's extension to its MIME type.
func ContentTypeFor(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return contentTypeFallback
}

// ArtifactService stores footage, renders, training clips and thumbnails
// under a fixed key layout per bucket.
type ArtifactService struct {
	storage client.StorageClient
	buckets config.BucketConfig
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewArtifactService(storage client.StorageClient, buckets *config.BucketConfig, log logrus.FieldLogger) *ArtifactService {
	return &ArtifactService{
		storage: storage,
		buckets: *buckets,
		log:     logging.WithComponent(log, "artifacts"),
		now:     time.Now,
	}
}

func (s *ArtifactService) UploadRawFootage(ctx context.Context, data []byte, filename, episodeID, sceneID string) (*model.ArtifactReference, error) {
	const op = "UploadRawFootage"
	name, err := keyElement(op, "filename", filename)
	if err != nil {
		return nil, err
	}
	ep, err := keyElement(op, "episodeId", episodeID)
	if err != nil {
		return nil, err
	}
	scene, err := keyElement(op, "sceneId", sceneID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("episodes/%s/scenes/%s/raw/%s", ep, scene, name)
	return s.put(ctx, op, model.ArtifactRawFootage, s.buckets.RawFootage, key, data, ContentTypeFor(name))
}

// UploadProcessedVideo stores a finished render and attaches a read URL
// valid for seven days.
func (s *ArtifactService) UploadProcessedVideo(ctx context.Context, data []byte, episodeID, jobID, ext string) (*model.ArtifactReference, error) {
	const op = "UploadProcessedVideo"
	ep, err := keyElement(op, "episodeId", episodeID)
	if err != nil {
		return nil, err
	}
	job, err := keyElement(op, "jobId", jobID)
	if err != nil {
		return nil, err
	}
	ext = strings.TrimPrefix(path.Base(ext), ".")
	if ext == "" || ext == "/" {
		ext = "mp4"
	}

	key := fmt.Sprintf("episodes/%s/final/%s.%s", ep, job, ext)
	ref, err := s.put(ctx, op, model.ArtifactProcessedVideo, s.buckets.ProcessedVideo, key, data, ContentTypeFor(key))
	if err != nil {
		return nil, err
	}

	if err := s.attachURL(ctx, ref, processedVideoTTL); err != nil {
		return nil, apperr.Upstream(op, err)
	}
	return ref, nil
}

func (s *ArtifactService) UploadTrainingVideo(ctx context.Context, data []byte, videoID string) (*model.ArtifactReference, error) {
	const op = "UploadTrainingVideo"
	id, err := keyElement(op, "videoId", videoID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("training/%s.mp4", id)
	return s.put(ctx, op, model.ArtifactTrainingVideo, s.buckets.TrainingVideo, key, data, "video/mp4")
}

func (s *ArtifactService) UploadFrameThumbnail(ctx context.Context, data []byte, videoID string, sceneNumber int) (*model.ArtifactReference, error) {
	const op = "UploadFrameThumbnail"
	id, err := keyElement(op, "videoId", videoID)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("scene-thumbnails/%s/scene_%d.jpg", id, sceneNumber)
	return s.put(ctx, op, model.ArtifactFrameThumbnail, s.buckets.FrameThumbnail, key, data, "image/jpeg")
}

// GetPresignedURL returns a temporary read URL. A non-positive ttl uses one hour.
func (s *ArtifactService) GetPresignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (*model.ArtifactReference, error) {
	const op = "GetPresignedURL"
	if bucket == "" || key == "" {
		return nil, apperr.Validation(op, "bucket and key are required")
	}
	if ttl <= 0 {
		ttl = defaultPresignTTL
	}

	ref := &model.ArtifactReference{Bucket: bucket, Key: key, ContentType: ContentTypeFor(key)}
	if err := s.attachURL(ctx, ref, ttl); err != nil {
		return nil, apperr.Upstream(op, err)
	}
	return ref, nil
}

func (s *ArtifactService) DownloadFile(ctx context.Context, bucket, key string) ([]byte, error) {
	const op = "DownloadFile"
	if bucket == "" || key == "" {
		return nil, apperr.Validation(op, "bucket and key are required")
	}
	data, err := s.storage.Download(ctx, bucket, key)
	if errors.Is(err, client.ErrObjectNotFound) {
		return nil, apperr.NotFound(op, "object not found")
	}
	if err != nil {
		return nil, apperr.Upstream(op, err)
	}
	return data, nil
}

// DeleteFile removes an object. Failures are reported as warnings in the
// result and never returned as an error.
func (s *ArtifactService) DeleteFile(ctx context.Context, bucket, key string) model.CleanupResult {
	result := model.CleanupResult{Bucket: bucket, Key: key}
	if bucket == "" || key == "" {
		result.Warnings = append(result.Warnings, "bucket and key are required")
		return result
	}

	if err := s.storage.Delete(ctx, bucket, key); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"bucket": bucket, "key": key}).Warn("delete failed")
		result.Warnings = append(result.Warnings, err.Error())
		return result
	}
	result.Deleted = true
	return result
}

func (s *ArtifactService) put(ctx context.Context, op string, category model.ArtifactCategory, bucket, key string, data []byte, contentType string) (*model.ArtifactReference, error) {
	if bucket == "" {
		return nil, apperr.Upstream(op, fmt.Errorf("no bucket configured for %s", category))
	}
	if err := s.storage.Upload(ctx, bucket, key, bytes.NewReader(data), contentType); err != nil {
		return nil, apperr.Upstream(op, err)
	}

	s.log.WithFields(logrus.Fields{"bucket": bucket, "key": key, "size": len(data)}).Info("artifact uploaded")
	return &model.ArtifactReference{
		Category:    category,
		Bucket:      bucket,
		Key:         key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (s *ArtifactService) attachURL(ctx context.Context, ref *model.ArtifactReference, ttl time.Duration) error {
	url, err := s.storage.PresignGet(ctx, ref.Bucket, ref.Key, ttl)
	if err != nil {
		return err
	}
	expires := s.now().Add(ttl).UTC()
	ref.URL = url
	ref.ExpiresAt = &expires
	return nil
}

// keyElement reduces a caller-supplied name to one path element.
func keyElement(op, field, v string) (string, error) {
	v = path.Base(strings.ReplaceAll(strings.TrimSpace(v), "\\", "/"))
	if v == "" || v == "." || v == ".." || v == "/" {
		return "", apperr.ValidationFields(op, field+" is required", map[string]string{field: "required"})
	}
	return v, nil
}
