package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/config"
	"github.com/episodeline/pipeline/internal/logging"
)

var testBuckets = config.BucketConfig{
	RawFootage:     "raw",
	ProcessedVideo: "processed",
	TrainingVideo:  "training",
	FrameThumbnail: "thumbs",
}

func newArtifactService(storage *fakeStorage) *ArtifactService {
	svc := NewArtifactService(storage, &testBuckets, logging.Discard())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC) }
	return svc
}

func TestArtifactService_KeyLayout(t *testing.T) {
	storage := newFakeStorage()
	svc := newArtifactService(storage)
	ctx := context.Background()

	raw, err := svc.UploadRawFootage(ctx, []byte("v"), "take1.MOV", "ep-1", "scene-2")
	if err != nil {
		t.Fatalf("UploadRawFootage() error = %v", err)
	}
	if raw.Key != "episodes/ep-1/scenes/scene-2/raw/take1.MOV" || raw.Bucket != "raw" {
		t.Errorf("unexpected raw ref %+v", raw)
	}
	if raw.ContentType != "video/quicktime" {
		t.Errorf("raw content type = %s", raw.ContentType)
	}
	still, err := svc.UploadRawFootage(ctx, []byte("v"), "still.jpg", "ep-1", "scene-2")
	if err != nil {
		t.Fatal(err)
	}
	if still.ContentType != "application/octet-stream" {
		t.Errorf("jpg footage content type = %s, want fallback", still.ContentType)
	}

	final, err := svc.UploadProcessedVideo(ctx, []byte("v"), "ep-1", "job-7", "")
	if err != nil {
		t.Fatalf("UploadProcessedVideo() error = %v", err)
	}
	if final.Key != "episodes/ep-1/final/job-7.mp4" {
		t.Errorf("final key = %s", final.Key)
	}
	if final.URL == "" || final.ExpiresAt == nil {
		t.Fatal("expected presigned url on processed video")
	}
	if got := final.ExpiresAt.Sub(svc.now()); got != 7*24*time.Hour {
		t.Errorf("processed url ttl = %v", got)
	}

	training, err := svc.UploadTrainingVideo(ctx, []byte("v"), "vid-3")
	if err != nil {
		t.Fatal(err)
	}
	if training.Key != "training/vid-3.mp4" {
		t.Errorf("training key = %s", training.Key)
	}

	thumb, err := svc.UploadFrameThumbnail(ctx, []byte("jpg"), "vid-3", 4)
	if err != nil {
		t.Fatal(err)
	}
	if thumb.Key != "scene-thumbnails/vid-3/scene_4.jpg" || thumb.ContentType != "image/jpeg" {
		t.Errorf("unexpected thumbnail ref %+v", thumb)
	}
	if !storage.has("thumbs", thumb.Key) {
		t.Error("thumbnail not stored")
	}
}

func TestArtifactService_KeysStayInHierarchy(t *testing.T) {
	svc := newArtifactService(newFakeStorage())

	ref, err := svc.UploadRawFootage(context.Background(), []byte("v"), "../../etc/passwd", "ep-1", "s/../../x")
	if err != nil {
		t.Fatalf("UploadRawFootage() error = %v", err)
	}
	if ref.Key != "episodes/ep-1/scenes/x/raw/passwd" {
		t.Errorf("key escaped its prefix: %s", ref.Key)
	}

	if _, err := svc.UploadRawFootage(context.Background(), []byte("v"), "..", "ep-1", "s"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for '..', got %v", err)
	}
}

func TestArtifactService_PresignDefaultsToOneHour(t *testing.T) {
	svc := newArtifactService(newFakeStorage())

	ref, err := svc.GetPresignedURL(context.Background(), "raw", "a/b.mp4", 0)
	if err != nil {
		t.Fatalf("GetPresignedURL() error = %v", err)
	}
	if got := ref.ExpiresAt.Sub(svc.now()); got != time.Hour {
		t.Errorf("ttl = %v, want 1h", got)
	}

	if _, err := svc.GetPresignedURL(context.Background(), "", "k", 0); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestArtifactService_DownloadAndDelete(t *testing.T) {
	storage := newFakeStorage()
	svc := newArtifactService(storage)
	ctx := context.Background()

	if _, err := svc.DownloadFile(ctx, "raw", "missing"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	ref, err := svc.UploadTrainingVideo(ctx, []byte("clip"), "v1")
	if err != nil {
		t.Fatal(err)
	}
	data, err := svc.DownloadFile(ctx, ref.Bucket, ref.Key)
	if err != nil || string(data) != "clip" {
		t.Fatalf("DownloadFile() = %q, %v", data, err)
	}

	res := svc.DeleteFile(ctx, ref.Bucket, ref.Key)
	if !res.Deleted || len(res.Warnings) != 0 {
		t.Errorf("unexpected cleanup result %+v", res)
	}

	storage.deleteErr = errors.New("access denied")
	res = svc.DeleteFile(ctx, ref.Bucket, ref.Key)
	if res.Deleted || len(res.Warnings) != 1 {
		t.Errorf("failed delete should surface a warning, got %+v", res)
	}
}

func TestArtifactService_UploadFailureIsUpstream(t *testing.T) {
	storage := newFakeStorage()
	storage.uploadErr = errors.New("503")
	svc := newArtifactService(storage)

	if _, err := svc.UploadTrainingVideo(context.Background(), []byte("v"), "v1"); !apperr.Is(err, apperr.KindUpstream) {
		t.Errorf("expected upstream error, got %v", err)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.mp4":     "video/mp4",
		"a.MOV":     "video/quicktime",
		"a.avi":     "video/x-msvideo",
		"a.webm":    "video/webm",
		"a.mkv":     "application/octet-stream",
		"still.jpg": "application/octet-stream",
		"no-suffix": "application/octet-stream",
	}
	for name, want := range tests {
		if got := ContentTypeFor(name); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
