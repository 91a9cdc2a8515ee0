package handler

import (
	"io"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/service"
	"github.com/episodeline/pipeline/pkg/response"
)

const maxUploadSize = 500 * 1024 * 1024 // 500MB

var footageTypes = map[string]bool{
	"video/mp4":                true,
	"video/quicktime":          true,
	"video/x-msvideo":          true,
	"video/webm":               true,
	"application/octet-stream": true,
}

type ArtifactHandler struct {
	service   *service.ArtifactService
	validator *validator.Validate
}

func NewArtifactHandler(svc *service.ArtifactService, v *validator.Validate) *ArtifactHandler {
	return &ArtifactHandler{
		service:   svc,
		validator: v,
	}
}

// UploadFootage handles POST /api/artifacts/footage
func (h *ArtifactHandler) UploadFootage(c *fiber.Ctx) error {
	episodeID := c.FormValue("episodeId")
	if episodeID == "" {
		return response.ValidationError(c, "episodeId is required", nil)
	}
	sceneID := c.FormValue("sceneId")
	if sceneID == "" {
		return response.ValidationError(c, "sceneId is required", nil)
	}

	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}
	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 500MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}
	if contentType := file.Header.Get("Content-Type"); !footageTypes[contentType] {
		return response.ValidationError(c, "Invalid file type. Supported: MP4, MOV, AVI, WEBM", map[string]interface{}{
			"contentType": contentType,
		})
	}

	f, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}

	ref, err := h.service.UploadRawFootage(c.Context(), data, file.Filename, episodeID, sceneID)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, ref)
}

// Presign handles POST /api/artifacts/presign
func (h *ArtifactHandler) Presign(c *fiber.Ctx) error {
	var req model.PresignRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	ref, err := h.service.GetPresignedURL(c.Context(), req.Bucket, req.Key, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, ref)
}

// Delete handles DELETE /api/artifacts?bucket=&key=. Deletion is best
// effort, failures come back as warnings.
func (h *ArtifactHandler) Delete(c *fiber.Ctx) error {
	bucket, key := c.Query("bucket"), c.Query("key")
	if bucket == "" || key == "" {
		return response.ValidationError(c, "bucket and key are required", nil)
	}
	return response.OK(c, h.service.DeleteFile(c.Context(), bucket, key))
}

func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
