package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/episodeline/pipeline/internal/apperr"
	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/service"
	"github.com/episodeline/pipeline/pkg/response"
)

type JobHandler struct {
	service *service.JobService
}

func NewJobHandler(svc *service.JobService) *JobHandler {
	return &JobHandler{service: svc}
}

// Create handles POST /api/jobs
func (h *JobHandler) Create(c *fiber.Ctx) error {
	var req model.CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	job, err := h.service.CreateAndQueueJob(c.Context(), &req)
	if err != nil {
		if job != nil {
			// The job row exists and has been marked failed.
			return response.Error(c, fiber.StatusBadGateway, response.CodeUpstreamError, apperr.Message(err), job)
		}
		return writeError(c, err)
	}

	return response.Accepted(c, job)
}

// Get handles GET /api/jobs/:jobId
func (h *JobHandler) Get(c *fiber.Ctx) error {
	job, err := h.service.GetJob(c.Context(), c.Params("jobId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, job)
}

// ListByEpisode handles GET /api/episodes/:episodeId/jobs
func (h *JobHandler) ListByEpisode(c *fiber.Ctx) error {
	jobs, err := h.service.ListEpisodeJobs(c.Context(), c.Params("episodeId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.Map{"jobs": jobs})
}

// Start handles POST /api/jobs/:jobId/start
func (h *JobHandler) Start(c *fiber.Ctx) error {
	var meta model.WorkerMeta
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&meta); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	job, err := h.service.MarkJobStarted(c.Context(), c.Params("jobId"), meta)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, job)
}

// Progress handles POST /api/jobs/:jobId/progress
func (h *JobHandler) Progress(c *fiber.Ctx) error {
	var req model.ProgressRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	if req.Progress == nil {
		return response.ValidationError(c, "Validation failed", map[string]string{"progress": "required"})
	}

	job, err := h.service.UpdateProgress(c.Context(), c.Params("jobId"), *req.Progress)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, job)
}

// Complete handles POST /api/jobs/:jobId/complete
func (h *JobHandler) Complete(c *fiber.Ctx) error {
	var req model.JobResult
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	job, err := h.service.MarkJobCompleted(c.Context(), c.Params("jobId"), req)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, job)
}

// Fail handles POST /api/jobs/:jobId/fail
func (h *JobHandler) Fail(c *fiber.Ctx) error {
	var req model.FailJobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	job, err := h.service.MarkJobFailed(c.Context(), c.Params("jobId"), req.Message)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, job)
}

// Stats handles GET /api/jobs/stats
func (h *JobHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.GetQueueStats(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, stats)
}
