package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/service"
	"github.com/episodeline/pipeline/pkg/response"
)

type SegmentHandler struct {
	service *service.SegmentService
	tasks   *service.TaskDispatcher
}

func NewSegmentHandler(svc *service.SegmentService, tasks *service.TaskDispatcher) *SegmentHandler {
	return &SegmentHandler{
		service: svc,
		tasks:   tasks,
	}
}

// Segment handles POST /api/episodes/:episodeId/segment. With ?async=true
// the work is queued and the task id returned.
func (h *SegmentHandler) Segment(c *fiber.Ctx) error {
	var req model.SegmentRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	req.EpisodeID = c.Params("episodeId")

	if c.QueryBool("async") {
		if h.tasks == nil {
			return response.ServiceError(c, "Background processing is not available")
		}
		taskID, err := h.tasks.EnqueueSegmentation(c.Context(), &req)
		if err != nil {
			return writeError(c, err)
		}
		return response.Accepted(c, fiber.Map{"taskId": taskID, "episodeId": req.EpisodeID})
	}

	result, err := h.service.SegmentVideo(c.Context(), &req)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, result)
}

// Scenes handles GET /api/episodes/:episodeId/scenes
func (h *SegmentHandler) Scenes(c *fiber.Ctx) error {
	scenes, err := h.service.ListScenes(c.Context(), c.Params("episodeId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.Map{"scenes": scenes})
}
