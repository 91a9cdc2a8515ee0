package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/episodeline/pipeline/internal/model"
	"github.com/episodeline/pipeline/internal/service"
	"github.com/episodeline/pipeline/pkg/response"
)

type CueHandler struct {
	service *service.CueService
	tasks   *service.TaskDispatcher
}

func NewCueHandler(svc *service.CueService, tasks *service.TaskDispatcher) *CueHandler {
	return &CueHandler{
		service: svc,
		tasks:   tasks,
	}
}

// Generate handles POST /api/episodes/:episodeId/icon-cues/generate
func (h *CueHandler) Generate(c *fiber.Ctx) error {
	var opts model.GenerateOptions
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&opts); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}
	return h.generate(c, opts)
}

// Regenerate handles POST /api/episodes/:episodeId/icon-cues/regenerate
func (h *CueHandler) Regenerate(c *fiber.Ctx) error {
	return h.generate(c, model.GenerateOptions{Regenerate: true})
}

func (h *CueHandler) generate(c *fiber.Ctx, opts model.GenerateOptions) error {
	episodeID := c.Params("episodeId")

	if c.QueryBool("async") && h.tasks != nil {
		taskID, err := h.tasks.EnqueueCueGeneration(c.Context(), episodeID, opts.Regenerate)
		if err != nil {
			return writeError(c, err)
		}
		return response.Accepted(c, fiber.Map{"taskId": taskID, "episodeId": episodeID})
	}

	result, err := h.service.GenerateFromEpisode(c.Context(), episodeID, opts)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, result)
}

// List handles GET /api/episodes/:episodeId/icon-cues
func (h *CueHandler) List(c *fiber.Ctx) error {
	filter := model.CueFilter{
		Status: model.CueStatus(c.Query("status")),
		SlotID: c.Query("slot"),
		Sort:   c.Query("sort"),
	}
	cues, err := h.service.ListCues(c.Context(), c.Params("episodeId"), filter)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.Map{"cues": cues})
}

// Create handles POST /api/episodes/:episodeId/icon-cues
func (h *CueHandler) Create(c *fiber.Ctx) error {
	var req model.CreateCueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	cue, err := h.service.CreateCue(c.Context(), c.Params("episodeId"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return response.Created(c, cue)
}

// Get handles GET /api/icon-cues/:cueId
func (h *CueHandler) Get(c *fiber.Ctx) error {
	cue, err := h.service.GetCue(c.Context(), c.Params("cueId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, cue)
}

// Update handles PUT /api/icon-cues/:cueId
func (h *CueHandler) Update(c *fiber.Ctx) error {
	var req model.UpdateCueRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	cue, err := h.service.UpdateCue(c.Context(), c.Params("cueId"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, cue)
}

// Delete handles DELETE /api/icon-cues/:cueId
func (h *CueHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.DeleteCue(c.Context(), c.Params("cueId")); err != nil {
		return writeError(c, err)
	}
	return response.NoContent(c)
}

// Approve handles POST /api/icon-cues/:cueId/approve
func (h *CueHandler) Approve(c *fiber.Ctx) error {
	cue, err := h.service.ApproveCue(c.Context(), c.Params("cueId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, cue)
}

// Reject handles POST /api/icon-cues/:cueId/reject
func (h *CueHandler) Reject(c *fiber.Ctx) error {
	var req model.RejectCueRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	cue, err := h.service.RejectCue(c.Context(), c.Params("cueId"), req.Notes)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, cue)
}

// ApproveAll handles POST /api/episodes/:episodeId/icon-cues/approve-all
func (h *CueHandler) ApproveAll(c *fiber.Ctx) error {
	res, err := h.service.ApproveAllSuggested(c.Context(), c.Params("episodeId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, res)
}

// RejectAll handles POST /api/episodes/:episodeId/icon-cues/reject-all
func (h *CueHandler) RejectAll(c *fiber.Ctx) error {
	res, err := h.service.RejectAllSuggested(c.Context(), c.Params("episodeId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, res)
}

// Anchors handles GET /api/episodes/:episodeId/icon-cues/anchors
func (h *CueHandler) Anchors(c *fiber.Ctx) error {
	cues, err := h.service.ListAnchors(c.Context(), c.Params("episodeId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, fiber.Map{"anchors": cues})
}

// SetAnchor handles POST /api/icon-cues/:cueId/anchor
func (h *CueHandler) SetAnchor(c *fiber.Ctx) error {
	var req model.SetAnchorRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	cue, err := h.service.SetAnchor(c.Context(), c.Params("cueId"), &req)
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, cue)
}

// RemoveAnchor handles DELETE /api/icon-cues/:cueId/anchor
func (h *CueHandler) RemoveAnchor(c *fiber.Ctx) error {
	cue, err := h.service.RemoveAnchor(c.Context(), c.Params("cueId"))
	if err != nil {
		return writeError(c, err)
	}
	return response.OK(c, cue)
}

// Export handles GET /api/episodes/:episodeId/icon-cues/export?format=
func (h *CueHandler) Export(c *fiber.Ctx) error {
	export, err := h.service.ExportApproved(c.Context(), c.Params("episodeId"), model.ExportFormat(c.Query("format")))
	if err != nil {
		return writeError(c, err)
	}

	if export.Format == model.ExportJSON {
		return response.OK(c, export)
	}
	c.Set(fiber.HeaderContentType, export.ContentType)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="`+export.Filename+`"`)
	return c.SendString(export.Body)
}
