package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mailwave/internal/segment"
	"mailwave/pkg/models"
)

// PrebuiltSegments godoc
// @Summary      List prebuilt segment templates
// @Tags         segments
// @Produce      json
// @Success      200  {array}  PrebuiltSegment
// @Router       /segments/prebuilt [get]
func (h *Handler) PrebuiltSegments(c *gin.Context) {
	templates := segment.Prebuilt(time.Now().UTC())
	out := make([]PrebuiltSegment, 0, len(templates))
	for _, t := range templates {
		out = append(out, PrebuiltSegment{
			Key:         t.Key,
			Name:        t.Name,
			Description: t.Description,
			Rules:       t.Rules,
			Logic:       t.Logic,
		})
	}
	c.JSON(http.StatusOK, out)
}

// PreviewSegment godoc
// @Summary      Size ad-hoc rules against the contact base
// @Tags         segments
// @Accept       json
// @Produce      json
// @Param        rules  body      RulesRequest  true  "Rules and logic"
// @Success      200    {object}  audience.PreviewResult
// @Failure      400    {object}  map[string]interface{}
// @Router       /segments/preview [post]
func (h *Handler) PreviewSegment(c *gin.Context) {
	var req RulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	result, err := h.segments.Preview(c.Request.Context(), req.Rules, models.ParseLogic(req.Logic))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SampleSegment godoc
// @Summary      Sample eligible contacts matching ad-hoc rules
// @Tags         segments
// @Accept       json
// @Produce      json
// @Param        rules  body      RulesRequest  true  "Rules, logic and limit"
// @Success      200    {object}  SampleResponse
// @Router       /segments/sample [post]
func (h *Handler) SampleSegment(c *gin.Context) {
	var req RulesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	contacts, err := h.segments.Sample(c.Request.Context(), req.Rules, models.ParseLogic(req.Logic), req.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if contacts == nil {
		contacts = []*models.Contact{}
	}
	c.JSON(http.StatusOK, SampleResponse{Contacts: contacts, Count: len(contacts)})
}

// SegmentStats godoc
// @Summary      Segment engagement statistics
// @Tags         segments
// @Produce      json
// @Param        id   path      string  true  "Segment ID"
// @Success      200  {object}  audience.Stats
// @Failure      404  {object}  map[string]interface{}
// @Router       /segments/{id}/stats [get]
func (h *Handler) SegmentStats(c *gin.Context) {
	stats, err := h.segments.Stats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SyncSegment godoc
// @Summary      Recompute a segment's contact count
// @Tags         segments
// @Produce      json
// @Param        id   path      string  true  "Segment ID"
// @Success      200  {object}  audience.SyncResult
// @Failure      404  {object}  map[string]interface{}
// @Router       /segments/{id}/sync [post]
func (h *Handler) SyncSegment(c *gin.Context) {
	result, err := h.segments.Sync(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
