package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mailwave/internal/dispatch"
)

// GetABTest godoc
// @Summary      Get an A/B test
// @Tags         abtests
// @Produce      json
// @Param        id   path      string  true  "A/B test ID"
// @Success      200  {object}  models.ABTest
// @Failure      404  {object}  map[string]interface{}
// @Router       /abtests/{id} [get]
func (h *Handler) GetABTest(c *gin.Context) {
	test, err := h.abtests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// StartABTest godoc
// @Summary      Start a draft or paused A/B test
// @Description  The scheduler sends the test once startAt (default now) has passed.
// @Tags         abtests
// @Accept       json
// @Produce      json
// @Param        id     path      string              true   "A/B test ID"
// @Param        start  body      StartABTestRequest  false  "Start time"
// @Success      200    {object}  models.ABTest
// @Failure      409    {object}  map[string]interface{}
// @Router       /abtests/{id}/start [post]
func (h *Handler) StartABTest(c *gin.Context) {
	var req StartABTestRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.badRequest(c, err)
			return
		}
	}
	var at time.Time
	if req.StartAt != nil {
		at = *req.StartAt
	}

	test, err := h.abtests.Start(c.Request.Context(), c.Param("id"), at)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// PauseABTest godoc
// @Summary      Pause an A/B test
// @Tags         abtests
// @Produce      json
// @Param        id   path      string  true  "A/B test ID"
// @Success      200  {object}  models.ABTest
// @Failure      409  {object}  map[string]interface{}
// @Router       /abtests/{id}/pause [post]
func (h *Handler) PauseABTest(c *gin.Context) {
	test, err := h.abtests.Pause(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// CompleteABTest godoc
// @Summary      Record the winner of an A/B test
// @Tags         abtests
// @Accept       json
// @Produce      json
// @Param        id        path      string                 true  "A/B test ID"
// @Param        complete  body      CompleteABTestRequest  true  "Winner"
// @Success      200       {object}  models.ABTest
// @Failure      400       {object}  map[string]interface{}
// @Failure      409       {object}  map[string]interface{}
// @Router       /abtests/{id}/complete [post]
func (h *Handler) CompleteABTest(c *gin.Context) {
	var req CompleteABTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	test, err := h.abtests.Complete(c.Request.Context(), c.Param("id"), req.WinnerID, req.Improvement)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, test)
}

// ABTestPerformance godoc
// @Summary      Per-variant performance of an A/B test
// @Tags         abtests
// @Produce      json
// @Param        id   path      string  true  "A/B test ID"
// @Success      200  {object}  abtest.Performance
// @Failure      404  {object}  map[string]interface{}
// @Router       /abtests/{id}/performance [get]
func (h *Handler) ABTestPerformance(c *gin.Context) {
	perf, err := h.abtests.Performance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, perf)
}

// ABTestAudit godoc
// @Summary      A/B test lifecycle audit trail
// @Tags         abtests
// @Produce      json
// @Param        id     path      string  true   "A/B test ID"
// @Param        limit  query     int     false  "Maximum entries" default(50)
// @Success      200    {array}   dispatch.AuditEntry
// @Router       /abtests/{id}/audit [get]
func (h *Handler) ABTestAudit(c *gin.Context) {
	h.listAudit(c, dispatch.EntityABTest)
}
