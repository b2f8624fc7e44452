package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"kiln_control/internal/repository"
	"kiln_control/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errSecondsInvalid = "invalid 'seconds'; use a positive integer up to 604800"
	errFiringGone     = "firing not found"

	defaultRangeSeconds = 3600
)

// @Summary      Temperature history
// @Description  Samples of the last N seconds (plus the last sample before the window) and the step boundaries inside it
// @Tags         logs
// @Produce      json
// @Param        seconds  query   int  false  "Window length in seconds"  default(3600)
// @Success      200   {object}  service.Trace
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/logs [get]
func (h *Handler) getLogs(c *gin.Context) {
	seconds := defaultRangeSeconds
	if qs := c.Query("seconds"); qs != "" {
		n, err := strconv.Atoi(qs)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errSecondsInvalid})
			return
		}
		seconds = n
	}

	tr, err := h.services.History.Range(c.Request.Context(), service.RangeFilter{Seconds: seconds})
	if err != nil {
		if service.IsInvalidRange(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": errSecondsInvalid})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load logs", "logs_range_failed", err, "seconds", seconds)
		return
	}
	if tr.Boundaries == nil {
		tr.Boundaries = []time.Time{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":      len(tr.Samples),
		"samples":    tr.Samples,
		"boundaries": tr.Boundaries,
	})
}

// @Summary      Firing detail
// @Tags         logs
// @Produce      json
// @Param        id   path      int  true  "Firing id"
// @Success      200  {object}  service.FiringDetail
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/firings/{id} [get]
func (h *Handler) getFiring(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.services.History.Firing(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrFiringNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errFiringGone})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, "failed to load firing", "firing_get_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, d)
}
