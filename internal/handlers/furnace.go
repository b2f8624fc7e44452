package handlers

import (
	"errors"
	"net/http"

	"kiln_control/internal/ipc"
	"kiln_control/internal/models"
	"kiln_control/internal/service"

	"github.com/gin-gonic/gin"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK   = "ok"
	statusSent = "sent"

	errGetStatus       = "failed to read kiln status"
	errDaemonDown      = "kiln daemon is not running"
	errSendCommand     = "failed to deliver command"
	errInvalidBodyPref = "invalid body: "
)

// Centralized error logging and response.
func (h *Handler) logAndJSONError(c *gin.Context, httpCode int, userMsg, logKey string, err error, kv ...interface{}) {
	if h.log != nil && err != nil {
		fields := append([]interface{}{"err", err, "request_id", requestID(c)}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	c.JSON(httpCode, gin.H{"error": userMsg})
}

// Request DTO for a control command.
type commandRequest struct {
	Cmd string `json:"cmd" binding:"required"` // quit | cancel | set | start | pause | resume
	P1  int32  `json:"p1"`
	P2  int32  `json:"p2"`
}

// CommandRequest is an exported model for Swagger docs of the command payload.
type CommandRequest struct {
	// Command name. Allowed: quit, cancel, set, start, pause, resume
	Cmd string `json:"cmd" example:"start"`
	// Temperature for set, program id for start
	P1 int32 `json:"p1" example:"7"`
	// Step to start from for start
	P2 int32 `json:"p2" example:"0"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Live kiln status
// @Description  Snapshot of the status block published by kilnd; at most one tick stale
// @Tags         kiln
// @Produce      json
// @Success      200  {object}  models.LiveStatus
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/status [get]
func (h *Handler) getStatus(c *gin.Context) {
	st, err := h.services.Monitoring.GetStatus(c.Request.Context())
	if err != nil {
		if errors.Is(err, ipc.ErrStatusUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": errDaemonDown})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errGetStatus, "kiln_get_status_failed", err)
		return
	}
	c.JSON(http.StatusOK, statusView(st))
}

// @Summary      Send a control command
// @Description  Forwards one control message to kilnd. Delivery is not acknowledged.
// @Tags         kiln
// @Accept       json
// @Produce      json
// @Param        body  body   CommandRequest  true  "Command payload"
// @Success      202   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Failure      503   {object}  map[string]string
// @Router       /api/v1/command [post]
func (h *Handler) sendCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	kind, err := service.ParseCommand(req.Cmd)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg := models.ControlMessage{Kind: kind, Param1: req.P1, Param2: req.P2}
	if err := service.ValidateMessage(msg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.services.Control.Send(c.Request.Context(), msg); err != nil {
		h.logAndJSONError(c, http.StatusServiceUnavailable, errSendCommand, "kiln_command_failed", err, "cmd", kind)
		return
	}
	if h.log != nil {
		h.log.Infow("kiln_command_sent", "cmd", kind, "p1", req.P1, "p2", req.P2, "request_id", requestID(c))
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusSent, "command": msg})
}

// statusView adds derived fields to the raw status block.
func statusView(st models.LiveStatus) gin.H {
	return gin.H{
		"sv":                st.SV,
		"pv":                st.PV,
		"segment_type":      st.SegmentType.String(),
		"segment_elapsed_s": st.SegmentElapsed,
		"segment_planned_s": st.SegmentPlanned,
		"program_elapsed_s": st.ProgramElapsed,
		"total_elapsed_s":   st.TotalElapsed(),
		"firing_id":         st.FiringID,
		"step_id":           st.StepID,
		"firing":            st.Firing(),
	}
}
