package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"kiln_control/internal/models"
	"kiln_control/internal/repository"
	"kiln_control/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidID     = "invalid id: must be a positive integer"
	errProgramGone   = "program not found"
	errLoadPrograms  = "failed to load programs"
	errSaveProgram   = "failed to save program"
	errDeleteProgram = "failed to delete program"
)

// pathID parses the :id route parameter.
func pathID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidID})
		return 0, false
	}
	return id, true
}

// @Summary      List programs
// @Tags         programs
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, programs"
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/programs [get]
func (h *Handler) listPrograms(c *gin.Context) {
	list, err := h.services.Programs.List(c.Request.Context())
	if err != nil {
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadPrograms, "programs_list_failed", err)
		return
	}
	if list == nil {
		list = []models.ProgramInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"count":    len(list),
		"programs": list,
	})
}

// @Summary      Program detail
// @Tags         programs
// @Produce      json
// @Param        id   path      int  true  "Program id"
// @Success      200  {object}  models.Program
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/programs/{id} [get]
func (h *Handler) getProgram(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := h.services.Programs.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrProgramNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errProgramGone})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errLoadPrograms, "program_get_failed", err, "id", id)
		return
	}
	c.JSON(http.StatusOK, p)
}

// @Summary      Import a program
// @Description  Stores a new program; instructions are afap, hold (param = seconds), pause, ramp (param = degrees/hour)
// @Tags         programs
// @Accept       json
// @Produce      json
// @Param        body  body      models.Program  true  "Program"
// @Success      201   {object}  map[string]int
// @Failure      400   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /api/v1/programs [post]
func (h *Handler) importProgram(c *gin.Context) {
	var p models.Program
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	id, err := h.services.Programs.Import(c.Request.Context(), p)
	if err != nil {
		if service.IsInvalidProgram(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errSaveProgram, "program_import_failed", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// @Summary      Delete a program
// @Description  Soft delete: the program disappears from listings, past firings keep their reference
// @Tags         programs
// @Param        id   path  int  true  "Program id"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/programs/{id} [delete]
func (h *Handler) deleteProgram(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.services.Programs.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrProgramNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": errProgramGone})
			return
		}
		h.logAndJSONError(c, http.StatusInternalServerError, errDeleteProgram, "program_delete_failed", err, "id", id)
		return
	}
	c.Status(http.StatusNoContent)
}
