package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"immofeed/internal/repository"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// repoError maps store sentinels onto API statuses. Anything unexpected
// collapses to a generic 500 so internal faults never leak to callers.
func repoError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		Error(c, http.StatusNotFound, "not found", nil)
	case errors.Is(err, repository.ErrConflict):
		Error(c, http.StatusConflict, "conflicting record exists", nil)
	case errors.Is(err, repository.ErrJobActive):
		Error(c, http.StatusConflict, "source already has an active job", nil)
	case errors.Is(err, repository.ErrInvalidState):
		Error(c, http.StatusConflict, "invalid state transition", nil)
	default:
		Error(c, http.StatusInternalServerError, "internal error", nil)
	}
}

func intQuery(c *gin.Context, key string, def int) int {
	if val := c.Query(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return def
}

func idParam(c *gin.Context, key string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(key), 10, 64)
	if err != nil || id == 0 {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return 0, false
	}
	return id, true
}
