package handler

import (
	"github.com/gin-gonic/gin"

	"immofeed/internal/repository"
)

type JobHandler struct {
	Repo repository.Repository
}

func (h *JobHandler) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/jobs", h.listRecent)
	g.GET("/jobs/:id", h.get)
}

func (h *JobHandler) listRecent(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	items, err := h.Repo.ListRecentJobs(c.Request.Context(), limit)
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "count": len(items)})
}

func (h *JobHandler) get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.Repo.GetJobByID(c.Request.Context(), id)
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, item, nil)
}
