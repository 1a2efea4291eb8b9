package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"

	"immofeed/internal/ingest"
	"immofeed/internal/models"
	"immofeed/internal/repository"
	"immofeed/internal/source"
)

type SourceHandler struct {
	Repo      repository.Repository
	Scheduler *ingest.Scheduler
}

func (h *SourceHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/sources", h.listActive)
}

func (h *SourceHandler) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/sources", h.listAll)
	g.POST("/sources", h.create)
	g.PATCH("/sources/:id", h.update)
	g.POST("/sources/:id/activate", h.activate)
	g.POST("/sources/:id/deactivate", h.deactivate)
}

func (h *SourceHandler) listActive(c *gin.Context) {
	items, err := h.Repo.ListActiveSources(c.Request.Context())
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, items, nil)
}

func (h *SourceHandler) listAll(c *gin.Context) {
	items, err := h.Repo.ListSources(c.Request.Context())
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, items, nil)
}

type createSourceRequest struct {
	Name       string          `json:"name" binding:"required"`
	SourceType string          `json:"source_type" binding:"required"`
	Endpoint   string          `json:"endpoint" binding:"required,url"`
	FetchCfg   json.RawMessage `json:"fetch_cfg"`
	Active     bool            `json:"active"`
}

func (h *SourceHandler) create(c *gin.Context) {
	var req createSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if !validSourceType(req.SourceType) {
		Error(c, http.StatusBadRequest, "unsupported source type", nil)
		return
	}

	item := &models.Source{
		Name:       strings.TrimSpace(req.Name),
		SourceType: req.SourceType,
		Endpoint:   req.Endpoint,
		FetchCfg:   datatypes.JSON(req.FetchCfg),
		Active:     req.Active,
	}
	if err := h.Repo.CreateSource(c.Request.Context(), item); err != nil {
		repoError(c, err)
		return
	}
	Ok(c, item, nil)
}

type updateSourceRequest struct {
	Name       *string         `json:"name"`
	SourceType *string         `json:"source_type"`
	Endpoint   *string         `json:"endpoint"`
	FetchCfg   json.RawMessage `json:"fetch_cfg"`
}

func (h *SourceHandler) update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	item, err := h.Repo.GetSourceByID(c.Request.Context(), id)
	if err != nil {
		repoError(c, err)
		return
	}
	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.SourceType != nil {
		if !validSourceType(*req.SourceType) {
			Error(c, http.StatusBadRequest, "unsupported source type", nil)
			return
		}
		item.SourceType = *req.SourceType
	}
	if req.Endpoint != nil {
		item.Endpoint = *req.Endpoint
	}
	if len(req.FetchCfg) > 0 {
		item.FetchCfg = datatypes.JSON(req.FetchCfg)
	}

	if err := h.Repo.UpdateSource(c.Request.Context(), item); err != nil {
		repoError(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *SourceHandler) activate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Repo.SetSourceActive(c.Request.Context(), id, true); err != nil {
		repoError(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "active": true}, nil)
}

func (h *SourceHandler) deactivate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Repo.SetSourceActive(c.Request.Context(), id, false); err != nil {
		repoError(c, err)
		return
	}
	// A deactivated source's in-flight job is cancelled cooperatively.
	cancelled := false
	if h.Scheduler != nil {
		cancelled = h.Scheduler.CancelSource(id)
	}
	Ok(c, gin.H{"id": id, "active": false, "job_cancelled": cancelled}, nil)
}

func validSourceType(t string) bool {
	return t == source.TypeJSONAPI || t == source.TypeHTML
}
