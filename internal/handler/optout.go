package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"immofeed/internal/models"
	"immofeed/internal/optout"
	"immofeed/internal/repository"
)

type OptOutHandler struct {
	Repo      repository.Repository
	Processor *optout.Processor
}

func (h *OptOutHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/optouts", h.submit)
}

func (h *OptOutHandler) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/optouts", h.list)
	g.GET("/optouts/:id", h.get)
	g.POST("/optouts/:id/approve", h.approve)
	g.POST("/optouts/:id/reject", h.reject)
}

type submitOptOutRequest struct {
	ListingID      uint64 `json:"listing_id" binding:"required"`
	RequesterName  string `json:"requester_name" binding:"required"`
	RequesterEmail string `json:"requester_email" binding:"required,email"`
	Reason         string `json:"reason" binding:"required"`
}

func (h *OptOutHandler) submit(c *gin.Context) {
	var req submitOptOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}

	item := &models.OptOutRequest{
		ListingID:      req.ListingID,
		RequesterName:  strings.TrimSpace(req.RequesterName),
		RequesterEmail: strings.TrimSpace(req.RequesterEmail),
		Reason:         strings.TrimSpace(req.Reason),
	}
	if err := h.Processor.Submit(c.Request.Context(), item); err != nil {
		repoError(c, err)
		return
	}
	Ok(c, gin.H{"id": item.ID, "status": item.Status}, nil)
}

func (h *OptOutHandler) list(c *gin.Context) {
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	var statusPtr *string
	if status := strings.TrimSpace(c.Query("status")); status != "" {
		statusPtr = &status
	}

	items, err := h.Repo.ListOptOutRequests(c.Request.Context(), repository.ListOptOutParams{
		Status: statusPtr,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset, "count": len(items)})
}

func (h *OptOutHandler) get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.Repo.GetOptOutRequest(c.Request.Context(), id)
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, item, nil)
}

func (h *OptOutHandler) approve(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Processor.Approve(c.Request.Context(), id); err != nil {
		repoError(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "status": models.OptOutStatusApproved}, nil)
}

type rejectOptOutRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *OptOutHandler) reject(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req rejectOptOutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Processor.Reject(c.Request.Context(), id, strings.TrimSpace(req.Reason)); err != nil {
		repoError(c, err)
		return
	}
	Ok(c, gin.H{"id": id, "status": models.OptOutStatusRejected}, nil)
}
