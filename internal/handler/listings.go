package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"immofeed/internal/models"
	"immofeed/internal/repository"
)

type ListingHandler struct {
	Repo repository.Repository
}

func (h *ListingHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/listings/:id", h.get)
}

func (h *ListingHandler) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("/listings/stats", h.stats)
}

// get serves only active listings. Removed listings answer exactly like
// nonexistent ones so suppression is invisible to callers.
func (h *ListingHandler) get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.Repo.GetListingByID(c.Request.Context(), id)
	if err != nil {
		repoError(c, err)
		return
	}
	if item.Status != models.ListingStatusActive {
		Error(c, http.StatusNotFound, "not found", nil)
		return
	}
	Ok(c, item, nil)
}

func (h *ListingHandler) stats(c *gin.Context) {
	active, err := h.Repo.CountListingsByStatus(c.Request.Context(), models.ListingStatusActive)
	if err != nil {
		repoError(c, err)
		return
	}
	removed, err := h.Repo.CountListingsByStatus(c.Request.Context(), models.ListingStatusRemoved)
	if err != nil {
		repoError(c, err)
		return
	}
	Ok(c, gin.H{"active": active, "removed": removed}, nil)
}
