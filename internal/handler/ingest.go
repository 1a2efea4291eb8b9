package handler

import (
	"github.com/gin-gonic/gin"

	"immofeed/internal/ingest"
)

type IngestHandler struct {
	Scheduler *ingest.Scheduler
}

func (h *IngestHandler) RegisterAdmin(g *gin.RouterGroup) {
	g.POST("/ingest/run", h.run)
}

// run triggers a scheduling pass. With source_id it admits a single job,
// answering 409 while one is already pending or running.
func (h *IngestHandler) run(c *gin.Context) {
	if sourceID := uint64(intQuery(c, "source_id", 0)); sourceID > 0 {
		job, err := h.Scheduler.RunSource(c.Request.Context(), sourceID)
		if err != nil {
			repoError(c, err)
			return
		}
		Ok(c, job, nil)
		return
	}

	if err := h.Scheduler.RunEligibleSources(c.Request.Context()); err != nil {
		repoError(c, err)
		return
	}
	Ok(c, gin.H{"triggered": true}, nil)
}
