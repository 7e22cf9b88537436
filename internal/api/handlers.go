package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/discovery-engine/pkg/model"
)

// reportCache holds the most recent OpportunityReport per entity; the
// engine itself never persists reports.
type reportCache struct {
	mu      sync.Mutex
	reports map[string]model.OpportunityReport
}

func newReportCache() *reportCache {
	return &reportCache{reports: make(map[string]model.OpportunityReport)}
}

func (c *reportCache) put(entityID string, r model.OpportunityReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports[entityID] = r
}

func (c *reportCache) get(entityID string) (model.OpportunityReport, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.reports[entityID]
	return r, ok
}

// POST /api/v1/entities/:id/run
// Launches an orchestrator run for one entity in the background and
// streams a completion event over the WebSocket hub when it finishes.
func (h *APIHandler) handleRunEntity(c *gin.Context) {
	entityID := c.Param("id")

	var req struct {
		Name            string   `json:"name" binding:"required"`
		Type            string   `json:"type"`
		Tier            string   `json:"tier"`
		DomainBlacklist []string `json:"domain_blacklist"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if req.Tier == "" {
		req.Tier = "standard"
	}
	entityType := model.EntityType(req.Type)
	if !entityType.IsValid() {
		entityType = model.EntityClub
	}

	entity := model.Entity{EntityID: entityID, Name: req.Name, Type: entityType, DomainBlacklist: req.DomainBlacklist}

	go func() {
		report := h.orchestrator.Run(context.Background(), entity, req.Tier)
		h.reports.put(entityID, report)
		if h.wsHub != nil {
			payload, _ := json.Marshal(gin.H{"type": "run_complete", "entityId": entityID, "report": report})
			h.wsHub.Broadcast(payload)
		}
		log.Printf("[API] run complete for entity %s: %d pass(es), %d opportunity line(s)", entityID, report.PassesRun, len(report.Lines))
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":   "run_started",
		"entityId": entityID,
	})
}

// GET /api/v1/entities/:id/progress
func (h *APIHandler) handleEntityProgress(c *gin.Context) {
	entityID := c.Param("id")
	c.JSON(http.StatusOK, h.orchestrator.GetProgress(entityID))
}

// GET /api/v1/entities/:id/report
func (h *APIHandler) handleEntityReport(c *gin.Context) {
	entityID := c.Param("id")
	report, ok := h.reports.get(entityID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No completed run for this entity yet"})
		return
	}
	c.JSON(http.StatusOK, report)
}

// POST /api/v1/campaign/sweep
// Launches a bounded-concurrency catalog sweep over the submitted entity
// list. Body: { "entities": [...], "tier": "standard" }
func (h *APIHandler) handleStartSweep(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Campaign runner not configured"})
		return
	}

	var req struct {
		Entities []model.Entity `json:"entities" binding:"required"`
		Tier     string         `json:"tier"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if len(req.Entities) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "entities must not be empty"})
		return
	}
	if req.Tier == "" {
		req.Tier = "standard"
	}

	go h.runner.Sweep(context.Background(), req.Entities, req.Tier, func(report model.OpportunityReport) {
		h.reports.put(report.EntityID, report)
		if h.wsHub != nil {
			payload, _ := json.Marshal(gin.H{"type": "sweep_entity_complete", "report": report})
			h.wsHub.Broadcast(payload)
		}
	})

	c.JSON(http.StatusAccepted, gin.H{
		"status":        "sweep_started",
		"totalEntities": len(req.Entities),
	})
}

// GET /api/v1/campaign/progress
func (h *APIHandler) handleSweepProgress(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Campaign runner not configured"})
		return
	}
	c.JSON(http.StatusOK, h.runner.GetProgress())
}

// GET /api/v1/alerts/recent
func (h *APIHandler) handleRecentAlerts(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusOK, gin.H{"alerts": []interface{}{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": h.alerts.GetRecentAlerts()})
}

// POST /api/v1/alerts/webhooks
func (h *APIHandler) handleRegisterWebhook(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert manager not configured"})
		return
	}
	var req struct {
		Label string `json:"label" binding:"required"`
		URL   string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	h.alerts.RegisterWebhook(req.Label, req.URL)
	c.JSON(http.StatusOK, gin.H{"status": "registered", "label": req.Label})
}

// DELETE /api/v1/alerts/webhooks/:label
func (h *APIHandler) handleRemoveWebhook(c *gin.Context) {
	if h.alerts == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Alert manager not configured"})
		return
	}
	h.alerts.RemoveWebhook(c.Param("label"))
	c.JSON(http.StatusOK, gin.H{"status": "removed"})
}
