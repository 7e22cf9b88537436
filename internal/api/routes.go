package api

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rawblock/discovery-engine/internal/campaign"
	"github.com/rawblock/discovery-engine/internal/engine"
)

// APIHandler exposes the discovery engine over HTTP for demonstration and
// operational use; the engine itself has no HTTP dependency.
type APIHandler struct {
	orchestrator *engine.Orchestrator
	runner       *campaign.Runner
	alerts       *engine.AlertManager
	wsHub        *Hub
	reports      *reportCache
}

// SetupRouter wires the gin.Engine: public health/stream routes, then a
// bearer-auth + rate-limited group for everything that drives engine work.
func SetupRouter(orchestrator *engine.Orchestrator, runner *campaign.Runner, alerts *engine.AlertManager, wsHub *Hub) *gin.Engine {
	r := gin.Default()

	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if allowedOrigins == "" || allowedOrigins == "*" {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		} else {
			for _, allowed := range strings.Split(allowedOrigins, ",") {
				if strings.TrimSpace(allowed) == origin {
					c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	handler := &APIHandler{
		orchestrator: orchestrator,
		runner:       runner,
		alerts:       alerts,
		wsHub:        wsHub,
		reports:      newReportCache(),
	}

	pub := r.Group("/api/v1")
	{
		pub.GET("/health", handler.handleHealth)
		pub.GET("/stream", wsHub.Subscribe)
	}

	auth := r.Group("/api/v1")
	auth.Use(AuthMiddleware())
	auth.Use(NewRateLimiter(30, 5).Middleware())
	{
		auth.POST("/entities/:id/run", handler.handleRunEntity)
		auth.GET("/entities/:id/progress", handler.handleEntityProgress)
		auth.GET("/entities/:id/report", handler.handleEntityReport)

		camp := auth.Group("/campaign")
		{
			camp.POST("/sweep", handler.handleStartSweep)
			camp.GET("/progress", handler.handleSweepProgress)
		}

		al := auth.Group("/alerts")
		{
			al.GET("/recent", handler.handleRecentAlerts)
			al.POST("/webhooks", handler.handleRegisterWebhook)
			al.DELETE("/webhooks/:label", handler.handleRemoveWebhook)
		}
	}

	r.Static("/dashboard", "./public")

	return r
}

func (h *APIHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "operational",
		"engine": "Discovery Engine",
		"capabilities": gin.H{
			"eig_scheduling":     true,
			"ralph_validator":    true,
			"temporal_priors":    true,
			"adaptive_hops":      true,
			"multi_pass":         true,
			"replay_diagnostics": true,
		},
	})
}
