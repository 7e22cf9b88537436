package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"strconv"

	"github.com/rawblock/discovery-engine/internal/api"
	"github.com/rawblock/discovery-engine/internal/campaign"
	"github.com/rawblock/discovery-engine/internal/collaborators"
	"github.com/rawblock/discovery-engine/internal/config"
	"github.com/rawblock/discovery-engine/internal/engine"
	"github.com/rawblock/discovery-engine/internal/store"
)

func main() {
	log.Println("Starting Discovery Engine...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("FATAL: invalid configuration: %v", err)
	}

	// ─── Persistence ─────────────────────────────────────────────────────
	// A missing or unreachable database degrades the engine to
	// in-memory-only passes rather than failing startup.
	var signalLog engine.SignalLog
	var episodeStore engine.EpisodeStore
	var pg *store.PostgresStore
	if cfg.DatabaseURL != "" {
		pg, err = store.Connect(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Printf("Warning: Failed to connect to PostgreSQL, continuing without persisting signals. Error: %v", err)
		} else {
			defer pg.Close()
			if err := pg.InitSchema(context.Background()); err != nil {
				log.Printf("Warning: schema init failed: %v", err)
			}
			signalLog = pg
			episodeStore = pg
		}
	} else {
		log.Println("Warning: DATABASE_URL not set; signals will not be durably persisted")
	}
	if signalLog == nil {
		signalLog = engine.NewMemorySignalLog()
	}

	// ─── Temporal priors ───────────────────────────────────────────────────
	priors := engine.NewTemporalPriorService()
	priors.Load(cfg.PriorFilePath)

	// ─── WebSocket hub ─────────────────────────────────────────────────────
	wsHub := api.NewHub()
	go wsHub.Run()

	// ─── Collaborators ─────────────────────────────────────────────────────
	scraper := collaborators.NewHTTPScraper(collaborators.SearchConfig{
		SearchURL: getEnvOrDefault("SEARCH_API_URL", "http://localhost:9200/search?q="),
	})
	llm := collaborators.NewHTTPLanguageModel(collaborators.LLMConfig{
		CompletionURL: getEnvOrDefault("LLM_COMPLETION_URL", "http://localhost:9300/v1/complete"),
		APIKey:        os.Getenv("LLM_API_KEY"),
	})
	judge := engine.NewDefaultLLMJudge(llm)
	peers := collaborators.NewStaticPeerGraph()
	seeder := collaborators.NewTemplateSeeder()
	alerts := engine.NewAlertManager(func(a engine.Alert) {
		payload, err := json.Marshal(map[string]interface{}{"type": "alert", "alert": a})
		if err != nil {
			return
		}
		wsHub.Broadcast(payload)
	})

	orchestrator := engine.NewOrchestrator(
		scraper, llm, judge, episodeStore, peers, signalLog, priors, seeder, alerts,
		engine.OrchestratorConfig{
			MaxPasses:         cfg.MaxPasses,
			PerCategoryBudget: cfg.PerCategoryBudget,
			TargetConfidence:  cfg.TargetConfidence,
		},
	)

	runner := campaign.NewRunner(orchestrator, getEnvIntOrDefault("CAMPAIGN_CONCURRENCY", 4))

	r := api.SetupRouter(orchestrator, runner, alerts, wsHub)

	log.Printf("Engine listening on %s\n", cfg.ListenAddr)
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvIntOrDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Warning: invalid int for %s=%q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}
