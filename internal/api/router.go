package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hirescreen/hirescreen/internal/agent"
	"github.com/hirescreen/hirescreen/internal/api/handlers"
	mw "github.com/hirescreen/hirescreen/internal/api/middleware"
	"github.com/hirescreen/hirescreen/internal/buildconfig"
	"github.com/hirescreen/hirescreen/internal/config"
	"github.com/hirescreen/hirescreen/internal/domain"
	"github.com/hirescreen/hirescreen/internal/embedding"
	"github.com/hirescreen/hirescreen/internal/llm"
	"github.com/hirescreen/hirescreen/internal/service"
	"github.com/hirescreen/hirescreen/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// App holds the router and the agent orchestrator for lifecycle management.
type App struct {
	Router       *chi.Mux
	Orchestrator *agent.Orchestrator
	startTime    time.Time
	requestCount atomic.Int64
	errorCount   atomic.Int64
}

func NewApp(db *pgxpool.Pool, logger *zap.Logger) *App {
	// Stores
	vacancyStore := store.NewVacancyStore(db)
	candidateStore := store.NewCandidateStore(db)
	responseStore := store.NewResponseStore(db)
	documentStore := store.NewDocumentStore(db)

	// External clients via provider factory
	llmClient, err := llm.NewClient(config.LLMProvider(), config.LLMAPIKey())
	if err != nil {
		logger.Warn("LLM client initialization failed, falling back to mock",
			zap.String("provider", config.LLMProvider()), zap.Error(err))
		llmClient = llm.NewMockClient()
	} else {
		logger.Info("LLM client initialized", zap.String("provider", config.LLMProvider()))
	}

	embeddingClient, err := embedding.NewClient(config.EmbeddingProvider(), config.EmbeddingAPIKey())
	if err != nil {
		logger.Warn("Embedding client initialization failed, falling back to mock",
			zap.String("provider", config.EmbeddingProvider()), zap.Error(err))
		embeddingClient = embedding.NewMockClient()
	} else {
		logger.Info("Embedding client initialized", zap.String("provider", config.EmbeddingProvider()))
	}

	// Services
	retrievalSvc := service.NewRetrievalService(embeddingClient, documentStore, logger)

	// Agent system
	orch := agent.NewOrchestrator(logger, agent.Deps{
		LLM:        llmClient,
		Retrieval:  retrievalSvc,
		Vacancies:  vacancyStore,
		Candidates: candidateStore,
		Responses:  responseStore,
	})
	orch.SetMonitorInterval(config.MonitorInterval())
	orch.SetHealthCheckInterval(config.HealthCheckInterval())
	orch.Bus().SetDefaultMaxRetries(config.EventMaxRetries())

	// Handlers
	screeningHandler := handlers.NewScreeningHandler(orch, vacancyStore, candidateStore, responseStore)
	agentsHandler := handlers.NewAgentsHandler(orch)
	eventsHandler := handlers.NewEventsHandler(orch.Bus())
	ragHandler := handlers.NewRAGHandler(retrievalSvc)

	r := chi.NewRouter()

	app := &App{
		Router:       r,
		Orchestrator: orch,
		startTime:    time.Now(),
	}

	// Metrics collector for middleware
	metricsCollector := mw.NewMetricsCollector(&app.requestCount, &app.errorCount)

	// Global middleware (order matters)
	r.Use(mw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(metricsCollector.Middleware)
	r.Use(mw.Logging(logger))
	r.Use(middleware.Recoverer)
	r.Use(mw.RateLimit(config.RateLimitRPS(), config.RateLimitBurst()))

	r.Get("/health", healthHandler(db))
	r.Get("/metrics", app.metricsHandler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/vacancies", func(r chi.Router) {
			r.Post("/", screeningHandler.CreateVacancy)
			r.Get("/", screeningHandler.ListVacancies)
		})

		r.Post("/candidates", screeningHandler.CreateCandidate)
		r.Post("/candidates/process-application", screeningHandler.ProcessApplication)
		r.Get("/candidates/{responseID}/analysis", screeningHandler.GetAnalysis)

		r.Get("/responses/{id}", screeningHandler.GetResponse)

		r.Post("/employers/request", screeningHandler.EmployerRequest)
		r.Get("/employers/{vacancyID}/insights", screeningHandler.GetInsights)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", agentsHandler.List)
			r.Get("/metrics", agentsHandler.AllMetrics)
			r.Get("/system", agentsHandler.System)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/metrics", agentsHandler.Metrics)
				r.Post("/restart", agentsHandler.Restart)
			})
		})

		r.Route("/events", func(r chi.Router) {
			r.Get("/metrics", eventsHandler.Metrics)
			r.Get("/dlq", eventsHandler.DeadLetterQueue)
			r.Delete("/dlq", eventsHandler.ClearDeadLetterQueue)
		})

		r.Route("/rag", func(r chi.Router) {
			r.Post("/documents", ragHandler.AddDocument)
			r.Post("/search", ragHandler.Search)
			r.Get("/stats", ragHandler.Stats)
		})
	})

	return app
}

func healthHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "error", "error": err.Error()})
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status":  "ok",
			"version": buildconfig.Version(),
			"commit":  buildconfig.Commit(),
		})
	}
}

func (app *App) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)

		uptime := time.Since(app.startTime)

		response := map[string]any{
			"uptime_seconds": uptime.Seconds(),
			"uptime_human":   uptime.Round(time.Second).String(),
			"request_count":  app.requestCount.Load(),
			"error_count":    app.errorCount.Load(),
			"goroutines":     runtime.NumGoroutine(),
			"memory": map[string]any{
				"alloc_mb":       float64(memStats.Alloc) / 1024 / 1024,
				"total_alloc_mb": float64(memStats.TotalAlloc) / 1024 / 1024,
				"sys_mb":         float64(memStats.Sys) / 1024 / 1024,
				"num_gc":         memStats.NumGC,
			},
			"go_version": runtime.Version(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

// Ensure stores and clients satisfy interfaces at compile time.
var (
	_ domain.VacancyStore    = (*store.VacancyStore)(nil)
	_ domain.CandidateStore  = (*store.CandidateStore)(nil)
	_ domain.ResponseStore   = (*store.ResponseStore)(nil)
	_ domain.DocumentStore   = (*store.DocumentStore)(nil)
	_ domain.EmbeddingClient = (*embedding.OpenAIClient)(nil)
	_ domain.EmbeddingClient = (*embedding.MockClient)(nil)
	_ domain.LLMClient       = (*llm.OpenAIClient)(nil)
	_ domain.LLMClient       = (*llm.AnthropicClient)(nil)
	_ domain.LLMClient       = (*llm.MockClient)(nil)
	_ domain.RetrievalClient = (*service.RetrievalService)(nil)
)
