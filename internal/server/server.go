// Package server exposes the advisory pipeline and the agent registry over
// HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/haql-ai/murshid/internal/coordinator"
	"github.com/haql-ai/murshid/internal/observability"
	"github.com/haql-ai/murshid/internal/registry"
)

// Config holds server configuration.
type Config struct {
	ListenAddr   string
	APIKey       string // guards mutating registry endpoints; empty disables auth
	Debug        bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP front of the advisory process.
type Server struct {
	coordinator *coordinator.Coordinator
	registry    *registry.Registry
	engine      *gin.Engine
	httpServer  *http.Server
	probeClient *http.Client
	logger      *observability.Logger
	metrics     *observability.MetricsCollector
	startTime   time.Time
}

// New builds the server and its routes.
func New(coord *coordinator.Coordinator, reg *registry.Registry, config Config, logger *observability.Logger, metrics *observability.MetricsCollector) *Server {
	if config.ListenAddr == "" {
		config.ListenAddr = ":8080"
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = 30 * time.Second
	}
	if config.WriteTimeout <= 0 {
		// Advisory processing can legitimately take a couple of minutes.
		config.WriteTimeout = 3 * time.Minute
	}
	if logger == nil {
		logger = observability.Nop()
	}

	if !config.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-API-Key"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		coordinator: coord,
		registry:    reg,
		engine:      engine,
		probeClient: &http.Client{Timeout: 5 * time.Second},
		logger:      logger,
		metrics:     metrics,
		startTime:   time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	s.setupRoutes(config.APIKey)
	return s
}

func (s *Server) setupRoutes(apiKey string) {
	s.engine.Use(s.requestLogger())

	s.engine.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		if h := s.metrics.Handler(); h != nil {
			s.engine.GET("/metrics", gin.WrapH(h))
		}
	}

	v1 := s.engine.Group("/v1")

	v1.POST("/advisory/query", s.handleQuery)

	agentsGroup := v1.Group("/registry/agents")
	agentsGroup.GET("", s.handleListAgents)
	agentsGroup.GET("/:agent_id", s.handleGetAgent)
	agentsGroup.GET("/:agent_id/health", s.handleAgentHealth)

	discover := v1.Group("/registry/discover")
	discover.GET("/capability", s.handleListAgents)
	discover.POST("/tags", s.handleDiscoverByTags)

	mutating := v1.Group("/registry/agents")
	mutating.Use(apiKeyAuth(apiKey))
	mutating.POST("", s.handleRegister)
	mutating.DELETE("/:agent_id", s.handleDeregister)
	mutating.POST("/:agent_id/heartbeat", s.handleHeartbeat)
	mutating.PUT("/:agent_id/performance", s.handleUpdatePerformance)
	mutating.PUT("/:agent_id/status", s.handleUpdateStatus)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
