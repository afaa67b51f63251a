package api

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "schwabgw/internal/api/docs"
	"schwabgw/internal/config"
	"schwabgw/internal/credstore"
	"schwabgw/internal/logger"
	"schwabgw/internal/middleware"
	"schwabgw/internal/monitoring"
	"schwabgw/internal/schwab"
)

// Server represents the API server
type Server struct {
	config     *config.Config
	router     *gin.Engine
	httpServer *http.Server
	handlers   *Handlers

	client  *schwab.Client
	sink    credstore.Sink
	rotator credstore.Rotator
	metrics *monitoring.Metrics
	log     logger.Logger
	closers []io.Closer
}

// Handlers contains all API handlers
type Handlers struct {
	Health     *HealthHandler
	Accounts   *AccountsHandler
	Orders     *OrdersHandler
	MarketData *MarketDataHandler
}

// Option customizes NewServer.
type Option func(*Server)

// WithClient replaces the brokerage client built from the configuration.
func WithClient(c *schwab.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithMetrics replaces the metrics instance.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the server logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithPersistence replaces the callback persistence collaborators. Nil
// arguments keep the defaults.
func WithPersistence(sink credstore.Sink, rotator credstore.Rotator) Option {
	return func(s *Server) {
		s.sink = sink
		s.rotator = rotator
	}
}

// NewServer creates a new API server
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	// Set Gin mode
	if cfg.App.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &Server{
		config: cfg,
		router: gin.New(),
		log:    logger.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(server)
	}

	if server.metrics == nil {
		server.metrics = monitoring.NewMetrics()
	}
	if server.client == nil {
		server.client = schwab.NewClient(cfg.Credentials(),
			schwab.WithTimeout(cfg.Schwab.RequestTimeout),
			schwab.WithRequestObserver(server.metrics.RecordUpstreamRequest),
			schwab.WithClientLogger(server.log),
			schwab.WithTokenOptions(
				schwab.WithTokenObserver(server.metrics.RecordTokenRefresh),
				schwab.WithLogger(server.log),
			),
		)
	}
	if server.sink == nil {
		server.sink = server.defaultSink()
	}
	if server.rotator == nil {
		server.rotator = credstore.NewEnvFileRotator(cfg.Persistence.EnvFile)
	}

	server.handlers = &Handlers{
		Health:     NewHealthHandler(cfg.Schwab.AccountID),
		Accounts:   NewAccountsHandler(cfg.Credentials(), server.client, server.client.Tokens(), server.sink, server.rotator, server.log),
		Orders:     NewOrdersHandler(server.client, cfg.Schwab.AccountID),
		MarketData: NewMarketDataHandler(server.client),
	}

	// Setup routes
	server.setupRoutes()

	server.httpServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return server, nil
}

// defaultSink writes the token file, plus Redis when configured. Redis is
// optional: a failed connection is logged and skipped.
func (s *Server) defaultSink() credstore.Sink {
	file := credstore.NewFileSink(s.config.Persistence.TokenFile)
	if s.config.Persistence.RedisAddr == "" {
		return file
	}

	redisSink, err := credstore.NewRedisSink(context.Background(), credstore.RedisConfig{
		Addr:     s.config.Persistence.RedisAddr,
		Password: s.config.Persistence.RedisPassword,
		DB:       s.config.Persistence.RedisDB,
	})
	if err != nil {
		s.log.Warn("Redis unavailable, token records go to file only",
			"addr", s.config.Persistence.RedisAddr, "error", err.Error())
		return file
	}
	s.closers = append(s.closers, redisSink)
	return credstore.MultiSink{file, redisSink}
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.AccessLog())
	s.router.Use(middleware.ErrorHandler())
	s.router.Use(corsMiddleware(s.config.CORS))
	s.router.Use(s.metrics.MetricsMiddleware())
	s.router.Use(middleware.HandleError)

	// Swagger documentation
	if s.config.IsDevelopment() {
		s.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Prometheus metrics
	if s.config.Monitoring.PrometheusEnabled {
		s.router.GET(s.config.Monitoring.PrometheusPath, gin.WrapH(s.metrics.Handler()))
	}

	s.router.GET("/health", s.handlers.Health.Health)

	accounts := s.router.Group("/accounts")
	{
		accounts.GET("/login", s.handlers.Accounts.Login)
		accounts.GET("/callback", s.handlers.Accounts.Callback)
		accounts.GET("/:account_id/balances", s.handlers.Accounts.Balances)
	}

	orders := s.router.Group("/orders")
	{
		orders.POST("/default", s.handlers.Orders.PlaceDefault)
		orders.POST("/:account_id", s.handlers.Orders.Place)
	}

	s.router.GET("/marketdata/:symbol/history", s.handlers.MarketData.PriceHistory)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Client returns the brokerage client shared by all requests.
func (s *Server) Client() *schwab.Client {
	return s.client
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.Info("Starting API server", "addr", s.config.Addr(), "env", s.config.App.Env)
	if err := s.httpServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down server")

	// In-flight callbacks may still write to the closers.
	shutdownErr := s.httpServer.Shutdown(ctx)

	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			s.log.Warn("Error closing resource", "error", err.Error())
		}
	}

	if shutdownErr != nil {
		return fmt.Errorf("server shutdown failed: %w", shutdownErr)
	}

	s.log.Info("Server stopped gracefully")
	return nil
}

// corsMiddleware adds CORS headers
func corsMiddleware(corsConfig config.CORSConfig) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]struct{}, len(corsConfig.AllowedOrigins))
	for _, o := range corsConfig.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}
	methods := strings.Join(corsConfig.AllowedMethods, ", ")
	headers := strings.Join(corsConfig.AllowedHeaders, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case origin == "":
		case allowAll && !corsConfig.AllowCredentials:
			c.Header("Access-Control-Allow-Origin", "*")
		case allowAll:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		default:
			if _, ok := allowed[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
			}
		}
		if corsConfig.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
