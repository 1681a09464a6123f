// server.go: ops HTTP server for health, readiness, state, and quote lookups
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Aidin1998/quotefeed/internal/feedclient"
	"github.com/Aidin1998/quotefeed/internal/quotecache"
)

// FeedStatus is the read-only view of the protocol client the server needs.
type FeedStatus interface {
	State() feedclient.ConnectionState
	SessionID() string
	Subscriptions() []feedclient.SubscriptionRequest
}

// QuoteSource is the read-only view of the quote cache the server needs.
type QuoteSource interface {
	GetQuote(symbol string) (quotecache.CachedQuote, bool)
	GetQuotes(symbols []string) map[string]quotecache.CachedQuote
	IsReady() bool
	Type() string
}

// Server serves the ops API. It only observes the feed components; it is
// never on the market-data path.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
	status FeedStatus
	quotes QuoteSource
	srv    *http.Server
}

// NewServer creates the ops API server.
func NewServer(logger *zap.Logger, status FeedStatus, quotes QuoteSource, allowedOrigins []string) *Server {
	server := &Server{
		logger: logger.Named("api"),
		status: status,
		quotes: quotes,
	}

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	router := gin.New()

	// Add middleware
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("quotefeed-api"))

	// Configure CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes()
	return server
}

// Start begins serving on addr; it blocks until the listener stops.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting ops API server", zap.String("addr", addr))
	s.srv = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.srv.ListenAndServe()
}

// Stop shuts the listener down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	s.logger.Info("Stopping ops API server")
	return s.srv.Shutdown(ctx)
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// registerRoutes registers all API routes
func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/ready", s.readyCheck)

	public := s.router.Group("/api/v1")
	{
		public.GET("/metrics", gin.WrapH(promhttp.Handler()))
		public.GET("/state", s.connectionState)
		public.GET("/quotes", s.batchQuotes)
		public.GET("/quotes/:symbol", s.singleQuote)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readyCheck(c *gin.Context) {
	if !s.quotes.IsReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (s *Server) connectionState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state":         s.status.State().String(),
		"sessionId":     s.status.SessionID(),
		"type":          s.quotes.Type(),
		"subscriptions": s.status.Subscriptions(),
	})
}

func (s *Server) singleQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	q, ok := s.quotes.GetQuote(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "quote not found", "symbol": symbol})
		return
	}
	c.JSON(http.StatusOK, q)
}

func (s *Server) batchQuotes(c *gin.Context) {
	raw := c.Query("symbols")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbols query parameter is required"})
		return
	}

	parts := strings.Split(raw, ",")
	symbols := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			symbols = append(symbols, p)
		}
	}

	c.JSON(http.StatusOK, s.quotes.GetQuotes(symbols))
}
