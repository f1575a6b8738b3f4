// pkg/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/config"
	"github.com/David-Botos/retail-bi/pkg/dashboard"
)

// Banner is the body of the root route
const Banner = "API de Dashboard de Ventas está en línea. Accede al frontend para visualizar los datos."

// DataStore is the file-backed sales data
type DataStore interface {
	Reload(ctx context.Context) error
	Status() dashboard.Status
	Categories() ([]string, error)
	TopProducts(category string, limit int) (*dashboard.TopProducts, error)
}

// Warehouse serves the warehouse-backed panels
type Warehouse interface {
	SalesAnalysis(ctx context.Context, category string, topN int) (*dashboard.SalesAnalysis, error)
	Categories(ctx context.Context) ([]string, error)
	InventoryAnalysis(ctx context.Context, category string) ([]dashboard.InventoryItem, error)
	InventoryHealth(ctx context.Context) (*dashboard.InventoryHealth, error)
	SalesDateRange(ctx context.Context) (*dashboard.DateRange, error)
	SalesTrend(ctx context.Context, start, end time.Time) ([]dashboard.TrendPoint, error)
}

// Server is the dashboard HTTP API
type Server struct {
	cfg        config.DashboardConfig
	store      DataStore
	warehouse  Warehouse
	logger     *zap.Logger
	router     *gin.Engine
	httpServer *http.Server

	shortCache *ResponseCache
	longCache  *ResponseCache
}

// New builds the router. Warehouse routes are only registered when wh is
// not nil.
func New(cfg config.DashboardConfig, store DataStore, wh Warehouse, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:        cfg,
		store:      store,
		warehouse:  wh,
		logger:     logger.Named("server"),
		shortCache: NewResponseCache(cfg.CacheSize, cfg.CacheTTL),
		longCache:  NewResponseCache(cfg.CacheSize, cfg.CacheLongTTL),
	}
	s.router = s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true

	router.Use(RequestID())
	router.Use(Recovery(s.logger))
	router.Use(AccessLog(s.logger))
	router.Use(SecurityHeaders())
	router.Use(CORS(s.cfg.AllowedOrigins))
	router.Use(RateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
	router.Use(Gzip())

	router.NoRoute(notFound)
	router.NoMethod(methodNotAllowed)

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, Banner)
	})

	api := router.Group("/api")
	api.GET("/status", s.handleStatus)
	api.POST("/reload", s.handleReload)
	api.GET("/categorias", s.handleCategorias)
	api.GET("/top-productos", s.handleTopProductos)

	if s.warehouse != nil {
		api.GET("/data/sales_analysis", s.shortCache.Middleware(true), s.handleSalesAnalysis)
		api.GET("/categories", s.longCache.Middleware(false), s.handleCategories)
		api.GET("/data/inventory_analysis", s.shortCache.Middleware(true), s.handleInventoryAnalysis)
		api.GET("/reports/inventory_health", s.longCache.Middleware(false), s.handleInventoryHealth)
		api.GET("/data/sales_date_range", s.handleSalesDateRange)
		api.GET("/data/sales_trend", s.handleSalesTrend)
	}

	return router
}

// Handler returns the HTTP handler of the API
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.cfg.Addr),
		zap.Bool("warehouse", s.warehouse != nil))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve on %s: %w", s.cfg.Addr, err)
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Initiating graceful shutdown")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	s.logger.Info("Graceful shutdown completed")
	return nil
}
