package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"stone-promo/config"
	"stone-promo/logging"
	"stone-promo/models"
	"stone-promo/monitoring"
	"stone-promo/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// CatalogScraper lists the products on a catalog page.
type CatalogScraper interface {
	ScrapeCatalog(ctx context.Context, pageURL string) ([]models.Product, error)
}

// SeoWriter drafts marketing copy for a product.
type SeoWriter interface {
	GenerateSeoCopy(ctx context.Context, apiKey string, p models.Product) (string, error)
}

// ClipGenerator animates a product image into a short video.
type ClipGenerator interface {
	GenerateClip(ctx context.Context, apiKey string, p models.Product, prompt, aspectRatio, resolution string) ([]byte, error)
}

// Assembler builds the final promotional video.
type Assembler interface {
	Assemble(ctx context.Context, req service.Request) (*service.Result, error)
	InFlight() int64
}

// HealthSampler reports process resource usage.
type HealthSampler interface {
	Snapshot() (monitoring.ResourceUsage, error)
}

// SpaceReporter reports free space on the scratch filesystem.
type SpaceReporter interface {
	FreeSpaceGB() (float64, error)
}

// Deps are the collaborators behind the HTTP endpoints.
type Deps struct {
	Scraper   CatalogScraper
	Seo       SeoWriter
	Clips     ClipGenerator
	Scripts   service.ScriptSource
	Assembler Assembler
	Monitor   HealthSampler // optional
	Space     SpaceReporter // optional
}

type Server struct {
	config     config.Config
	deps       Deps
	started    time.Time
	httpServer *http.Server
}

func NewServer(cfg config.Config, deps Deps) *Server {
	s := &Server{
		config:  cfg,
		deps:    deps,
		started: time.Now(),
	}
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the gin engine with every route and middleware installed.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger())
	s.setupCORS(r)
	r.Use(s.limitBody())
	s.setupRoutes(r)
	return r
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("Starting API server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupCORS(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})
}

func (s *Server) limitBody() gin.HandlerFunc {
	limit := s.config.MaxBodyBytes()
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func (s *Server) setupRoutes(r *gin.Engine) {
	// Dashboard
	r.GET("/", s.serveDashboard)
	r.NoRoute(s.serveStatic)

	// API routes
	api := r.Group("/api")
	{
		api.GET("/scrape-new-arrivals", s.scrapeNewArrivals)
		api.POST("/generate-seo", s.generateSeo)
		api.POST("/generate-video", s.generateVideo)
		api.POST("/generate-script", s.generateScript)
		api.POST("/concatenate-videos", s.concatenateVideos)
		api.GET("/system_health", s.getSystemHealth)
	}
}
