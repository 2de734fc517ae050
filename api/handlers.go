package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"stone-promo/clipgen"
	"stone-promo/copywriter"
	"stone-promo/models"
	"stone-promo/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type seoRequest struct {
	APIKey  string         `json:"apiKey"`
	Product models.Product `json:"product"`
}

type videoRequest struct {
	APIKey      string         `json:"apiKey"`
	Product     models.Product `json:"product"`
	Prompt      string         `json:"prompt"`
	AspectRatio string         `json:"aspectRatio"`
	Resolution  string         `json:"resolution"`
}

type scriptRequest struct {
	ProductDescription *models.Product `json:"productDescription"`
}

type videoRef struct {
	URL string `json:"url"`
}

type concatRequest struct {
	Videos             []videoRef      `json:"videos"`
	ProductDescription *models.Product `json:"productDescription"`
}

// GET /api/scrape-new-arrivals
func (s *Server) scrapeNewArrivals(c *gin.Context) {
	log.Info().Str("url", s.config.CatalogURL).Msg("Scraping catalog")
	products, err := s.deps.Scraper.ScrapeCatalog(c.Request.Context(), s.config.CatalogURL)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().Int("products", len(products)).Msg("Catalog scraped")
	c.JSON(http.StatusOK, gin.H{"success": true, "products": products})
}

// POST /api/generate-seo
func (s *Server) generateSeo(c *gin.Context) {
	var req seoRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.APIKey == "" {
		badRequest(c, "OpenAI API key is required")
		return
	}
	content, err := s.deps.Seo.GenerateSeoCopy(c.Request.Context(), req.APIKey, req.Product)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "seoContent": content})
}

// POST /api/generate-video
func (s *Server) generateVideo(c *gin.Context) {
	var req videoRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.APIKey == "" {
		badRequest(c, "Google AI API key is required")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		badRequest(c, "Video prompt is required")
		return
	}
	video, err := s.deps.Clips.GenerateClip(c.Request.Context(), req.APIKey, req.Product, req.Prompt, req.AspectRatio, req.Resolution)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "videoUrl": service.EncodeDataURI(service.VideoMIMEType, video)})
}

// POST /api/generate-script
func (s *Server) generateScript(c *gin.Context) {
	var req scriptRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.ProductDescription == nil {
		badRequest(c, "Product description is required")
		return
	}
	script, err := s.deps.Scripts.Script(c.Request.Context(), *req.ProductDescription)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "script": script})
}

// POST /api/concatenate-videos
func (s *Server) concatenateVideos(c *gin.Context) {
	var req concatRequest
	if !bindJSON(c, &req) {
		return
	}
	if len(req.Videos) != 2 {
		badRequest(c, "Expected 2 video URLs")
		return
	}

	job := service.Request{}
	if req.ProductDescription != nil {
		job.Product = *req.ProductDescription
	}
	for _, v := range req.Videos {
		clip, err := service.DecodeDataURI(v.URL)
		if err != nil {
			respondError(c, err)
			return
		}
		job.Clips = append(job.Clips, clip)
	}

	res, err := s.deps.Assembler.Assemble(c.Request.Context(), job)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "videoUrl": res.VideoURL, "script": res.Script})
}

// GET /api/system_health
func (s *Server) getSystemHealth(c *gin.Context) {
	resp := gin.H{
		"uptime":               time.Since(s.started).Round(time.Second).String(),
		"assemblies_in_flight": s.deps.Assembler.InFlight(),
	}
	if s.deps.Monitor != nil {
		usage, err := s.deps.Monitor.Snapshot()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
		resp["cpu"] = usage.CPUPercent
		resp["host_cpu"] = usage.HostCPUPercent
		resp["memory_used"] = usage.MemoryUsedMB
		resp["memory_total"] = usage.MemoryTotalMB
		resp["memory_percent"] = usage.MemoryPercent
		resp["host_memory_percent"] = usage.HostMemoryPercent
		resp["goroutines"] = usage.NumGoroutines
	}
	if s.deps.Space != nil {
		if free, err := s.deps.Space.FreeSpaceGB(); err == nil {
			resp["workspace_free_gb"] = free
		}
	}
	c.JSON(http.StatusOK, resp)
}

// GET /
func (s *Server) serveDashboard(c *gin.Context) {
	noCache(c)
	c.File(filepath.Join(s.config.StaticPath, s.config.DashboardFile))
}

// serveStatic serves files under the static directory for unmatched GETs.
func (s *Server) serveStatic(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}
	rel := filepath.Clean("/" + c.Request.URL.Path)
	path := filepath.Join(s.config.StaticPath, filepath.FromSlash(rel))
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "not found"})
		return
	}
	noCache(c)
	c.File(path)
}

func noCache(c *gin.Context) {
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Header("Pragma", "no-cache")
	c.Header("Expires", "0")
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": "request body too large"})
			return false
		}
		badRequest(c, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": msg})
}

// respondError maps err onto the uniform failure body.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := http.StatusInternalServerError
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve),
		errors.Is(err, copywriter.ErrNoTitle),
		errors.Is(err, copywriter.ErrNoAPIKey),
		errors.Is(err, clipgen.ErrNoAPIKey),
		errors.Is(err, clipgen.ErrNoPrompt):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}
