package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"stone-promo/config"
	"stone-promo/models"
	"stone-promo/monitoring"
	"stone-promo/service"

	"github.com/gin-gonic/gin"
)

// NewTestServer creates a test Gin engine with every route registered.
func NewTestServer(s *Server) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return s.Router()
}

// PerformJSONRequest performs a request with JSON body and returns the response recorder.
func PerformJSONRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if raw, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(raw))
	} else {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	r.ServeHTTP(recorder, req)
	return recorder
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, rec.Body.String())
	}
	return out
}

type stubScraper struct {
	products []models.Product
	err      error
	gotURL   string
}

func (s *stubScraper) ScrapeCatalog(ctx context.Context, pageURL string) ([]models.Product, error) {
	s.gotURL = pageURL
	return s.products, s.err
}

type stubSeo struct {
	content string
	err     error
	gotKey  string
}

func (s *stubSeo) GenerateSeoCopy(ctx context.Context, apiKey string, p models.Product) (string, error) {
	s.gotKey = apiKey
	return s.content, s.err
}

type stubClips struct {
	video     []byte
	err       error
	gotAspect string
}

func (s *stubClips) GenerateClip(ctx context.Context, apiKey string, p models.Product, prompt, aspectRatio, resolution string) ([]byte, error) {
	s.gotAspect = aspectRatio
	return s.video, s.err
}

type stubAssembler struct {
	result *service.Result
	err    error
	got    service.Request
	calls  int
}

func (s *stubAssembler) Assemble(ctx context.Context, req service.Request) (*service.Result, error) {
	s.calls++
	s.got = req
	if err := service.Validate(req); err != nil {
		return nil, err
	}
	return s.result, s.err
}

func (s *stubAssembler) InFlight() int64 { return 0 }

type stubMonitor struct{}

func (stubMonitor) Snapshot() (monitoring.ResourceUsage, error) {
	return monitoring.ResourceUsage{CPUPercent: 1.5, MemoryUsedMB: 40, MemoryTotalMB: 1024, NumGoroutines: 7}, nil
}

type stubSpace struct{}

func (stubSpace) FreeSpaceGB() (float64, error) { return 12.5, nil }

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ServerPort:    "0",
		StaticPath:    t.TempDir(),
		DashboardFile: "dashboard.html",
		MaxBodyMB:     1,
		CatalogURL:    "https://stone.example/new_arrival/",
	}
}
