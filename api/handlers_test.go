package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"stone-promo/copywriter"
	"stone-promo/models"
	"stone-promo/service"
	"stone-promo/transcode"
	"stone-promo/upstream"
)

type fixture struct {
	scraper   *stubScraper
	seo       *stubSeo
	clips     *stubClips
	assembler *stubAssembler
	server    *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		scraper:   &stubScraper{products: []models.Product{{ID: 1, Title: "Taj Mahal", LotNumber: "QZ12"}}},
		seo:       &stubSeo{content: "Elegant quartzite."},
		clips:     &stubClips{video: []byte("clip")},
		assembler: &stubAssembler{result: &service.Result{VideoURL: "data:video/mp4;base64,AAAA", Script: "Discover..."}},
	}
	f.server = NewServer(testConfig(t), Deps{
		Scraper:   f.scraper,
		Seo:       f.seo,
		Clips:     f.clips,
		Scripts:   copywriter.NewScriptWriter(nil, ""),
		Assembler: f.assembler,
		Monitor:   stubMonitor{},
		Space:     stubSpace{},
	})
	return f
}

func TestScrapeNewArrivals(t *testing.T) {
	f := newFixture(t)
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodGet, "/api/scrape-new-arrivals", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
	products, _ := body["products"].([]any)
	if len(products) != 1 {
		t.Fatalf("products = %v", body["products"])
	}
	first := products[0].(map[string]any)
	if first["title"] != "Taj Mahal" || first["lotNumber"] != "QZ12" {
		t.Errorf("product = %v", first)
	}
	if f.scraper.gotURL != "https://stone.example/new_arrival/" {
		t.Errorf("scraped %q", f.scraper.gotURL)
	}
}

func TestScrapeNewArrivalsFailure(t *testing.T) {
	f := newFixture(t)
	f.scraper.err = &upstream.FetchError{Method: "GET", URL: "https://stone.example/", StatusCode: 503, Body: "down"}
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodGet, "/api/scrape-new-arrivals", nil)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["success"] != false || !strings.Contains(body["error"].(string), "503") {
		t.Errorf("body = %v", body)
	}
}

func TestGenerateSeo(t *testing.T) {
	f := newFixture(t)
	r := NewTestServer(f.server)

	rec := PerformJSONRequest(r, http.MethodPost, "/api/generate-seo", map[string]any{"product": map[string]any{"title": "Taj"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing key: got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "OpenAI API key is required" {
		t.Errorf("error = %v", got)
	}

	rec = PerformJSONRequest(r, http.MethodPost, "/api/generate-seo", map[string]any{"apiKey": "sk-1", "product": map[string]any{"title": "Taj"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["seoContent"]; got != "Elegant quartzite." {
		t.Errorf("seoContent = %v", got)
	}
	if f.seo.gotKey != "sk-1" {
		t.Errorf("key passed = %q", f.seo.gotKey)
	}
}

func TestGenerateSeoUpstreamError(t *testing.T) {
	f := newFixture(t)
	f.seo.err = &upstream.UpstreamError{Provider: "openai", Message: "invalid api key"}
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/generate-seo", map[string]any{"apiKey": "bad"})

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	if got := decodeBody(t, rec)["error"]; got != "openai error: invalid api key" {
		t.Errorf("error = %v", got)
	}
}

func TestGenerateVideo(t *testing.T) {
	cases := []struct {
		name   string
		body   map[string]any
		status int
		errMsg string
	}{
		{"missing key", map[string]any{"prompt": "pan"}, http.StatusBadRequest, "Google AI API key is required"},
		{"missing prompt", map[string]any{"apiKey": "g-1"}, http.StatusBadRequest, "Video prompt is required"},
		{"ok", map[string]any{"apiKey": "g-1", "prompt": "pan", "product": map[string]any{"imageUrl": "https://x/y.jpg"}}, http.StatusOK, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/generate-video", tc.body)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tc.status, rec.Body.String())
			}
			body := decodeBody(t, rec)
			if tc.errMsg != "" {
				if body["error"] != tc.errMsg {
					t.Errorf("error = %v, want %q", body["error"], tc.errMsg)
				}
				return
			}
			if body["videoUrl"] != "data:video/mp4;base64,Y2xpcA==" {
				t.Errorf("videoUrl = %v", body["videoUrl"])
			}
		})
	}
}

func TestGenerateScript(t *testing.T) {
	f := newFixture(t)
	r := NewTestServer(f.server)

	rec := PerformJSONRequest(r, http.MethodPost, "/api/generate-script", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing description: got %d", rec.Code)
	}

	rec = PerformJSONRequest(r, http.MethodPost, "/api/generate-script", map[string]any{
		"productDescription": map[string]any{"title": "Blue Bahia", "material": "granite", "color": "blue"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}
	script, _ := decodeBody(t, rec)["script"].(string)
	if !strings.HasPrefix(script, "Discover the timeless elegance of Blue Bahia. This stunning granite showcases blue tones") {
		t.Errorf("script = %q", script)
	}

	rec = PerformJSONRequest(r, http.MethodPost, "/api/generate-script", map[string]any{"productDescription": map[string]any{}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("untitled description: got %d", rec.Code)
	}
}

func TestConcatenateVideos(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{
		"videos": []map[string]string{
			{"url": "data:video/mp4;base64,YQ=="},
			{"url": "data:video/mp4;base64,Yg=="},
		},
		"productDescription": map[string]any{"title": "Calacatta"},
	}
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/concatenate-videos", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d: %s", rec.Code, rec.Body.String())
	}
	out := decodeBody(t, rec)
	if out["videoUrl"] != "data:video/mp4;base64,AAAA" || out["script"] != "Discover..." {
		t.Errorf("body = %v", out)
	}
	if len(f.assembler.got.Clips) != 2 || string(f.assembler.got.Clips[0]) != "a" || string(f.assembler.got.Clips[1]) != "b" {
		t.Errorf("clips = %q", f.assembler.got.Clips)
	}
	if f.assembler.got.Product.Title != "Calacatta" {
		t.Errorf("product = %+v", f.assembler.got.Product)
	}
}

func TestConcatenateVideosRejectsOneVideo(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"videos": []map[string]string{{"url": "data:video/mp4;base64,YQ=="}}}
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/concatenate-videos", body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	out := decodeBody(t, rec)
	if out["success"] != false || out["error"] != "Expected 2 video URLs" {
		t.Errorf("body = %v", out)
	}
	if f.assembler.calls != 0 {
		t.Error("assembler reached with one video")
	}
}

func TestConcatenateVideosRejectsBadDataURI(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"videos": []map[string]string{{"url": "https://x/a.mp4"}, {"url": "data:video/mp4;base64,Yg=="}}}
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/concatenate-videos", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
	if f.assembler.calls != 0 {
		t.Error("assembler reached with undecodable video")
	}
}

func TestConcatenateVideosStageFailure(t *testing.T) {
	f := newFixture(t)
	f.assembler.err = &service.StageError{
		Stage: service.StageMix,
		Err:   &transcode.EncodeError{Op: "mix", Err: errors.New("exit status 1")},
	}
	body := map[string]any{
		"videos":             []map[string]string{{"url": "data:video/mp4;base64,YQ=="}, {"url": "data:video/mp4;base64,Yg=="}},
		"productDescription": map[string]any{"title": "Calacatta"},
	}
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/concatenate-videos", body)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	msg, _ := decodeBody(t, rec)["error"].(string)
	if !strings.Contains(msg, "mixing audio") {
		t.Errorf("error = %q", msg)
	}
}

func TestBodyLimit(t *testing.T) {
	f := newFixture(t)
	huge := `{"productDescription":{"title":"` + strings.Repeat("x", 2<<20) + `"}}`
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/generate-script", huge)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected 413, got %d", rec.Code)
	}
}

func TestInvalidJSON(t *testing.T) {
	f := newFixture(t)
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodPost, "/api/generate-seo", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodOptions, "/api/concatenate-videos", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("allow methods = %q", got)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow origin")
	}
}

func TestDashboardAndStaticFiles(t *testing.T) {
	f := newFixture(t)
	static := f.server.config.StaticPath
	if err := os.WriteFile(filepath.Join(static, "dashboard.html"), []byte("<h1>dash</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(static, "app.js"), []byte("console.log(1)"), 0644); err != nil {
		t.Fatal(err)
	}
	r := NewTestServer(f.server)

	rec := PerformJSONRequest(r, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "dash") {
		t.Fatalf("dashboard: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Cache-Control") != "no-cache, no-store, must-revalidate" {
		t.Errorf("Cache-Control = %q", rec.Header().Get("Cache-Control"))
	}

	rec = PerformJSONRequest(r, http.MethodGet, "/app.js", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Pragma") != "no-cache" || rec.Header().Get("Expires") != "0" {
		t.Errorf("static: %d headers %v", rec.Code, rec.Header())
	}

	rec = PerformJSONRequest(r, http.MethodGet, "/../../etc/passwd", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("traversal: got %d", rec.Code)
	}
}

func TestSystemHealth(t *testing.T) {
	f := newFixture(t)
	rec := PerformJSONRequest(NewTestServer(f.server), http.MethodGet, "/api/system_health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["goroutines"] != float64(7) || body["workspace_free_gb"] != 12.5 || body["assemblies_in_flight"] != float64(0) {
		t.Errorf("body = %v", body)
	}
}

func TestShutdownStopsServer(t *testing.T) {
	f := newFixture(t)
	done := make(chan error, 1)
	go func() { done <- f.server.Start() }()

	if err := f.server.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Start returned %v after shutdown", err)
	}
}
