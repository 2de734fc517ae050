// Package scraper extracts product records from the vendor's new-arrivals
// listing page.
package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"stone-promo/models"
	"stone-promo/upstream"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	lotPattern      = regexp.MustCompile(`([A-Z]+\d+)`)
	materialPattern = regexp.MustCompile(`(?i)Materials?:?\s*([^\n\r]+)`)
	colorPattern    = regexp.MustCompile(`(?i)Colors?:?\s*([^\n\r]+)`)
	trailingDigits  = regexp.MustCompile(`\d+$`)

	// checked in order against the lower-cased title
	materialKeywords = []struct{ keyword, material string }{
		{"marble", "Marble"},
		{"quartzite", "Quartzite"},
		{"granite", "Granite"},
		{"dolomite", "Dolomite"},
	}
)

// Scraper fetches and parses catalog pages.
type Scraper struct {
	fetcher upstream.Fetcher
}

// New returns a scraper; a nil fetcher uses http.DefaultClient.
func New(fetcher upstream.Fetcher) *Scraper {
	if fetcher == nil {
		fetcher = upstream.NewFetcher(nil)
	}
	return &Scraper{fetcher: fetcher}
}

// ScrapeCatalog downloads pageURL and returns its products, deduplicated by
// image URL in first-seen order.
func (s *Scraper) ScrapeCatalog(ctx context.Context, pageURL string) ([]models.Product, error) {
	base, err := url.Parse(pageURL)
	if err == nil && (base.Scheme == "" || base.Host == "") {
		err = fmt.Errorf("page url must be absolute")
	}
	if err != nil {
		return nil, &upstream.FetchError{Method: http.MethodGet, URL: pageURL, Err: err}
	}

	log.Info().Str("url", pageURL).Msg("Starting catalog scrape")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &upstream.FetchError{Method: http.MethodGet, URL: pageURL, Err: err}
	}
	body, _, err := s.fetcher.Fetch(req)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("bytes", len(body)).Msg("Got catalog page")

	return ParseCatalog(bytes.NewReader(body), base)
}

// ParseCatalog extracts products from an HTML document. Relative links and
// image sources are resolved against base.
func ParseCatalog(r io.Reader, base *url.URL) ([]models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse catalog html: %w", err)
	}

	var products []models.Product
	totalAnchors, withImages := 0, 0
	doc.Find("a").Each(func(index int, anchor *goquery.Selection) {
		totalAnchors++
		img := anchor.Find("img")
		if img.Length() == 0 {
			return
		}
		withImages++

		p, ok := productFromAnchor(index, anchor, img.First(), base)
		if !ok {
			log.Debug().Int("anchor", index).Msg("Skipped anchor, insufficient data")
			return
		}
		products = append(products, p)
	})

	unique := dedupeByImage(products)
	log.Info().
		Int("anchors", totalAnchors).
		Int("with_images", withImages).
		Int("products", len(products)).
		Int("unique", len(unique)).
		Msg("Catalog scrape finished")
	return unique, nil
}

func productFromAnchor(index int, anchor, img *goquery.Selection, base *url.URL) (models.Product, bool) {
	imageURL, _ := img.Attr("src")
	link, _ := anchor.Attr("href")
	imageURL = strings.TrimSpace(imageURL)
	link = strings.TrimSpace(link)

	title := strings.TrimSpace(anchor.Find("h2, .product-title, h3").First().Text())
	if title == "" && link != "" {
		title = titleFromLink(link)
	}

	var lotNumber, material, color string
	if imageURL != "" {
		if m := lotPattern.FindStringSubmatch(path.Base(imageURL)); m != nil {
			lotNumber = m[1]
		}
	}

	fullText := anchor.Text()
	if m := materialPattern.FindStringSubmatch(fullText); m != nil {
		material = strings.TrimSpace(m[1])
	}
	if m := colorPattern.FindStringSubmatch(fullText); m != nil {
		color = strings.TrimSpace(m[1])
	}
	if material == "" && title != "" {
		material = materialFromTitle(title)
	}

	if imageURL == "" || link == "" || (title == "" && lotNumber == "") {
		return models.Product{}, false
	}
	if title == "" {
		title = "Stone " + lotNumber
	}

	return models.Product{
		ID:        index,
		Title:     title,
		ImageURL:  absolutize(base, imageURL),
		Link:      absolutize(base, link),
		LotNumber: lotNumber,
		Material:  material,
		Color:     color,
	}, true
}

// titleFromLink turns ".../taj-mahal-quartzite-123/" into "Taj Mahal Quartzite".
func titleFromLink(link string) string {
	parts := strings.Split(link, "/")
	slug := ""
	if len(parts) >= 2 {
		slug = parts[len(parts)-2]
	}
	if slug == "" {
		slug = parts[len(parts)-1]
	}
	slug = strings.ReplaceAll(slug, "-", " ")
	slug = strings.TrimSpace(trailingDigits.ReplaceAllString(slug, ""))
	return cases.Title(language.English).String(slug)
}

func materialFromTitle(title string) string {
	lower := strings.ToLower(title)
	for _, k := range materialKeywords {
		if strings.Contains(lower, k.keyword) {
			return k.material
		}
	}
	return ""
}

func absolutize(base *url.URL, ref string) string {
	u, err := url.Parse(ref)
	if err != nil || base == nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func dedupeByImage(products []models.Product) []models.Product {
	seen := make(map[string]bool, len(products))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if seen[p.ImageURL] {
			continue
		}
		seen[p.ImageURL] = true
		out = append(out, p)
	}
	return out
}
