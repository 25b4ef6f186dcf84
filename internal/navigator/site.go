// Package navigator discovers the spreadsheets to ingest, either from the
// agency's region map or from a fixed list.
package navigator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"setopprice/internal/price"
	"setopprice/internal/progress"
)

// DefaultSiteURL is the SETOP price-list page with the region map.
const DefaultSiteURL = "http://www.infraestrutura.mg.gov.br/component/gmg/page/102-consulta-a-planilha-preco-setop"

// Getter downloads a page. *fetch.Fetcher satisfies it.
type Getter interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Site walks the region map: every <area title href> is a region page,
// and every link on a region page ending in .xls or .xlsx is a spreadsheet
// whose year is the first word of the link text.
type Site struct {
	URL    string
	Get    Getter
	Logger *slog.Logger
}

func NewSite(siteURL string, get Getter, logger *slog.Logger) *Site {
	if siteURL == "" {
		siteURL = DefaultSiteURL
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Site{URL: siteURL, Get: get, Logger: logger}
}

type region struct {
	name string
	href string
}

// ListLocations fails only when the map page cannot be read. Region pages
// that fail are reported and skipped.
func (s *Site) ListLocations(ctx context.Context) ([]price.Location, error) {
	base, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("site url: %w", err)
	}
	page, err := s.Get.Fetch(ctx, s.URL)
	if err != nil {
		return nil, fmt.Errorf("region map: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("parse region map: %w", err)
	}
	regions := parseRegions(root, base)
	s.Logger.Info("regions found", "count", len(regions))

	var out []price.Location
	for _, r := range regions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		locs, err := s.regionLocations(ctx, r)
		if err != nil {
			s.Logger.Warn("region skipped", "region", r.name, "err", err)
			progress.FromContext(ctx).Publishf("Erro ao processar região %s: %v", r.name, err)
			continue
		}
		out = append(out, locs...)
	}
	return out, nil
}

func (s *Site) regionLocations(ctx context.Context, r region) ([]price.Location, error) {
	base, err := url.Parse(r.href)
	if err != nil {
		return nil, err
	}
	page, err := s.Get.Fetch(ctx, r.href)
	if err != nil {
		return nil, err
	}
	root, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return nil, err
	}
	var out []price.Location
	for _, a := range findAll(root, "a") {
		href := strings.TrimSpace(attr(a, "href"))
		if !isSpreadsheetLink(href) {
			continue
		}
		abs, err := base.Parse(href)
		if err != nil {
			continue
		}
		out = append(out, price.Location{Region: r.name, Year: yearFromText(text(a)), URL: abs.String()})
	}
	return out, nil
}

func parseRegions(root *html.Node, base *url.URL) []region {
	var out []region
	seen := map[string]bool{}
	for _, n := range findAll(root, "area") {
		title := strings.TrimSpace(attr(n, "title"))
		href := strings.TrimSpace(attr(n, "href"))
		if title == "" || href == "" {
			continue
		}
		abs, err := base.Parse(href)
		if err != nil {
			continue
		}
		if seen[abs.String()] {
			continue
		}
		seen[abs.String()] = true
		out = append(out, region{name: title, href: abs.String()})
	}
	return out
}

func isSpreadsheetLink(href string) bool {
	h := strings.ToLower(href)
	return strings.HasSuffix(h, ".xls") || strings.HasSuffix(h, ".xlsx")
}

func yearFromText(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return price.NoYear
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func text(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(b.String()), " ")
}

func findAll(n *html.Node, tag string) []*html.Node {
	var results []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == tag {
			results = append(results, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return results
}
