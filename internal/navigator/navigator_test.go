package navigator

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/text/encoding/charmap"

	"setopprice/internal/price"
	"setopprice/internal/progress"
)

type stubGetter map[string]string

func (g stubGetter) Fetch(_ context.Context, u string) ([]byte, error) {
	body, ok := g[u]
	if !ok {
		return nil, errors.New("status 404")
	}
	return []byte(body), nil
}

const mapPage = `<html><body><div class="map-container"><map name="mg">
<area shape="poly" title="Central" href="/regiao/central">
<area shape="poly" title="Norte" href="http://example.test/regiao/norte">
<area shape="poly" title="Sul" href="/regiao/sul">
<area shape="poly" title="Central" href="/regiao/central">
<area shape="poly" href="/sem-titulo">
</map></div></body></html>`

const centralPage = `<ul>
<li><a href="/files/central-2024.xlsx">2024 - Planilha Central</a></li>
<li><a href="files/central-2023.XLS"> 2023 </a></li>
<li><a href="/files/leiame.pdf">Leia-me</a></li>
<li><a href="/files/sem-ano.xlsx"></a></li>
</ul>`

const nortePage = `<a href="/files/norte-2024.xlsx"><span>2024</span> Norte</a>`

func TestSiteListLocations(t *testing.T) {
	get := stubGetter{
		"http://example.test/setop":          mapPage,
		"http://example.test/regiao/central": centralPage,
		"http://example.test/regiao/norte":   nortePage,
	}
	ch := progress.New(8)
	ctx := progress.NewContext(context.Background(), ch)
	locs, err := NewSite("http://example.test/setop", get, nil).ListLocations(ctx)
	if err != nil {
		t.Fatalf("ListLocations error: %v", err)
	}
	want := []price.Location{
		{Region: "Central", Year: "2024", URL: "http://example.test/files/central-2024.xlsx"},
		{Region: "Central", Year: "2023", URL: "http://example.test/regiao/files/central-2023.XLS"},
		{Region: "Central", Year: "N/A", URL: "http://example.test/files/sem-ano.xlsx"},
		{Region: "Norte", Year: "2024", URL: "http://example.test/files/norte-2024.xlsx"},
	}
	if len(locs) != len(want) {
		t.Fatalf("got %d locations %+v, want %d", len(locs), locs, len(want))
	}
	for i := range want {
		if locs[i] != want[i] {
			t.Fatalf("location %d = %+v, want %+v", i, locs[i], want[i])
		}
	}
	ch.Close()
	ev, _ := ch.Next(context.Background(), 0)
	if ev.Kind != progress.KindText || ev.Text == "" {
		t.Fatalf("expected skipped-region notice, got %+v", ev)
	}
}

func TestSiteMapFailure(t *testing.T) {
	_, err := NewSite("http://example.test/setop", stubGetter{}, nil).ListLocations(context.Background())
	if err == nil {
		t.Fatalf("expected error when the map page is unavailable")
	}
}

func TestParseLocations(t *testing.T) {
	data := "regiao,ano,url\n# comentario\nCentral,2024,http://x/a.xlsx\nNorte,,http://x/b.xlsx\n"
	locs, err := ParseLocations([]byte(data))
	if err != nil {
		t.Fatalf("ParseLocations error: %v", err)
	}
	if len(locs) != 2 || locs[1].Year != price.NoYear {
		t.Fatalf("unexpected locations %+v", locs)
	}
}

func TestParseLocationsWindows1252(t *testing.T) {
	enc, _ := charmap.Windows1252.NewEncoder().String("Região Metropolitana,2024,http://x/a.xlsx\n")
	locs, err := ParseLocations([]byte(enc))
	if err != nil {
		t.Fatalf("ParseLocations error: %v", err)
	}
	if locs[0].Region != "Região Metropolitana" {
		t.Fatalf("unexpected region %q", locs[0].Region)
	}
}

func TestParseLocationsShortRow(t *testing.T) {
	if _, err := ParseLocations([]byte("Central,2024\n")); err == nil {
		t.Fatalf("expected error for short row")
	}
}
