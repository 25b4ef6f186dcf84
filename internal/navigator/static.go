package navigator

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"setopprice/internal/price"
	"setopprice/internal/textfold"
)

// Static serves locations from a CSV file with region, year and url
// columns. A header row is optional.
type Static struct {
	Path string
}

func NewStatic(path string) *Static { return &Static{Path: path} }

func (s *Static) ListLocations(_ context.Context) ([]price.Location, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return ParseLocations(b)
}

// ParseLocations reads region,year,url rows. Text that is not valid UTF-8
// is taken as Windows-1252.
func ParseLocations(b []byte) ([]price.Location, error) {
	b = bytes.TrimPrefix(b, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(b) {
		dec, err := charmap.Windows1252.NewDecoder().Bytes(b)
		if err != nil {
			return nil, fmt.Errorf("decode windows-1252: %w", err)
		}
		b = dec
	}
	r := csv.NewReader(bytes.NewReader(b))
	r.FieldsPerRecord = -1
	r.Comment = '#'
	r.TrimLeadingSpace = true

	var out []price.Location
	first := true
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		line, _ := r.FieldPos(0)
		if first {
			first = false
			if len(rec) > 0 && textfold.Fold(rec[0]) == "REGIAO" {
				continue
			}
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("line %d: want region,year,url", line)
		}
		loc := price.Location{
			Region: strings.TrimSpace(rec[0]),
			Year:   strings.TrimSpace(rec[1]),
			URL:    strings.TrimSpace(rec[2]),
		}
		if loc.Year == "" {
			loc.Year = price.NoYear
		}
		if loc.Region == "" || loc.URL == "" {
			return nil, fmt.Errorf("line %d: region and url are required", line)
		}
		out = append(out, loc)
	}
	return out, nil
}
