// Package price holds the canonical unit-price types shared by the
// ingestion pipeline: spreadsheet locations, raw cells, canonical records
// and the consolidated set keyed by fingerprint.
package price

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"github.com/shopspring/decimal"
)

// NoYear is used when a spreadsheet link carries no year.
const NoYear = "N/A"

// Location is one spreadsheet discovered on the agency site.
type Location struct {
	Region string
	Year   string
	URL    string
}

// Record is the canonical unit-price entry. It is the unit of storage and
// of deduplication.
type Record struct {
	Code        string          `json:"codigo"`
	Description string          `json:"descricao"`
	Unit        string          `json:"unidade"`
	UnitCost    decimal.Decimal `json:"custo_unitario"`
	Region      string          `json:"regiao"`
	Year        string          `json:"ano"`
}

// Fingerprint identifies one logical price-list entry across runs.
type Fingerprint string

// Fingerprint hashes (code, region, year). Description, unit and cost do
// not take part, so a later run with a new cost maps to the same key.
func (r Record) Fingerprint() Fingerprint {
	h := sha256.New()
	h.Write([]byte(r.Code))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Region))
	h.Write([]byte{0x1f})
	h.Write([]byte(r.Year))
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// Equal reports whether two records carry the same values.
func (r Record) Equal(o Record) bool {
	return r.Code == o.Code &&
		r.Description == o.Description &&
		r.Unit == o.Unit &&
		r.UnitCost.Equal(o.UnitCost) &&
		r.Region == o.Region &&
		r.Year == o.Year
}

// Set is the consolidated, deduplicated collection of records.
type Set map[Fingerprint]Record

// NewSet builds a set from records; later records win on equal fingerprints.
func NewSet(records []Record) Set {
	s := make(Set, len(records))
	for _, r := range records {
		s[r.Fingerprint()] = r
	}
	return s
}

// Clone returns a shallow copy; records are values so the copy is independent.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Records returns the records ordered by region, year and code.
func (s Set) Records() []Record {
	out := make([]Record, 0, len(s))
	for _, r := range s {
		out = append(out, r)
	}
	SortRecords(out)
	return out
}

// SortRecords orders records by region, year and code in place.
func SortRecords(rs []Record) {
	sort.Slice(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.Region != b.Region {
			return a.Region < b.Region
		}
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Code < b.Code
	})
}
