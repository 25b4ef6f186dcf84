package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"

	"setopprice/internal/price"
	"setopprice/internal/store"
	"setopprice/internal/textfold"
)

type snapshotPayload struct {
	Path    string         `json:"path"`
	Records int            `json:"records"`
	Regions map[string]int `json:"regions"`
}

type changePayload struct {
	Fingerprint           string          `json:"fingerprint"`
	Code                  string          `json:"codigo"`
	Region                string          `json:"regiao"`
	Year                  string          `json:"ano"`
	CostBefore            decimal.Decimal `json:"custo_anterior"`
	CostAfter             decimal.Decimal `json:"custo_atual"`
	CostDelta             decimal.Decimal `json:"variacao"`
	CostDeltaPct          *float64        `json:"variacao_pct,omitempty"`
	DescriptionBefore     string          `json:"descricao_anterior,omitempty"`
	DescriptionAfter      string          `json:"descricao_atual,omitempty"`
	DescriptionSimilarity *float64        `json:"descricao_similaridade,omitempty"`
	UnitBefore            string          `json:"unidade_anterior,omitempty"`
	UnitAfter             string          `json:"unidade_atual,omitempty"`
}

type summaryPayload struct {
	Added            int `json:"added"`
	Removed          int `json:"removed"`
	Changed          int `json:"changed"`
	CostChanged      int `json:"cost_changed"`
	Unchanged        int `json:"unchanged"`
	DescriptionDrift int `json:"description_drift"`
}

type reportPayload struct {
	Status  string          `json:"status"`
	Summary summaryPayload  `json:"summary"`
	Before  snapshotPayload `json:"before"`
	After   snapshotPayload `json:"after"`
	Added   []price.Record  `json:"added"`
	Removed []price.Record  `json:"removed"`
	Changed []changePayload `json:"changed"`
}

func main() {
	before := flag.String("before", "outputs/planilhas_consolidadas.prev.csv", "Earlier consolidated CSV")
	after := flag.String("after", "planilhas_consolidadas.csv", "Later consolidated CSV")
	outputJSON := flag.String("output-json", "", "Optional path to write JSON report")
	driftBelow := flag.Float64("drift-below", 0.8, "Count description changes with similarity below this as drift")
	flag.Parse()

	report, err := diffFiles(*before, *after, *driftBelow)
	if err != nil {
		fmt.Fprintf(os.Stderr, "diff error: %v\n", err)
		os.Exit(1)
	}

	payload, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		os.Exit(1)
	}

	if *outputJSON != "" {
		if err := os.MkdirAll(filepath.Dir(*outputJSON), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outputJSON, append(payload, '\n'), 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write report error: %v\n", err)
			os.Exit(1)
		}
		s := report.Summary
		fmt.Printf("Wrote JSON report: %s\n", *outputJSON)
		fmt.Printf("Status: %s\n", report.Status)
		fmt.Printf("Records (before/after): %d / %d\n", report.Before.Records, report.After.Records)
		fmt.Printf("Added: %d  Removed: %d  Changed: %d (cost %d)\n", s.Added, s.Removed, s.Changed, s.CostChanged)
		return
	}
	fmt.Println(string(payload))
}

func diffFiles(beforePath, afterPath string, driftBelow float64) (reportPayload, error) {
	for _, p := range []string{beforePath, afterPath} {
		if _, err := os.Stat(p); err != nil {
			return reportPayload{}, err
		}
	}
	ctx := context.Background()
	before, err := store.NewFile(beforePath).Load(ctx)
	if err != nil {
		return reportPayload{}, fmt.Errorf("load %s: %w", beforePath, err)
	}
	after, err := store.NewFile(afterPath).Load(ctx)
	if err != nil {
		return reportPayload{}, fmt.Errorf("load %s: %w", afterPath, err)
	}
	report := diffSets(before, after, driftBelow)
	report.Before.Path = beforePath
	report.After.Path = afterPath
	return report, nil
}

// diffSets pairs records by fingerprint, so an entry whose cost moved between
// two runs is reported as changed rather than as a removal plus an addition.
func diffSets(before, after price.Set, driftBelow float64) reportPayload {
	r := reportPayload{
		Before:  profile(before),
		After:   profile(after),
		Added:   []price.Record{},
		Removed: []price.Record{},
		Changed: []changePayload{},
	}
	for fp, b := range before {
		a, ok := after[fp]
		if !ok {
			r.Removed = append(r.Removed, b)
			continue
		}
		if a.Equal(b) {
			r.Summary.Unchanged++
			continue
		}
		c := compareRecords(fp, b, a)
		if !a.UnitCost.Equal(b.UnitCost) {
			r.Summary.CostChanged++
		}
		if c.DescriptionSimilarity != nil && *c.DescriptionSimilarity < driftBelow {
			r.Summary.DescriptionDrift++
		}
		r.Changed = append(r.Changed, c)
	}
	for fp, a := range after {
		if _, ok := before[fp]; !ok {
			r.Added = append(r.Added, a)
		}
	}

	price.SortRecords(r.Added)
	price.SortRecords(r.Removed)
	sort.Slice(r.Changed, func(i, j int) bool {
		ci, cj := r.Changed[i], r.Changed[j]
		if ci.Region != cj.Region {
			return ci.Region < cj.Region
		}
		if ci.Year != cj.Year {
			return ci.Year < cj.Year
		}
		return ci.Code < cj.Code
	})

	r.Summary.Added = len(r.Added)
	r.Summary.Removed = len(r.Removed)
	r.Summary.Changed = len(r.Changed)
	r.Status = "identical"
	if r.Summary.Added+r.Summary.Removed+r.Summary.Changed > 0 {
		r.Status = "changed"
	}
	return r
}

func compareRecords(fp price.Fingerprint, b, a price.Record) changePayload {
	c := changePayload{
		Fingerprint: string(fp),
		Code:        a.Code,
		Region:      a.Region,
		Year:        a.Year,
		CostBefore:  b.UnitCost,
		CostAfter:   a.UnitCost,
		CostDelta:   a.UnitCost.Sub(b.UnitCost),
	}
	if !b.UnitCost.IsZero() {
		pct := c.CostDelta.Div(b.UnitCost).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		c.CostDeltaPct = &pct
	}
	if a.Description != b.Description {
		c.DescriptionBefore = b.Description
		c.DescriptionAfter = a.Description
		sim := textfold.Similarity(textfold.Fold(b.Description), textfold.Fold(a.Description))
		c.DescriptionSimilarity = &sim
	}
	if a.Unit != b.Unit {
		c.UnitBefore = b.Unit
		c.UnitAfter = a.Unit
	}
	return c
}

func profile(s price.Set) snapshotPayload {
	p := snapshotPayload{Records: len(s), Regions: map[string]int{}}
	for _, r := range s {
		p.Regions[r.Region]++
	}
	return p
}
