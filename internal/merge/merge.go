// Package merge folds a run's records into the consolidated set by
// fingerprint. The newest run wins; nothing is merged field by field.
package merge

import "setopprice/internal/price"

// Stats describes how a merge changed the consolidated set.
type Stats struct {
	Added     int
	Updated   int
	Unchanged int
	Retained  int
	// Duplicates counts incoming records shadowed by a later record with
	// the same fingerprint in the same batch.
	Duplicates int
}

// Total is the size of the merged set.
func (s Stats) Total() int { return s.Added + s.Updated + s.Unchanged + s.Retained }

// Merge returns a new set holding prior overlaid with incoming. prior is
// not modified. Within incoming the last record per fingerprint wins.
func Merge(prior price.Set, incoming []price.Record) (price.Set, Stats) {
	batch := Dedupe(incoming)
	st := Stats{Duplicates: len(incoming) - len(batch)}

	out := make(price.Set, len(prior)+len(batch))
	seen := make(map[price.Fingerprint]struct{}, len(batch))
	for _, r := range batch {
		fp := r.Fingerprint()
		seen[fp] = struct{}{}
		old, ok := prior[fp]
		switch {
		case !ok:
			st.Added++
		case old.Equal(r):
			st.Unchanged++
		default:
			st.Updated++
		}
		out[fp] = r
	}
	for fp, r := range prior {
		if _, ok := seen[fp]; ok {
			continue
		}
		out[fp] = r
		st.Retained++
	}
	return out, st
}

// Dedupe keeps the last record per fingerprint, in the position of that
// last occurrence.
func Dedupe(records []price.Record) []price.Record {
	fps := make([]price.Fingerprint, len(records))
	last := make(map[price.Fingerprint]int, len(records))
	for i, r := range records {
		fps[i] = r.Fingerprint()
		last[fps[i]] = i
	}
	out := make([]price.Record, 0, len(last))
	for i, r := range records {
		if last[fps[i]] == i {
			out = append(out, r)
		}
	}
	return out
}
