package ingest

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"setopprice/internal/normalize"
)

// Report renders a run result as a markdown summary for operators.
func Report(res Result) string {
	c := res.Counters
	lines := []string{
		"# SETOP ingestion report",
		"",
		fmt.Sprintf("- Run: `%s`", res.RunID),
		fmt.Sprintf("- State: %s", res.State),
		fmt.Sprintf("- Started: %s", res.Started.Format(time.RFC3339)),
	}
	if res.Finished != nil {
		lines = append(lines,
			fmt.Sprintf("- Finished: %s (%s)", res.Finished.Format(time.RFC3339), res.Finished.Sub(res.Started).Round(time.Millisecond)))
	}
	if res.Message != "" {
		lines = append(lines, fmt.Sprintf("- Outcome: %s", res.Message))
	}
	lines = append(lines,
		"",
		"## Documents",
		fmt.Sprintf("- Locations discovered: %s", humanize.Comma(int64(c.TotalLocations))),
		fmt.Sprintf("- Processed: %s", humanize.Comma(int64(c.Processed))),
		fmt.Sprintf("- Failed: %s", humanize.Comma(int64(c.FailedDocuments))),
		"",
		"## Rows",
		fmt.Sprintf("- Accepted: %s", humanize.Comma(int64(c.Accepted))),
		fmt.Sprintf("- Rejected: %s", humanize.Comma(int64(c.Rejected))),
	)

	if len(c.Rejections) > 0 {
		type entry struct {
			reason normalize.Reason
			n      int
		}
		var byCount []entry
		for r, n := range c.Rejections {
			byCount = append(byCount, entry{r, n})
		}
		sort.Slice(byCount, func(i, j int) bool {
			if byCount[i].n != byCount[j].n {
				return byCount[i].n > byCount[j].n
			}
			return byCount[i].reason < byCount[j].reason
		})
		lines = append(lines, "", "## Rejections by reason")
		for _, e := range byCount {
			lines = append(lines, fmt.Sprintf("- `%s`: %s", e.reason, humanize.Comma(int64(e.n))))
		}
	}

	m := res.Merge
	if m.Total() > 0 {
		lines = append(lines,
			"",
			"## Merge",
			fmt.Sprintf("- Added: %s", humanize.Comma(int64(m.Added))),
			fmt.Sprintf("- Updated: %s", humanize.Comma(int64(m.Updated))),
			fmt.Sprintf("- Unchanged: %s", humanize.Comma(int64(m.Unchanged))),
			fmt.Sprintf("- Retained from earlier runs: %s", humanize.Comma(int64(m.Retained))),
			fmt.Sprintf("- Duplicates within the run: %s", humanize.Comma(int64(m.Duplicates))),
			fmt.Sprintf("- Consolidated total: %s", humanize.Comma(int64(m.Total()))),
		)
	}
	if res.Dropped > 0 {
		lines = append(lines, "", fmt.Sprintf("Progress lines dropped: %s", humanize.Comma(res.Dropped)))
	}
	return strings.Join(lines, "\n") + "\n"
}
