package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"setopprice/internal/fetch"
	"setopprice/internal/layout"
	"setopprice/internal/merge"
	"setopprice/internal/normalize"
	"setopprice/internal/price"
	"setopprice/internal/progress"
)

const (
	DefaultWorkers = 1
	sampleSize     = 5
	noDataMessage  = "Nenhuma planilha processada com sucesso!"
)

// Orchestrator wires the pipeline stages together. The zero values of
// Detector, Normalizer, Workers and Logger are replaced by defaults.
type Orchestrator struct {
	Navigator    Navigator
	Fetcher      Fetcher
	Detector     *layout.Detector
	Normalizer   normalize.Normalizer
	Consolidated Consolidated
	Persisters   []Persister
	Workers      int
	Logger       *slog.Logger
	Metrics      *Metrics
	// OnFinish, when set, receives every run's final result before the
	// progress channel closes.
	OnFinish     func(Result)

	now func() time.Time
}

// Run executes one run synchronously, publishing to ch and closing it at
// the end. The returned error is the run's fatal error, if any.
func (o *Orchestrator) Run(ctx context.Context, ch *progress.Channel) (Result, error) {
	r := newRun(uuid.NewString(), ch, o.clock())
	o.execute(ctx, r)
	res := r.Status()
	return res, res.Err
}

func (o *Orchestrator) clock() time.Time {
	if o.now != nil {
		return o.now()
	}
	return time.Now()
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o *Orchestrator) normalizer() normalize.Normalizer {
	n := o.Normalizer
	if n.Prefix == "" && n.MinDescriptionLen == 0 && n.CostPolicy == "" {
		return normalize.New()
	}
	return n
}

func (o *Orchestrator) execute(ctx context.Context, r *Run) {
	defer close(r.done)
	defer r.Progress.Close()

	log := o.logger().With("run_id", r.ID)
	started := o.clock()
	o.Metrics.runStarted()
	log.Info("run started")

	msg, err := o.pipeline(ctx, r, log)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
			msg = "Execução cancelada"
		} else {
			msg = "Erro fatal: " + err.Error()
		}
		r.Progress.Publish(msg)
		r.update(func(res *Result) {
			if !res.State.Terminal() {
				res.State = Failed
			}
			res.Err = err
		})
		log.Error("run failed", "err", err)
	} else {
		log.Info("run finished", "state", r.state())
	}

	finished := o.clock()
	r.update(func(res *Result) {
		res.Message = msg
		res.Finished = &finished
	})
	o.Metrics.runFinished(r.state(), finished.Sub(started))
	if o.OnFinish != nil {
		o.OnFinish(r.Status())
	}
}

// pipeline runs the stages in order and returns the closing message.
func (o *Orchestrator) pipeline(ctx context.Context, r *Run, log *slog.Logger) (string, error) {
	if err := r.setState(Idle, Discovering); err != nil {
		return "", err
	}
	r.Progress.Publishf("Iniciando coleta de preços SETOP (execução %s)", r.ID)

	locs, err := o.discover(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}

	if err := r.setState(Discovering, Processing); err != nil {
		return "", err
	}
	records, err := o.processAll(ctx, r, locs, log)
	if err != nil {
		return "", err
	}

	if len(records) == 0 {
		r.Progress.Publish(noDataMessage)
		log.Warn("no records accepted")
		return noDataMessage, r.setState(Processing, Completed)
	}

	if err := r.setState(Processing, Merging); err != nil {
		return "", err
	}
	// Once merging starts the run is carried through, so a late cancel
	// cannot leave the stores half written.
	ctx = context.WithoutCancel(ctx)
	prior, err := o.Consolidated.Load(ctx)
	if err != nil {
		return "", &PersistenceError{Stage: "load", Err: err}
	}
	r.Progress.Publishf("Mesclando %s registros novos com %s existentes",
		humanize.Comma(int64(len(records))), humanize.Comma(int64(len(prior))))
	merged, stats := merge.Merge(prior, records)
	r.update(func(res *Result) { res.Merge = stats })
	r.Progress.Publishf("Mesclagem: %d novos, %d atualizados, %d inalterados, %d mantidos, %d duplicados",
		stats.Added, stats.Updated, stats.Unchanged, stats.Retained, stats.Duplicates)
	log.Info("merged", "added", stats.Added, "updated", stats.Updated,
		"unchanged", stats.Unchanged, "retained", stats.Retained, "total", stats.Total())

	if err := r.setState(Merging, Persisting); err != nil {
		return "", err
	}
	if err := o.persist(ctx, r, merged, log); err != nil {
		return "", err
	}
	o.Metrics.consolidatedSize(len(merged))

	c := r.Status().Counters
	msg := fmt.Sprintf("Processamento concluído: %s registros aceitos de %d planilhas (%s rejeitados, %d planilhas com falha)",
		humanize.Comma(int64(c.Accepted)), c.Processed, humanize.Comma(int64(c.Rejected)), c.FailedDocuments)
	r.Progress.Publish(msg)
	return msg, r.setState(Persisting, Completed)
}

func (o *Orchestrator) discover(ctx context.Context, r *Run) ([]price.Location, error) {
	locs, err := o.Navigator.ListLocations(progress.NewContext(ctx, r.Progress))
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}
	if len(locs) == 0 {
		return nil, &DiscoveryError{Err: ErrNoLocations}
	}
	regions := make(map[string]struct{})
	for _, l := range locs {
		regions[l.Region] = struct{}{}
	}
	r.update(func(res *Result) { res.Counters.TotalLocations = len(locs) })
	r.Progress.Publishf("Encontradas %d regiões", len(regions))
	r.Progress.Publishf("%d planilhas para processar", len(locs))
	return locs, nil
}

// document is what one spreadsheet produced.
type document struct {
	layout   layout.Layout
	records  []price.Record
	rejected map[normalize.Reason]int
	err      error
}

// processAll fetches and normalizes every location through a bounded
// pool. Records come back in discovery order whatever the pool size.
func (o *Orchestrator) processAll(ctx context.Context, r *Run, locs []price.Location, log *slog.Logger) ([]price.Record, error) {
	docs := make([]document, len(locs))
	var g errgroup.Group
	g.SetLimit(max(o.Workers, DefaultWorkers))
	for i, loc := range locs {
		i, loc := i, loc
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			r.Progress.Publishf("Baixando planilha %d de %d: %s", i+1, len(locs), loc.Region)
			dlog := log.With("region", loc.Region, "year", loc.Year, "url", loc.URL)
			docs[i] = o.processDocument(ctx, loc)
			o.account(r, loc, docs[i], dlog)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []price.Record
	for _, d := range docs {
		out = append(out, d.records...)
	}
	return out, nil
}

func (o *Orchestrator) processDocument(ctx context.Context, loc price.Location) document {
	data, err := o.Fetcher.Fetch(ctx, loc.URL)
	if err != nil {
		return document{err: err}
	}
	wb, err := layout.ReadWorkbook(data)
	if err != nil {
		return document{err: err}
	}
	det := o.Detector
	if det == nil {
		det = layout.NewDetector()
	}
	l, err := det.Detect(wb)
	if err != nil {
		return document{err: err}
	}

	n := o.normalizer()
	doc := document{layout: l, rejected: make(map[normalize.Reason]int)}
	for _, row := range wb.DataRows(l) {
		if blankRow(row) {
			continue
		}
		rec, reason := n.Normalize(row, l.Columns, loc.Region, loc.Year)
		if reason != normalize.Accepted {
			doc.rejected[reason]++
			continue
		}
		doc.records = append(doc.records, rec)
	}
	return doc
}

func blankRow(row []price.Cell) bool {
	for _, c := range row {
		if !c.IsMissing() {
			return false
		}
	}
	return true
}

// account folds one document into the run counters and reports it.
func (o *Orchestrator) account(r *Run, loc price.Location, d document, log *slog.Logger) {
	if d.err != nil {
		r.update(func(res *Result) { res.Counters.FailedDocuments++ })
		o.Metrics.document(failureOutcome(d.err))
		r.Progress.Publishf("Erro ao processar região %s: %v", loc.Region, d.err)
		log.Warn("document failed", "err", d.err)
		return
	}

	rejected := 0
	for _, n := range d.rejected {
		rejected += n
	}
	r.update(func(res *Result) {
		c := &res.Counters
		c.Processed++
		c.Accepted += len(d.records)
		c.Rejected += rejected
		if c.Rejections == nil {
			c.Rejections = make(map[normalize.Reason]int)
		}
		for reason, n := range d.rejected {
			c.Rejections[reason] += n
		}
	})
	o.Metrics.document("ok")
	o.Metrics.recordsSeen(len(d.records), d.rejected)
	r.Progress.Publishf("Planilha %s (%s): %s registros aceitos, %s rejeitados",
		loc.Region, loc.Year, humanize.Comma(int64(len(d.records))), humanize.Comma(int64(rejected)))
	log.Info("document processed", "sheet", d.layout.Sheet, "strategy", d.layout.Strategy,
		"header_row", d.layout.HeaderRow, "accepted", len(d.records), "rejected", rejected)
}

func failureOutcome(err error) string {
	var fe *fetch.Error
	var le *layout.Error
	switch {
	case errors.As(err, &fe):
		return "fetch_error"
	case errors.As(err, &le):
		return "layout_error"
	default:
		return "error"
	}
}

// persist hands the merged set to every persister and only then replaces
// the consolidated file, so a failing store leaves the file untouched.
func (o *Orchestrator) persist(ctx context.Context, r *Run, merged price.Set, log *slog.Logger) error {
	records := merged.Records()
	for _, p := range o.Persisters {
		name := nameOf(p, "store")
		r.Progress.Publishf("Gravando %s registros em %s", humanize.Comma(int64(len(records))), name)
		if err := p.Upsert(ctx, records); err != nil {
			return &PersistenceError{Stage: "upsert " + name, Err: err}
		}
		log.Info("upserted", "store", name, "records", len(records))
	}

	if err := o.Consolidated.Replace(ctx, merged); err != nil {
		return &PersistenceError{Stage: "replace", Err: err}
	}
	r.Progress.Publishf("Dados consolidados e mesclados em '%s'", nameOf(o.Consolidated, "conjunto consolidado"))

	for _, p := range o.Persisters {
		s, ok := p.(Sampler)
		if !ok {
			continue
		}
		sample, err := s.Sample(ctx, sampleSize)
		if err != nil {
			log.Warn("sample failed", "err", err)
			break
		}
		r.Progress.Publish("Amostra dos dados importados:")
		for _, rec := range sample {
			r.Progress.Publish(formatRecord(rec))
		}
		break
	}
	return nil
}

func nameOf(v any, fallback string) string {
	if n, ok := v.(named); ok && n.Name() != "" {
		return n.Name()
	}
	return fallback
}

func formatRecord(rec price.Record) string {
	return strings.Join([]string{
		rec.Code, rec.Description, rec.Unit, rec.UnitCost.StringFixed(2), rec.Region, rec.Year,
	}, " | ")
}
