// Package search drives the paged OPS published-data search and flattens
// every hit into one output record.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/antchfx/xmlquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Qubut/ops-harvester/internal/normalize"
	"github.com/Qubut/ops-harvester/internal/ops"
)

// API is the slice of the OPS client the driver consumes.
type API interface {
	SetToken(token string)
	SearchPage(ctx context.Context, cql string, begin, end int) (*ops.SearchPage, error)
	Biblio(ctx context.Context, id string) (*xmlquery.Node, error)
	Classification(ctx context.Context, id string) (*xmlquery.Node, error)
	Register(ctx context.Context, id string) (*xmlquery.Node, error)
}

// Query describes one harvest run. Either Year or the DateFrom/DateTo pair
// selects the publication-date predicate.
type Query struct {
	Year               int
	DateFrom           string
	DateTo             string
	PageSize           int
	MaxRecords         int
	WithBiblio         bool
	WithClassification bool
	IncludeRegister    bool
}

// Status is the terminal state of a run.
type Status string

const (
	// StatusComplete means the upstream result set was exhausted.
	StatusComplete Status = "complete"
	// StatusCapReached means MaxRecords was hit before exhaustion.
	StatusCapReached Status = "cap-reached"
	// StatusPartial means one or more pages failed; the accumulated
	// records are still returned.
	StatusPartial Status = "partial"
	// StatusAuthFailed means no token could be obtained; no search calls
	// were made.
	StatusAuthFailed Status = "auth-failed"
)

// Result is the outcome of one run. Records are in discovery order across
// pages; duplicate identifiers reappearing on later pages are preserved as
// separate records.
type Result struct {
	Records []normalize.Record
	Status  Status
	Pages   int
	Err     error
}

// Progress receives the current page index and running record count after
// every emitted record.
type Progress func(page, count int)

type Driver struct {
	api             API
	tokens          ops.TokenProvider
	onProgress      Progress
	Logger          *zap.SugaredLogger
	Tracer          trace.Tracer
	Meter           metric.Meter
	sessionDuration metric.Int64Histogram
	pagesTotal      metric.Int64Counter
	pagesFailed     metric.Int64Counter
	recordsTotal    metric.Int64Counter
	sectionsFailed  metric.Int64Counter
}

func NewDriver(
	api API,
	tokens ops.TokenProvider,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Driver, error) {
	d := &Driver{
		api:    api,
		tokens: tokens,
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	}

	var err error
	d.sessionDuration, err = meter.Int64Histogram(
		"search.session.duration",
		metric.WithDescription("Duration of a full search session"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	d.pagesTotal, err = meter.Int64Counter(
		"search.pages.total",
		metric.WithDescription("Number of search pages requested"),
	)
	if err != nil {
		return nil, err
	}

	d.pagesFailed, err = meter.Int64Counter(
		"search.pages.failed",
		metric.WithDescription("Number of search pages skipped after a failed request"),
	)
	if err != nil {
		return nil, err
	}

	d.recordsTotal, err = meter.Int64Counter(
		"search.records.total",
		metric.WithDescription("Number of records emitted"),
	)
	if err != nil {
		return nil, err
	}

	d.sectionsFailed, err = meter.Int64Counter(
		"search.sections.failed",
		metric.WithDescription("Number of per-record section lookups that yielded nothing"),
	)
	if err != nil {
		return nil, err
	}

	return d, nil
}

// SetProgress installs the progress callback invoked after every emitted
// record.
func (d *Driver) SetProgress(fn Progress) {
	d.onProgress = fn
}

// Run executes the session: token exchange, page walk, per-record
// enrichment. Only an auth failure is fatal; every other failure degrades
// to missing data and the accumulated records are always returned.
func (d *Driver) Run(ctx context.Context, q Query) Result {
	ctx, span := d.Tracer.Start(ctx, "search.session", trace.WithAttributes(
		attribute.Int("page_size", q.PageSize),
		attribute.Int("max_records", q.MaxRecords),
		attribute.Bool("include_register", q.IncludeRegister),
	))
	defer span.End()
	startTime := time.Now()

	if q.PageSize < 1 {
		q.PageSize = 25
	}
	if q.MaxRecords < 1 {
		q.MaxRecords = q.PageSize
	}

	token, err := d.tokens.Token(ctx)
	if err != nil || token == "" {
		if err == nil {
			err = ops.ErrAuth
		}
		span.RecordError(err)
		d.Logger.Errorw("Token exchange failed", "error", err)
		return d.finish(ctx, span, startTime, Result{Status: StatusAuthFailed, Err: err})
	}
	d.api.SetToken(token)

	cql := buildQuery(q)
	d.Logger.Infow("Starting search session", "query", cql,
		"pageSize", q.PageSize, "maxRecords", q.MaxRecords)

	res := Result{}
	capped := false
	failures := 0
	total := -1

	for begin := 1; total < 0 || begin <= total; begin += q.PageSize {
		if err := ctx.Err(); err != nil {
			res.Err = err
			failures++
			break
		}

		res.Pages++
		d.pagesTotal.Add(ctx, 1)
		page, err := d.fetchPage(ctx, cql, begin, begin+q.PageSize-1)
		if errors.Is(err, ops.ErrNotFound) {
			// Definitive end of the result set.
			break
		}
		if err != nil {
			failures++
			d.pagesFailed.Add(ctx, 1)
			d.Logger.Warnw("Search page failed, skipping",
				"offset", begin, "error", err)
			if total < 0 {
				// First page never succeeded, no bound to walk against.
				res.Err = err
				break
			}
			continue
		}
		total = page.Total

		for _, hit := range page.Hits {
			if len(res.Records) >= q.MaxRecords {
				capped = true
				break
			}
			res.Records = append(res.Records, d.enrich(ctx, hit, q))
			d.recordsTotal.Add(ctx, 1)
			if d.onProgress != nil {
				d.onProgress(res.Pages, len(res.Records))
			}
		}
		if capped {
			break
		}
		if len(page.Hits) < q.PageSize {
			// Short page signals exhaustion.
			break
		}
	}

	switch {
	case capped:
		res.Status = StatusCapReached
	case failures > 0:
		res.Status = StatusPartial
	default:
		res.Status = StatusComplete
	}
	return d.finish(ctx, span, startTime, res)
}

func (d *Driver) finish(ctx context.Context, span trace.Span, startTime time.Time, res Result) Result {
	d.sessionDuration.Record(ctx, time.Since(startTime).Milliseconds(),
		metric.WithAttributes(attribute.String("status", string(res.Status))),
	)
	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("records", len(res.Records)),
		attribute.Int("pages", res.Pages),
	)
	d.Logger.Infow("Search session finished",
		"status", res.Status, "records", len(res.Records), "pages", res.Pages)
	return res
}

func (d *Driver) fetchPage(ctx context.Context, cql string, begin, end int) (*ops.SearchPage, error) {
	ctx, span := d.Tracer.Start(ctx, "search.page", trace.WithAttributes(
		attribute.Int("range.begin", begin),
		attribute.Int("range.end", end),
	))
	defer span.End()
	page, err := d.api.SearchPage(ctx, cql, begin, end)
	if err != nil {
		span.RecordError(err)
	}
	return page, err
}

// enrich derives identity and snippet fields first, then performs the
// requested detail lookups. A failed lookup leaves that section absent and
// never aborts the record.
func (d *Driver) enrich(ctx context.Context, hit ops.Hit, q Query) normalize.Record {
	ctx, span := d.Tracer.Start(ctx, "search.enrich", trace.WithAttributes(
		attribute.String("document_id", hit.ID),
	))
	defer span.End()

	sections := normalize.Sections{Snippet: hit.Snippet}
	if q.WithBiblio {
		sections.Biblio = d.lookup(ctx, "biblio", hit.ID, d.api.Biblio)
	}
	if q.WithClassification {
		sections.Classification = d.lookup(ctx, "classification", hit.ID, d.api.Classification)
	}
	if q.IncludeRegister {
		sections.Register = d.lookup(ctx, "register", hit.ID, d.api.Register)
	}
	return normalize.Normalize(hit.ID, sections, q.IncludeRegister)
}

func (d *Driver) lookup(
	ctx context.Context,
	section, id string,
	fetch func(context.Context, string) (*xmlquery.Node, error),
) *xmlquery.Node {
	doc, err := fetch(ctx, id)
	if err != nil {
		d.sectionsFailed.Add(ctx, 1,
			metric.WithAttributes(attribute.String("section", section)),
		)
		d.Logger.Debugw("Section lookup failed, leaving fields absent",
			"section", section, "document_id", id, "error", err)
		return nil
	}
	return doc
}

// buildQuery renders the publication-date predicate in OPS CQL.
func buildQuery(q Query) string {
	if q.DateFrom != "" && q.DateTo != "" {
		return fmt.Sprintf(`pd within "%s %s"`, compactDate(q.DateFrom), compactDate(q.DateTo))
	}
	return fmt.Sprintf(`pd within "%d"`, q.Year)
}

func compactDate(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}
