// Package ops is the HTTP client for the EPO Open Patent Services API:
// token exchange, paged published-data search and the per-document biblio,
// classification and register lookups.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	ET "github.com/IBM/fp-go/v2/either"
	IOE "github.com/IBM/fp-go/v2/ioeither"
	"github.com/IBM/fp-go/v2/retry"
	"github.com/antchfx/xmlquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var (
	// ErrNotFound marks a definitive upstream not-found. Section lookups
	// treat it as "field absent", the search driver as end of results.
	ErrNotFound = errors.New("not found")
	// ErrAuth marks rejected credentials or a failed token exchange.
	ErrAuth = errors.New("authentication failed")
)

// Config for the OPS client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	// CallInterval is the minimum delay between consecutive outbound
	// calls, keeping the client inside the OPS fair-use limits.
	CallInterval time.Duration
}

// Hit is one search result: the document identifier plus the snippet node
// it was derived from.
type Hit struct {
	ID      string
	Snippet *xmlquery.Node
}

// SearchPage is one page of search results.
type SearchPage struct {
	Total int
	Hits  []Hit
}

type Client struct {
	cfg          Config
	http         *http.Client
	token        string
	lastCall     time.Time
	Logger       *zap.SugaredLogger
	Tracer       trace.Tracer
	Meter        metric.Meter
	callsTotal   metric.Int64Counter
	callsFailed  metric.Int64Counter
	callDuration metric.Int64Histogram
}

func NewClient(
	cfg Config,
	tracer trace.Tracer,
	logger *zap.SugaredLogger,
	meter metric.Meter,
) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: timeout},
		Logger: logger,
		Tracer: tracer,
		Meter:  meter,
	}

	var err error
	c.callsTotal, err = meter.Int64Counter(
		"ops.calls.total",
		metric.WithDescription("Number of outbound OPS API calls"),
	)
	if err != nil {
		return nil, err
	}

	c.callsFailed, err = meter.Int64Counter(
		"ops.calls.failed",
		metric.WithDescription("Number of OPS API calls that failed after retries"),
	)
	if err != nil {
		return nil, err
	}

	c.callDuration, err = meter.Int64Histogram(
		"ops.call.duration",
		metric.WithDescription("Duration of individual OPS API calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// SetToken installs the bearer token used for all subsequent calls.
func (c *Client) SetToken(token string) {
	c.token = token
}

// SearchPage fetches one page of the published-data search, offsets being
// 1-based and inclusive.
func (c *Client) SearchPage(ctx context.Context, cql string, begin, end int) (*SearchPage, error) {
	params := url.Values{
		"q":     {cql},
		"Range": {fmt.Sprintf("%d-%d", begin, end)},
	}
	doc, err := c.get(ctx, c.cfg.BaseURL+"/published-data/search?"+params.Encode(), "search")
	if err != nil {
		return nil, err
	}

	page := &SearchPage{}
	if n := xmlquery.FindOne(doc, "//*[local-name()='biblio-search']"); n != nil {
		if total, convErr := strconv.Atoi(n.SelectAttr("total-result-count")); convErr == nil {
			page.Total = total
		}
	}
	refs := xmlquery.Find(doc,
		"//*[local-name()='search-result']//*[local-name()='publication-reference']")
	for _, ref := range refs {
		if id := hitID(ref); id != "" {
			page.Hits = append(page.Hits, Hit{ID: id, Snippet: ref})
		}
	}
	return page, nil
}

// Biblio fetches the bibliographic detail document.
func (c *Client) Biblio(ctx context.Context, id string) (*xmlquery.Node, error) {
	u := fmt.Sprintf("%s/published-data/publication/epodoc/%s/biblio", c.cfg.BaseURL, url.PathEscape(id))
	return c.get(ctx, u, "biblio")
}

// Classification fetches the classification document.
func (c *Client) Classification(ctx context.Context, id string) (*xmlquery.Node, error) {
	u := fmt.Sprintf("%s/published-data/publication/epodoc/%s/classification", c.cfg.BaseURL, url.PathEscape(id))
	return c.get(ctx, u, "classification")
}

// Register fetches the register document (representatives, oppositions,
// appeals).
func (c *Client) Register(ctx context.Context, id string) (*xmlquery.Node, error) {
	u := fmt.Sprintf("%s/register/publication/epodoc/%s/biblio", c.cfg.BaseURL, url.PathEscape(id))
	return c.get(ctx, u, "register")
}

// get performs one paced, retried GET and parses the body as XML.
// ErrNotFound and context cancellation are never retried.
func (c *Client) get(ctx context.Context, rawURL, operation string) (*xmlquery.Node, error) {
	if err := c.pace(ctx); err != nil {
		return nil, err
	}

	ctx, span := c.Tracer.Start(ctx, "ops."+operation, trace.WithAttributes(
		attribute.String("url", rawURL),
	))
	defer span.End()
	startTime := time.Now()

	attrs := metric.WithAttributes(attribute.String("operation", operation))
	c.callsTotal.Add(ctx, 1, attrs)

	policy := retry.Monoid.Concat(
		retry.LimitRetries(uint(c.cfg.MaxRetries)),
		retry.ExponentialBackoff(250*time.Millisecond),
	)
	action := func(_ retry.RetryStatus) IOE.IOEither[error, *xmlquery.Node] {
		select {
		case <-ctx.Done():
			return IOE.Left[*xmlquery.Node](ctx.Err())
		default:
			return IOE.TryCatchError(func() (*xmlquery.Node, error) {
				return c.fetchOnce(ctx, rawURL)
			})
		}
	}
	retriable := ET.Fold(
		func(err error) bool {
			return !errors.Is(err, ErrNotFound) && ctx.Err() == nil
		},
		func(_ *xmlquery.Node) bool { return false },
	)

	res := IOE.Retrying(policy, action, retriable)()
	durationMs := time.Since(startTime).Milliseconds()
	if ET.IsLeft(res) {
		_, err := ET.UnwrapError(res)
		span.RecordError(err)
		c.callsFailed.Add(ctx, 1, attrs)
		c.callDuration.Record(ctx, durationMs, metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", "failed"),
		))
		c.Logger.Debugw("OPS call failed", "operation", operation, "url", rawURL, "error", err)
		return nil, err
	}
	c.callDuration.Record(ctx, durationMs, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("status", "success"),
	))
	doc, _ := ET.UnwrapError(res)
	return doc, nil
}

func (c *Client) fetchOnce(ctx context.Context, rawURL string) (*xmlquery.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/xml")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ops request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rawURL)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("ops returned HTTP %d for %s", resp.StatusCode, rawURL)
	}

	doc, err := xmlquery.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parsing ops response: %w", err)
	}
	return doc, nil
}

// pace enforces the minimum interval between outbound calls.
func (c *Client) pace(ctx context.Context) error {
	if c.cfg.CallInterval > 0 && !c.lastCall.IsZero() {
		if wait := c.cfg.CallInterval - time.Since(c.lastCall); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	c.lastCall = time.Now()
	return nil
}

// hitID derives the document identifier from a publication-reference
// snippet, preferring the epodoc number over the assembled docdb triple.
func hitID(ref *xmlquery.Node) string {
	if n := xmlquery.FindOne(ref, "*[local-name()='document-id'][@document-id-type='epodoc']"); n != nil {
		if id := childText(n, "doc-number"); id != "" {
			return id
		}
	}
	n := xmlquery.FindOne(ref, "*[local-name()='document-id']")
	if n == nil {
		return ""
	}
	return childText(n, "country") + childText(n, "doc-number") + childText(n, "kind")
}

func childText(parent *xmlquery.Node, name string) string {
	node := xmlquery.FindOne(parent, "*[local-name()='"+name+"']")
	if node == nil {
		return ""
	}
	return strings.TrimSpace(node.InnerText())
}
