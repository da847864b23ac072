// Package overpass is the spatial query client: it renders declarative
// filters to Overpass QL, posts them to the remote service, and decodes
// the flat element set that comes back.
//
// The client never retries. A transport, protocol, or decode failure is
// returned as an error, distinct from an empty (but successful) result;
// callers decide whether that failure is absorbable.
package overpass

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gridsight/gridtrace/engine/domain"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
)

// DefaultEndpoint is the public Overpass API interpreter.
const DefaultEndpoint = "http://overpass-api.de/api/interpreter"

// MinInterval is the minimum delay between consecutive calls, a fair-use
// invariant of the component rather than a per-call tunable.
const MinInterval = 500 * time.Millisecond

// ErrBadStatus indicates a non-200 response from the service.
var ErrBadStatus = errors.New("overpass: unexpected status")

// Client issues bounded spatial queries against an Overpass endpoint.
type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
	log      *slog.Logger
}

// NewClient creates a client for the given endpoint. An empty endpoint
// selects DefaultEndpoint; a nil logger discards log output.
func NewClient(endpoint string, log *slog.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		endpoint: endpoint,
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Every(MinInterval), 1),
		log:     log,
	}
}

// Run executes the query and returns the decoded element set. The call is
// bounded by the query's timeout class and paced by MinInterval relative
// to the previous call. An empty result is ([]domain.Element{}, nil).
func (c *Client) Run(ctx context.Context, q *Query) ([]domain.Element, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, q.Timeout)
	defer cancel()

	ctx, span := otel.Tracer("engine/overpass").Start(ctx, "overpass.query")
	defer span.End()
	span.SetAttributes(attribute.String("overpass.out", string(q.Out)))

	ql := q.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(ql))
	if err != nil {
		return nil, fmt.Errorf("overpass: build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Error("overpass query failed", "error", err, "elapsed", time.Since(started))
		return nil, fmt.Errorf("overpass: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		c.log.Error("overpass query rejected", "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		c.log.Error("overpass response malformed", "error", err)
		return nil, fmt.Errorf("overpass: decode: %w", err)
	}

	elements := make([]domain.Element, 0, len(wire.Elements))
	for _, w := range wire.Elements {
		elements = append(elements, w.toDomain())
	}
	span.SetAttributes(attribute.Int("overpass.elements", len(elements)))
	c.log.Debug("overpass query ok", "elements", len(elements), "elapsed", time.Since(started))
	return elements, nil
}

// Ping runs a minimal count query to verify the endpoint is reachable.
func (c *Client) Ping(ctx context.Context) error {
	q := NewQuery(TimeoutShort, OutCount)
	q.stmts = append(q.stmts, `node["power"="plant"](40.4,-3.71,40.41,-3.70);`)
	_, err := c.Run(ctx, q)
	return err
}
