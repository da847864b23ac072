// Package trace implements the network tracing engine: a layered BFS over
// power lines that starts from the lines attached to a seed substation and
// expands outward through intermediate substations until the frontier
// drains or the depth cap is reached.
package trace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/gridsight/gridtrace/engine/aggregate"
	"github.com/gridsight/gridtrace/engine/connect"
	"github.com/gridsight/gridtrace/engine/domain"
	"github.com/gridsight/gridtrace/engine/graph"
	"github.com/gridsight/gridtrace/engine/overpass"
	"github.com/gridsight/gridtrace/pkg/events"
	"github.com/gridsight/gridtrace/pkg/geo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Fixed traversal constants.
const (
	// MaxDepth bounds the worst case on densely meshed grids. Reaching it
	// is a normal, logged terminal state.
	MaxDepth = 10

	// SeedBufferDeg grows the seed structure's bounding box (~500 m) for
	// the initial connected-line search.
	SeedBufferDeg = 0.005

	// ProximityRadiusM bounds the nearby-plant search around the centroid.
	ProximityRadiusM = 10000

	// tracePathLen is how many recent line refs a plant record keeps as
	// its path summary.
	tracePathLen = 5
)

// powerLinePattern matches the conductor kinds in tag filters.
const powerLinePattern = "line|minor_line|cable"

// Querier is the slice of the spatial query client the tracer uses.
type Querier interface {
	Run(ctx context.Context, q *overpass.Query) ([]domain.Element, error)
}

// Config adjusts a Tracer. Zero values select the defaults.
type Config struct {
	MaxDepth int
	Sink     events.Sink
	Log      *slog.Logger
}

// Tracer runs complete network analyses. All traversal state is local to
// one Trace call; a Tracer is reusable but each run stands alone.
type Tracer struct {
	client   Querier
	sink     events.Sink
	log      *slog.Logger
	maxDepth int
}

// New creates a Tracer over the given query client.
func New(client Querier, cfg Config) *Tracer {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = MaxDepth
	}
	if cfg.Sink == nil {
		cfg.Sink = events.NopSink{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tracer{client: client, sink: cfg.Sink, log: cfg.Log, maxDepth: cfg.MaxDepth}
}

// Result is the externally visible outcome of one trace invocation.
type Result struct {
	Structure     domain.StructureInfo    `json:"structure"`
	Centroid      *geo.LatLon             `json:"centroid,omitempty"`
	Edges         []domain.ConnectionEdge `json:"edges"`
	Plants        []aggregate.PlantRecord `json:"plants"`
	DepthReached  int                     `json:"depth_reached"`
	QueryFailures int                     `json:"query_failures"`
	Intermediates []domain.ID             `json:"intermediate_substations,omitempty"`
}

// Trace discovers every generation facility reachable from the substation
// way with the given ref. Only a failure to resolve the seed is fatal;
// every later sub-query failure is absorbed as missing evidence.
func (t *Tracer) Trace(ctx context.Context, seedRef int64) (*Result, error) {
	seedID := domain.ID{Kind: domain.KindWay, Ref: seedRef}

	seed, idx, err := t.resolveSeed(ctx, seedID)
	if err != nil {
		return nil, err
	}

	res := &Result{Structure: domain.NewStructureInfo(seed)}
	if c, ok := idx.Centroid(seed); ok {
		res.Centroid = &c
	}
	t.emit(ctx, events.Event{Kind: events.TraceStarted, Structure: seedID.String(),
		Fields: map[string]any{"name": res.Structure.Name}})

	var records []aggregate.PlantRecord

	// Channel: network trace, seeded by the detected connected lines.
	edges := t.findConnectedLines(ctx, seed, idx, res)
	res.Edges = edges
	records = append(records, t.traceNetwork(ctx, seed, edges, res)...)

	// Channel: relations listing the seed structure as a member.
	records = append(records, t.findMemberPlants(ctx, seedRef, res)...)

	// Channel: proximity around the structure centroid.
	if res.Centroid != nil {
		records = append(records, t.findNearbyPlants(ctx, *res.Centroid, res)...)
	} else {
		t.log.Warn("no centroid resolved, skipping proximity search", "structure", seedID)
	}

	res.Plants = aggregate.Merge(records)
	t.emit(ctx, events.Event{Kind: events.TraceFinished, Structure: seedID.String(),
		Depth: res.DepthReached,
		Fields: map[string]any{
			"plants":   len(res.Plants),
			"edges":    len(res.Edges),
			"failures": res.QueryFailures,
		}})
	return res, nil
}

// resolveSeed fetches the seed way and its nodes. Any failure here is
// fatal: there is no structure to anchor the trace.
func (t *Tracer) resolveSeed(ctx context.Context, seedID domain.ID) (domain.Element, *graph.Index, error) {
	q := overpass.NewQuery(overpass.TimeoutShort, overpass.OutBody).
		ByID(seedID).
		NodesOfWays()
	els, err := t.client.Run(ctx, q)
	if err != nil {
		return domain.Element{}, nil, fmt.Errorf("resolve structure %s: %w", seedID, err)
	}
	idx := graph.Build(els)
	seed, ok := idx.Get(seedID)
	if !ok {
		return domain.Element{}, nil, &domain.NotFoundError{ID: seedID}
	}
	return seed, idx, nil
}

// findConnectedLines queries all power infrastructure in a buffered box
// around the seed and classifies every line against it.
func (t *Tracer) findConnectedLines(ctx context.Context, seed domain.Element, seedIdx *graph.Index, res *Result) []domain.ConnectionEdge {
	box, ok := seedIdx.BoundsWithBuffer(seed, SeedBufferDeg)
	if !ok {
		t.log.Warn("seed structure has no resolvable geometry", "structure", seed.ID())
		return nil
	}

	q := overpass.NewQuery(overpass.TimeoutLong, overpass.OutBody).
		InBBox(domain.KindWay, box, overpass.TagMatches("power", powerLinePattern)).
		InBBox(domain.KindNode, box, overpass.HasTag("power")).
		NodesOfWays()
	els, err := t.client.Run(ctx, q)
	if err != nil {
		t.absorb(ctx, res, 0, "connected-line search", err)
		return nil
	}

	// Seed geometry must win over anything the area scan returned.
	merged := graph.Build(append(els, seedIdx.All()...))
	return connect.DetectAll(merged, seed)
}

// traceNetwork runs the layered BFS. Layer k+1 is never queried before
// layer k is fully classified, so recorded depths are monotonic. Pacing
// between layers is enforced by the query client's rate limiter.
func (t *Tracer) traceNetwork(ctx context.Context, seed domain.Element, edges []domain.ConnectionEdge, res *Result) []aggregate.PlantRecord {
	var records []aggregate.PlantRecord

	visited := make(map[int64]bool)
	var frontier []int64
	for _, e := range edges {
		if !visited[e.Line.Ref] {
			visited[e.Line.Ref] = true
			frontier = append(frontier, e.Line.Ref)
		}
	}

	intermediates := make(map[domain.ID]bool)
	var traversed []int64
	depth := 0

	for len(frontier) > 0 && depth < t.maxDepth {
		depth++
		traversed = append(traversed, frontier...)

		ctx, span := otel.Tracer("engine/trace").Start(ctx, "trace.layer")
		span.SetAttributes(attribute.Int("trace.depth", depth), attribute.Int("trace.frontier", len(frontier)))

		q := overpass.NewQuery(overpass.TimeoutTrace, overpass.OutBody).
			WaysByRef(frontier).
			NodesOfWays().
			WaysOnNodes().
			RelationsOnNodes().
			Recurse()
		els, err := t.client.Run(ctx, q)
		if err != nil {
			// The layer contributes nothing; the frontier drains and the
			// trace terminates instead of crashing.
			t.absorb(ctx, res, depth, "layer expansion", err)
			span.End()
			frontier = nil
			break
		}

		layer := graph.Build(els)
		var next []int64

		for _, el := range layer.All() {
			switch {
			case el.IsPlant():
				records = append(records, aggregate.PlantRecord{
					Plant:     domain.NewPlantInfo(el),
					Channel:   aggregate.ChannelTrace,
					Depth:     depth,
					TracePath: lastN(traversed, tracePathLen),
				})
				t.emit(ctx, events.Event{Kind: events.PlantFound, Structure: seed.ID().String(),
					Depth: depth, Fields: map[string]any{"plant": el.ID().String()}})

			case el.IsLine() && !visited[el.Ref]:
				visited[el.Ref] = true
				next = append(next, el.Ref)

			case el.Kind == domain.KindWay && el.IsSubstation() && el.ID() != seed.ID():
				if intermediates[el.ID()] {
					break
				}
				intermediates[el.ID()] = true
				// Pass-through: the trace continues through intermediate
				// substations via their shared nodes.
				subNodes := graph.PointSet(el)
				for _, line := range layer.Lines() {
					if visited[line.Ref] {
						continue
					}
					for _, ref := range line.Nodes {
						if subNodes[ref] {
							visited[line.Ref] = true
							next = append(next, line.Ref)
							break
						}
					}
				}
			}
		}

		span.SetAttributes(attribute.Int("trace.next", len(next)))
		span.End()
		t.emit(ctx, events.Event{Kind: events.LayerExpanded, Structure: seed.ID().String(),
			Depth: depth, Fields: map[string]any{"lines": len(frontier), "next": len(next)}})

		frontier = next
	}

	if len(frontier) > 0 && depth >= t.maxDepth {
		t.log.Info("depth cap reached", "structure", seed.ID(), "pending", len(frontier))
		t.emit(ctx, events.Event{Kind: events.DepthCapReached, Structure: seed.ID().String(), Depth: depth})
	}

	res.DepthReached = depth
	res.Intermediates = sortedIDs(intermediates)
	return records
}

// findMemberPlants queries plant relations that list the seed structure
// directly as a member.
func (t *Tracer) findMemberPlants(ctx context.Context, seedRef int64, res *Result) []aggregate.PlantRecord {
	q := overpass.NewQuery(overpass.TimeoutMedium, overpass.OutBody).
		RelationsContainingWay(seedRef, overpass.TagEquals("power", "plant"))
	els, err := t.client.Run(ctx, q)
	if err != nil {
		t.absorb(ctx, res, 0, "membership search", err)
		return nil
	}

	var records []aggregate.PlantRecord
	for _, el := range els {
		if el.Kind != domain.KindRelation || !el.IsPlant() {
			continue
		}
		for _, m := range el.Members {
			if m.Kind == domain.KindWay && m.Ref == seedRef {
				role := m.Role
				if role == "" {
					role = "none"
				}
				records = append(records, aggregate.PlantRecord{
					Plant:      domain.NewPlantInfo(el),
					Channel:    aggregate.ChannelMember,
					MemberRole: role,
				})
				break
			}
		}
	}
	return records
}

// findNearbyPlants searches a bounded radius around the centroid and
// classifies each candidate with the facility likelihood profile.
func (t *Tracer) findNearbyPlants(ctx context.Context, center geo.LatLon, res *Result) []aggregate.PlantRecord {
	q := overpass.NewQuery(overpass.TimeoutLong, overpass.OutCenter).
		Around(domain.KindWay, ProximityRadiusM, center.Lat, center.Lon, overpass.TagEquals("power", "plant")).
		Around(domain.KindRelation, ProximityRadiusM, center.Lat, center.Lon, overpass.TagEquals("power", "plant"))
	els, err := t.client.Run(ctx, q)
	if err != nil {
		t.absorb(ctx, res, 0, "proximity search", err)
		return nil
	}

	idx := graph.Build(els)
	var records []aggregate.PlantRecord
	for _, el := range idx.All() {
		if !el.IsPlant() {
			continue
		}
		c, ok := idx.Centroid(el)
		if !ok {
			// Unknown location: excluded from distance classification.
			continue
		}
		d := geo.DistanceKm(center.Lat, center.Lon, c.Lat, c.Lon)
		records = append(records, aggregate.PlantRecord{
			Plant:      domain.NewPlantInfo(el),
			Channel:    aggregate.ChannelProximity,
			DistanceKm: d,
			Likelihood: aggregate.ProfileFacility.Classify(d),
		})
	}
	return records
}

// absorb records a non-fatal sub-query failure: logged, evented, counted,
// and otherwise treated as an empty result.
func (t *Tracer) absorb(ctx context.Context, res *Result, depth int, stage string, err error) {
	res.QueryFailures++
	t.log.Warn("sub-query failed, continuing with partial evidence", "stage", stage, "error", err)
	t.emit(ctx, events.Event{Kind: events.QueryFailed, Depth: depth,
		Fields: map[string]any{"stage": stage, "error": err.Error()}})
}

func (t *Tracer) emit(ctx context.Context, ev events.Event) {
	t.sink.Emit(ctx, events.Stamp(ev))
}

func lastN(refs []int64, n int) []int64 {
	if len(refs) <= n {
		return append([]int64(nil), refs...)
	}
	return append([]int64(nil), refs[len(refs)-n:]...)
}

func sortedIDs(set map[domain.ID]bool) []domain.ID {
	if len(set) == 0 {
		return nil
	}
	out := make([]domain.ID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}
