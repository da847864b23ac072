// Package connect decides whether and how a candidate line is attached to
// a structure. Edges are inferred from geometry, not stored in the data
// source, so the heuristics live here, isolated from the traversal.
package connect

import (
	"math"

	"github.com/gridsight/gridtrace/engine/domain"
	"github.com/gridsight/gridtrace/engine/graph"
	"github.com/gridsight/gridtrace/pkg/geo"
)

// Detection thresholds. These encode the precision limits of the map data
// rather than policy, so they are constants, not configuration.
const (
	// TerminalRadiusKm bounds how far a line endpoint (or its terminal)
	// may sit from the structure and still count as attached.
	TerminalRadiusKm = 0.1 // 100 m

	// PassingRadiusKm bounds the passing_near check. A line's closest
	// point must come at least this close to the structure.
	PassingRadiusKm = 0.05 // 50 m
)

// Detect evaluates the four connection criteria in fixed precedence order
// (direct_node, via_terminal, endpoint_near, passing_near) and returns the
// first that holds. ok is false when none does.
func Detect(idx *graph.Index, structure, line domain.Element) (domain.ConnectionEdge, bool) {
	structPoints := graph.PointSet(structure)
	structCoords := idx.ResolvedPoints(structure)

	edge := domain.ConnectionEdge{
		Line:     line.ID(),
		Voltage:  line.Tag("voltage"),
		Operator: line.Tag("operator"),
	}

	// 1. Shared node: identity match, no geometry needed. The line's node
	// order makes the choice of shared point deterministic.
	for _, ref := range line.Nodes {
		if structPoints[ref] {
			edge.Kind = domain.ConnDirectNode
			edge.SharedNode = ref
			return edge, true
		}
	}

	first, last, ok := line.Endpoints()
	if !ok {
		return domain.ConnectionEdge{}, false
	}
	endpoints := []int64{first, last}
	if first == last {
		endpoints = endpoints[:1]
	}

	// 2. Endpoint is a terminal fixture close to the structure.
	for _, ref := range endpoints {
		if !idx.IsTerminalNode(ref) {
			continue
		}
		if d, ok := nodeDistanceKm(idx, ref, structCoords); ok && d < TerminalRadiusKm {
			edge.Kind = domain.ConnViaTerminal
			edge.ClosestNode = ref
			edge.DistanceM = d * 1000
			return edge, true
		}
	}

	// 3. Any endpoint close to the structure, terminal or not.
	for _, ref := range endpoints {
		if d, ok := nodeDistanceKm(idx, ref, structCoords); ok && d < TerminalRadiusKm {
			edge.Kind = domain.ConnEndpointNear
			edge.ClosestNode = ref
			edge.DistanceM = d * 1000
			return edge, true
		}
	}

	// 4. Any point of the line passing close to the structure.
	minDist := math.Inf(1)
	var closest int64
	for _, ref := range line.Nodes {
		if d, ok := nodeDistanceKm(idx, ref, structCoords); ok && d < minDist {
			minDist = d
			closest = ref
		}
	}
	if minDist < PassingRadiusKm {
		edge.Kind = domain.ConnPassingNear
		edge.ClosestNode = closest
		edge.DistanceM = minDist * 1000
		return edge, true
	}

	return domain.ConnectionEdge{}, false
}

// DetectAll classifies every line in the index against the structure and
// returns the connected set, one edge per line, in line-ref order.
func DetectAll(idx *graph.Index, structure domain.Element) []domain.ConnectionEdge {
	var edges []domain.ConnectionEdge
	for _, line := range idx.Lines() {
		if edge, ok := Detect(idx, structure, line); ok {
			edges = append(edges, edge)
		}
	}
	return edges
}

// nodeDistanceKm returns the minimum distance from the node to any of the
// structure's resolved points. ok is false when the node's own location is
// unknown or the structure has no resolved points, which downstream code
// treats as a non-match.
func nodeDistanceKm(idx *graph.Index, ref int64, structCoords []geo.LatLon) (float64, bool) {
	lat, lon, ok := idx.PointLocation(ref)
	if !ok || len(structCoords) == 0 {
		return 0, false
	}
	min := math.Inf(1)
	for _, p := range structCoords {
		if d := geo.DistanceKm(lat, lon, p.Lat, p.Lon); d < min {
			min = d
		}
	}
	return min, true
}
