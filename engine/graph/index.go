// Package graph indexes one spatial query result so elements, lines,
// terminals, and coordinates resolve in constant time. An Index is an
// immutable snapshot: build it, query it, discard it.
package graph

import (
	"sort"

	"github.com/gridsight/gridtrace/engine/domain"
	"github.com/gridsight/gridtrace/pkg/geo"
)

// Index is a lookup structure over a flat element set.
type Index struct {
	elements  map[domain.ID]domain.Element
	lines     []domain.Element
	terminals map[int64]bool // node refs of connection fixtures
}

// Build indexes the element set. Later duplicates of the same (kind, ref)
// overwrite earlier ones, so a query that returns an element twice (for
// example via recursion) stays consistent.
func Build(elements []domain.Element) *Index {
	idx := &Index{
		elements:  make(map[domain.ID]domain.Element, len(elements)),
		terminals: make(map[int64]bool),
	}
	for _, el := range elements {
		idx.elements[el.ID()] = el
		if el.IsTerminal() {
			idx.terminals[el.Ref] = true
		}
	}
	for _, el := range idx.elements {
		if el.IsLine() {
			idx.lines = append(idx.lines, el)
		}
	}
	// Deterministic order for every downstream pass.
	sort.Slice(idx.lines, func(i, j int) bool { return idx.lines[i].Ref < idx.lines[j].Ref })
	return idx
}

// Len returns the number of indexed elements.
func (x *Index) Len() int { return len(x.elements) }

// Get returns the element with the given identity.
func (x *Index) Get(id domain.ID) (domain.Element, bool) {
	el, ok := x.elements[id]
	return el, ok
}

// All returns every indexed element in deterministic (kind, ref) order.
func (x *Index) All() []domain.Element {
	out := make([]domain.Element, 0, len(x.elements))
	for _, el := range x.elements {
		out = append(out, el)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Ref < out[j].Ref
	})
	return out
}

// Lines returns every power conductor way, ordered by ref.
func (x *Index) Lines() []domain.Element { return x.lines }

// IsTerminalNode reports whether the node ref is a connection fixture.
func (x *Index) IsTerminalNode(ref int64) bool { return x.terminals[ref] }

// PointLocation resolves a node ref to a coordinate. ok is false when the
// node was not part of the query result; the caller must exclude such
// points from distance decisions rather than treat this as an error.
func (x *Index) PointLocation(ref int64) (lat, lon float64, ok bool) {
	el, found := x.elements[domain.ID{Kind: domain.KindNode, Ref: ref}]
	if !found {
		return 0, 0, false
	}
	return el.Lat, el.Lon, true
}

// PointSet returns the point identities of a structure: a way's node refs,
// or the element's own ref for a point structure.
func PointSet(el domain.Element) map[int64]bool {
	set := make(map[int64]bool)
	switch el.Kind {
	case domain.KindWay:
		for _, n := range el.Nodes {
			set[n] = true
		}
	case domain.KindNode:
		set[el.Ref] = true
	}
	return set
}

// ResolvedPoints returns the coordinates of el's points that are present
// in the index, skipping missing geometry.
func (x *Index) ResolvedPoints(el domain.Element) []geo.LatLon {
	var points []geo.LatLon
	switch el.Kind {
	case domain.KindNode:
		points = append(points, geo.LatLon{Lat: el.Lat, Lon: el.Lon})
	case domain.KindWay:
		for _, ref := range el.Nodes {
			if lat, lon, ok := x.PointLocation(ref); ok {
				points = append(points, geo.LatLon{Lat: lat, Lon: lon})
			}
		}
	}
	return points
}

// Centroid returns the mean coordinate of the element's resolved points.
// Ways fall back to a server-computed center when no member node resolved;
// relations use their center or, failing that, the centroid of their first
// resolvable way member. ok is false when no location can be derived.
func (x *Index) Centroid(el domain.Element) (geo.LatLon, bool) {
	switch el.Kind {
	case domain.KindNode:
		return geo.LatLon{Lat: el.Lat, Lon: el.Lon}, true
	case domain.KindWay:
		if c, ok := geo.Centroid(x.ResolvedPoints(el)); ok {
			return c, true
		}
		if el.Center != nil {
			return geo.LatLon{Lat: el.Center.Lat, Lon: el.Center.Lon}, true
		}
	case domain.KindRelation:
		if el.Center != nil {
			return geo.LatLon{Lat: el.Center.Lat, Lon: el.Center.Lon}, true
		}
		for _, m := range el.Members {
			if m.Kind != domain.KindWay {
				continue
			}
			if member, ok := x.Get(domain.ID{Kind: domain.KindWay, Ref: m.Ref}); ok {
				if c, ok := x.Centroid(member); ok {
					return c, true
				}
			}
		}
	}
	return geo.LatLon{}, false
}

// BoundsWithBuffer returns the element's bounding box grown by deg degrees
// on every side. ok is false when no point of the element resolved.
func (x *Index) BoundsWithBuffer(el domain.Element, deg float64) (geo.BBox, bool) {
	box, ok := geo.BBoxOf(x.ResolvedPoints(el))
	if !ok {
		return geo.BBox{}, false
	}
	return box.Expand(deg), true
}
