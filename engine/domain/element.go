// Package domain defines the core element model for power-infrastructure
// data retrieved from a spatial query service, plus the classification
// helpers the rest of the engine is built on.
package domain

import "fmt"

// Kind discriminates the three element variants of the data source.
type Kind string

const (
	KindNode     Kind = "node"     // a point with a coordinate
	KindWay      Kind = "way"      // an ordered sequence of node refs
	KindRelation Kind = "relation" // an ordered sequence of typed members
)

// ID identifies an element. Numeric refs are only unique within a kind:
// the same ref may denote both a node and a way, so every lookup and
// comparison in the engine keys on the full (kind, ref) pair.
type ID struct {
	Kind Kind  `json:"kind"`
	Ref  int64 `json:"ref"`
}

func (id ID) String() string {
	return fmt.Sprintf("%s/%d", id.Kind, id.Ref)
}

// Member is one entry of a relation.
type Member struct {
	Kind Kind   `json:"type"`
	Ref  int64  `json:"ref"`
	Role string `json:"role"`
}

// Element is a read-only snapshot of one entity from the data source.
// Which fields are populated depends on the kind and on the detail level
// the query requested.
type Element struct {
	Kind    Kind
	Ref     int64
	Lat     float64 // nodes only
	Lon     float64
	Center  *Coordinate // ways/relations queried at center detail
	Nodes   []int64     // ways only
	Members []Member    // relations only
	Tags    map[string]string
}

// Coordinate is a resolved lat/lon pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// ID returns the element's (kind, ref) identity.
func (e Element) ID() ID {
	return ID{Kind: e.Kind, Ref: e.Ref}
}

// Tag returns the tag value for key, or "" when absent.
func (e Element) Tag(key string) string {
	return e.Tags[key]
}

// Endpoints returns the first and last node refs of a way.
// ok is false for non-ways and for ways with no nodes.
func (e Element) Endpoints() (first, last int64, ok bool) {
	if e.Kind != KindWay || len(e.Nodes) == 0 {
		return 0, 0, false
	}
	return e.Nodes[0], e.Nodes[len(e.Nodes)-1], true
}
