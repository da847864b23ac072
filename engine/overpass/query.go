package overpass

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gridsight/gridtrace/engine/domain"
	"github.com/gridsight/gridtrace/pkg/geo"
)

// Timeout classes for queries. Larger result sets get longer deadlines.
// The same value is sent as the [timeout:N] header so the remote server
// and the HTTP client give up together.
const (
	TimeoutShort  = 30 * time.Second  // single-element lookups
	TimeoutMedium = 60 * time.Second  // membership queries
	TimeoutLong   = 120 * time.Second // bounded area scans
	TimeoutTrace  = 180 * time.Second // batched frontier expansion
)

// OutMode is the requested output detail level.
type OutMode string

const (
	OutBody   OutMode = "body"   // full geometry and tags
	OutCenter OutMode = "center" // tags plus a computed center coordinate
	OutCount  OutMode = "count"  // result count only
)

// Query is a declarative spatial/tag filter rendered to Overpass QL.
// Statements accumulate into one union block.
type Query struct {
	Timeout time.Duration
	Out     OutMode
	stmts   []string
}

// NewQuery creates a query with the given timeout class and detail level.
func NewQuery(timeout time.Duration, out OutMode) *Query {
	return &Query{Timeout: timeout, Out: out}
}

// Tag filters.

// TagEquals renders ["key"="value"].
func TagEquals(key, value string) string {
	return fmt.Sprintf("[%q=%q]", key, value)
}

// TagMatches renders ["key"~"pattern"].
func TagMatches(key, pattern string) string {
	return fmt.Sprintf("[%q~%q]", key, pattern)
}

// HasTag renders ["key"], matching any element that carries the tag.
func HasTag(key string) string {
	return fmt.Sprintf("[%q]", key)
}

// NotTagged renders [!"key"], excluding elements that carry the tag at all.
func NotTagged(key string) string {
	return fmt.Sprintf("[!%q]", key)
}

// ByID selects a single element by identity.
func (q *Query) ByID(id domain.ID) *Query {
	q.stmts = append(q.stmts, fmt.Sprintf("%s(%d);", id.Kind, id.Ref))
	return q
}

// WaysByRef selects multiple ways in one statement.
func (q *Query) WaysByRef(refs []int64) *Query {
	parts := make([]string, len(refs))
	for i, r := range refs {
		parts[i] = strconv.FormatInt(r, 10)
	}
	q.stmts = append(q.stmts, fmt.Sprintf("way(id:%s);", strings.Join(parts, ",")))
	return q
}

// InBBox selects elements of kind matching all filters inside box.
func (q *Query) InBBox(kind domain.Kind, box geo.BBox, filters ...string) *Query {
	q.stmts = append(q.stmts, fmt.Sprintf("%s%s(%s);", kind, strings.Join(filters, ""), formatBBox(box)))
	return q
}

// Around selects elements of kind matching all filters within radiusM
// metres of a point.
func (q *Query) Around(kind domain.Kind, radiusM int, lat, lon float64, filters ...string) *Query {
	q.stmts = append(q.stmts, fmt.Sprintf("%s%s(around:%d,%f,%f);", kind, strings.Join(filters, ""), radiusM, lat, lon))
	return q
}

// RelationsContainingWay selects relations matching the filters that list
// the given way as a member.
func (q *Query) RelationsContainingWay(ref int64, filters ...string) *Query {
	q.stmts = append(q.stmts, fmt.Sprintf("relation%s(bw:%d);", strings.Join(filters, ""), ref))
	return q
}

// NodesOfWays adds the member nodes of every way selected so far.
func (q *Query) NodesOfWays() *Query {
	q.stmts = append(q.stmts, "node(w);")
	return q
}

// WaysOnNodes adds every way (matching the filters) that touches a node
// selected so far.
func (q *Query) WaysOnNodes(filters ...string) *Query {
	q.stmts = append(q.stmts, fmt.Sprintf("way%s(bn);", strings.Join(filters, "")))
	return q
}

// RelationsOnNodes adds every relation that touches a node selected so far.
func (q *Query) RelationsOnNodes(filters ...string) *Query {
	q.stmts = append(q.stmts, fmt.Sprintf("relation%s(bn);", strings.Join(filters, "")))
	return q
}

// Recurse adds the full downward expansion of everything selected so far,
// so referenced geometry arrives in the same response.
func (q *Query) Recurse() *Query {
	q.stmts = append(q.stmts, ">;")
	return q
}

// String renders the query as Overpass QL.
func (q *Query) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", int(q.Timeout.Seconds()))
	for _, s := range q.stmts {
		b.WriteString("  ")
		b.WriteString(s)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, ");\nout %s;", q.Out)
	return b.String()
}

func formatBBox(box geo.BBox) string {
	return fmt.Sprintf("%f,%f,%f,%f", box.MinLat, box.MinLon, box.MaxLat, box.MaxLon)
}
