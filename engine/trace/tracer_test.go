package trace

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gridsight/gridtrace/engine/aggregate"
	"github.com/gridsight/gridtrace/engine/domain"
	"github.com/gridsight/gridtrace/engine/overpass"
)

// fakeQuerier routes each rendered query to a canned response, recording
// call order so tests can assert strict layer sequencing.
type fakeQuerier struct {
	routes []route
	calls  []string
}

type route struct {
	match    string
	elements []domain.Element
	err      error
}

func (f *fakeQuerier) Run(_ context.Context, q *overpass.Query) ([]domain.Element, error) {
	s := q.String()
	f.calls = append(f.calls, s)
	for _, r := range f.routes {
		if strings.Contains(s, r.match) {
			return r.elements, r.err
		}
	}
	return []domain.Element{}, nil
}

func (f *fakeQuerier) callIndex(match string) int {
	for i, c := range f.calls {
		if strings.Contains(c, match) {
			return i
		}
	}
	return -1
}

func node(ref int64, lat, lon float64, tags map[string]string) domain.Element {
	return domain.Element{Kind: domain.KindNode, Ref: ref, Lat: lat, Lon: lon, Tags: tags}
}

func way(ref int64, nodes []int64, tags map[string]string) domain.Element {
	return domain.Element{Kind: domain.KindWay, Ref: ref, Nodes: nodes, Tags: tags}
}

func lineTags() map[string]string {
	return map[string]string{"power": "line", "voltage": "220000"}
}

func plantTags(name string) map[string]string {
	return map[string]string{"power": "plant", "name": name, "plant:source": "wind"}
}

// Network fixture: substation way/300 over nodes 10-12; L1 (way/101)
// attaches directly at node 10 and meets L2 (way/102) at node 20; L2
// reaches plant way/555 and intermediate substation way/400 at node 30;
// L3 (way/103) continues from that junction.
func fixtureQuerier() *fakeQuerier {
	seedEls := []domain.Element{
		way(300, []int64{10, 11, 12}, map[string]string{"power": "substation", "name": "SET Los Vientos", "voltage": "220000"}),
		node(10, 40.4000, -3.7000, nil),
		node(11, 40.4001, -3.7000, nil),
		node(12, 40.4002, -3.7000, nil),
	}
	areaEls := []domain.Element{
		way(101, []int64{10, 20}, lineTags()),
		node(10, 40.4000, -3.7000, nil),
		node(20, 40.4100, -3.7000, nil),
	}
	layer1 := []domain.Element{
		way(101, []int64{10, 20}, lineTags()),
		way(102, []int64{20, 30}, lineTags()),
		node(10, 40.4000, -3.7000, nil),
		node(20, 40.4100, -3.7000, nil),
		node(30, 40.4200, -3.7000, nil),
	}
	layer2 := []domain.Element{
		way(102, []int64{20, 30}, lineTags()),
		way(555, []int64{30, 35}, plantTags("Parque Eólico Norte")),
		way(400, []int64{30, 31}, map[string]string{"power": "substation"}),
		way(103, []int64{30, 40}, lineTags()),
		node(30, 40.4200, -3.7000, nil),
		node(31, 40.4201, -3.7000, nil),
		node(40, 40.4300, -3.7000, nil),
	}
	layer3 := []domain.Element{
		way(103, []int64{30, 40}, lineTags()),
		// The same plant surfaces again one layer deeper; the shallower
		// record must survive aggregation.
		way(555, []int64{30, 35}, plantTags("Parque Eólico Norte")),
		node(30, 40.4200, -3.7000, nil),
		node(40, 40.4300, -3.7000, nil),
	}
	memberEls := []domain.Element{
		{Kind: domain.KindRelation, Ref: 700, Tags: plantTags("Parque Eólico Los Vientos"),
			Members: []domain.Member{{Kind: domain.KindWay, Ref: 300, Role: "substation"}}},
	}
	nearPlant := way(600, nil, plantTags("Solar Sur"))
	nearPlant.Center = &domain.Coordinate{Lat: 40.41, Lon: -3.70}
	proximityEls := []domain.Element{
		nearPlant,
		{Kind: domain.KindRelation, Ref: 700, Tags: plantTags("Parque Eólico Los Vientos"),
			Center: &domain.Coordinate{Lat: 40.47, Lon: -3.70}},
	}

	return &fakeQuerier{routes: []route{
		{match: "way(300);", elements: seedEls},
		{match: `~"line|minor_line|cable"`, elements: areaEls},
		{match: "way(id:101);", elements: layer1},
		{match: "way(id:102);", elements: layer2},
		{match: "way(id:103);", elements: layer3},
		{match: "(bw:300)", elements: memberEls},
		{match: "around:", elements: proximityEls},
	}}
}

func findPlant(res *Result, id domain.ID) (aggregate.PlantRecord, bool) {
	for _, p := range res.Plants {
		if p.Key() == id {
			return p, true
		}
	}
	return aggregate.PlantRecord{}, false
}

func TestTraceFullNetwork(t *testing.T) {
	fq := fixtureQuerier()
	tr := New(fq, Config{})
	res, err := tr.Trace(context.Background(), 300)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}

	if res.Structure.Name != "SET Los Vientos" || res.Structure.Voltage != "220000" {
		t.Errorf("structure = %+v", res.Structure)
	}

	if len(res.Edges) != 1 {
		t.Fatalf("edges = %d, want 1", len(res.Edges))
	}
	if res.Edges[0].Kind != domain.ConnDirectNode || res.Edges[0].SharedNode != 10 {
		t.Errorf("edge = %+v, want direct_node via node 10", res.Edges[0])
	}

	// Traced plant found at depth 2, not the depth-3 rediscovery.
	traced, ok := findPlant(res, domain.ID{Kind: domain.KindWay, Ref: 555})
	if !ok {
		t.Fatal("plant way/555 missing")
	}
	if traced.Channel != aggregate.ChannelTrace || traced.Depth != 2 {
		t.Errorf("way/555 = channel %s depth %d, want network_trace depth 2", traced.Channel, traced.Depth)
	}
	if len(traced.TracePath) == 0 {
		t.Error("way/555 missing trace path summary")
	}

	// Relation found both as member and nearby: member channel wins.
	member, ok := findPlant(res, domain.ID{Kind: domain.KindRelation, Ref: 700})
	if !ok {
		t.Fatal("plant relation/700 missing")
	}
	if member.Channel != aggregate.ChannelMember || member.MemberRole != "substation" {
		t.Errorf("relation/700 = %+v, want substation_member with role", member)
	}

	// Proximity-only plant classified by the facility profile (~1.1 km).
	near, ok := findPlant(res, domain.ID{Kind: domain.KindWay, Ref: 600})
	if !ok {
		t.Fatal("plant way/600 missing")
	}
	if near.Channel != aggregate.ChannelProximity || near.Likelihood != aggregate.LikelihoodLikely {
		t.Errorf("way/600 = %+v, want proximity/likely", near)
	}

	if res.DepthReached != 3 {
		t.Errorf("DepthReached = %d, want 3", res.DepthReached)
	}
	if len(res.Intermediates) != 1 || res.Intermediates[0].Ref != 400 {
		t.Errorf("Intermediates = %v, want [way/400]", res.Intermediates)
	}
	if res.QueryFailures != 0 {
		t.Errorf("QueryFailures = %d", res.QueryFailures)
	}

	// Layers are strictly ordered: k+1 is never queried before k.
	l1, l2, l3 := fq.callIndex("way(id:101);"), fq.callIndex("way(id:102);"), fq.callIndex("way(id:103);")
	if !(l1 >= 0 && l1 < l2 && l2 < l3) {
		t.Errorf("layer query order = %d, %d, %d", l1, l2, l3)
	}
}

func TestTraceIdempotent(t *testing.T) {
	tr1 := New(fixtureQuerier(), Config{})
	tr2 := New(fixtureQuerier(), Config{})
	res1, err1 := tr1.Trace(context.Background(), 300)
	res2, err2 := tr2.Trace(context.Background(), 300)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v, %v", err1, err2)
	}
	if len(res1.Plants) != len(res2.Plants) {
		t.Fatalf("plant counts differ: %d vs %d", len(res1.Plants), len(res2.Plants))
	}
	for i := range res1.Plants {
		a, b := res1.Plants[i], res2.Plants[i]
		if a.Key() != b.Key() || a.Channel != b.Channel || a.Depth != b.Depth {
			t.Errorf("record %d differs: %+v vs %+v", i, a, b)
		}
	}
}

func TestTraceSeedNotFound(t *testing.T) {
	fq := &fakeQuerier{routes: []route{
		{match: "way(999);", elements: []domain.Element{}},
	}}
	tr := New(fq, Config{})
	_, err := tr.Trace(context.Background(), 999)
	if !errors.Is(err, domain.ErrStructureNotFound) {
		t.Fatalf("err = %v, want ErrStructureNotFound", err)
	}
}

func TestTraceSeedQueryFailureIsFatal(t *testing.T) {
	fq := &fakeQuerier{routes: []route{
		{match: "way(300);", err: errors.New("gateway timeout")},
	}}
	tr := New(fq, Config{})
	if _, err := tr.Trace(context.Background(), 300); err == nil {
		t.Fatal("seed resolution failure must propagate")
	}
}

func TestTraceLayerFailureAbsorbed(t *testing.T) {
	fq := fixtureQuerier()
	// First frontier expansion times out.
	for i := range fq.routes {
		if fq.routes[i].match == "way(id:101);" {
			fq.routes[i] = route{match: "way(id:101);", err: errors.New("timeout")}
		}
	}
	tr := New(fq, Config{})
	res, err := tr.Trace(context.Background(), 300)
	if err != nil {
		t.Fatalf("absorbed failure must not abort the trace: %v", err)
	}
	if res.QueryFailures != 1 {
		t.Errorf("QueryFailures = %d, want 1", res.QueryFailures)
	}
	// The frontier drained; no traced plants, but the other channels ran.
	if _, ok := findPlant(res, domain.ID{Kind: domain.KindWay, Ref: 555}); ok {
		t.Error("traced plant should be unreachable after the failed layer")
	}
	if _, ok := findPlant(res, domain.ID{Kind: domain.KindRelation, Ref: 700}); !ok {
		t.Error("membership channel should still contribute")
	}
	if _, ok := findPlant(res, domain.ID{Kind: domain.KindWay, Ref: 600}); !ok {
		t.Error("proximity channel should still contribute")
	}
}

func TestTraceDepthCap(t *testing.T) {
	fq := fixtureQuerier()
	tr := New(fq, Config{MaxDepth: 1})
	res, err := tr.Trace(context.Background(), 300)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	if res.DepthReached != 1 {
		t.Errorf("DepthReached = %d, want 1", res.DepthReached)
	}
	if fq.callIndex("way(id:102);") != -1 {
		t.Error("layer beyond the depth cap must not be queried")
	}
	// Depth values never exceed the cap.
	for _, p := range res.Plants {
		if p.Channel == aggregate.ChannelTrace && p.Depth > 1 {
			t.Errorf("record %v exceeds depth cap", p)
		}
	}
}

func TestTraceDepthMonotonic(t *testing.T) {
	tr := New(fixtureQuerier(), Config{})
	res, err := tr.Trace(context.Background(), 300)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	for _, p := range res.Plants {
		if p.Channel != aggregate.ChannelTrace {
			continue
		}
		if p.Depth < 1 || p.Depth > MaxDepth {
			t.Errorf("depth %d outside [1, %d]", p.Depth, MaxDepth)
		}
	}
}

func TestLastN(t *testing.T) {
	refs := []int64{1, 2, 3, 4, 5, 6, 7}
	got := lastN(refs, 5)
	if len(got) != 5 || got[0] != 3 || got[4] != 7 {
		t.Errorf("lastN = %v", got)
	}
	short := lastN([]int64{1, 2}, 5)
	if len(short) != 2 {
		t.Errorf("lastN short = %v", short)
	}
	// Returned slice must be a copy.
	got[0] = 99
	if refs[2] == 99 {
		t.Error("lastN aliases the input slice")
	}
}
