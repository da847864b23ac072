// Package aggregate merges plant discoveries from the three evidence
// channels into one ranked record per unique facility.
package aggregate

import (
	"sort"

	"github.com/gridsight/gridtrace/engine/domain"
)

// Channel is the discovery method that produced a plant record.
type Channel string

const (
	ChannelMember    Channel = "substation_member" // relation lists the seed structure
	ChannelTrace     Channel = "network_trace"     // reached by the BFS tracer
	ChannelProximity Channel = "proximity"         // found by radius search
)

// Priority ranks channels; lower wins a merge.
func (c Channel) Priority() int {
	switch c {
	case ChannelMember:
		return 1
	case ChannelTrace:
		return 2
	case ChannelProximity:
		return 3
	default:
		return 4
	}
}

// PlantRecord is one aggregated discovery of a generation facility.
// Channel-specific fields: MemberRole for substation_member, Depth and
// TracePath for network_trace, DistanceKm and Likelihood for proximity.
type PlantRecord struct {
	Plant      domain.PlantInfo `json:"plant"`
	Channel    Channel          `json:"channel"`
	MemberRole string           `json:"member_role,omitempty"`
	Depth      int              `json:"found_at_depth,omitempty"`
	TracePath  []int64          `json:"trace_path,omitempty"`
	DistanceKm float64          `json:"distance_km,omitempty"`
	Likelihood Likelihood       `json:"likelihood,omitempty"`
}

// Key returns the unique facility key.
func (r PlantRecord) Key() domain.ID { return r.Plant.ID }

// Merge reduces the input to exactly one record per unique facility key.
// The winner has the lowest channel priority; between two network_trace
// records the smaller depth wins; between two proximity records the
// smaller distance wins. The outcome does not depend on input order, and
// the output is sorted by key.
func Merge(records []PlantRecord) []PlantRecord {
	best := make(map[domain.ID]PlantRecord)
	for _, rec := range records {
		cur, seen := best[rec.Key()]
		if !seen || beats(rec, cur) {
			best[rec.Key()] = rec
		}
	}

	out := make([]PlantRecord, 0, len(best))
	for _, rec := range best {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		return a.Ref < b.Ref
	})
	return out
}

// beats reports whether a should replace b as the surviving record.
func beats(a, b PlantRecord) bool {
	pa, pb := a.Channel.Priority(), b.Channel.Priority()
	if pa != pb {
		return pa < pb
	}
	switch a.Channel {
	case ChannelTrace:
		return a.Depth < b.Depth
	case ChannelProximity:
		return a.DistanceKm < b.DistanceKm
	}
	return false
}
