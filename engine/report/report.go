// Package report renders trace results as CSV and JSON exports.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gridsight/gridtrace/engine/aggregate"
	"github.com/gridsight/gridtrace/engine/trace"
)

var plantHeader = []string{
	"substation_id", "substation_name", "substation_voltage", "substation_operator",
	"plant_id", "plant_kind", "plant_name", "plant_operator", "plant_source", "plant_output",
	"channel", "connection_detail", "depth", "likelihood",
}

// WriteCSV writes one row per discovered plant, joined with the seed
// structure's columns so each file stands alone.
func WriteCSV(w io.Writer, res *trace.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(plantHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, p := range res.Plants {
		row := []string{
			res.Structure.ID.String(),
			res.Structure.Name,
			res.Structure.Voltage,
			res.Structure.Operator,
			p.Plant.ID.String(),
			string(p.Plant.ID.Kind),
			p.Plant.Name,
			p.Plant.Operator,
			p.Plant.Source,
			p.Plant.Output,
			string(p.Channel),
			connectionDetail(p),
			depthColumn(p),
			string(p.Likelihood),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", p.Plant.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// connectionDetail is the channel-specific evidence column: the member
// role, the traversed line path, or the centroid distance.
func connectionDetail(p aggregate.PlantRecord) string {
	switch p.Channel {
	case aggregate.ChannelMember:
		return p.MemberRole
	case aggregate.ChannelTrace:
		parts := make([]string, len(p.TracePath))
		for i, ref := range p.TracePath {
			parts[i] = strconv.FormatInt(ref, 10)
		}
		return strings.Join(parts, " ")
	case aggregate.ChannelProximity:
		return strconv.FormatFloat(p.DistanceKm, 'f', 2, 64) + "km"
	}
	return ""
}

func depthColumn(p aggregate.PlantRecord) string {
	if p.Channel != aggregate.ChannelTrace {
		return ""
	}
	return strconv.Itoa(p.Depth)
}

var lineHeader = []string{
	"line_id", "connection_type", "voltage", "operator", "shared_node", "distance_m",
}

// WriteLinesCSV writes one row per detected connected line.
func WriteLinesCSV(w io.Writer, res *trace.Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(lineHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range res.Edges {
		sharedNode := ""
		if e.SharedNode != 0 {
			sharedNode = strconv.FormatInt(e.SharedNode, 10)
		}
		distance := ""
		if e.DistanceM > 0 {
			distance = strconv.FormatFloat(e.DistanceM, 'f', 1, 64)
		}
		row := []string{
			strconv.FormatInt(e.Line.Ref, 10),
			string(e.Kind),
			e.Voltage,
			e.Operator,
			sharedNode,
			distance,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %s: %w", e.Line, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Summary condenses a trace result for logging and the JSON sidecar.
type Summary struct {
	StructureID     string         `json:"structure_id"`
	StructureName   string         `json:"structure_name"`
	TotalPlants     int            `json:"total_plants"`
	PlantsByChannel map[string]int `json:"plants_by_channel"`
	ConnectedLines  int            `json:"connected_lines"`
	DepthReached    int            `json:"depth_reached"`
	QueryFailures   int            `json:"query_failures"`
	Intermediates   int            `json:"intermediate_substations"`
}

// Summarize builds a Summary from a trace result.
func Summarize(res *trace.Result) Summary {
	byChannel := make(map[string]int)
	for _, p := range res.Plants {
		byChannel[string(p.Channel)]++
	}
	return Summary{
		StructureID:     res.Structure.ID.String(),
		StructureName:   res.Structure.Name,
		TotalPlants:     len(res.Plants),
		PlantsByChannel: byChannel,
		ConnectedLines:  len(res.Edges),
		DepthReached:    res.DepthReached,
		QueryFailures:   res.QueryFailures,
		Intermediates:   len(res.Intermediates),
	}
}

// WriteJSON writes the full result as indented JSON.
func WriteJSON(w io.Writer, res *trace.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// WriteSummaryJSON writes the condensed summary as indented JSON.
func WriteSummaryJSON(w io.Writer, res *trace.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Summarize(res))
}
