// Command survey runs the coarse area analysis: every generation plant in
// a bounding box paired with its nearest substation, classified purely by
// distance.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gridsight/gridtrace/engine/aggregate"
	"github.com/gridsight/gridtrace/engine/domain"
	"github.com/gridsight/gridtrace/engine/graph"
	"github.com/gridsight/gridtrace/engine/overpass"
	"github.com/gridsight/gridtrace/pkg/geo"
)

func main() {
	var (
		bboxFlag = flag.String("bbox", "", "area as south,west,north,east (required)")
		endpoint = flag.String("endpoint", overpass.DefaultEndpoint, "Overpass API endpoint")
		outDir   = flag.String("out", "outputs", "directory for result files")
	)
	flag.Parse()

	log := slog.Default()

	box, err := parseBBox(*bboxFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := overpass.NewClient(*endpoint, log)

	// One bounded query for everything: operative plants, substations, and
	// conductors, with computed centers for area features.
	q := overpass.NewQuery(overpass.TimeoutLong, overpass.OutCenter)
	for _, kind := range []domain.Kind{domain.KindNode, domain.KindWay, domain.KindRelation} {
		q.InBBox(kind, box, overpass.TagEquals("power", "plant"),
			overpass.NotTagged("proposed"), overpass.NotTagged("construction"))
		q.InBBox(kind, box, overpass.TagEquals("power", "substation"),
			overpass.NotTagged("proposed"), overpass.NotTagged("construction"))
	}
	q.InBBox(domain.KindWay, box, overpass.TagMatches("power", "line|minor_line|cable"),
		overpass.NotTagged("proposed"), overpass.NotTagged("construction"))

	log.Info("surveying area", "bbox", *bboxFlag, "endpoint", *endpoint)
	els, err := client.Run(ctx, q)
	if err != nil {
		log.Error("area query failed", "error", err)
		os.Exit(1)
	}

	idx := graph.Build(els)
	var plants, substations []sited
	lineCount := 0
	for _, el := range idx.All() {
		switch {
		case el.IsPlant():
			if s, ok := site(idx, el); ok {
				plants = append(plants, s)
			}
		case el.IsSubstation():
			if s, ok := site(idx, el); ok {
				substations = append(substations, s)
			}
		case el.IsLine():
			lineCount++
		}
	}
	log.Info("found", "plants", len(plants), "substations", len(substations), "lines", lineCount)

	if len(plants) == 0 || len(substations) == 0 {
		log.Warn("nothing to pair, no output written")
		return
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Error("create output dir failed", "dir", *outDir, "error", err)
		os.Exit(1)
	}
	path := filepath.Join(*outDir, fmt.Sprintf("connections_%s.csv", time.Now().Format("20060102_150405")))
	if err := writeConnections(path, plants, substations); err != nil {
		log.Error("write failed", "path", path, "error", err)
		os.Exit(1)
	}
	log.Info("survey complete", "path", path, "pairs", len(plants))
}

// sited is an element with a resolved location.
type sited struct {
	el  domain.Element
	loc geo.LatLon
}

func site(idx *graph.Index, el domain.Element) (sited, bool) {
	c, ok := idx.Centroid(el)
	if !ok {
		return sited{}, false
	}
	return sited{el: el, loc: c}, true
}

var connectionHeader = []string{
	"plant_id", "plant_name", "plant_operator", "plant_source",
	"substation_id", "substation_name", "substation_operator", "substation_voltage",
	"distance_km", "connection_likely",
	"plant_lat", "plant_lon", "substation_lat", "substation_lon",
}

// writeConnections pairs each plant with its nearest substation and
// classifies the pair on the coarse distance scale.
func writeConnections(path string, plants, substations []sited) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(connectionHeader); err != nil {
		f.Close()
		return err
	}
	for _, p := range plants {
		nearest, dist := nearestSubstation(p, substations)
		info := domain.NewPlantInfo(p.el)
		sub := domain.NewStructureInfo(nearest.el)
		row := []string{
			info.ID.String(),
			info.Name,
			info.Operator,
			info.Source,
			sub.ID.String(),
			sub.Name,
			sub.Operator,
			sub.Voltage,
			strconv.FormatFloat(dist, 'f', 2, 64),
			string(aggregate.ProfileCoarse.Classify(dist)),
			formatCoord(p.loc.Lat), formatCoord(p.loc.Lon),
			formatCoord(nearest.loc.Lat), formatCoord(nearest.loc.Lon),
		}
		if err := cw.Write(row); err != nil {
			f.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func nearestSubstation(p sited, substations []sited) (sited, float64) {
	best := substations[0]
	bestDist := geo.DistanceKm(p.loc.Lat, p.loc.Lon, best.loc.Lat, best.loc.Lon)
	for _, s := range substations[1:] {
		d := geo.DistanceKm(p.loc.Lat, p.loc.Lon, s.loc.Lat, s.loc.Lon)
		if d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, bestDist
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func parseBBox(s string) (geo.BBox, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.BBox{}, fmt.Errorf("bbox must be south,west,north,east, got %q", s)
	}
	vals := make([]float64, 4)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return geo.BBox{}, fmt.Errorf("bbox component %q: %w", p, err)
		}
		vals[i] = v
	}
	box := geo.BBox{MinLat: vals[0], MinLon: vals[1], MaxLat: vals[2], MaxLon: vals[3]}
	if box.MinLat >= box.MaxLat || box.MinLon >= box.MaxLon {
		return geo.BBox{}, fmt.Errorf("bbox %q is empty or inverted", s)
	}
	return box, nil
}
