// Command gridtrace runs a full network analysis for one substation and
// exports the discovered facilities as CSV and JSON files.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/gridsight/gridtrace/engine/domain"
	"github.com/gridsight/gridtrace/engine/overpass"
	"github.com/gridsight/gridtrace/engine/report"
	"github.com/gridsight/gridtrace/engine/trace"
	"github.com/gridsight/gridtrace/pkg/events"
	"github.com/gridsight/gridtrace/pkg/metrics"
	"github.com/nats-io/nats.go"
)

func main() {
	var (
		substation  = flag.Int64("substation", 0, "OSM way ref of the substation to trace (required)")
		endpoint    = flag.String("endpoint", overpass.DefaultEndpoint, "Overpass API endpoint")
		depth       = flag.Int("depth", trace.MaxDepth, "maximum trace depth")
		outDir      = flag.String("out", "outputs", "directory for result files")
		natsURL     = flag.String("nats", "", "NATS URL for event publishing (empty = disabled)")
		natsSubject = flag.String("nats-subject", "gridtrace.events", "NATS subject for events")
		metricsPort = flag.Int("metrics", 0, "metrics port (0 = disabled)")
	)
	flag.Parse()

	log := slog.Default()

	if *substation == 0 {
		fmt.Fprintln(os.Stderr, "missing required -substation")
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sinks := events.Fanout{events.SlogSink{Log: log}}

	if *metricsPort > 0 {
		reg := metrics.New(log)
		reg.ServeAsync(*metricsPort)
		sinks = append(sinks, events.MetricsSink{Reg: reg})
		log.Info("serving metrics", "port", *metricsPort)
	}

	if *natsURL != "" {
		nc, err := nats.Connect(*natsURL, nats.Name("gridtrace"))
		if err != nil {
			log.Error("nats connect failed", "url", *natsURL, "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		sinks = append(sinks, events.NATSSink{Conn: nc, Subject: *natsSubject, Log: log})
		log.Info("publishing events", "subject", *natsSubject)
	}

	client := overpass.NewClient(*endpoint, log)
	tracer := trace.New(client, trace.Config{MaxDepth: *depth, Sink: sinks, Log: log})

	log.Info("starting network analysis", "substation", *substation, "endpoint", *endpoint)
	res, err := tracer.Trace(ctx, *substation)
	if err != nil {
		if errors.Is(err, domain.ErrStructureNotFound) {
			log.Error("substation not found", "ref", *substation)
		} else {
			log.Error("trace failed", "error", err)
		}
		os.Exit(1)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Error("create output dir failed", "dir", *outDir, "error", err)
		os.Exit(1)
	}

	ts := time.Now().Format("20060102_150405")
	base := filepath.Join(*outDir, fmt.Sprintf("network_analysis_%d_%s", *substation, ts))

	outputs := []struct {
		path  string
		write func(io.Writer, *trace.Result) error
	}{
		{base + ".csv", report.WriteCSV},
		{base + "_lines.csv", report.WriteLinesCSV},
		{base + "_summary.json", report.WriteSummaryJSON},
		{base + ".json", report.WriteJSON},
	}
	for _, out := range outputs {
		if err := writeFile(out.path, res, out.write); err != nil {
			log.Error("write failed", "path", out.path, "error", err)
			os.Exit(1)
		}
		log.Info("wrote", "path", out.path)
	}

	s := report.Summarize(res)
	log.Info("analysis complete",
		"substation", s.StructureName,
		"plants", s.TotalPlants,
		"lines", s.ConnectedLines,
		"depth", s.DepthReached,
		"failures", s.QueryFailures)
}

func writeFile(path string, res *trace.Result, write func(io.Writer, *trace.Result) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f, res); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
