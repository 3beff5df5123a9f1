// Command plot-tracks renders one recorded track's x/y trajectory (as
// persisted by internal/db during a live run or a cmd/tools/replay pass)
// to an SVG file, for offline review without standing up the HTTP debug
// chart. Grounded on internal/lidar/monitor/gridplotter.go's
// plot.New/plotter.NewLine/Save shape.
package main

import (
	"flag"
	"log"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/avfusion/radar-fusion/internal/db"
)

var (
	dbPath  = flag.String("db", "fusion.db", "path to the history database")
	trackID = flag.Int("id", 0, "track id to plot")
	out     = flag.String("out", "track.svg", "output SVG path")
)

func main() {
	flag.Parse()
	if *trackID == 0 {
		log.Fatal("plot-tracks: -id is required")
	}

	store, err := db.New(*dbPath)
	if err != nil {
		log.Fatalf("plot-tracks: failed to open db: %v", err)
	}
	defer store.Close()

	points, err := store.TrackHistory(*trackID)
	if err != nil {
		log.Fatalf("plot-tracks: failed to load history: %v", err)
	}
	if len(points) == 0 {
		log.Fatalf("plot-tracks: no history recorded for track %d", *trackID)
	}

	p := plot.New()
	p.Title.Text = "Track trajectory"
	p.X.Label.Text = "x (m)"
	p.Y.Label.Text = "y (m)"

	pts := make(plotter.XYs, len(points))
	for i, pt := range points {
		pts[i].X = float64(pt.X)
		pts[i].Y = float64(pt.Y)
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		log.Fatalf("plot-tracks: failed to build line: %v", err)
	}
	p.Add(line)
	p.Legend.Add("track", line)

	if err := p.Save(8*vg.Inch, 8*vg.Inch, *out); err != nil {
		log.Fatalf("plot-tracks: failed to save %s: %v", *out, err)
	}
	log.Printf("plot-tracks: wrote %d points for track %d to %s", len(points), *trackID, *out)
}
