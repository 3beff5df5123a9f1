package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// handleTrackChart renders an HTML line chart of one track's recorded x/y
// trajectory, grounded on the teacher's go-echarts debug charts in
// internal/lidar/monitor (same charts.New*/SetGlobalOptions/Render shape,
// applied to a track id's history instead of a background grid).
func (s *Server) handleTrackChart(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "no history database configured", http.StatusNotFound)
		return
	}

	idStr := r.URL.Query().Get("id")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "missing or invalid ?id=", http.StatusBadRequest)
		return
	}

	points, err := s.history.TrackHistory(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if len(points) == 0 {
		http.Error(w, fmt.Sprintf("no history recorded for track %d", id), http.StatusNotFound)
		return
	}

	xData := make([]string, len(points))
	xSeries := make([]opts.LineData, len(points))
	ySeries := make([]opts.LineData, len(points))
	for i, p := range points {
		xData[i] = strconv.FormatInt(p.CycleSeq, 10)
		xSeries[i] = opts.LineData{Value: p.X}
		ySeries[i] = opts.LineData{Value: p.Y}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Track trajectory", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: fmt.Sprintf("Track %d", id), Subtitle: fmt.Sprintf("%d cycles", len(points))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "cycle"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "meters"}),
	)
	line.SetXAxis(xData).
		AddSeries("x", xSeries).
		AddSeries("y", ySeries)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
