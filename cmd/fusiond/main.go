// Command fusiond wires the fusion core to its transport, storage, and
// HTTP surface: four radar serial ports feed a shared measurement buffer,
// a fixed-rate ticker drives the engine's predict/update/manage cycle,
// each cycle's confirmed tracks are recorded to the history database and
// served over HTTP, and a reconfiguration request picked up between
// cycles triggers a full engine rebuild. Grounded on the teacher's
// main.go: same flag/signal/waitgroup/graceful-shutdown shape, serial
// ports and DB and API server wired the same way, retargeted from one
// speed-sensor serial line to four radar inputs feeding the fusion core.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/avfusion/radar-fusion/internal/api"
	"github.com/avfusion/radar-fusion/internal/config"
	dbpkg "github.com/avfusion/radar-fusion/internal/db"
	"github.com/avfusion/radar-fusion/internal/fusion/engine"
	"github.com/avfusion/radar-fusion/internal/ingest/serialport"
	"github.com/avfusion/radar-fusion/internal/monitoring"
	"github.com/avfusion/radar-fusion/internal/reconfig"
	"github.com/avfusion/radar-fusion/internal/sensors"
	"github.com/avfusion/radar-fusion/internal/timeutil"
	"github.com/avfusion/radar-fusion/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "path to the tuning defaults JSON file")
	dbPath     = flag.String("db", "fusion.db", "path to the cycle/track history sqlite database")
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	ports      = flag.String("ports", "", "comma-separated serial device paths, one per sensor, in sensor-table order")
)

// engineHolder owns the currently active engine plus its latest out-
// boundary snapshot behind a mutex, so the HTTP server can read a
// consistent view while cmd/fusiond's cycle loop swaps the engine out on
// a reconfiguration, per spec.md §5.
type engineHolder struct {
	mu       sync.Mutex
	eng      *engine.Engine
	snapshot []api.TrackView
}

func (h *engineHolder) set(e *engine.Engine) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.eng = e
	h.snapshot = nil
}

// cycle runs one engine cycle and records its confirmed-track snapshot
// (spec.md §6 out-boundary: {id, X, Y, VX, VY, valid} per slot) for the
// HTTP server to read, plus the richer per-slot diagnostics for history
// storage.
func (h *engineHolder) cycle(measurements []engine.Measurement) []engine.Diagnostic {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := h.eng.Cycle(measurements)
	views := make([]api.TrackView, len(result))
	for i, s := range result {
		views[i] = api.TrackView{ID: s.ID, X: s.X, Y: s.Y, VX: s.VX, VY: s.VY, Valid: s.Valid}
	}
	h.snapshot = views
	return h.eng.Diagnostics()
}

func (h *engineHolder) Snapshot() []api.TrackView {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot
}

func main() {
	flag.Parse()
	log.Printf("fusiond %s (commit %s, built %s)", version.Version, version.GitSHA, version.BuildTime)

	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("fusiond: failed to load config: %v", err)
	}

	sensorTable := sensors.Table{
		{Type: sensors.Radar, Mounting: 45, FOV: 90},
		{Type: sensors.Radar, Mounting: -45, FOV: 90},
		{Type: sensors.Radar, Mounting: 135, FOV: 90},
		{Type: sensors.Radar, Mounting: -135, FOV: 90},
	}

	history, err := dbpkg.New(*dbPath)
	if err != nil {
		log.Fatalf("fusiond: failed to open history db: %v", err)
	}
	defer history.Close()

	holder := &engineHolder{}
	holder.set(engine.New(cfg, sensorTable))

	reconf := reconfig.New()

	portList, err := openPorts(*ports, sensorTable)
	if err != nil {
		log.Fatalf("fusiond: failed to open serial ports: %v", err)
	}
	defer func() {
		for _, p := range portList {
			p.Close()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	readings := make(chan serialport.Reading)

	var wg sync.WaitGroup
	for _, p := range portList {
		wg.Add(1)
		go func(p *serialport.Port) {
			defer wg.Done()
			if err := p.Monitor(ctx); err != nil {
				monitoring.Logf("fusiond: serial monitor terminated: %v", err)
			}
		}(p)
		wg.Add(1)
		go func(p *serialport.Port) {
			defer wg.Done()
			for {
				select {
				case r, ok := <-p.Readings():
					if !ok {
						return
					}
					select {
					case readings <- r:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(p)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runCycles(ctx, timeutil.RealClock{}, cfg, sensorTable, holder, reconf, history, readings)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		runHTTPServer(ctx, holder, reconf, history)
	}()

	wg.Wait()
	log.Print("fusiond: graceful shutdown complete")
}

func openPorts(csv string, sensorTable sensors.Table) ([]*serialport.Port, error) {
	var names []string
	if csv != "" {
		names = splitCSV(csv)
	}
	var out []*serialport.Port
	for i, name := range names {
		if i >= len(sensorTable) {
			break
		}
		p, err := serialport.Open(name, i)
		if err != nil {
			for _, opened := range out {
				opened.Close()
			}
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// runCycles drives the fixed-rate predict/update/manage loop: collect
// whatever readings arrived since the last tick (non-blocking), run one
// engine cycle, record it, and — only here, between cycles — apply a
// pending reconfiguration by rebuilding the engine from scratch. The
// ticker comes from a timeutil.Clock so tests can drive cycles with a
// MockClock instead of waiting on a real one.
func runCycles(ctx context.Context, clock timeutil.Clock, cfg *config.TuningConfig, sensorTable sensors.Table, holder *engineHolder, reconf *reconfig.Channel, history *dbpkg.DB, readings <-chan serialport.Reading) {
	dt := time.Duration(cfg.GetCycleTime() * float64(time.Second))
	ticker := clock.NewTicker(dt)
	defer ticker.Stop()

	var seq int64
	var buffer []engine.Measurement

	for {
		select {
		case <-ctx.Done():
			return
		case r := <-readings:
			buffer = append(buffer, engine.Measurement{
				SensorIndex: r.SensorIndex,
				PosX:        r.PosX,
				PosY:        r.PosY,
				VelX:        r.VelX,
				VelY:        r.VelY,
				Valid:       true,
			})
		case now := <-ticker.C():
			if req, ok := reconf.Pending(); ok {
				cfg = req.Config
				holder.set(engine.New(cfg, sensorTable))
				monitoring.Logf("fusiond: applied reconfiguration %s", req.ID)
			}

			seq++
			diagnostics := holder.cycle(buffer)

			if err := history.RecordCycle(seq, now.UnixNano(), len(buffer), diagnostics); err != nil {
				monitoring.Logf("fusiond: failed to record cycle %d: %v", seq, err)
			}

			buffer = buffer[:0]
		}
	}
}

func runHTTPServer(ctx context.Context, holder *engineHolder, reconf *reconfig.Channel, history *dbpkg.DB) {
	srv := api.New(holder, reconf, history)
	httpServer := &http.Server{Addr: *listen, Handler: srv.ServeMux()}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("fusiond: HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("fusiond: HTTP server shutdown error: %v", err)
	}
}
