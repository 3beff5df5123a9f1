// Package engine sequences the per-cycle predict/update/manage pipeline
// that turns a batch of raw sensor readings into a confirmed track
// snapshot. It owns the track store and the state-transition/process-noise
// matrices derived once at construction from the configured cycle time.
package engine

import (
	"github.com/avfusion/radar-fusion/internal/config"
	"github.com/avfusion/radar-fusion/internal/fusion/gating"
	"github.com/avfusion/radar-fusion/internal/fusion/kalman"
	"github.com/avfusion/radar-fusion/internal/fusion/measurement"
	"github.com/avfusion/radar-fusion/internal/fusion/store"
	"github.com/avfusion/radar-fusion/internal/sensors"
)

// Measurement is one raw reading from the transport layer: a sensor table
// index plus position/velocity in the vehicle frame. Valid is false for a
// slot the transport left empty this cycle.
type Measurement struct {
	SensorIndex int
	PosX        float32
	PosY        float32
	VelX        float32
	VelY        float32
	Valid       bool
}

// Engine runs the fusion cycle: predict every live track, associate or
// create from each measurement, then prune and maintain. It is not safe
// for concurrent use — the core is single-threaded and cooperative within
// a cycle, per design.
type Engine struct {
	f  kalman.Matrix
	qu kalman.Upper
	qd kalman.Diagonal

	sensors sensors.Table

	measurementParams measurement.Params
	gatingParams      gating.Params

	store *store.Store
}

// New builds an engine for the given sensor table, deriving F, Q, and
// every component's tunables from cfg. Constructing a new Engine is the
// only way to apply a changed configuration — see internal/reconfig.
func New(cfg *config.TuningConfig, sensorTable sensors.Table) *Engine {
	dt := float32(cfg.GetCycleTime())
	qu, qd := kalman.Decompose(buildQ(dt, cfg))

	return &Engine{
		f:                 buildF(dt),
		qu:                qu,
		qd:                qd,
		sensors:           sensorTable,
		measurementParams: measurement.ParamsFromConfig(cfg),
		gatingParams:      gating.ParamsFromConfig(cfg),
		store:             store.New(cfg.GetMaxTracks(), sensors.MaxSensorTypes, store.ParamsFromConfig(cfg)),
	}
}

// buildF is I plus the dt coupling of position to velocity.
func buildF(dt float32) kalman.Matrix {
	return kalman.Matrix{
		1, 0, dt, 0,
		0, 1, 0, dt,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// buildQ constructs the constant-velocity process-noise covariance for one
// cycle of length dt, built once at init and never recomputed.
func buildQ(dt float32, cfg *config.TuningConfig) kalman.Matrix {
	var q kalman.Matrix

	fillAxis := func(posIdx, velIdx int, sigmaQPos, sigmaQVel float32) {
		qvv := sigmaQVel * sigmaQVel
		qpp := sigmaQPos*sigmaQPos*dt + qvv*dt*dt*dt/3
		qpv := qvv * dt * dt / 2
		q[kalman.N*posIdx+posIdx] = qpp
		q[kalman.N*posIdx+velIdx] = qpv
		q[kalman.N*velIdx+posIdx] = qpv
		q[kalman.N*velIdx+velIdx] = qvv * dt
	}

	fillAxis(0, 2, float32(cfg.GetQSigmaX()), float32(cfg.GetQSigmaVX()))
	fillAxis(1, 3, float32(cfg.GetQSigmaY()), float32(cfg.GetQSigmaVY()))

	return q
}

// Cycle runs one predict/update/manage pass over measurements and returns
// the resulting track snapshot.
func (e *Engine) Cycle(measurements []Measurement) []store.Snapshot {
	e.predict()
	e.update(measurements)
	e.manage()
	return e.store.Snapshot()
}

func (e *Engine) predict() {
	e.store.PredictAll(e.f, e.qu, e.qd)
}

// Diagnostic is a richer per-slot view than Snapshot, exposing the
// lifecycle counters ambient observability tooling (internal/db,
// cmd/tools/replay) wants but the spec.md §6 out-boundary does not
// include. It reflects every slot, live or free, unfiltered by
// confirmation — callers that want the spec's confirmed-only view should
// use Cycle's return value instead.
type Diagnostic struct {
	ID       int
	X        float32
	Y        float32
	VX       float32
	VY       float32
	Lifetime uint16
	Lost     uint8
	Live     bool
}

// Len returns the fixed capacity of the track table.
func (e *Engine) Len() int { return e.store.Len() }

// Slot exposes the internal slot at idx for diagnostics and tests.
func (e *Engine) Slot(idx int) store.Slot { return e.store.Slot(idx) }

// Diagnostics returns one Diagnostic per track-table slot, in slot order.
func (e *Engine) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, e.store.Len())
	for i := range out {
		slot := e.store.Slot(i)
		out[i] = Diagnostic{
			ID:       slot.ID,
			X:        slot.Track.X[0],
			Y:        slot.Track.X[1],
			VX:       slot.Track.X[2],
			VY:       slot.Track.X[3],
			Lifetime: slot.LifetimeCounter,
			Lost:     slot.LostCounter,
			Live:     slot.ID != store.InvalidID,
		}
	}
	return out
}

func (e *Engine) update(measurements []Measurement) {
	for _, m := range measurements {
		if !m.Valid {
			continue
		}
		sensor, ok := e.sensors.Get(m.SensorIndex)
		if !ok {
			continue // unknown sensor reference: drop silently
		}

		plot, priority := measurement.Build(e.measurementParams, sensor, m.PosX, m.PosY, m.VelX, m.VelY)

		tracks := e.store.Tracks()
		idx, value, found := gating.BestMatch(plot, tracks, e.gatingParams)
		if found && gating.Accept(value, e.gatingParams) {
			e.store.Associate(idx, int(sensor.Type), plot)
			continue
		}
		if _, err := e.store.CreateOrDrop(plot, priority); err != nil {
			panic(err)
		}
	}
}

func (e *Engine) manage() {
	e.store.Prune()
	e.store.Maintain()
}
