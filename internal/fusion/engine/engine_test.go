package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avfusion/radar-fusion/internal/config"
	"github.com/avfusion/radar-fusion/internal/sensors"
)

const (
	frontLeft = iota
	frontRight
	rearLeft
	rearRight
)

func testSensors() sensors.Table {
	return sensors.Table{
		{Type: sensors.Radar, Mounting: 0, FOV: 360},
		{Type: sensors.Radar, Mounting: 0, FOV: 360},
		{Type: sensors.Radar, Mounting: 0, FOV: 360},
		{Type: sensors.Radar, Mounting: 0, FOV: 360},
	}
}

func newTestEngine() *Engine {
	return New(config.EmptyTuningConfig(), testSensors())
}

func reading(sensorIdx int, x, y, vx, vy float32) Measurement {
	return Measurement{SensorIndex: sensorIdx, PosX: x, PosY: y, VelX: vx, VelY: vy, Valid: true}
}

// Scenario 1: no measurements leaves every slot free.
func TestScenarioNoOp(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	snaps := e.Cycle(nil)
	for _, s := range snaps {
		assert.Equal(t, 0, s.ID)
	}
}

// Scenario 2: a single measurement creates a track.
func TestScenarioCreate(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})

	slot := e.Slot(0)
	assert.Equal(t, 1, slot.ID)
	assert.Equal(t, uint16(1), slot.LifetimeCounter)
	assert.Equal(t, uint8(0), slot.LostCounter)
	assert.InDelta(t, 4, slot.Track.X[0], 1e-5)
	assert.InDelta(t, 3, slot.Track.X[1], 1e-5)
	assert.InDelta(t, 10, slot.Track.X[2], 1e-5)
	assert.InDelta(t, 0, slot.Track.X[3], 1e-5)

	for i := 1; i < e.Len(); i++ {
		assert.Equal(t, 0, e.Slot(i).ID)
	}
}

// Scenario 3: one further empty cycle predicts the track forward.
func TestScenarioPredictOneStep(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})
	e.Cycle(nil)

	slot := e.Slot(0)
	assert.InDelta(t, 4.4, slot.Track.X[0], 1e-4)
	assert.InDelta(t, 3.0, slot.Track.X[1], 1e-4)
	assert.Equal(t, uint16(2), slot.LifetimeCounter)
	assert.Equal(t, uint8(1), slot.LostCounter)
}

// Scenario 4: a matching measurement on the next cycle fuses into the same
// track rather than spawning a second one.
func TestScenarioAssociateAndFuse(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})
	e.Cycle([]Measurement{reading(frontLeft, 4.4, 3, 10, 0)})

	slot := e.Slot(0)
	assert.Equal(t, 1, slot.ID)
	assert.InDelta(t, 4.4, slot.Track.X[0], 0.05)
	assert.InDelta(t, 3.0, slot.Track.X[1], 0.05)
	assert.Equal(t, uint16(2), slot.LifetimeCounter)
	assert.Equal(t, uint8(0), slot.LostCounter)

	for i := 1; i < e.Len(); i++ {
		assert.Equal(t, 0, e.Slot(i).ID, "no second track should be created")
	}
}

// Scenario 5: a measurement from a different part of the scene fails to
// associate, coasting the first track and creating a second.
func TestScenarioRejectAssociation(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})
	e.Cycle([]Measurement{reading(rearLeft, -4, 3, 10, 0)})

	first := e.Slot(0)
	assert.Equal(t, 1, first.ID)
	assert.Equal(t, uint8(1), first.LostCounter, "first track should have coasted")

	second := e.Slot(1)
	assert.Equal(t, 2, second.ID)
	assert.InDelta(t, -4, second.Track.X[0], 1e-4)
	assert.InDelta(t, 3, second.Track.X[1], 1e-4)
}

// Scenario 6: filling all but one slot, then re-observing them, leaves the
// new high-priority-but-unassociated measurement to claim the one free
// slot without displacing any existing track.
func TestScenarioPriorityReplacementUsesFreeSlot(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	require.Equal(t, 16, e.Len())

	var cycleA []Measurement
	for i := 0; i < e.Len()-1; i++ {
		sensorIdx := i % 4
		cycleA = append(cycleA, reading(sensorIdx, float32(i*10), 3, 10, 0))
	}
	e.Cycle(cycleA)

	for i := 0; i < e.Len()-1; i++ {
		assert.NotEqual(t, 0, e.Slot(i).ID, "slot %d should be occupied after cycle A", i)
	}
	assert.Equal(t, 0, e.Slot(e.Len()-1).ID, "last slot should remain free after cycle A")

	var cycleB []Measurement
	for i := 0; i < e.Len()-1; i++ {
		sensorIdx := i % 4
		cycleB = append(cycleB, reading(sensorIdx, float32(i*10), 3, 10, 0))
	}
	cycleB = append(cycleB, reading(frontLeft, 5, 20, 10, 0))
	e.Cycle(cycleB)

	for i := 0; i < e.Len()-1; i++ {
		assert.NotEqual(t, 0, e.Slot(i).ID, "slot %d must survive cycle B", i)
	}
	assert.NotEqual(t, 0, e.Slot(e.Len()-1).ID, "previously free slot should now hold the new track")
}

// Scenario 8: a track that is never re-observed coasts and then dies after
// MaxCoastingCycles+1 further cycles.
func TestScenarioCoastingToDeath(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})
	require.Equal(t, 1, e.Slot(0).ID)

	maxCoasting := config.EmptyTuningConfig().GetMaxCoastingCycles()
	for i := 0; i < maxCoasting+1; i++ {
		e.Cycle(nil)
	}

	assert.Equal(t, 0, e.Slot(0).ID)
}

// Confirmation law: a freshly created track is not reported valid in the
// snapshot until its lifetime reaches MinLifetimeTxCycles.
func TestConfirmationLaw(t *testing.T) {
	t.Parallel()
	e := newTestEngine()
	minLifetime := config.EmptyTuningConfig().GetMinLifetimeTxCycles()

	snaps := e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})
	assert.False(t, snaps[0].Valid)

	for i := 2; i < minLifetime; i++ {
		snaps = e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})
		assert.False(t, snaps[0].Valid, "should not confirm before cycle %d", minLifetime)
	}

	snaps = e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})
	assert.True(t, snaps[0].Valid)
}

// Unknown sensor references are dropped silently rather than panicking.
func TestUnknownSensorDroppedSilently(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	assert.NotPanics(t, func() {
		e.Cycle([]Measurement{reading(99, 4, 3, 10, 0)})
	})
	for i := 0; i < e.Len(); i++ {
		assert.Equal(t, 0, e.Slot(i).ID)
	}
}

// Diagnostics must mirror per-slot state even for a track too young to be
// confirmed yet, unlike Cycle's out-boundary Snapshot which only reports
// confirmed tracks.
func TestDiagnosticsReflectsSlotState(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	e.Cycle([]Measurement{reading(frontLeft, 4, 3, 10, 0)})

	diags := e.Diagnostics()
	require.Len(t, diags, e.Len())

	assert.Equal(t, 1, diags[0].ID)
	assert.True(t, diags[0].Live)
	assert.Equal(t, uint16(1), diags[0].Lifetime)
	assert.Equal(t, uint8(0), diags[0].Lost)
	assert.InDelta(t, 4, diags[0].X, 1e-5)
	assert.InDelta(t, 3, diags[0].Y, 1e-5)

	for i := 1; i < len(diags); i++ {
		assert.False(t, diags[i].Live)
		assert.Equal(t, 0, diags[i].ID)
	}
}
