// Package store owns the fixed-capacity track table: slot allocation,
// priority-based replacement, near-duplicate pruning, and the per-cycle
// maintenance that ages, coasts, and confirms tracks.
package store

import (
	"errors"

	"github.com/avfusion/radar-fusion/internal/config"
	"github.com/avfusion/radar-fusion/internal/fusion/kalman"
	"github.com/avfusion/radar-fusion/internal/fusion/radarstats"
	"github.com/avfusion/radar-fusion/internal/fusion/track"
)

// InvalidID marks a free slot.
const InvalidID = 0

// MaxID bounds the ID space; IDs are allocated in [1, MaxID).
const MaxID = 32

// ErrIDExhausted is returned by CreateOrDrop when every ID in [1, MaxID) is
// already in use. It is a fatal invariant violation, not a recoverable
// condition: callers construct the store with capacity < MaxID specifically
// so this can never happen in practice. The store reports it rather than
// panicking itself so it stays testable without recovering panics; the
// caller at the fusion boundary (internal/fusion/engine) is the one that
// turns it into a panic.
var ErrIDExhausted = errors.New("store: ID space exhausted, invariant violated (capacity must stay below MaxID)")

// MaxPriority is the priority assigned to an object at zero range.
const MaxPriority = 150.0

// Params are the reinit-only lifecycle tunables.
type Params struct {
	PruneLimit          [kalman.N]float32
	MaxCoastingCycles   int
	MinLifetimeTxCycles int
}

// ParamsFromConfig derives Params from a TuningConfig snapshot.
func ParamsFromConfig(cfg *config.TuningConfig) Params {
	return Params{
		PruneLimit: [kalman.N]float32{
			float32(cfg.GetPruneLimitX()),
			float32(cfg.GetPruneLimitY()),
			float32(cfg.GetPruneLimitVX()),
			float32(cfg.GetPruneLimitVY()),
		},
		MaxCoastingCycles:   cfg.GetMaxCoastingCycles(),
		MinLifetimeTxCycles: cfg.GetMinLifetimeTxCycles(),
	}
}

// Slot is one entry of the track table.
type Slot struct {
	ID              int
	Track           track.Track
	LifetimeCounter uint16
	SeenThisCycle   []bool
	LostCounter     uint8
	Priority        float32
}

func (s *Slot) live() bool { return s.ID != InvalidID }

func (s *Slot) reset(numSensorTypes int) {
	*s = Slot{SeenThisCycle: make([]bool, numSensorTypes)}
}

// Snapshot is the read-only view of one track handed to downstream
// consumers at the end of a cycle.
type Snapshot struct {
	ID    int
	X     float32
	Y     float32
	VX    float32
	VY    float32
	Valid bool
}

// Store is the fixed-capacity track table. It is not safe for concurrent
// use; the engine owns it exclusively within a cycle.
type Store struct {
	slots          []Slot
	numSensorTypes int
	params         Params
}

// New builds an empty store with capacity slots, each tracking
// numSensorTypes independent sighting flags.
func New(capacity, numSensorTypes int, params Params) *Store {
	s := &Store{
		slots:          make([]Slot, capacity),
		numSensorTypes: numSensorTypes,
		params:         params,
	}
	for i := range s.slots {
		s.slots[i].SeenThisCycle = make([]bool, numSensorTypes)
	}
	return s
}

// Tracks returns a slice parallel to the slot table: a pointer to the live
// track at each live index, nil at each free index. Suitable as gating's
// candidate list directly.
func (s *Store) Tracks() []*track.Track {
	out := make([]*track.Track, len(s.slots))
	for i := range s.slots {
		if s.slots[i].live() {
			out[i] = &s.slots[i].Track
		}
	}
	return out
}

// PredictAll advances every live track one cycle and refreshes its priority
// from the newly predicted position.
func (s *Store) PredictAll(f kalman.Matrix, qu kalman.Upper, qd kalman.Diagonal) {
	for i := range s.slots {
		slot := &s.slots[i]
		if !slot.live() {
			continue
		}
		slot.Track.Predict(f, qu, qd)
		slot.Priority = MaxPriority - radarstats.Range(slot.Track.X[0], slot.Track.X[1])
	}
}

// Associate fuses plot into the track at idx and marks it seen by
// sensorType this cycle.
func (s *Store) Associate(idx, sensorType int, plot track.Plot) {
	slot := &s.slots[idx]
	slot.SeenThisCycle[sensorType] = true
	slot.Track.Fuse(plot)
}

// worstSlot finds the slot that should give way to a new measurement: a
// free slot wins immediately (first one found, conceptual priority
// -MaxPriority); otherwise the live slot with the lowest priority.
func (s *Store) worstSlot() (idx int, priority float32) {
	for i := range s.slots {
		if !s.slots[i].live() {
			return i, -MaxPriority
		}
	}

	worstIdx := 0
	worst := s.slots[0].Priority
	for i := 1; i < len(s.slots); i++ {
		if s.slots[i].Priority < worst {
			worst = s.slots[i].Priority
			worstIdx = i
		}
	}
	return worstIdx, worst
}

func (s *Store) idInUse(id int) bool {
	for i := range s.slots {
		if s.slots[i].live() && s.slots[i].ID == id {
			return true
		}
	}
	return false
}

func (s *Store) allocateID() int {
	for id := 1; id < MaxID; id++ {
		if !s.idInUse(id) {
			return id
		}
	}
	return InvalidID
}

// CreateOrDrop handles a measurement that failed association: it finds the
// worst-priority slot and, if the measurement's priority beats it, resets
// that slot and initializes a fresh track there. Otherwise the measurement
// is dropped silently. Returns the slot index used, or -1 if dropped. Returns
// ErrIDExhausted if no ID remains to assign, which the caller should treat
// as fatal.
func (s *Store) CreateOrDrop(plot track.Plot, priority float32) (int, error) {
	idx, worst := s.worstSlot()
	if priority <= worst {
		return -1, nil
	}

	slot := &s.slots[idx]
	if slot.live() {
		slot.reset(s.numSensorTypes)
	}

	id := s.allocateID()
	if id == InvalidID {
		return -1, ErrIDExhausted
	}

	slot.ID = id
	slot.Track.Init(plot)
	slot.Priority = priority
	return idx, nil
}

func withinPruneLimits(a, b *track.Track, limit [kalman.N]float32) bool {
	for i := 0; i < kalman.N; i++ {
		d := a.X[i] - b.X[i]
		if d < 0 {
			d = -d
		}
		if d >= limit[i] {
			return false
		}
	}
	return true
}

// Prune resets near-duplicate tracks pairwise. Both slot IDs are rechecked
// on every comparison since an earlier reset in this same pass can free a
// slot mid-scan. On an exact priority tie the later-indexed slot is reset,
// matching the fixed lexicographic visit order.
func (s *Store) Prune() {
	for i := 0; i < len(s.slots); i++ {
		for j := i + 1; j < len(s.slots); j++ {
			si, sj := &s.slots[i], &s.slots[j]
			if !si.live() || !sj.live() {
				continue
			}
			if !withinPruneLimits(&si.Track, &sj.Track, s.params.PruneLimit) {
				continue
			}
			if si.Priority >= sj.Priority {
				sj.reset(s.numSensorTypes)
			} else {
				si.reset(s.numSensorTypes)
			}
		}
	}
}

// Maintain ages every live track: advances lifetime, updates the lost
// counter from this cycle's sightings (unless this is the track's birth
// cycle), coasts or destroys it, and clears sighting flags for next cycle.
func (s *Store) Maintain() {
	for i := range s.slots {
		slot := &s.slots[i]
		if !slot.live() {
			continue
		}

		slot.LifetimeCounter++ // wraps at 2^16 via the uint16 type itself

		if slot.LifetimeCounter > 1 {
			if !anySeen(slot.SeenThisCycle) {
				slot.LostCounter++ // wraps at 2^8 via the uint8 type itself
				if int(slot.LostCounter) > s.params.MaxCoastingCycles {
					slot.reset(s.numSensorTypes)
					continue
				}
			} else {
				slot.LostCounter = 0
			}
		}

		for j := range slot.SeenThisCycle {
			slot.SeenThisCycle[j] = false
		}
	}
}

func anySeen(seen []bool) bool {
	for _, v := range seen {
		if v {
			return true
		}
	}
	return false
}

// Snapshot returns the read-only view of the track table: confirmed slots
// (id set and lifetime past the minimum) are marked valid, everything else
// (free or tentative) is not.
func (s *Store) Snapshot() []Snapshot {
	out := make([]Snapshot, len(s.slots))
	for i := range s.slots {
		slot := &s.slots[i]
		confirmed := slot.live() && int(slot.LifetimeCounter) >= s.params.MinLifetimeTxCycles
		out[i] = Snapshot{
			ID:    slot.ID,
			X:     slot.Track.X[0],
			Y:     slot.Track.X[1],
			VX:    slot.Track.X[2],
			VY:    slot.Track.X[3],
			Valid: confirmed,
		}
	}
	return out
}

// Len returns the fixed capacity of the table.
func (s *Store) Len() int { return len(s.slots) }

// Slot exposes the internal slot at idx for diagnostics and tests.
func (s *Store) Slot(idx int) Slot { return s.slots[idx] }
