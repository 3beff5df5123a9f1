// Package sensors holds the static descriptor table for the radars feeding
// the fusion core. Descriptors are immutable after init; the core looks one
// up by index before building a measurement from a raw reading.
package sensors

// Type tags the physical sensor kind. Only radar exists today, but the
// field is kept so a future lidar/camera descriptor can share the table.
type Type int

const (
	Radar Type = iota
)

// MaxSensorTypes sizes the per-track "seen this cycle" array. The
// reference layout sizes it by sensor count (4) even though every sensor
// today shares the single Radar type, so two physically distinct radars
// both set the same sighting flag. This is preserved as specified rather
// than keyed per sensor instance.
const MaxSensorTypes = 4

// Descriptor is a sensor's mounting and field-of-view transform. CanX/CanY
// are applied as a global offset to measurements at build time (CanX is
// typically the only nonzero one in the reference vehicle layout); X/Y are
// the sensor's own position in the vehicle frame, used for bearing
// confidence; Mounting and FOV are in degrees.
type Descriptor struct {
	Type     Type
	CanX     float32
	CanY     float32
	X        float32
	Y        float32
	Mounting float32
	FOV      float32
}

// Common reference-vehicle mounting positions, named the way the upstream
// harness refers to them. Callers building a Table are free to ignore these
// and supply their own layout.
const (
	FrontLeft = iota
	FrontRight
	RearLeft
	RearRight
)

// Table is a fixed, index-addressed set of sensor descriptors, owned by the
// fusion core and never mutated after construction.
type Table []Descriptor

// Get returns the descriptor at index idx and whether idx was in range.
func (t Table) Get(idx int) (Descriptor, bool) {
	if idx < 0 || idx >= len(t) {
		return Descriptor{}, false
	}
	return t[idx], true
}
