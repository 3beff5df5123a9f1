package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avfusion/radar-fusion/internal/fusion/track"
)

func testParams() Params {
	return Params{
		PruneLimit:          [4]float32{2, 2, 5, 5},
		MaxCoastingCycles:   20,
		MinLifetimeTxCycles: 3,
	}
}

func plotAt(x, y, vx, vy float32) track.Plot {
	return track.Plot{Z: [4]float32{x, y, vx, vy}, R: [4]float32{1, 1, 1, 1}, Weight: 1}
}

func TestCreateOrDropCreatesIntoFreeSlot(t *testing.T) {
	t.Parallel()
	s := New(16, 4, testParams())

	idx, err := s.CreateOrDrop(plotAt(4, 3, 10, 0), 146)
	require.NoError(t, err)
	require.GreaterOrEqual(t, idx, 0)

	slot := s.Slot(idx)
	assert.Equal(t, 1, slot.ID)
	assert.Equal(t, uint16(0), slot.LifetimeCounter)
	assert.Equal(t, uint8(0), slot.LostCounter)
}

func TestCreateOrDropSilentlyDropsLowPriority(t *testing.T) {
	t.Parallel()
	s := New(1, 4, testParams())
	_, err := s.CreateOrDrop(plotAt(0, 0, 0, 0), 150) // fills the only slot, max priority
	require.NoError(t, err)

	idx, err := s.CreateOrDrop(plotAt(50, 0, 0, 0), 100)
	require.NoError(t, err)
	assert.Equal(t, -1, idx)
	assert.Equal(t, 1, s.Slot(0).ID) // original track untouched
}

func TestAllocateIDFirstFit(t *testing.T) {
	t.Parallel()
	s := New(3, 4, testParams())
	i0, err := s.CreateOrDrop(plotAt(0, 0, 0, 0), 150)
	require.NoError(t, err)
	i1, err := s.CreateOrDrop(plotAt(10, 0, 0, 0), 140)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Slot(i0).ID)
	assert.Equal(t, 2, s.Slot(i1).ID)
}

func TestCreateOrDropReturnsErrIDExhausted(t *testing.T) {
	t.Parallel()
	// MaxID allows only MaxID-1 distinct IDs. Fill that many slots through
	// CreateOrDrop, then mark one extra slot live with a duplicate ID so
	// every slot is occupied without freeing up any ID in [1, MaxID).
	s := New(MaxID, 4, testParams())
	for i := 0; i < MaxID-1; i++ {
		_, err := s.CreateOrDrop(plotAt(float32(i), 0, 0, 0), 150)
		require.NoError(t, err)
	}
	s.slots[MaxID-1].ID = 1
	s.slots[MaxID-1].Priority = 150

	_, err := s.CreateOrDrop(plotAt(999, 0, 0, 0), 200) // must beat every existing slot's priority to reach allocation
	assert.ErrorIs(t, err, ErrIDExhausted)
}

func TestMaintainBirthCycleDoesNotIncrementLostCounter(t *testing.T) {
	t.Parallel()
	s := New(4, 4, testParams())
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 146)

	s.Maintain()
	slot := s.Slot(0)
	assert.Equal(t, uint16(1), slot.LifetimeCounter)
	assert.Equal(t, uint8(0), slot.LostCounter)
	assert.Equal(t, 1, slot.ID)
}

func TestMaintainIncrementsLostCounterWhenUnseen(t *testing.T) {
	t.Parallel()
	s := New(4, 4, testParams())
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 146)
	s.Maintain() // birth cycle

	s.Maintain() // no sighting this cycle either
	slot := s.Slot(0)
	assert.Equal(t, uint16(2), slot.LifetimeCounter)
	assert.Equal(t, uint8(1), slot.LostCounter)
}

func TestMaintainResetsAfterMaxCoasting(t *testing.T) {
	t.Parallel()
	params := testParams()
	params.MaxCoastingCycles = 2
	s := New(4, 4, params)
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 146)

	for i := 0; i < 4; i++ {
		s.Maintain()
	}

	assert.Equal(t, InvalidID, s.Slot(0).ID)
}

func TestConfirmationRequiresMinLifetime(t *testing.T) {
	t.Parallel()
	s := New(4, 4, testParams())
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 146)

	for i := 0; i < 3; i++ {
		snaps := s.Snapshot()
		assert.False(t, snaps[0].Valid, "cycle %d should not yet be confirmed", i)
		s.Associate(0, 0, plotAt(4, 3, 10, 0))
		s.Maintain()
	}
	snaps := s.Snapshot()
	assert.True(t, snaps[0].Valid)
}

func TestPruneTieBreakResetsSecondSlot(t *testing.T) {
	t.Parallel()
	s := New(4, 4, testParams())
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 100)
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 100) // identical state and priority

	s.Prune()

	assert.NotEqual(t, InvalidID, s.Slot(0).ID, "first (lower-indexed) slot must survive a tie")
	assert.Equal(t, InvalidID, s.Slot(1).ID, "second (higher-indexed) slot must be reset on a tie")
}

func TestPruneKeepsHigherPriorityOnMismatch(t *testing.T) {
	t.Parallel()
	s := New(4, 4, testParams())
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 90)
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 120)

	s.Prune()

	assert.Equal(t, InvalidID, s.Slot(0).ID)
	assert.NotEqual(t, InvalidID, s.Slot(1).ID)
}

func TestPruneSkipsPairsOutsideLimits(t *testing.T) {
	t.Parallel()
	s := New(4, 4, testParams())
	s.CreateOrDrop(plotAt(4, 3, 10, 0), 100)
	s.CreateOrDrop(plotAt(40, 3, 10, 0), 100)

	s.Prune()

	assert.NotEqual(t, InvalidID, s.Slot(0).ID)
	assert.NotEqual(t, InvalidID, s.Slot(1).ID)
}
