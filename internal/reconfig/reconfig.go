// Package reconfig is the reconfiguration side channel described in
// spec.md §5: an external caller (here, internal/api) may post a new set
// of tunables between cycles, but a change may never take effect
// mid-cycle. The channel only ever hands the orchestrator a value to pick
// up at a cycle boundary; it never touches a running engine directly.
package reconfig

import (
	"sync"

	"github.com/google/uuid"

	"github.com/avfusion/radar-fusion/internal/config"
)

// Request is one reconfiguration ask, stamped with an audit ID. The ID has
// nothing to do with track identity (spec.md keeps track IDs as small
// ints, §9 "ID as identity") — it is purely so a reconfiguration can be
// traced through logs.
type Request struct {
	ID     uuid.UUID
	Config *config.TuningConfig
}

// Channel holds at most one pending reconfiguration request. A later
// request overwrites an earlier one that has not yet been picked up — the
// orchestrator only ever cares about the most recent desired state, not a
// queue of them.
type Channel struct {
	mu      sync.Mutex
	pending *Request
}

// New returns an empty reconfiguration channel.
func New() *Channel {
	return &Channel{}
}

// Request enqueues cfg as the next configuration to apply and returns the
// audit ID assigned to it.
func (c *Channel) Request(cfg *config.TuningConfig) uuid.UUID {
	id := uuid.New()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = &Request{ID: id, Config: cfg}
	return id
}

// Pending returns the most recently requested configuration, if any, and
// clears it. The caller (cmd/fusiond) must only call this between cycles
// and, on a hit, rebuild its engine from scratch — a fresh engine.New
// is the only reinitialization path, per spec.md §5's "full reset of
// tracks and of F/Q derivations" rule. There is no partial-apply path.
func (c *Channel) Pending() (Request, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Request{}, false
	}
	req := *c.pending
	c.pending = nil
	return req, true
}
