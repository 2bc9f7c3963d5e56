// Package coordination implements the replication core's coordinator
// belief, election, health probing and clock synchronisation. It holds
// AppState (a *clinic.State) behind its mutex but applies no domain rules;
// internal/replicate is the only caller that mutates or replaces it.
package coordination

import (
	"net/http"
	"sync"
	"time"

	"clinicmesh/internal/clinic"
	"clinicmesh/internal/node"
)

const (
	// HealthTimeout bounds a single liveness probe.
	HealthTimeout = 1 * time.Second
	// ReqTimeout bounds a forward, a push, or a time fetch.
	ReqTimeout = 2 * time.Second
)

// Events is the minimal hub internal/api wires a websocket feed to. It is
// purely observational and nothing in this package blocks on it.
type Events interface {
	Publish(kind string, data map[string]any)
}

type noopEvents struct{}

func (noopEvents) Publish(string, map[string]any) {}

// Replica is the per-process value that owns all shared mutable state:
// the coordinator belief, the logical clock, and the AppState snapshot
// boundary, all behind a single mutex. It is constructed once at
// start-up and passed explicitly into HTTP handlers, never kept as
// package-level globals, so nothing about its lifecycle depends on
// import order.
type Replica struct {
	Self  node.ID
	Peers node.Set

	mu            sync.Mutex
	coordinatorID node.ID
	others        []node.ID // push/notify fanout, rebuilt on every election
	logicalClock  float64
	state         *clinic.State

	client *http.Client
	Events Events
}

// New constructs a Replica with CoordinatorId := max(peers), the seeded
// clinic state, and the short-timeout HTTP client this package uses for
// its outbound calls (liveness probes, coordinator notifications, time
// fetches). internal/replicate reaches it only through IsAlive; its
// forwards and pushes use the Engine's own client.
func New(self node.ID, peers node.Set) *Replica {
	r := &Replica{
		Self:          self,
		Peers:         peers,
		coordinatorID: peers.Max(),
		others:        peers.Others(self),
		logicalClock:  float64(time.Now().UnixNano()) / 1e9,
		state:         clinic.Seed(),
		client:        &http.Client{Timeout: ReqTimeout},
		Events:        noopEvents{},
	}
	return r
}

func (r *Replica) Address(id node.ID) string {
	return r.Peers[id].Address
}

// CoordinatorID returns the current belief under lock.
func (r *Replica) CoordinatorID() node.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coordinatorID
}

// IsCoordinator reports whether Self currently believes itself the
// coordinator.
func (r *Replica) IsCoordinator() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.coordinatorID == r.Self
}

// setCoordinator overwrites the belief unconditionally — no term/epoch is
// tracked; later beliefs simply overwrite earlier ones.
func (r *Replica) setCoordinator(id node.ID) (changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	changed = r.coordinatorID != id
	r.coordinatorID = id
	return changed
}

// SetCoordinatorFromNotification implements the /update_coordinator
// receipt path: overwrite-with-latest-observation, no validation beyond
// the payload shape check done by the caller.
func (r *Replica) SetCoordinatorFromNotification(id node.ID) {
	if r.setCoordinator(id) {
		r.Events.Publish("coordinator_changed", map[string]any{
			"coordinator_id": int(id), "via": "notification",
		})
	}
}

// Fanout returns the current push/notify target list — the set of peers
// internal/replicate.Engine.pushSnapshot tries this round. Narrowed by
// SetFanout after a push round's survivors are known, rebuilt to full
// membership on every election.
func (r *Replica) Fanout() []node.ID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]node.ID, len(r.others))
	copy(out, r.others)
	return out
}

// SetFanout replaces the push/notify target list with this round's
// survivors (peers that passed both the liveness probe and the snapshot
// delivery).
func (r *Replica) SetFanout(ids []node.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.others = ids
}

// rebuildFanoutFromPeers restores full membership (minus Self): every
// election reconsiders peers that a prior push round had dropped, rather
// than permanently shrinking fanout.
func (r *Replica) rebuildFanoutFromPeers() {
	r.SetFanout(r.Peers.Others(r.Self))
}

// LogicalClock returns the observational clock value (never used for
// ordering or correctness).
func (r *Replica) LogicalClock() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logicalClock
}

func (r *Replica) setLogicalClock(t float64) {
	r.mu.Lock()
	r.logicalClock = t
	r.mu.Unlock()
}

// Read runs fn with the state mutex held for a local read. Reads never
// pass through the replication engine: they take the mutex, read,
// release. fn must never perform network I/O.
func (r *Replica) Read(fn func(*clinic.State)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.state)
}

// MutateAndSnapshot runs fn — which validates and mutates state — and, if
// it succeeds, takes a deep-copy snapshot before releasing the lock.
// Validation, mutation and snapshot copy must not be split across lock
// acquisitions, or a concurrent write could interleave a torn view into
// the snapshot. fn must never perform network I/O.
func (r *Replica) MutateAndSnapshot(fn func(*clinic.State) error) (*clinic.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := fn(r.state); err != nil {
		return nil, err
	}
	return r.state.Clone(), nil
}

// ReplaceState atomically overwrites AppState with a deep copy of snap —
// the follower-side push_state receipt.
func (r *Replica) ReplaceState(snap *clinic.State) {
	r.mu.Lock()
	r.state = snap.Clone()
	r.mu.Unlock()
}
