package replicate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"clinicmesh/internal/clinic"
	"clinicmesh/internal/coordination"
	"clinicmesh/internal/node"
)

// Engine wires a coordination.Replica to the clinic domain and to the
// push-fanout / write-funnel machinery. It is the only thing internal/api
// talks to for mutating operations.
type Engine struct {
	Replica *coordination.Replica
	Audit   *AuditLog
	client  *http.Client
}

func NewEngine(r *coordination.Replica, audit *AuditLog) *Engine {
	return &Engine{Replica: r, Audit: audit, client: &http.Client{Timeout: coordination.ReqTimeout}}
}

// pushPayload is the /push_state wire body.
type pushPayload struct {
	State *clinic.State `json:"state"`
}

// Apply ensures the believed coordinator is alive, runs fn locally if
// Self is it (snapshot and push on success), otherwise forwards the raw
// request body to the coordinator and relays its response back
// untouched.
//
// If the forward itself fails (the coordinator died between the
// liveness probe and the actual forward), run one re-election and, if
// Self now wins it, commit locally instead of failing the client
// outright. If Self still isn't the winner, surface a retriable
// CoordinatorUnreachable error; this is one hop only, never a recursive
// re-forward, to bound worst-case latency.
//
// op names the operation for audit/event purposes; fwdPath/fwdBody let a
// non-coordinator forward the exact request it received rather than
// re-serializing one, so the funnel behaves as a transparent proxy.
func (e *Engine) Apply(op, fwdPath string, fwdBody []byte, fn func(*clinic.State) error) ([]byte, int, error) {
	coord := e.Replica.EnsureCoordinatorAlive()

	if coord == e.Replica.Self {
		return e.applyLocally(op, fn)
	}

	resp, status, err := e.forward(coord, fwdPath, fwdBody)
	if err == nil {
		return resp, status, nil
	}

	newCoord := e.Replica.Elect()
	if newCoord == e.Replica.Self {
		return e.applyLocally(op, fn)
	}
	return nil, http.StatusServiceUnavailable,
		fmt.Errorf("coordinator unreachable after re-election (now believed %d): %w", newCoord, err)
}

// applyLocally runs fn under the mutex, snapshots on success, and
// schedules the push round.
func (e *Engine) applyLocally(op string, fn func(*clinic.State) error) ([]byte, int, error) {
	snap, err := e.Replica.MutateAndSnapshot(fn)
	if err != nil {
		return nil, domainStatus(err), err
	}

	e.Audit.Record(int(e.Replica.Self), op, "")
	e.Replica.Events.Publish("write_applied", map[string]any{"op": op})
	// Asynchronous with respect to the client reply: the caller returns
	// to the client before followers converge. pushSnapshot itself waits
	// for its own push round to finish before narrowing the fanout, but
	// that wait happens on this detached goroutine, never on the request
	// path.
	go e.pushSnapshot(snap)
	return nil, 0, nil
}

// domainStatus extracts the suggested HTTP status from a *clinic.DomainError,
// defaulting to 500 for anything else (should not happen: domain ops only
// ever return *clinic.DomainError or nil).
func domainStatus(err error) int {
	if de, ok := err.(*clinic.DomainError); ok {
		return de.Status
	}
	return http.StatusInternalServerError
}

// forward relays a write to the coordinator's own HTTP endpoint and
// returns its raw response body and status code untouched — the follower
// never re-interprets the coordinator's answer, it is just a
// pass-through funnel.
func (e *Engine) forward(coord node.ID, path string, body []byte) ([]byte, int, error) {
	addr := e.Replica.Address(coord)
	if addr == "" {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("no address for coordinator %d", coord)
	}
	url := fmt.Sprintf("http://%s%s", addr, path)
	resp, err := e.client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("forward to coordinator %d: %w", coord, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, http.StatusBadGateway, err
	}
	return respBody, resp.StatusCode, nil
}

// pushSnapshot fans the just-mutated snapshot out to this round's fanout
// targets; push never blocks the writer's response. Each target is
// liveness-probed first — a dead peer skips this round entirely rather
// than eating the push timeout — and the fanout is narrowed, for
// subsequent rounds, to exactly the peers that passed both the probe and
// the delivery. The narrowing is temporary: the next election rebuilds
// the fanout from full membership, so a recovered follower is
// reconsidered promptly rather than staying dropped until a restart.
func (e *Engine) pushSnapshot(snap *clinic.State) {
	payload, err := json.Marshal(pushPayload{State: snap})
	if err != nil {
		return
	}

	targets := e.Replica.Fanout()
	var mu sync.Mutex
	survivors := make([]node.ID, 0, len(targets))
	var wg sync.WaitGroup

	for _, id := range targets {
		if !e.Replica.IsAlive(id) {
			fmt.Printf("⏭️  [replica %d] skipping push to %d: not alive\n", e.Replica.Self, id)
			continue
		}
		wg.Add(1)
		go func(id node.ID) {
			defer wg.Done()
			addr := e.Replica.Address(id)
			if addr == "" {
				return
			}
			url := fmt.Sprintf("http://%s/push_state", addr)
			resp, err := e.client.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				fmt.Printf("❌ [replica %d] push_state to %d failed: %v\n", e.Replica.Self, id, err)
				return
			}
			resp.Body.Close()
			mu.Lock()
			survivors = append(survivors, id)
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	e.Replica.SetFanout(survivors)
}

// ReceivePush is the follower-side handler logic for POST /push_state:
// decode, validate, and unconditionally overwrite local State — no
// version comparison, no rejection of "older" snapshots. This is
// last-writer-wins with no ordering guarantee beyond arrival order.
func (e *Engine) ReceivePush(body []byte) error {
	var p pushPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return fmt.Errorf("decode push_state: %w", err)
	}
	if err := p.State.Valid(); err != nil {
		return fmt.Errorf("reject push_state: %w", err)
	}
	e.Replica.ReplaceState(p.State)
	e.Audit.Record(int(e.Replica.Self), "push_state_received", "")
	e.Replica.Events.Publish("state_replaced", map[string]any{"via": "push_state"})
	return nil
}
