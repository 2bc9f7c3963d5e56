package coordination

import (
	"bytes"
	"encoding/json"
	"fmt"

	"clinicmesh/internal/node"
)

// updateCoordinatorPayload is the /update_coordinator wire body.
type updateCoordinatorPayload struct {
	Port int `json:"port"`
}

// Elect runs a bully-style election: probe every peer, take the numerical
// maximum of the alive set (including Self), adopt it as the new belief,
// then best-effort notify everyone else. Returns the new (post-election)
// coordinator id.
func (r *Replica) Elect() node.ID {
	alive := []node.ID{r.Self}
	for _, p := range r.Peers.Others(r.Self) {
		if r.isAlive(p) {
			alive = append(alive, p)
		}
	}

	newCoord := alive[0]
	for _, id := range alive[1:] {
		if id > newCoord {
			newCoord = id
		}
	}

	// Every election reconsiders the full membership for future pushes,
	// rather than staying permanently shrunk to the last push round's
	// survivors, so a recovered follower is folded back in promptly.
	r.rebuildFanoutFromPeers()

	if r.setCoordinator(newCoord) {
		fmt.Printf("🗳️  [replica %d] election complete, new coordinator: %d\n", r.Self, newCoord)
		r.Events.Publish("coordinator_changed", map[string]any{
			"coordinator_id": int(newCoord), "via": "election",
		})
		r.notifyPeers(newCoord)
	}
	return newCoord
}

// notifyPeers best-effort informs every other peer of the newly elected
// coordinator. An unreachable peer is silently dropped — it will
// re-elect on its own next failed funnel attempt.
func (r *Replica) notifyPeers(newCoord node.ID) {
	payload, err := json.Marshal(updateCoordinatorPayload{Port: int(newCoord)})
	if err != nil {
		return
	}
	for _, id := range r.Peers.Others(r.Self) {
		go func(id node.ID) {
			url := fmt.Sprintf("http://%s/update_coordinator", r.Address(id))
			resp, err := r.client.Post(url, "application/json", bytes.NewReader(payload))
			if err != nil {
				fmt.Printf("❌ [replica %d] failed to notify %d of new coordinator: %v\n", r.Self, id, err)
				return
			}
			resp.Body.Close()
		}(id)
	}
}

// EnsureCoordinatorAlive returns a coordinator id known to be reachable
// from here: if Self is already the coordinator, return immediately.
// Otherwise probe the believed coordinator; if it's alive, return it; if
// not, run Elect and return its result — the post-election belief, so a
// caller never acts on a coordinator id that the election just replaced.
func (r *Replica) EnsureCoordinatorAlive() node.ID {
	current := r.CoordinatorID()
	if current == r.Self {
		return current
	}
	if r.isAlive(current) {
		return current
	}
	fmt.Printf("⚠️  [replica %d] coordinator %d unreachable, starting election\n", r.Self, current)
	return r.Elect()
}

// DecodeUpdateCoordinator parses an /update_coordinator request body;
// internal/api uses it so the wire format stays defined in one place.
func DecodeUpdateCoordinator(body []byte) (node.ID, error) {
	var p updateCoordinatorPayload
	if err := json.Unmarshal(body, &p); err != nil || p.Port == 0 {
		return 0, fmt.Errorf("invalid payload")
	}
	return node.ID(p.Port), nil
}
