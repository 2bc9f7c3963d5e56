package coordination

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// timePayload is the /time wire body.
type timePayload struct {
	Time float64 `json:"time"`
}

// Now returns the replica's own wall time as a /time response would,
// formatted the way the rest of this package expects it.
func Now() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// AsyncClockSync fires a one-shot Cristian's-algorithm clock sync on a
// detached goroutine, invoked per triggering request rather than on a
// fixed ticker, so it never blocks the caller's request-handling path.
// All failures are swallowed — the logical clock is observational
// metadata only.
func (r *Replica) AsyncClockSync() {
	go r.syncClockOnce()
}

func (r *Replica) syncClockOnce() {
	if r.IsCoordinator() {
		r.setLogicalClock(Now())
		return
	}

	coord := r.CoordinatorID()
	addr := r.Address(coord)
	if addr == "" {
		return
	}

	t0 := time.Now()
	resp, err := r.client.Get(fmt.Sprintf("http://%s/time", addr))
	if err != nil {
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return
	}
	var p timePayload
	if err := json.Unmarshal(body, &p); err != nil {
		return
	}

	t1 := time.Now()
	rtt := t1.Sub(t0).Seconds()
	synced := p.Time + rtt/2
	r.setLogicalClock(synced)
	r.Events.Publish("clock_synced", map[string]any{
		"logical_clock": synced, "coordinator_id": int(coord), "rtt_seconds": rtt,
	})
	fmt.Printf("🕰️  [replica %d] clock synced with coordinator %d: %.6f (rtt %.3fms)\n", r.Self, coord, synced, rtt*1000)
}
