package coordination

import (
	"context"
	"fmt"
	"net/http"

	"clinicmesh/internal/node"
)

// isAlive performs a short-timeout liveness check against a peer's
// /health endpoint. Any error — refused connection, timeout, non-200 —
// yields false; it never blocks longer than HealthTimeout. IsAlive
// exposes the liveness probe to other packages so internal/replicate can
// gate a push round on the same check election uses.
func (r *Replica) IsAlive(id node.ID) bool {
	return r.isAlive(id)
}

func (r *Replica) isAlive(id node.ID) bool {
	addr := r.Address(id)
	if addr == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), HealthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/health", addr), nil)
	if err != nil {
		return false
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
