// Package gateway implements the round-robin, health-aware reverse proxy
// that fronts a clinicmesh cluster: clients never talk to a replica
// directly, only to the gateway.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

// HealthTimeout bounds a single backend liveness probe, matching
// coordination.HealthTimeout's role one layer up.
const HealthTimeout = 1 * time.Second

// Backend is one replica the gateway can forward to.
type Backend struct {
	ID      int
	Address string
}

// Router holds the fixed backend list and the round-robin cursor: the
// cursor advances before a backend is probed, so a dead backend still
// consumes its turn rather than letting the gateway retry the same live
// backend disproportionately.
type Router struct {
	backends []Backend
	client   *http.Client

	mu     sync.Mutex
	cursor int
}

func NewRouter(backends []Backend) *Router {
	return &Router{backends: backends, client: &http.Client{Timeout: HealthTimeout}}
}

// next returns the backend at the cursor and advances the cursor past it.
func (g *Router) next() Backend {
	g.mu.Lock()
	defer g.mu.Unlock()
	b := g.backends[g.cursor]
	g.cursor = (g.cursor + 1) % len(g.backends)
	return b
}

func (g *Router) isAlive(b Backend) bool {
	ctx, cancel := context.WithTimeout(context.Background(), HealthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/health", b.Address), nil)
	if err != nil {
		return false
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// pickLive advances the cursor through at most len(backends) candidates
// looking for a live one. Every candidate it looks at — alive or not —
// has already consumed its turn via next().
func (g *Router) pickLive() (Backend, bool) {
	for range g.backends {
		b := g.next()
		if g.isAlive(b) {
			return b, true
		}
	}
	return Backend{}, false
}

// writeDetail writes the {"detail": "..."} error shape used for
// gateway-originated failures (no live backend at all).
func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// Handler returns an http.Handler that forwards every request to the next
// live backend via a standard reverse proxy, and 500s with {"detail":"No
// backends"} when the whole cluster looks dead.
func (g *Router) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		backend, ok := g.pickLive()
		if !ok {
			writeDetail(w, http.StatusInternalServerError, "No backends")
			return
		}
		target, err := url.Parse(fmt.Sprintf("http://%s", backend.Address))
		if err != nil {
			writeDetail(w, http.StatusInternalServerError, "bad backend address")
			return
		}
		proxy := httputil.NewSingleHostReverseProxy(target)
		proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
			writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("backend %d unreachable: %v", backend.ID, err))
		}
		proxy.ServeHTTP(w, req)
	})
}
