package coordination

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinicmesh/internal/node"
)

func TestSyncClockOnceAsCoordinatorSetsOwnTime(t *testing.T) {
	r := New(1, node.Set{1: {ID: 1, Address: "localhost:1"}}) // Self is coordinator
	before := r.LogicalClock()
	time.Sleep(time.Millisecond)
	r.syncClockOnce()
	if r.LogicalClock() <= before {
		t.Fatalf("expected coordinator's own clock sync to advance LogicalClock")
	}
}

func TestSyncClockOnceAsFollowerAdoptsMasterTime(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/time", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"time": 1000000.0}`))
	})
	coordSrv := httptest.NewServer(mux)
	defer coordSrv.Close()

	peers := node.Set{
		1: {ID: 1, Address: "localhost:1"},
		2: {ID: 2, Address: coordSrv.Listener.Addr().String()},
	}
	r := New(1, peers) // coordinatorID := max(peers) == 2

	r.syncClockOnce()
	got := r.LogicalClock()
	if got < 1000000.0 {
		t.Fatalf("expected LogicalClock >= master time, got %v", got)
	}
}

func TestSyncClockOnceSwallowsUnreachableCoordinator(t *testing.T) {
	peers := node.Set{
		1: {ID: 1, Address: "localhost:1"},
		2: {ID: 2, Address: "127.0.0.1:1"}, // unreachable
	}
	r := New(1, peers)
	before := r.LogicalClock()
	r.syncClockOnce()
	if r.LogicalClock() != before {
		t.Fatalf("expected LogicalClock to stay unchanged on sync failure")
	}
}
