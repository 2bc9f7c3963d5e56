package replicate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"clinicmesh/internal/clinic"
	"clinicmesh/internal/coordination"
	"clinicmesh/internal/node"
)

func TestEngineAppliesLocallyWhenSelfIsCoordinator(t *testing.T) {
	r := coordination.New(1, node.Set{1: {ID: 1, Address: "localhost:1"}})
	engine := NewEngine(r, nil)

	resp, status, err := engine.Apply("signup", "/signup", []byte(`{}`), func(s *clinic.State) error {
		_, err := s.Signup("joan", "pw")
		return err
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if resp != nil {
		t.Fatalf("expected no forwarded response when applying locally")
	}
	if status != 0 {
		t.Fatalf("expected zero status on local success, got %d", status)
	}

	var userCount int
	r.Read(func(s *clinic.State) { userCount = len(s.Users) })
	if userCount != 1 {
		t.Fatalf("expected local mutation to apply, got %d users", userCount)
	}
}

func TestEngineForwardsToCoordinatorWhenNotSelf(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/signup", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"user_id":42}`))
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	coordSrv := httptest.NewServer(mux)
	defer coordSrv.Close()

	peers := node.Set{
		1: {ID: 1, Address: "localhost:1"},
		2: {ID: 2, Address: coordSrv.Listener.Addr().String()},
	}
	r := coordination.New(1, peers) // coordinatorID := max(peers) == 2, Self == 1
	engine := NewEngine(r, nil)

	resp, status, err := engine.Apply("signup", "/signup", []byte(`{"username":"x"}`), func(s *clinic.State) error {
		t.Fatalf("fn must not run locally on a follower")
		return nil
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("status = %d, want %d", status, http.StatusCreated)
	}
	if string(resp) != `{"user_id":42}` {
		t.Fatalf("unexpected forwarded body: %s", resp)
	}
}

// TestApplyReElectsAndCommitsLocallyWhenForwardFails covers the case
// where the believed coordinator passes the pre-forward liveness probe
// but then dies before the forward itself completes. Apply must
// re-elect rather than just surfacing the raw forward error, and since
// Self is the only survivor of that re-election, it must commit the
// write locally instead of failing the client.
func TestApplyReElectsAndCommitsLocallyWhenForwardFails(t *testing.T) {
	var healthCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(&healthCalls, 1) == 1 {
			w.WriteHeader(http.StatusOK) // alive for EnsureCoordinatorAlive's probe
			return
		}
		// dead for the re-election's probe: drop the connection with no reply.
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	})
	mux.HandleFunc("/signup", func(w http.ResponseWriter, req *http.Request) {
		// simulate the coordinator dying mid-forward.
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	})
	coordSrv := httptest.NewServer(mux)
	defer coordSrv.Close()

	peers := node.Set{
		1: {ID: 1, Address: "localhost:1"}, // Self
		2: {ID: 2, Address: coordSrv.Listener.Addr().String()},
	}
	r := coordination.New(1, peers) // coordinatorID := max(peers) == 2
	engine := NewEngine(r, nil)

	_, status, err := engine.Apply("signup", "/signup", []byte(`{}`), func(s *clinic.State) error {
		_, err := s.Signup("zoe", "pw")
		return err
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if status != 0 {
		t.Fatalf("expected a local commit after re-election, got forwarded status %d", status)
	}
	if r.CoordinatorID() != 1 {
		t.Fatalf("expected Self elected coordinator after forward failure, got %d", r.CoordinatorID())
	}

	var userCount int
	r.Read(func(s *clinic.State) { userCount = len(s.Users) })
	if userCount != 1 {
		t.Fatalf("expected the write to commit locally, got %d users", userCount)
	}
}

func TestPushSnapshotSkipsDeadPeerAndNarrowsFanout(t *testing.T) {
	var pushed int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/push_state", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pushed, 1)
		w.WriteHeader(http.StatusOK)
	})
	aliveSrv := httptest.NewServer(mux)
	defer aliveSrv.Close()

	peers := node.Set{
		1: {ID: 1, Address: "localhost:1"}, // Self
		2: {ID: 2, Address: aliveSrv.Listener.Addr().String()},
		3: {ID: 3, Address: "127.0.0.1:1"}, // dead, nothing listens here
	}
	r := coordination.New(1, peers)
	engine := NewEngine(r, nil)

	snap := clinic.Seed()
	engine.pushSnapshot(snap)

	if got := atomic.LoadInt32(&pushed); got != 1 {
		t.Fatalf("expected exactly one push to the live peer, got %d", got)
	}

	fanout := r.Fanout()
	if len(fanout) != 1 || fanout[0] != 2 {
		t.Fatalf("expected fanout narrowed to the surviving peer [2], got %v", fanout)
	}
}

func TestApplyReturnsBeforePushCompletes(t *testing.T) {
	release := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.HandleFunc("/push_state", func(w http.ResponseWriter, r *http.Request) {
		<-release // held open until the test explicitly releases it
		w.WriteHeader(http.StatusOK)
	})
	slowSrv := httptest.NewServer(mux)
	defer slowSrv.Close()
	defer close(release)

	peers := node.Set{
		1: {ID: 1, Address: "localhost:1"},
		2: {ID: 2, Address: slowSrv.Listener.Addr().String()},
	}
	r := coordination.New(1, peers)
	engine := NewEngine(r, nil)

	done := make(chan error, 1)
	go func() {
		_, _, err := engine.Apply("signup", "/signup", []byte(`{}`), func(s *clinic.State) error {
			_, err := s.Signup("asha", "pw")
			return err
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Apply: %v", err)
		}
	case <-time.After(1 * time.Second):
		t.Fatalf("Apply blocked on an in-flight push_state push, expected it to be asynchronous")
	}
}

func TestReceivePushReplacesState(t *testing.T) {
	r := coordination.New(1, node.Set{1: {ID: 1, Address: "localhost:1"}})
	engine := NewEngine(r, nil)

	incoming := clinic.Seed()
	incoming.Signup("kay", "pw")
	payload, err := json.Marshal(pushPayload{State: incoming})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if err := engine.ReceivePush(payload); err != nil {
		t.Fatalf("ReceivePush: %v", err)
	}

	var userCount int
	r.Read(func(s *clinic.State) { userCount = len(s.Users) })
	if userCount != 1 {
		t.Fatalf("expected pushed state to replace local state, got %d users", userCount)
	}
}

func TestReceivePushRejectsMalformedBody(t *testing.T) {
	r := coordination.New(1, node.Set{1: {ID: 1, Address: "localhost:1"}})
	engine := NewEngine(r, nil)

	if err := engine.ReceivePush([]byte(`not json`)); err == nil {
		t.Fatalf("expected malformed push body to be rejected")
	}
}
