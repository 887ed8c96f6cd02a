// Package httpstatus exposes the coordinator's liveness and run state
// over plain HTTP, for operators and load balancers that would rather
// poll a JSON endpoint than parse console output.
package httpstatus

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Snapshot is the point-in-time state reported by /status.
type Snapshot struct {
	CurrentBatch  uint64 `json:"current_batch"`
	ReplicaCount  int    `json:"replica_count"`
	NATEntryCount int    `json:"nat_entry_count"`
}

// SnapshotFunc produces the current Snapshot. The server calls it once
// per /status request, so it must be safe to call concurrently.
type SnapshotFunc func() Snapshot

// Server serves /healthz and /status over HTTP.
type Server struct {
	httpSrv *http.Server
}

// NewServer builds a Server listening on addr. snapshot is consulted
// on every /status request.
func NewServer(addr string, snapshot SnapshotFunc) *Server {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/status", handleStatus(snapshot)).Methods(http.MethodGet)

	return &Server{
		httpSrv: &http.Server{
			Addr:         addr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 5 * time.Second,
		},
	}
}

// ListenAndServe blocks serving requests until the server is shut down
// or an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Close shuts the server down immediately.
func (s *Server) Close() error {
	return s.httpSrv.Close()
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleStatus(snapshot SnapshotFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(snapshot())
	}
}
