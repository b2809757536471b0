package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/easynet-cn/rnacos/internal/collab"
	"github.com/easynet-cn/rnacos/internal/naming"
)

const applyTimeout = 10 * time.Second

// NewHTTPServer builds the client-facing naming API: register/deregister
// go through the consensus engine, lookups read the local registry
// directly. Grounded on the teacher's NewHTTPServer (internal/server/http.go),
// generalized from log produce/consume to naming register/lookup.
func NewHTTPServer(addr string, consensus collab.ConsensusEngine, registry collab.NamingStateMachine) *http.Server {
	httpSrv := &httpServer{consensus: consensus, registry: registry}
	router := mux.NewRouter()
	router.HandleFunc("/v1/instances", httpSrv.handleRegister).Methods(http.MethodPost)
	router.HandleFunc("/v1/instances", httpSrv.handleDeregister).Methods(http.MethodDelete)
	router.HandleFunc("/v1/instances/{serviceName}", httpSrv.handleLookup).Methods(http.MethodGet)
	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}

type httpServer struct {
	consensus collab.ConsensusEngine
	registry  collab.NamingStateMachine
}

type registerRequest struct {
	Instance collab.ServiceInstance `json:"instance"`
}

type deregisterRequest struct {
	ServiceName string `json:"serviceName"`
	InstanceID  string `json:"instanceId"`
}

type lookupResponse struct {
	Instances []collab.ServiceInstance `json:"instances"`
}

func (s *httpServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := naming.EncodeRegister(body.Instance)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := s.consensus.Apply(cmd, applyTimeout); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleDeregister(w http.ResponseWriter, r *http.Request) {
	var body deregisterRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	cmd, err := naming.EncodeDeregister(body.ServiceName, body.InstanceID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := s.consensus.Apply(cmd, applyTimeout); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	serviceName := mux.Vars(r)["serviceName"]
	instances, err := s.registry.Lookup(serviceName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if err := json.NewEncoder(w).Encode(lookupResponse{Instances: instances}); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
}
