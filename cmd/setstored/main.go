// Package main implements setstored, the sharded in-memory set store
// daemon. It owns a fixed group of shards, runs the set command surface
// over HTTP, and exposes health and per-shard info endpoints.
//
// Configuration (environment):
//   - SETSTORED_ADDR: Listen address (default ":6380")
//   - SETSTORED_SHARDS: Number of shards (default "4")
//   - SETSTORED_DBS: Logical databases per shard (default "16")
//   - SETSTORED_MAX_INTPACKED: IntPacked entry limit (default "512")
//   - SETSTORED_MONITOR: Shard monitor sample interval (default "5s")
//
// Example usage:
//
//	SETSTORED_SHARDS=8 ./setstored
//
//	curl -X POST localhost:6380/sets/add \
//	  -d '{"db":0,"key":"s","members":["1","2","3"]}'
//	curl -X POST localhost:6380/sets/union \
//	  -d '{"db":0,"keys":["s","t"]}'
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/setstore/internal/api"
	"github.com/dreamware/setstore/internal/sets"
	"github.com/dreamware/setstore/internal/shard"
	"github.com/dreamware/setstore/internal/store"
	"github.com/dreamware/setstore/internal/txn"
)

func main() {
	addr := getenv("SETSTORED_ADDR", ":6380")
	numShards := getenvInt("SETSTORED_SHARDS", 4)
	numDBs := getenvInt("SETSTORED_DBS", 16)
	intLimit := getenvInt("SETSTORED_MAX_INTPACKED", 512)
	monitorEvery := getenvDuration("SETSTORED_MONITOR", 5*time.Second)

	group := shard.NewGroup(numShards, numDBs)
	srv := newServer(group, sets.Config{MaxIntPackedEntries: intLimit})

	monitor := shard.NewMonitor(group, monitorEvery)
	go monitor.Start(context.Background())

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("setstored listening on %s (%d shards, %d dbs)", addr, numShards, numDBs)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	monitor.Stop()
	group.Stop()
	log.Println("setstored stopped")
}

// server binds the set family to HTTP handlers. Reply conventions: a
// missing key where absence is semantically optional becomes a zero or
// empty success reply; a wrong-typed key or malformed argument is a 400
// with an error body.
type server struct {
	group  *shard.Group
	family *sets.Family
	numDBs int
}

func newServer(group *shard.Group, cfg sets.Config) *server {
	return &server{
		group:  group,
		family: sets.NewFamily(txn.NewScheduler(group), cfg),
		numDBs: group.Shard(0).NumDBs(),
	}
}

// dbOK rejects database indices outside the configured range before
// they reach a shard loop, where an out-of-range index would panic.
func (s *server) dbOK(w http.ResponseWriter, db int) bool {
	if db < 0 || db >= s.numDBs {
		writeError(w, http.StatusBadRequest, "database index out of range")
		return false
	}
	return true
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/sets/add", s.handleAdd)
	mux.HandleFunc("/sets/remove", s.handleRemove)
	mux.HandleFunc("/sets/pop", s.handlePop)
	mux.HandleFunc("/sets/card", s.handleCard)
	mux.HandleFunc("/sets/ismember", s.handleIsMember)
	mux.HandleFunc("/sets/members", s.handleMembers)
	mux.HandleFunc("/sets/move", s.handleMove)
	mux.HandleFunc("/sets/union", s.handleKeysOp(s.family.Union))
	mux.HandleFunc("/sets/diff", s.handleKeysOp(s.family.Diff))
	mux.HandleFunc("/sets/inter", s.handleKeysOp(s.family.Inter))
	mux.HandleFunc("/sets/unionstore", s.handleStoreOp(s.family.UnionStore))
	mux.HandleFunc("/sets/diffstore", s.handleStoreOp(s.family.DiffStore))
	mux.HandleFunc("/sets/interstore", s.handleStoreOp(s.family.InterStore))
	return mux
}

func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req api.MembersRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Key == "" || len(req.Members) == 0 {
		writeError(w, http.StatusBadRequest, "missing key or members")
		return
	}
	if !s.dbOK(w, req.DB) {
		return
	}
	added, err := s.family.Add(req.DB, req.Key, req.Members...)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, api.CountResponse{Count: added})
}

func (s *server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req api.MembersRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.dbOK(w, req.DB) {
		return
	}
	removed, err := s.family.Remove(req.DB, req.Key, req.Members...)
	if err != nil {
		// Removing from a set that isn't there removes nothing.
		if errors.Is(err, store.ErrKeyNotFound) {
			writeJSON(w, api.CountResponse{Count: 0})
			return
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, api.CountResponse{Count: removed})
}

func (s *server) handlePop(w http.ResponseWriter, r *http.Request) {
	var req api.PopRequest
	if !decode(w, r, &req) {
		return
	}
	if !s.dbOK(w, req.DB) {
		return
	}
	count := 1
	if req.Count != "" {
		n, err := strconv.Atoi(req.Count)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, sets.ErrInvalidInt.Error())
			return
		}
		count = n
	}
	popped, err := s.family.Pop(req.DB, req.Key, count)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			writeJSON(w, api.MembersResponse{Members: []string{}})
			return
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, api.MembersResponse{Members: popped})
}

func (s *server) handleCard(w http.ResponseWriter, r *http.Request) {
	db, key, ok := s.queryKey(w, r)
	if !ok {
		return
	}
	size, err := s.family.Card(db, key)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			writeJSON(w, api.CountResponse{Count: 0})
			return
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, api.CountResponse{Count: size})
}

func (s *server) handleIsMember(w http.ResponseWriter, r *http.Request) {
	db, key, ok := s.queryKey(w, r)
	if !ok {
		return
	}
	present, err := s.family.IsMember(db, key, r.URL.Query().Get("member"))
	if err != nil && !errors.Is(err, store.ErrKeyNotFound) {
		writeFailure(w, err)
		return
	}
	count := 0
	if present {
		count = 1
	}
	writeJSON(w, api.CountResponse{Count: count})
}

func (s *server) handleMembers(w http.ResponseWriter, r *http.Request) {
	db, key, ok := s.queryKey(w, r)
	if !ok {
		return
	}
	members, err := s.family.Members(db, key)
	if err != nil {
		if errors.Is(err, store.ErrKeyNotFound) {
			writeJSON(w, api.MembersResponse{Members: []string{}})
			return
		}
		writeFailure(w, err)
		return
	}
	writeJSON(w, api.MembersResponse{Members: members})
}

func (s *server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req api.MoveRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Src == "" || req.Dest == "" {
		writeError(w, http.StatusBadRequest, "missing src/dest")
		return
	}
	if !s.dbOK(w, req.DB) {
		return
	}
	moved, err := s.family.Move(req.DB, req.Src, req.Dest, req.Member)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, api.CountResponse{Count: moved})
}

// handleKeysOp serves union/diff/inter, which share a request shape.
func (s *server) handleKeysOp(op func(db int, keys ...string) ([]string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.KeysRequest
		if !decode(w, r, &req) {
			return
		}
		if len(req.Keys) == 0 {
			writeError(w, http.StatusBadRequest, "missing keys")
			return
		}
		if !s.dbOK(w, req.DB) {
			return
		}
		members, err := op(req.DB, req.Keys...)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, api.MembersResponse{Members: members})
	}
}

// handleStoreOp serves the three store variants.
func (s *server) handleStoreOp(op func(db int, dest string, srcs ...string) (int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.StoreRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Dest == "" || len(req.Keys) == 0 {
			writeError(w, http.StatusBadRequest, "missing dest or keys")
			return
		}
		if !s.dbOK(w, req.DB) {
			return
		}
		count, err := op(req.DB, req.Dest, req.Keys...)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, api.CountResponse{Count: count})
	}
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	resp := api.InfoResponse{Shards: make([]api.ShardInfo, 0, s.group.Size())}
	for i := 0; i < s.group.Size(); i++ {
		info := s.group.Shard(i).GetInfo()
		resp.Shards = append(resp.Shards, api.ShardInfo{
			ID:      info.ID,
			Keys:    info.Keys,
			Updates: info.Updates,
			Tasks:   info.Tasks,
			Backlog: info.Backlog,
		})
	}
	writeJSON(w, resp)
}

func decode(w http.ResponseWriter, r *http.Request, req any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return false
	}
	return true
}

func (s *server) queryKey(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	q := r.URL.Query()
	key := q.Get("key")
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing key")
		return 0, "", false
	}
	db := 0
	if v := q.Get("db"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad db index")
			return 0, "", false
		}
		db = n
	}
	if !s.dbOK(w, db) {
		return 0, "", false
	}
	return db, key, true
}

// writeFailure maps core errors to replies: wrong type and malformed
// integers are client errors, anything else is a 500.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrWrongType), errors.Is(err, sets.ErrInvalidInt):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: msg})
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Fatalf("%s: not an integer: %q", key, v)
	}
	return fallback
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Fatalf("%s: not a duration: %q", key, v)
	}
	return fallback
}
