package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/singleflight"

	"github.com/jcdickinson/symdex/internal/cas"
	"github.com/jcdickinson/symdex/internal/config"
	"github.com/jcdickinson/symdex/internal/db"
	"github.com/jcdickinson/symdex/internal/doxygen"
	"github.com/jcdickinson/symdex/internal/rpc"
	"github.com/jcdickinson/symdex/internal/search"
	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

type Server struct {
	db         *db.DB
	blobs      *cas.Store
	searcher   *search.Searcher
	cfg        *config.Config
	socketPath string
	httpServer *http.Server
	listener   net.Listener

	mu         sync.Mutex
	expTimer   *time.Timer
	expiration time.Duration

	buildGroup singleflight.Group
}

func NewServer(cfg *config.Config, database *db.DB, blobs *cas.Store, socketPath string) *Server {
	expSec := cfg.Daemon.ExpirationSeconds
	if expSec <= 0 {
		expSec = 600
	}

	return &Server{
		db:         database,
		blobs:      blobs,
		searcher:   search.NewSearcher(database, blobs, cfg),
		cfg:        cfg,
		socketPath: socketPath,
		expiration: time.Duration(expSec) * time.Second,
	}
}

// Handler returns the daemon's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /build", s.withExpReset(s.handleBuild))
	mux.HandleFunc("POST /lookup", s.withExpReset(s.handleLookup))
	mux.HandleFunc("POST /path", s.withExpReset(s.handlePath))
	mux.HandleFunc("POST /inheritance", s.withExpReset(s.handleInheritance))
	mux.HandleFunc("POST /get-doc", s.withExpReset(s.handleGetDoc))
	mux.HandleFunc("GET /status", s.withExpReset(s.handleStatus))
	mux.HandleFunc("POST /remove", s.withExpReset(s.handleRemove))
	mux.HandleFunc("POST /clear-cache", s.withExpReset(s.handleClearCache))
	mux.HandleFunc("POST /shutdown", s.handleShutdown)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	os.Remove(s.socketPath)

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on socket: %w", err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}
	httpServer := &http.Server{Handler: s.Handler()}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = httpServer
	s.expTimer = time.AfterFunc(s.expiration, s.expire)
	s.mu.Unlock()

	log.Printf("daemon: listening on %s (expires after %s of inactivity)", s.socketPath, s.expiration)

	if err := httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.expTimer != nil {
		s.expTimer.Stop()
	}
	httpServer, listener := s.httpServer, s.listener
	s.mu.Unlock()

	var errs []error
	if httpServer != nil {
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Printf("daemon: shutdown error: %v", err)
			errs = append(errs, err)
		}
	}
	if listener != nil {
		if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			log.Printf("daemon: listener close error: %v", err)
			errs = append(errs, err)
		}
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		log.Printf("daemon: socket remove error: %v", err)
		errs = append(errs, err)
	}
	if err := s.db.Close(); err != nil {
		log.Printf("daemon: db close error: %v", err)
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *Server) expire() {
	log.Printf("daemon: expiring due to inactivity")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Stop(ctx)
	os.Exit(0)
}

func (s *Server) resetExpiration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.expTimer != nil {
		s.expTimer.Stop()
		s.expTimer.Reset(s.expiration)
	}
}

func (s *Server) withExpReset(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.resetExpiration()
		handler(w, r)
	}
}

func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req rpc.BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, _ := w.(http.Flusher)
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	var encMu sync.Mutex
	send := func(line rpc.ProgressLine) bool {
		encMu.Lock()
		defer encMu.Unlock()
		if line.Message != "" {
			log.Printf("daemon: [%s] %s", line.RunID, line.Message)
		}
		if err := enc.Encode(line); err != nil {
			log.Printf("daemon: client disconnected: %v", err)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for _, spec := range req.Snapshots {
		result := s.build(r.Context(), spec, func(runID, msg string) {
			send(rpc.ProgressLine{Type: "progress", RunID: runID, Message: msg})
		})
		if !send(rpc.ProgressLine{Type: "result", RunID: result.RunID, Result: &result}) {
			return
		}
	}
}

// statusOf maps query errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, symtab.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, search.ErrBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req rpc.LookupRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = 50
	}
	results, err := s.searcher.Lookup(r.Context(), req)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rpc.LookupResponse{Results: results})
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	var req rpc.PathRequest
	if !decode(w, r, &req) {
		return
	}
	path, err := s.searcher.Path(r.Context(), req)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rpc.PathResponse{Path: path})
}

func (s *Server) handleInheritance(w http.ResponseWriter, r *http.Request) {
	var req rpc.InheritanceRequest
	if !decode(w, r, &req) {
		return
	}
	results, err := s.searcher.Inheritance(r.Context(), req)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rpc.InheritanceResponse{Results: results})
}

func (s *Server) handleGetDoc(w http.ResponseWriter, r *http.Request) {
	var req rpc.GetDocRequest
	if !decode(w, r, &req) {
		return
	}
	text, err := s.searcher.Doc(r.Context(), req)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rpc.GetDocResponse{Markdown: text})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.db.ListSnapshots()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var names []string
	for _, snap := range snapshots {
		if len(names) == 0 || names[len(names)-1] != snap.Name {
			names = append(names, snap.Name)
		}
	}
	latest, err := s.db.GetBuiltVersions(names)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := make([]rpc.SnapshotStatus, 0, len(snapshots))
	for _, snap := range snapshots {
		st := rpc.SnapshotStatus{
			Name:       snap.Name,
			Version:    snap.Version,
			Source:     snap.Source,
			Built:      snap.BuiltAt != nil,
			Latest:     snap.BuiltAt != nil && latest[snap.Name] == snap.Version,
			BuiltAt:    snap.BuiltAt,
			LastUsedAt: snap.LastUsedAt,
			Loaded:     s.searcher.Loaded(snap.ID),
		}
		if st.Symbols, err = s.db.CountSymbols(snap.ID); err != nil {
			log.Printf("daemon: counting symbols of %s@%s: %v", snap.Name, snap.Version, err)
		}
		if st.Shards, _, err = s.db.CountShards(snap.ID, shard.CategoryAll); err != nil {
			log.Printf("daemon: counting shards of %s@%s: %v", snap.Name, snap.Version, err)
		}
		status = append(status, st)
	}

	writeJSON(w, http.StatusOK, rpc.StatusResponse{Snapshots: status})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var req rpc.RemoveRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := s.searcher.Remove(req.SnapshotRef)
	if err != nil {
		writeError(w, statusOf(err), err.Error())
		return
	}
	log.Printf("daemon: removed snapshot %s@%s", snap.Name, snap.Version)
	writeJSON(w, http.StatusOK, rpc.RemoveResponse{Name: snap.Name, Version: snap.Version})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	var req rpc.ClearCacheRequest
	if !decode(w, r, &req) {
		return
	}
	s.searcher.Reset()
	if err := doxygen.ClearCache(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if req.All {
		if err := errors.Join(s.db.Clear(), s.blobs.Clear()); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		log.Printf("daemon: all snapshots deleted")
	}
	log.Printf("daemon: resident indexes and doxygen cache cleared")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "shutting down"})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.Stop(ctx)
		os.Exit(0)
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
