// Package admin is the engine's read-only HTTP surface: health,
// book-depth, and metrics, in the style of the order-matching-engine
// internal/api layout, but trimmed to read-only endpoints only — no
// order submission lives behind HTTP; TryPush on the pipeline's
// ProducerHandle is the only write path into the core.
package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"matchcore/internal/book"
	"matchcore/internal/pipeline"
)

// Server exposes /healthz, /depth, and /metrics.
type Server struct {
	router     *mux.Router
	pipeline   *pipeline.Pipeline
	logger     *logrus.Logger
	startTime  time.Time
	instanceID uuid.UUID

	depthRequests atomic.Int64
}

// NewServer wires a Server over pipeline. Each Server is stamped with
// a fresh instance id so /healthz responses from a restarted process
// are distinguishable in aggregated logs.
func NewServer(p *pipeline.Pipeline, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		pipeline:   p,
		logger:     logger,
		startTime:  time.Now(),
		instanceID: uuid.New(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/depth", s.handleDepth).Methods(http.MethodGet)
}

// Router exposes the underlying mux.Router, mainly for tests.
func (s *Server) Router() *mux.Router { return s.router }

// Start blocks serving on addr until the listener errors.
func (s *Server) Start(addr string) error {
	s.logger.WithField("addr", addr).Info("admin: listening")
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":         "healthy",
		"instance_id":    s.instanceID.String(),
		"uptime_seconds": int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	b := s.pipeline.Book()
	respondJSON(w, http.StatusOK, map[string]any{
		"node_pool_live":     b.NodesLive(),
		"node_pool_capacity": b.NodeCapacity(),
		"depth_requests":     s.depthRequests.Load(),
	})
}

// depthLevel is one row of a depth response.
type depthLevel struct {
	Price      book.Price `json:"price"`
	TotalQty   book.Qty   `json:"total_qty"`
	OrderCount int        `json:"order_count"`
}

type depthResponse struct {
	SymbolTag uint32       `json:"symbol_tag"`
	Bids      []depthLevel `json:"bids"`
	Asks      []depthLevel `json:"asks"`
}

// handleDepth reads the book's lock-free depth snapshot instead of
// walking the live ladders: the consumer goroutine is the only thing
// that ever touches an rbNode or priceLevel directly, so the HTTP
// goroutine here never contends with it, and never risks observing a
// ladder mid-rotation. See book.OrderBook.LatestDepthSnapshot.
func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	s.depthRequests.Add(1)

	limit := 10
	if raw := r.URL.Query().Get("levels"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	b := s.pipeline.Book()
	depth := b.LatestDepthSnapshot()

	resp := depthResponse{SymbolTag: b.SymbolTag}
	for i, lvl := range depth.Bids {
		if i >= limit {
			break
		}
		resp.Bids = append(resp.Bids, depthLevel{Price: lvl.Price, TotalQty: lvl.TotalQty, OrderCount: lvl.OrderCount})
	}
	for i, lvl := range depth.Asks {
		if i >= limit {
			break
		}
		resp.Asks = append(resp.Asks, depthLevel{Price: lvl.Price, TotalQty: lvl.TotalQty, OrderCount: lvl.OrderCount})
	}

	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
