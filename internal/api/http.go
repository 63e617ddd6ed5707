package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rowqueue/rowq/internal/queue"
	"github.com/rowqueue/rowq/internal/queue/adapter"
)

type Server struct {
	queues  *adapter.Adapter
	addr    string
	timeout time.Duration
}

func NewServer(addr string, a *adapter.Adapter) *http.Server {
	srv := &Server{
		queues:  a,
		addr:    addr,
		timeout: 5 * time.Second,
	}
	return &http.Server{
		Addr:    srv.addr,
		Handler: srv.router(),
	}
}

// Handler returns the routed handler without binding a listener; tests mount
// it on httptest servers.
func Handler(a *adapter.Adapter) http.Handler {
	srv := &Server{queues: a, timeout: 5 * time.Second}
	return srv.router()
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/capabilities", s.handleCapabilities)

		r.Get("/queues", s.handleListQueues)
		r.Put("/queues/{queue}", s.handleCreateQueue)
		r.Delete("/queues/{queue}", s.handleDeleteQueue)
		r.Get("/queues/{queue}/stats", s.handleStats)

		// send: POST /v1/queues/{queue}/messages
		r.Post("/queues/{queue}/messages", s.handleSend)

		// receive: POST /v1/queues/{queue}:receive
		r.Post("/queues/{queue}:receive", s.handleReceive)

		// purge: POST /v1/queues/{queue}:purge
		r.Post("/queues/{queue}:purge", s.handlePurge)

		// delete by handle: POST /v1/messages/{handle}:delete
		r.Post("/messages/{handle}:delete", s.handleDeleteMessage)
	})

	return r
}

type createQueueRequest struct {
	LeaseMS int64 `json:"lease_ms,omitempty"`
}

type createQueueResponse struct {
	Created bool `json:"created"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

type listQueuesResponse struct {
	Queues []string `json:"queues"`
}

type statsResponse struct {
	Queue  string `json:"queue"`
	Exists bool   `json:"exists"`
	Count  int64  `json:"count"`
}

type sendRequest struct {
	Body string `json:"body"`
}

type receiveRequest struct {
	Max     int   `json:"max"`      // e.g., 1..32
	LeaseMS int64 `json:"lease_ms"` // e.g., 30000
}

type messageResponse struct {
	ID             int64      `json:"id"`
	Queue          string     `json:"queue"`
	Body           string     `json:"body"`
	MD5            string     `json:"md5"`
	CreatedAt      time.Time  `json:"created_at"`
	Handle         *string    `json:"handle,omitempty"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty"`
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

func toMessageResponse(m *queue.Message) messageResponse {
	return messageResponse{
		ID:             m.ID,
		Queue:          m.Queue,
		Body:           m.Body,
		MD5:            m.BodyMD5,
		CreatedAt:      m.CreatedAt,
		Handle:         m.Handle,
		LeaseExpiresAt: m.LeaseExpiresAt,
	}
}

// ---------- Handlers ----------

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.queues.Capabilities())
}

func (s *Server) handleCreateQueue(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	if qname == "" {
		httpError(w, http.StatusBadRequest, "missing queue path param")
		return
	}
	var req createQueueRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid json: %v", err)
			return
		}
	}
	lease := time.Duration(req.LeaseMS) * time.Millisecond

	created, err := s.queues.Create(r.Context(), qname, lease)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "create failed: %v", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, &createQueueResponse{Created: created})
}

func (s *Server) handleDeleteQueue(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	ok, err := s.queues.Delete(r.Context(), qname)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "delete failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{OK: ok})
}

func (s *Server) handleListQueues(w http.ResponseWriter, r *http.Request) {
	names, err := s.queues.GetQueues(r.Context())
	if err != nil {
		httpError(w, http.StatusInternalServerError, "list failed: %v", err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, &listQueuesResponse{Queues: names})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	if !s.queues.IsExists(r.Context(), qname) {
		writeJSON(w, http.StatusNotFound, &statsResponse{Queue: qname})
		return
	}
	n, err := s.queues.Count(r.Context(), qname)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "count failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, &statsResponse{Queue: qname, Exists: true, Count: n})
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}

	m, err := s.queues.Send(r.Context(), qname, req.Body)
	if errors.Is(err, queue.ErrQueueNotFound) {
		httpError(w, http.StatusNotFound, "queue %q not found", qname)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "send failed: %v", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageResponse(m))
}

func (s *Server) handleReceive(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid json: %v", err)
		return
	}
	if req.Max <= 0 || req.Max > 32 {
		req.Max = 1
	}
	lease := time.Duration(req.LeaseMS) * time.Millisecond

	batch, err := s.queues.Receive(r.Context(), qname, req.Max, lease)
	if errors.Is(err, queue.ErrQueueNotFound) {
		httpError(w, http.StatusNotFound, "queue %q not found", qname)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "receive failed: %v", err)
		return
	}

	resp := make([]messageResponse, 0, len(batch))
	for _, m := range batch {
		resp = append(resp, toMessageResponse(m))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	qname := chi.URLParam(r, "queue")
	n, err := s.queues.Purge(r.Context(), qname)
	if errors.Is(err, queue.ErrQueueNotFound) {
		httpError(w, http.StatusNotFound, "queue %q not found", qname)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "purge failed: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, &purgeResponse{Purged: n})
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	handle := chi.URLParam(r, "handle")
	if handle == "" {
		httpError(w, http.StatusBadRequest, "missing message handle")
		return
	}

	ok, err := s.queues.DeleteMessage(r.Context(), &queue.Message{Handle: &handle})
	if err != nil {
		httpError(w, http.StatusInternalServerError, "delete failed: %v", err)
		return
	}
	if !ok {
		// handle already deleted, or expired and reclaimed; 404 is reasonable
		httpError(w, http.StatusNotFound, "message not found")
		return
	}
	writeJSON(w, http.StatusOK, &okResponse{OK: true})
}

// ---------- helpers ----------

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
