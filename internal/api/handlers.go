package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mailflock/mailflock/internal/batch"
	"github.com/mailflock/mailflock/internal/recipient"
	"github.com/mailflock/mailflock/internal/sender"
	"github.com/mailflock/mailflock/internal/sendlog"
	"github.com/mailflock/mailflock/internal/template"
)

// BatchRequest is the request body for POST /batches
type BatchRequest struct {
	Subject    string                `json:"subject"`
	Body       string                `json:"body"`
	Recipients []recipient.Recipient `json:"recipients"`
}

// BatchResponse is the response for POST /batches
type BatchResponse struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Total int    `json:"total"`
}

// SenderRequest is the request body for POST and PATCH /senders. Pointer
// fields distinguish "not provided" from zero values on PATCH.
type SenderRequest struct {
	Name       *string `json:"name"`
	Email      *string `json:"email"`
	SMTPHost   *string `json:"smtp_host"`
	SMTPPort   *int    `json:"smtp_port"`
	Password   *string `json:"password"`
	DailyLimit *int    `json:"daily_limit"`
	Active     *bool   `json:"active"`
}

// SenderView is a sender identity without its credential.
type SenderView struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	SMTPHost   string    `json:"smtp_host"`
	SMTPPort   int       `json:"smtp_port"`
	HasAuth    bool      `json:"has_auth"`
	DailyLimit int       `json:"daily_limit"`
	SentToday  int       `json:"sent_today"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LogsResponse is the response for GET /logs
type LogsResponse struct {
	Entries []sendlog.Entry `json:"entries"`
	Total   int             `json:"total"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

func senderView(id *sender.Identity) SenderView {
	return SenderView{
		ID:         id.ID,
		Name:       id.Name,
		Email:      id.Email,
		SMTPHost:   id.SMTPHost,
		SMTPPort:   id.SMTPPort,
		HasAuth:    id.Password != "",
		DailyLimit: id.DailyLimit,
		SentToday:  id.SentToday,
		Active:     id.Active,
		CreatedAt:  id.CreatedAt,
		UpdatedAt:  id.UpdatedAt,
	}
}

// handleCreateBatch handles POST /api/v1/batches
func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	tmpl := template.Template{Subject: req.Subject, Body: req.Body}
	if err := tmpl.Validate(); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Recipients) == 0 {
		s.sendError(w, http.StatusBadRequest, "recipients is required")
		return
	}
	for i, rcpt := range req.Recipients {
		if err := rcpt.Validate(); err != nil {
			s.sendError(w, http.StatusBadRequest, fmt.Sprintf("recipient %d: %v", i+1, err))
			return
		}
	}

	identities, err := s.senders.LoadForToday()
	if err != nil {
		s.logger.Error("failed to load senders", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to load senders")
		return
	}
	if len(identities) == 0 {
		s.sendError(w, http.StatusConflict, "No senders configured")
		return
	}

	pool := sender.NewPool(identities)
	// The batch outlives the request; it is bound to the server lifetime,
	// not the connection.
	id := s.jobs.Start(context.Background(), pool, tmpl, req.Recipients)

	s.logger.Info("batch accepted via API",
		"batch_id", id,
		"recipients", len(req.Recipients))

	s.sendJSON(w, http.StatusAccepted, BatchResponse{
		ID:    id,
		State: batch.StateRunning,
		Total: len(req.Recipients),
	})
}

// handleGetBatch handles GET /api/v1/batches/{id}
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := s.jobs.Get(id)
	if err != nil {
		if errors.Is(err, batch.ErrJobNotFound) {
			s.sendError(w, http.StatusNotFound, "Batch not found")
			return
		}
		s.sendError(w, http.StatusInternalServerError, "Failed to get batch")
		return
	}

	s.sendJSON(w, http.StatusOK, job)
}

// handleListBatches handles GET /api/v1/batches
func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.jobs.List())
}

// handleListSenders handles GET /api/v1/senders
func (s *Server) handleListSenders(w http.ResponseWriter, r *http.Request) {
	identities, err := s.senders.LoadForToday()
	if err != nil {
		s.logger.Error("failed to list senders", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list senders")
		return
	}

	views := make([]SenderView, 0, len(identities))
	for _, id := range identities {
		views = append(views, senderView(id))
	}
	s.sendJSON(w, http.StatusOK, views)
}

// handleCreateSender handles POST /api/v1/senders
func (s *Server) handleCreateSender(w http.ResponseWriter, r *http.Request) {
	var req SenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Email == nil || *req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}
	if req.SMTPHost == nil || *req.SMTPHost == "" {
		s.sendError(w, http.StatusBadRequest, "smtp_host is required")
		return
	}
	if req.SMTPPort == nil || *req.SMTPPort <= 0 {
		s.sendError(w, http.StatusBadRequest, "smtp_port is required")
		return
	}
	if req.DailyLimit == nil || *req.DailyLimit <= 0 {
		s.sendError(w, http.StatusBadRequest, "daily_limit must be positive")
		return
	}

	id := &sender.Identity{
		Email:      *req.Email,
		SMTPHost:   *req.SMTPHost,
		SMTPPort:   *req.SMTPPort,
		DailyLimit: *req.DailyLimit,
		Active:     true,
	}
	if req.Name != nil {
		id.Name = *req.Name
	}
	if req.Password != nil {
		id.Password = *req.Password
	}
	if req.Active != nil {
		id.Active = *req.Active
	}

	if err := s.senders.Put(id); err != nil {
		s.logger.Error("failed to create sender", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to create sender")
		return
	}

	s.logger.Info("sender created via API", "id", id.ID, "email", id.Email)
	s.sendJSON(w, http.StatusCreated, senderView(id))
}

// handleGetSender handles GET /api/v1/senders/{id}
func (s *Server) handleGetSender(w http.ResponseWriter, r *http.Request) {
	id, ok := s.loadSender(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, senderView(id))
}

// handleUpdateSender handles PATCH /api/v1/senders/{id}
func (s *Server) handleUpdateSender(w http.ResponseWriter, r *http.Request) {
	id, ok := s.loadSender(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	var req SenderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Name != nil {
		id.Name = *req.Name
	}
	if req.Email != nil && *req.Email != "" {
		id.Email = *req.Email
	}
	if req.SMTPHost != nil && *req.SMTPHost != "" {
		id.SMTPHost = *req.SMTPHost
	}
	if req.SMTPPort != nil && *req.SMTPPort > 0 {
		id.SMTPPort = *req.SMTPPort
	}
	if req.Password != nil {
		id.Password = *req.Password
	}
	if req.DailyLimit != nil && *req.DailyLimit > 0 {
		id.DailyLimit = *req.DailyLimit
	}
	if req.Active != nil {
		id.Active = *req.Active
	}

	if err := s.senders.Put(id); err != nil {
		s.logger.Error("failed to update sender", "id", id.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to update sender")
		return
	}

	s.sendJSON(w, http.StatusOK, senderView(id))
}

// handleDeleteSender handles DELETE /api/v1/senders/{id}
func (s *Server) handleDeleteSender(w http.ResponseWriter, r *http.Request) {
	id, ok := s.loadSender(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	if err := s.senders.Delete(id.ID); err != nil {
		s.logger.Error("failed to delete sender", "id", id.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to delete sender")
		return
	}

	s.logger.Info("sender deleted via API", "id", id.ID, "email", id.Email)
	w.WriteHeader(http.StatusNoContent)
}

// handleResetSender handles POST /api/v1/senders/{id}/reset
func (s *Server) handleResetSender(w http.ResponseWriter, r *http.Request) {
	id, ok := s.loadSender(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}

	id.SentToday = 0
	id.LastReset = sender.Today()
	if err := s.senders.Put(id); err != nil {
		s.logger.Error("failed to reset sender", "id", id.ID, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to reset sender")
		return
	}

	s.sendJSON(w, http.StatusOK, senderView(id))
}

// handleListLogs handles GET /api/v1/logs
func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := sendlog.Filter{
		BatchID:     q.Get("batch_id"),
		Status:      q.Get("status"),
		SenderEmail: q.Get("sender"),
		Search:      q.Get("q"),
		Limit:       50,
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	entries, total, err := s.sendlog.List(filter)
	if err != nil {
		s.logger.Error("failed to list logs", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list logs")
		return
	}
	if entries == nil {
		entries = []sendlog.Entry{}
	}

	s.sendJSON(w, http.StatusOK, LogsResponse{Entries: entries, Total: total})
}

// handleLogStats handles GET /api/v1/logs/stats
func (s *Server) handleLogStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.sendlog.GetStats(r.URL.Query().Get("batch_id"))
	if err != nil {
		s.logger.Error("failed to get log stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get stats")
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startTime).Round(time.Second).String(),
	})
}

// loadSender fetches a sender by ID, writing the error response itself when
// the ID is missing or unknown.
func (s *Server) loadSender(w http.ResponseWriter, id string) (*sender.Identity, bool) {
	if id == "" {
		s.sendError(w, http.StatusBadRequest, "id is required")
		return nil, false
	}

	identity, err := s.senders.Get(id)
	if err != nil {
		s.logger.Error("failed to get sender", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get sender")
		return nil, false
	}
	if identity == nil {
		s.sendError(w, http.StatusNotFound, "Sender not found")
		return nil, false
	}
	return identity, true
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
