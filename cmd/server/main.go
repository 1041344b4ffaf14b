package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/contentguard/policyd/internal/logger"
	"github.com/contentguard/policyd/policy"
)

// Server wires the policy engine behind a chi HTTP API.
type Server struct {
	db         *sql.DB // nil when running on in-memory stores
	rules      policy.RuleRepository
	checks     policy.CheckStore
	violations policy.ViolationStore
	cache      policy.RuleCache
	checker    *policy.Checker
	router     *chi.Mux
	log        *slog.Logger
}

// NewServer builds a server. With an empty databaseURL it runs entirely on
// in-memory stores, which is enough for local development and tests.
func NewServer(databaseURL string, log *slog.Logger) (*Server, error) {
	s := &Server{
		cache: policy.NewInMemoryRuleCache(policy.DefaultCacheConfig()),
		log:   log,
	}

	if databaseURL != "" {
		db, err := sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			return nil, err
		}
		s.db = db
		s.rules = policy.NewPostgresRuleRepository(db)
		s.checks = policy.NewPostgresCheckStore(db)
		s.violations = policy.NewPostgresViolationStore(db)
	} else {
		log.Info("no DATABASE_URL set, using in-memory stores")
		s.rules = policy.NewInMemoryRuleRepository()
		s.checks = policy.NewInMemoryCheckStore()
		s.violations = policy.NewInMemoryViolationStore()
	}

	dispatcher := policy.NewDispatcher()
	if cel, err := policy.NewCELEvaluator(); err == nil {
		dispatcher.Register(policy.RuleTypeCustomLogic, cel)
	} else {
		log.Warn("CEL evaluator unavailable, custom logic rules will pass", "error", err)
	}

	s.checker = policy.NewChecker(s.rules, s.checks, s.violations, dispatcher, s.cache, log)
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Post("/api/v1/evaluate", s.handleEvaluate)
	r.Post("/api/v1/metadata", s.handleMetadata)

	r.Route("/api/v1/tenants/{tenantId}", func(r chi.Router) {
		r.Post("/checks", s.handleCheckContent)
		r.Get("/checks/{checkId}", s.handleGetCheck)

		r.Get("/rules", s.handleListRules)
		r.Post("/rules", s.handleCreateRule)
		r.Get("/rules/{ruleId}", s.handleGetRule)
		r.Put("/rules/{ruleId}", s.handleUpdateRule)
		r.Delete("/rules/{ruleId}", s.handleDeleteRule)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCheckContent(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var req CheckContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ContentType == "" {
		respondError(w, http.StatusBadRequest, "contentType is required", nil)
		return
	}

	output, err := s.checker.CheckContent(r.Context(), tenantID, policy.CheckInput{
		ContentType: req.ContentType,
		ContentID:   req.ContentID,
		ContentText: req.ContentText,
		Metadata:    req.ContentMetadata,
		Platform:    req.Platform,
		Scope:       req.CheckScope,
	})
	if err != nil {
		if errors.Is(err, policy.ErrTenantRequired) {
			respondError(w, http.StatusBadRequest, "tenant is required", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "content check failed", err)
		return
	}

	respondJSON(w, http.StatusOK, output)
}

func (s *Server) handleGetCheck(w http.ResponseWriter, r *http.Request) {
	checkID := chi.URLParam(r, "checkId")

	check, err := s.checks.Get(r.Context(), checkID)
	if err != nil {
		if errors.Is(err, policy.ErrCheckNotFound) {
			respondError(w, http.StatusNotFound, "check not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load check", err)
		return
	}
	if check.TenantID != chi.URLParam(r, "tenantId") {
		respondError(w, http.StatusNotFound, "check not found", nil)
		return
	}

	violations, err := s.violations.ListByCheck(r.Context(), checkID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load violations", err)
		return
	}

	respondJSON(w, http.StatusOK, checkRecordResponse(check, violations))
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rc := policy.ResolveContext{
		TenantID:    chi.URLParam(r, "tenantId"),
		Platform:    r.URL.Query().Get("platform"),
		ContentType: r.URL.Query().Get("contentType"),
	}
	if r.URL.Query().Get("scope") == string(policy.CheckScopeQuick) {
		rc.Scope = policy.CheckScopeQuick
	}

	rules, err := s.checker.GetApplicableRules(r.Context(), rc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to resolve rules", err)
		return
	}

	responses := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		resp, err := ruleResponse(rule)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
			return
		}
		responses = append(responses, resp)
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": responses})
}

// decodeRulePayload turns a wire payload into a validated rule owned by the
// tenant.
func decodeRulePayload(tenantID string, payload RulePayload) (*policy.Rule, error) {
	conditions, err := policy.DecodeConditions(payload.Type, payload.Conditions)
	if err != nil {
		return nil, err
	}
	id := payload.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &policy.Rule{
		ID:         id,
		TenantID:   tenantID,
		Platform:   payload.Platform,
		Name:       payload.Name,
		Category:   payload.Category,
		Type:       payload.Type,
		Conditions: conditions,
		Severity:   payload.Severity,
		IsBlocking: payload.IsBlocking,
		IsActive:   payload.IsActive,
	}, nil
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")

	var payload RulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if payload.Name == "" || payload.Type == "" {
		respondError(w, http.StatusBadRequest, "name and type are required", nil)
		return
	}

	rule, err := decodeRulePayload(tenantID, payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule conditions", err)
		return
	}

	if err := s.rules.Add(r.Context(), rule); err != nil {
		if errors.Is(err, policy.ErrRuleExists) {
			respondError(w, http.StatusConflict, "rule already exists", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create rule", err)
		return
	}
	s.cache.Invalidate()

	resp, err := ruleResponse(rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
		return
	}
	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.rules.Get(r.Context(), chi.URLParam(r, "ruleId"))
	if err != nil {
		if errors.Is(err, policy.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to load rule", err)
		return
	}

	resp, err := ruleResponse(rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantId")
	ruleID := chi.URLParam(r, "ruleId")

	var payload RulePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	payload.ID = ruleID
	rule, err := decodeRulePayload(tenantID, payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule conditions", err)
		return
	}

	if err := s.rules.Update(r.Context(), rule); err != nil {
		if errors.Is(err, policy.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to update rule", err)
		return
	}
	s.cache.Invalidate()

	resp, err := ruleResponse(rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to encode rule", err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.rules.Delete(r.Context(), chi.URLParam(r, "ruleId")); err != nil {
		if errors.Is(err, policy.ErrRuleNotFound) {
			respondError(w, http.StatusNotFound, "rule not found", err)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete rule", err)
		return
	}
	s.cache.Invalidate()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Rule.Type == "" {
		respondError(w, http.StatusBadRequest, "rule.type is required", nil)
		return
	}

	rule, err := decodeRulePayload("", req.Rule)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid rule conditions", err)
		return
	}

	result := s.checker.EvaluateRule(rule, req.ContentText, req.ContentMetadata)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	var req MetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	respondJSON(w, http.StatusOK, policy.ExtractContentMetadata(req.ContentText))
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	log := logger.Setup("policyd")

	server, err := NewServer(os.Getenv("DATABASE_URL"), log)
	if err != nil {
		log.Error("failed to create server", "error", err)
		os.Exit(1)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		log.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		log.Error("logger shutdown error", "error", err)
	}
}
