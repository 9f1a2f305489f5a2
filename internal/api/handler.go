package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-health/kite/internal/adjudication"
	"github.com/opensource-health/kite/internal/domain"
	"github.com/opensource-health/kite/internal/fraud"
	"github.com/opensource-health/kite/internal/history"
	"github.com/opensource-health/kite/internal/policy"
	"github.com/opensource-health/kite/internal/repository"
	"github.com/opensource-health/kite/internal/screening"
)

// GlobalTenantID is used for screening rules that apply to all tenants.
const GlobalTenantID = "*"

// submissionWindow is the rolling window for the per-member submission
// counter.
const submissionWindow = 24 * time.Hour

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	engine    *adjudication.Engine
	screening *screening.Engine
	policy    *policy.Provider
	history   *history.Service
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *adjudication.Engine, screeningEngine *screening.Engine, provider *policy.Provider, hist *history.Service, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		engine:    engine,
		screening: screeningEngine,
		policy:    provider,
		history:   hist,
		version:   version,
	}
}

// newClaimID generates a claim identifier like CLM_a1b2c3.
func newClaimID() string {
	return "CLM_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
}

// SubmitClaimRequest is the request body for POST /claims.
type SubmitClaimRequest struct {
	MemberID     string                     `json:"memberId"`
	Prescription *domain.ExtractedClaimData `json:"prescription,omitempty"`
	Bill         *domain.ExtractedClaimData `json:"bill,omitempty"`
}

// claimSubmittedEvent is the payload published to the claim.submitted topic.
type claimSubmittedEvent struct {
	ClaimID  string `json:"claimId"`
	TenantID string `json:"tenantId"`
	MemberID string `json:"memberId"`
}

// SubmitClaim handles POST /claims. The claim is stored PENDING and a
// submitted event is published; adjudication happens via the async worker
// or POST /claims/{id}/process.
func (h *Handler) SubmitClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req SubmitClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.MemberID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "memberId is required",
		})
		return
	}
	if req.Prescription == nil && req.Bill == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one of prescription or bill is required",
		})
		return
	}

	now := time.Now().Unix()
	claim := &domain.Claim{
		ClaimID:      newClaimID(),
		MemberID:     req.MemberID,
		Status:       domain.ClaimStatusPending,
		Prescription: req.Prescription,
		Bill:         req.Bill,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to save claim", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save claim",
		})
		return
	}

	if h.history != nil {
		if count, err := h.history.RecordSubmission(ctx, tenantID, req.MemberID, submissionWindow); err == nil && count > 3 {
			slog.Warn("high submission rate",
				"member_id", req.MemberID,
				"count_24h", count,
			)
		}
	}

	if h.bus != nil {
		payload, _ := json.Marshal(claimSubmittedEvent{
			ClaimID:  claim.ClaimID,
			TenantID: tenantID,
			MemberID: claim.MemberID,
		})
		if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimSubmitted, payload); err != nil {
			slog.Error("failed to publish claim submitted event",
				"claim_id", claim.ClaimID,
				"error", err,
			)
		}
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"claimId": claim.ClaimID,
		"status":  claim.Status,
	})
}

// ProcessClaim handles POST /claims/{id}/process: synchronous adjudication
// of a previously submitted claim. Idempotent: a decided claim returns its
// stored decision.
func (h *Handler) ProcessClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "claim not found",
		})
		return
	}

	if claim.Status == domain.ClaimStatusDecided {
		if dec, err := h.repo.GetDecision(ctx, tenantID, claimID); err == nil {
			writeJSON(w, http.StatusOK, dec)
			return
		}
	}

	member, err := h.history.Load(ctx, tenantID, claim.MemberID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.markFailed(ctx, tenantID, claim)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "member not found",
			})
			return
		}
		slog.Error("failed to load member", "member_id", claim.MemberID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load member",
		})
		return
	}

	merged := domain.Merge(claim.Prescription, claim.Bill)
	decision := h.engine.Adjudicate(merged, member)
	decision.ClaimID = claim.ClaimID

	if err := h.repo.SaveDecision(ctx, tenantID, decision); err != nil {
		h.markFailed(ctx, tenantID, claim)
		slog.Error("failed to save decision", "claim_id", claim.ClaimID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save decision",
		})
		return
	}

	claim.Status = domain.ClaimStatusDecided
	claim.DecisionID = decision.ClaimID
	claim.UpdatedAt = time.Now().Unix()
	if err := h.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to mark claim decided", "claim_id", claim.ClaimID, "error", err)
	}

	if decision.Decision == domain.DecisionApproved || decision.Decision == domain.DecisionPartial {
		if err := h.repo.UpdateMemberYTD(ctx, tenantID, claim.MemberID, decision.ApprovedAmount); err != nil {
			slog.Error("failed to update member YTD", "member_id", claim.MemberID, "error", err)
		}
	}
	if h.history != nil {
		h.history.Invalidate(ctx, tenantID, claim.MemberID)
	}

	h.publishDecision(ctx, tenantID, decision)

	writeJSON(w, http.StatusOK, decision)
}

// publishDecision emits the decided event plus review/alert events where
// the decision warrants them.
func (h *Handler) publishDecision(ctx context.Context, tenantID string, decision *domain.ClaimDecision) {
	if h.bus == nil {
		return
	}

	payload, _ := json.Marshal(decision)
	if err := h.bus.Publish(ctx, tenantID, domain.TopicClaimDecided, payload); err != nil {
		slog.Error("failed to publish decision", "claim_id", decision.ClaimID, "error", err)
	}
	if decision.Decision == domain.DecisionManualReview {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicManualReview, payload); err != nil {
			slog.Error("failed to publish review request", "claim_id", decision.ClaimID, "error", err)
		}
	}
	if decision.RiskScore >= fraud.RiskThreshold {
		if err := h.bus.Publish(ctx, tenantID, domain.TopicAlert, payload); err != nil {
			slog.Error("failed to publish alert", "claim_id", decision.ClaimID, "error", err)
		}
	}
}

func (h *Handler) markFailed(ctx context.Context, tenantID string, claim *domain.Claim) {
	claim.Status = domain.ClaimStatusFailed
	claim.UpdatedAt = time.Now().Unix()
	if err := h.repo.SaveClaim(ctx, tenantID, claim); err != nil {
		slog.Error("failed to mark claim failed", "claim_id", claim.ClaimID, "error", err)
	}
}

// AdjudicateRequest is the request body for POST /adjudicate.
type AdjudicateRequest struct {
	MemberID     string                     `json:"memberId"`
	Claim        *domain.ExtractedClaimData `json:"claim,omitempty"`
	Prescription *domain.ExtractedClaimData `json:"prescription,omitempty"`
	Bill         *domain.ExtractedClaimData `json:"bill,omitempty"`
}

// Adjudicate handles POST /adjudicate: stateless adjudication of extracted
// claim data. Nothing is persisted and member YTD is untouched. Unknown
// members get a sales preview against a synthetic in-force policy, labeled
// NOT_A_MEMBER.
func (h *Handler) Adjudicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req AdjudicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.MemberID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "memberId is required",
		})
		return
	}

	claim := req.Claim
	if claim == nil {
		if req.Prescription == nil && req.Bill == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "claim, prescription, or bill is required",
			})
			return
		}
		claim = domain.Merge(req.Prescription, req.Bill)
	}

	preview := false
	member, err := h.history.Load(ctx, tenantID, req.MemberID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to load member", "member_id", req.MemberID, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to load member",
			})
			return
		}

		// Synthetic member: long-standing active policy with no history,
		// so only the claim's own merits drive the preview.
		preview = true
		member = &domain.MemberInfo{
			MemberID:        req.MemberID,
			PolicyStartDate: time.Now().AddDate(-10, 0, 0).Format("2006-01-02"),
			PolicyStatus:    "active",
		}
	}

	decision := h.engine.Adjudicate(claim, member)
	if preview {
		decision.Decision = domain.DecisionNotAMember
	}

	writeJSON(w, http.StatusOK, decision)
}

// GetDecision handles GET /decisions/{id} (keyed by claim ID).
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	decision, err := h.repo.GetDecision(ctx, tenantID, claimID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, decision)
}

// GetClaim handles GET /claims/{id}.
func (h *Handler) GetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	claimID := chi.URLParam(r, "id")

	claim, err := h.repo.GetClaim(ctx, tenantID, claimID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "claim not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, claim)
}

// ListClaims handles GET /claims?memberId=&status=.
func (h *Handler) ListClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	memberID := r.URL.Query().Get("memberId")
	status := r.URL.Query().Get("status")

	claims, err := h.repo.ListClaims(ctx, tenantID, memberID, status)
	if err != nil {
		slog.Error("failed to list claims", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list claims",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"claims": claims,
		"count":  len(claims),
	})
}

// CreateMember handles POST /members.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var member domain.MemberInfo
	if err := json.NewDecoder(r.Body).Decode(&member); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if member.MemberID == "" || member.MemberName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "memberId and memberName are required",
		})
		return
	}
	if member.PolicyStartDate == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyStartDate is required",
		})
		return
	}
	if _, err := time.Parse("2006-01-02", member.PolicyStartDate); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "policyStartDate must be YYYY-MM-DD",
		})
		return
	}
	if member.PolicyStatus == "" {
		member.PolicyStatus = "active"
	}

	if err := h.repo.SaveMember(ctx, tenantID, &member); err != nil {
		slog.Error("failed to save member", "member_id", member.MemberID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save member",
		})
		return
	}

	writeJSON(w, http.StatusCreated, member)
}

// GetMember handles GET /members/{id}. The claim history is attached via
// the history service.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	memberID := chi.URLParam(r, "id")

	member, err := h.history.Load(ctx, tenantID, memberID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "member not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, member)
}

// GetMemberClaims handles GET /members/{id}/claims.
func (h *Handler) GetMemberClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	memberID := chi.URLParam(r, "id")

	claims, err := h.repo.GetClaimsByMember(ctx, tenantID, memberID, 0)
	if err != nil {
		slog.Error("failed to list member claims", "member_id", memberID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list member claims",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"memberId": memberID,
		"claims":   claims,
		"count":    len(claims),
	})
}

// GetPolicy handles GET /policy.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.policy.Document())
}

// ListScreeningRules returns all rules loaded in the screening engine.
// Rules are loaded from the database at startup and can be reloaded via
// POST /screening-rules/reload.
func (h *Handler) ListScreeningRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.screening.LoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetScreeningRule retrieves a rule by ID from the loaded engine rules.
func (h *Handler) GetScreeningRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.screening.LoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "screening rule not found",
	})
}

// CreateScreeningRuleRequest is the request body for creating a rule.
type CreateScreeningRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CreateScreeningRule creates a new screening rule and saves it to the
// database. Rules are saved globally (tenant_id = "*") so they apply to
// all tenants. The CEL expression is validated by loading it.
func (h *Handler) CreateScreeningRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateScreeningRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	rule := &domain.ScreeningRule{
		ID:          req.ID,
		TenantID:    GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	if err := h.screening.LoadRule(rule); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveScreeningRule(ctx, GlobalTenantID, rule); err != nil {
		slog.Error("failed to save screening rule", "id", rule.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save screening rule",
		})
		return
	}

	slog.Info("screening rule created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule created. Call POST /screening-rules/reload to apply changes.",
	})
}

// DeleteScreeningRule removes a rule from the database and the engine.
func (h *Handler) DeleteScreeningRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "id")

	if err := h.repo.DeleteScreeningRule(ctx, GlobalTenantID, ruleID); err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "screening rule not found",
		})
		return
	}

	h.screening.RemoveRule(ruleID)

	slog.Info("screening rule deleted", "id", ruleID)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Screening rule deleted.",
	})
}

// ReloadScreeningRules reloads all rules from the database into the engine.
// This enables hot-reloading without server restart.
func (h *Handler) ReloadScreeningRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListScreeningRules(ctx, GlobalTenantID)
	if err != nil {
		slog.Error("failed to list screening rules from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load screening rules from database",
		})
		return
	}

	if err := h.screening.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload screening rules into engine", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload screening rules: " + err.Error(),
		})
		return
	}

	slog.Info("screening rules reloaded from database", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "screening rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
