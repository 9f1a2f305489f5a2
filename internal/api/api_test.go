package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/opensource-health/kite/internal/adjudication"
	"github.com/opensource-health/kite/internal/bus"
	"github.com/opensource-health/kite/internal/cache"
	"github.com/opensource-health/kite/internal/domain"
	"github.com/opensource-health/kite/internal/fraud"
	"github.com/opensource-health/kite/internal/history"
	"github.com/opensource-health/kite/internal/policy"
	"github.com/opensource-health/kite/internal/repository"
	"github.com/opensource-health/kite/internal/screening"
)

type memRepo struct {
	mu        sync.Mutex
	members   map[string]*domain.MemberInfo
	claims    map[string]*domain.Claim
	decisions map[string]*domain.ClaimDecision
	rules     map[string]*domain.ScreeningRule
}

func newMemRepo() *memRepo {
	return &memRepo{
		members:   make(map[string]*domain.MemberInfo),
		claims:    make(map[string]*domain.Claim),
		decisions: make(map[string]*domain.ClaimDecision),
		rules:     make(map[string]*domain.ScreeningRule),
	}
}

func (r *memRepo) SaveMember(ctx context.Context, tenantID string, m *domain.MemberInfo) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *m
	r.members[m.MemberID] = &cp
	return nil
}

func (r *memRepo) GetMember(ctx context.Context, tenantID string, memberID string) (*domain.MemberInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (r *memRepo) UpdateMemberYTD(ctx context.Context, tenantID string, memberID string, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.members[memberID]; ok {
		m.YTDClaims += delta
	}
	return nil
}

func (r *memRepo) SaveClaim(ctx context.Context, tenantID string, c *domain.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.claims[c.ClaimID] = &cp
	return nil
}

func (r *memRepo) GetClaim(ctx context.Context, tenantID string, claimID string) (*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.claims[claimID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memRepo) ListClaims(ctx context.Context, tenantID string, memberID string, status string) ([]*domain.Claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Claim
	for _, c := range r.claims {
		if memberID != "" && c.MemberID != memberID {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) GetClaimsByMember(ctx context.Context, tenantID string, memberID string, limit int) ([]*domain.Claim, error) {
	return r.ListClaims(ctx, tenantID, memberID, "")
}

func (r *memRepo) SaveDecision(ctx context.Context, tenantID string, d *domain.ClaimDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.decisions[d.ClaimID] = &cp
	return nil
}

func (r *memRepo) GetDecision(ctx context.Context, tenantID string, claimID string) (*domain.ClaimDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.decisions[claimID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *memRepo) SaveScreeningRule(ctx context.Context, tenantID string, rule *domain.ScreeningRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	r.rules[rule.ID] = &cp
	return nil
}

func (r *memRepo) GetScreeningRule(ctx context.Context, tenantID string, ruleID string) (*domain.ScreeningRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rule, ok := r.rules[ruleID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rule
	return &cp, nil
}

func (r *memRepo) ListScreeningRules(ctx context.Context, tenantID string) ([]*domain.ScreeningRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.ScreeningRule
	for _, rule := range r.rules {
		cp := *rule
		out = append(out, &cp)
	}
	return out, nil
}

func (r *memRepo) DeleteScreeningRule(ctx context.Context, tenantID string, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[ruleID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.rules, ruleID)
	return nil
}

func (r *memRepo) Ping(ctx context.Context) error { return nil }
func (r *memRepo) Close() error                   { return nil }

func testProvider() *policy.Provider {
	return policy.NewFromDocument(&domain.PolicyDocument{
		PolicyName: "OPD Gold",
		CoverageDetails: domain.CoverageDetails{
			AnnualLimit:   50000,
			PerClaimLimit: 5000,
			ConsultationFees: domain.ConsultationFees{
				CopayPercentage: 10,
				NetworkDiscount: 5,
			},
		},
		WaitingPeriods: domain.WaitingPeriods{
			InitialWaiting:      30,
			PreExistingDiseases: 365,
		},
		NetworkHospitals: []string{"Apollo Hospital"},
		ClaimRequirements: domain.ClaimRequirements{
			MinimumClaimAmount: 500,
		},
		CashlessFacilities: domain.CashlessFacilities{
			InstantApprovalLimit: 5000,
		},
	})
}

// createTestServer creates a fully wired server for testing.
func createTestServer() (*Server, *memRepo) {
	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	repo := newMemRepo()
	lru := cache.NewLRUCache(100)
	eventBus := bus.NewChannelBus(100)
	screeningEngine, _ := screening.NewEngine(5)
	provider := testProvider()
	engine := adjudication.NewEngine(provider, fraud.NewDetector(), screeningEngine)
	hist := history.NewService(repo, lru)

	return NewServer(cfg, repo, lru, eventBus, engine, screeningEngine, provider, hist, "test-v1"), repo
}

func seedMember(repo *memRepo) {
	repo.members["MEM001"] = &domain.MemberInfo{
		MemberID:        "MEM001",
		MemberName:      "Asha Patel",
		PolicyStartDate: "2024-01-01",
		PolicyStatus:    "active",
	}
}

func cleanClaimBody() SubmitClaimRequest {
	return SubmitClaimRequest{
		MemberID: "MEM001",
		Prescription: &domain.ExtractedClaimData{
			DocumentType:         "prescription",
			ExtractionConfidence: 0.9,
			Diagnosis:            "Viral fever",
			DoctorInfo: &domain.DoctorInfo{
				Name:               "Dr. Rao",
				RegistrationNumber: "KA/123/2020",
			},
			Dates: &domain.DateInfo{ConsultationDate: "2024-03-01"},
		},
		Bill: &domain.ExtractedClaimData{
			DocumentType:         "bill",
			ExtractionConfidence: 0.9,
			Costs: &domain.CostBreakdown{
				Consultation: 1000,
				Total:        1000,
			},
			Dates: &domain.DateInfo{BillDate: "2024-03-01"},
		},
	}
}

func doJSON(t *testing.T, server *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", "tenant-001")

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestClaimLifecycle(t *testing.T) {
	server, repo := createTestServer()
	seedMember(repo)

	t.Run("SubmitClaim", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims", cleanClaimBody())

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["claimId"] == "" {
			t.Error("expected claimId in response")
		}
		if resp["status"] != domain.ClaimStatusPending {
			t.Errorf("expected status PENDING, got %s", resp["status"])
		}
	})

	t.Run("ProcessClaim", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims", cleanClaimBody())
		var submitted map[string]string
		json.Unmarshal(rr.Body.Bytes(), &submitted)
		claimID := submitted["claimId"]

		rr = doJSON(t, server, http.MethodPost, "/claims/"+claimID+"/process", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var dec domain.ClaimDecision
		if err := json.Unmarshal(rr.Body.Bytes(), &dec); err != nil {
			t.Fatalf("failed to parse decision: %v", err)
		}

		if dec.ClaimID != claimID {
			t.Errorf("expected claimId %s, got %s", claimID, dec.ClaimID)
		}
		if dec.Decision != domain.DecisionApproved {
			t.Errorf("expected APPROVED, got %s (reasons: %v)", dec.Decision, dec.RejectionReasons)
		}
		if dec.ApprovedAmount != 900 {
			t.Errorf("expected approved 900 after copay, got %.2f", dec.ApprovedAmount)
		}

		claim, _ := repo.GetClaim(context.Background(), "tenant-001", claimID)
		if claim.Status != domain.ClaimStatusDecided {
			t.Errorf("expected claim DECIDED, got %s", claim.Status)
		}

		member, _ := repo.GetMember(context.Background(), "tenant-001", "MEM001")
		if member.YTDClaims != 900 {
			t.Errorf("expected YTD 900, got %.2f", member.YTDClaims)
		}

		// Idempotent: reprocessing returns the stored decision.
		rr = doJSON(t, server, http.MethodPost, "/claims/"+claimID+"/process", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200 on reprocess, got %d", rr.Code)
		}
		member, _ = repo.GetMember(context.Background(), "tenant-001", "MEM001")
		if member.YTDClaims != 900 {
			t.Errorf("expected YTD unchanged on reprocess, got %.2f", member.YTDClaims)
		}

		// Decision retrievable by claim ID.
		rr = doJSON(t, server, http.MethodGet, "/decisions/"+claimID, nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200 for decision, got %d", rr.Code)
		}
	})

	t.Run("GetClaim", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims", cleanClaimBody())
		var submitted map[string]string
		json.Unmarshal(rr.Body.Bytes(), &submitted)

		rr = doJSON(t, server, http.MethodGet, "/claims/"+submitted["claimId"], nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var claim domain.Claim
		json.Unmarshal(rr.Body.Bytes(), &claim)
		if claim.MemberID != "MEM001" {
			t.Errorf("expected memberId MEM001, got %s", claim.MemberID)
		}
	})

	t.Run("ListClaimsByStatus", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/claims?memberId=MEM001&status=PENDING", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Claims []domain.Claim `json:"claims"`
			Count  int            `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count == 0 {
			t.Error("expected pending claims in listing")
		}
		for _, c := range resp.Claims {
			if c.Status != domain.ClaimStatusPending {
				t.Errorf("expected only PENDING claims, got %s", c.Status)
			}
		}
	})

	t.Run("SubmitRequiresMemberID", func(t *testing.T) {
		body := cleanClaimBody()
		body.MemberID = ""
		rr := doJSON(t, server, http.MethodPost, "/claims", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("SubmitRequiresDocument", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims", SubmitClaimRequest{MemberID: "MEM001"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("ProcessUnknownClaim", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/claims/CLM_nope/process", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/claims", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestAdjudicateEndpoint(t *testing.T) {
	server, repo := createTestServer()
	seedMember(repo)

	t.Run("KnownMember", func(t *testing.T) {
		body := AdjudicateRequest{
			MemberID:     "MEM001",
			Prescription: cleanClaimBody().Prescription,
			Bill:         cleanClaimBody().Bill,
		}
		rr := doJSON(t, server, http.MethodPost, "/adjudicate", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var dec domain.ClaimDecision
		json.Unmarshal(rr.Body.Bytes(), &dec)
		if dec.Decision != domain.DecisionApproved {
			t.Errorf("expected APPROVED, got %s", dec.Decision)
		}

		// Stateless: no YTD movement.
		member, _ := repo.GetMember(context.Background(), "tenant-001", "MEM001")
		if member.YTDClaims != 0 {
			t.Errorf("expected YTD unchanged, got %.2f", member.YTDClaims)
		}
	})

	t.Run("UnknownMemberPreview", func(t *testing.T) {
		body := AdjudicateRequest{
			MemberID:     "STRANGER",
			Prescription: cleanClaimBody().Prescription,
			Bill:         cleanClaimBody().Bill,
		}
		rr := doJSON(t, server, http.MethodPost, "/adjudicate", body)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var dec domain.ClaimDecision
		json.Unmarshal(rr.Body.Bytes(), &dec)
		if dec.Decision != domain.DecisionNotAMember {
			t.Errorf("expected NOT_A_MEMBER, got %s", dec.Decision)
		}
		if dec.ApprovedAmount != 900 {
			t.Errorf("expected preview amount 900, got %.2f", dec.ApprovedAmount)
		}
	})

	t.Run("RequiresMemberID", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/adjudicate", AdjudicateRequest{})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/adjudicate", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}

func TestMemberEndpoints(t *testing.T) {
	server, _ := createTestServer()

	t.Run("CreateAndGet", func(t *testing.T) {
		member := domain.MemberInfo{
			MemberID:        "MEM100",
			MemberName:      "Ravi Kumar",
			PolicyStartDate: "2023-06-01",
		}
		rr := doJSON(t, server, http.MethodPost, "/members", member)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/members/MEM100", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var got domain.MemberInfo
		json.Unmarshal(rr.Body.Bytes(), &got)
		if got.PolicyStatus != "active" {
			t.Errorf("expected default status active, got %s", got.PolicyStatus)
		}
	})

	t.Run("InvalidStartDate", func(t *testing.T) {
		member := domain.MemberInfo{
			MemberID:        "MEM101",
			MemberName:      "Bad Date",
			PolicyStartDate: "01/06/2023",
		}
		rr := doJSON(t, server, http.MethodPost, "/members", member)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/members/MEM-nope", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("MemberClaims", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/members/MEM100/claims", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			MemberID string `json:"memberId"`
			Count    int    `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.MemberID != "MEM100" {
			t.Errorf("expected memberId MEM100, got %s", resp.MemberID)
		}
	})
}

func TestPolicyEndpoint(t *testing.T) {
	server, _ := createTestServer()

	rr := doJSON(t, server, http.MethodGet, "/policy", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var doc domain.PolicyDocument
	json.Unmarshal(rr.Body.Bytes(), &doc)
	if doc.PolicyName != "OPD Gold" {
		t.Errorf("expected policy 'OPD Gold', got '%s'", doc.PolicyName)
	}
	if doc.CoverageDetails.AnnualLimit != 50000 {
		t.Errorf("expected annual limit 50000, got %.0f", doc.CoverageDetails.AnnualLimit)
	}
}

func TestScreeningRuleEndpoints(t *testing.T) {
	server, _ := createTestServer()

	t.Run("CreateAndList", func(t *testing.T) {
		rule := CreateScreeningRuleRequest{
			ID:         "high-amount",
			Name:       "High amount screen",
			Expression: "claimed_amount > 4000.0",
			Enabled:    true,
		}
		rr := doJSON(t, server, http.MethodPost, "/screening-rules", rule)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}

		rr = doJSON(t, server, http.MethodGet, "/screening-rules", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 rule, got %d", resp.Count)
		}
	})

	t.Run("GetRule", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodGet, "/screening-rules/high-amount", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var rule domain.ScreeningRule
		json.Unmarshal(rr.Body.Bytes(), &rule)
		if rule.Expression != "claimed_amount > 4000.0" {
			t.Errorf("unexpected expression: %s", rule.Expression)
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		rule := CreateScreeningRuleRequest{
			ID:         "broken",
			Name:       "Broken rule",
			Expression: "claimed_amount >>> banana",
			Enabled:    true,
		}
		rr := doJSON(t, server, http.MethodPost, "/screening-rules", rule)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodPost, "/screening-rules/reload", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 rule after reload, got %d", resp.Count)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := doJSON(t, server, http.MethodDelete, "/screening-rules/high-amount", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		rr = doJSON(t, server, http.MethodGet, "/screening-rules/high-amount", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 after delete, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := createTestServer()

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestResponseHeaders(t *testing.T) {
	server, repo := createTestServer()
	seedMember(repo)

	rr := doJSON(t, server, http.MethodGet, "/claims?memberId=MEM001", nil)

	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header in response")
	}
	if rr.Header().Get("X-Trace-ID") == "" {
		t.Error("expected X-Trace-ID header in response")
	}
	if rr.Header().Get("Content-Type") != "application/json" {
		t.Error("expected Content-Type: application/json")
	}
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
