package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/opensource-health/kite/internal/domain"
)

func TestSQLiteRepository(t *testing.T) {
	// Create temp database file
	tmpFile, err := os.CreateTemp("", "kite-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	cfg := domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	}

	repo, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetMember", func(t *testing.T) {
		member := &domain.MemberInfo{
			MemberID:        "MEM001",
			MemberName:      "Asha Patel",
			PolicyNumber:    "POL-2024-001",
			PolicyStartDate: "2024-01-01",
			PolicyStatus:    "active",
			YTDClaims:       1500,
		}

		if err := repo.SaveMember(ctx, tenantID, member); err != nil {
			t.Fatalf("SaveMember failed: %v", err)
		}

		retrieved, err := repo.GetMember(ctx, tenantID, "MEM001")
		if err != nil {
			t.Fatalf("GetMember failed: %v", err)
		}
		if retrieved.MemberName != member.MemberName {
			t.Errorf("expected name %s, got %s", member.MemberName, retrieved.MemberName)
		}
		if retrieved.YTDClaims != 1500 {
			t.Errorf("expected YTD 1500, got %v", retrieved.YTDClaims)
		}
	})

	t.Run("UpsertMember", func(t *testing.T) {
		member := &domain.MemberInfo{
			MemberID:        "MEM001",
			MemberName:      "Asha Patel",
			PolicyStartDate: "2024-01-01",
			PolicyStatus:    "lapsed",
			YTDClaims:       2000,
		}
		if err := repo.SaveMember(ctx, tenantID, member); err != nil {
			t.Fatalf("SaveMember upsert failed: %v", err)
		}

		retrieved, err := repo.GetMember(ctx, tenantID, "MEM001")
		if err != nil {
			t.Fatalf("GetMember failed: %v", err)
		}
		if retrieved.PolicyStatus != "lapsed" {
			t.Errorf("expected status lapsed after upsert, got %s", retrieved.PolicyStatus)
		}
	})

	t.Run("UpdateMemberYTD", func(t *testing.T) {
		if err := repo.UpdateMemberYTD(ctx, tenantID, "MEM001", 500); err != nil {
			t.Fatalf("UpdateMemberYTD failed: %v", err)
		}

		retrieved, err := repo.GetMember(ctx, tenantID, "MEM001")
		if err != nil {
			t.Fatalf("GetMember failed: %v", err)
		}
		if retrieved.YTDClaims != 2500 {
			t.Errorf("expected YTD 2500 after delta, got %v", retrieved.YTDClaims)
		}

		if err := repo.UpdateMemberYTD(ctx, tenantID, "nonexistent", 100); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for unknown member, got: %v", err)
		}
	})

	t.Run("SaveAndGetClaim", func(t *testing.T) {
		now := time.Now().Unix()
		claim := &domain.Claim{
			ClaimID:  "CLM_abc123",
			MemberID: "MEM001",
			Status:   domain.ClaimStatusPending,
			Prescription: &domain.ExtractedClaimData{
				DocumentType: "prescription",
				Diagnosis:    "Viral fever",
			},
			Bill: &domain.ExtractedClaimData{
				DocumentType: "bill",
				Costs:        &domain.CostBreakdown{Consultation: 1000, Total: 1000},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}

		if err := repo.SaveClaim(ctx, tenantID, claim); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		retrieved, err := repo.GetClaim(ctx, tenantID, "CLM_abc123")
		if err != nil {
			t.Fatalf("GetClaim failed: %v", err)
		}
		if retrieved.Status != domain.ClaimStatusPending {
			t.Errorf("expected status PENDING, got %s", retrieved.Status)
		}
		if retrieved.Prescription == nil || retrieved.Prescription.Diagnosis != "Viral fever" {
			t.Errorf("prescription did not round-trip: %+v", retrieved.Prescription)
		}
		if retrieved.Bill == nil || retrieved.Bill.Costs.Total != 1000 {
			t.Errorf("bill did not round-trip: %+v", retrieved.Bill)
		}
	})

	t.Run("ListClaims", func(t *testing.T) {
		now := time.Now().Unix()
		second := &domain.Claim{
			ClaimID:   "CLM_def456",
			MemberID:  "MEM001",
			Status:    domain.ClaimStatusDecided,
			CreatedAt: now + 10,
			UpdatedAt: now + 10,
		}
		if err := repo.SaveClaim(ctx, tenantID, second); err != nil {
			t.Fatalf("SaveClaim failed: %v", err)
		}

		all, err := repo.ListClaims(ctx, tenantID, "MEM001", "")
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(all) != 2 {
			t.Fatalf("expected 2 claims, got %d", len(all))
		}
		if all[0].ClaimID != "CLM_def456" {
			t.Errorf("expected newest claim first, got %s", all[0].ClaimID)
		}

		decided, err := repo.ListClaims(ctx, tenantID, "MEM001", domain.ClaimStatusDecided)
		if err != nil {
			t.Fatalf("ListClaims with status filter failed: %v", err)
		}
		if len(decided) != 1 || decided[0].ClaimID != "CLM_def456" {
			t.Errorf("status filter mismatch: %+v", decided)
		}
	})

	t.Run("GetClaimsByMemberLimit", func(t *testing.T) {
		claims, err := repo.GetClaimsByMember(ctx, tenantID, "MEM001", 1)
		if err != nil {
			t.Fatalf("GetClaimsByMember failed: %v", err)
		}
		if len(claims) != 1 {
			t.Errorf("expected limit 1 to return 1 claim, got %d", len(claims))
		}
	})

	t.Run("SaveAndGetDecision", func(t *testing.T) {
		decision := &domain.ClaimDecision{
			ClaimID:          "CLM_abc123",
			MemberID:         "MEM001",
			Decision:         domain.DecisionApproved,
			ClaimedAmount:    1000,
			ApprovedAmount:   900,
			Deductions:       domain.Deductions{Copay: 100},
			RejectionReasons: []domain.RejectionReason{},
			FraudFlags:       []domain.FraudFlag{},
			AdjudicationSteps: map[domain.Step]domain.StepOutcome{
				domain.StepEligibility: domain.StepPass,
			},
			ConfidenceScore: 0.9,
			Notes:           "Claim approved for ₹900.00",
		}

		if err := repo.SaveDecision(ctx, tenantID, decision); err != nil {
			t.Fatalf("SaveDecision failed: %v", err)
		}

		retrieved, err := repo.GetDecision(ctx, tenantID, "CLM_abc123")
		if err != nil {
			t.Fatalf("GetDecision failed: %v", err)
		}
		if retrieved.Decision != domain.DecisionApproved {
			t.Errorf("expected APPROVED, got %s", retrieved.Decision)
		}
		if retrieved.ApprovedAmount != 900 {
			t.Errorf("expected approved 900, got %v", retrieved.ApprovedAmount)
		}
		if retrieved.Deductions.Copay != 100 {
			t.Errorf("expected copay 100, got %v", retrieved.Deductions.Copay)
		}
		if retrieved.AdjudicationSteps[domain.StepEligibility] != domain.StepPass {
			t.Errorf("step map did not round-trip: %+v", retrieved.AdjudicationSteps)
		}
	})

	t.Run("ScreeningRules", func(t *testing.T) {
		rule := &domain.ScreeningRule{
			ID:         "rule-001",
			Name:       "High value claim",
			Expression: "claimed_amount > 4000.0",
			Enabled:    true,
		}

		if err := repo.SaveScreeningRule(ctx, tenantID, rule); err != nil {
			t.Fatalf("SaveScreeningRule failed: %v", err)
		}

		retrieved, err := repo.GetScreeningRule(ctx, tenantID, "rule-001")
		if err != nil {
			t.Fatalf("GetScreeningRule failed: %v", err)
		}
		if retrieved.Expression != rule.Expression {
			t.Errorf("expression mismatch: %s", retrieved.Expression)
		}

		rules, err := repo.ListScreeningRules(ctx, tenantID)
		if err != nil {
			t.Fatalf("ListScreeningRules failed: %v", err)
		}
		if len(rules) != 1 {
			t.Errorf("expected 1 rule, got %d", len(rules))
		}

		if err := repo.DeleteScreeningRule(ctx, tenantID, "rule-001"); err != nil {
			t.Fatalf("DeleteScreeningRule failed: %v", err)
		}
		if _, err := repo.GetScreeningRule(ctx, tenantID, "rule-001"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound after soft delete, got: %v", err)
		}
		if err := repo.DeleteScreeningRule(ctx, tenantID, "rule-001"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for already-disabled rule, got: %v", err)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		otherTenant := "tenant-002"

		if _, err := repo.GetMember(ctx, otherTenant, "MEM001"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for member in different tenant, got: %v", err)
		}
		if _, err := repo.GetClaim(ctx, otherTenant, "CLM_abc123"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for claim in different tenant, got: %v", err)
		}
		if _, err := repo.GetDecision(ctx, otherTenant, "CLM_abc123"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound for decision in different tenant, got: %v", err)
		}

		claims, err := repo.ListClaims(ctx, otherTenant, "", "")
		if err != nil {
			t.Fatalf("ListClaims failed: %v", err)
		}
		if len(claims) != 0 {
			t.Errorf("expected no claims for other tenant, got %d", len(claims))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := repo.SaveMember(ctx, "", &domain.MemberInfo{MemberID: "X"}); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := repo.GetClaim(ctx, "", "CLM_abc123"); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if err := repo.SaveDecision(ctx, "", &domain.ClaimDecision{ClaimID: "X"}); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := repo.GetClaim(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
		if _, err := repo.GetDecision(ctx, tenantID, "nonexistent"); err != ErrNotFound {
			t.Errorf("expected ErrNotFound, got: %v", err)
		}
	})
}

func TestUnsupportedDriver(t *testing.T) {
	cfg := domain.RepositoryConfig{
		Driver: "mysql",
	}

	_, err := New(cfg)
	if err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestRebind(t *testing.T) {
	repo := &SQLRepository{driver: "postgres"}

	tests := []struct {
		input    string
		expected string
	}{
		{"SELECT * FROM t WHERE id = ?", "SELECT * FROM t WHERE id = $1"},
		{"INSERT INTO t (a, b) VALUES (?, ?)", "INSERT INTO t (a, b) VALUES ($1, $2)"},
		{"SELECT * FROM t", "SELECT * FROM t"},
	}

	for _, tt := range tests {
		result := repo.rebind(tt.input)
		if result != tt.expected {
			t.Errorf("rebind(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}
