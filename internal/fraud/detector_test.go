package fraud

import (
	"math"
	"strings"
	"testing"

	"github.com/opensource-health/kite/internal/domain"
)

func cleanClaim() *domain.ExtractedClaimData {
	return &domain.ExtractedClaimData{
		DocumentType:         "both",
		ExtractionConfidence: 0.9,
		Diagnosis:            "Viral fever",
		DoctorInfo: &domain.DoctorInfo{
			Name:               "Dr. Rao",
			RegistrationNumber: "KA/12345/2015",
		},
		Costs: &domain.CostBreakdown{
			Consultation: 700,
			Medicines:    400,
			Total:        1100,
		},
		Dates: &domain.DateInfo{
			ConsultationDate: "2024-03-01",
			PrescriptionDate: "2024-03-01",
			BillDate:         "2024-03-02",
		},
	}
}

func cleanMember() *domain.MemberInfo {
	return &domain.MemberInfo{
		MemberID:        "MEM001",
		PolicyStartDate: "2024-01-01",
		PolicyStatus:    "active",
	}
}

func hasCategory(flags []domain.FraudFlag, category string) bool {
	for _, f := range flags {
		if f.Category == category {
			return true
		}
	}
	return false
}

func TestCleanClaimNoFlags(t *testing.T) {
	d := NewDetector()
	flags := d.Detect(cleanClaim(), cleanMember())
	if len(flags) != 0 {
		t.Errorf("expected no flags for clean claim, got %v", flags)
	}
	if score := RiskScore(flags); score != 0 {
		t.Errorf("expected zero risk, got %v", score)
	}
}

func TestSameDayClaims(t *testing.T) {
	d := NewDetector()

	t.Run("TwoPreviousSameDay", func(t *testing.T) {
		member := cleanMember()
		member.PreviousClaims = []domain.PreviousClaim{
			{ClaimID: "CLM_1", Date: "2024-03-01", Amount: 500},
			{ClaimID: "CLM_2", Date: "2024-03-01", Amount: 700},
		}
		flags := d.Detect(cleanClaim(), member)
		if !hasCategory(flags, domain.FraudSameDay) {
			t.Fatalf("expected same-day flag, got %v", flags)
		}
		found := false
		for _, f := range flags {
			if f.Category == domain.FraudSameDay && strings.Contains(f.Message, "3 total") {
				found = true
			}
		}
		if !found {
			t.Errorf("expected message to report 3 total claims, got %v", flags)
		}
	})

	t.Run("OnePreviousSameDay", func(t *testing.T) {
		member := cleanMember()
		member.PreviousClaims = []domain.PreviousClaim{
			{ClaimID: "CLM_1", Date: "2024-03-01", Amount: 500},
		}
		flags := d.Detect(cleanClaim(), member)
		if hasCategory(flags, domain.FraudSameDay) {
			t.Errorf("one previous same-day claim should not flag, got %v", flags)
		}
	})

	t.Run("NoConsultationDate", func(t *testing.T) {
		claim := cleanClaim()
		claim.Dates = nil
		member := cleanMember()
		member.PreviousClaims = []domain.PreviousClaim{
			{Date: "2024-03-01"}, {Date: "2024-03-01"}, {Date: "2024-03-01"},
		}
		flags := d.checkSameDayClaims(claim, member)
		if len(flags) != 0 {
			t.Errorf("missing consultation date should not flag, got %v", flags)
		}
	})
}

func TestClaimFrequency(t *testing.T) {
	d := NewDetector()

	history := func(n int) []domain.PreviousClaim {
		claims := make([]domain.PreviousClaim, n)
		for i := range claims {
			claims[i] = domain.PreviousClaim{ClaimID: "CLM", Date: "2024-01-15"}
		}
		return claims
	}

	cases := []struct {
		name      string
		count     int
		wantFlag  bool
		wantLevel string
	}{
		{"Four", 4, false, ""},
		{"Five", 5, true, "Elevated"},
		{"Nine", 9, true, "Elevated"},
		{"Ten", 10, true, "High"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			member := cleanMember()
			member.PreviousClaims = history(tc.count)
			flags := d.checkClaimFrequency(member)
			if tc.wantFlag != (len(flags) == 1) {
				t.Fatalf("count %d: got flags %v", tc.count, flags)
			}
			if tc.wantFlag && !strings.HasPrefix(flags[0].Message, tc.wantLevel) {
				t.Errorf("count %d: expected %s flag, got %q", tc.count, tc.wantLevel, flags[0].Message)
			}
		})
	}
}

func TestSuspiciousAmounts(t *testing.T) {
	d := NewDetector()

	t.Run("RoundThousand", func(t *testing.T) {
		claim := cleanClaim()
		claim.Costs = &domain.CostBreakdown{Total: 3000}
		flags := d.checkSuspiciousAmounts(claim)
		if len(flags) != 1 || flags[0].Category != domain.FraudAmount {
			t.Errorf("expected one amount flag for 3000, got %v", flags)
		}
	})

	t.Run("ExactlyThousandNotFlagged", func(t *testing.T) {
		claim := cleanClaim()
		claim.Costs = &domain.CostBreakdown{Total: 1000}
		if flags := d.checkSuspiciousAmounts(claim); len(flags) != 0 {
			t.Errorf("1000 is not above the round-amount floor, got %v", flags)
		}
	})

	t.Run("NearLimitBand", func(t *testing.T) {
		for _, amount := range []float64{4800, 4900, 5000} {
			claim := cleanClaim()
			claim.Costs = &domain.CostBreakdown{Total: amount}
			flags := d.checkSuspiciousAmounts(claim)
			if !hasCategory(flags, domain.FraudAmount) {
				t.Errorf("expected near-limit flag for %v", amount)
			}
		}
	})

	t.Run("BothFire", func(t *testing.T) {
		claim := cleanClaim()
		claim.Costs = &domain.CostBreakdown{Total: 5000}
		flags := d.checkSuspiciousAmounts(claim)
		if len(flags) != 2 {
			t.Errorf("5000 is both round and near-limit, got %v", flags)
		}
	})

	t.Run("NoCosts", func(t *testing.T) {
		claim := cleanClaim()
		claim.Costs = nil
		if flags := d.checkSuspiciousAmounts(claim); len(flags) != 0 {
			t.Errorf("no costs should not flag, got %v", flags)
		}
	})
}

func TestVagueDiagnosis(t *testing.T) {
	d := NewDetector()

	t.Run("SingleFlagForMultipleTerms", func(t *testing.T) {
		claim := cleanClaim()
		claim.Diagnosis = "General checkup, unspecified illness"
		flags := d.checkVagueDiagnosis(claim)
		if len(flags) != 1 {
			t.Errorf("expected exactly one vague-diagnosis flag, got %v", flags)
		}
	})

	t.Run("SpecificDiagnosis", func(t *testing.T) {
		claim := cleanClaim()
		claim.Diagnosis = "Acute bronchitis"
		if flags := d.checkVagueDiagnosis(claim); len(flags) != 0 {
			t.Errorf("specific diagnosis should not flag, got %v", flags)
		}
	})

	t.Run("EmptyDiagnosis", func(t *testing.T) {
		claim := cleanClaim()
		claim.Diagnosis = ""
		if flags := d.checkVagueDiagnosis(claim); len(flags) != 0 {
			t.Errorf("empty diagnosis should not flag, got %v", flags)
		}
	})
}

func TestDocumentConsistency(t *testing.T) {
	d := NewDetector()

	t.Run("DateSpread", func(t *testing.T) {
		claim := cleanClaim()
		claim.Dates = &domain.DateInfo{
			ConsultationDate: "2024-03-01",
			BillDate:         "2024-03-15",
		}
		flags := d.checkDocumentConsistency(claim)
		if !hasCategory(flags, domain.FraudInconsistency) {
			t.Errorf("expected date-spread flag for 14-day gap, got %v", flags)
		}
	})

	t.Run("SevenDaysExactlyOK", func(t *testing.T) {
		claim := cleanClaim()
		claim.Dates = &domain.DateInfo{
			ConsultationDate: "2024-03-01",
			BillDate:         "2024-03-08",
		}
		flags := d.checkDocumentConsistency(claim)
		if hasCategory(flags, domain.FraudInconsistency) {
			t.Errorf("7-day spread is the boundary and should not flag, got %v", flags)
		}
	})

	t.Run("UnparsableDatesSkipped", func(t *testing.T) {
		claim := cleanClaim()
		claim.Dates = &domain.DateInfo{
			ConsultationDate: "01/03/2024",
			BillDate:         "2024-03-20",
		}
		flags := d.checkDocumentConsistency(claim)
		if hasCategory(flags, domain.FraudInconsistency) {
			t.Errorf("unparsable dates skip the spread check, got %v", flags)
		}
	})

	t.Run("CostDrift", func(t *testing.T) {
		claim := cleanClaim()
		claim.Costs = &domain.CostBreakdown{
			Consultation: 500,
			Total:        1000, // components sum to 500, 50% drift
		}
		flags := d.checkDocumentConsistency(claim)
		if !hasCategory(flags, domain.FraudInconsistency) {
			t.Errorf("expected cost-drift flag, got %v", flags)
		}
	})

	t.Run("SmallDriftOK", func(t *testing.T) {
		claim := cleanClaim()
		claim.Costs = &domain.CostBreakdown{
			Consultation: 900,
			Total:        1000, // 10% drift
		}
		flags := d.checkDocumentConsistency(claim)
		if hasCategory(flags, domain.FraudInconsistency) {
			t.Errorf("10%% drift is within tolerance, got %v", flags)
		}
	})

	t.Run("MissingRegistration", func(t *testing.T) {
		claim := cleanClaim()
		claim.DoctorInfo = nil
		flags := d.checkDocumentConsistency(claim)
		if !hasCategory(flags, domain.FraudMissingField) {
			t.Errorf("expected missing-field flag, got %v", flags)
		}
	})
}

func TestRiskScore(t *testing.T) {
	cases := []struct {
		name  string
		flags []domain.FraudFlag
		want  float64
	}{
		{"Empty", nil, 0.0},
		{"SameDay", []domain.FraudFlag{{Category: domain.FraudSameDay}}, 0.30},
		{"Frequency", []domain.FraudFlag{{Category: domain.FraudFrequency}}, 0.25},
		{"Amount", []domain.FraudFlag{{Category: domain.FraudAmount}}, 0.15},
		{"Vague", []domain.FraudFlag{{Category: domain.FraudVagueDiagnosis}}, 0.10},
		{"Inconsistency", []domain.FraudFlag{{Category: domain.FraudInconsistency}}, 0.20},
		{"MissingField", []domain.FraudFlag{{Category: domain.FraudMissingField}}, 0.15},
		{"Unclassified", []domain.FraudFlag{{Category: "somethingElse"}}, 0.10},
		{
			"Additive",
			[]domain.FraudFlag{
				{Category: domain.FraudSameDay},
				{Category: domain.FraudFrequency},
			},
			0.55,
		},
		{
			"Capped",
			[]domain.FraudFlag{
				{Category: domain.FraudSameDay},
				{Category: domain.FraudSameDay},
				{Category: domain.FraudSameDay},
				{Category: domain.FraudFrequency},
			},
			1.0,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := RiskScore(tc.flags)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("RiskScore = %v, want %v", got, tc.want)
			}
		})
	}
}
