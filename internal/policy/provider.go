// Package policy loads the policy terms document and answers rule lookups.
package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/opensource-health/kite/internal/domain"
)

// Defaults applied when the policy document omits a section.
const (
	defaultInitialWaiting     = 30
	defaultPreExistingWaiting = 365
	defaultMinimumClaim       = 500.0
	defaultSubmissionDays     = 30
	defaultInstantApproval    = 5000.0
)

// Provider answers policy lookups. It is immutable after construction and
// safe for unlimited concurrent readers.
type Provider struct {
	doc *domain.PolicyDocument
}

// New loads the policy document from path. A missing or unparseable
// document is a hard failure; the caller should treat it as fatal since no
// adjudication can proceed without policy terms.
func New(path string) (*Provider, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy document: %w", err)
	}

	var doc domain.PolicyDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy document: %w", err)
	}

	slog.Info("Policy loaded",
		"policy", doc.PolicyName,
		"exclusions", len(doc.Exclusions),
		"networkHospitals", len(doc.NetworkHospitals))

	return &Provider{doc: &doc}, nil
}

// NewFromDocument wraps an in-memory document. Used by tests and embedded
// callers that manage the document themselves.
func NewFromDocument(doc *domain.PolicyDocument) *Provider {
	return &Provider{doc: doc}
}

// Document returns the underlying policy document. Callers must treat it
// as read-only.
func (p *Provider) Document() *domain.PolicyDocument {
	return p.doc
}

// AnnualLimit returns the annual coverage limit.
func (p *Provider) AnnualLimit() float64 {
	return p.doc.CoverageDetails.AnnualLimit
}

// PerClaimLimit returns the per-claim limit.
func (p *Provider) PerClaimLimit() float64 {
	return p.doc.CoverageDetails.PerClaimLimit
}

// ConsultationCopay returns the consultation copay percentage.
func (p *Provider) ConsultationCopay() float64 {
	return p.doc.CoverageDetails.ConsultationFees.CopayPercentage
}

// PharmacyCopay returns the branded-drugs copay percentage. All medicines
// are treated as branded; there is no per-item classification.
func (p *Provider) PharmacyCopay() float64 {
	return p.doc.CoverageDetails.Pharmacy.BrandedDrugsCopay
}

// NetworkDiscount returns the network provider discount percentage.
func (p *Provider) NetworkDiscount() float64 {
	return p.doc.CoverageDetails.ConsultationFees.NetworkDiscount
}

// MinimumClaimAmount returns the minimum claimable amount.
func (p *Provider) MinimumClaimAmount() float64 {
	if p.doc.ClaimRequirements.MinimumClaimAmount == 0 {
		return defaultMinimumClaim
	}
	return p.doc.ClaimRequirements.MinimumClaimAmount
}

// SubmissionTimelineDays returns the claim submission window in days.
func (p *Provider) SubmissionTimelineDays() int {
	if p.doc.ClaimRequirements.SubmissionTimelineDays == 0 {
		return defaultSubmissionDays
	}
	return p.doc.ClaimRequirements.SubmissionTimelineDays
}

// InstantApprovalLimit returns the cashless instant-approval threshold.
func (p *Provider) InstantApprovalLimit() float64 {
	if p.doc.CashlessFacilities.InstantApprovalLimit == 0 {
		return defaultInstantApproval
	}
	return p.doc.CashlessFacilities.InstantApprovalLimit
}

// WaitingPeriod returns the waiting period in days for a condition type.
// "initial" and "pre_existing" have documented defaults; unknown specific
// ailments fall back to 0.
func (p *Provider) WaitingPeriod(conditionType string) int {
	switch conditionType {
	case "initial":
		if p.doc.WaitingPeriods.InitialWaiting == 0 {
			return defaultInitialWaiting
		}
		return p.doc.WaitingPeriods.InitialWaiting
	case "pre_existing":
		if p.doc.WaitingPeriods.PreExistingDiseases == 0 {
			return defaultPreExistingWaiting
		}
		return p.doc.WaitingPeriods.PreExistingDiseases
	default:
		return p.doc.WaitingPeriods.SpecificAilments[strings.ToLower(conditionType)]
	}
}

// IsExcluded reports whether a service or condition matches a policy
// exclusion. Matching is case-insensitive bidirectional substring
// containment, intentionally permissive.
func (p *Provider) IsExcluded(serviceOrCondition string) bool {
	needle := strings.ToLower(serviceOrCondition)
	for _, exclusion := range p.doc.Exclusions {
		ex := strings.ToLower(exclusion)
		if strings.Contains(needle, ex) || strings.Contains(ex, needle) {
			return true
		}
	}
	return false
}

// IsNetworkHospital reports whether a hospital name matches a network
// hospital entry, using the same bidirectional substring matching.
func (p *Provider) IsNetworkHospital(hospitalName string) bool {
	if hospitalName == "" {
		return false
	}
	needle := strings.ToLower(hospitalName)
	for _, hosp := range p.doc.NetworkHospitals {
		h := strings.ToLower(hosp)
		if strings.Contains(needle, h) || strings.Contains(h, needle) {
			return true
		}
	}
	return false
}

// RequiresPreAuthorization reports whether a diagnostic test requires
// pre-authorization. A covered-test entry marks this by containing both
// "pre-auth" and the test name.
func (p *Provider) RequiresPreAuthorization(service string) bool {
	needle := strings.ToLower(service)
	for _, test := range p.doc.CoverageDetails.DiagnosticTests.CoveredTests {
		t := strings.ToLower(test)
		if strings.Contains(t, "pre-auth") && strings.Contains(t, needle) {
			return true
		}
	}
	return false
}
