// Package adjudication implements the claim decision engine.
//
// A claim passes through a fraud gate and then five ordered checks:
// eligibility, documents, coverage, limits, medical necessity. Some
// failures stop immediately, some degrade the decision to PARTIAL and
// continue. The engine is synchronous, stateless across calls, and
// performs no I/O; Adjudicate is total and never returns an error.
package adjudication

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-health/kite/internal/domain"
	"github.com/opensource-health/kite/internal/fraud"
	"github.com/opensource-health/kite/internal/policy"
)

// Screener supplies optional operator-defined screening flags appended to
// the built-in fraud checks. Implementations must be safe for concurrent
// use.
type Screener interface {
	Screen(claim *domain.ExtractedClaimData, member *domain.MemberInfo) []domain.FraudFlag
}

// Engine adjudicates claims against policy terms.
type Engine struct {
	policy   *policy.Provider
	detector *fraud.Detector
	screener Screener // nil disables screening
}

// NewEngine creates an adjudication engine. screener may be nil.
func NewEngine(provider *policy.Provider, detector *fraud.Detector, screener Screener) *Engine {
	return &Engine{
		policy:   provider,
		detector: detector,
		screener: screener,
	}
}

// stepStatus is the tagged outcome of one adjudication step.
type stepStatus int

const (
	stepPass stepStatus = iota
	stepFail            // hard stop, decision REJECTED
	stepWarn            // degrade and continue
)

// stepResult carries a step's status and any rejection reasons it produced.
type stepResult struct {
	status  stepStatus
	reasons []domain.RejectionReason
}

func (r stepResult) outcome() domain.StepOutcome {
	switch r.status {
	case stepFail:
		return domain.StepFail
	case stepWarn:
		return domain.StepWarning
	default:
		return domain.StepPass
	}
}

func pass() stepResult { return stepResult{status: stepPass} }

func fail(reasons ...domain.RejectionReason) stepResult {
	return stepResult{status: stepFail, reasons: reasons}
}

func warn(reasons ...domain.RejectionReason) stepResult {
	return stepResult{status: stepWarn, reasons: reasons}
}

// limitsResult extends stepResult with the money computed by the limits
// step.
type limitsResult struct {
	stepResult
	approved   float64
	deductions domain.Deductions
}

// Adjudicate runs the full decision pipeline for one claim. The decision
// is fully populated (confidence, notes, next steps) on every path.
func (e *Engine) Adjudicate(claim *domain.ExtractedClaimData, member *domain.MemberInfo) *domain.ClaimDecision {
	slog.Info("Starting adjudication", "memberId", member.MemberID)

	dec := &domain.ClaimDecision{
		MemberID:          member.MemberID,
		Decision:          domain.DecisionApproved, // optimistic start
		ClaimedAmount:     claim.ClaimedAmount(),
		RejectionReasons:  []domain.RejectionReason{},
		FraudFlags:        []domain.FraudFlag{},
		AdjudicationSteps: skippedSteps(),
	}

	flags := e.detector.Detect(claim, member)
	if e.screener != nil {
		flags = append(flags, e.screener.Screen(claim, member)...)
	}
	dec.FraudFlags = flags
	dec.RiskScore = fraud.RiskScore(flags)

	// Fraud gate: the highest-priority short-circuit. All steps stay
	// SKIPPED.
	if dec.RiskScore >= fraud.RiskThreshold {
		dec.Decision = domain.DecisionManualReview
		dec.Notes = fmt.Sprintf("Flagged for manual review due to fraud indicators (risk score: %.2f)", dec.RiskScore)
		e.finalize(dec, claim)
		return dec
	}

	// Steps 1-3: hard stop on failure, degrade to PARTIAL on warning.
	gates := []struct {
		name domain.Step
		run  func() stepResult
	}{
		{domain.StepEligibility, func() stepResult { return e.checkEligibility(claim, member) }},
		{domain.StepDocuments, func() stepResult { return e.validateDocuments(claim) }},
		{domain.StepCoverage, func() stepResult { return e.verifyCoverage(claim) }},
	}
	for _, g := range gates {
		res := g.run()
		dec.AdjudicationSteps[g.name] = res.outcome()
		dec.RejectionReasons = append(dec.RejectionReasons, res.reasons...)
		switch res.status {
		case stepFail:
			dec.Decision = domain.DecisionRejected
			e.finalize(dec, claim)
			return dec
		case stepWarn:
			dec.Decision = domain.DecisionPartial
		}
	}

	// Step 4: limits. A non-pass outcome here never stops the pipeline;
	// it sets the decision and the engine still reviews medical necessity.
	limits := e.checkLimits(claim, member)
	dec.AdjudicationSteps[domain.StepLimits] = limits.outcome()
	dec.RejectionReasons = append(dec.RejectionReasons, limits.reasons...)
	dec.ApprovedAmount = limits.approved
	dec.Deductions = limits.deductions
	if limits.status != stepPass {
		if dec.ApprovedAmount > 0 {
			dec.Decision = domain.DecisionPartial
		} else {
			dec.Decision = domain.DecisionRejected
		}
	}

	// Step 5: medical necessity.
	med := e.reviewMedicalNecessity(claim)
	dec.AdjudicationSteps[domain.StepMedicalNecessity] = med.outcome()
	if med.status == stepFail {
		dec.Decision = domain.DecisionRejected
		dec.ApprovedAmount = 0
		dec.RejectionReasons = append(dec.RejectionReasons, med.reasons...)
		e.finalize(dec, claim)
		return dec
	}

	e.applyNetworkBenefits(dec, claim)
	e.finalize(dec, claim)

	slog.Info("Adjudication complete",
		"memberId", member.MemberID,
		"decision", dec.Decision,
		"approvedAmount", dec.ApprovedAmount,
		"confidence", dec.ConfidenceScore)

	return dec
}

func skippedSteps() map[domain.Step]domain.StepOutcome {
	steps := make(map[domain.Step]domain.StepOutcome, 5)
	for _, s := range domain.AllSteps() {
		steps[s] = domain.StepSkipped
	}
	return steps
}

// checkEligibility verifies the policy is active and the consultation falls
// outside the applicable waiting periods. Unparsable dates skip the
// waiting-period sub-checks rather than rejecting.
func (e *Engine) checkEligibility(claim *domain.ExtractedClaimData, member *domain.MemberInfo) stepResult {
	if !member.IsActive() {
		return fail(domain.RejectionReason{
			Category: domain.CategoryEligibility,
			Code:     domain.CodePolicyInactive,
			Message:  "Policy is not active",
			Details:  fmt.Sprintf("Policy status: %s", member.PolicyStatus),
		})
	}

	if claim.Dates == nil || claim.Dates.ConsultationDate == "" {
		return pass()
	}

	policyStart, err := time.Parse("2006-01-02", member.PolicyStartDate)
	if err != nil {
		slog.Error("Date parsing error in eligibility check", "error", err, "policyStartDate", member.PolicyStartDate)
		return pass()
	}
	consultation, err := time.Parse("2006-01-02", claim.Dates.ConsultationDate)
	if err != nil {
		slog.Error("Date parsing error in eligibility check", "error", err, "consultationDate", claim.Dates.ConsultationDate)
		return pass()
	}

	daysSinceStart := int(consultation.Sub(policyStart).Hours() / 24)

	initialWaiting := e.policy.WaitingPeriod("initial")
	if daysSinceStart < initialWaiting {
		return fail(domain.RejectionReason{
			Category: domain.CategoryEligibility,
			Code:     domain.CodeWaitingPeriod,
			Message:  fmt.Sprintf("Treatment within %d-day initial waiting period", initialWaiting),
			Details:  fmt.Sprintf("Policy active for only %d days", daysSinceStart),
		})
	}

	if claim.Diagnosis != "" {
		diagnosis := strings.ToLower(claim.Diagnosis)
		if strings.Contains(diagnosis, "diabetes") {
			waiting := e.policy.WaitingPeriod("diabetes")
			if daysSinceStart < waiting {
				return fail(domain.RejectionReason{
					Category: domain.CategoryEligibility,
					Code:     domain.CodeWaitingPeriod,
					Message:  fmt.Sprintf("Diabetes has %d-day waiting period", waiting),
					Details:  fmt.Sprintf("Eligible from %s", policyStart.AddDate(0, 0, waiting).Format("2006-01-02")),
				})
			}
		}
		if strings.Contains(diagnosis, "hypertension") || strings.Contains(diagnosis, "blood pressure") {
			waiting := e.policy.WaitingPeriod("hypertension")
			if daysSinceStart < waiting {
				return fail(domain.RejectionReason{
					Category: domain.CategoryEligibility,
					Code:     domain.CodeWaitingPeriod,
					Message:  fmt.Sprintf("Hypertension has %d-day waiting period", waiting),
					Details:  fmt.Sprintf("Eligible from %s", policyStart.AddDate(0, 0, waiting).Format("2006-01-02")),
				})
			}
		}
	}

	return pass()
}

// validateDocuments checks document completeness: a named doctor with a
// plausibly formatted registration number, and a consultation date.
func (e *Engine) validateDocuments(claim *domain.ExtractedClaimData) stepResult {
	if claim.DoctorInfo == nil || claim.DoctorInfo.Name == "" {
		return fail(domain.RejectionReason{
			Category: domain.CategoryDocumentation,
			Code:     domain.CodeMissingDocuments,
			Message:  "Prescription from registered doctor is required",
			Details:  "Doctor information not found in documents",
		})
	}

	regNum := claim.DoctorInfo.RegistrationNumber
	if regNum == "" {
		return fail(domain.RejectionReason{
			Category: domain.CategoryDocumentation,
			Code:     domain.CodeDoctorRegInvalid,
			Message:  "Doctor registration number missing",
			Details:  "Valid registration required for claim processing",
		})
	}
	if !claim.DoctorInfo.HasValidRegistration() {
		return fail(domain.RejectionReason{
			Category: domain.CategoryDocumentation,
			Code:     domain.CodeDoctorRegInvalid,
			Message:  "Invalid doctor registration number format",
			Details:  fmt.Sprintf("Registration: %s", regNum),
		})
	}

	if claim.Dates == nil || claim.Dates.ConsultationDate == "" {
		return fail(domain.RejectionReason{
			Category: domain.CategoryDocumentation,
			Code:     domain.CodeDateMismatch,
			Message:  "Consultation date missing from documents",
			Details:  "Date required for claim processing",
		})
	}

	return pass()
}

// verifyCoverage checks the diagnosis against policy exclusions and scans
// procedures for non-covered services. An excluded diagnosis, a
// pre-authorization gap, or a weight-loss procedure standing alone rejects
// the whole claim; other non-covered procedures degrade to PARTIAL.
func (e *Engine) verifyCoverage(claim *domain.ExtractedClaimData) stepResult {
	if claim.Diagnosis != "" && e.policy.IsExcluded(claim.Diagnosis) {
		return fail(domain.RejectionReason{
			Category: domain.CategoryCoverage,
			Code:     domain.CodeExcludedCondition,
			Message:  "Condition is excluded from coverage",
			Details:  fmt.Sprintf("Diagnosis: %s", claim.Diagnosis),
		})
	}

	var reasons []domain.RejectionReason
	partial := false

	for _, proc := range claim.Procedures {
		name := strings.ToLower(proc.Name)

		if strings.Contains(name, "cosmetic") || strings.Contains(name, "whitening") || strings.Contains(name, "aesthetic") {
			reasons = append(reasons, domain.RejectionReason{
				Category: domain.CategoryCoverage,
				Code:     domain.CodeServiceNotCovered,
				Message:  fmt.Sprintf("Cosmetic procedure not covered: %s", proc.Name),
				Details:  "Cosmetic procedures are excluded",
			})
			partial = true
		}

		if strings.Contains(name, "weight loss") || strings.Contains(name, "bariatric") || strings.Contains(name, "diet plan") {
			reasons = append(reasons, domain.RejectionReason{
				Category: domain.CategoryCoverage,
				Code:     domain.CodeServiceNotCovered,
				Message:  fmt.Sprintf("Weight loss treatment not covered: %s", proc.Name),
				Details:  "Weight loss treatments are excluded",
			})
			if len(claim.Procedures) == 1 {
				return fail(reasons...)
			}
			partial = true
		}
	}

	for _, test := range claim.DiagnosticTests {
		if e.policy.RequiresPreAuthorization(test) {
			reasons = append(reasons, domain.RejectionReason{
				Category: domain.CategoryCoverage,
				Code:     domain.CodePreAuthMissing,
				Message:  fmt.Sprintf("%s requires pre-authorization", test),
				Details:  "Pre-authorization must be obtained before treatment",
			})
			return fail(reasons...)
		}
	}

	if partial {
		return warn(reasons...)
	}
	return pass()
}

// checkLimits validates the claimed amount against the minimum, per-claim,
// and annual limits, then computes copay and the approved amount. Outright
// failures return approved 0; the annual-limit overage caps the payable
// amount and continues.
func (e *Engine) checkLimits(claim *domain.ExtractedClaimData, member *domain.MemberInfo) limitsResult {
	var d domain.Deductions

	if claim.Costs == nil {
		return limitsResult{
			stepResult: warn(domain.RejectionReason{
				Category: domain.CategoryLimits,
				Code:     domain.CodeBelowMinAmount,
				Message:  "No costs found in claim",
			}),
		}
	}

	claimed := claim.Costs.Total

	minAmount := e.policy.MinimumClaimAmount()
	if claimed < minAmount {
		return limitsResult{
			stepResult: warn(domain.RejectionReason{
				Category: domain.CategoryProcess,
				Code:     domain.CodeBelowMinAmount,
				Message:  fmt.Sprintf("Claim below minimum amount of ₹%.0f", minAmount),
				Details:  fmt.Sprintf("Claimed: ₹%.2f", claimed),
			}),
		}
	}

	perClaimLimit := e.policy.PerClaimLimit()
	if claimed > perClaimLimit {
		return limitsResult{
			stepResult: warn(domain.RejectionReason{
				Category: domain.CategoryLimits,
				Code:     domain.CodePerClaimExceeded,
				Message:  fmt.Sprintf("Claim exceeds per-claim limit of ₹%.0f", perClaimLimit),
				Details:  fmt.Sprintf("Claimed: ₹%.2f", claimed),
			}),
		}
	}

	var reasons []domain.RejectionReason
	annualLimit := e.policy.AnnualLimit()
	if member.YTDClaims+claimed > annualLimit {
		remaining := annualLimit - member.YTDClaims
		if remaining <= 0 {
			return limitsResult{
				stepResult: warn(domain.RejectionReason{
					Category: domain.CategoryLimits,
					Code:     domain.CodeAnnualLimitExceeded,
					Message:  fmt.Sprintf("Annual limit of ₹%.0f exhausted", annualLimit),
					Details:  fmt.Sprintf("YTD claims: ₹%.2f", member.YTDClaims),
				}),
			}
		}
		d.ExceededLimits = claimed - remaining
		claimed = remaining
		reasons = append(reasons, domain.RejectionReason{
			Category: domain.CategoryLimits,
			Code:     domain.CodeAnnualLimitExceeded,
			Message:  fmt.Sprintf("Partial approval: ₹%.2f remaining in annual limit", remaining),
			Details:  fmt.Sprintf("₹%.2f exceeds limit", d.ExceededLimits),
		})
	}

	// Copay: all medicines are treated as branded.
	if claim.Costs.Consultation > 0 {
		d.Copay += claim.Costs.Consultation * e.policy.ConsultationCopay() / 100
	}
	if claim.Costs.Medicines > 0 {
		d.Copay += claim.Costs.Medicines * e.policy.PharmacyCopay() / 100
	}

	// claimed is already capped to the annual-limit remainder above, so only
	// the remaining deductions come off here.
	approved := claimed - d.Copay - d.NonCoveredItems
	if approved < 0 {
		approved = 0
	}

	if approved == 0 {
		reasons = append(reasons, domain.RejectionReason{
			Category: domain.CategoryLimits,
			Code:     domain.CodeNothingPayable,
			Message:  "Deductions consume the entire payable amount",
		})
	}

	res := pass()
	if len(reasons) > 0 {
		res = warn(reasons...)
	}
	return limitsResult{stepResult: res, approved: approved, deductions: d}
}

// reviewMedicalNecessity requires a diagnosis to justify the treatment.
func (e *Engine) reviewMedicalNecessity(claim *domain.ExtractedClaimData) stepResult {
	if claim.Diagnosis == "" {
		return fail(domain.RejectionReason{
			Category: domain.CategoryMedical,
			Code:     domain.CodeNotMedicallyNecessary,
			Message:  "Diagnosis missing - cannot assess medical necessity",
			Details:  "Clear diagnosis required for claim approval",
		})
	}
	return pass()
}

// applyNetworkBenefits resolves the hospital from the bill or the doctor's
// clinic and, for network hospitals, applies the network discount and
// cashless eligibility. Cashless keys off the original claimed amount.
func (e *Engine) applyNetworkBenefits(dec *domain.ClaimDecision, claim *domain.ExtractedClaimData) {
	hospital := claim.HospitalName
	if hospital == "" && claim.DoctorInfo != nil {
		hospital = claim.DoctorInfo.ClinicName
	}
	if hospital == "" || !e.policy.IsNetworkHospital(hospital) {
		return
	}

	dec.IsNetworkHospital = true
	discount := dec.ApprovedAmount * e.policy.NetworkDiscount() / 100
	dec.Deductions.NetworkDiscount = discount
	dec.ApprovedAmount -= discount

	if dec.ClaimedAmount <= e.policy.InstantApprovalLimit() {
		dec.CashlessApproved = true
	}
}

// finalize computes the confidence score and fills notes and next steps.
// Existing notes (set by the fraud gate) are kept.
func (e *Engine) finalize(dec *domain.ClaimDecision, claim *domain.ExtractedClaimData) {
	score := claim.ExtractionConfidence
	switch {
	case dec.Decision == domain.DecisionRejected:
		// Rejections are high-confidence.
		score += 0.1
		if score > 1.0 {
			score = 1.0
		}
	case dec.Decision == domain.DecisionManualReview:
		score = 0.5
	case len(dec.FraudFlags) > 0:
		score *= 0.8
	}
	dec.ConfidenceScore = score

	if dec.Notes == "" {
		dec.Notes = generateNotes(dec)
	}
	dec.NextSteps = generateNextSteps(dec)
}

func generateNotes(dec *domain.ClaimDecision) string {
	switch dec.Decision {
	case domain.DecisionApproved:
		notes := fmt.Sprintf("Claim approved for ₹%.2f", dec.ApprovedAmount)
		if dec.Deductions.Copay > 0 {
			notes += fmt.Sprintf(" (after ₹%.2f copay)", dec.Deductions.Copay)
		}
		if dec.IsNetworkHospital {
			notes += fmt.Sprintf(". Network discount of ₹%.2f applied", dec.Deductions.NetworkDiscount)
		}
		return notes
	case domain.DecisionRejected:
		return fmt.Sprintf("Claim rejected. %d issues found.", len(dec.RejectionReasons))
	case domain.DecisionPartial:
		return fmt.Sprintf("Partial approval: ₹%.2f of ₹%.2f", dec.ApprovedAmount, dec.ClaimedAmount)
	case domain.DecisionManualReview:
		return "Claim flagged for manual review due to unusual patterns"
	}
	return ""
}

func generateNextSteps(dec *domain.ClaimDecision) string {
	switch dec.Decision {
	case domain.DecisionApproved:
		if dec.CashlessApproved {
			return "Cashless approval granted. No payment required from you."
		}
		return "Approved amount will be reimbursed to your account within 5-7 business days."
	case domain.DecisionRejected:
		return "Please review rejection reasons. You may appeal this decision with additional documentation."
	case domain.DecisionPartial:
		return "Partial amount approved. You may appeal for the rejected portion with additional justification."
	case domain.DecisionManualReview:
		return "Our claims team will review your claim within 2-3 business days. You may be contacted for additional information."
	}
	return ""
}
