// Package fraud identifies suspicious patterns in claims.
package fraud

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/opensource-health/kite/internal/domain"
)

// RiskThreshold is the score at or above which a claim escalates to
// manual review.
const RiskThreshold = 0.5

var vagueTerms = []string{"general", "unspecified", "unknown", "other"}

// Detector runs the fixed fraud checks against a claim. It is stateless
// and safe for concurrent use.
type Detector struct{}

// NewDetector creates a fraud detector.
func NewDetector() *Detector {
	return &Detector{}
}

// Detect runs all checks and returns the collected flags. Pure apart from
// logging; check order does not affect scoring.
func (d *Detector) Detect(claim *domain.ExtractedClaimData, member *domain.MemberInfo) []domain.FraudFlag {
	var flags []domain.FraudFlag

	flags = append(flags, d.checkSameDayClaims(claim, member)...)
	flags = append(flags, d.checkClaimFrequency(member)...)
	flags = append(flags, d.checkSuspiciousAmounts(claim)...)
	flags = append(flags, d.checkVagueDiagnosis(claim)...)
	flags = append(flags, d.checkDocumentConsistency(claim)...)

	if len(flags) > 0 {
		slog.Warn("Fraud flags detected",
			"memberId", member.MemberID,
			"flagCount", len(flags))
	}

	return flags
}

// checkSameDayClaims flags when the member already has two or more claims
// on the consultation date, i.e. this would be at least the third.
func (d *Detector) checkSameDayClaims(claim *domain.ExtractedClaimData, member *domain.MemberInfo) []domain.FraudFlag {
	if claim.Dates == nil || claim.Dates.ConsultationDate == "" {
		return nil
	}

	sameDay := 0
	for _, prev := range member.PreviousClaims {
		if prev.Date == claim.Dates.ConsultationDate {
			sameDay++
		}
	}

	if sameDay >= 2 {
		return []domain.FraudFlag{{
			Category: domain.FraudSameDay,
			Message:  fmt.Sprintf("Multiple claims on same day (%d total)", sameDay+1),
		}}
	}
	return nil
}

// checkClaimFrequency flags unusually high claim counts in the member's
// recent history. The thresholds are exclusive: only the higher one fires.
func (d *Detector) checkClaimFrequency(member *domain.MemberInfo) []domain.FraudFlag {
	recent := len(member.PreviousClaims)

	switch {
	case recent >= 10:
		return []domain.FraudFlag{{
			Category: domain.FraudFrequency,
			Message:  fmt.Sprintf("High claim frequency: %d claims in recent period", recent),
		}}
	case recent >= 5:
		return []domain.FraudFlag{{
			Category: domain.FraudFrequency,
			Message:  fmt.Sprintf("Elevated claim frequency: %d claims in recent period", recent),
		}}
	}
	return nil
}

// checkSuspiciousAmounts flags exact round thousands and amounts parked
// just under the per-claim limit.
func (d *Detector) checkSuspiciousAmounts(claim *domain.ExtractedClaimData) []domain.FraudFlag {
	if claim.Costs == nil {
		return nil
	}

	var flags []domain.FraudFlag
	total := claim.Costs.Total

	if total > 1000 && math.Mod(total, 1000) == 0 {
		flags = append(flags, domain.FraudFlag{
			Category: domain.FraudAmount,
			Message:  fmt.Sprintf("Suspiciously round claim amount: %.0f", total),
		})
	}

	if total >= 4800 && total <= 5000 {
		flags = append(flags, domain.FraudFlag{
			Category: domain.FraudAmount,
			Message:  "Claim amount suspiciously close to per-claim limit",
		})
	}

	return flags
}

// checkVagueDiagnosis flags non-specific diagnosis text. At most one flag
// fires regardless of how many vague terms appear.
func (d *Detector) checkVagueDiagnosis(claim *domain.ExtractedClaimData) []domain.FraudFlag {
	if claim.Diagnosis == "" {
		return nil
	}

	lower := strings.ToLower(claim.Diagnosis)
	for _, term := range vagueTerms {
		if strings.Contains(lower, term) {
			return []domain.FraudFlag{{
				Category: domain.FraudVagueDiagnosis,
				Message:  fmt.Sprintf("Vague diagnosis: %s", claim.Diagnosis),
			}}
		}
	}
	return nil
}

// checkDocumentConsistency flags date spread over 7 days, cost breakdowns
// that drift over 20% from the stated total, and a missing doctor
// registration number. Unparsable dates skip the spread check.
func (d *Detector) checkDocumentConsistency(claim *domain.ExtractedClaimData) []domain.FraudFlag {
	var flags []domain.FraudFlag

	if claim.Dates != nil {
		raw := []string{
			claim.Dates.ConsultationDate,
			claim.Dates.PrescriptionDate,
			claim.Dates.BillDate,
		}
		var parsed []time.Time
		parseOK := true
		for _, s := range raw {
			if s == "" {
				continue
			}
			t, err := time.Parse("2006-01-02", s)
			if err != nil {
				parseOK = false
				break
			}
			parsed = append(parsed, t)
		}
		if parseOK && len(parsed) >= 2 {
			min, max := parsed[0], parsed[0]
			for _, t := range parsed[1:] {
				if t.Before(min) {
					min = t
				}
				if t.After(max) {
					max = t
				}
			}
			days := int(max.Sub(min).Hours() / 24)
			if days > 7 {
				flags = append(flags, domain.FraudFlag{
					Category: domain.FraudInconsistency,
					Message:  fmt.Sprintf("Document dates span %d days (suspicious)", days),
				})
			}
		}
	}

	if claim.Costs != nil {
		sum := claim.Costs.ComponentSum()
		total := claim.Costs.Total
		if sum > 0 && total > 0 {
			diff := math.Abs(total - sum)
			if diff > total*0.2 {
				flags = append(flags, domain.FraudFlag{
					Category: domain.FraudInconsistency,
					Message:  fmt.Sprintf("Cost breakdown doesn't match total (%.2f discrepancy)", diff),
				})
			}
		}
	}

	if claim.DoctorInfo == nil || claim.DoctorInfo.RegistrationNumber == "" {
		flags = append(flags, domain.FraudFlag{
			Category: domain.FraudMissingField,
			Message:  "Missing doctor registration number",
		})
	}

	return flags
}

// RiskScore computes the weighted fraud risk in [0,1] from collected flags.
// Additive by flag category, capped at 1.0.
func RiskScore(flags []domain.FraudFlag) float64 {
	if len(flags) == 0 {
		return 0.0
	}

	score := 0.0
	for _, f := range flags {
		switch f.Category {
		case domain.FraudSameDay:
			score += 0.30
		case domain.FraudFrequency:
			score += 0.25
		case domain.FraudAmount:
			score += 0.15
		case domain.FraudVagueDiagnosis:
			score += 0.10
		case domain.FraudInconsistency:
			score += 0.20
		case domain.FraudMissingField:
			score += 0.15
		default:
			score += 0.10
		}
	}

	return math.Min(score, 1.0)
}
